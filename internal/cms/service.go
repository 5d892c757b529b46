package cms

import (
	"context"
	"net/url"
	"strconv"

	"github.com/clubsite/server/internal/cache"
	"github.com/clubsite/server/internal/sanitize"
)

const (
	queryHomePage      = `*[_type == "homePage"][0]`
	queryAlbums        = `*[_type == "galleryAlbum"] | order(date desc)`
	queryAlbum         = `*[_type == "galleryAlbum" && slug == $slug][0]`
	queryAnnouncements = `*[_type == "announcement"] | order(pinned desc, publishedAt desc)[0...$limit]`
	querySiteSettings  = `*[_type == "siteSettings"][0]`
)

// Service exposes typed, cached reads of the site's CMS documents.
type Service struct {
	client *Client
	cache  *cache.Store
}

func NewService(client *Client, store *cache.Store) *Service {
	return &Service{client: client, cache: store}
}

func (s *Service) HomePage(ctx context.Context) (HomePage, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.CMS().Document("home", nil), func(ctx context.Context) (HomePage, error) {
		raw, err := s.client.Query(ctx, "home", queryHomePage, nil)
		if err != nil {
			return HomePage{}, err
		}
		page, err := decodeOne[HomePage](raw)
		if err != nil {
			return HomePage{}, err
		}
		page.IntroHTML = sanitize.HTML(page.IntroHTML)
		return page, nil
	})
}

func (s *Service) Albums(ctx context.Context) ([]GalleryAlbum, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.CMS().Document("albums", nil), func(ctx context.Context) ([]GalleryAlbum, error) {
		raw, err := s.client.Query(ctx, "albums", queryAlbums, nil)
		if err != nil {
			return nil, err
		}
		return DecodeList[GalleryAlbum](raw)
	})
}

func (s *Service) Album(ctx context.Context, slug string) (GalleryAlbum, error) {
	key := cache.CMS().Document("album", url.Values{"slug": {slug}})
	return cache.GetOrLoad(ctx, s.cache, key, func(ctx context.Context) (GalleryAlbum, error) {
		raw, err := s.client.Query(ctx, "album", queryAlbum, map[string]any{"slug": slug})
		if err != nil {
			return GalleryAlbum{}, err
		}
		return decodeOne[GalleryAlbum](raw)
	})
}

func (s *Service) Announcements(ctx context.Context, limit int) ([]Announcement, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	key := cache.CMS().Document("announcements", url.Values{"limit": {strconv.Itoa(limit)}})
	return cache.GetOrLoad(ctx, s.cache, key, func(ctx context.Context) ([]Announcement, error) {
		raw, err := s.client.Query(ctx, "announcements", queryAnnouncements, map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}
		items, err := DecodeList[Announcement](raw)
		if err != nil {
			return nil, err
		}
		for i := range items {
			items[i].BodyHTML = sanitize.HTML(items[i].BodyHTML)
		}
		return items, nil
	})
}

func (s *Service) SiteSettings(ctx context.Context) (SiteSettings, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.CMS().Document("settings", nil), func(ctx context.Context) (SiteSettings, error) {
		raw, err := s.client.Query(ctx, "settings", querySiteSettings, nil)
		if err != nil {
			return SiteSettings{}, err
		}
		return decodeOne[SiteSettings](raw)
	})
}

// Refresh drops every cached CMS document.
func (s *Service) Refresh() {
	s.cache.Invalidate(cache.ResourceCMS)
}
