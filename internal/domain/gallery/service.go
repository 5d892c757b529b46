package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clubsite/server/internal/audit"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/cache"
	"github.com/clubsite/server/internal/domain/ids"
	"github.com/clubsite/server/internal/metrics"
	"github.com/clubsite/server/internal/sanitize"
	"github.com/clubsite/server/internal/storage/blob"
	"github.com/clubsite/server/internal/validation"
)

type UploadInput struct {
	Album   string `json:"album" validate:"required,slug,max=100"`
	Caption string `json:"caption" validate:"max=500"`
}

type Service struct {
	repo        Repository
	blobs       blob.Store
	authz       auth.Authorizer
	cache       *cache.Store
	auditLogger *audit.Logger
	maxBytes    int64
	now         func() time.Time
}

func NewService(repo Repository, blobs blob.Store, authz auth.Authorizer, store *cache.Store, auditLogger *audit.Logger, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		repo:        repo,
		blobs:       blobs,
		authz:       authz,
		cache:       store,
		auditLogger: auditLogger,
		maxBytes:    maxBytes,
		now:         time.Now,
	}
}

func (s *Service) MaxBytes() int64 { return s.maxBytes }

func (s *Service) List(ctx context.Context, album string) ([]MediaItem, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Gallery().Album(album), func(ctx context.Context) ([]MediaItem, error) {
		return s.repo.List(ctx, album)
	})
}

// Upload stores body under gallery/<album>/<id>.<ext>. The content type
// is sniffed from the bytes; the client's claim is ignored.
func (s *Service) Upload(ctx context.Context, actor auth.Actor, in UploadInput, body io.Reader) (MediaItem, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return MediaItem{}, err
	}
	if err := validation.Struct(in); err != nil {
		return MediaItem{}, err
	}

	data, err := io.ReadAll(io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return MediaItem{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return MediaItem{}, ErrEmptyUpload
	}
	if int64(len(data)) > s.maxBytes {
		return MediaItem{}, ErrTooLarge
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return MediaItem{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	id := ids.MustULID()
	key := fmt.Sprintf("gallery/%s/%s.%s", in.Album, strings.ToLower(id), ext)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return MediaItem{}, fmt.Errorf("store upload: %w", err)
	}

	item := MediaItem{
		ID:          id,
		Album:       in.Album,
		Caption:     sanitize.Text(in.Caption),
		Key:         key,
		URL:         s.blobs.URL(key),
		ContentType: contentType,
		Size:        int64(len(data)),
		UploadedBy:  actor.UserID,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, item); err != nil {
		_ = s.blobs.Delete(ctx, key)
		return MediaItem{}, err
	}

	metrics.UploadBytes.WithLabelValues(s.blobs.Backend()).Observe(float64(item.Size))
	s.cache.Invalidate(cache.ResourceGallery)
	s.auditLogger.LogSuccess("media.uploaded", actor.Username, "media", item.ID, audit.ClientIPFromContext(ctx), map[string]string{
		"album": item.Album,
		"key":   item.Key,
	})
	return item, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return err
	}
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, item.Key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("delete blob %s: %w", item.Key, err)
	}
	s.cache.Invalidate(cache.ResourceGallery)
	s.auditLogger.LogSuccess("media.deleted", actor.Username, "media", id, audit.ClientIPFromContext(ctx), nil)
	return nil
}
