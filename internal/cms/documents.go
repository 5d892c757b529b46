package cms

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocumentType is the "_type" discriminator of a stored document.
type DocumentType string

const (
	TypeHomePage     DocumentType = "homePage"
	TypeGalleryAlbum DocumentType = "galleryAlbum"
	TypeAnnouncement DocumentType = "announcement"
	TypeSiteSettings DocumentType = "siteSettings"
)

// Document is implemented by every decoded document variant.
type Document interface {
	DocumentType() DocumentType
}

type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type HomePage struct {
	ID          string `json:"_id"`
	HeroTitle   string `json:"heroTitle"`
	HeroText    string `json:"heroText"`
	HeroImage   Image  `json:"heroImage"`
	IntroHTML   string `json:"introHtml"`
	Highlights  []Link `json:"highlights"`
	CallToLabel string `json:"ctaLabel"`
	CallToURL   string `json:"ctaUrl"`
}

type GalleryAlbum struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Cover       Image     `json:"cover"`
	Date        time.Time `json:"date"`
}

type Announcement struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"bodyHtml"`
	Pinned      bool      `json:"pinned"`
	PublishedAt time.Time `json:"publishedAt"`
}

type SiteSettings struct {
	ID           string `json:"_id"`
	SiteName     string `json:"siteName"`
	Tagline      string `json:"tagline"`
	ContactEmail string `json:"contactEmail"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Social       []Link `json:"social"`
}

func (HomePage) DocumentType() DocumentType     { return TypeHomePage }
func (GalleryAlbum) DocumentType() DocumentType { return TypeGalleryAlbum }
func (Announcement) DocumentType() DocumentType { return TypeAnnouncement }
func (SiteSettings) DocumentType() DocumentType { return TypeSiteSettings }

// Decode reads the "_type" discriminator and decodes raw into the
// matching variant.
func Decode(raw json.RawMessage) (Document, error) {
	var head struct {
		Type DocumentType `json:"_type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	switch head.Type {
	case TypeHomePage:
		return decodeAs[HomePage](raw)
	case TypeGalleryAlbum:
		return decodeAs[GalleryAlbum](raw)
	case TypeAnnouncement:
		return decodeAs[Announcement](raw)
	case TypeSiteSettings:
		return decodeAs[SiteSettings](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
}

func decodeAs[T Document](raw json.RawMessage) (Document, error) {
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", doc.DocumentType(), err)
	}
	return doc, nil
}

// DecodeList decodes an array result, requiring every element to be a T.
func DecodeList[T Document](raw json.RawMessage) ([]T, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		doc, err := Decode(item)
		if err != nil {
			return nil, err
		}
		typed, ok := doc.(T)
		if !ok {
			var want T
			return nil, fmt.Errorf("%w: got %s, want %s", ErrUnknownType, doc.DocumentType(), want.DocumentType())
		}
		out = append(out, typed)
	}
	return out, nil
}

func decodeOne[T Document](raw json.RawMessage) (T, error) {
	var zero T
	if len(raw) == 0 || string(raw) == "null" {
		return zero, ErrNotFound
	}
	doc, err := Decode(raw)
	if err != nil {
		return zero, err
	}
	typed, ok := doc.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %s, want %s", ErrUnknownType, doc.DocumentType(), zero.DocumentType())
	}
	return typed, nil
}
