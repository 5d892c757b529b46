// Package gallery manages uploaded photos grouped into albums. Album
// titles and descriptions live in the CMS; this package only tracks the
// files.
package gallery

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("media item not found")
	ErrTooLarge        = errors.New("upload exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrEmptyUpload     = errors.New("upload is empty")
)

const DefaultMaxBytes int64 = 10 << 20

// allowedTypes maps accepted sniffed content types to file extensions.
var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

type MediaItem struct {
	ID          string    `json:"id"`
	Album       string    `json:"album"`
	Caption     string    `json:"caption,omitempty"`
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Repository interface {
	// List returns items newest first. An empty album lists every item.
	List(ctx context.Context, album string) ([]MediaItem, error)
	Get(ctx context.Context, id string) (MediaItem, error)
	Create(ctx context.Context, m MediaItem) error
	Delete(ctx context.Context, id string) error
}
