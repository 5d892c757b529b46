package departments

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("department not found")
	ErrSlugTaken = errors.New("department slug is already taken")
	ErrHasEvents = errors.New("department still has events")
)

type Department struct {
	ID              string    `json:"id"`
	Slug            string    `json:"slug"`
	Name            string    `json:"name"`
	DescriptionHTML string    `json:"description_html"`
	LeadUserID      string    `json:"lead_user_id,omitempty"`
	DisplayOrder    int       `json:"display_order"`
	ImageURL        string    `json:"image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Repository interface {
	List(ctx context.Context) ([]Department, error)
	GetByID(ctx context.Context, id string) (Department, error)
	GetBySlug(ctx context.Context, slug string) (Department, error)
	Create(ctx context.Context, d Department) error
	Update(ctx context.Context, d Department) error
	// Delete removes the department. Without force it fails with
	// ErrHasEvents when events reference it; with force those events are
	// detached first.
	Delete(ctx context.Context, id string, force bool) error
}
