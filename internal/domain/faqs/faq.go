package faqs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("faq not found")
	ErrInvalidCategory = errors.New("invalid faq category")
	ErrReorderMismatch = errors.New("reorder list must contain every faq exactly once")
)

type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryMembership Category = "membership"
	CategoryEvents     Category = "events"
	CategoryDonations  Category = "donations"
	CategoryOther      Category = "other"
)

// Categories is the display order of groups on the public page.
var Categories = []Category{CategoryGeneral, CategoryMembership, CategoryEvents, CategoryDonations, CategoryOther}

func ParseCategory(value string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(value))) {
	case CategoryGeneral:
		return CategoryGeneral, nil
	case CategoryMembership:
		return CategoryMembership, nil
	case CategoryEvents:
		return CategoryEvents, nil
	case CategoryDonations:
		return CategoryDonations, nil
	case CategoryOther:
		return CategoryOther, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, value)
	}
}

// Label is the Turkish heading for the category.
func (c Category) Label() string {
	switch c {
	case CategoryGeneral:
		return "Genel"
	case CategoryMembership:
		return "Üyelik"
	case CategoryEvents:
		return "Etkinlikler"
	case CategoryDonations:
		return "Bağışlar"
	case CategoryOther:
		return "Diğer"
	}
	return string(c)
}

type FAQ struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	AnswerHTML string    `json:"answer_html"`
	Category   Category  `json:"category"`
	Position   int       `json:"position"`
	Published  bool      `json:"published"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Group is one category section of the public FAQ page.
type Group struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Items    []FAQ    `json:"items"`
}

type Repository interface {
	// List returns FAQs ordered by position; publishedOnly filters drafts.
	List(ctx context.Context, publishedOnly bool) ([]FAQ, error)
	Get(ctx context.Context, id string) (FAQ, error)
	Create(ctx context.Context, f FAQ) error
	Update(ctx context.Context, f FAQ) error
	Delete(ctx context.Context, id string) error
	// SetPositions assigns position i to ids[i] in one transaction.
	SetPositions(ctx context.Context, ids []string) error
}
