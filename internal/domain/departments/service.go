package departments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clubsite/server/internal/audit"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/cache"
	"github.com/clubsite/server/internal/domain/ids"
	"github.com/clubsite/server/internal/sanitize"
	"github.com/clubsite/server/internal/validation"
)

const maxSlugAttempts = 20

type Input struct {
	Name         string `json:"name" validate:"notblank,max=120"`
	Slug         string `json:"slug" validate:"omitempty,slug,max=120"`
	Description  string `json:"description_html" validate:"max=20000"`
	LeadUserID   string `json:"lead_user_id" validate:"omitempty,len=26"`
	DisplayOrder int    `json:"display_order" validate:"gte=0,lte=10000"`
	ImageURL     string `json:"image_url" validate:"omitempty,mediaurl,max=2048"`
}

type Service struct {
	repo        Repository
	authz       auth.Authorizer
	cache       *cache.Store
	auditLogger *audit.Logger
	now         func() time.Time
}

func NewService(repo Repository, authz auth.Authorizer, store *cache.Store, auditLogger *audit.Logger) *Service {
	return &Service{repo: repo, authz: authz, cache: store, auditLogger: auditLogger, now: time.Now}
}

func (s *Service) List(ctx context.Context) ([]Department, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Departments().List(), s.repo.List)
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (Department, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Departments().BySlug(slug), func(ctx context.Context) (Department, error) {
		return s.repo.GetBySlug(ctx, slug)
	})
}

func (s *Service) Get(ctx context.Context, id string) (Department, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in Input) (Department, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageDepartments); err != nil {
		return Department{}, err
	}
	if err := validation.Struct(in); err != nil {
		return Department{}, err
	}

	now := s.now()
	d := Department{
		ID:              ids.MustULID(),
		Name:            sanitize.Text(in.Name),
		DescriptionHTML: sanitize.HTML(in.Description),
		LeadUserID:      in.LeadUserID,
		DisplayOrder:    in.DisplayOrder,
		ImageURL:        in.ImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if in.Slug != "" {
		d.Slug = in.Slug
		if err := s.repo.Create(ctx, d); err != nil {
			return Department{}, err
		}
	} else if err := s.createWithGeneratedSlug(ctx, &d); err != nil {
		return Department{}, err
	}

	s.invalidate()
	s.auditLogger.LogSuccess("department.created", actor.Username, "department", d.ID, audit.ClientIPFromContext(ctx), map[string]string{
		"slug": d.Slug,
	})
	return d, nil
}

// createWithGeneratedSlug derives the slug from the name and appends -2,
// -3, ... on collision.
func (s *Service) createWithGeneratedSlug(ctx context.Context, d *Department) error {
	base := sanitize.Slug(d.Name)
	if base == "" {
		base = "birim"
	}
	for i := 1; i <= maxSlugAttempts; i++ {
		d.Slug = base
		if i > 1 {
			d.Slug = fmt.Sprintf("%s-%d", base, i)
		}
		err := s.repo.Create(ctx, *d)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrSlugTaken) {
			return err
		}
	}
	return ErrSlugTaken
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, in Input) (Department, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageDepartments); err != nil {
		return Department{}, err
	}
	if err := validation.Struct(in); err != nil {
		return Department{}, err
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Department{}, err
	}

	d.Name = sanitize.Text(in.Name)
	if in.Slug != "" {
		d.Slug = in.Slug
	}
	d.DescriptionHTML = sanitize.HTML(in.Description)
	d.LeadUserID = in.LeadUserID
	d.DisplayOrder = in.DisplayOrder
	d.ImageURL = in.ImageURL
	d.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, d); err != nil {
		return Department{}, err
	}
	s.invalidate()
	s.auditLogger.LogSuccess("department.updated", actor.Username, "department", d.ID, audit.ClientIPFromContext(ctx), nil)
	return d, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string, force bool) error {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageDepartments); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, force); err != nil {
		return err
	}
	s.invalidate()
	s.auditLogger.LogSuccess("department.deleted", actor.Username, "department", id, audit.ClientIPFromContext(ctx), map[string]string{
		"force": fmt.Sprint(force),
	})
	return nil
}

// invalidate drops department and event listings, which embed
// department names.
func (s *Service) invalidate() {
	s.cache.Invalidate(cache.ResourceDepartments, cache.ResourceEvents)
}
