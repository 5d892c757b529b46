package faqs

import (
	"context"
	"time"

	"github.com/clubsite/server/internal/audit"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/cache"
	"github.com/clubsite/server/internal/domain/ids"
	"github.com/clubsite/server/internal/sanitize"
	"github.com/clubsite/server/internal/validation"
)

type Input struct {
	Question  string `json:"question" validate:"notblank,max=300"`
	Answer    string `json:"answer_html" validate:"notblank,max=20000"`
	Category  string `json:"category" validate:"required"`
	Published bool   `json:"published"`
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

// ListPublished groups published FAQs by category in Categories order.
// Empty categories are omitted.
func (s *Service) ListPublished(ctx context.Context) ([]Group, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.FAQs().Published(), func(ctx context.Context) ([]Group, error) {
		items, err := s.repo.List(ctx, true)
		if err != nil {
			return nil, err
		}
		return group(items), nil
	})
}

func group(items []FAQ) []Group {
	byCat := make(map[Category][]FAQ)
	for _, f := range items {
		byCat[f.Category] = append(byCat[f.Category], f)
	}
	groups := make([]Group, 0, len(byCat))
	for _, c := range Categories {
		if len(byCat[c]) == 0 {
			continue
		}
		groups = append(groups, Group{Category: c, Label: c.Label(), Items: byCat[c]})
	}
	return groups
}

func (s *Service) List(ctx context.Context, actor auth.Actor) ([]FAQ, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, false)
}

func (s *Service) parse(in Input) (Category, error) {
	errs := validation.Errors{}
	if err := validation.Struct(in); err != nil {
		verrs, ok := validation.AsErrors(err)
		if !ok {
			return "", err
		}
		errs = verrs
	}
	cat, err := ParseCategory(in.Category)
	if err != nil {
		errs.Add("category", "category must be one of general, membership, events, donations, other")
	}
	return cat, errs.Err()
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in Input) (FAQ, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return FAQ{}, err
	}
	cat, err := s.parse(in)
	if err != nil {
		return FAQ{}, err
	}
	existing, err := s.repo.List(ctx, false)
	if err != nil {
		return FAQ{}, err
	}

	now := s.now()
	f := FAQ{
		ID:         ids.MustULID(),
		Question:   sanitize.Text(in.Question),
		AnswerHTML: sanitize.HTML(in.Answer),
		Category:   cat,
		Position:   len(existing),
		Published:  in.Published,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return FAQ{}, err
	}
	s.cache.Invalidate(cache.ResourceFAQs)
	s.auditLogger.LogSuccess("faq.created", actor.Username, "faq", f.ID, audit.ClientIPFromContext(ctx), nil)
	return f, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, in Input) (FAQ, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return FAQ{}, err
	}
	cat, err := s.parse(in)
	if err != nil {
		return FAQ{}, err
	}
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return FAQ{}, err
	}
	f.Question = sanitize.Text(in.Question)
	f.AnswerHTML = sanitize.HTML(in.Answer)
	f.Category = cat
	f.Published = in.Published
	f.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, f); err != nil {
		return FAQ{}, err
	}
	s.cache.Invalidate(cache.ResourceFAQs)
	s.auditLogger.LogSuccess("faq.updated", actor.Username, "faq", f.ID, audit.ClientIPFromContext(ctx), nil)
	return f, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(cache.ResourceFAQs)
	s.auditLogger.LogSuccess("faq.deleted", actor.Username, "faq", id, audit.ClientIPFromContext(ctx), nil)
	return nil
}

// Reorder sets positions from ids, which must list every FAQ once.
func (s *Service) Reorder(ctx context.Context, actor auth.Actor, order []string) error {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return err
	}
	existing, err := s.repo.List(ctx, false)
	if err != nil {
		return err
	}
	if len(order) != len(existing) {
		return ErrReorderMismatch
	}
	known := make(map[string]bool, len(existing))
	for _, f := range existing {
		known[f.ID] = true
	}
	for _, id := range order {
		if !known[id] {
			return ErrReorderMismatch
		}
		delete(known, id)
	}

	if err := s.repo.SetPositions(ctx, order); err != nil {
		return err
	}
	s.cache.Invalidate(cache.ResourceFAQs)
	s.auditLogger.LogSuccess("faq.reordered", actor.Username, "faq", "", audit.ClientIPFromContext(ctx), nil)
	return nil
}
