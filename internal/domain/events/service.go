package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clubsite/server/internal/audit"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/cache"
	"github.com/clubsite/server/internal/datepicker"
	"github.com/clubsite/server/internal/domain/ids"
	"github.com/clubsite/server/internal/metrics"
	"github.com/clubsite/server/internal/sanitize"
	"github.com/clubsite/server/internal/validation"
	"github.com/rs/zerolog"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// maxListForExpansion bounds the single events loaded for a range.
	maxListForExpansion = 1000
)

// Input carries event fields as submitted by the admin forms. Start and
// End use the date picker format: "YYYY-MM-DD" or "YYYY-MM-DDTHH:mm".
type Input struct {
	Title            string `json:"title" validate:"notblank,max=200"`
	Description      string `json:"description_html" validate:"max=50000"`
	Category         string `json:"category" validate:"required"`
	DepartmentID     string `json:"department_id" validate:"omitempty,len=26"`
	Location         string `json:"location" validate:"max=300"`
	Start            string `json:"start" validate:"required"`
	End              string `json:"end"`
	AllDay           bool   `json:"all_day"`
	Capacity         int    `json:"capacity" validate:"gte=0,lte=100000"`
	RegistrationOpen bool   `json:"registration_open"`
	ImageURL         string `json:"image_url" validate:"omitempty,mediaurl,max=2048"`
	RRule            string `json:"rrule" validate:"max=500"`
	Published        bool   `json:"published"`
}

type RegistrationInput struct {
	Name  string `json:"name" validate:"notblank,max=120"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"omitempty,max=30"`
	Note  string `json:"note" validate:"max=1000"`
}

type Service struct {
	repo        Repository
	authz       auth.Authorizer
	cache       *cache.Store
	notifier    Notifier
	auditLogger *audit.Logger
	loc         *time.Location
	now         func() time.Time
	logger      zerolog.Logger
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, authz auth.Authorizer, store *cache.Store, auditLogger *audit.Logger, loc *time.Location, logger zerolog.Logger, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		repo:        repo,
		authz:       authz,
		cache:       store,
		auditLogger: auditLogger,
		loc:         loc,
		now:         time.Now,
		logger:      logger.With().Str("component", "events").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

func normalizeFilter(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Query = strings.TrimSpace(f.Query)
	return f
}

// List returns published events only.
func (s *Service) List(ctx context.Context, f Filter) ([]Event, int, error) {
	published := true
	f.Published = &published
	f = normalizeFilter(f)

	type page struct {
		Items []Event
		Total int
	}
	p, err := cache.GetOrLoad(ctx, s.cache, cache.Events().List(f.Values()), func(ctx context.Context) (page, error) {
		items, total, err := s.repo.List(ctx, f)
		return page{Items: items, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return p.Items, p.Total, nil
}

// Upcoming returns the next published events from now. The listing is
// cached per limit; events that ended since it was loaded are dropped.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]Event, error) {
	now := s.now()
	items, err := cache.GetOrLoad(ctx, s.cache, cache.Events().Upcoming(limit), func(ctx context.Context) ([]Event, error) {
		published := true
		from := now.Truncate(time.Minute)
		items, _, err := s.repo.List(ctx, normalizeFilter(Filter{From: &from, Published: &published, Limit: limit}))
		return items, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(items))
	for _, e := range items {
		if e.End().After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAdmin includes drafts.
func (s *Service) ListAdmin(ctx context.Context, actor auth.Actor, f Filter) ([]Event, int, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, normalizeFilter(f))
}

// Get returns a published event.
func (s *Service) Get(ctx context.Context, id string) (Event, error) {
	e, err := cache.GetOrLoad(ctx, s.cache, cache.Events().ByID(id), func(ctx context.Context) (Event, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return Event{}, err
	}
	if !e.Published {
		return Event{}, ErrNotFound
	}
	return e, nil
}

func (s *Service) GetAdmin(ctx context.Context, actor auth.Actor, id string) (Event, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return Event{}, err
	}
	return s.repo.Get(ctx, id)
}

// Occurrences expands published events, recurring ones included, into
// the instances overlapping [from, to).
func (s *Service) Occurrences(ctx context.Context, from, to time.Time) ([]Occurrence, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("invalid range: %s is not before %s", from, to)
	}
	published := true
	singles, _, err := s.repo.List(ctx, Filter{From: &from, To: &to, Published: &published, Limit: maxListForExpansion})
	if err != nil {
		return nil, err
	}
	recurring, err := s.repo.ListRecurring(ctx, to)
	if err != nil {
		return nil, err
	}

	var out []Occurrence
	seen := make(map[string]bool, len(recurring))
	for _, e := range recurring {
		seen[e.ID] = true
		occ, err := Expand(e, from, to)
		if err != nil {
			s.logger.Warn().Err(err).Str("event_id", e.ID).Msg("skipping event with bad recurrence")
			continue
		}
		out = append(out, occ...)
	}
	for _, e := range singles {
		if seen[e.ID] {
			continue
		}
		occ, _ := Expand(e, from, to)
		out = append(out, occ...)
	}
	sortOccurrences(out)
	return out, nil
}

// parse validates in and builds the event fields it carries.
func (s *Service) parse(in Input) (Event, error) {
	errs := validation.Errors{}
	if err := validation.Struct(in); err != nil {
		verrs, ok := validation.AsErrors(err)
		if !ok {
			return Event{}, err
		}
		errs = verrs
	}

	cat, err := ParseCategory(in.Category)
	if err != nil && in.Category != "" {
		errs.Add("category", "category is not supported")
	}

	start, err := datepicker.ParseValue(in.Start)
	if err != nil {
		errs.Add("start", "start must be YYYY-MM-DD or YYYY-MM-DDTHH:mm")
	}
	end, err := datepicker.ParseValue(in.End)
	if err != nil {
		errs.Add("end", "end must be YYYY-MM-DD or YYYY-MM-DDTHH:mm")
	}

	if in.RRule != "" {
		if _, err := ParseRRule(in.RRule); err != nil {
			errs.Add("rrule", err.Error())
		}
	}
	if len(errs) > 0 {
		return Event{}, errs
	}

	e := Event{
		Title:            sanitize.Text(in.Title),
		DescriptionHTML:  sanitize.HTML(in.Description),
		Category:         cat,
		DepartmentID:     in.DepartmentID,
		Location:         sanitize.Text(in.Location),
		AllDay:           in.AllDay,
		Capacity:         in.Capacity,
		RegistrationOpen: in.RegistrationOpen,
		ImageURL:         in.ImageURL,
		RRule:            strings.TrimSpace(in.RRule),
		Published:        in.Published,
	}

	if in.AllDay {
		e.StartsAt = start.Date.Time(s.loc)
		if !end.Date.IsZero() {
			endsAt := end.Date.AddDays(1).Time(s.loc)
			e.EndsAt = &endsAt
		}
	} else {
		e.StartsAt = start.In(s.loc, datepicker.DefaultStartTime)
		if !end.Date.IsZero() {
			endsAt := end.In(s.loc, datepicker.DefaultEndTime)
			e.EndsAt = &endsAt
		}
	}
	if e.EndsAt != nil && e.EndsAt.Before(e.StartsAt) {
		return Event{}, validation.Errors{"end": "end must not be before start"}
	}
	return e, nil
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in Input) (Event, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return Event{}, err
	}
	e, err := s.parse(in)
	if err != nil {
		return Event{}, err
	}
	now := s.now()
	e.ID = ids.MustULID()
	e.CreatedBy = actor.UserID
	e.CreatedAt = now
	e.UpdatedAt = now

	if err := s.repo.Create(ctx, e); err != nil {
		return Event{}, err
	}
	s.cache.Invalidate(cache.ResourceEvents)
	s.auditLogger.LogSuccess("event.created", actor.Username, "event", e.ID, audit.ClientIPFromContext(ctx), map[string]string{
		"title": e.Title,
	})
	return e, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, in Input) (Event, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return Event{}, err
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	e, err := s.parse(in)
	if err != nil {
		return Event{}, err
	}
	e.ID = existing.ID
	e.CreatedBy = existing.CreatedBy
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, e); err != nil {
		return Event{}, err
	}
	s.cache.Invalidate(cache.ResourceEvents)
	s.auditLogger.LogSuccess("event.updated", actor.Username, "event", e.ID, audit.ClientIPFromContext(ctx), nil)
	return e, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageContent); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(cache.ResourceEvents)
	s.auditLogger.LogSuccess("event.deleted", actor.Username, "event", id, audit.ClientIPFromContext(ctx), nil)
	return nil
}

// Register signs a visitor up for a published, open, upcoming event.
func (s *Service) Register(ctx context.Context, eventID string, in RegistrationInput) (Registration, error) {
	if err := validation.Struct(in); err != nil {
		return Registration{}, err
	}
	e, err := s.repo.Get(ctx, eventID)
	if err != nil {
		return Registration{}, err
	}
	if !e.Published {
		return Registration{}, ErrNotFound
	}
	if !e.RegistrationOpen || !e.StartsAt.After(s.now()) {
		metrics.EventRegistrations.WithLabelValues("closed").Inc()
		return Registration{}, ErrRegistrationClosed
	}

	reg, err := s.repo.Register(ctx, Registration{
		ID:        ids.MustULID(),
		EventID:   e.ID,
		Name:      sanitize.Text(in.Name),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:     strings.TrimSpace(in.Phone),
		Note:      sanitize.Text(in.Note),
		Status:    StatusConfirmed,
		CreatedAt: s.now(),
	})
	switch {
	case errors.Is(err, ErrEventFull):
		metrics.EventRegistrations.WithLabelValues("full").Inc()
		return Registration{}, err
	case errors.Is(err, ErrAlreadyRegistered):
		metrics.EventRegistrations.WithLabelValues("duplicate").Inc()
		return Registration{}, err
	case err != nil:
		return Registration{}, err
	}
	metrics.EventRegistrations.WithLabelValues("ok").Inc()
	s.cache.Invalidate(cache.ResourceEvents)

	if s.notifier != nil {
		if err := s.notifier.RegistrationCreated(ctx, reg); err != nil {
			s.logger.Error().Err(err).Str("registration_id", reg.ID).Msg("failed to queue registration confirmation")
		}
	}
	return reg, nil
}

// CancelOwnRegistration lets a registrant cancel with the link from the
// confirmation email. The email must match the registration.
func (s *Service) CancelOwnRegistration(ctx context.Context, eventID, registrationID, email string) error {
	reg, err := s.repo.GetRegistration(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg.EventID != eventID || !strings.EqualFold(reg.Email, strings.TrimSpace(email)) {
		return ErrRegistrationNotFound
	}
	return s.cancel(ctx, eventID, registrationID)
}

func (s *Service) CancelRegistration(ctx context.Context, actor auth.Actor, eventID, registrationID string) error {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageRegistrations); err != nil {
		return err
	}
	if err := s.cancel(ctx, eventID, registrationID); err != nil {
		return err
	}
	s.auditLogger.LogSuccess("registration.cancelled", actor.Username, "registration", registrationID, audit.ClientIPFromContext(ctx), map[string]string{
		"event_id": eventID,
	})
	return nil
}

func (s *Service) cancel(ctx context.Context, eventID, registrationID string) error {
	if err := s.repo.CancelRegistration(ctx, eventID, registrationID, s.now()); err != nil {
		return err
	}
	metrics.EventRegistrations.WithLabelValues("cancelled").Inc()
	s.cache.Invalidate(cache.ResourceEvents)
	return nil
}

func (s *Service) ListRegistrations(ctx context.Context, actor auth.Actor, eventID string) ([]Registration, error) {
	if err := s.authz.Authorize(ctx, actor, auth.PermManageRegistrations); err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, eventID); err != nil {
		return nil, err
	}
	return s.repo.ListRegistrations(ctx, eventID)
}

// GetRegistration is used by background jobs.
func (s *Service) GetRegistration(ctx context.Context, id string) (Registration, Event, error) {
	reg, err := s.repo.GetRegistration(ctx, id)
	if err != nil {
		return Registration{}, Event{}, err
	}
	e, err := s.repo.Get(ctx, reg.EventID)
	if err != nil {
		return Registration{}, Event{}, err
	}
	return reg, e, nil
}

// RemindersDue lists confirmed registrations for events starting within
// lead of now that have not been reminded yet.
func (s *Service) RemindersDue(ctx context.Context, lead time.Duration) ([]Reminder, error) {
	now := s.now()
	return s.repo.ListReminderDue(ctx, now, now.Add(lead))
}

func (s *Service) MarkReminderSent(ctx context.Context, registrationID string) error {
	return s.repo.MarkReminderSent(ctx, registrationID, s.now())
}
