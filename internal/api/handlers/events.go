package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/api/pagination"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/datepicker"
	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/domain/ids"
)

// maxOccurrenceWindow bounds GET /api/v1/occurrences.
const maxOccurrenceWindow = 366 * 24 * time.Hour

type EventService interface {
	List(ctx context.Context, f events.Filter) ([]events.Event, int, error)
	ListAdmin(ctx context.Context, actor auth.Actor, f events.Filter) ([]events.Event, int, error)
	Get(ctx context.Context, id string) (events.Event, error)
	GetAdmin(ctx context.Context, actor auth.Actor, id string) (events.Event, error)
	Occurrences(ctx context.Context, from, to time.Time) ([]events.Occurrence, error)
	Create(ctx context.Context, actor auth.Actor, in events.Input) (events.Event, error)
	Update(ctx context.Context, actor auth.Actor, id string, in events.Input) (events.Event, error)
	Delete(ctx context.Context, actor auth.Actor, id string) error
	Register(ctx context.Context, eventID string, in events.RegistrationInput) (events.Registration, error)
	CancelOwnRegistration(ctx context.Context, eventID, registrationID, email string) error
	CancelRegistration(ctx context.Context, actor auth.Actor, eventID, registrationID string) error
	ListRegistrations(ctx context.Context, actor auth.Actor, eventID string) ([]events.Registration, error)
}

type EventsHandler struct {
	service EventService
	loc     *time.Location
	env     string
}

func NewEventsHandler(service EventService, loc *time.Location, env string) *EventsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &EventsHandler{service: service, loc: loc, env: env}
}

// filterFromQuery reads the list filters shared by the public and admin
// listings. from and to accept picker values or RFC 3339 timestamps.
func (h *EventsHandler) filterFromQuery(q url.Values) (events.Filter, error) {
	page, err := pagination.Parse(q)
	if err != nil {
		return events.Filter{}, err
	}
	f := events.Filter{
		Query:  strings.TrimSpace(q.Get("q")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	if raw := q.Get("from"); raw != "" {
		t, err := parseInstant(raw, h.loc, datepicker.TimeOfDay{})
		if err != nil {
			return events.Filter{}, fmt.Errorf("from: %w", err)
		}
		f.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := parseInstant(raw, h.loc, datepicker.TimeOfDay{Hour: 23, Minute: 59})
		if err != nil {
			return events.Filter{}, fmt.Errorf("to: %w", err)
		}
		f.To = &t
	}
	if raw := strings.TrimSpace(q.Get("department")); raw != "" {
		id, err := ids.NormalizeULID(raw)
		if err != nil {
			return events.Filter{}, fmt.Errorf("%w: department", errInvalidID)
		}
		f.DepartmentID = id
	}
	if raw := q.Get("category"); raw != "" {
		c, err := events.ParseCategory(raw)
		if err != nil {
			return events.Filter{}, err
		}
		f.Category = c
	}
	return f, nil
}

// parseInstant accepts RFC 3339 or a picker value; date-only values take
// the fallback time of day in loc.
func parseInstant(raw string, loc *time.Location, fallback datepicker.TimeOfDay) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	v, err := datepicker.ParseValue(raw)
	if err != nil {
		return time.Time{}, err
	}
	return v.In(loc, fallback), nil
}

func pageOf(f events.Filter) pagination.Page {
	return pagination.Page{Limit: f.Limit, Offset: f.Offset}
}

// List handles GET /api/v1/events.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := h.filterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	items, total, err := h.service.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, newList(r, items, total, pageOf(f)))
}

// Get handles GET /api/v1/events/{id}.
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Occurrences handles GET /api/v1/occurrences?from=&to=, expanding
// recurring events within the window.
func (h *EventsHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		badRequest(w, r, fmt.Errorf("from and to are required"), h.env)
		return
	}
	from, err := parseInstant(q.Get("from"), h.loc, datepicker.TimeOfDay{})
	if err != nil {
		writeError(w, r, fmt.Errorf("from: %w", err), h.env)
		return
	}
	to, err := parseInstant(q.Get("to"), h.loc, datepicker.TimeOfDay{Hour: 23, Minute: 59})
	if err != nil {
		writeError(w, r, fmt.Errorf("to: %w", err), h.env)
		return
	}
	if !to.After(from) || to.Sub(from) > maxOccurrenceWindow {
		badRequest(w, r, fmt.Errorf("to must be after from and within %d days", int(maxOccurrenceWindow.Hours()/24)), h.env)
		return
	}
	occ, err := h.service.Occurrences(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if occ == nil {
		occ = []events.Occurrence{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": occ})
}

// Register handles POST /api/v1/events/{id}/registrations.
func (h *EventsHandler) Register(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	var in events.RegistrationInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	reg, err := h.service.Register(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.Header().Set("Location", "/api/v1/events/"+id+"/registrations/"+reg.ID)
	writeJSON(w, http.StatusCreated, reg)
}

type cancelRequest struct {
	Email string `json:"email"`
}

// CancelOwn handles POST /api/v1/events/{id}/registrations/{registrationID}/cancel.
func (h *EventsHandler) CancelOwn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	regID, err := pathID(r, "registrationID")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	if err := h.service.CancelOwnRegistration(r.Context(), id, regID, req.Email); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminList handles GET /api/v1/admin/events; drafts are included unless
// published is given.
func (h *EventsHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := h.filterFromQuery(q)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if raw := q.Get("published"); raw != "" {
		published, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, r, fmt.Errorf("published: %w", err), h.env)
			return
		}
		f.Published = &published
	}
	items, total, err := h.service.ListAdmin(r.Context(), middleware.ActorFrom(r.Context()), f)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, newList(r, items, total, pageOf(f)))
}

func (h *EventsHandler) AdminGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	e, err := h.service.GetAdmin(r.Context(), middleware.ActorFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in events.Input
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	e, err := h.service.Create(r.Context(), middleware.ActorFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.Header().Set("Location", "/api/v1/admin/events/"+e.ID)
	writeJSON(w, http.StatusCreated, e)
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	var in events.Input
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	e, err := h.service.Update(r.Context(), middleware.ActorFrom(r.Context()), id, in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if err := h.service.Delete(r.Context(), middleware.ActorFrom(r.Context()), id); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Registrations handles GET /api/v1/admin/events/{id}/registrations.
func (h *EventsHandler) Registrations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	regs, err := h.service.ListRegistrations(r.Context(), middleware.ActorFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if regs == nil {
		regs = []events.Registration{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": regs, "total": len(regs)})
}

// CancelRegistration handles DELETE /api/v1/admin/events/{id}/registrations/{registrationID}.
func (h *EventsHandler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	regID, err := pathID(r, "registrationID")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if err := h.service.CancelRegistration(r.Context(), middleware.ActorFrom(r.Context()), id, regID); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
