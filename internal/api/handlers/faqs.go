package handlers

import (
	"context"
	"net/http"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/domain/faqs"
)

type FAQService interface {
	ListPublished(ctx context.Context) ([]faqs.Group, error)
	List(ctx context.Context, actor auth.Actor) ([]faqs.FAQ, error)
	Create(ctx context.Context, actor auth.Actor, in faqs.Input) (faqs.FAQ, error)
	Update(ctx context.Context, actor auth.Actor, id string, in faqs.Input) (faqs.FAQ, error)
	Delete(ctx context.Context, actor auth.Actor, id string) error
	Reorder(ctx context.Context, actor auth.Actor, order []string) error
}

type FAQsHandler struct {
	service FAQService
	env     string
}

func NewFAQsHandler(service FAQService, env string) *FAQsHandler {
	return &FAQsHandler{service: service, env: env}
}

// Published handles GET /api/v1/faqs, grouped by category.
func (h *FAQsHandler) Published(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListPublished(r.Context())
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if groups == nil {
		groups = []faqs.Group{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// List handles GET /api/v1/admin/faqs, drafts included.
func (h *FAQsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), middleware.ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if items == nil {
		items = []faqs.FAQ{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *FAQsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in faqs.Input
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	f, err := h.service.Create(r.Context(), middleware.ActorFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FAQsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	var in faqs.Input
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	f, err := h.service.Update(r.Context(), middleware.ActorFrom(r.Context()), id, in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FAQsHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

type reorderRequest struct {
	IDs []string `json:"ids"`
}

// Reorder handles PUT /api/v1/admin/faqs/order. ids must list every FAQ
// exactly once.
func (h *FAQsHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	if err := h.service.Reorder(r.Context(), middleware.ActorFrom(r.Context()), req.IDs); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
