package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/domain/departments"
)

type DepartmentService interface {
	List(ctx context.Context) ([]departments.Department, error)
	GetBySlug(ctx context.Context, slug string) (departments.Department, error)
	Get(ctx context.Context, id string) (departments.Department, error)
	Create(ctx context.Context, actor auth.Actor, in departments.Input) (departments.Department, error)
	Update(ctx context.Context, actor auth.Actor, id string, in departments.Input) (departments.Department, error)
	Delete(ctx context.Context, actor auth.Actor, id string, force bool) error
}

type DepartmentsHandler struct {
	service DepartmentService
	env     string
}

func NewDepartmentsHandler(service DepartmentService, env string) *DepartmentsHandler {
	return &DepartmentsHandler{service: service, env: env}
}

// List handles GET /api/v1/departments, ordered for display.
func (h *DepartmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if list == nil {
		list = []departments.Department{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

// GetBySlug handles GET /api/v1/departments/{slug}.
func (h *DepartmentsHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DepartmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in departments.Input
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	d, err := h.service.Create(r.Context(), middleware.ActorFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.Header().Set("Location", "/api/v1/departments/"+d.Slug)
	writeJSON(w, http.StatusCreated, d)
}

func (h *DepartmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	var in departments.Input
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	d, err := h.service.Update(r.Context(), middleware.ActorFrom(r.Context()), id, in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Delete handles DELETE /api/v1/admin/departments/{id}[?force=true].
// Without force a department that still has events is kept (409).
func (h *DepartmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		force, err = strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, r, err, h.env)
			return
		}
	}
	if err := h.service.Delete(r.Context(), middleware.ActorFrom(r.Context()), id, force); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
