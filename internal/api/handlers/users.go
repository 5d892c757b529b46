package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/api/pagination"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/domain/users"
)

type UserService interface {
	List(ctx context.Context, actor auth.Actor, f users.Filter) ([]users.User, int, error)
	Get(ctx context.Context, actor auth.Actor, id string) (users.User, error)
	CreateAndInvite(ctx context.Context, actor auth.Actor, in users.CreateInput) (users.User, error)
	Update(ctx context.Context, actor auth.Actor, id string, in users.UpdateInput) (users.User, error)
	SetRole(ctx context.Context, actor auth.Actor, id string, role auth.Role) (users.User, error)
	Activate(ctx context.Context, actor auth.Actor, id string) (users.User, error)
	Deactivate(ctx context.Context, actor auth.Actor, id string) (users.User, error)
	Delete(ctx context.Context, actor auth.Actor, id string) error
	ResendInvitation(ctx context.Context, actor auth.Actor, id string) error
}

type UsersHandler struct {
	service UserService
	env     string
}

func NewUsersHandler(service UserService, env string) *UsersHandler {
	return &UsersHandler{service: service, env: env}
}

// List handles GET /api/v1/admin/users[?role=&active=].
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := pagination.Parse(q)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	f := users.Filter{Limit: page.Limit, Offset: page.Offset}
	if raw := q.Get("role"); raw != "" {
		role, err := auth.ParseRole(raw)
		if err != nil {
			writeError(w, r, err, h.env)
			return
		}
		f.Role = &role
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, r, fmt.Errorf("active: %w", err), h.env)
			return
		}
		f.Active = &active
	}

	list, total, err := h.service.List(r.Context(), middleware.ActorFrom(r.Context()), f)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, newList(r, list, total, page))
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	u, err := h.service.Get(r.Context(), middleware.ActorFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Create handles POST /api/v1/admin/users. The account starts inactive
// and an invitation email is sent.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in users.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	u, err := h.service.CreateAndInvite(r.Context(), middleware.ActorFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.Header().Set("Location", "/api/v1/admin/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	var in users.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	u, err := h.service.Update(r.Context(), middleware.ActorFrom(r.Context()), id, in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type roleRequest struct {
	Role string `json:"role"`
}

// SetRole handles PUT /api/v1/admin/users/{id}/role.
func (h *UsersHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	u, err := h.service.SetRole(r.Context(), middleware.ActorFrom(r.Context()), id, role)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Activate handles POST /api/v1/admin/users/{id}/activate.
func (h *UsersHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Activate)
}

// Deactivate handles POST /api/v1/admin/users/{id}/deactivate.
func (h *UsersHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Deactivate)
}

func (h *UsersHandler) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, auth.Actor, string) (users.User, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	u, err := fn(r.Context(), middleware.ActorFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// ResendInvitation handles POST /api/v1/admin/users/{id}/resend-invitation.
func (h *UsersHandler) ResendInvitation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if err := h.service.ResendInvitation(r.Context(), middleware.ActorFrom(r.Context()), id); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
