// Package handlers implements the JSON API and the server-rendered pages.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clubsite/server/internal/api/pagination"
	"github.com/clubsite/server/internal/api/problem"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/cms"
	"github.com/clubsite/server/internal/datepicker"
	"github.com/clubsite/server/internal/domain/departments"
	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/domain/faqs"
	"github.com/clubsite/server/internal/domain/gallery"
	"github.com/clubsite/server/internal/domain/ids"
	"github.com/clubsite/server/internal/domain/users"
	"github.com/clubsite/server/internal/validation"
)

var errInvalidID = errors.New("invalid id")

// ListResponse wraps a page of items. Next and Prev are relative links
// that keep the request's other query parameters.
type ListResponse[T any] struct {
	Items  []T    `json:"items"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Next   string `json:"next,omitempty"`
	Prev   string `json:"prev,omitempty"`
}

func newList[T any](r *http.Request, items []T, total int, page pagination.Page) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	resp := ListResponse[T]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}
	if next := page.Next(total); next != nil {
		resp.Next = r.URL.Path + "?" + next.Query(r.URL.Query())
	}
	if prev := page.Prev(); prev != nil {
		resp.Prev = r.URL.Path + "?" + prev.Query(r.URL.Query())
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a single JSON object, rejecting unknown fields and
// trailing data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("decode body: unexpected data after JSON object")
	}
	return nil
}

// pathID reads a ULID path value.
func pathID(r *http.Request, name string) (string, error) {
	id, err := ids.NormalizeULID(strings.TrimSpace(r.PathValue(name)))
	if err != nil {
		return "", fmt.Errorf("%w: %s", errInvalidID, name)
	}
	return id, nil
}

func badRequest(w http.ResponseWriter, r *http.Request, err error, env string) {
	problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, env)
}

// writeError maps domain and transport errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	if verrs, ok := validation.AsErrors(err); ok {
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation, "Validation failed", err, env,
			problem.WithDetail("One or more fields are invalid."), problem.WithErrors(verrs))
		return
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Request too large", err, env)
		return
	}
	var cmsErr *cms.QueryError
	if errors.As(err, &cmsErr) {
		problem.Write(w, r, http.StatusBadGateway, problem.TypeUpstream, "Content service unavailable", err, env)
		return
	}

	status, typ, title := classify(err)
	problem.Write(w, r, status, typ, title, err, env)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, problem.TypeForbidden, "Forbidden"

	case errors.Is(err, events.ErrNotFound), errors.Is(err, events.ErrRegistrationNotFound),
		errors.Is(err, departments.ErrNotFound), errors.Is(err, faqs.ErrNotFound),
		errors.Is(err, gallery.ErrNotFound), errors.Is(err, users.ErrNotFound), errors.Is(err, cms.ErrNotFound):
		return http.StatusNotFound, problem.TypeNotFound, "Not found"

	case errors.Is(err, events.ErrEventFull), errors.Is(err, events.ErrAlreadyRegistered),
		errors.Is(err, events.ErrRegistrationClosed), errors.Is(err, departments.ErrSlugTaken),
		errors.Is(err, departments.ErrHasEvents), errors.Is(err, users.ErrEmailTaken),
		errors.Is(err, users.ErrUsernameTaken), errors.Is(err, users.ErrSelfModification),
		errors.Is(err, users.ErrLastAdmin), errors.Is(err, users.ErrUserAlreadyActive),
		errors.Is(err, users.ErrUserInactive):
		return http.StatusConflict, problem.TypeConflict, "Conflict"

	case errors.Is(err, errInvalidID), errors.Is(err, pagination.ErrInvalidPage),
		errors.Is(err, events.ErrInvalidCategory), errors.Is(err, events.ErrUnknownDepartment),
		errors.Is(err, faqs.ErrInvalidCategory), errors.Is(err, faqs.ErrReorderMismatch),
		errors.Is(err, auth.ErrInvalidRole), errors.Is(err, users.ErrInvalidToken),
		errors.Is(err, users.ErrPasswordTooShort), errors.Is(err, users.ErrPasswordTooLong),
		errors.Is(err, users.ErrPasswordWeak), errors.Is(err, gallery.ErrEmptyUpload),
		errors.Is(err, datepicker.ErrInvalidDate), errors.Is(err, datepicker.ErrInvalidTime):
		return http.StatusBadRequest, problem.TypeValidation, "Invalid request"

	case errors.Is(err, gallery.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Upload too large"
	case errors.Is(err, gallery.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, problem.TypeUnsupportedType, "Unsupported media type"

	case errors.Is(err, cms.ErrNotConfigured):
		return http.StatusServiceUnavailable, problem.TypeUpstream, "Content service not configured"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, problem.TypeUpstream, "Upstream timeout"
	}
	return http.StatusInternalServerError, problem.TypeServerError, "Server error"
}
