package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/domain/gallery"
)

// multipartMemory is held in memory before ParseMultipartForm spills to disk.
const multipartMemory = 1 << 20

type GalleryService interface {
	List(ctx context.Context, album string) ([]gallery.MediaItem, error)
	Upload(ctx context.Context, actor auth.Actor, in gallery.UploadInput, body io.Reader) (gallery.MediaItem, error)
	Delete(ctx context.Context, actor auth.Actor, id string) error
	MaxBytes() int64
}

type GalleryHandler struct {
	service GalleryService
	env     string
}

func NewGalleryHandler(service GalleryService, env string) *GalleryHandler {
	return &GalleryHandler{service: service, env: env}
}

// List handles GET /api/v1/gallery[?album=slug], newest first.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("album")))
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if items == nil {
		items = []gallery.MediaItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Upload handles POST /api/v1/admin/gallery as multipart/form-data with
// a "file" part plus "album" and "caption" fields.
func (h *GalleryHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxBytes()+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, gallery.ErrTooLarge, h.env)
			return
		}
		badRequest(w, r, fmt.Errorf("parse multipart form: %w", err), h.env)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("file")
	if err != nil {
		badRequest(w, r, fmt.Errorf("file: %w", err), h.env)
		return
	}
	defer func() { _ = file.Close() }()

	in := gallery.UploadInput{
		Album:   strings.TrimSpace(r.FormValue("album")),
		Caption: r.FormValue("caption"),
	}
	item, err := h.service.Upload(r.Context(), middleware.ActorFrom(r.Context()), in, file)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.Header().Set("Location", item.URL)
	writeJSON(w, http.StatusCreated, item)
}

func (h *GalleryHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
