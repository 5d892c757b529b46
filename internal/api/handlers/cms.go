package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/clubsite/server/internal/cms"
)

const maxAnnouncements = 50

var errInvalidLimit = fmt.Errorf("limit must be between 1 and %d", maxAnnouncements)

type ContentService interface {
	Content
	SiteSettings(ctx context.Context) (cms.SiteSettings, error)
}

// ContentHandler exposes the headless CMS documents through the API so
// clients share the server's cache and sanitising.
type ContentHandler struct {
	service ContentService
	env     string
}

func NewContentHandler(service ContentService, env string) *ContentHandler {
	return &ContentHandler{service: service, env: env}
}

// Home handles GET /api/v1/content/home.
func (h *ContentHandler) Home(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.HomePage(r.Context())
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Announcements handles GET /api/v1/content/announcements[?limit=].
func (h *ContentHandler) Announcements(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAnnouncements {
			badRequest(w, r, errInvalidLimit, h.env)
			return
		}
		limit = n
	}
	items, err := h.service.Announcements(r.Context(), limit)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if items == nil {
		items = []cms.Announcement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Albums handles GET /api/v1/content/albums.
func (h *ContentHandler) Albums(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Albums(r.Context())
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if items == nil {
		items = []cms.GalleryAlbum{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Site handles GET /api/v1/content/site.
func (h *ContentHandler) Site(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.SiteSettings(r.Context())
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
