package web

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesLayout(t *testing.T) {
	fsys := Templates()
	_, err := fs.Stat(fsys, "layout.html")
	require.NoError(t, err)

	pages, err := fs.Glob(fsys, "pages/*.html")
	require.NoError(t, err)
	assert.Contains(t, pages, "pages/home.html")
	assert.Contains(t, pages, "pages/admin_event_form.html")
}

func TestRobotsTxt(t *testing.T) {
	rec := httptest.NewRecorder()
	RobotsTxtHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Disallow: /admin/")
}

func TestStaticHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	StaticHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/site.css", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	assert.NotEmpty(t, rec.Header().Get("Cache-Control"))
}
