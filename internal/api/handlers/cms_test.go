package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clubsite/server/internal/cms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockContent struct {
	mock.Mock
}

func (m *mockContent) HomePage(ctx context.Context) (cms.HomePage, error) {
	args := m.Called(ctx)
	return args.Get(0).(cms.HomePage), args.Error(1)
}

func (m *mockContent) Announcements(ctx context.Context, limit int) ([]cms.Announcement, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]cms.Announcement), args.Error(1)
}

func (m *mockContent) Albums(ctx context.Context) ([]cms.GalleryAlbum, error) {
	args := m.Called(ctx)
	return args.Get(0).([]cms.GalleryAlbum), args.Error(1)
}

func (m *mockContent) Album(ctx context.Context, slug string) (cms.GalleryAlbum, error) {
	args := m.Called(ctx, slug)
	return args.Get(0).(cms.GalleryAlbum), args.Error(1)
}

func (m *mockContent) SiteSettings(ctx context.Context) (cms.SiteSettings, error) {
	args := m.Called(ctx)
	return args.Get(0).(cms.SiteSettings), args.Error(1)
}

func TestAnnouncementsLimit(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantStatus int
	}{
		{"", 10, http.StatusOK},
		{"?limit=3", 3, http.StatusOK},
		{"?limit=50", 50, http.StatusOK},
		{"?limit=0", 0, http.StatusBadRequest},
		{"?limit=51", 0, http.StatusBadRequest},
		{"?limit=many", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			svc := &mockContent{}
			svc.On("Announcements", mock.Anything, tt.wantLimit).Return([]cms.Announcement(nil), nil).Maybe()

			rec := httptest.NewRecorder()
			NewContentHandler(svc, "test").Announcements(rec, httptest.NewRequest(http.MethodGet, "/api/v1/content/announcements"+tt.query, nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
				svc.AssertExpectations(t)
			} else {
				assert.Contains(t, rec.Body.String(), errInvalidLimit.Error())
			}
		})
	}
}

func TestContentUpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not configured", cms.ErrNotConfigured, http.StatusServiceUnavailable},
		{"missing document", cms.ErrNotFound, http.StatusNotFound},
		{"query failure", &cms.QueryError{Status: 500, Description: "boom"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockContent{}
			svc.On("HomePage", mock.Anything).Return(cms.HomePage{}, tt.err)

			rec := httptest.NewRecorder()
			NewContentHandler(svc, "test").Home(rec, httptest.NewRequest(http.MethodGet, "/api/v1/content/home", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestContentSiteAndAlbums(t *testing.T) {
	svc := &mockContent{}
	svc.On("SiteSettings", mock.Anything).Return(cms.SiteSettings{SiteName: "Kulüp", ContactEmail: "iletisim@kulup.example.org"}, nil)
	svc.On("Albums", mock.Anything).Return([]cms.GalleryAlbum{{Title: "Bahar", Slug: "bahar"}}, nil)
	h := NewContentHandler(svc, "test")

	rec := httptest.NewRecorder()
	h.Site(rec, httptest.NewRequest(http.MethodGet, "/api/v1/content/site", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Kulüp", decodeBody[cms.SiteSettings](t, rec).SiteName)

	rec = httptest.NewRecorder()
	h.Albums(rec, httptest.NewRequest(http.MethodGet, "/api/v1/content/albums", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slug":"bahar"`)
}
