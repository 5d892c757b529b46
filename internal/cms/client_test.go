package cms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clubsite/server/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "production", WithToken("secret"), WithRateLimit(1000))
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "ms": 1})
}

func TestQuerySendsParamsAndToken(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/query/production", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, `*[_type == "x" && slug == $slug]`, r.URL.Query().Get("query"))
		assert.Equal(t, `"yaz-konseri"`, r.URL.Query().Get("$slug"))
		writeResult(w, []string{"ok"})
	})

	raw, err := client.Query(context.Background(), "test", `*[_type == "x" && slug == $slug]`, map[string]any{"slug": "yaz-konseri"})
	require.NoError(t, err)
	assert.JSONEq(t, `["ok"]`, string(raw))
}

func TestQueryErrorResponse(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"description":"expected ']'"}}`))
	})

	_, err := client.Query(context.Background(), "test", "*[", nil)
	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, http.StatusBadRequest, qerr.Status)
	assert.Equal(t, "expected ']'", qerr.Description)
}

func TestQueryNotConfigured(t *testing.T) {
	_, err := NewClient("", "production").Query(context.Background(), "test", "*", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDecodeVariants(t *testing.T) {
	doc, err := Decode(json.RawMessage(`{"_type":"siteSettings","siteName":"Kulüp"}`))
	require.NoError(t, err)
	settings, ok := doc.(SiteSettings)
	require.True(t, ok)
	assert.Equal(t, "Kulüp", settings.SiteName)

	_, err = Decode(json.RawMessage(`{"_type":"recipe"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeListRejectsMixedTypes(t *testing.T) {
	raw := json.RawMessage(`[{"_type":"galleryAlbum","title":"A"},{"_type":"announcement","title":"B"}]`)

	_, err := DecodeList[GalleryAlbum](raw)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestServiceCachesAndSanitizes(t *testing.T) {
	var hits atomic.Int32
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeResult(w, map[string]any{
			"_type":     "homePage",
			"heroTitle": "Hoş geldiniz",
			"introHtml": `<p>Merhaba<script>alert(1)</script></p>`,
		})
	})
	svc := NewService(client, cache.New(time.Minute))

	for range 2 {
		page, err := svc.HomePage(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Hoş geldiniz", page.HeroTitle)
		assert.Equal(t, "<p>Merhaba</p>", page.IntroHTML)
	}
	assert.Equal(t, int32(1), hits.Load())

	svc.Refresh()
	_, err := svc.HomePage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestServiceMissingDocument(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, nil)
	})
	svc := NewService(client, nil)

	_, err := svc.Album(context.Background(), "yok")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceAnnouncements(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("$limit"))
		writeResult(w, []map[string]any{
			{"_type": "announcement", "title": "Genel kurul", "pinned": true, "publishedAt": "2025-05-01T10:00:00Z"},
		})
	})
	svc := NewService(client, nil)

	items, err := svc.Announcements(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Pinned)
	assert.Equal(t, 2025, items[0].PublishedAt.Year())
}
