package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/api/render"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/datepicker"
	"github.com/clubsite/server/web"
	"github.com/stretchr/testify/require"
)

var istanbul = mustLocation("Europe/Istanbul")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// fixedNow is Tuesday 10 March 2026, 10:00 in Istanbul.
func fixedNow() time.Time {
	return time.Date(2026, time.March, 10, 10, 0, 0, 0, istanbul)
}

func newTestRenderer(t *testing.T) *render.Renderer {
	t.Helper()
	r, err := render.New(web.Templates(), render.Options{
		Site:     render.Site{Name: "Kulüp", Locale: "tr", BaseURL: "https://kulup.example.org"},
		Location: istanbul,
	})
	require.NoError(t, err)
	return r
}

var (
	adminActor  = auth.Actor{UserID: "01JADMIN000000000000000000", Username: "selin", Role: auth.RoleAdmin}
	editorActor = auth.Actor{UserID: "01JEDITOR00000000000000000", Username: "deniz", Role: auth.RoleEditor}
)

func asActor(r *http.Request, actor auth.Actor) *http.Request {
	return r.WithContext(middleware.WithActor(r.Context(), actor))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var rd io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rd = bytes.NewBufferString(s)
		} else {
			buf, err := json.Marshal(body)
			require.NoError(t, err)
			rd = bytes.NewReader(buf)
		}
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// problemBody is the subset of an RFC 7807 response the tests inspect.
type problemBody struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

// serve routes one request through a mux with pattern, so path values
// resolve as they do in production.
func serve(pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func mustTime(t *testing.T, s string) datepicker.TimeOfDay {
	t.Helper()
	tod, err := datepicker.ParseTimeOfDay(s)
	require.NoError(t, err)
	return tod
}
