package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/api/render"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/config"
	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/web"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// stubEvents embeds the interface so tests only implement what they call.
type stubEvents struct {
	EventService
	listed events.Filter
}

func (s *stubEvents) ListAdmin(ctx context.Context, actor auth.Actor, f events.Filter) ([]events.Event, int, error) {
	s.listed = f
	return []events.Event{{ID: "01JEVENT00000000000000000A", Title: "Bahar konseri"}}, 1, nil
}

type stubHealth struct{}

func (stubHealth) Ping(context.Context) error                            { return nil }
func (stubHealth) MigrationVersion(context.Context) (int64, bool, error) { return 7, false, nil }
func (stubHealth) ActiveJobs(context.Context) (int64, error)             { return 0, nil }

func testConfig() config.Config {
	return config.Config{
		Environment: "test",
		Server:      config.ServerConfig{BaseURL: "https://kulup.example.org"},
		Site:        config.SiteConfig{Name: "Kulüp", Locale: "tr", Timezone: "Europe/Istanbul"},
		Auth:        config.AuthConfig{JWTSecret: testSecret, JWTExpiry: time.Hour, CSRFKey: testSecret},
		RateLimit: config.RateLimitConfig{
			PublicPerMinute:       1000,
			AdminPerMinute:        1000,
			LoginPer15Minutes:     2,
			RegistrationPerMinute: 5,
		},
		Storage: config.StorageConfig{MaxUploadBytes: 1 << 20},
	}
}

func newTestRouter(t *testing.T, evs *stubEvents) (http.Handler, *auth.JWTManager) {
	t.Helper()
	cfg := testConfig()
	renderer, err := render.New(web.Templates(), render.Options{
		Site:     render.Site{Name: cfg.Site.Name, Locale: cfg.Site.Locale, BaseURL: cfg.Server.BaseURL},
		Location: cfg.Location(),
	})
	require.NoError(t, err)

	tokens := auth.NewJWTManager(testSecret, time.Hour, "clubsite")
	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	t.Cleanup(limiter.Stop)

	deps := Dependencies{
		Config:      cfg,
		Logger:      zerolog.Nop(),
		Renderer:    renderer,
		Tokens:      tokens,
		RateLimiter: limiter,
		Health:      stubHealth{},
		Version:     "1.2.3",
	}
	if evs != nil {
		deps.Events = evs
	}
	return NewRouter(deps), tokens
}

func bearer(t *testing.T, tokens *auth.JWTManager, role auth.Role) string {
	t.Helper()
	token, err := tokens.Generate("01JUSER0000000000000000000", "selin", role)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouterOperationalEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, `"ok"`},
		{"/readyz", http.StatusOK, `"ready"`},
		{"/health", http.StatusOK, `"healthy"`},
		{"/version", http.StatusOK, `"1.2.3"`},
		{"/metrics", http.StatusOK, "clubsite_"},
		{"/robots.txt", http.StatusOK, "Disallow: /admin"},
		{"/api/v1/openapi.json", http.StatusOK, `"openapi"`},
		{"/static/site.css", http.StatusOK, ".datepicker"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestRouterSetsCommonHeaders(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouterUnknownPaths(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestRouterAdminAPIRequiresBackOfficeRole(t *testing.T) {
	evs := &stubEvents{}
	router, tokens := newTestRouter(t, evs)

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"member", bearer(t, tokens, auth.RoleMember), http.StatusForbidden},
		{"editor", bearer(t, tokens, auth.RoleEditor), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/events?published=false", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
	require.NotNil(t, evs.listed.Published)
	assert.False(t, *evs.listed.Published)
}

func TestRouterAdminPagesRedirectToLogin(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/events/new", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login?next=%2Fadmin%2Fevents%2Fnew", rec.Header().Get("Location"))
}

func TestRouterLoginIsRateLimited(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{`))
		req.RemoteAddr = "203.0.113.9:4000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestRouterWrongMethod(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/events", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := chain(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "kulup.example.org", hostOf("https://kulup.example.org/"))
	assert.Equal(t, "localhost", hostOf(""))
}

func TestCSRFKeyFallsBackToDerivedKey(t *testing.T) {
	explicit := csrfKey(config.AuthConfig{JWTSecret: testSecret, CSRFKey: "configured-key"})
	assert.Equal(t, []byte("configured-key"), explicit)

	derived := csrfKey(config.AuthConfig{JWTSecret: testSecret})
	assert.Len(t, derived, auth.DerivedKeyLength)
	assert.NotEqual(t, []byte(testSecret), derived)
}
