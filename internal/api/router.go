// Package api wires the HTTP surface: the JSON API, the public site, the
// back office and the operational endpoints.
package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/clubsite/server/internal/api/handlers"
	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/api/problem"
	"github.com/clubsite/server/internal/api/render"
	"github.com/clubsite/server/internal/audit"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/calendar"
	"github.com/clubsite/server/internal/config"
	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/metrics"
	"github.com/clubsite/server/internal/storage/blob"
	"github.com/clubsite/server/web"
	"github.com/rs/zerolog"
)

// EventService is everything the router needs from events.Service.
type EventService interface {
	handlers.EventService
	Upcoming(ctx context.Context, limit int) ([]events.Event, error)
}

type UserService interface {
	handlers.UserService
	handlers.Credentials
}

// Dependencies are the services and infrastructure the router mounts.
type Dependencies struct {
	Config      config.Config
	Logger      zerolog.Logger
	Renderer    *render.Renderer
	Tokens      *auth.JWTManager
	Audit       *audit.Logger
	RateLimiter *middleware.RateLimiter

	Events      EventService
	Departments handlers.DepartmentService
	FAQs        handlers.FAQService
	Gallery     handlers.GalleryService
	Users       UserService
	Content     handlers.ContentService
	Calendar    handlers.CalendarService
	Blobs       blob.Store

	Health      handlers.HealthStore
	JobsMissing error

	Version   string
	GitCommit string
	BuildDate string
}

// NewRouter builds the full handler chain. The metrics middleware wraps
// the mux directly so it sees the matched pattern.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	env := cfg.Environment
	loc := cfg.Location()
	secure := cfg.IsProduction()
	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(cfg.RateLimit)
	}

	authHandler := handlers.NewAuthHandler(deps.Users, deps.Tokens, deps.Audit, secure, env)
	eventsHandler := handlers.NewEventsHandler(deps.Events, loc, env)
	departmentsHandler := handlers.NewDepartmentsHandler(deps.Departments, env)
	faqsHandler := handlers.NewFAQsHandler(deps.FAQs, env)
	galleryHandler := handlers.NewGalleryHandler(deps.Gallery, env)
	usersHandler := handlers.NewUsersHandler(deps.Users, env)
	contentHandler := handlers.NewContentHandler(deps.Content, env)
	calendarHandler := handlers.NewCalendarHandler(deps.Calendar, calendar.FeedOptions{
		Name:    cfg.Site.Name,
		BaseURL: cfg.Server.BaseURL,
		Domain:  hostOf(cfg.Server.BaseURL),
	}, loc, env)
	health := handlers.NewHealthChecker(deps.Health, deps.JobsMissing, deps.Version, deps.GitCommit)

	pages := handlers.NewPublicPages(handlers.PublicPagesDeps{
		Renderer:    deps.Renderer,
		Events:      deps.Events,
		Content:     deps.Content,
		Departments: deps.Departments,
		FAQs:        deps.FAQs,
		Media:       deps.Gallery,
		Calendar:    deps.Calendar,
		Location:    loc,
	})
	adminPages := handlers.NewAdminPages(deps.Renderer, authHandler, deps.Events, deps.Departments, loc)
	widget := handlers.NewDatePickerWidgetHandler(deps.Renderer, loc, env)

	csrf := middleware.CSRFProtection(csrfKey(cfg.Auth), secure, env)
	public := limiter.Middleware
	admin := chain(middleware.RequireAPI(env), limiter.Tier(middleware.TierAdmin), middleware.AdminRequestSize())
	adminPage := chain(csrf, middleware.RequirePage, limiter.Tier(middleware.TierAdmin), middleware.AdminRequestSize())
	page := chain(csrf, public, middleware.PublicRequestSize())
	jsonBody := chain(public, middleware.PublicRequestSize())

	mux := http.NewServeMux()

	// Operational endpoints.
	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", health.Readyz())
	mux.Handle("GET /health", health.Health())
	mux.Handle("GET /version", VersionHandler(deps.Version, deps.GitCommit, deps.BuildDate))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /api/v1/openapi.json", OpenAPIHandler())
	mux.Handle("GET /api/v1/openapi.yaml", OpenAPIHandler())
	mux.Handle("GET /static/", web.StaticHandler())
	mux.Handle("GET /robots.txt", web.RobotsTxtHandler())
	mux.Handle("GET /calendar.ics", public(http.HandlerFunc(calendarHandler.ICS)))
	if deps.Blobs != nil && deps.Blobs.Backend() == "disk" {
		mux.Handle("GET /uploads/{key...}", public(handlers.Uploads(deps.Blobs)))
	}

	// Public JSON API.
	mux.Handle("GET /api/v1/events", public(http.HandlerFunc(eventsHandler.List)))
	mux.Handle("GET /api/v1/events/{id}", public(http.HandlerFunc(eventsHandler.Get)))
	mux.Handle("GET /api/v1/occurrences", public(http.HandlerFunc(eventsHandler.Occurrences)))
	mux.Handle("POST /api/v1/events/{id}/registrations",
		chain(limiter.Tier(middleware.TierRegistration), middleware.PublicRequestSize())(http.HandlerFunc(eventsHandler.Register)))
	mux.Handle("POST /api/v1/events/{id}/registrations/{registrationID}/cancel", jsonBody(http.HandlerFunc(eventsHandler.CancelOwn)))
	mux.Handle("GET /api/v1/departments", public(http.HandlerFunc(departmentsHandler.List)))
	mux.Handle("GET /api/v1/departments/{slug}", public(http.HandlerFunc(departmentsHandler.GetBySlug)))
	mux.Handle("GET /api/v1/faqs", public(http.HandlerFunc(faqsHandler.Published)))
	mux.Handle("GET /api/v1/gallery", public(http.HandlerFunc(galleryHandler.List)))
	mux.Handle("GET /api/v1/calendar", public(http.HandlerFunc(calendarHandler.Month)))
	mux.Handle("GET /api/v1/content/home", public(http.HandlerFunc(contentHandler.Home)))
	mux.Handle("GET /api/v1/content/announcements", public(http.HandlerFunc(contentHandler.Announcements)))
	mux.Handle("GET /api/v1/content/albums", public(http.HandlerFunc(contentHandler.Albums)))
	mux.Handle("GET /api/v1/content/site", public(http.HandlerFunc(contentHandler.Site)))

	// Authentication.
	login := chain(limiter.Tier(middleware.TierLogin), middleware.PublicRequestSize())
	mux.Handle("POST /api/v1/auth/login", login(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/v1/auth/logout", jsonBody(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("POST /api/v1/invitations/accept", login(http.HandlerFunc(authHandler.AcceptInvitation)))

	// Admin JSON API.
	mux.Handle("GET /api/v1/admin/events", admin(http.HandlerFunc(eventsHandler.AdminList)))
	mux.Handle("POST /api/v1/admin/events", admin(http.HandlerFunc(eventsHandler.Create)))
	mux.Handle("GET /api/v1/admin/events/{id}", admin(http.HandlerFunc(eventsHandler.AdminGet)))
	mux.Handle("PUT /api/v1/admin/events/{id}", admin(http.HandlerFunc(eventsHandler.Update)))
	mux.Handle("DELETE /api/v1/admin/events/{id}", admin(http.HandlerFunc(eventsHandler.Delete)))
	mux.Handle("GET /api/v1/admin/events/{id}/registrations", admin(http.HandlerFunc(eventsHandler.Registrations)))
	mux.Handle("DELETE /api/v1/admin/events/{id}/registrations/{registrationID}", admin(http.HandlerFunc(eventsHandler.CancelRegistration)))

	mux.Handle("POST /api/v1/admin/departments", admin(http.HandlerFunc(departmentsHandler.Create)))
	mux.Handle("PUT /api/v1/admin/departments/{id}", admin(http.HandlerFunc(departmentsHandler.Update)))
	mux.Handle("DELETE /api/v1/admin/departments/{id}", admin(http.HandlerFunc(departmentsHandler.Delete)))

	mux.Handle("GET /api/v1/admin/faqs", admin(http.HandlerFunc(faqsHandler.List)))
	mux.Handle("POST /api/v1/admin/faqs", admin(http.HandlerFunc(faqsHandler.Create)))
	mux.Handle("PUT /api/v1/admin/faqs/order", admin(http.HandlerFunc(faqsHandler.Reorder)))
	mux.Handle("PUT /api/v1/admin/faqs/{id}", admin(http.HandlerFunc(faqsHandler.Update)))
	mux.Handle("DELETE /api/v1/admin/faqs/{id}", admin(http.HandlerFunc(faqsHandler.Delete)))

	// Uploads get their own size limit; the handler enforces the exact one.
	upload := chain(middleware.RequireAPI(env), limiter.Tier(middleware.TierAdmin), middleware.UploadRequestSize(cfg.Storage.MaxUploadBytes))
	mux.Handle("POST /api/v1/admin/gallery", upload(http.HandlerFunc(galleryHandler.Upload)))
	mux.Handle("DELETE /api/v1/admin/gallery/{id}", admin(http.HandlerFunc(galleryHandler.Delete)))

	mux.Handle("GET /api/v1/admin/users", admin(http.HandlerFunc(usersHandler.List)))
	mux.Handle("POST /api/v1/admin/users", admin(http.HandlerFunc(usersHandler.Create)))
	mux.Handle("GET /api/v1/admin/users/{id}", admin(http.HandlerFunc(usersHandler.Get)))
	mux.Handle("PUT /api/v1/admin/users/{id}", admin(http.HandlerFunc(usersHandler.Update)))
	mux.Handle("DELETE /api/v1/admin/users/{id}", admin(http.HandlerFunc(usersHandler.Delete)))
	mux.Handle("PUT /api/v1/admin/users/{id}/role", admin(http.HandlerFunc(usersHandler.SetRole)))
	mux.Handle("POST /api/v1/admin/users/{id}/activate", admin(http.HandlerFunc(usersHandler.Activate)))
	mux.Handle("POST /api/v1/admin/users/{id}/deactivate", admin(http.HandlerFunc(usersHandler.Deactivate)))
	mux.Handle("POST /api/v1/admin/users/{id}/resend-invitation", admin(http.HandlerFunc(usersHandler.ResendInvitation)))

	mux.Handle("/api/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", nil, env)
	}))

	// Public site.
	mux.Handle("GET /{$}", page(http.HandlerFunc(pages.Home)))
	mux.Handle("GET /faq", page(http.HandlerFunc(pages.FAQ)))
	mux.Handle("GET /departments", page(http.HandlerFunc(pages.Departments)))
	mux.Handle("GET /departments/{slug}", page(http.HandlerFunc(pages.Department)))
	mux.Handle("GET /gallery", page(http.HandlerFunc(pages.Gallery)))
	mux.Handle("GET /calendar", page(http.HandlerFunc(pages.Calendar)))
	mux.Handle("GET /events/{id}", page(http.HandlerFunc(pages.Event)))
	mux.Handle("POST /events/{id}/register",
		chain(csrf, limiter.Tier(middleware.TierRegistration), middleware.PublicRequestSize())(http.HandlerFunc(pages.Register)))
	mux.Handle("GET /events/{id}/cancel", page(http.HandlerFunc(pages.CancelForm)))
	mux.Handle("POST /events/{id}/cancel", page(http.HandlerFunc(pages.Cancel)))

	// Back office.
	loginPage := chain(csrf, limiter.Tier(middleware.TierLogin), middleware.PublicRequestSize())
	mux.Handle("GET /admin/login", page(http.HandlerFunc(adminPages.LoginForm)))
	mux.Handle("POST /admin/login", loginPage(http.HandlerFunc(adminPages.Login)))
	mux.Handle("POST /admin/logout", page(http.HandlerFunc(adminPages.Logout)))
	mux.Handle("GET /admin", adminPage(http.HandlerFunc(adminPages.Dashboard)))
	mux.Handle("GET /admin/events/new", adminPage(http.HandlerFunc(adminPages.NewEvent)))
	mux.Handle("POST /admin/events/new", adminPage(http.HandlerFunc(adminPages.NewEvent)))
	mux.Handle("POST /admin/events", adminPage(http.HandlerFunc(adminPages.CreateEvent)))
	mux.Handle("GET /admin/widgets/datepicker", adminPage(http.HandlerFunc(widget.Widget)))

	mux.Handle("/", page(http.HandlerFunc(pages.NotFound)))

	return chain(
		middleware.Recover,
		middleware.CorrelationID(deps.Logger),
		middleware.Tracing,
		middleware.RequestLogging(deps.Logger),
		middleware.SecurityHeaders(secure),
		middleware.AuditContext(deps.Audit),
		middleware.Authenticate(deps.Tokens),
	)(metrics.HTTPMiddleware(middleware.RecordRoute(mux)))
}

// chain applies middleware so that the first one listed runs first.
func chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// NewServer applies the timeouts every deployment uses.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// hostOf qualifies calendar UIDs.
func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	return u.Hostname()
}

// csrfKey returns the configured CSRF key, or one derived from the JWT
// secret when none is set.
func csrfKey(cfg config.AuthConfig) []byte {
	if cfg.CSRFKey != "" {
		return []byte(cfg.CSRFKey)
	}
	key, err := auth.DeriveCSRFKey([]byte(cfg.JWTSecret))
	if err != nil {
		return nil
	}
	return key
}
