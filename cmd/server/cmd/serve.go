package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/clubsite/server/internal/api"
	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/api/render"
	"github.com/clubsite/server/internal/audit"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/cache"
	"github.com/clubsite/server/internal/calendar"
	"github.com/clubsite/server/internal/cms"
	"github.com/clubsite/server/internal/config"
	"github.com/clubsite/server/internal/domain/departments"
	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/domain/faqs"
	"github.com/clubsite/server/internal/domain/gallery"
	"github.com/clubsite/server/internal/domain/users"
	"github.com/clubsite/server/internal/email"
	"github.com/clubsite/server/internal/jobs"
	"github.com/clubsite/server/internal/metrics"
	"github.com/clubsite/server/internal/storage/blob"
	"github.com/clubsite/server/internal/storage/postgres"
	"github.com/clubsite/server/internal/telemetry"
	"github.com/clubsite/server/web"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	tokenIssuer     = "clubsite"
	shutdownTimeout = 10 * time.Second
)

// serveOptions override the server address from config.
type serveOptions struct {
	host string
	port int
}

func newServeCommand(opts *globalOptions, serve *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and background workers",
		Long: `Start the HTTP server and begin accepting requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Bootstrap an admin user if ADMIN_* env vars are set
- Start the River job workers when JOBS_ENABLED is true
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts, serve)
		},
	}
	cmd.Flags().StringVar(&serve.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&serve.port, "port", 0, "server port (default: 8080)")
	return cmd
}

// services is everything built from config before the router is mounted.
type services struct {
	store       *postgres.Store
	cache       *cache.Store
	audit       *audit.Logger
	mailer      *email.Service
	users       *users.Service
	events      *events.Service
	departments *departments.Service
	faqs        *faqs.Service
	gallery     *gallery.Service
	content     *cms.Service
	calendar    *calendar.Service
	blobs       blob.Store
}

func runServer(ctx context.Context, opts *globalOptions, serve *serveOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serve.host != "" {
		cfg.Server.Host = serve.host
	}
	if serve.port != 0 {
		cfg.Server.Port = serve.port
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting club server")
	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	poolCtx, poolCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.Open(poolCtx, cfg.Database)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	background, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go metrics.NewDBCollector(pool).Run(background, 15*time.Second)

	policy := jobs.NewRetryPolicy(cfg.Jobs.RetryEmail)
	hooks := []rivertype.Hook{metrics.NewRiverMetricsHook()}

	var eventOpts []events.Option
	if cfg.Jobs.Enabled {
		inserter, err := jobs.NewInsertOnlyClient(pool, policy, hooks)
		if err != nil {
			return fmt.Errorf("job insert client: %w", err)
		}
		eventOpts = append(eventOpts, events.WithNotifier(jobs.NewRegistrationNotifier(inserter, policy)))
	}

	svc, err := buildServices(cfg, pool, logger, eventOpts...)
	if err != nil {
		return err
	}
	go svc.cache.Run(background, time.Minute)

	bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 10*time.Second)
	bootstrapAdminUser(bootstrapCtx, cfg.AdminBootstrap, svc.users, logger)
	bootstrapCancel()

	if cfg.Jobs.Enabled {
		workerClient, err := startWorkers(background, cfg, pool, svc, policy, hooks)
		if err != nil {
			return err
		}
		logger.Info().Msg("river background job workers started")
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := workerClient.Stop(stopCtx); err != nil {
				logger.Error().Err(err).Msg("river workers shutdown error")
				return
			}
			logger.Info().Msg("river workers stopped")
		}()
	} else {
		logger.Warn().Msg("background jobs disabled; registration emails will not be sent")
	}

	renderer, err := render.New(web.Templates(), render.Options{
		Site: render.Site{
			Name:    cfg.Site.Name,
			Locale:  cfg.Site.Locale,
			BaseURL: cfg.Server.BaseURL,
		},
		Location: cfg.Location(),
	})
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	defer limiter.Stop()

	handler := api.NewRouter(api.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Renderer:    renderer,
		Tokens:      auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, tokenIssuer),
		Audit:       svc.audit,
		RateLimiter: limiter,
		Events:      svc.events,
		Departments: svc.departments,
		FAQs:        svc.faqs,
		Gallery:     svc.gallery,
		Users:       svc.users,
		Content:     svc.content,
		Calendar:    svc.calendar,
		Blobs:       svc.blobs,
		Health:      svc.store,
		JobsMissing: postgres.ErrJobQueueMissing,
		Version:     Version,
		GitCommit:   GitCommit,
		BuildDate:   BuildDate,
	})

	server := api.NewServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), handler)
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	return gracefulShutdown(server, logger)
}

// buildServices wires the domain services over one pool and cache.
func buildServices(cfg config.Config, pool *pgxpool.Pool, logger zerolog.Logger, eventOpts ...events.Option) (*services, error) {
	store, err := postgres.NewStore(pool)
	if err != nil {
		return nil, err
	}
	mailer, err := email.NewService(cfg.Email, cfg.Site.Name, logger)
	if err != nil {
		return nil, fmt.Errorf("email service: %w", err)
	}
	blobs, err := blob.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("blob storage: %w", err)
	}

	loc := cfg.Location()
	svc := &services{
		store:  store,
		cache:  cache.New(cfg.CMS.CacheTTL),
		audit:  audit.NewLoggerWithZerolog(logger),
		mailer: mailer,
		blobs:  blobs,
	}
	// users.Service is the authorizer for every other domain.
	svc.users = users.NewService(store.Users(), mailer, svc.audit, cfg.Server.BaseURL, logger)
	svc.events = events.NewService(store.Events(), svc.users, svc.cache, svc.audit, loc, logger, eventOpts...)
	svc.departments = departments.NewService(store.Departments(), svc.users, svc.cache, svc.audit)
	svc.faqs = faqs.NewService(store.FAQs(), svc.users, svc.cache, svc.audit)
	svc.gallery = gallery.NewService(store.Media(), blobs, svc.users, svc.cache, svc.audit, cfg.Storage.MaxUploadBytes)
	svc.calendar = calendar.NewService(svc.events, svc.cache, loc, cfg.Site.Locale)

	cmsOpts := []cms.Option{}
	if cfg.CMS.Timeout > 0 {
		cmsOpts = append(cmsOpts, cms.WithHTTPClient(&http.Client{Timeout: cfg.CMS.Timeout}))
	}
	if cfg.CMS.Token != "" {
		cmsOpts = append(cmsOpts, cms.WithToken(cfg.CMS.Token))
	}
	svc.content = cms.NewService(cms.NewClient(cfg.CMS.BaseURL, cfg.CMS.Dataset, cmsOpts...), svc.cache)
	return svc, nil
}

// startWorkers runs the email and maintenance jobs until ctx is done.
func startWorkers(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, svc *services, policy *jobs.RetryPolicy, hooks []rivertype.Hook) (*river.Client[pgx.Tx], error) {
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	workers := jobs.NewWorkers(jobs.Dependencies{
		Registrations: svc.events,
		Mailer:        svc.mailer,
		Invitations:   svc.users,
		Links:         jobs.Links{BaseURL: cfg.Server.BaseURL},
		Logger:        slogLogger,
	})
	periodic, err := jobs.NewPeriodicJobs(cfg.Jobs, policy)
	if err != nil {
		return nil, fmt.Errorf("periodic jobs: %w", err)
	}
	client, err := jobs.NewClient(pool, workers, policy, slogLogger, hooks, periodic)
	if err != nil {
		return nil, fmt.Errorf("river client: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("river workers failed to start: %w", err)
	}
	return client, nil
}

// AdminCreator is the part of users.Service the bootstrap needs.
type AdminCreator interface {
	CreateAdmin(ctx context.Context, username, email, password string) (users.User, error)
}

// bootstrapAdminUser creates the configured admin once. An existing user
// with the same name or email is left untouched.
func bootstrapAdminUser(ctx context.Context, cfg config.AdminBootstrapConfig, creator AdminCreator, logger zerolog.Logger) {
	if cfg.Username == "" || cfg.Password == "" || cfg.Email == "" {
		logger.Debug().Msg("admin bootstrap env vars not fully set; skipping")
		return
	}
	u, err := creator.CreateAdmin(ctx, cfg.Username, cfg.Email, cfg.Password)
	switch {
	case err == nil:
		logger.Info().Str("user_id", u.ID).Str("username", u.Username).Msg("bootstrapped admin user")
	case errors.Is(err, users.ErrUsernameTaken), errors.Is(err, users.ErrEmailTaken):
		logger.Debug().Str("username", cfg.Username).Msg("admin user already exists")
	default:
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
