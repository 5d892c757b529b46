package jobs

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/clubsite/server/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"github.com/robfig/cron/v3"
)

const (
	JobKindRegistrationConfirmation = "registration_confirmation"
	JobKindEventReminder            = "event_reminder"
	JobKindInvitationCleanup        = "invitation_cleanup"
)

const (
	QueueEmail = "email"

	DefaultEmailMaxAttempts = 5
	CleanupMaxAttempts      = 3
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the retry policy for the club jobs. emailAttempts
// bounds both email kinds; values below one fall back to the default.
func NewRetryPolicy(emailAttempts int) *RetryPolicy {
	if emailAttempts < 1 {
		emailAttempts = DefaultEmailMaxAttempts
	}
	email := RetryConfig{
		MaxAttempts: emailAttempts,
		BaseDelay:   30 * time.Second,
		MaxDelay:    30 * time.Minute,
	}
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: DefaultEmailMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindRegistrationConfirmation: email,
			JobKindEventReminder:            email,
			JobKindInvitationCleanup: {
				MaxAttempts: CleanupMaxAttempts,
				BaseDelay:   5 * time.Minute,
				MaxDelay:    1 * time.Hour,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	cfg := p.configFor(job.Kind)
	if cfg.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

// InsertOpts returns insert options for a job kind under this policy.
func (p *RetryPolicy) InsertOpts(kind string) *river.InsertOpts {
	opts := &river.InsertOpts{MaxAttempts: p.configFor(kind).MaxAttempts}
	if kind == JobKindRegistrationConfirmation || kind == JobKindEventReminder {
		opts.Queue = QueueEmail
	}
	return opts
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: DefaultEmailMaxAttempts, BaseDelay: time.Minute, MaxDelay: time.Hour}
	}
	if cfg, ok := p.ByKind[kind]; ok {
		return cfg
	}
	return p.Default
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(workers *river.Workers, policy *RetryPolicy, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) *river.Config {
	if policy == nil {
		policy = NewRetryPolicy(DefaultEmailMaxAttempts)
	}
	cfg := &river.Config{
		Workers:      workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 5},
			// SMTP relays and Resend both throttle bursts.
			QueueEmail: {MaxWorkers: 2},
		},
		Hooks: hooks,
	}
	if logger != nil {
		cfg.Logger = logger
		cfg.ErrorHandler = NewAlertingErrorHandler(logger, nil)
	}
	return cfg
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, policy *RetryPolicy, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, policy, logger, hooks, periodicJobs))
}

// NewInsertOnlyClient creates a client that queues jobs without working
// them. Domain services hold one so they can be built before the workers
// that depend on them.
func NewInsertOnlyClient(pool *pgxpool.Pool, policy *RetryPolicy, hooks []rivertype.Hook) (*river.Client[pgx.Tx], error) {
	if policy == nil {
		policy = NewRetryPolicy(DefaultEmailMaxAttempts)
	}
	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		MaxAttempts: policy.Default.MaxAttempts,
		Hooks:       hooks,
	})
}

// cronSchedule adapts a parsed cron expression to river.PeriodicSchedule.
type cronSchedule struct {
	schedule cron.Schedule
}

func (c cronSchedule) Next(t time.Time) time.Time { return c.schedule.Next(t) }

// ParseSchedule parses a standard five-field cron expression (or a
// descriptor such as "@daily") into a River periodic schedule.
func ParseSchedule(expr string) (river.PeriodicSchedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron schedule %q: %w", expr, err)
	}
	return cronSchedule{schedule: s}, nil
}

// NewPeriodicJobs creates the reminder and invitation cleanup schedules.
// An empty schedule disables the corresponding job.
func NewPeriodicJobs(cfg config.JobsConfig, policy *RetryPolicy) ([]*river.PeriodicJob, error) {
	var periodic []*river.PeriodicJob

	if cfg.ReminderSchedule != "" {
		schedule, err := ParseSchedule(cfg.ReminderSchedule)
		if err != nil {
			return nil, fmt.Errorf("reminder schedule: %w", err)
		}
		lead := cfg.ReminderLeadTime
		periodic = append(periodic, river.NewPeriodicJob(
			schedule,
			func() (river.JobArgs, *river.InsertOpts) {
				return EventReminderArgs{LeadTime: lead}, policy.InsertOpts(JobKindEventReminder)
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		))
	}

	if cfg.InvitationCleanupSchedule != "" {
		schedule, err := ParseSchedule(cfg.InvitationCleanupSchedule)
		if err != nil {
			return nil, fmt.Errorf("invitation cleanup schedule: %w", err)
		}
		periodic = append(periodic, river.NewPeriodicJob(
			schedule,
			func() (river.JobArgs, *river.InsertOpts) {
				return InvitationCleanupArgs{}, policy.InsertOpts(JobKindInvitationCleanup)
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		))
	}

	return periodic, nil
}
