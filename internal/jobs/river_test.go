package jobs

import (
	"testing"
	"time"

	"github.com/clubsite/server/internal/config"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetryPolicy(t *testing.T) {
	policy := NewRetryPolicy(7)

	assert.Equal(t, DefaultEmailMaxAttempts, policy.Default.MaxAttempts)
	assert.Equal(t, 30*time.Second, policy.Default.BaseDelay)

	tests := []struct {
		kind        string
		maxAttempts int
		baseDelay   time.Duration
		maxDelay    time.Duration
	}{
		{kind: JobKindRegistrationConfirmation, maxAttempts: 7, baseDelay: 30 * time.Second, maxDelay: 30 * time.Minute},
		{kind: JobKindEventReminder, maxAttempts: 7, baseDelay: 30 * time.Second, maxDelay: 30 * time.Minute},
		{kind: JobKindInvitationCleanup, maxAttempts: CleanupMaxAttempts, baseDelay: 5 * time.Minute, maxDelay: time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg, ok := policy.ByKind[tt.kind]
			require.True(t, ok)
			assert.Equal(t, tt.maxAttempts, cfg.MaxAttempts)
			assert.Equal(t, tt.baseDelay, cfg.BaseDelay)
			assert.Equal(t, tt.maxDelay, cfg.MaxDelay)
		})
	}
}

func TestNewRetryPolicyFallsBackToDefaultAttempts(t *testing.T) {
	policy := NewRetryPolicy(0)

	assert.Equal(t, DefaultEmailMaxAttempts, policy.ByKind[JobKindRegistrationConfirmation].MaxAttempts)
}

func TestRetryPolicyNextRetry(t *testing.T) {
	policy := NewRetryPolicy(5)
	attempted := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		kind    string
		attempt int
		delay   time.Duration
	}{
		{name: "first email retry", kind: JobKindRegistrationConfirmation, attempt: 1, delay: 30 * time.Second},
		{name: "second email retry", kind: JobKindRegistrationConfirmation, attempt: 2, delay: time.Minute},
		{name: "capped email retry", kind: JobKindEventReminder, attempt: 10, delay: 30 * time.Minute},
		{name: "cleanup retry", kind: JobKindInvitationCleanup, attempt: 2, delay: 10 * time.Minute},
		{name: "zero attempt treated as first", kind: "unknown", attempt: 0, delay: 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := policy.NextRetry(&rivertype.JobRow{Kind: tt.kind, Attempt: tt.attempt, AttemptedAt: &attempted})
			assert.Equal(t, tt.delay, next.Sub(attempted))
		})
	}
}

func TestInsertOpts(t *testing.T) {
	policy := NewRetryPolicy(4)

	confirm := policy.InsertOpts(JobKindRegistrationConfirmation)
	assert.Equal(t, 4, confirm.MaxAttempts)
	assert.Equal(t, QueueEmail, confirm.Queue)

	cleanup := policy.InsertOpts(JobKindInvitationCleanup)
	assert.Equal(t, CleanupMaxAttempts, cleanup.MaxAttempts)
	assert.Empty(t, cleanup.Queue)

	var nilPolicy *RetryPolicy
	assert.Equal(t, DefaultEmailMaxAttempts, nilPolicy.InsertOpts("unknown").MaxAttempts)
}

func TestNewClientConfig(t *testing.T) {
	cfg := NewClientConfig(river.NewWorkers(), nil, nil, nil, nil)

	assert.Contains(t, cfg.Queues, river.QueueDefault)
	assert.Contains(t, cfg.Queues, QueueEmail)
	assert.Equal(t, DefaultEmailMaxAttempts, cfg.MaxAttempts)
	assert.Nil(t, cfg.ErrorHandler)
}

func TestParseSchedule(t *testing.T) {
	schedule, err := ParseSchedule("0 8 * * *")
	require.NoError(t, err)

	from := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC), schedule.Next(from))

	_, err = ParseSchedule("every morning")
	require.Error(t, err)
}

func TestNewPeriodicJobs(t *testing.T) {
	policy := NewRetryPolicy(5)

	jobs, err := NewPeriodicJobs(config.JobsConfig{
		ReminderSchedule:          "0 8 * * *",
		ReminderLeadTime:          24 * time.Hour,
		InvitationCleanupSchedule: "@daily",
	}, policy)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = NewPeriodicJobs(config.JobsConfig{ReminderSchedule: "0 8 * * *"}, policy)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "empty schedules are skipped")

	_, err = NewPeriodicJobs(config.JobsConfig{InvitationCleanupSchedule: "61 * * * *"}, policy)
	require.ErrorContains(t, err, "invitation cleanup schedule")
}

func TestJobKindsAreUnique(t *testing.T) {
	kinds := []string{
		RegistrationConfirmationArgs{}.Kind(),
		EventReminderArgs{}.Kind(),
		InvitationCleanupArgs{}.Kind(),
	}

	seen := map[string]bool{}
	for _, kind := range kinds {
		require.NotEmpty(t, kind)
		require.False(t, seen[kind], "duplicate kind %s", kind)
		seen[kind] = true
	}
}
