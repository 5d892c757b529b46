package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

var (
	RiverJobsQueued = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "queued_total",
			Help:      "Background jobs inserted, by kind",
		},
		[]string{"kind"},
	)

	RiverJobsInFlight = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "in_flight",
			Help:      "Background jobs currently executing, by kind",
		},
		[]string{"kind"},
	)

	RiverJobDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of one job attempt",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60},
		},
		[]string{"kind"},
	)

	// RiverJobsCompleted counts attempts by outcome: success, retry or
	// discarded once the last attempt fails.
	RiverJobsCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "attempts_total",
			Help:      "Finished job attempts by kind and outcome",
		},
		[]string{"kind", "result"},
	)
)

// RiverMetricsHook implements River's insert and work hooks. It is
// stateless; attempt timing comes from the job row.
type RiverMetricsHook struct {
	river.HookDefaults
	now func() time.Time
}

func NewRiverMetricsHook() *RiverMetricsHook {
	return &RiverMetricsHook{now: time.Now}
}

func (h *RiverMetricsHook) InsertBegin(_ context.Context, params *rivertype.JobInsertParams) error {
	RiverJobsQueued.WithLabelValues(params.Kind).Inc()
	return nil
}

func (h *RiverMetricsHook) WorkBegin(_ context.Context, job *rivertype.JobRow) error {
	RiverJobsInFlight.WithLabelValues(job.Kind).Inc()
	return nil
}

func (h *RiverMetricsHook) WorkEnd(_ context.Context, job *rivertype.JobRow, err error) error {
	RiverJobsInFlight.WithLabelValues(job.Kind).Dec()
	if job.AttemptedAt != nil {
		RiverJobDuration.WithLabelValues(job.Kind).Observe(h.now().Sub(*job.AttemptedAt).Seconds())
	}
	RiverJobsCompleted.WithLabelValues(job.Kind, attemptResult(job, err)).Inc()
	return nil
}

func attemptResult(job *rivertype.JobRow, err error) string {
	switch {
	case err == nil:
		return "success"
	case job.MaxAttempts > 0 && job.Attempt >= job.MaxAttempts:
		return "discarded"
	default:
		return "retry"
	}
}
