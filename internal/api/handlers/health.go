package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const checkTimeout = 2 * time.Second

// HealthCheck is the body of GET /health.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthStore is implemented by *postgres.Store.
type HealthStore interface {
	Ping(ctx context.Context) error
	MigrationVersion(ctx context.Context) (int64, bool, error)
	ActiveJobs(ctx context.Context) (int64, error)
}

type HealthChecker struct {
	store       HealthStore
	jobsMissing error
	version     string
	gitCommit   string
	now         func() time.Time
}

// NewHealthChecker builds the health handler. jobsMissing is the error the
// store returns when the job queue tables do not exist yet; the check then
// degrades to a warning.
func NewHealthChecker(store HealthStore, jobsMissing error, version, gitCommit string) *HealthChecker {
	return &HealthChecker{store: store, jobsMissing: jobsMissing, version: version, gitCommit: gitCommit, now: time.Now}
}

// Health serves GET /health. Any failing check makes the response 503;
// warnings only mark the status degraded.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			respondHealth(w, http.StatusServiceUnavailable, "shutting_down")
			return
		default:
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]CheckResult{
			"database":   h.checkDatabase(ctx),
			"migrations": h.checkMigrations(ctx),
			"job_queue":  h.checkJobQueue(ctx),
		}

		overall, code := "healthy", http.StatusOK
		for _, c := range checks {
			if c.Status == "fail" {
				overall, code = "unhealthy", http.StatusServiceUnavailable
				break
			}
			if c.Status == "warn" {
				overall = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: h.now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if h.store == nil {
		return CheckResult{Status: "fail", Message: "Database not initialized"}
	}
	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	err := h.store.Ping(dbCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Database ping failed"
		switch {
		case errors.Is(dbCtx.Err(), context.DeadlineExceeded):
			message = fmt.Sprintf("Database ping timed out after %s", checkTimeout)
		case strings.Contains(err.Error(), "connection refused"):
			message = "Database connection refused"
		case strings.Contains(err.Error(), "authentication failed"):
			message = "Database authentication failed"
		}
		return CheckResult{Status: "fail", Message: message, LatencyMs: latency, Details: map[string]any{"error": err.Error()}}
	}
	return CheckResult{Status: "pass", Message: "PostgreSQL connection successful", LatencyMs: latency}
}

func (h *HealthChecker) checkMigrations(ctx context.Context) CheckResult {
	if h.store == nil {
		return CheckResult{Status: "fail", Message: "Database not initialized"}
	}
	start := time.Now()
	migCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	version, dirty, err := h.store.MigrationVersion(migCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Failed to query migration version"
		if strings.Contains(err.Error(), "does not exist") {
			message = "Migrations table not found"
		}
		return CheckResult{Status: "fail", Message: message, LatencyMs: latency, Details: map[string]any{"error": err.Error()}}
	}
	if dirty {
		return CheckResult{
			Status:    "fail",
			Message:   "Database in dirty migration state",
			LatencyMs: latency,
			Details:   map[string]any{"version": version, "dirty": true},
		}
	}
	return CheckResult{
		Status:    "pass",
		Message:   fmt.Sprintf("Migrations applied (version %d)", version),
		LatencyMs: latency,
		Details:   map[string]any{"version": version, "dirty": false},
	}
}

func (h *HealthChecker) checkJobQueue(ctx context.Context) CheckResult {
	if h.store == nil {
		return CheckResult{Status: "warn", Message: "Job queue not initialized"}
	}
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	active, err := h.store.ActiveJobs(jobCtx)
	latency := time.Since(start).Milliseconds()
	switch {
	case err != nil && h.jobsMissing != nil && errors.Is(err, h.jobsMissing):
		return CheckResult{Status: "warn", Message: "River job queue table not found", LatencyMs: latency}
	case err != nil:
		return CheckResult{Status: "fail", Message: "Failed to query job queue", LatencyMs: latency, Details: map[string]any{"error": err.Error()}}
	}
	return CheckResult{
		Status:    "pass",
		Message:   "River job queue operational",
		LatencyMs: latency,
		Details:   map[string]any{"active_jobs": active},
	}
}

// Healthz is the liveness probe.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ok")
	})
}

// Readyz is the readiness probe: ready once the database answers.
func (h *HealthChecker) Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.store == nil {
			respondHealth(w, http.StatusServiceUnavailable, "not_ready")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			respondHealth(w, http.StatusServiceUnavailable, "not_ready")
			return
		}
		respondHealth(w, http.StatusOK, "ready")
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: value})
}
