package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	Init("1.2.3", "abc123", "2025-06-01")

	assert.Equal(t, 1.0, testutil.ToFloat64(AppInfo.WithLabelValues("1.2.3", "abc123", "2025-06-01")))
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events/{slug}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := HTTPMiddleware(mux)

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /events/{slug}", "4xx"))
	for _, slug := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/"+slug, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /events/{slug}", "4xx"))
	assert.Equal(t, 3.0, after-before)
}

func TestHTTPMiddlewareUnmatchedAndDefaultStatus(t *testing.T) {
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "unmatched", "2xx"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "unmatched", "2xx"))-before)
	assert.Equal(t, 0.0, testutil.ToFloat64(HTTPRequestsInFlight))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusNoContent))
	assert.Equal(t, "5xx", statusClass(http.StatusBadGateway))
	assert.Equal(t, "unknown", statusClass(0))
}

func TestHandlerExposesRegistry(t *testing.T) {
	Init("dev", "none", "unknown")
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "clubsite_app_info"))
}

func TestRecordQuery(t *testing.T) {
	before := testutil.ToFloat64(DBErrors.WithLabelValues("test_op", "canceled"))
	RecordQuery("test_op", time.Now(), nil)
	RecordQuery("test_op", time.Now(), context.Canceled)
	RecordQuery("test_op", time.Now(), errors.Join(errors.New("wrapped"), context.DeadlineExceeded))

	assert.Equal(t, 1.0, testutil.ToFloat64(DBErrors.WithLabelValues("test_op", "canceled"))-before)
	assert.GreaterOrEqual(t, testutil.ToFloat64(DBErrors.WithLabelValues("test_op", "timeout")), 1.0)
}

func TestQueryErrorKind(t *testing.T) {
	assert.Empty(t, queryErrorKind(nil))
	assert.Empty(t, queryErrorKind(fmt.Errorf("get event: %w", pgx.ErrNoRows)))
	assert.Equal(t, "timeout", queryErrorKind(context.DeadlineExceeded))
	assert.Equal(t, "query", queryErrorKind(errors.New("syntax error")))
}

func TestDBCollectorNilPool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NotPanics(t, func() { NewDBCollector(nil).Run(ctx, time.Millisecond) })
}

func TestRiverMetricsHook(t *testing.T) {
	hook := NewRiverMetricsHook()
	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	hook.now = func() time.Time { return started.Add(2 * time.Second) }
	ctx := context.Background()
	job := &rivertype.JobRow{ID: 42, Kind: "test_kind", Attempt: 1, MaxAttempts: 3, AttemptedAt: &started}

	require.NoError(t, hook.InsertBegin(ctx, &rivertype.JobInsertParams{Kind: "test_kind"}))
	require.NoError(t, hook.WorkBegin(ctx, job))
	assert.Equal(t, 1.0, testutil.ToFloat64(RiverJobsInFlight.WithLabelValues("test_kind")))

	require.NoError(t, hook.WorkEnd(ctx, job, errors.New("boom")))
	assert.Equal(t, 0.0, testutil.ToFloat64(RiverJobsInFlight.WithLabelValues("test_kind")))
	assert.Equal(t, 1.0, testutil.ToFloat64(RiverJobsCompleted.WithLabelValues("test_kind", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(RiverJobsQueued.WithLabelValues("test_kind")))
}

func TestAttemptResult(t *testing.T) {
	assert.Equal(t, "success", attemptResult(&rivertype.JobRow{Attempt: 3, MaxAttempts: 3}, nil))
	assert.Equal(t, "retry", attemptResult(&rivertype.JobRow{Attempt: 1, MaxAttempts: 3}, errors.New("x")))
	assert.Equal(t, "discarded", attemptResult(&rivertype.JobRow{Attempt: 3, MaxAttempts: 3}, errors.New("x")))
}
