package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformHealthCheck(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		responseBody any
		wantStatus   string
		wantErr      string
	}{
		{
			name:         "healthy server",
			statusCode:   http.StatusOK,
			responseBody: HealthResponse{Status: "healthy", Checks: map[string]any{"database": map[string]string{"status": "pass"}}},
			wantStatus:   "healthy",
		},
		{
			name:         "degraded server passes",
			statusCode:   http.StatusOK,
			responseBody: HealthResponse{Status: "degraded"},
			wantStatus:   "degraded",
		},
		{
			name:         "unhealthy server",
			statusCode:   http.StatusServiceUnavailable,
			responseBody: HealthResponse{Status: "unhealthy"},
			wantStatus:   "unhealthy",
			wantErr:      "status 503",
		},
		{
			name:         "unknown status",
			statusCode:   http.StatusOK,
			responseBody: HealthResponse{Status: "confused"},
			wantStatus:   "confused",
			wantErr:      "status=confused",
		},
		{
			name:         "invalid response",
			statusCode:   http.StatusOK,
			responseBody: "not json",
			wantErr:      "parse health response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if s, ok := tt.responseBody.(string); ok {
					fmt.Fprint(w, s)
					return
				}
				_ = json.NewEncoder(w).Encode(tt.responseBody)
			}))
			defer server.Close()

			status, err := performHealthCheck(context.Background(), server.URL, time.Second)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestPerformHealthCheckTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	_, err := performHealthCheck(context.Background(), server.URL, 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestHealthcheckCommandPrintsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
	}))
	defer server.Close()

	out, err := execute(t, "healthcheck", "--url", server.URL+"/health", "--timeout", "1s")
	require.NoError(t, err)
	assert.Contains(t, out, "status: healthy")
}
