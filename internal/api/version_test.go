package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionHandler(t *testing.T) {
	tests := []struct {
		name                              string
		version, gitCommit, buildDate     string
		wantVersion, wantCommit, wantDate string
	}{
		{
			name:        "with all values",
			version:     "0.1.0",
			gitCommit:   "abc123def456",
			buildDate:   "2026-01-28T12:00:00Z",
			wantVersion: "0.1.0",
			wantCommit:  "abc123def456",
			wantDate:    "2026-01-28T12:00:00Z",
		},
		{
			name:        "with defaults",
			wantVersion: "dev",
			wantCommit:  "unknown",
			wantDate:    "unknown",
		},
		{
			name:        "with partial values",
			version:     "1.0.0",
			buildDate:   "2026-01-28T12:00:00Z",
			wantVersion: "1.0.0",
			wantCommit:  "unknown",
			wantDate:    "2026-01-28T12:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			VersionHandler(tt.version, tt.gitCommit, tt.buildDate).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var got versionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantVersion, got.Version)
			assert.Equal(t, tt.wantCommit, got.GitCommit)
			assert.Equal(t, tt.wantDate, got.BuildDate)
			assert.Equal(t, runtime.Version(), got.GoVersion)
		})
	}
}
