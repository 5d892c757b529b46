package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// drain reads the whole body and reports 413 when the reader gives up.
func drain(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			var tooBig *http.MaxBytesError
			assert.ErrorAs(t, err, &tooBig)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestSizeLimits(t *testing.T) {
	tests := []struct {
		name string
		mw   func(http.Handler) http.Handler
		size int64
		want int
	}{
		{"public at limit", PublicRequestSize(), DefaultMaxBodySize, http.StatusOK},
		{"public over limit", PublicRequestSize(), DefaultMaxBodySize + 1, http.StatusRequestEntityTooLarge},
		{"admin at limit", AdminRequestSize(), AdminMaxBodySize, http.StatusOK},
		{"admin over limit", AdminRequestSize(), AdminMaxBodySize + 1, http.StatusRequestEntityTooLarge},
		{"upload with envelope", UploadRequestSize(2048), 2048 + 1024, http.StatusOK},
		{"upload too large", UploadRequestSize(2048), 2048 + uploadOverhead + 1, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := bytes.Repeat([]byte("x"), int(tt.size))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/events", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			tt.mw(drain(t)).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequestSizeUnknownLength(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/x/registrations", io.NopCloser(strings.NewReader(strings.Repeat("x", 2048))))
	req.ContentLength = -1
	rec := httptest.NewRecorder()

	RequestSize(1024)(drain(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, "streamed bodies are cut off by the reader")
}

func TestRequestSizeNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestSize(1024)(drain(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
