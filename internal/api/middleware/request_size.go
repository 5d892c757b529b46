package middleware

import (
	"net/http"
)

const (
	DefaultMaxBodySize int64 = 1 << 20
	AdminMaxBodySize   int64 = 5 << 20
	// uploadOverhead covers multipart headers and form fields around the file.
	uploadOverhead int64 = 64 << 10
)

// RequestSize caps request bodies with http.MaxBytesReader; handlers see
// *http.MaxBytesError once the limit is crossed.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Connection", "close")
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func PublicRequestSize() func(http.Handler) http.Handler {
	return RequestSize(DefaultMaxBodySize)
}

func AdminRequestSize() func(http.Handler) http.Handler {
	return RequestSize(AdminMaxBodySize)
}

// UploadRequestSize admits a file of maxFile bytes plus the multipart envelope.
func UploadRequestSize(maxFile int64) func(http.Handler) http.Handler {
	return RequestSize(maxFile + uploadOverhead)
}
