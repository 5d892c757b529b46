package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/clubsite/server/internal/domain/ids"
	"github.com/rs/zerolog"
)

type requestIDKey struct{}

// requestIDHeaders are checked in order for an id set by a proxy.
var requestIDHeaders = []string{"X-Request-ID", "X-Correlation-ID"}

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// CorrelationID tags each request with an id and stores a request logger
// carrying it in the context. A proxy-supplied id is kept when it is
// well formed.
func CorrelationID(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := incomingRequestID(r)
			if id == "" {
				id = ids.NewRequestID()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			ctx = logger.With().Str("request_id", id).Logger().WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func incomingRequestID(r *http.Request) string {
	for _, h := range requestIDHeaders {
		if v := r.Header.Get(h); requestIDPattern.MatchString(v) {
			return v
		}
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LoggerFromContext returns the request logger, or a no-op logger outside
// of CorrelationID.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		noop := zerolog.Nop()
		return &noop
	}
	return logger
}
