package middleware

import (
	"net/http"

	"github.com/clubsite/server/internal/audit"
)

// AuditContext makes the audit logger and the caller's address available
// to services that only see a context.
func AuditContext(logger *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := audit.WithClientIP(r.Context(), audit.ClientIP(r))
			if logger != nil {
				ctx = audit.WithLogger(ctx, logger)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
