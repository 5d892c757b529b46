package middleware

import (
	"context"
	"net/http"
)

type routeKey struct{}

// withRouteSlot gives outer middleware a place to read the matched
// pattern, since http.ServeMux only sets it on the request it receives.
func withRouteSlot(ctx context.Context) (context.Context, *string) {
	if slot, ok := ctx.Value(routeKey{}).(*string); ok {
		return ctx, slot
	}
	slot := new(string)
	return context.WithValue(ctx, routeKey{}, slot), slot
}

// RecordRoute must wrap the mux directly.
func RecordRoute(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if slot, ok := r.Context().Value(routeKey{}).(*string); ok {
			*slot = r.Pattern
		}
	})
}
