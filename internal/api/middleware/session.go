package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clubsite/server/internal/api/problem"
	"github.com/clubsite/server/internal/auth"
)

// SessionCookieName holds the signed admin session token for the HTML back office.
const SessionCookieName = "clubsite_session"

const LoginPath = "/admin/login"

type actorKey struct{}

func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated caller, or the zero Actor.
func ActorFrom(ctx context.Context) auth.Actor {
	actor, _ := ctx.Value(actorKey{}).(auth.Actor)
	return actor
}

// Authenticate resolves the caller from a Bearer token or the session
// cookie. Requests without valid credentials pass through anonymously.
func Authenticate(manager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				next.ServeHTTP(w, r)
				return
			}
			token := sessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := manager.Validate(token)
			if err != nil {
				LoggerFromContext(r.Context()).Debug().Err(err).Msg("ignoring invalid session token")
				next.ServeHTTP(w, r)
				return
			}
			actor := auth.ActorFromClaims(claims)
			logger := LoggerFromContext(r.Context()).With().Str("actor", actor.Username).Logger()
			ctx := logger.WithContext(WithActor(r.Context(), actor))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, err := auth.TokenFromHeader(header)
		if err != nil {
			return ""
		}
		return token
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// RequireAPI rejects anonymous callers with 401 and callers whose role
// cannot open the back office with 403.
func RequireAPI(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFrom(r.Context())
			if actor.IsZero() {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", auth.ErrUnauthenticated, env)
				return
			}
			if !actor.Role.Can(auth.PermViewAdmin) {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", auth.ErrForbidden, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePage sends anonymous browsers to the login form, remembering
// where they were going.
func RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := ActorFrom(r.Context())
		if actor.IsZero() {
			target := LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		if !actor.Role.Can(auth.PermViewAdmin) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
