package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/api/problem"
	"github.com/clubsite/server/internal/audit"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/domain/users"
)

// Credentials is the slice of users.Service used to sign in.
type Credentials interface {
	Authenticate(ctx context.Context, username, password string) (users.User, error)
	AcceptInvitation(ctx context.Context, token, password string) error
}

// TokenIssuer signs session tokens; *auth.JWTManager implements it.
type TokenIssuer interface {
	Generate(subject, username string, role auth.Role) (string, error)
	Expiry() time.Duration
}

type AuthHandler struct {
	users       Credentials
	tokens      TokenIssuer
	auditLogger *audit.Logger
	secure      bool
	env         string
	now         func() time.Time
}

// NewAuthHandler builds the login handlers. secure marks the session
// cookie Secure and should be set whenever the site is served over HTTPS.
func NewAuthHandler(creds Credentials, tokens TokenIssuer, auditLogger *audit.Logger, secure bool, env string) *AuthHandler {
	return &AuthHandler{users: creds, tokens: tokens, auditLogger: auditLogger, secure: secure, env: env, now: time.Now}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string   `json:"token"`
	ExpiresAt string   `json:"expires_at"`
	User      userInfo `json:"user"`
}

type userInfo struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     auth.Role `json:"role"`
}

// session is a freshly signed token for a user allowed into the back office.
type session struct {
	user      users.User
	token     string
	expiresAt time.Time
}

var errNoAdminAccess = errors.New("role cannot open the back office")

// signIn checks credentials, requires a back-office role and signs a
// token. Every attempt is audited.
func (h *AuthHandler) signIn(r *http.Request, username, password string) (session, error) {
	ip := audit.ClientIP(r)
	u, err := h.users.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.auditLogger.LogFailure("auth.login", username, ip, map[string]string{"reason": "invalid_credentials"})
		}
		return session{}, err
	}
	if !u.Role.Can(auth.PermViewAdmin) {
		h.auditLogger.LogFailure("auth.login", u.Username, ip, map[string]string{"reason": "no_admin_access"})
		return session{}, errNoAdminAccess
	}
	token, err := h.tokens.Generate(u.ID, u.Username, u.Role)
	if err != nil {
		return session{}, err
	}
	h.auditLogger.LogSuccess("auth.login", u.Username, "user", u.ID, ip, nil)
	return session{user: u, token: token, expiresAt: h.now().Add(h.tokens.Expiry())}, nil
}

// Login handles POST /api/v1/auth/login. The token is returned in the body
// for API clients and set as an HttpOnly cookie for the HTML back office.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	if req.Username == "" || req.Password == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Username and password are required", nil, h.env)
		return
	}

	s, err := h.signIn(r, req.Username, req.Password)
	if errors.Is(err, errNoAdminAccess) {
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, h.env)
		return
	}
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}

	middleware.SetSessionCookie(w, s.token, h.tokens.Expiry(), h.secure)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     s.token,
		ExpiresAt: s.expiresAt.UTC().Format(time.RFC3339),
		User: userInfo{
			ID:       s.user.ID,
			Username: s.user.Username,
			Email:    s.user.Email,
			Role:     s.user.Role,
		},
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.signOut(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *AuthHandler) signOut(w http.ResponseWriter, r *http.Request) {
	if actor := middleware.ActorFrom(r.Context()); !actor.IsZero() {
		h.auditLogger.LogSuccess("auth.logout", actor.Username, "user", actor.UserID, audit.ClientIP(r), nil)
	}
	middleware.ClearSessionCookie(w, h.secure)
}

type acceptInvitationRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// AcceptInvitation handles POST /api/v1/invitations/accept.
func (h *AuthHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	if req.Token == "" || req.Password == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Token and password are required", nil, h.env)
		return
	}
	if err := h.users.AcceptInvitation(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
