package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clubsite/server/internal/audit"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/domain/ids"
	"github.com/clubsite/server/internal/validation"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultInvitationExpiry = 168 * time.Hour // 7 days
	DefaultRole             = auth.RoleEditor
	BcryptCost              = 12
)

type Service struct {
	repo        Repository
	mailer      Mailer
	auditLogger *audit.Logger
	baseURL     string
	logger      zerolog.Logger
	now         func() time.Time
	cost        int

	decoyOnce sync.Once
	decoy     []byte
}

func NewService(repo Repository, mailer Mailer, auditLogger *audit.Logger, baseURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		mailer:      mailer,
		auditLogger: auditLogger,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger.With().Str("component", "users").Logger(),
		now:         time.Now,
		cost:        BcryptCost,
	}
}

type CreateInput struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Role     string `json:"role" validate:"omitempty,oneof=admin editor member"`
}

type UpdateInput struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email    string `json:"email" validate:"required,email,max=254"`
}

// Authorize implements auth.Authorizer against the stored user row.
func (s *Service) Authorize(ctx context.Context, actor auth.Actor, perm auth.Permission) error {
	if actor.IsZero() {
		return auth.ErrUnauthenticated
	}
	u, err := s.repo.GetByID(ctx, actor.UserID)
	if errors.Is(err, ErrNotFound) {
		return auth.ErrUnauthenticated
	}
	if err != nil {
		return fmt.Errorf("load actor: %w", err)
	}
	if !u.Active {
		return auth.ErrUnauthenticated
	}
	if !u.Role.Can(perm) {
		return auth.ErrForbidden
	}
	return nil
}

// decoyHash is compared against for unknown or inactive users so that
// every failed login pays the same bcrypt cost.
func (s *Service) decoyHash() []byte {
	s.decoyOnce.Do(func() {
		s.decoy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	})
	return s.decoy
}

// Authenticate checks credentials of an active user and records the login.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.decoyHash(), []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("load user: %w", err)
	}
	if !u.Active || u.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.decoyHash(), []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.repo.TouchLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID).Msg("failed to record login")
	} else {
		u.LastLoginAt = &now
	}
	return u, nil
}

// CreateAdmin creates an active admin with a password. It is used by the
// CLI and startup bootstrap, so it takes no actor.
func (s *Service) CreateAdmin(ctx context.Context, username, email, password string) (User, error) {
	in := CreateInput{Username: username, Email: email, Role: string(auth.RoleAdmin)}
	if err := validation.Struct(in); err != nil {
		return User{}, err
	}
	if err := CheckPassword(password, username, email); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := User{
		ID:           ids.MustULID(),
		Username:     in.Username,
		Email:        strings.ToLower(in.Email),
		PasswordHash: string(hash),
		Role:         auth.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	s.auditLogger.LogSuccess("user.admin_created", "system", "user", u.ID, "", map[string]string{
		"username": u.Username,
	})
	return u, nil
}

// CreateAndInvite creates an inactive user and emails a one-time link to
// set a password. Email failures are logged, not returned.
func (s *Service) CreateAndInvite(ctx context.Context, actor auth.Actor, in CreateInput) (User, error) {
	if err := s.authorize(ctx, actor, auth.PermManageUsers); err != nil {
		return User{}, err
	}
	if err := validation.Struct(in); err != nil {
		return User{}, err
	}
	role := DefaultRole
	if in.Role != "" {
		r, err := auth.ParseRole(in.Role)
		if err != nil {
			return User{}, err
		}
		role = r
	}

	now := s.now()
	u := User{
		ID:        ids.MustULID(),
		Username:  in.Username,
		Email:     strings.ToLower(in.Email),
		Role:      role,
		Active:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}

	if err := s.invite(ctx, u, actor); err != nil {
		return User{}, err
	}

	s.auditLogger.LogSuccess("user.created", actor.Username, "user", u.ID, audit.ClientIPFromContext(ctx), map[string]string{
		"username": u.Username,
		"email":    u.Email,
		"role":     string(u.Role),
	})
	return u, nil
}

func (s *Service) invite(ctx context.Context, u User, actor auth.Actor) error {
	token, err := generateSecureToken()
	if err != nil {
		return err
	}
	inv := Invitation{
		ID:        ids.MustULID(),
		UserID:    u.ID,
		TokenHash: hashToken(token),
		Email:     u.Email,
		ExpiresAt: s.now().Add(DefaultInvitationExpiry),
		CreatedBy: actor.UserID,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}

	invitedBy := actor.Username
	if invitedBy == "" {
		invitedBy = "Yönetici"
	}
	link := fmt.Sprintf("%s/accept-invitation?token=%s", s.baseURL, token)
	if s.mailer != nil {
		if err := s.mailer.SendInvitation(ctx, u.Email, link, invitedBy); err != nil {
			s.logger.Error().Err(err).Str("user_id", u.ID).Msg("failed to send invitation email")
		}
	}
	return nil
}

// ResendInvitation issues a fresh token for a user that has not yet
// accepted. Earlier tokens stay valid until they expire.
func (s *Service) ResendInvitation(ctx context.Context, actor auth.Actor, id string) error {
	if err := s.authorize(ctx, actor, auth.PermManageUsers); err != nil {
		return err
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Active {
		return ErrUserAlreadyActive
	}
	if err := s.invite(ctx, u, actor); err != nil {
		return err
	}
	s.auditLogger.LogSuccess("user.invitation_resent", actor.Username, "user", u.ID, audit.ClientIPFromContext(ctx), nil)
	return nil
}

func (s *Service) AcceptInvitation(ctx context.Context, token, password string) error {
	inv, err := s.repo.GetInvitationByTokenHash(ctx, hashToken(token))
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("load invitation: %w", err)
	}
	if inv.AcceptedAt != nil || !s.now().Before(inv.ExpiresAt) {
		return ErrInvalidToken
	}

	u, err := s.repo.GetByID(ctx, inv.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if err := CheckPassword(password, u.Username, u.Email); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.AcceptInvitation(ctx, inv, string(hash), s.now()); err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}

	s.auditLogger.LogSuccess("user.invitation_accepted", u.Username, "user", u.ID, audit.ClientIPFromContext(ctx), nil)
	return nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter) ([]User, int, error) {
	if err := s.authorize(ctx, actor, auth.PermManageUsers); err != nil {
		return nil, 0, err
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id string) (User, error) {
	if actor.UserID != id {
		if err := s.authorize(ctx, actor, auth.PermManageUsers); err != nil {
			return User{}, err
		}
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, in UpdateInput) (User, error) {
	if err := s.authorize(ctx, actor, auth.PermManageUsers); err != nil {
		return User{}, err
	}
	if err := validation.Struct(in); err != nil {
		return User{}, err
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	u.Username = in.Username
	u.Email = strings.ToLower(in.Email)
	u.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, u); err != nil {
		return User{}, err
	}
	s.auditLogger.LogSuccess("user.updated", actor.Username, "user", u.ID, audit.ClientIPFromContext(ctx), map[string]string{
		"username": u.Username,
		"email":    u.Email,
	})
	return u, nil
}

func (s *Service) SetRole(ctx context.Context, actor auth.Actor, id string, role auth.Role) (User, error) {
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: %q", auth.ErrInvalidRole, role)
	}
	return s.mutate(ctx, actor, id, "user.role_changed", func(u *User) {
		u.Role = role
	})
}

func (s *Service) Activate(ctx context.Context, actor auth.Actor, id string) (User, error) {
	return s.mutate(ctx, actor, id, "user.activated", func(u *User) {
		u.Active = true
	})
}

func (s *Service) Deactivate(ctx context.Context, actor auth.Actor, id string) (User, error) {
	return s.mutate(ctx, actor, id, "user.deactivated", func(u *User) {
		u.Active = false
	})
}

// mutate applies a role or status change, refusing self-changes and
// changes that would leave no active admin.
func (s *Service) mutate(ctx context.Context, actor auth.Actor, id, action string, change func(*User)) (User, error) {
	if err := s.authorize(ctx, actor, auth.PermManageUsers); err != nil {
		return User{}, err
	}
	if actor.UserID == id {
		return User{}, ErrSelfModification
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	wasAdmin := u.IsActiveAdmin()
	change(&u)
	if wasAdmin && !u.IsActiveAdmin() {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return User{}, err
		}
	}

	u.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, u); err != nil {
		return User{}, err
	}
	s.auditLogger.LogSuccess(action, actor.Username, "user", u.ID, audit.ClientIPFromContext(ctx), map[string]string{
		"role":   string(u.Role),
		"active": fmt.Sprint(u.Active),
	})
	return u, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if err := s.authorize(ctx, actor, auth.PermManageUsers); err != nil {
		return err
	}
	if actor.UserID == id {
		return ErrSelfModification
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.IsActiveAdmin() {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.auditLogger.LogSuccess("user.deleted", actor.Username, "user", id, audit.ClientIPFromContext(ctx), map[string]string{
		"username": u.Username,
	})
	return nil
}

// CleanupInvitations removes unaccepted invitations that expired before now.
func (s *Service) CleanupInvitations(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredInvitations(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired invitations: %w", err)
	}
	return n, nil
}

func (s *Service) ensureAnotherAdmin(ctx context.Context) error {
	n, err := s.repo.CountActiveAdmins(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, actor auth.Actor, perm auth.Permission) error {
	if err := s.Authorize(ctx, actor, perm); err != nil {
		s.auditLogger.LogFailure("authorization.denied", actor.Username, audit.ClientIPFromContext(ctx), map[string]string{
			"reason": err.Error(),
		})
		return err
	}
	return nil
}

// generateSecureToken returns 32 random bytes as URL-safe base64.
func generateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.URLEncoding.EncodeToString(hash[:])
}
