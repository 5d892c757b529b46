package users

import (
	"context"
	"errors"
	"time"

	"github.com/clubsite/server/internal/auth"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired invitation token")
	ErrUserAlreadyActive  = errors.New("user is already active")
	ErrUserInactive       = errors.New("user is inactive")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrSelfModification   = errors.New("cannot change your own role or status")
	ErrLastAdmin          = errors.New("cannot remove the last active admin")
)

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         auth.Role  `json:"role"`
	Active       bool       `json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u User) IsActiveAdmin() bool {
	return u.Active && u.Role == auth.RoleAdmin
}

type Invitation struct {
	ID         string
	UserID     string
	TokenHash  string
	Email      string
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedBy  string
	CreatedAt  time.Time
}

type Filter struct {
	Role   *auth.Role
	Active *bool
	Limit  int
	Offset int
}

// Repository persists users and their invitations.
type Repository interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, f Filter) ([]User, int, error)
	Update(ctx context.Context, u User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	CountActiveAdmins(ctx context.Context) (int, error)

	CreateInvitation(ctx context.Context, inv Invitation) error
	GetInvitationByTokenHash(ctx context.Context, tokenHash string) (Invitation, error)
	// AcceptInvitation sets the password, activates the user and marks
	// the invitation accepted atomically.
	AcceptInvitation(ctx context.Context, inv Invitation, passwordHash string, at time.Time) error
	DeleteExpiredInvitations(ctx context.Context, before time.Time) (int64, error)
}

// Mailer delivers invitation emails.
type Mailer interface {
	SendInvitation(ctx context.Context, to, inviteLink, invitedBy string) error
}
