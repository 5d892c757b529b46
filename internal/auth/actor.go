package auth

import (
	"context"
	"errors"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient permissions")
)

// Actor is the authenticated caller of a privileged operation, as
// claimed by its token. Services re-verify it through an Authorizer.
type Actor struct {
	UserID   string
	Username string
	Role     Role
}

func (a Actor) IsZero() bool { return a.UserID == "" }

func ActorFromClaims(c *Claims) Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{UserID: c.Subject, Username: c.Username, Role: c.Role}
}

// Authorizer confirms that an actor still holds a permission, using its
// current stored role rather than the token claim.
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, perm Permission) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, actor Actor, perm Permission) error

func (f AuthorizerFunc) Authorize(ctx context.Context, actor Actor, perm Permission) error {
	return f(ctx, actor, perm)
}

// ClaimsAuthorizer trusts the role carried by the actor. Only for tests
// and tooling without storage.
var ClaimsAuthorizer = AuthorizerFunc(func(_ context.Context, actor Actor, perm Permission) error {
	if actor.IsZero() {
		return ErrUnauthenticated
	}
	if !actor.Role.Can(perm) {
		return ErrForbidden
	}
	return nil
})
