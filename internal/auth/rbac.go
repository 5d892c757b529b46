package auth

import (
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleMember Role = "member"
)

var ErrInvalidRole = errors.New("invalid role")

// Roles lists every role, most privileged first.
var Roles = []Role{RoleAdmin, RoleEditor, RoleMember}

func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleEditor:
		return RoleEditor, nil
	case RoleMember:
		return RoleMember, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }

type Permission int

const (
	// PermViewAdmin opens the back office.
	PermViewAdmin Permission = iota
	PermManageContent
	PermManageRegistrations
	PermManageUsers
	PermManageDepartments
)

// Can reports whether r grants p.
func (r Role) Can(p Permission) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleEditor:
		switch p {
		case PermViewAdmin, PermManageContent, PermManageRegistrations:
			return true
		case PermManageUsers, PermManageDepartments:
			return false
		}
	case RoleMember:
		return false
	}
	return false
}

func IsAdmin(r Role) bool {
	return r == RoleAdmin
}
