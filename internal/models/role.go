package models

import (
	"fmt"
	"strings"
)

// Role is the closed set of actors the platform knows about.
type Role string

const (
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
	RoleAdmin    Role = "admin"
	RoleGuest    Role = "guest"
)

// Roles lists every role in declaration order.
func Roles() []Role {
	return []Role{RoleStudent, RoleLecturer, RoleAdmin, RoleGuest}
}

// ParseRole normalises raw input into a known role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleLecturer, RoleAdmin, RoleGuest:
		return true
	default:
		return false
	}
}

// SelfRegistrable reports whether the role may be chosen at sign-up.
func (r Role) SelfRegistrable() bool {
	switch r {
	case RoleStudent, RoleLecturer, RoleGuest:
		return true
	case RoleAdmin:
		return false
	default:
		return false
	}
}

// HomePath is the web landing page for the role.
func (r Role) HomePath() string {
	switch r {
	case RoleStudent, RoleLecturer, RoleAdmin, RoleGuest:
		return "/web/dashboard"
	default:
		return "/web/login"
	}
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID   int64  `json:"user_id"`
	Role     Role   `json:"role"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// HasRole reports whether the principal holds any of the given roles.
func (p *Principal) HasRole(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
