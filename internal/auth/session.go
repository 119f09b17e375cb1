package auth

import (
	"fmt"
	"strings"
)

// Role is the role claim carried by a session token and the /auth/me payload
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleStudent Role = "STUDENT"
)

// ParseRole normalizes a role string. Unknown roles are rejected so a
// session can never be created with a role the guard does not understand.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleStudent:
		return RoleStudent, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsAdmin reports whether r grants access to admin-only paths
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// SessionData represents the authenticated identity attached to a guarded request
type SessionData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}
