// Package session owns the client's authenticated identity. A Manager is
// created once per process and passed to every command and view; nothing
// outside the Manager can change the session except through Login,
// CompleteChallenge, Logout and RefreshUser.
package session

import (
	"errors"
	"fmt"

	"github.com/collegeos/portal/internal/auth"
	"github.com/collegeos/portal/internal/cli/client"
)

// State is the manager's authentication state
type State int

const (
	StateUnknown State = iota
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// LandingPath is where a user goes after a successful login
const LandingPath = "/dashboard"

var ErrIncompleteSession = errors.New("incomplete session payload")

// Session is the signed-in user. It is either fully populated or absent.
type Session struct {
	UserID           string    `json:"userId" yaml:"userId"`
	Name             string    `json:"name" yaml:"name"`
	Email            string    `json:"email" yaml:"email"`
	Role             auth.Role `json:"role" yaml:"role"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled" yaml:"twoFactorEnabled"`
}

// IsAdmin reports whether the session carries the ADMIN role
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role.IsAdmin()
}

func newSession(userID, name, email, role string, twoFactorEnabled bool) (*Session, error) {
	if userID == "" || name == "" || email == "" {
		return nil, fmt.Errorf("%w: id, name and email are required", ErrIncompleteSession)
	}
	r, err := auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompleteSession, err)
	}
	return &Session{
		UserID:           userID,
		Name:             name,
		Email:            email,
		Role:             r,
		TwoFactorEnabled: twoFactorEnabled,
	}, nil
}

func sessionFromUser(u *client.User) (*Session, error) {
	return newSession(u.ID, u.Name, u.Email, u.Role, u.TwoFactorEnabled)
}
