package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collegeos/portal/internal/auth"
	"github.com/collegeos/portal/internal/routes"
)

func hasLink(links []NavLink, path string) bool {
	for _, l := range links {
		if l.Path == path {
			return true
		}
	}
	return false
}

func TestNavLinks(t *testing.T) {
	require.Nil(t, NavLinks(nil))

	student := &Session{UserID: "u1", Name: "S", Email: "s@x.edu", Role: auth.RoleStudent}
	require.True(t, hasLink(NavLinks(student), "/dashboard"))
	require.False(t, hasLink(NavLinks(student), "/admin"))

	admin := &Session{UserID: "u2", Name: "A", Email: "a@x.edu", Role: auth.RoleAdmin}
	require.True(t, hasLink(NavLinks(admin), "/admin"))

	// shared base slice must not grow
	require.False(t, hasLink(NavLinks(student), "/admin"))
}

func TestClientRedirect(t *testing.T) {
	table := routes.Default()
	student := &Session{UserID: "u1", Name: "S", Email: "s@x.edu", Role: auth.RoleStudent}
	admin := &Session{UserID: "u2", Name: "A", Email: "a@x.edu", Role: auth.RoleAdmin}

	require.Equal(t, "", ClientRedirect(table, nil, "/login"))
	require.Equal(t, "/login", ClientRedirect(table, nil, "/dashboard"))
	require.Equal(t, "/login", ClientRedirect(table, nil, "/admin"))
	require.Equal(t, "", ClientRedirect(table, student, "/gigs"))
	require.Equal(t, "/dashboard", ClientRedirect(table, student, "/admin/users"))
	require.Equal(t, "", ClientRedirect(table, admin, "/admin/users"))
}
