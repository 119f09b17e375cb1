package routes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	table := Default()

	tests := map[string]Access{
		"/":                  AccessPublic,
		"/login":             AccessPublic,
		"/register":          AccessPublic,
		"/dashboard":         AccessSession,
		"/dashboard/":        AccessSession,
		"/dashboard/notices": AccessSession,
		"/gigs/42":           AccessSession,
		"/marketplace":       AccessSession,
		"/admin":             AccessAdmin,
		"/admin/users":       AccessAdmin,
		"/ADMIN/users":       AccessAdmin,
		"/x/../admin/users":  AccessAdmin,
		"//admin":            AccessAdmin,
		"/administer":        AccessPublic,
		"/dashboards":        AccessPublic,
		"/static/app.js":     AccessPublic,
	}
	for p, want := range tests {
		require.Equal(t, want, table.Classify(p), "path=%s", p)
	}
}

func TestLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
admin:
  - /admin
  - /staff
protected:
  - /dashboard
  - /library
`), 0o600))

	table, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, "/login", table.LoginPath)
	require.Equal(t, AccessAdmin, table.Classify("/staff/payroll"))
	require.Equal(t, AccessSession, table.Classify("/library"))
	require.Equal(t, AccessPublic, table.Classify("/exams"))
	require.Equal(t, AccessSession, table.Classify("/gigs"))
}

func TestLoad_RejectsGuardedLogin(t *testing.T) {
	file := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(file, []byte("protected: [\"/\"]\n"), 0o600))

	_, err := Load(file)
	require.Error(t, err)
}

func TestLoad_RejectsRelativePaths(t *testing.T) {
	file := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(file, []byte("admin: [\"admin\"]\n"), 0o600))

	_, err := Load(file)
	require.Error(t, err)
}
