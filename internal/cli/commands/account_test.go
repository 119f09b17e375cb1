package commands

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collegeos/portal/internal/auth"
)

func TestWhoami(t *testing.T) {
	ta := setup(t)
	ctx := context.Background()

	require.ErrorIs(t, runWhoami(ctx, ta.App, outputText, ""), ErrNotSignedIn)

	ta.signIn(t, "ada@college.edu", auth.RoleStudent)

	require.NoError(t, runWhoami(ctx, ta.App, outputText, ""))
	out := ta.out.String()
	require.Contains(t, out, "ada@college.edu")
	require.Contains(t, out, "STUDENT")
	require.Contains(t, out, "/dashboard")
	require.NotContains(t, out, "/admin")

	ta.out.Reset()
	require.NoError(t, runWhoami(ctx, ta.App, outputJSON, ""))
	var view map[string]any
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &view))
	require.Equal(t, "ada@college.edu", view["email"])
	require.Equal(t, "STUDENT", view["role"])
	require.NotEmpty(t, view["pages"])
}

func TestWhoami_Check(t *testing.T) {
	ta := setup(t)
	ctx := context.Background()
	ta.signIn(t, "ada@college.edu", auth.RoleStudent)

	require.NoError(t, runWhoami(ctx, ta.App, outputText, "/gigs/12"))
	require.Contains(t, ta.out.String(), "/gigs/12 is available")

	err := runWhoami(ctx, ta.App, outputText, "/admin/users")
	require.ErrorContains(t, err, "would redirect to /dashboard")
}

func TestWhoami_AdminSeesAdminPanel(t *testing.T) {
	ta := setup(t)
	ta.signIn(t, "root@college.edu", auth.RoleAdmin)

	require.NoError(t, runWhoami(context.Background(), ta.App, outputYAML, ""))
	require.Contains(t, ta.out.String(), "path: /admin")
	require.Contains(t, ta.out.String(), "role: ADMIN")
}

func TestRegister(t *testing.T) {
	ta := setup(t)
	ctx := context.Background()
	ta.prompt.passwords = []string{"secret1", "secret1"}

	require.NoError(t, runRegister(ctx, ta.App, "Ada", "ada@college.edu", ""))
	require.Contains(t, ta.out.String(), "Please verify your email")

	// registration never signs in and the account starts unverified
	require.NotEqual(t, "authenticated", ta.Session.State().String())
	require.False(t, ta.backend.User("ada@college.edu").Verified)
}

func TestRegister_Validation(t *testing.T) {
	ta := setup(t)
	ctx := context.Background()

	ta.prompt.passwords = []string{"secret1", "secret2"}
	require.ErrorContains(t, runRegister(ctx, ta.App, "Ada", "ada@college.edu", ""), "passwords do not match")

	require.ErrorContains(t, runRegister(ctx, ta.App, "Ada", "not-an-email", "secret1"), "email")
	require.ErrorContains(t, runRegister(ctx, ta.App, "Ada", "ada@college.edu", "abc"), "password")
	require.Zero(t, ta.backend.Calls("POST /auth/register"))
}

func TestVerifyEmailThenLogin(t *testing.T) {
	ta := setup(t)
	ctx := context.Background()

	require.NoError(t, runRegister(ctx, ta.App, "Ada", "ada@college.edu", "secret1"))
	token := ta.backend.User("ada@college.edu").VerifyToken

	cmd := NewVerifyEmailCmd(func() (*App, error) { return ta.App, nil })
	cmd.SetArgs([]string{token})
	require.NoError(t, cmd.Execute())
	require.True(t, ta.backend.User("ada@college.edu").Verified)

	require.NoError(t, runLogin(ctx, ta.App, loginOptions{email: "ada@college.edu", password: "secret1"}))
}

func TestPasswordForgotAndReset(t *testing.T) {
	ta := setup(t)
	ctx := context.Background()
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleStudent)

	cmd := NewPasswordCmd(func() (*App, error) { return ta.App, nil })
	cmd.SetArgs([]string{"forgot", "--email", "ada@college.edu"})
	require.NoError(t, cmd.Execute())

	token := ta.backend.User("ada@college.edu").ResetToken
	require.NotEmpty(t, token)

	ta.prompt.passwords = []string{"newpass1", "newpass1"}
	require.NoError(t, runResetPassword(ctx, ta.App, token, ""))

	require.Error(t, runLogin(ctx, ta.App, loginOptions{email: "ada@college.edu", password: "secret1"}))
	require.NoError(t, runLogin(ctx, ta.App, loginOptions{email: "ada@college.edu", password: "newpass1"}))
}

func TestResendVerification(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleStudent)
	ta.backend.SetVerified("ada@college.edu", false)

	cmd := NewResendVerificationCmd(func() (*App, error) { return ta.App, nil })
	cmd.SetArgs([]string{"--email", "ada@college.edu"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, ta.out.String(), "Verification email sent")
}
