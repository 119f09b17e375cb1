package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collegeos/portal/internal/auth"
	"github.com/collegeos/portal/internal/cli/client/clienttest"
	"github.com/collegeos/portal/internal/cli/session"
)

func TestLoginCommand_Structure(t *testing.T) {
	cmd := NewLoginCmd(nil)
	require.Equal(t, "login", cmd.Use)
	for _, flag := range []string{"email", "password", "code", "resend-verification"} {
		require.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
}

func TestLogin_Success(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleAdmin)

	err := runLogin(context.Background(), ta.App, loginOptions{email: "ada@college.edu", password: "secret1"})
	require.NoError(t, err)

	out := ta.out.String()
	require.Contains(t, out, "Signed in as Ada (ada@college.edu)")
	require.Contains(t, out, "Role: Admin")
	require.Contains(t, out, "Start at: /dashboard")
	require.Contains(t, out, "collegeos 2fa setup")

	require.Equal(t, session.StateAuthenticated, ta.Session.State())
	require.NotEmpty(t, ta.tokens.tokens[ta.backend.URL()])
}

func TestLogin_FromEnvironment(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("env@college.edu", "secret1", "Env", auth.RoleStudent)
	t.Setenv("COLLEGEOS_EMAIL", "env@college.edu")
	t.Setenv("COLLEGEOS_PASSWORD", "secret1")

	require.NoError(t, runLogin(context.Background(), ta.App, loginOptions{}))
	require.Equal(t, session.StateAuthenticated, ta.Session.State())
	require.Zero(t, ta.prompt.prompts)
}

func TestLogin_PromptsForPassword(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleStudent)
	ta.prompt.passwords = []string{"secret1"}

	require.NoError(t, runLogin(context.Background(), ta.App, loginOptions{email: "ada@college.edu"}))
	require.Equal(t, 1, ta.prompt.prompts)
}

func TestLogin_MissingInput(t *testing.T) {
	ta := setup(t)
	t.Setenv("COLLEGEOS_EMAIL", "")
	t.Setenv("COLLEGEOS_PASSWORD", "")

	err := runLogin(context.Background(), ta.App, loginOptions{})
	require.ErrorContains(t, err, "email is required")

	err = runLogin(context.Background(), ta.App, loginOptions{email: "ada@college.edu"})
	require.ErrorContains(t, err, "non-interactive")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleStudent)

	err := runLogin(context.Background(), ta.App, loginOptions{email: "ada@college.edu", password: "wrong"})
	require.ErrorContains(t, err, "Invalid email or password")
	require.NotEqual(t, session.StateAuthenticated, ta.Session.State())
	require.Empty(t, ta.tokens.tokens)
}

func TestLogin_TipHiddenWhenDismissed(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleStudent)

	st, err := ta.LocalState()
	require.NoError(t, err)
	require.NoError(t, st.Dismiss(twoFactorTipKey, ta.Now()))

	require.NoError(t, runLogin(context.Background(), ta.App, loginOptions{email: "ada@college.edu", password: "secret1"}))
	require.NotContains(t, ta.out.String(), "Tip:")
}

func TestLogin_TwoFactorCodeFlag(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleStudent)
	secret := ta.backend.EnableTwoFactor("ada@college.edu")

	err := runLogin(context.Background(), ta.App, loginOptions{
		email:    "ada@college.edu",
		password: "secret1",
		code:     clienttest.Code(secret),
	})
	require.NoError(t, err)

	require.True(t, ta.Session.Current().TwoFactorEnabled)
	require.Contains(t, ta.out.String(), "Two-factor authentication is enabled")
	require.NotContains(t, ta.out.String(), "Tip:")
	require.Equal(t, 2, ta.backend.Calls("POST /auth/login"))
}

func TestLogin_TwoFactorRetriesAfterRejectedCode(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleStudent)
	secret := ta.backend.EnableTwoFactor("ada@college.edu")

	attempts := 0
	ta.prompt.inputFn = func(string) string {
		attempts++
		if attempts == 1 {
			return wrongCode(secret)
		}
		return clienttest.Code(secret)
	}

	require.NoError(t, runLogin(context.Background(), ta.App, loginOptions{email: "ada@college.edu", password: "secret1"}))
	require.Equal(t, 2, attempts)
	require.Contains(t, ta.out.String(), "✗ Invalid code")
	require.Equal(t, session.StateAuthenticated, ta.Session.State())
}

func TestLogin_TwoFactorWrongCodeFlagFails(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleStudent)
	secret := ta.backend.EnableTwoFactor("ada@college.edu")

	err := runLogin(context.Background(), ta.App, loginOptions{
		email:    "ada@college.edu",
		password: "secret1",
		code:     wrongCode(secret),
	})
	require.ErrorContains(t, err, "Invalid code")
	require.NotEqual(t, session.StateAuthenticated, ta.Session.State())
	require.Zero(t, ta.prompt.prompts)
}

func TestLogin_TwoFactorNonInteractive(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleStudent)
	ta.backend.EnableTwoFactor("ada@college.edu")

	err := runLogin(context.Background(), ta.App, loginOptions{email: "ada@college.edu", password: "secret1"})
	require.ErrorContains(t, err, "--code")
}

func TestLogin_EmailNotVerified(t *testing.T) {
	ta := setup(t)
	ta.backend.AddUser("ada@college.edu", "secret1", "Ada", auth.RoleStudent)
	ta.backend.SetVerified("ada@college.edu", false)

	err := runLogin(context.Background(), ta.App, loginOptions{email: "ada@college.edu", password: "secret1"})
	require.ErrorIs(t, err, ErrEmailNotVerified)
	require.Contains(t, ta.out.String(), "resend-verification --email ada@college.edu")
	require.Zero(t, ta.backend.Calls("POST /auth/resend-verification"))

	ta.out.Reset()
	ta.prompt.confirm = true
	err = runLogin(context.Background(), ta.App, loginOptions{email: "ada@college.edu", password: "secret1"})
	require.ErrorIs(t, err, ErrEmailNotVerified)
	require.Contains(t, ta.out.String(), "Verification email sent")
	require.Equal(t, 1, ta.backend.Calls("POST /auth/resend-verification"))
	require.NotEqual(t, session.StateAuthenticated, ta.Session.State())
}

func TestLogout(t *testing.T) {
	ta := setup(t)
	ta.signIn(t, "ada@college.edu", auth.RoleStudent)

	require.NoError(t, runLogout(context.Background(), ta.App))
	require.Contains(t, ta.out.String(), "Signed out")
	require.Equal(t, session.StateAnonymous, ta.Session.State())
	require.Empty(t, ta.tokens.tokens)
	require.Equal(t, 1, ta.backend.Calls("POST /auth/logout"))
}

func TestLogout_ServerFailureStillClearsSession(t *testing.T) {
	ta := setup(t)
	ta.signIn(t, "ada@college.edu", auth.RoleStudent)
	ta.backend.FailLogout(true)

	require.NoError(t, runLogout(context.Background(), ta.App))
	require.Contains(t, ta.out.String(), "Signed out locally")
	require.Equal(t, session.StateAnonymous, ta.Session.State())
	require.Empty(t, ta.tokens.tokens)
}

func TestLogout_NotSignedIn(t *testing.T) {
	ta := setup(t)

	require.NoError(t, runLogout(context.Background(), ta.App))
	require.Contains(t, ta.out.String(), "Not signed in")
	require.Zero(t, ta.backend.Calls("POST /auth/logout"))
}

// wrongCode returns a six-digit code different from the current one
func wrongCode(secret string) string {
	code := []byte(clienttest.Code(secret))
	code[0] = '0' + (code[0]-'0'+5)%10
	return string(code)
}
