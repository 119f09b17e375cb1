package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/collegeos/portal/internal/cli/session"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd(provide Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runLogout(cmd.Context(), a)
		},
	}
}

func runLogout(ctx context.Context, a *App) error {
	// Restore seeds the stored token so the backend can invalidate it
	if a.Session.Restore(ctx) != session.StateAuthenticated {
		a.printf("Not signed in.\n")
		return nil
	}

	if err := a.Session.Logout(ctx); err != nil {
		a.printf("⚠ Signed out locally, but the server could not be reached: %v\n", err)
		return nil
	}

	a.printf("✓ Signed out\n")
	a.Log.Debug().Str("next", session.AfterLogoutPath).Msg("Logout complete")
	return nil
}
