package commands

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/collegeos/portal/internal/cli/session"
	"github.com/collegeos/portal/internal/cli/twofactor"
)

const totpIssuer = "College OS"

// NewTwoFactorCmd creates the 2fa command group
func NewTwoFactorCmd(provide Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Manage two-factor authentication",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether two-factor authentication is enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runTwoFactorStatus(cmd.Context(), a)
		},
	}

	var setupCode, qrFile string
	var noVerify bool
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Enroll an authenticator app",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runTwoFactorSetup(cmd.Context(), a, setupCode, qrFile, noVerify)
		},
	}
	setup.Flags().StringVar(&setupCode, "code", "", "Code from the authenticator app (will prompt if not provided)")
	setup.Flags().StringVar(&qrFile, "qr-file", "", "Write the QR code PNG to this file")
	setup.Flags().BoolVar(&noVerify, "no-verify", false, "Only print the secret; confirm later with '2fa verify'")

	var verifyCode string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Confirm a setup started with '2fa setup --no-verify'",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runTwoFactorVerify(cmd.Context(), a, verifyCode)
		},
	}
	verify.Flags().StringVar(&verifyCode, "code", "", "Code from the authenticator app (will prompt if not provided)")

	var disableCode string
	disable := &cobra.Command{
		Use:   "disable",
		Short: "Turn two-factor authentication off",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runTwoFactorDisable(cmd.Context(), a, disableCode)
		},
	}
	disable.Flags().StringVar(&disableCode, "code", "", "Current code from the authenticator app (will prompt if not provided)")

	dismiss := &cobra.Command{
		Use:   "dismiss-tip",
		Short: "Stop suggesting two-factor authentication for a week",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			st, err := a.LocalState()
			if err != nil {
				return err
			}
			if err := st.Dismiss(twoFactorTipKey, a.Now()); err != nil {
				return err
			}
			a.printf("✓ Tip hidden for %d days\n", int(twoFactorTipSnooze.Hours()/24))
			return nil
		},
	}

	cmd.AddCommand(status, setup, verify, disable, dismiss)
	return cmd
}

func loadTwoFactor(ctx context.Context, a *App) (*twofactor.Flow, error) {
	if _, err := a.RequireSession(ctx); err != nil {
		return nil, err
	}
	flow := a.TwoFactor()
	if _, err := flow.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load two-factor status: %w", err)
	}
	return flow, nil
}

func runTwoFactorStatus(ctx context.Context, a *App) error {
	flow, err := loadTwoFactor(ctx, a)
	if err != nil {
		return err
	}
	a.printf("Two-factor authentication: %s\n", flow.State())
	return nil
}

func runTwoFactorSetup(ctx context.Context, a *App, code, qrFile string, noVerify bool) error {
	flow, err := loadTwoFactor(ctx, a)
	if err != nil {
		return err
	}
	if flow.State() == twofactor.StateEnabled {
		return errors.New("two-factor authentication is already enabled")
	}

	setup, err := flow.Setup(ctx)
	if err != nil {
		return fmt.Errorf("failed to start two-factor setup: %w", err)
	}

	a.printf("Add this account to your authenticator app.\n")
	a.printf("  Secret: %s\n", setup.Secret)
	if u, err := setup.ProvisioningURL(totpIssuer, a.Session.Current().Email); err == nil {
		a.printf("  URL:    %s\n", u)
	} else {
		a.Log.Warn().Err(err).Msg("Could not build provisioning URL")
	}

	if qrFile != "" {
		if err := writeQRCode(qrFile, setup.QRCodeDataURI); err != nil {
			return err
		}
		a.printf("  QR code written to %s\n", qrFile)
	}

	if noVerify {
		a.printf("Finish with: collegeos 2fa verify\n")
		return nil
	}

	if err := submitCode(ctx, a, code, flow.Verify); err != nil {
		flow.Cancel()
		return err
	}
	a.printf("✓ Two-factor authentication enabled\n")
	return nil
}

func runTwoFactorVerify(ctx context.Context, a *App, code string) error {
	flow, err := loadTwoFactor(ctx, a)
	if err != nil {
		return err
	}
	if flow.State() == twofactor.StateEnabled {
		return errors.New("two-factor authentication is already enabled")
	}
	flow.Resume()

	if err := submitCode(ctx, a, code, flow.Verify); err != nil {
		return err
	}
	a.printf("✓ Two-factor authentication enabled\n")
	return nil
}

func runTwoFactorDisable(ctx context.Context, a *App, code string) error {
	flow, err := loadTwoFactor(ctx, a)
	if err != nil {
		return err
	}

	if err := submitCode(ctx, a, code, flow.Disable); err != nil {
		return err
	}
	a.printf("✓ Two-factor authentication disabled\n")
	return nil
}

// submitCode reads a code (from the flag or a prompt) and submits it,
// re-prompting after a rejection.
func submitCode(ctx context.Context, a *App, code string, submit func(context.Context, *twofactor.CodeInput) error) error {
	for attempt := 1; ; attempt++ {
		raw := code
		if raw == "" {
			var err error
			raw, err = a.Prompt.Input("Authentication code", func(s string) error {
				return twofactor.ValidateCode(twofactor.SanitizeCode(s))
			})
			if err != nil {
				if errors.Is(err, ErrNonInteractive) {
					return fmt.Errorf("a code is required in non-interactive mode (use --code flag)")
				}
				return err
			}
		}

		err := submit(ctx, twofactor.NewCodeInput(raw))
		if err == nil {
			return nil
		}
		if code != "" || attempt >= maxCodeAttempts || errors.Is(err, twofactor.ErrNotEnabled) || errors.Is(err, twofactor.ErrNoPendingSetup) || errors.Is(err, session.ErrNoChallenge) {
			return err
		}
		a.printf("✗ %v\n", err)
	}
}

func writeQRCode(path, dataURI string) error {
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(dataURI, prefix) {
		return errors.New("backend did not return a PNG QR code")
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURI, prefix))
	if err != nil {
		return fmt.Errorf("failed to decode QR code: %w", err)
	}
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return fmt.Errorf("failed to write QR code: %w", err)
	}
	return nil
}
