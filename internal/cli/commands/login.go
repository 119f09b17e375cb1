package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/collegeos/portal/internal/cli/session"
	"github.com/collegeos/portal/internal/cli/twofactor"
)

const (
	maxCodeAttempts = 3

	twoFactorTipKey    = "two-factor-tip"
	twoFactorTipSnooze = 7 * 24 * time.Hour
)

var ErrEmailNotVerified = errors.New("email address not verified")

type loginOptions struct {
	email    string
	password string
	code     string
	resend   bool
}

// NewLoginCmd creates the login command
func NewLoginCmd(provide Provider) *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to College OS",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runLogin(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "Email address (or set COLLEGEOS_EMAIL)")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password (or set COLLEGEOS_PASSWORD, will prompt if not provided)")
	cmd.Flags().StringVar(&opts.code, "code", "", "Two-factor code (will prompt if required and not provided)")
	cmd.Flags().BoolVar(&opts.resend, "resend-verification", false, "Resend the verification email if the address is unverified")

	return cmd
}

func runLogin(ctx context.Context, a *App, opts loginOptions) error {
	// Check for environment variables (useful for CI/CD)
	if opts.email == "" {
		opts.email = os.Getenv("COLLEGEOS_EMAIL")
	}
	if opts.password == "" {
		opts.password = os.Getenv("COLLEGEOS_PASSWORD")
	}

	if opts.email == "" {
		return fmt.Errorf("email is required (use --email flag or COLLEGEOS_EMAIL env var)")
	}

	if opts.password == "" {
		password, err := a.Prompt.Password("Password")
		if err != nil {
			if errors.Is(err, ErrNonInteractive) {
				return fmt.Errorf("password is required in non-interactive mode (use --password flag or COLLEGEOS_PASSWORD env var)")
			}
			return err
		}
		opts.password = password
	}

	a.printf("Signing in to %s...\n", a.Client.BaseURL())

	res, err := a.Session.Login(ctx, opts.email, opts.password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	switch res.Outcome {
	case session.OutcomeEmailVerificationRequired:
		return handleUnverified(ctx, a, res.Email, opts.resend)
	case session.OutcomeTwoFactorRequired:
		res, err = completeChallenge(ctx, a, res.Challenge, opts.code)
		if err != nil {
			return err
		}
	}

	sess := res.Session
	a.printf("✓ Signed in as %s (%s)\n", sess.Name, sess.Email)
	if sess.IsAdmin() {
		a.printf("  Role: Admin\n")
	}
	a.printf("  Start at: %s\n", res.RedirectTo)

	showTwoFactorTip(a, sess)
	return nil
}

func completeChallenge(ctx context.Context, a *App, ch *session.Challenge, code string) (*session.LoginResult, error) {
	a.printf("Two-factor authentication is enabled for this account.\n")

	var res *session.LoginResult
	err := submitCode(ctx, a, code, func(ctx context.Context, in *twofactor.CodeInput) error {
		var err error
		res, err = a.Session.CompleteChallenge(ctx, ch, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("two-factor verification failed: %w", err)
	}
	return res, nil
}

func handleUnverified(ctx context.Context, a *App, email string, resend bool) error {
	a.printf("Your email address has not been verified yet. Check your inbox for the verification link.\n")

	if !resend {
		ok, err := a.Prompt.Confirm("Resend verification email")
		if err != nil && !errors.Is(err, ErrNonInteractive) {
			return err
		}
		resend = ok
	}

	if resend {
		msg, err := a.Session.ResendVerification(ctx, email)
		if err != nil {
			return fmt.Errorf("failed to resend verification email: %w", err)
		}
		a.printf("✓ %s\n", msg)
	} else {
		a.printf("Run 'collegeos resend-verification --email %s' to get a new link.\n", email)
	}

	return ErrEmailNotVerified
}

// showTwoFactorTip suggests enabling 2FA unless the tip was dismissed recently
func showTwoFactorTip(a *App, sess *session.Session) {
	if sess.TwoFactorEnabled {
		return
	}

	st, err := a.LocalState()
	if err != nil {
		a.Log.Debug().Err(err).Msg("Local state unavailable, skipping two-factor tip")
		return
	}
	dismissed, err := st.DismissedWithin(twoFactorTipKey, twoFactorTipSnooze, a.Now())
	if err != nil || dismissed {
		return
	}

	a.printf("\nTip: protect your account with two-factor authentication: collegeos 2fa setup\n")
	a.printf("     (hide this for a week with: collegeos 2fa dismiss-tip)\n")
}
