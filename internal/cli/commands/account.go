package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/collegeos/portal/internal/cli/session"
)

// NewRegisterCmd creates the register command
func NewRegisterCmd(provide Provider) *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a College OS account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runRegister(cmd.Context(), a, name, email, password)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (will prompt if not provided)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runRegister(ctx context.Context, a *App, name, email, password string) error {
	password, confirm, err := newPassword(a.Prompt, password)
	if err != nil {
		return err
	}

	msg, err := a.Session.Register(ctx, session.RegisterForm{
		Name:            name,
		Email:           email,
		Password:        password,
		ConfirmPassword: confirm,
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	a.printf("✓ %s\n", msg)
	return nil
}

// NewPasswordCmd creates the password command group
func NewPasswordCmd(provide Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Recover or reset your password",
	}

	var email string
	forgot := &cobra.Command{
		Use:   "forgot",
		Short: "Email a password reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			msg, err := a.Session.ForgotPassword(cmd.Context(), email)
			if err != nil {
				return err
			}
			a.printf("✓ %s\n", msg)
			return nil
		},
	}
	forgot.Flags().StringVar(&email, "email", "", "Email address of the account")
	_ = forgot.MarkFlagRequired("email")

	var token, password string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password with the token from the reset email",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runResetPassword(cmd.Context(), a, token, password)
		},
	}
	reset.Flags().StringVar(&token, "token", "", "Reset token from the email")
	reset.Flags().StringVar(&password, "password", "", "New password (will prompt if not provided)")
	_ = reset.MarkFlagRequired("token")

	cmd.AddCommand(forgot, reset)
	return cmd
}

func runResetPassword(ctx context.Context, a *App, token, password string) error {
	password, confirm, err := newPassword(a.Prompt, password)
	if err != nil {
		return err
	}

	msg, err := a.Session.ResetPassword(ctx, session.ResetPasswordForm{
		Token:           token,
		Password:        password,
		ConfirmPassword: confirm,
	})
	if err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}

	a.printf("✓ %s\n", msg)
	return nil
}

// NewVerifyEmailCmd creates the verify-email command
func NewVerifyEmailCmd(provide Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-email <token>",
		Short: "Confirm your email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			msg, err := a.Session.VerifyEmail(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			a.printf("✓ %s\n", msg)
			a.printf("You can now sign in with: collegeos login\n")
			return nil
		},
	}
}

// NewResendVerificationCmd creates the resend-verification command
func NewResendVerificationCmd(provide Provider) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resend-verification",
		Short: "Send the email verification link again",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			msg, err := a.Session.ResendVerification(cmd.Context(), email)
			if err != nil {
				return err
			}
			a.printf("✓ %s\n", msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address of the account")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
