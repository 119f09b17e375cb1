package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/collegeos/portal/internal/cli/client"
)

// LoginForm is validated before any network call
type LoginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// RegisterForm is the sign-up form
type RegisterForm struct {
	Name            string `validate:"required"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=6"`
	ConfirmPassword string `validate:"eqfield=Password"`
}

// ResetPasswordForm sets a new password from an emailed reset token
type ResetPasswordForm struct {
	Token           string `validate:"required"`
	Password        string `validate:"required,min=6"`
	ConfirmPassword string `validate:"eqfield=Password"`
}

// Register creates an account. It never signs the user in: the account must
// confirm its email first.
func (m *Manager) Register(ctx context.Context, form RegisterForm) (string, error) {
	if err := m.check(form); err != nil {
		return "", err
	}
	resp, err := m.api.Register(ctx, client.RegisterRequest{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ForgotPassword requests a reset email
func (m *Manager) ForgotPassword(ctx context.Context, email string) (string, error) {
	if err := m.validate.Var(email, "required,email"); err != nil {
		return "", errors.New("email: must be a valid email address")
	}
	resp, err := m.api.ForgotPassword(ctx, email)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ResetPassword applies a new password
func (m *Manager) ResetPassword(ctx context.Context, form ResetPasswordForm) (string, error) {
	if err := m.check(form); err != nil {
		return "", err
	}
	resp, err := m.api.ResetPassword(ctx, client.ResetPasswordRequest{Token: form.Token, Password: form.Password})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// VerifyEmail confirms an address with the emailed token
func (m *Manager) VerifyEmail(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", errors.New("verification token is required")
	}
	resp, err := m.api.VerifyEmail(ctx, token)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ResendVerification sends the confirmation email again, typically for the
// address kept in an OutcomeEmailVerificationRequired result
func (m *Manager) ResendVerification(ctx context.Context, email string) (string, error) {
	if err := m.validate.Var(email, "required,email"); err != nil {
		return "", errors.New("email: must be a valid email address")
	}
	resp, err := m.api.ResendVerification(ctx, email)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// check validates a form and turns the first failure into a readable error
func (m *Manager) check(form any) error {
	err := m.validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s: is required", field)
	case "email":
		return fmt.Errorf("%s: must be a valid email address", field)
	case "min":
		return fmt.Errorf("%s: must be at least %s characters", field, fe.Param())
	case "eqfield":
		return errors.New("passwords do not match")
	}
	return fmt.Errorf("%s: is invalid", field)
}
