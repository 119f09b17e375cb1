package client

import (
	"context"
	"net/http"
	"net/url"
)

// LoginRequest represents the login request body. Code is only sent when
// answering a two-factor challenge, together with the original credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

// LoginResponse represents the login response. Exactly one of Token/session
// fields, TwoFactorRequired or EmailVerificationRequired is meaningful.
type LoginResponse struct {
	successEnvelope
	Token                     string `json:"token,omitempty"`
	TwoFactorRequired         bool   `json:"twoFactorRequired,omitempty"`
	EmailVerificationRequired bool   `json:"emailVerificationRequired,omitempty"`
	ID                        string `json:"id"`
	Email                     string `json:"email"`
	Role                      string `json:"role"`
	Name                      string `json:"name"`
	TwoFactorEnabled          *bool  `json:"twoFactorEnabled,omitempty"`
}

// User is the /auth/me payload
type User struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResetPasswordRequest represents the password reset request body
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// MessageResponse is the body of endpoints that only acknowledge
type MessageResponse struct {
	successEnvelope
}

// TwoFactorStatus is the /auth/2fa/status payload
type TwoFactorStatus struct {
	Enabled bool `json:"enabled"`
}

// TwoFactorSetupResponse carries a fresh, unconfirmed secret
type TwoFactorSetupResponse struct {
	successEnvelope
	Secret string `json:"secret"`
	QRCode string `json:"qrCode"`
}

type codeRequest struct {
	Code string `json:"code"`
}

// Login authenticates the user. Two-factor and email-verification
// challenges come back as a successful response with the matching flag set.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Request(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	if err := resp.failure(http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account; the backend sends a verification email
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*MessageResponse, error) {
	return c.acknowledge(ctx, http.MethodPost, "/auth/register", req)
}

// Me returns the user bound to the current session cookie
func (c *Client) Me(ctx context.Context, opts ...RequestOption) (*User, error) {
	var user User
	if err := c.Request(ctx, http.MethodGet, "/auth/me", nil, &user, opts...); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout invalidates the server-side session cookie
func (c *Client) Logout(ctx context.Context) error {
	return c.Request(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// ForgotPassword requests a password reset email
func (c *Client) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	return c.acknowledge(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email})
}

// ResetPassword sets a new password using the emailed reset token
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*MessageResponse, error) {
	return c.acknowledge(ctx, http.MethodPost, "/auth/reset-password", req)
}

// VerifyEmail confirms an email address with the emailed token
func (c *Client) VerifyEmail(ctx context.Context, token string) (*MessageResponse, error) {
	return c.acknowledge(ctx, http.MethodGet, "/auth/verify-email?token="+url.QueryEscape(token), nil)
}

// ResendVerification sends the verification email again
func (c *Client) ResendVerification(ctx context.Context, email string) (*MessageResponse, error) {
	return c.acknowledge(ctx, http.MethodPost, "/auth/resend-verification", map[string]string{"email": email})
}

// TwoFactorStatus reports whether 2FA is enabled for the session's user
func (c *Client) TwoFactorStatus(ctx context.Context) (*TwoFactorStatus, error) {
	var status TwoFactorStatus
	if err := c.Request(ctx, http.MethodGet, "/auth/2fa/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TwoFactorSetup requests a new secret and QR code
func (c *Client) TwoFactorSetup(ctx context.Context) (*TwoFactorSetupResponse, error) {
	var resp TwoFactorSetupResponse
	if err := c.Request(ctx, http.MethodPost, "/auth/2fa/setup", nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.failure(http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TwoFactorVerify confirms the pending secret with a code
func (c *Client) TwoFactorVerify(ctx context.Context, code string) error {
	_, err := c.acknowledge(ctx, http.MethodPost, "/auth/2fa/verify", codeRequest{Code: code})
	return err
}

// TwoFactorDisable turns 2FA off; code must come from the enabled authenticator
func (c *Client) TwoFactorDisable(ctx context.Context, code string) error {
	_, err := c.acknowledge(ctx, http.MethodPost, "/auth/2fa/disable", codeRequest{Code: code})
	return err
}

func (c *Client) acknowledge(ctx context.Context, method, endpoint string, body any) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.Request(ctx, method, endpoint, body, &resp); err != nil {
		return nil, err
	}
	if err := resp.failure(http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}
