package twofactor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/pquerna/otp"
	"github.com/rs/zerolog"

	"github.com/collegeos/portal/internal/cli/client"
)

// State is the enrollment state of the current user
type State int

const (
	StateDisabled State = iota
	StateSetupPending
	StateEnabled
)

func (s State) String() string {
	switch s {
	case StateSetupPending:
		return "setup pending"
	case StateEnabled:
		return "enabled"
	default:
		return "disabled"
	}
}

var (
	ErrNoPendingSetup = errors.New("no two-factor setup in progress")
	ErrNotEnabled     = errors.New("two-factor authentication is not enabled")
)

// API is the subset of the REST client the flow needs
type API interface {
	TwoFactorStatus(ctx context.Context) (*client.TwoFactorStatus, error)
	TwoFactorSetup(ctx context.Context) (*client.TwoFactorSetupResponse, error)
	TwoFactorVerify(ctx context.Context, code string) error
	TwoFactorDisable(ctx context.Context, code string) error
}

// SessionRefresher re-reads the session after twoFactorEnabled changes
type SessionRefresher interface {
	RefreshUser(ctx context.Context) error
}

// Setup is an unconfirmed secret with its QR code
type Setup struct {
	Secret        string
	QRCodeDataURI string
}

// ProvisioningURL returns an otpauth:// URL for manual entry in authenticator apps
func (s *Setup) ProvisioningURL(issuer, account string) (string, error) {
	v := url.Values{}
	v.Set("secret", s.Secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")
	v.Set("period", "30")

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + account,
		RawQuery: v.Encode(),
	}

	key, err := otp.NewKeyFromURL(u.String())
	if err != nil {
		return "", fmt.Errorf("invalid two-factor secret: %w", err)
	}
	return key.URL(), nil
}

// Flow drives enable/disable of two-factor authentication for the
// signed-in user.
type Flow struct {
	api     API
	session SessionRefresher
	log     zerolog.Logger

	mu      sync.Mutex
	state   State
	pending *Setup
}

// NewFlow creates a flow starting in StateDisabled; call Load to read the real state
func NewFlow(api API, session SessionRefresher, log zerolog.Logger) *Flow {
	return &Flow{api: api, session: session, log: log}
}

// State returns the current state
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending returns the unconfirmed setup, if any
func (f *Flow) Pending() *Setup {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return nil
	}
	cp := *f.pending
	return &cp
}

// Load reads the enrollment state from the backend
func (f *Flow) Load(ctx context.Context) (State, error) {
	status, err := f.api.TwoFactorStatus(ctx)
	if err != nil {
		return f.State(), err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
	if status.Enabled {
		f.state = StateEnabled
	} else {
		f.state = StateDisabled
	}
	return f.state, nil
}

// Setup requests a fresh secret. Any earlier unconfirmed secret is discarded.
func (f *Flow) Setup(ctx context.Context) (*Setup, error) {
	resp, err := f.api.TwoFactorSetup(ctx)
	if err != nil {
		return nil, err
	}

	setup := &Setup{Secret: resp.Secret, QRCodeDataURI: resp.QRCode}

	f.mu.Lock()
	f.pending = setup
	f.state = StateSetupPending
	f.mu.Unlock()

	f.log.Debug().Msg("Two-factor setup started")
	cp := *setup
	return &cp, nil
}

// Resume marks a setup started by an earlier process as pending so it can be
// confirmed with Verify. The unconfirmed secret itself stays with the backend.
func (f *Flow) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateDisabled {
		f.state = StateSetupPending
		f.pending = &Setup{}
	}
}

// Cancel abandons a pending setup
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSetupPending {
		f.state = StateDisabled
		f.pending = nil
	}
}

// Verify confirms the pending secret. On rejection the state is unchanged,
// the input is cleared and the server message is returned verbatim.
func (f *Flow) Verify(ctx context.Context, in *CodeInput) error {
	if f.State() != StateSetupPending {
		return ErrNoPendingSetup
	}
	if err := ValidateCode(in.Value()); err != nil {
		in.Clear()
		return err
	}

	if err := f.api.TwoFactorVerify(ctx, in.Value()); err != nil {
		in.Clear()
		return err
	}

	f.mu.Lock()
	f.state = StateEnabled
	f.pending = nil
	f.mu.Unlock()
	in.Clear()

	f.log.Info().Msg("Two-factor authentication enabled")
	return f.refresh(ctx)
}

// Disable turns 2FA off after confirming a current code
func (f *Flow) Disable(ctx context.Context, in *CodeInput) error {
	if f.State() != StateEnabled {
		return ErrNotEnabled
	}
	if err := ValidateCode(in.Value()); err != nil {
		in.Clear()
		return err
	}

	if err := f.api.TwoFactorDisable(ctx, in.Value()); err != nil {
		in.Clear()
		return err
	}

	f.mu.Lock()
	f.state = StateDisabled
	f.mu.Unlock()
	in.Clear()

	f.log.Info().Msg("Two-factor authentication disabled")
	return f.refresh(ctx)
}

func (f *Flow) refresh(ctx context.Context) error {
	if f.session == nil {
		return nil
	}
	if err := f.session.RefreshUser(ctx); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	return nil
}
