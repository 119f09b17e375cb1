package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/collegeos/portal/internal/auth"
	"github.com/collegeos/portal/internal/cli/client"
	"github.com/collegeos/portal/internal/cli/twofactor"
)

var (
	ErrNoChallenge  = errors.New("no two-factor challenge in progress")
	ErrCodeRejected = errors.New("two-factor code was not accepted")
	ErrRoleChanged  = errors.New("your role has changed, please sign in again")
)

// API is the subset of the REST client the manager uses
type API interface {
	BaseURL() string
	SeedToken(token string)
	ClearToken()
	Token() string
	Login(ctx context.Context, req client.LoginRequest) (*client.LoginResponse, error)
	Me(ctx context.Context, opts ...client.RequestOption) (*client.User, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, req client.RegisterRequest) (*client.MessageResponse, error)
	ForgotPassword(ctx context.Context, email string) (*client.MessageResponse, error)
	ResetPassword(ctx context.Context, req client.ResetPasswordRequest) (*client.MessageResponse, error)
	VerifyEmail(ctx context.Context, token string) (*client.MessageResponse, error)
	ResendVerification(ctx context.Context, email string) (*client.MessageResponse, error)
}

// TokenStore persists the session token between processes
type TokenStore interface {
	SaveToken(key, token string) error
	LoadToken(key string) (string, error)
	DeleteToken(key string) error
}

// Listener is notified after every state transition
type Listener func(State, *Session)

// Manager holds the current session and performs every transition of it
type Manager struct {
	api      API
	tokens   TokenStore
	log      zerolog.Logger
	validate *validator.Validate

	mu        sync.RWMutex
	state     State
	session   *Session
	listeners []Listener

	restored    chan struct{}
	restoreOnce sync.Once
}

// Option configures a Manager
type Option func(*Manager)

// WithTokenStore persists the session token after login
func WithTokenStore(ts TokenStore) Option {
	return func(m *Manager) {
		m.tokens = ts
	}
}

// NewManager creates a manager in StateUnknown. Call Restore before trusting
// any authorization decision.
func NewManager(api API, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		api:      api,
		log:      log,
		validate: validator.New(),
		restored: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore asks the backend who the current credential belongs to. Any
// failure leaves the manager anonymous. IsLoading is false once it returns.
func (m *Manager) Restore(ctx context.Context) State {
	defer m.restoreOnce.Do(func() { close(m.restored) })

	if m.tokens != nil {
		token, err := m.tokens.LoadToken(m.api.BaseURL())
		if err == nil && token != "" {
			m.api.SeedToken(token)
		}
	}

	user, err := m.api.Me(ctx)
	if err != nil {
		if client.IsUnauthorized(err) {
			m.forgetToken()
		}
		m.log.Debug().Err(err).Msg("No session to restore")
		m.set(StateAnonymous, nil)
		return StateAnonymous
	}

	sess, err := sessionFromUser(user)
	if err != nil {
		m.log.Warn().Err(err).Msg("Discarding malformed session")
		m.set(StateAnonymous, nil)
		return StateAnonymous
	}

	m.set(StateAuthenticated, sess)
	return StateAuthenticated
}

// IsLoading reports whether the first Restore is still running
func (m *Manager) IsLoading() bool {
	select {
	case <-m.restored:
		return false
	default:
		return true
	}
}

// Wait blocks until the first Restore has completed
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.restored:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Current returns a copy of the session, or nil when not signed in
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	cp := *m.session
	return &cp
}

// Subscribe registers l for state transitions
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Outcome distinguishes the three results of a login attempt
type Outcome int

const (
	OutcomeAuthenticated Outcome = iota
	OutcomeTwoFactorRequired
	OutcomeEmailVerificationRequired
)

// Challenge is an in-progress login. It keeps the submitted credentials in
// memory only so they can be resubmitted with the two-factor code.
type Challenge struct {
	Email            string
	password         string
	PendingTwoFactor bool
}

// LoginResult describes what the caller must do next
type LoginResult struct {
	Outcome Outcome
	// Session is set for OutcomeAuthenticated
	Session *Session
	// RedirectTo is the landing page for OutcomeAuthenticated
	RedirectTo string
	// Challenge is set for OutcomeTwoFactorRequired
	Challenge *Challenge
	// Email is the submitted address, kept for the resend-verification action
	Email string
}

// Login submits credentials. Only OutcomeAuthenticated creates a session.
// Server messages for rejected credentials are returned verbatim.
func (m *Manager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	form := LoginForm{Email: email, Password: password}
	if err := m.check(form); err != nil {
		return nil, err
	}

	resp, err := m.api.Login(ctx, client.LoginRequest{Email: email, Password: password})
	if err != nil {
		m.log.Debug().Err(err).Str("email", email).Msg("Login rejected")
		return nil, err
	}

	if resp.EmailVerificationRequired {
		return &LoginResult{Outcome: OutcomeEmailVerificationRequired, Email: email}, nil
	}
	if resp.TwoFactorRequired {
		return &LoginResult{
			Outcome:   OutcomeTwoFactorRequired,
			Email:     email,
			Challenge: &Challenge{Email: email, password: password, PendingTwoFactor: true},
		}, nil
	}

	return m.establish(ctx, resp, email, false)
}

// CompleteChallenge resubmits the challenge's original credentials together
// with the code. On failure the session stays absent and the input is cleared.
func (m *Manager) CompleteChallenge(ctx context.Context, ch *Challenge, in *twofactor.CodeInput) (*LoginResult, error) {
	if ch == nil || !ch.PendingTwoFactor {
		return nil, ErrNoChallenge
	}
	if err := twofactor.ValidateCode(in.Value()); err != nil {
		in.Clear()
		return nil, err
	}

	resp, err := m.api.Login(ctx, client.LoginRequest{
		Email:    ch.Email,
		Password: ch.password,
		Code:     in.Value(),
	})
	if err != nil {
		in.Clear()
		return nil, err
	}
	if resp.TwoFactorRequired || resp.EmailVerificationRequired {
		in.Clear()
		return nil, ErrCodeRejected
	}

	res, err := m.establish(ctx, resp, ch.Email, true)
	if err != nil {
		in.Clear()
		return nil, err
	}
	ch.PendingTwoFactor = false
	ch.password = ""
	return res, nil
}

// establish builds the session from a successful login response. The token
// arrives in the body, in the Set-Cookie header, or both.
func (m *Manager) establish(ctx context.Context, resp *client.LoginResponse, submittedEmail string, usedCode bool) (*LoginResult, error) {
	token := resp.Token
	if token != "" {
		m.api.SeedToken(token)
	} else {
		token = m.api.Token()
	}

	userID := resp.ID
	if userID == "" && token != "" {
		if claims, err := auth.PeekClaims(token); err == nil {
			userID = claims.UserID
		}
	}
	if userID == "" && token != "" {
		user, err := m.api.Me(ctx)
		if err != nil {
			m.api.ClearToken()
			return nil, fmt.Errorf("login response rejected: %w", err)
		}
		userID = user.ID
	}

	email := resp.Email
	if email == "" {
		email = submittedEmail
	}
	twoFactorEnabled := usedCode
	if resp.TwoFactorEnabled != nil {
		twoFactorEnabled = *resp.TwoFactorEnabled
	}

	sess, err := newSession(userID, resp.Name, email, resp.Role, twoFactorEnabled)
	if err != nil {
		m.api.ClearToken()
		return nil, fmt.Errorf("login response rejected: %w", err)
	}

	if token != "" && m.tokens != nil {
		if err := m.tokens.SaveToken(m.api.BaseURL(), token); err != nil {
			m.log.Warn().Err(err).Msg("Failed to persist session token")
		}
	}

	m.set(StateAuthenticated, sess)
	m.log.Info().Str("user_id", sess.UserID).Str("role", string(sess.Role)).Msg("Signed in")

	cp := *sess
	return &LoginResult{
		Outcome:    OutcomeAuthenticated,
		Session:    &cp,
		RedirectTo: LandingPath,
		Email:      email,
	}, nil
}

// Logout invalidates the server-side session and always clears local state,
// even when the network call fails. The network error is still returned.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.api.Logout(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Logout request failed, clearing local session anyway")
	}

	m.forgetToken()
	m.set(StateAnonymous, nil)
	return err
}

// RefreshUser re-reads the session after an action that changed it. A role
// different from the current session's drops the session without ever
// publishing the new role.
func (m *Manager) RefreshUser(ctx context.Context) error {
	prev := m.Current()

	user, err := m.api.Me(ctx)
	if err != nil {
		if client.IsUnauthorized(err) {
			m.forgetToken()
		}
		m.set(StateAnonymous, nil)
		return fmt.Errorf("session is no longer valid: %w", err)
	}

	sess, err := sessionFromUser(user)
	if err != nil {
		m.set(StateAnonymous, nil)
		return fmt.Errorf("session is no longer valid: %w", err)
	}

	if prev != nil && prev.UserID == sess.UserID && prev.Role != sess.Role {
		m.log.Warn().
			Str("user_id", sess.UserID).
			Str("previous_role", string(prev.Role)).
			Str("role", string(sess.Role)).
			Msg("Role changed during session")
		m.forgetToken()
		m.set(StateAnonymous, nil)
		return ErrRoleChanged
	}

	m.set(StateAuthenticated, sess)
	return nil
}

func (m *Manager) forgetToken() {
	m.api.ClearToken()
	if m.tokens != nil {
		if err := m.tokens.DeleteToken(m.api.BaseURL()); err != nil {
			m.log.Warn().Err(err).Msg("Failed to delete stored session token")
		}
	}
}

func (m *Manager) set(state State, sess *Session) {
	m.mu.Lock()
	m.state = state
	m.session = sess
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		var cp *Session
		if sess != nil {
			s := *sess
			cp = &s
		}
		l(state, cp)
	}
}
