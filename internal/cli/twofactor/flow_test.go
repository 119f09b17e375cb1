package twofactor

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collegeos/portal/internal/cli/client"
)

// mockAPI records codes and answers with canned results
type mockAPI struct {
	enabled    bool
	setups     int
	verifyErr  error
	disableErr error
	sent       []string
}

func (m *mockAPI) TwoFactorStatus(ctx context.Context) (*client.TwoFactorStatus, error) {
	return &client.TwoFactorStatus{Enabled: m.enabled}, nil
}

func (m *mockAPI) TwoFactorSetup(ctx context.Context) (*client.TwoFactorSetupResponse, error) {
	m.setups++
	secret := "JBSWY3DPEHPK3PXP"
	if m.setups > 1 {
		secret = "KRSXG5CTMVRXEZLU"
	}
	return &client.TwoFactorSetupResponse{Secret: secret, QRCode: "data:image/png;base64,AAAA"}, nil
}

func (m *mockAPI) TwoFactorVerify(ctx context.Context, code string) error {
	m.sent = append(m.sent, code)
	if m.verifyErr != nil {
		return m.verifyErr
	}
	m.enabled = true
	return nil
}

func (m *mockAPI) TwoFactorDisable(ctx context.Context, code string) error {
	m.sent = append(m.sent, code)
	if m.disableErr != nil {
		return m.disableErr
	}
	m.enabled = false
	return nil
}

type countingRefresher struct {
	calls int
}

func (r *countingRefresher) RefreshUser(ctx context.Context) error {
	r.calls++
	return nil
}

func TestFlow_SetupVerify(t *testing.T) {
	api := &mockAPI{}
	refresher := &countingRefresher{}
	f := NewFlow(api, refresher, zerolog.Nop())
	ctx := context.Background()

	state, err := f.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, StateDisabled, state)

	first, err := f.Setup(ctx)
	require.NoError(t, err)
	second, err := f.Setup(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)
	require.Equal(t, second.Secret, f.Pending().Secret)
	require.Equal(t, StateSetupPending, f.State())

	in := NewCodeInput("123 456")
	require.NoError(t, f.Verify(ctx, in))
	require.Equal(t, StateEnabled, f.State())
	require.Nil(t, f.Pending())
	require.Equal(t, []string{"123456"}, api.sent)
	require.Equal(t, 1, refresher.calls)
}

func TestFlow_VerifyRejected(t *testing.T) {
	api := &mockAPI{verifyErr: &client.APIError{StatusCode: 200, Message: "Invalid code"}}
	refresher := &countingRefresher{}
	f := NewFlow(api, refresher, zerolog.Nop())
	ctx := context.Background()

	_, err := f.Setup(ctx)
	require.NoError(t, err)

	in := NewCodeInput("654321")
	err = f.Verify(ctx, in)
	require.EqualError(t, err, "Invalid code")
	require.Equal(t, StateSetupPending, f.State())
	require.NotNil(t, f.Pending())
	require.Empty(t, in.Value())
	require.Zero(t, refresher.calls)
}

func TestFlow_ClientSideValidationSkipsNetwork(t *testing.T) {
	api := &mockAPI{}
	f := NewFlow(api, nil, zerolog.Nop())
	ctx := context.Background()

	_, err := f.Setup(ctx)
	require.NoError(t, err)

	err = f.Verify(ctx, NewCodeInput("12ab3"))
	require.ErrorIs(t, err, ErrInvalidCode)
	require.ErrorIs(t, f.Verify(ctx, nil), ErrInvalidCode)
	require.Equal(t, StateSetupPending, f.State())
	require.Empty(t, api.sent)
}

func TestFlow_VerifyWithoutSetup(t *testing.T) {
	f := NewFlow(&mockAPI{}, nil, zerolog.Nop())
	require.ErrorIs(t, f.Verify(context.Background(), NewCodeInput("123456")), ErrNoPendingSetup)
}

func TestFlow_Cancel(t *testing.T) {
	f := NewFlow(&mockAPI{}, nil, zerolog.Nop())
	_, err := f.Setup(context.Background())
	require.NoError(t, err)

	f.Cancel()
	require.Equal(t, StateDisabled, f.State())
	require.Nil(t, f.Pending())
}

func TestFlow_Resume(t *testing.T) {
	refresher := &countingRefresher{}
	f := NewFlow(&mockAPI{}, refresher, zerolog.Nop())

	f.Resume()
	require.Equal(t, StateSetupPending, f.State())
	require.NoError(t, f.Verify(context.Background(), NewCodeInput("123456")))
	require.Equal(t, StateEnabled, f.State())

	// no effect once enabled
	f.Resume()
	require.Equal(t, StateEnabled, f.State())
}

func TestFlow_Disable(t *testing.T) {
	api := &mockAPI{enabled: true}
	refresher := &countingRefresher{}
	f := NewFlow(api, refresher, zerolog.Nop())
	ctx := context.Background()

	require.ErrorIs(t, NewFlow(&mockAPI{}, nil, zerolog.Nop()).Disable(ctx, NewCodeInput("123456")), ErrNotEnabled)

	_, err := f.Load(ctx)
	require.NoError(t, err)

	require.ErrorIs(t, f.Disable(ctx, nil), ErrInvalidCode)
	require.Equal(t, StateEnabled, f.State())

	api.disableErr = errors.New("Invalid code")
	in := NewCodeInput("111111")
	require.EqualError(t, f.Disable(ctx, in), "Invalid code")
	require.Equal(t, StateEnabled, f.State())
	require.Empty(t, in.Value())

	api.disableErr = nil
	require.NoError(t, f.Disable(ctx, NewCodeInput("222222")))
	require.Equal(t, StateDisabled, f.State())
	require.Equal(t, 1, refresher.calls)
}

func TestSetup_ProvisioningURL(t *testing.T) {
	s := &Setup{Secret: "JBSWY3DPEHPK3PXP"}
	u, err := s.ProvisioningURL("College OS", "a@x.com")
	require.NoError(t, err)
	require.Contains(t, u, "otpauth://totp/")
	require.Contains(t, u, "secret=JBSWY3DPEHPK3PXP")
}
