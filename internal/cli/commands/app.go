package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/collegeos/portal/internal/cli/client"
	"github.com/collegeos/portal/internal/cli/credentials"
	"github.com/collegeos/portal/internal/cli/localstate"
	"github.com/collegeos/portal/internal/cli/session"
	"github.com/collegeos/portal/internal/cli/twofactor"
	"github.com/collegeos/portal/internal/config"
	"github.com/collegeos/portal/internal/routes"
)

var ErrNotSignedIn = errors.New("not signed in. Please run 'collegeos login' first")

// App carries the dependencies shared by every command. One App exists per
// process and its session manager is the only place the session changes.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Client  *client.Client
	Session *session.Manager
	Routes  *routes.Table
	Prompt  Prompter
	Out     io.Writer
	Now     func() time.Time

	state *localstate.Store
}

// Provider returns the App for the running command
type Provider func() (*App, error)

// NewApp wires the REST client and session manager from cfg. Tokens are kept
// in the OS keyring unless disabled in cfg; opts are applied after that.
func NewApp(cfg *config.Config, log zerolog.Logger, out io.Writer, opts ...session.Option) (*App, error) {
	apiClient, err := client.New(cfg.API.BaseURL, cfg.API.Timeout)
	if err != nil {
		return nil, err
	}

	var managerOpts []session.Option
	if cfg.CLI.UseKeyring {
		managerOpts = append(managerOpts, session.WithTokenStore(credentials.Keyring{}))
	}
	managerOpts = append(managerOpts, opts...)

	return &App{
		Config:  cfg,
		Log:     log,
		Client:  apiClient,
		Session: session.NewManager(apiClient, log, managerOpts...),
		Routes:  routes.Default(),
		Prompt:  terminalPrompter{},
		Out:     out,
		Now:     time.Now,
	}, nil
}

// RequireSession restores the stored session and fails when there is none
func (a *App) RequireSession(ctx context.Context) (*session.Session, error) {
	if a.Session.Restore(ctx) != session.StateAuthenticated {
		return nil, ErrNotSignedIn
	}
	return a.Session.Current(), nil
}

// LocalState opens the client-only store on first use
func (a *App) LocalState() (*localstate.Store, error) {
	if a.state != nil {
		return a.state, nil
	}
	st, err := localstate.Open(a.Config.CLI.StateFile)
	if err != nil {
		return nil, err
	}
	a.state = st
	return st, nil
}

// Close releases the local store
func (a *App) Close() error {
	if a.state == nil {
		return nil
	}
	err := a.state.Close()
	a.state = nil
	return err
}

// TwoFactor returns a flow bound to this App's client and session
func (a *App) TwoFactor() *twofactor.Flow {
	return twofactor.NewFlow(a.Client, a.Session, a.Log)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}
