package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/collegeos/portal/internal/cli/commands"
	"github.com/collegeos/portal/internal/config"
	"github.com/collegeos/portal/internal/logger"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the collegeos command tree. The App is created lazily
// after flags are parsed so --api-url and --verbose apply to it.
func NewRootCmd() *cobra.Command {
	var apiURL string
	var verbose bool
	var app *commands.App

	provide := func() (*commands.App, error) {
		if app != nil {
			return app, nil
		}

		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if apiURL != "" {
			cfg.API.BaseURL = strings.TrimRight(apiURL, "/")
		}

		// Command output goes to stdout; logs stay on stderr and are quiet by default
		level := cfg.Logging.Level
		if os.Getenv("LOG_LEVEL") == "" {
			level = "warn"
		}
		if verbose {
			level = "debug"
		}
		format := cfg.Logging.Format
		if os.Getenv("LOG_FORMAT") == "" {
			format = "console"
		}
		logger.Init(level, format, os.Stderr)

		a, err := commands.NewApp(cfg, logger.GetLogger(), os.Stdout)
		if err != nil {
			return nil, err
		}
		app = a
		return app, nil
	}

	rootCmd := &cobra.Command{
		Use:   "collegeos",
		Short: "College OS - campus portal from the terminal",
		Long: `College OS CLI - sign in, manage two-factor authentication and follow
campus alerts and chat from the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				if err := app.Close(); err != nil {
					app.Log.Warn().Err(err).Msg("Failed to close local state")
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend API URL (or set COLLEGEOS_API_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "collegeos version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewLoginCmd(provide))
	rootCmd.AddCommand(commands.NewLogoutCmd(provide))
	rootCmd.AddCommand(commands.NewWhoamiCmd(provide))
	rootCmd.AddCommand(commands.NewRegisterCmd(provide))
	rootCmd.AddCommand(commands.NewPasswordCmd(provide))
	rootCmd.AddCommand(commands.NewVerifyEmailCmd(provide))
	rootCmd.AddCommand(commands.NewResendVerificationCmd(provide))
	rootCmd.AddCommand(commands.NewTwoFactorCmd(provide))
	rootCmd.AddCommand(commands.NewAlertsCmd(provide))
	rootCmd.AddCommand(commands.NewChatCmd(provide))
	rootCmd.AddCommand(commands.NewGetCmd(provide))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
