package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/collegeos/portal/internal/cli/session"
)

type whoamiView struct {
	session.Session `yaml:",inline"`
	Pages           []session.NavLink `json:"pages" yaml:"pages"`
}

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(provide Provider) *cobra.Command {
	var output, check string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runWhoami(cmd.Context(), a, output, check)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	cmd.Flags().StringVar(&check, "check", "", "Report whether a portal page is reachable with this session")

	return cmd
}

func runWhoami(ctx context.Context, a *App, output, check string) error {
	sess, err := a.RequireSession(ctx)
	if err != nil {
		return err
	}

	if check != "" {
		if to := session.ClientRedirect(a.Routes, sess, check); to != "" {
			return fmt.Errorf("%s is not available to this session (would redirect to %s)", check, to)
		}
		a.printf("✓ %s is available\n", check)
		return nil
	}

	view := whoamiView{Session: *sess, Pages: session.NavLinks(sess)}
	return writeOutput(a.Out, output, view, func() error {
		twoFactor := "disabled"
		if sess.TwoFactorEnabled {
			twoFactor = "enabled"
		}

		paths := make([]string, 0, len(view.Pages))
		for _, l := range view.Pages {
			paths = append(paths, l.Path)
		}

		w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Name:\t%s\n", sess.Name)
		fmt.Fprintf(w, "Email:\t%s\n", sess.Email)
		fmt.Fprintf(w, "Role:\t%s\n", sess.Role)
		fmt.Fprintf(w, "2FA:\t%s\n", twoFactor)
		fmt.Fprintf(w, "Pages:\t%s\n", strings.Join(paths, ", "))
		return w.Flush()
	})
}
