package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

var ErrNonInteractive = errors.New("input required but stdin is not a terminal")

// Prompter reads input from the user
type Prompter interface {
	Password(label string) (string, error)
	Input(label string, validate func(string) error) (string, error)
	Confirm(label string) (bool, error)
}

type terminalPrompter struct{}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (terminalPrompter) Password(label string) (string, error) {
	if !isTerminal() {
		return "", ErrNonInteractive
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func (terminalPrompter) Input(label string, validate func(string) error) (string, error) {
	if !isTerminal() {
		return "", ErrNonInteractive
	}
	prompt := promptui.Prompt{
		Label:    label,
		Validate: validate,
	}
	return prompt.Run()
}

func (terminalPrompter) Confirm(label string) (bool, error) {
	if !isTerminal() {
		return false, ErrNonInteractive
	}
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// newPassword asks for a password twice unless one was given
func newPassword(p Prompter, given string) (password, confirm string, err error) {
	if given != "" {
		return given, given, nil
	}
	if password, err = p.Password("New password"); err != nil {
		return "", "", err
	}
	if confirm, err = p.Password("Confirm password"); err != nil {
		return "", "", err
	}
	return password, confirm, nil
}
