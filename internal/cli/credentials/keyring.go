// Package credentials stores the CLI's session token in the OS keychain.
package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const service = "collegeos-cli"

// ErrNotFound is returned when no token is stored for an API
var ErrNotFound = errors.New("not signed in. Please run 'collegeos login' first")

// keyringKey returns a unique key per API base URL
func keyringKey(apiURL string) string {
	return fmt.Sprintf("token-%s", apiURL)
}

// Keyring implements session.TokenStore using the OS keychain/credential manager
type Keyring struct{}

// SaveToken persists the token securely
func (Keyring) SaveToken(apiURL, token string) error {
	if err := keyring.Set(service, keyringKey(apiURL), token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken retrieves the stored token
func (Keyring) LoadToken(apiURL string) (string, error) {
	token, err := keyring.Get(service, keyringKey(apiURL))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// DeleteToken removes the stored token. Deleting a missing token is not an error.
func (Keyring) DeleteToken(apiURL string) error {
	if err := keyring.Delete(service, keyringKey(apiURL)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
