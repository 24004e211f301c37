// Package keyring stores the backend API token in the OS keychain.
package keyring

import (
	"errors"
	"fmt"
	"os"

	zkr "github.com/zalando/go-keyring"
)

const (
	serviceName = "pairlink"
	accountName = "backend-token"
)

// ErrNotFound is returned when no token is stored.
var ErrNotFound = errors.New("no backend token in keychain")

// GetToken retrieves the backend token.
func GetToken() (string, error) {
	tok, err := zkr.Get(serviceName, accountName)
	if errors.Is(err, zkr.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keychain get: %w", err)
	}
	return tok, nil
}

// SetToken stores the backend token, replacing any previous one.
func SetToken(token string) error {
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}
	if err := zkr.Set(serviceName, accountName, token); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

// DeleteToken removes the stored token. A missing token is not an error.
func DeleteToken() error {
	err := zkr.Delete(serviceName, accountName)
	if err != nil && !errors.Is(err, zkr.ErrNotFound) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}

// Available returns true if the OS keychain is functional.
// PAIRLINK_KEYRING_DISABLED=1 turns it off for headless hosts and CI.
func Available() bool {
	if os.Getenv("PAIRLINK_KEYRING_DISABLED") == "1" {
		return false
	}
	const checkService, checkAccount = "pairlink-keyring-check", "check"
	if err := zkr.Set(checkService, checkAccount, "ok"); err != nil {
		return false
	}
	_ = zkr.Delete(checkService, checkAccount)
	return true
}
