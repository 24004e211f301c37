package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
)

// formatActionError turns an action or poll error into one line for the
// operator. Backend rejections are shown verbatim; transport errors are
// classified so raw dial errors are not dumped on the terminal.
func formatActionError(err error) string {
	var rej *backend.RejectedError
	switch {
	case errors.Is(err, pairing.ErrInvalidPhone):
		return "Invalid phone number: enter 10 to 15 digits including the country code."
	case errors.Is(err, pairing.ErrRateLimited):
		return "Too many pairing code requests. Wait a few seconds and try again."
	case errors.Is(err, pairing.ErrNotConfirmed):
		return "Cancelled."
	case errors.As(err, &rej):
		return rej.Message
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, backend.ErrTransport):
		return formatTransportError(err)
	}
	return err.Error()
}

func formatTransportError(err error) string {
	lower := strings.ToLower(err.Error())

	if containsAny(lower, "connection refused", "no such host", "network is unreachable") {
		return "Backend unreachable. Check backend.url and that the assistant backend is running."
	}
	if containsAny(lower, "timeout", "timed out", "deadline exceeded") {
		return "Backend request timed out. Please try again."
	}
	if containsAny(lower, "certificate", "x509", "tls") {
		return "TLS error talking to the backend. Check the backend certificate."
	}
	if containsAny(lower, "unexpected status 401", "unexpected status 403") {
		return "Backend refused the credentials. Check backend.token or run 'pairlink token set'."
	}

	slog.Debug("unclassified transport error", "error", err)
	return "Backend unavailable: " + err.Error()
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// exitOnError prints a formatted error and exits.
func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", formatActionError(err))
	os.Exit(1)
}
