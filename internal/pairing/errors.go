package pairing

import "errors"

var (
	// ErrInvalidPhone is returned before any network call when the combined
	// prefix and number do not have MinPhoneDigits..MaxPhoneDigits digits.
	ErrInvalidPhone = errors.New("phone number must have 10 to 15 digits including the country code")

	// ErrRateLimited is returned when pairing-code requests arrive faster than
	// the client-side limiter allows.
	ErrRateLimited = errors.New("too many pairing code requests, wait a moment and try again")

	// ErrNotConfirmed is returned when a destructive action is invoked without
	// explicit confirmation.
	ErrNotConfirmed = errors.New("action requires explicit confirmation")

	// ErrInvalidMethod is returned for an unknown pairing method.
	ErrInvalidMethod = errors.New("pairing method must be \"qr\" or \"code\"")
)
