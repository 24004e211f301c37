package pairing

import (
	"fmt"
	"strings"
)

const (
	MinPhoneDigits = 10
	MaxPhoneDigits = 15
)

// Digits returns s with every non-digit removed.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone strips formatting from the country prefix and the local
// number, concatenates them and validates the total length. The result is a
// digit-only international number without a leading "+".
func NormalizePhone(prefix, number string) (string, error) {
	phone := Digits(prefix) + Digits(number)
	if n := len(phone); n < MinPhoneDigits || n > MaxPhoneDigits {
		return "", fmt.Errorf("%w (got %d)", ErrInvalidPhone, n)
	}
	return phone, nil
}
