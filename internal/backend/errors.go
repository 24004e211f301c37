package backend

import (
	"errors"
	"fmt"
)

// ErrTransport marks failures where the request never produced a usable
// backend answer (dial errors, timeouts, non-JSON bodies, 5xx without a body).
var ErrTransport = errors.New("backend unavailable")

// RejectedError is returned when the backend received the request and
// refused it. Message is the backend's own text and is shown verbatim.
type RejectedError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Message)
}

// Message returns the text a user should see for err: the backend's verbatim
// message when it rejected the request, the error string otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Message
	}
	return err.Error()
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}
