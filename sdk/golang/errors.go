package authrelay

import "fmt"

// Error is returned by a hook callback to choose the status the relay sees.
// The relay treats any non-2xx answer as a rejected login.
type Error struct {
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authrelay: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("authrelay: %s", e.Message)
}

// Reject builds an Error answering with 403 Forbidden.
func Reject(message string) *Error {
	if message == "" {
		message = "login rejected"
	}
	return &Error{Message: message, StatusCode: 403}
}
