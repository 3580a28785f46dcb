package apierr

import (
	"fmt"
	"net/http"
)

// Error carries the HTTP status and a stable machine-readable code next to
// the user-facing message. Hint is optional remediation text.
type Error struct {
	Status  int
	Code    string
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func WithMessage(status int, code, message, hint string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Hint: hint, Err: err}
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Message: "Something went wrong. Please try again.", Err: err}
}
