package ai

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeProviderNotConfigured Code = "provider_not_configured"
	CodeUnknownProvider       Code = "unknown_provider"
	CodeRateLimited           Code = "rate_limited"
	CodeUpstream              Code = "upstream_error"
	CodeBadRequest            Code = "bad_request"
	CodeEmptyResponse         Code = "empty_response"
)

// Error is returned by every provider. Errors compare equal under errors.Is
// when their codes match, so callers test against the sentinels below.
type Error struct {
	Code       Code
	Provider   string
	Message    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) HTTPStatusCode() int { return e.StatusCode }

var (
	ErrProviderNotConfigured = &Error{Code: CodeProviderNotConfigured}
	ErrUnknownProvider       = &Error{Code: CodeUnknownProvider}
	ErrEmptyResponse         = &Error{Code: CodeEmptyResponse}
)

func NotConfigured(provider, envVar string) *Error {
	return &Error{
		Code:     CodeProviderNotConfigured,
		Provider: provider,
		Message:  fmt.Sprintf("missing %s", envVar),
	}
}

// FromStatus classifies an HTTP failure from a backend.
func FromStatus(provider string, status int, body string) *Error {
	e := &Error{Provider: provider, StatusCode: status, Message: fmt.Sprintf("http %d: %s", status, truncate(body, 512))}
	switch {
	case status == 401 || status == 403:
		e.Code = CodeProviderNotConfigured
	case status == 429:
		e.Code, e.Retryable = CodeRateLimited, true
	case status == 408 || status >= 500:
		e.Code, e.Retryable = CodeUpstream, true
	default:
		e.Code = CodeBadRequest
	}
	return e
}

func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
