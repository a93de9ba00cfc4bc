package core

import (
	"fmt"
	"time"
)

// Error represents a structured gateway error with code and optional cause.
// The set of codes is closed: every failure that crosses the gateway
// boundary is one of the predeclared values below.
type Error struct {
	Code    string
	Message string
	Cause   error

	// HTTP_ERROR details, preserved for diagnostics.
	Status int
	Body   string

	// RATE_LIMITED backoff hint.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	if e.Code == "HTTP_ERROR" && e.Status != 0 {
		return fmt.Sprintf("[%s] %s: status %d", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined gateway errors. Use these with errors.Is to branch on the
// failure kind; use the constructors below when variant data must be
// attached.
var (
	ErrMissingCredentials    = &Error{Code: "MISSING_CREDENTIALS", Message: "provider credentials not configured"}
	ErrUnsupportedCapability = &Error{Code: "UNSUPPORTED_CAPABILITY", Message: "no provider supports the requested capability"}
	ErrHTTP                  = &Error{Code: "HTTP_ERROR", Message: "provider returned an error response"}
	ErrRateLimited           = &Error{Code: "RATE_LIMITED", Message: "provider rate limit exceeded"}
	ErrParse                 = &Error{Code: "PARSE_ERROR", Message: "provider response could not be parsed"}
	ErrProviderUnavailable   = &Error{Code: "PROVIDER_UNAVAILABLE", Message: "provider unreachable"}

	ErrProviderNotFound = &Error{Code: "PROVIDER_NOT_FOUND", Message: "unknown provider"}
	ErrInvalidInput     = &Error{Code: "INVALID_INPUT", Message: "invalid request input"}
)

// NewHTTPError builds an HTTP_ERROR carrying the upstream status and
// body verbatim.
func NewHTTPError(status int, body string) *Error {
	return &Error{
		Code:    ErrHTTP.Code,
		Message: ErrHTTP.Message,
		Status:  status,
		Body:    body,
	}
}

// NewRateLimited builds a RATE_LIMITED error with the provider's
// suggested backoff. A zero retryAfter means the provider gave none.
func NewRateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Code:       ErrRateLimited.Code,
		Message:    ErrRateLimited.Message,
		RetryAfter: retryAfter,
	}
}

// NewParseError builds a PARSE_ERROR with a cause describing what was
// malformed.
func NewParseError(cause error) *Error {
	return WrapError(ErrParse, cause)
}
