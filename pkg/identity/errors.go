package identity

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies identity-provider failures into the closed taxonomy
// the rest of the system switches on. Classification happens exactly
// once, at the boundary where the provider response is received; every
// caller above matches with errors.Is/errors.As and never inspects
// provider status codes or message strings.
type Code string

const (
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeIdentifierNotFound Code = "identifier_not_found"
	CodeRateLimited        Code = "rate_limited"
	CodeSessionExpired     Code = "session_expired"
	CodeRefreshFailed      Code = "refresh_failed"
	CodeNetwork            Code = "network"
	CodeProviderConfig     Code = "provider_config"
	CodeUnknown            Code = "unknown"
)

// Error is a classified provider failure. Message is safe to show to
// end users; the wrapped cause carries the raw provider detail for logs.
type Error struct {
	Code    Code
	Message string

	// RetryAfter is set only for CodeRateLimited.
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code, so sentinel comparisons
// like errors.Is(err, identity.ErrRateLimited) hold regardless of the
// message or cause attached at classification time.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is matching. Never returned directly; the
// provider boundary wraps each with the human-readable message and cause
// for the concrete failure.
var (
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	ErrIdentifierNotFound = &Error{Code: CodeIdentifierNotFound, Message: "no account exists for that email"}
	ErrRateLimited        = &Error{Code: CodeRateLimited, Message: "too many attempts, try again later"}
	ErrSessionExpired     = &Error{Code: CodeSessionExpired, Message: "session expired, sign in again"}
	ErrRefreshFailed      = &Error{Code: CodeRefreshFailed, Message: "session could not be renewed"}
	ErrNetwork            = &Error{Code: CodeNetwork, Message: "identity service unreachable"}
	ErrProviderConfig     = &Error{Code: CodeProviderConfig, Message: "identity service rejected the request"}
)

// NewError builds a classified error with a caller-facing message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError attaches the raw provider failure as the cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// RateLimitedError carries the wait the provider (or our own limiter)
// asked for.
func RateLimitedError(retryAfter time.Duration) *Error {
	return &Error{
		Code:       CodeRateLimited,
		Message:    "too many attempts, try again later",
		RetryAfter: retryAfter,
	}
}

// CodeOf extracts the taxonomy code, CodeUnknown for unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
