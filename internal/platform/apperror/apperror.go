// Package apperror defines the error taxonomy shared by the HTTP and
// GraphQL surfaces. Every expected business outcome (bad input, missing
// record, duplicate, auth failure, throttling) is an *Error with a Kind
// and an HTTP status; anything else is classified as internal.
package apperror

import (
	"errors"
	"net/http"
)

// Kind identifies the category of an application error.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindUnauthorized    Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindRateLimited     Kind = "RATE_LIMITED"
	KindInternal        Kind = "INTERNAL_ERROR"
)

// Error is a client-facing application error.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Fields carries per-field validation messages, keyed by field name.
	Fields map[string]string
	// Err is the wrapped cause, never shown to clients.
	Err error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Status: statusFor(kind), Message: message}
}

// Wrap attaches a cause to a new *Error. The cause is available via
// errors.Unwrap but never serialized.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.Err = cause
	return e
}

func Validation(message string, fields map[string]string) *Error {
	e := New(KindValidation, message)
	e.Fields = fields
	return e
}

func NotFound(message string) *Error        { return New(KindNotFound, message) }
func Conflict(message string) *Error        { return New(KindConflict, message) }
func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }
func Unauthorized(message string) *Error    { return New(KindUnauthorized, message) }
func RateLimited(message string) *Error     { return New(KindRateLimited, message) }

// Internal wraps an unexpected failure. The client always sees the
// generic message; the cause stays server-side.
func Internal(cause error) *Error {
	return Wrap(KindInternal, "internal server error", cause)
}

func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Classify returns err as an *Error, converting unknown errors to
// internal ones so the caller always has a status and a safe message.
func Classify(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// IsKind reports whether err classifies to the given kind.
func IsKind(err error, kind Kind) bool {
	return Classify(err).Kind == kind
}
