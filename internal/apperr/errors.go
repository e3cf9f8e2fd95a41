// Package apperr defines the error-kind taxonomy shared across the policy
// decision point, and the propagation/status-mapping rules that go with it.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure, independent of the underlying
// Go error type. Callers switch on Kind, never on a concrete struct.
type Kind string

const (
	KindParse      Kind = "parse_error"
	KindValidation Kind = "validation_error"
	KindNotFound   Kind = "not_found_error"
	KindEvaluation Kind = "evaluation_error"
	KindCache      Kind = "cache_error"
	KindStore      Kind = "store_error"
	KindAuth       Kind = "auth_error"
	KindRateLimit  Kind = "rate_limit_error"
	KindTimeout    Kind = "timeout_error"
	KindConflict   Kind = "conflict_error"
)

// Error wraps an underlying cause with a Kind and optional context fields.
// It is the only error type constructed across package boundaries; internal
// packages should wrap stdlib/library errors into one of these before they
// cross a port.
type Error struct {
	Kind      Kind
	Message   string
	RequestID string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithRequestID attaches a request id for correlation and returns the
// receiver for chaining.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// KindOf extracts the Kind from err, walking the Unwrap chain. Returns
// ("", false) if err does not wrap an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HTTPStatus maps a Kind to the status code an external HTTP transport
// (out of scope to build here, but documented by spec section 7) should
// return. Transports importing this package get the mapping for free.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindParse, KindValidation:
		return 400
	case KindAuth:
		return 401
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindRateLimit:
		return 429
	case KindTimeout:
		return 408
	case KindEvaluation, KindStore:
		return 500
	default:
		return 500
	}
}

// IsRecoverable reports whether errors of this kind must be swallowed by
// the caller rather than propagated (spec section 7 propagation policy):
// cache errors degrade to miss/no-op, audit errors log-and-continue.
func (k Kind) IsRecoverable() bool {
	return k == KindCache
}
