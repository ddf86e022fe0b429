// Package apperr provides standardized domain error types for the application.
// External clients classify their failures into these kinds, and the engine
// derives its retry and abort decisions from the kind alone.
package apperr

import (
	"errors"
	"fmt"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindTransient indicates a network, timeout, or upstream availability
	// failure. Safe to retry on a later cycle.
	KindTransient
	// KindRateLimited indicates the upstream throttled the call. Retryable
	// with backoff.
	KindRateLimited
	// KindAuthExpired indicates credentials are invalid or expired. Not
	// retryable until the operator refreshes credentials out-of-band.
	KindAuthExpired
	// KindConflict indicates a state conflict, e.g. a calendar slot that is
	// no longer available. Surfaced, never retried blindly.
	KindConflict
	// KindPermanent indicates a failure that will not succeed on retry,
	// e.g. content rejected by the language model.
	KindPermanent
	// KindInternal indicates a programming or data invariant violation.
	KindInternal
)

// String returns the lowercase name of the kind, used in logs and records.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthExpired:
		return "auth_expired"
	case KindConflict:
		return "conflict"
	case KindPermanent:
		return "permanent"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Message string
	Op      string // Operation that failed (optional)
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// Convenience constructors for common error types.

// Transient creates a retryable transient error.
func Transient(message string, err error) *Error {
	return Wrap(KindTransient, message, err)
}

// RateLimited creates a rate-limit error.
func RateLimited(message string, err error) *Error {
	return Wrap(KindRateLimited, message, err)
}

// AuthExpired creates an expired-credentials error.
func AuthExpired(message string, err error) *Error {
	return Wrap(KindAuthExpired, message, err)
}

// Conflict creates a conflict error (e.g. booking slot taken).
func Conflict(message string, err error) *Error {
	return Wrap(KindConflict, message, err)
}

// Permanent creates a non-retryable error.
func Permanent(message string, err error) *Error {
	return Wrap(KindPermanent, message, err)
}

// Internal creates an internal invariant-violation error.
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// GetKind extracts the error kind from an error chain.
// Returns KindUnknown if no *Error is found.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// IsRetryable reports whether a failure of this kind may succeed on a
// later cycle. Unknown errors are treated as retryable so a classification
// gap never strands a lead permanently.
func IsRetryable(err error) bool {
	switch GetKind(err) {
	case KindTransient, KindRateLimited, KindUnknown:
		return true
	default:
		return false
	}
}
