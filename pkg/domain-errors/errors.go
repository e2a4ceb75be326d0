// Package domainerrors carries caller-facing error codes.
//
// Services return *Error values so transports can map them to status codes
// without string matching. Stores should not use this package; they return
// sentinel errors from pkg/platform/sentinel which services translate.
package domainerrors

import (
	"errors"
)

// Code classifies a failure for the caller.
type Code string

const (
	// Validation errors: bad input, reported synchronously and never retried.
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_error"
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"

	// Conflict errors: the caller must choose a different action.
	CodeConflict Code = "conflict"

	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"

	// CodeInvariantViolation marks state that should be impossible. Records
	// that trip it are excluded from automated processing.
	CodeInvariantViolation Code = "invariant_violation"

	// Transient collaborator errors.
	CodeUnavailable Code = "unavailable"
	CodeTimeout     Code = "timeout"

	CodeInternal Code = "internal_error"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to err, keeping it reachable through
// errors.Is and errors.As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether the outermost coded error in err's chain has code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost coded error, or CodeInternal when
// err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the failure is transient and may succeed on a
// later attempt without new input.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeTimeout, CodeInternal:
		return true
	default:
		return false
	}
}
