// Package errors provides standardized domain errors with codes for the Inkwell client core.
//
// Usage:
//
//	// In services - return typed errors
//	if err := resp.check(); err != nil {
//	    return errors.Remote("server rejected book metadata").WithCause(err)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrConnection) {
//	    // offline - skip this sync round
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeValidation    Code = "VALIDATION"
	CodeInternal      Code = "INTERNAL"

	// CodeConnection means no network was reachable or no auth token was
	// obtainable. Sync rounds are skipped on this code, not retried hot.
	CodeConnection Code = "CONNECTION"
	// CodeRemote means the service was reachable but rejected the request.
	CodeRemote Code = "REMOTE"
	// CodeCodec means a compressed payload was malformed or truncated.
	CodeCodec Code = "CODEC"
)

// Retryable reports whether an operation failing with this code is worth
// repeating on the next sync round without operator intervention.
func (c Code) Retryable() bool {
	switch c {
	case CodeConnection, CodeInternal:
		return true
	default:
		return false
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Retryable reports whether this error's code is retryable.
func (e *Error) Retryable() bool {
	return e.Code.Retryable()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound      = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation    = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal      = &Error{Code: CodeInternal, Message: "internal error"}
	ErrConnection    = &Error{Code: CodeConnection, Message: "connection unavailable"}
	ErrRemote        = &Error{Code: CodeRemote, Message: "remote service rejected request"}
	ErrCodec         = &Error{Code: CodeCodec, Message: "malformed payload"}
)

// Constructor functions for creating errors with custom messages.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists creates an already exists error.
func AlreadyExists(msg string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: msg}
}

// AlreadyExistsf creates an already exists error with formatted message.
func AlreadyExistsf(format string, args ...any) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Connection creates a connection error.
func Connection(msg string) *Error {
	return &Error{Code: CodeConnection, Message: msg}
}

// Connectionf creates a connection error with formatted message.
func Connectionf(format string, args ...any) *Error {
	return &Error{Code: CodeConnection, Message: fmt.Sprintf(format, args...)}
}

// Remote creates a remote rejection error.
func Remote(msg string) *Error {
	return &Error{Code: CodeRemote, Message: msg}
}

// Remotef creates a remote rejection error with formatted message.
func Remotef(format string, args ...any) *Error {
	return &Error{Code: CodeRemote, Message: fmt.Sprintf(format, args...)}
}

// Codec creates a codec error.
func Codec(msg string) *Error {
	return &Error{Code: CodeCodec, Message: msg}
}

// Codecf creates a codec error with formatted message.
func Codecf(format string, args ...any) *Error {
	return &Error{Code: CodeCodec, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
