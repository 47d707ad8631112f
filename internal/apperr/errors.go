// Package apperr defines the error kinds shared by the storefront services.
// Stores and services return these (wrapped with %w where context helps);
// the HTTP layer maps them to status codes.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state for operation")
	ErrUsageLimitExceeded = errors.New("coupon usage limit reached")
	ErrMinimumNotMet      = errors.New("minimum order amount not met")
	ErrDuplicateRequest   = errors.New("duplicate request")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Invalid is shorthand for &ValidationError{Field: field, Message: msg}.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// kindError carries a caller-facing message for one of the sentinel kinds.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// New returns an error that matches kind with errors.Is and reports msg.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Newf is New with a format string.
func Newf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Message returns the innermost caller-facing message carried by err: the
// message of a ValidationError or of an error built with New. It falls back
// to err.Error().
func Message(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.msg
	}
	return err.Error()
}
