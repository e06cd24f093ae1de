package domain

import (
	"errors"
	"fmt"
)

// ValidationError rejects bad input (unknown prompt key, empty template).
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrKind classifies a Model Gateway failure.
type ErrKind string

const (
	// ErrKindTimeout: the call exceeded its deadline. Retryable; batch
	// callers skip the item and continue.
	ErrKindTimeout ErrKind = "timeout"

	// ErrKindUnavailable: credentials missing/invalid or provider
	// unreachable. Surfaced as "model not configured" rather than a
	// generic failure.
	ErrKindUnavailable ErrKind = "unavailable"

	// ErrKindUpstream: the provider returned an error payload. Surfaced
	// with the provider's detail for diagnostics.
	ErrKindUpstream ErrKind = "upstream"
)

// GatewayError is the uniform error the Model Gateway maps provider
// failures into.
type GatewayError struct {
	Kind   ErrKind
	Status int    // HTTP status from the provider, when there was one
	Detail string // provider detail or transport error text
	Err    error  // underlying cause, if any
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway %s (HTTP %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Detail)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// GatewayErrKind extracts the classification from err, or "" when err is not
// a gateway error.
func GatewayErrKind(err error) ErrKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
