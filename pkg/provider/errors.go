package provider

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for describe operations.
//
// Transient sentinels (ErrServer, ErrTimeout, ErrMalformedResponse) are
// retried by the resilience layer; everything else is permanent.
var (
	// ErrCredentialMissing indicates no credential resolved through the
	// explicit → file → environment chain.
	ErrCredentialMissing = errors.New("credential missing")

	// ErrServiceUnavailable indicates a local backend's host service is
	// not reachable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrAuthFailed indicates the backend rejected the credential.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrInvalidRequest indicates the backend rejected the request itself.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnsupportedModel indicates the requested model is not available.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrServer indicates a backend-side failure (5xx, overload, rate limit).
	ErrServer = errors.New("provider server error")

	// ErrTimeout indicates an attempt exceeded its time budget.
	ErrTimeout = errors.New("provider timeout")

	// ErrMalformedResponse indicates the backend returned a response that
	// could not be decoded.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// ValidationKind identifies why pre-flight validation rejected an item.
type ValidationKind string

const (
	ValidationUnreadable        ValidationKind = "unreadable"
	ValidationUnsupportedKind   ValidationKind = "unsupported_kind"
	ValidationUnsupportedFormat ValidationKind = "unsupported_format"
	ValidationPayloadTooLarge   ValidationKind = "payload_too_large"
)

// ValidationError is a per-item pre-flight rejection. It is raised before
// any network call and must never be retried.
type ValidationError struct {
	// Identity is the rejected work-item identity.
	Identity string

	// Kind classifies the rejection.
	Kind ValidationKind

	// Reason is a human-readable explanation.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed for %s: %s: %v", e.Identity, e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Identity, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Error wraps backend errors with call context.
type Error struct {
	// Op is the operation that failed (e.g., "Describe").
	Op string

	// Provider is the backend id (e.g., "ollama").
	Provider string

	// Identity is the work-item identity, if applicable.
	Identity string

	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Identity != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Identity, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation returns true if the error is a pre-flight rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCredentialMissing returns true if no credential could be resolved.
func IsCredentialMissing(err error) bool {
	return errors.Is(err, ErrCredentialMissing)
}

// IsServiceUnavailable returns true if a local backend host is unreachable.
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsAuthFailed returns true if the backend rejected the credential.
func IsAuthFailed(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// IsUnsupportedModel returns true if the requested model is unavailable.
func IsUnsupportedModel(err error) bool {
	return errors.Is(err, ErrUnsupportedModel)
}

// IsTransient reports whether the error is expected to sometimes succeed
// on retry: backend server errors, timeouts, and malformed or truncated
// responses. Context cancellation from the caller is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrServer) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, context.DeadlineExceeded)
}
