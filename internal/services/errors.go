package services

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies backend failures for retry and fallback
// decisions.
type ErrorKind string

const (
	// ErrKindConnection covers unreachable hosts and refused or
	// dropped connections.
	ErrKindConnection ErrorKind = "connection"

	// ErrKindTimeout covers deadline and cancellation failures.
	ErrKindTimeout ErrorKind = "timeout"

	// ErrKindModel covers failures reported by the model service
	// itself (bad model, server error).
	ErrKindModel ErrorKind = "model"

	// ErrKindInvalidResponse covers replies that could not be parsed
	// or failed validation.
	ErrKindInvalidResponse ErrorKind = "invalid_response"

	// ErrKindQuota covers rate limits and exhausted usage quotas.
	ErrKindQuota ErrorKind = "quota"
)

// BackendError wraps a backend failure with its classification.
type BackendError struct {
	Kind    ErrorKind
	Backend string
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s backend %s error: %s: %v", e.Backend, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s backend %s error: %s", e.Backend, e.Kind, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an error is worth retrying on the same
// backend. Connection and timeout failures are transient; model,
// parse, and quota failures are not.
func IsTransient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind == ErrKindConnection || be.Kind == ErrKindTimeout
	}
	return false
}

// IsQuota reports whether an error is a rate-limit or quota failure.
func IsQuota(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind == ErrKindQuota
	}
	return false
}

// ErrKind extracts the classification of a backend error, or empty
// when the error is not a BackendError.
func ErrKind(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// classifyTransport maps a transport-level error from http.Client.Do
// to a backend error kind.
func classifyTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout
	}
	return ErrKindConnection
}
