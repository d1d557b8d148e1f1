// Package apierror defines the error taxonomy shared by all service
// components and its mapping to HTTP status codes.
package apierror

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	// KindInternal covers unexpected failures (default).
	KindInternal Kind = iota
	// KindInvalidInput covers missing or malformed client input.
	KindInvalidInput
	// KindUnauthorized covers missing or invalid credentials.
	KindUnauthorized
	// KindForbidden covers valid credentials with insufficient access.
	KindForbidden
	// KindNotFound covers unknown resource identifiers.
	KindNotFound
	// KindConflict covers state conflicts (already active, already
	// completed, concurrent update).
	KindConflict
	// KindDeadlineExceeded covers operations cut off by their deadline.
	KindDeadlineExceeded
	// KindUnavailable covers transient store failures safe to retry.
	KindUnavailable
)

// Error is a classified service error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error while keeping it in the chain.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain.
// Context deadline errors classify as KindDeadlineExceeded even when
// surfaced by a driver without wrapping.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindDeadlineExceeded
	}
	return KindInternal
}

// HTTPStatus maps a Kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may safely retry the operation.
// Writes remain at-least-once under retry.
func Retryable(kind Kind) bool {
	return kind == KindUnavailable || kind == KindDeadlineExceeded
}

// ClientMessage returns the message safe to show a client. In production
// mode internal causes are replaced by a generic message so SQL, stack
// traces, and credentials never leak.
func ClientMessage(err error, production bool) string {
	kind := KindOf(err)

	var e *Error
	if errors.As(err, &e) {
		if production && (kind == KindInternal || kind == KindUnavailable) {
			return genericMessage(kind)
		}
		return e.Message
	}

	if production {
		return genericMessage(kind)
	}
	return err.Error()
}

// genericMessage returns the production-safe text for opaque kinds.
func genericMessage(kind Kind) string {
	if kind == KindUnavailable {
		return "service temporarily unavailable"
	}
	return "internal server error"
}
