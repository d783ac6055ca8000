// Package apierr defines the error-kind taxonomy shared across the
// gateway, pipeline, notifier, and signaling switch (SPEC_FULL.md §7).
package apierr

import (
	"errors"
	"net/http"
)

// Kind is one of the error classes enumerated in spec.md §7.
type Kind string

const (
	TransientNetwork    Kind = "transient-network"
	ProviderUnavailable Kind = "provider-unavailable"
	RateLimited         Kind = "rate-limited"
	InvalidInput        Kind = "invalid-input"
	NotFound            Kind = "not-found"
	Conflict            Kind = "conflict"
	Unauthorized        Kind = "unauthorized"
	ParseError          Kind = "parse-error"
	BoundsExceeded      Kind = "bounds-exceeded"
	Fatal               Kind = "fatal"
)

// Error wraps an error message with its Kind for status-code mapping.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// HTTPStatus maps a Kind to the status code the gateway should return.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case BoundsExceeded:
		return http.StatusConflict
	case Fatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
