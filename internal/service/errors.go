package service

import (
	"errors"
	"fmt"
	"net/http"
)

// TransientError is an upstream failure that may succeed on retry:
// timeouts, connection errors and 5xx/429 responses.
type TransientError struct {
	Endpoint string
	err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Endpoint, e.err)
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient
func NewTransientError(endpoint string, err error) error {
	return &TransientError{Endpoint: endpoint, err: err}
}

// RejectedError is a failure that must not be retried: a 4xx response,
// a malformed request or a missing entity.
type RejectedError struct {
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

// NewRejectedError builds a rejection with an HTTP-like status
func NewRejectedError(status int, format string, args ...any) error {
	return &RejectedError{Status: status, Reason: fmt.Sprintf(format, args...)}
}

// IsTransient reports whether err is a transient upstream failure
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsRejected reports whether err is a non-retryable rejection
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

// IsNotFound reports whether err is a rejection for a missing entity
func IsNotFound(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected) && rejected.Status == http.StatusNotFound
}
