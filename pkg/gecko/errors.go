package gecko

import (
	"errors"
	"fmt"
)

// Common errors returned by FetchPage and the lookups. They are wrapped in
// *FetchError, so match them with errors.Is.
var (
	// ErrRetryExhausted is returned when the retry budget of a page is used up.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrPageSkipped is returned for a 400 response that names an invalid
	// parameter. The page is skipped and pagination may continue.
	ErrPageSkipped = errors.New("page skipped")

	// ErrUnrecoverable is returned for a 400 response that cannot be skipped.
	ErrUnrecoverable = errors.New("unrecoverable bad request")

	// ErrContextCancelled is returned when the context is cancelled during a
	// request or a backoff wait.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrNotFound is returned when a lookup names a resource the upstream
	// does not know.
	ErrNotFound = errors.New("resource not found")

	// ErrNoCredentials is returned by lookups when no API key is configured.
	ErrNoCredentials = errors.New("api key not configured")

	// ErrInvalidArgument is returned for lookup arguments rejected before any
	// request is made.
	ErrInvalidArgument = errors.New("invalid argument")
)

// FetchError describes a failed request with enough context to diagnose it.
type FetchError struct {
	// Page is 0 for lookups.
	Page       int
	Endpoint   string
	StatusCode int
	Kind       ErrorKind
	Attempts   int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	target := fmt.Sprintf("page %d", e.Page)
	if e.Page == 0 && e.Endpoint != "" {
		target = e.Endpoint
	}
	msg := fmt.Sprintf("gecko %s: %s (status %d, attempts %d)", target, e.Kind, e.StatusCode, e.Attempts)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}
