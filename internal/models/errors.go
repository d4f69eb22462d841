package models

import "errors"

// Error taxonomy shared by the service and handler layers.
// Errors are wrapped with fmt.Errorf("%w") and checked with errors.Is at the HTTP boundary.
var (
	// ErrInvalidInput marks a malformed request. It is a client bug and must not be retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorageUnavailable marks a failure of the persistence layer, including timeouts.
	// Clients may retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrUnauthorized marks a request without a trusted user key
	ErrUnauthorized = errors.New("unauthorized")
)
