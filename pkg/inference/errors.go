package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNotConnected is returned by Predict before a successful Connect.
	ErrNotConnected = errors.New("inference: client not connected")

	// ErrNoEndpoint is returned when a client is built without a base URL.
	ErrNoEndpoint = errors.New("inference: endpoint URL required")

	// ErrEmptyChunk is returned when the endpoint answers with no actions.
	ErrEmptyChunk = errors.New("inference: endpoint returned empty action chunk")

	// ErrClosed is returned when using a closed client.
	ErrClosed = errors.New("inference: client closed")
)

// APIError represents an error response from an inference endpoint.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the endpoint.
	Message string

	// Endpoint identifies which client produced the error.
	Endpoint string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("inference [%s]: API error %d: %s",
		e.Endpoint, e.StatusCode, e.Message)
}

// IsServerError returns true for server-side errors (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.IsServerError()
}

// EndpointError wraps an error with endpoint context.
type EndpointError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *EndpointError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *EndpointError) Unwrap() error {
	return e.Err
}

// wrapErr wraps an error with endpoint context, preserving nil.
func wrapErr(endpoint string, err error) error {
	if err == nil {
		return nil
	}
	return &EndpointError{Endpoint: endpoint, Err: err}
}
