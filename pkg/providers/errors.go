package providers

import (
	"fmt"
	"time"
)

// UpstreamError is a non-2xx response from the upstream provider.
type UpstreamError struct {
	// Provider is the provider name.
	Provider string

	// StatusCode is the upstream HTTP status.
	StatusCode int

	// Message is the upstream error text, truncated for logging.
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned %d: %s", e.Provider, e.StatusCode, e.Message)
}

// TimeoutError is a request that exceeded the provider timeout or was
// cancelled by its context.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream %s timed out after %s", e.Provider, e.Timeout)
}

// ParseError is an upstream response that could not be decoded.
type ParseError struct {
	Provider string
	Cause    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response from %s: %v", e.Provider, e.Cause)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// StreamError is a failure while reading an upstream SSE stream.
type StreamError struct {
	Provider string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stream from %s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("stream from %s: %s", e.Provider, e.Message)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *StreamError) Unwrap() error {
	return e.Cause
}
