package net

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNetworkUnavailable is returned without touching the network when
	// the host reports it is offline.
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrTimeout            = errors.New("request timed out")
	ErrNetwork            = errors.New("network request failed")
	ErrCancelled          = errors.New("operation cancelled")
)

// TimeoutError is returned when the final attempt hit its per-attempt timeout.
type TimeoutError struct {
	URL      string
	Attempts int
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %d attempt(s) of %s", e.URL, e.Attempts, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.Err }

// NetworkError is returned when the final attempt failed at the transport.
type NetworkError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network request to %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError describes a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %s from %s", e.Status, e.URL)
	if len(e.Body) > 0 {
		snippet := e.Body
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		msg += ": " + string(snippet)
	}
	return msg
}

// IsClientError reports whether the status is in [400, 500).
func (e *HTTPError) IsClientError() bool { return e.StatusCode >= 400 && e.StatusCode < 500 }

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

type failureKind int

const (
	failTimeout failureKind = iota + 1
	failNetwork
	failStatus
)

// attemptError marks a retryable failure of one attempt.
type attemptError struct {
	kind failureKind
	err  error
	resp *Response
}

func (e *attemptError) Error() string { return e.err.Error() }

func (e *attemptError) Unwrap() error { return e.err }
