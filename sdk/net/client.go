// Package net is the connection-aware HTTP layer: per-attempt timeouts,
// bounded retries with exponential backoff, and CSRF header injection.
package net

import (
	"context"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
)

// Fetcher issues HTTP requests against the notes API.
type Fetcher interface {
	// FetchWithRetry runs up to retries+1 attempts. 2xx and 4xx responses are
	// returned as-is; 5xx, timeouts and transport failures are retried.
	FetchWithRetry(ctx context.Context, url string, req Request, opts ...CallOption) (*Response, error)

	// FetchOnce runs exactly one attempt with the given timeout.
	FetchOnce(ctx context.Context, url string, req Request, timeout time.Duration) (*Response, error)
}

// Profiler supplies the connection-dependent budget.
type Profiler interface {
	Online(ctx context.Context) bool
	Timeout(ctx context.Context) time.Duration
	RetryCount(ctx context.Context) int
}

// Request describes one logical request. Body is replayed on every attempt.
type Request struct {
	Method string
	Header http.Header
	Body   []byte
}

// JSONRequest encodes v as the request body.
func JSONRequest(method string, v interface{}) (Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Request{}, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return Request{Method: method, Header: h, Body: body}, nil
}

type callOptions struct {
	maxRetries *int
	timeout    time.Duration
}

// CallOption overrides the profile-derived budget for one call.
type CallOption func(*callOptions)

// WithMaxRetries fixes the retry count. Negative values mean zero.
func WithMaxRetries(n int) CallOption {
	return func(o *callOptions) {
		if n < 0 {
			n = 0
		}
		o.maxRetries = &n
	}
}

// WithTimeout fixes the per-attempt timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}
