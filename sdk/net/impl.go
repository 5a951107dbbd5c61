package net

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	stdnet "net"
	"net/http"
	neturl "net/url"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/srbot/notesdk/pkg/logtrace"
	"github.com/srbot/notesdk/sdk/event"
)

const (
	RequestIDHeader = "X-Request-ID"

	defaultBackoffBase      = time.Second
	defaultBackoffMax       = 10 * time.Second
	defaultMaxResponseBytes = 10 << 20
)

// ClientConfig wires a Client. Profiler is required.
type ClientConfig struct {
	HTTPClient       *http.Client
	Profiler         Profiler
	Tokens           TokenProvider
	CSRFHeader       string
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	MaxResponseBytes int64
	Publisher        event.Publisher
}

// Client is the default Fetcher.
type Client struct {
	http        *http.Client
	profiler    Profiler
	tokens      TokenProvider
	csrfHeader  string
	backoffBase time.Duration
	backoffMax  time.Duration
	maxBody     int64
	publisher   event.Publisher

	// timer drives backoff waits; nil uses a real timer.
	timer backoff.Timer
}

var _ Fetcher = (*Client)(nil)

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Profiler == nil {
		return nil, errors.New("net: profiler is required")
	}
	c := &Client{
		http:        cfg.HTTPClient,
		profiler:    cfg.Profiler,
		tokens:      cfg.Tokens,
		csrfHeader:  cfg.CSRFHeader,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
		maxBody:     cfg.MaxResponseBytes,
		publisher:   cfg.Publisher,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.csrfHeader == "" {
		c.csrfHeader = DefaultCSRFHeader
	}
	if c.backoffBase <= 0 {
		c.backoffBase = defaultBackoffBase
	}
	if c.backoffMax < c.backoffBase {
		c.backoffMax = defaultBackoffMax
	}
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxResponseBytes
	}
	if c.publisher == nil {
		c.publisher = event.Discard
	}
	return c, nil
}

func (c *Client) FetchWithRetry(ctx context.Context, url string, req Request, opts ...CallOption) (*Response, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	ctx, req = withRequestID(ctx, req)

	fields := logtrace.Fields{
		logtrace.FieldModule: "net",
		logtrace.FieldMethod: methodOf(req),
		logtrace.FieldURL:    url,
	}

	if !c.profiler.Online(ctx) {
		logtrace.Warn(ctx, "Network unavailable, request not sent", fields)
		return nil, ErrNetworkUnavailable
	}

	timeout := o.timeout
	if timeout <= 0 {
		timeout = c.profiler.Timeout(ctx)
	}
	retries := 0
	if o.maxRetries != nil {
		retries = *o.maxRetries
	} else {
		retries = c.profiler.RetryCount(ctx)
	}
	if retries < 0 {
		retries = 0
	}

	var (
		resp     *Response
		attempts int
	)
	operation := func() error {
		attempts++
		r, err := c.attempt(ctx, url, req, timeout)
		if err == nil {
			resp = r
			return nil
		}
		var ae *attemptError
		if errors.As(err, &ae) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		logtrace.Warn(ctx, "Request attempt failed, retrying", logtrace.WithFields(fields, logtrace.Fields{
			logtrace.FieldAttempt:    attempts,
			logtrace.FieldMaxRetries: retries,
			logtrace.FieldBackoff:    wait.String(),
			logtrace.FieldError:      err.Error(),
		}))
		c.publisher.Publish(event.NewEvent(event.FetchRetry, "", map[event.EventDataKey]interface{}{
			event.KeyURL:     url,
			event.KeyAttempt: attempts,
			event.KeyBackoff: wait,
			event.KeyError:   err.Error(),
		}))
	}

	err := backoff.RetryNotifyWithTimer(operation, c.newBackOff(ctx, retries), notify, c.timer)
	if err != nil {
		err = c.terminal(ctx, err, url, attempts, timeout)
		logtrace.Debug(ctx, "Request failed", logtrace.WithFields(fields, logtrace.Fields{
			logtrace.FieldAttempt: attempts,
			logtrace.FieldError:   err.Error(),
		}))
		return nil, err
	}

	logtrace.Debug(ctx, "Request completed", logtrace.WithFields(fields, logtrace.Fields{
		logtrace.FieldAttempt:    attempts,
		logtrace.FieldStatusCode: resp.StatusCode,
	}))
	return resp, nil
}

func (c *Client) FetchOnce(ctx context.Context, url string, req Request, timeout time.Duration) (*Response, error) {
	ctx, req = withRequestID(ctx, req)
	if timeout <= 0 {
		timeout = c.profiler.Timeout(ctx)
	}
	resp, err := c.attempt(ctx, url, req, timeout)
	if err != nil {
		return nil, c.terminal(ctx, err, url, 1, timeout)
	}
	return resp, nil
}

func (c *Client) newBackOff(ctx context.Context, retries int) backoff.BackOff {
	if retries == 0 {
		// WithMaxRetries treats 0 as unlimited.
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.backoffBase
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = c.backoffMax
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// attempt performs one request. The per-attempt context is cancelled on
// every return path, after the body has been buffered.
func (c *Client) attempt(ctx context.Context, url string, req Request, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, methodOf(req), url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	c.applyCSRF(attemptCtx, httpReq)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, attemptCtx, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, c.maxBody))
	if err != nil {
		return nil, classify(ctx, attemptCtx, err)
	}

	resp := &Response{
		URL:        url,
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Header:     res.Header,
		Body:       data,
	}
	switch {
	case res.StatusCode >= 400 && res.StatusCode < 500:
		return resp, nil
	case resp.OK():
		return resp, nil
	default:
		return nil, &attemptError{kind: failStatus, err: resp.Err(), resp: resp}
	}
}

func (c *Client) applyCSRF(ctx context.Context, r *http.Request) {
	if isSafeMethod(r.Method) || c.tokens == nil {
		return
	}
	if r.Header.Get(c.csrfHeader) != "" {
		return
	}
	if token := c.tokens.Token(ctx); token != "" {
		r.Header.Set(c.csrfHeader, token)
	}
}

// classify sorts a transport error into retryable and terminal failures.
// Client.Do wraps everything in *url.Error, so the cause is inspected.
func classify(parent, attemptCtx context.Context, err error) error {
	if parent.Err() != nil {
		return cancelled(parent.Err())
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &attemptError{kind: failTimeout, err: err}
	}
	cause := err
	var ue *neturl.Error
	if errors.As(err, &ue) {
		cause = ue.Err
	}
	var ne stdnet.Error
	if errors.As(cause, &ne) {
		if ne.Timeout() {
			return &attemptError{kind: failTimeout, err: err}
		}
		return &attemptError{kind: failNetwork, err: err}
	}
	if errors.Is(cause, io.EOF) || errors.Is(cause, io.ErrUnexpectedEOF) ||
		errors.Is(cause, syscall.ECONNRESET) || errors.Is(cause, syscall.ECONNREFUSED) {
		return &attemptError{kind: failNetwork, err: err}
	}
	return err
}

// terminal converts the last failure into the exported error taxonomy.
func (c *Client) terminal(ctx context.Context, err error, url string, attempts int, timeout time.Duration) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	if ctx.Err() != nil {
		return cancelled(ctx.Err())
	}
	var ae *attemptError
	if !errors.As(err, &ae) {
		return err
	}
	switch ae.kind {
	case failTimeout:
		return &TimeoutError{URL: url, Attempts: attempts, Timeout: timeout, Err: ae.err}
	case failNetwork:
		return &NetworkError{URL: url, Attempts: attempts, Err: ae.err}
	default:
		return ae.resp.Err()
	}
}

func withRequestID(ctx context.Context, req Request) (context.Context, Request) {
	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	id := header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
		header.Set(RequestIDHeader, id)
	}
	req.Header = header
	if logtrace.CorrelationIDFromContext(ctx) == "" {
		ctx = logtrace.CtxWithCorrelationID(ctx, id)
	}
	return ctx, req
}

func methodOf(req Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}
