// Package task submits long-running calibration jobs and polls them to a
// terminal state.
package task

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/srbot/notesdk/pkg/logtrace"
	"github.com/srbot/notesdk/pkg/session"
	"github.com/srbot/notesdk/sdk/event"
	"github.com/srbot/notesdk/sdk/net"
)

// Endpoints are absolute URLs. Status task ids are appended as a path segment.
type Endpoints struct {
	Submit        string
	Status        string
	CalibrateSync string
}

type Config struct {
	Fetcher   net.Fetcher
	Endpoints Endpoints

	SubmitTimeout   time.Duration
	SubmitRetries   *int
	StatusTimeout   time.Duration
	PollInterval    time.Duration
	PollMaxDuration time.Duration
	SyncTimeout     time.Duration
	SyncRetries     *int

	Publisher event.Publisher
	Sessions  *session.Registry
}

// Client is the asynchronous task client.
type Client struct {
	fetcher   net.Fetcher
	endpoints Endpoints

	submitTimeout   time.Duration
	submitRetries   int
	statusTimeout   time.Duration
	pollInterval    time.Duration
	pollMaxDuration time.Duration
	syncTimeout     time.Duration
	syncRetries     int

	publisher event.Publisher
	sessions  *session.Registry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("task: fetcher is required")
	}
	if cfg.Endpoints.Submit == "" || cfg.Endpoints.Status == "" {
		return nil, errors.New("task: submit and status endpoints are required")
	}

	c := &Client{
		fetcher:         cfg.Fetcher,
		endpoints:       cfg.Endpoints,
		submitTimeout:   orDuration(cfg.SubmitTimeout, submitTimeout),
		submitRetries:   orCount(cfg.SubmitRetries, submitRetries),
		statusTimeout:   orDuration(cfg.StatusTimeout, statusTimeout),
		pollInterval:    orDuration(cfg.PollInterval, defaultPollEvery),
		pollMaxDuration: orDuration(cfg.PollMaxDuration, defaultPollMaxWait),
		syncTimeout:     orDuration(cfg.SyncTimeout, syncTimeout),
		syncRetries:     orCount(cfg.SyncRetries, syncRetries),
		publisher:       cfg.Publisher,
		sessions:        cfg.Sessions,
		now:             time.Now,
		sleep:           sleepCtx,
	}
	if c.publisher == nil {
		c.publisher = event.Discard
	}
	return c, nil
}

// Submit posts payload as JSON and returns the server-assigned task id.
// Transport failures surface as the net package errors; rejections by the
// server, including 5xx after the last retry, are a *SubmissionError.
func (c *Client) Submit(ctx context.Context, payload interface{}) (string, error) {
	req, err := net.JSONRequest(http.MethodPost, payload)
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	resp, err := c.fetcher.FetchWithRetry(ctx, c.endpoints.Submit, req,
		net.WithTimeout(c.submitTimeout),
		net.WithMaxRetries(c.submitRetries),
	)
	if err != nil {
		logtrace.Error(ctx, "Task submission request failed", logtrace.Fields{
			logtrace.FieldModule: "task",
			logtrace.FieldError:  err.Error(),
		})
		var httpErr *net.HTTPError
		if errors.As(err, &httpErr) {
			return "", &SubmissionError{StatusCode: httpErr.StatusCode, Message: serverMessage(httpErr.Body, httpErr.Status), Err: err}
		}
		return "", err
	}

	var body submitResponse
	decodeErr := resp.JSON(&body)

	if !resp.OK() {
		msg := body.Error
		if msg == "" {
			msg = resp.Status
		}
		return "", &SubmissionError{StatusCode: resp.StatusCode, Message: msg, Err: resp.Err()}
	}
	if decodeErr != nil {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Message: "malformed response", Err: decodeErr}
	}
	if !body.Success || body.TaskID == "" {
		msg := body.Error
		if msg == "" {
			msg = "server returned no task id"
		}
		return "", &SubmissionError{StatusCode: resp.StatusCode, Message: msg}
	}

	logtrace.Info(ctx, "Task submitted", logtrace.Fields{
		logtrace.FieldModule: "task",
		logtrace.FieldTaskID: body.TaskID,
	})
	c.publisher.Publish(event.NewEvent(event.TaskSubmitted, body.TaskID, map[event.EventDataKey]interface{}{
		event.KeyStatus: string(body.Status),
	}))
	return body.TaskID, nil
}

// GetStatus performs exactly one status query. A non-positive timeout uses
// the client default.
func (c *Client) GetStatus(ctx context.Context, taskID string, timeout time.Duration) (*Status, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, &StatusQueryError{Message: "empty task id", Err: ErrEmptyID}
	}
	if timeout <= 0 {
		timeout = c.statusTimeout
	}

	endpoint := strings.TrimRight(c.endpoints.Status, "/") + "/" + url.PathEscape(taskID)
	h := http.Header{}
	h.Set("Accept", "application/json")

	resp, err := c.fetcher.FetchOnce(ctx, endpoint, net.Request{Method: http.MethodGet, Header: h}, timeout)
	if err != nil {
		if errors.Is(err, net.ErrCancelled) {
			return nil, err
		}
		return nil, &StatusQueryError{TaskID: taskID, Message: err.Error(), Err: err}
	}

	var st Status
	decodeErr := resp.JSON(&st)

	if !resp.OK() {
		msg := st.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, &StatusQueryError{TaskID: taskID, StatusCode: resp.StatusCode, Message: msg, Err: resp.Err()}
	}
	if decodeErr != nil {
		return nil, &StatusQueryError{TaskID: taskID, StatusCode: resp.StatusCode, Message: "malformed response", Err: decodeErr}
	}
	if !st.Success {
		msg := st.Error
		if msg == "" {
			msg = "server reported an unsuccessful query"
		}
		return nil, &StatusQueryError{TaskID: taskID, StatusCode: resp.StatusCode, Message: msg}
	}
	if !st.State.Valid() {
		return nil, &StatusQueryError{TaskID: taskID, StatusCode: resp.StatusCode, Message: fmt.Sprintf("unknown task state %q", st.State)}
	}
	if st.TaskID == "" {
		st.TaskID = taskID
	}
	return &st, nil
}

// Poll queries the task every interval until it completes, fails, the budget
// runs out or ctx is cancelled. Queries never overlap.
func (c *Client) Poll(ctx context.Context, taskID string, opts PollOptions) (*Status, error) {
	interval := orDuration(opts.Interval, c.pollInterval)
	maxDuration := orDuration(opts.MaxDuration, c.pollMaxDuration)
	queryTimeout := orDuration(opts.StatusTimeout, c.statusTimeout)

	ctx = logtrace.CtxWithOrigin(ctx, "poll")
	fields := logtrace.Fields{logtrace.FieldModule: "task", logtrace.FieldTaskID: taskID}

	sess := c.sessions.Begin(ctx, taskID, interval, maxDuration, c.now())
	outcome := "error"
	defer func() { sess.End(ctx, outcome) }()

	var last State
	for {
		if sess.Expired(c.now()) {
			outcome = "timeout"
			info := sess.Info()
			logtrace.Warn(ctx, "Task polling timed out", logtrace.WithFields(fields, logtrace.Fields{
				logtrace.FieldAttempt: info.Attempts,
				logtrace.FieldElapsed: sess.Elapsed(c.now()).String(),
			}))
			c.publish(event.TaskPollTimeout, taskID, nil)
			return nil, &PollTimeoutError{TaskID: taskID, Attempts: info.Attempts, MaxDuration: maxDuration, LastState: last}
		}

		st, err := c.GetStatus(ctx, taskID, queryTimeout)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				outcome = "cancelled"
				c.publish(event.TaskCancelled, taskID, nil)
			}
			return nil, err
		}
		attempt := sess.RecordAttempt()
		last = st.State

		elapsed := sess.Elapsed(c.now())
		tick := Tick{
			TaskID:       taskID,
			Attempt:      attempt,
			Elapsed:      elapsed,
			ElapsedSec:   int(elapsed / time.Second),
			RemainingSec: remainingSeconds(maxDuration, elapsed),
			Status:       st,
		}
		c.emitTick(ctx, opts.OnTick, tick)

		switch st.State {
		case StateCompleted:
			outcome = "completed"
			logtrace.Info(ctx, "Task completed", logtrace.WithFields(fields, logtrace.Fields{logtrace.FieldAttempt: attempt}))
			c.publish(event.TaskCompleted, taskID, nil)
			return st, nil
		case StateFailed:
			outcome = "failed"
			msg := st.Error
			if msg == "" {
				msg = "task failed"
			}
			logtrace.Warn(ctx, "Task failed", logtrace.WithFields(fields, logtrace.Fields{logtrace.FieldError: msg}))
			c.publish(event.TaskFailed, taskID, map[event.EventDataKey]interface{}{event.KeyError: msg})
			return nil, &TaskFailedError{TaskID: taskID, Message: msg, Status: st}
		}

		if err := c.sleep(ctx, interval); err != nil {
			outcome = "cancelled"
			logtrace.Info(ctx, "Task polling cancelled", fields)
			c.publish(event.TaskCancelled, taskID, nil)
			return nil, err
		}
	}
}

// emitTick reports progress to the callback and the bus. A panicking
// callback is logged and otherwise ignored.
func (c *Client) emitTick(ctx context.Context, onTick func(Tick), tick Tick) {
	c.publish(event.TaskTick, tick.TaskID, map[event.EventDataKey]interface{}{
		event.KeyAttempt:      tick.Attempt,
		event.KeyStatus:       string(tick.Status.State),
		event.KeyElapsedSec:   tick.ElapsedSec,
		event.KeyRemainingSec: tick.RemainingSec,
	})
	if onTick == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logtrace.Error(ctx, "Progress callback panicked", logtrace.Fields{
				logtrace.FieldModule:     "task",
				logtrace.FieldTaskID:     tick.TaskID,
				logtrace.FieldError:      fmt.Sprint(r),
				logtrace.FieldStackTrace: string(debug.Stack()),
			})
		}
	}()
	onTick(tick)
}

func (c *Client) publish(t event.EventType, taskID string, data map[event.EventDataKey]interface{}) {
	c.publisher.Publish(event.NewEvent(t, taskID, data))
}

func remainingSeconds(maxDuration, elapsed time.Duration) int {
	left := maxDuration - elapsed
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// sleepCtx waits for d or until ctx is done. The timer is always released.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case <-t.C:
		return nil
	}
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

func orCount(v *int, fallback int) int {
	if v == nil || *v < 0 {
		return fallback
	}
	return *v
}
