// Package action is the entry point of the SDK. NewClient wires every
// component from a config.Config; there is no package-level state.
package action

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/srbot/notesdk/pkg/logtrace"
	"github.com/srbot/notesdk/pkg/session"
	"github.com/srbot/notesdk/sdk/config"
	"github.com/srbot/notesdk/sdk/event"
	"github.com/srbot/notesdk/sdk/net"
	"github.com/srbot/notesdk/sdk/netprofile"
	"github.com/srbot/notesdk/sdk/task"
)

type Client interface {
	DetectConnectionType(ctx context.Context) netprofile.Kind
	APITimeout(ctx context.Context) time.Duration
	RetryCount(ctx context.Context) int
	Online(ctx context.Context) bool

	FetchWithRetry(ctx context.Context, url string, req net.Request, opts ...net.CallOption) (*net.Response, error)

	SubmitTask(ctx context.Context, payload interface{}) (string, error)
	GetTaskStatus(ctx context.Context, taskID string, timeout time.Duration) (*task.Status, error)
	PollTask(ctx context.Context, taskID string, opts task.PollOptions) (*task.Status, error)

	CalibrateNote(ctx context.Context, noteID int64, opts task.PollOptions) (*CalibrationOutcome, error)
	CalibrateNoteSync(ctx context.Context, noteID int64) (*task.CalibrationResult, error)
	CalibrateInfoHash(ctx context.Context, infoHash string, opts task.PollOptions) (string, error)

	ActiveSessions() []session.Info
	WatchNetwork(ctx context.Context) bool

	SubscribeToEvents(eventType event.EventType, handler event.Handler)
	SubscribeToAllEvents(handler event.Handler)

	Close()
}

// CalibrationOutcome is the result of CalibrateNote. TaskID is empty when
// the synchronous fallback ran.
type CalibrationOutcome struct {
	TaskID string
	Sync   bool
	Result *task.CalibrationResult
}

type options struct {
	conditions netprofile.Conditions
	tokens     net.TokenProvider
	httpClient *http.Client
}

type Option func(*options)

// WithConditions replaces the network condition provider.
func WithConditions(c netprofile.Conditions) Option {
	return func(o *options) { o.conditions = c }
}

// WithTokenProvider replaces the CSRF token source.
func WithTokenProvider(t net.TokenProvider) Option {
	return func(o *options) { o.tokens = t }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

type ClientImpl struct {
	config   config.Config
	bus      *event.Bus
	profiler *netprofile.Profiler
	fetcher  *net.Client
	tasks    *task.Client
	sessions *session.Registry
}

func NewClient(cfg config.Config, opts ...Option) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	if o.conditions == nil {
		o.conditions = defaultConditions(cfg)
	}
	if o.tokens == nil {
		o.tokens = defaultTokens(cfg, o.httpClient)
	}

	bus := event.NewBus(cfg.Events.MaxWorkers)
	sessions := session.NewRegistry()

	profiler := netprofile.NewProfiler(o.conditions,
		netprofile.WithTable(netprofile.TableFromConfig(cfg.Network.Timeouts, cfg.Network.Retries)),
		netprofile.WithStaleness(cfg.Network.CacheTTL),
		netprofile.WithPublisher(bus),
	)

	fetcher, err := net.NewClient(net.ClientConfig{
		HTTPClient:       o.httpClient,
		Profiler:         profiler,
		Tokens:           o.tokens,
		CSRFHeader:       cfg.CSRF.Header,
		BackoffBase:      cfg.Network.BackoffBase,
		BackoffMax:       cfg.Network.BackoffMax,
		MaxResponseBytes: cfg.Network.MaxResponseBytes,
		Publisher:        bus,
	})
	if err != nil {
		return nil, err
	}

	submitRetries, syncRetries := cfg.Tasks.SubmitRetries, cfg.Tasks.SyncRetries
	tasks, err := task.NewClient(task.Config{
		Fetcher: fetcher,
		Endpoints: task.Endpoints{
			Submit:        cfg.URL(cfg.Endpoints.Submit),
			Status:        cfg.URL(cfg.Endpoints.Status),
			CalibrateSync: cfg.URL(cfg.Endpoints.CalibrateSync),
		},
		SubmitTimeout:   cfg.Tasks.SubmitTimeout,
		SubmitRetries:   &submitRetries,
		StatusTimeout:   cfg.Tasks.StatusTimeout,
		PollInterval:    cfg.Tasks.PollInterval,
		PollMaxDuration: cfg.Tasks.PollMaxDuration,
		SyncTimeout:     cfg.Tasks.SyncTimeout,
		SyncRetries:     &syncRetries,
		Publisher:       bus,
		Sessions:        sessions,
	})
	if err != nil {
		return nil, err
	}

	return &ClientImpl{
		config:   cfg,
		bus:      bus,
		profiler: profiler,
		fetcher:  fetcher,
		tasks:    tasks,
		sessions: sessions,
	}, nil
}

func defaultConditions(cfg config.Config) netprofile.Conditions {
	if cfg.Network.HostSignals {
		return netprofile.NewHostConditions(cfg.Network.ProbeAddr, cfg.Network.ProbeTimeout)
	}
	return netprofile.StaticConditions{}
}

func defaultTokens(cfg config.Config, hc *http.Client) net.TokenProvider {
	switch {
	case cfg.CSRF.Token != "":
		return net.StaticToken(cfg.CSRF.Token)
	case cfg.CSRF.MetaURL != "":
		page := cfg.CSRF.MetaURL
		if !strings.HasPrefix(page, "http://") && !strings.HasPrefix(page, "https://") {
			page = cfg.URL(page)
		}
		return net.NewMetaTagToken(page, hc)
	default:
		return nil
	}
}

func (ac *ClientImpl) DetectConnectionType(ctx context.Context) netprofile.Kind {
	return ac.profiler.Detect(ctx)
}

func (ac *ClientImpl) APITimeout(ctx context.Context) time.Duration {
	return ac.profiler.Timeout(ctx)
}

func (ac *ClientImpl) RetryCount(ctx context.Context) int {
	return ac.profiler.RetryCount(ctx)
}

func (ac *ClientImpl) Online(ctx context.Context) bool {
	return ac.profiler.Online(ctx)
}

func (ac *ClientImpl) FetchWithRetry(ctx context.Context, url string, req net.Request, opts ...net.CallOption) (*net.Response, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrEmptyURL
	}
	return ac.fetcher.FetchWithRetry(ctx, url, req, opts...)
}

func (ac *ClientImpl) SubmitTask(ctx context.Context, payload interface{}) (string, error) {
	return ac.tasks.Submit(ctx, payload)
}

func (ac *ClientImpl) GetTaskStatus(ctx context.Context, taskID string, timeout time.Duration) (*task.Status, error) {
	return ac.tasks.GetStatus(ctx, taskID, timeout)
}

func (ac *ClientImpl) PollTask(ctx context.Context, taskID string, opts task.PollOptions) (*task.Status, error) {
	return ac.tasks.Poll(ctx, taskID, opts)
}

// CalibrateNote submits an asynchronous calibration and polls it. When the
// submission is rejected or the server cannot be reached for a reason other
// than cancellation or being offline, the synchronous endpoint is used.
func (ac *ClientImpl) CalibrateNote(ctx context.Context, noteID int64, opts task.PollOptions) (*CalibrationOutcome, error) {
	if noteID <= 0 {
		return nil, ErrInvalidNoteID
	}
	ctx = logtrace.CtxWithOrigin(ctx, "calibrate")
	fields := logtrace.Fields{logtrace.FieldModule: "action", logtrace.FieldNoteID: noteID}

	taskID, err := ac.tasks.SubmitNoteCalibration(ctx, noteID)
	if err != nil {
		if errors.Is(err, net.ErrCancelled) || errors.Is(err, net.ErrNetworkUnavailable) {
			return nil, err
		}
		logtrace.Warn(ctx, "Async calibration unavailable, falling back to sync", logtrace.WithFields(fields, logtrace.Fields{
			logtrace.FieldError: err.Error(),
		}))
		res, syncErr := ac.tasks.CalibrateSync(ctx, noteID, ac.config.Tasks.SyncTimeout)
		if syncErr != nil {
			return nil, syncErr
		}
		return &CalibrationOutcome{Sync: true, Result: res}, nil
	}

	st, err := ac.tasks.Poll(ctx, taskID, opts)
	if err != nil {
		return nil, err
	}
	res, err := st.CalibrationResult()
	if err != nil {
		return nil, &task.CalibrationError{NoteID: noteID, Message: "unreadable result", Err: err}
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "calibration unsuccessful"
		}
		return nil, &task.CalibrationError{NoteID: noteID, Message: msg}
	}

	logtrace.Info(ctx, "Calibration finished", logtrace.WithFields(fields, logtrace.Fields{
		logtrace.FieldTaskID: taskID,
		"success_count":      res.SuccessCount,
		"fail_count":         res.FailCount,
	}))
	return &CalibrationOutcome{TaskID: taskID, Result: res}, nil
}

// CalibrateNoteSync calls the synchronous endpoint directly.
func (ac *ClientImpl) CalibrateNoteSync(ctx context.Context, noteID int64) (*task.CalibrationResult, error) {
	if noteID <= 0 {
		return nil, ErrInvalidNoteID
	}
	return ac.tasks.CalibrateSync(logtrace.CtxWithOrigin(ctx, "calibrate"), noteID, ac.config.Tasks.SyncTimeout)
}

// CalibrateInfoHash resolves the filename of a single torrent.
func (ac *ClientImpl) CalibrateInfoHash(ctx context.Context, infoHash string, opts task.PollOptions) (string, error) {
	if strings.TrimSpace(infoHash) == "" {
		return "", ErrEmptyInfoHash
	}
	taskID, err := ac.tasks.SubmitInfoHashCalibration(ctx, infoHash)
	if err != nil {
		return "", err
	}
	st, err := ac.tasks.Poll(ctx, taskID, opts)
	if err != nil {
		return "", err
	}
	return st.Filename()
}

func (ac *ClientImpl) ActiveSessions() []session.Info {
	return ac.sessions.Snapshot()
}

// WatchNetwork starts invalidating the connection profile on host network
// changes until ctx is done. It reports false when the condition provider
// cannot signal changes.
func (ac *ClientImpl) WatchNetwork(ctx context.Context) bool {
	src, ok := ac.profiler.Conditions().(netprofile.ChangeSource)
	if !ok {
		return false
	}
	changes := src.Watch(ctx, ac.config.Network.WatchInterval)
	go ac.profiler.Watch(ctx, changes)
	return true
}

// SubscribeToEvents registers a handler for specific event types
func (ac *ClientImpl) SubscribeToEvents(eventType event.EventType, handler event.Handler) {
	ac.bus.Subscribe(eventType, handler)
}

// SubscribeToAllEvents registers a handler for all events
func (ac *ClientImpl) SubscribeToAllEvents(handler event.Handler) {
	ac.bus.SubscribeAll(handler)
}

// Close waits for in-flight event handlers.
func (ac *ClientImpl) Close() {
	ac.bus.Close()
}
