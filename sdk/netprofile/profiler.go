// Package netprofile classifies the current connection and maps the class to
// a request timeout and retry budget.
package netprofile

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/srbot/notesdk/pkg/logtrace"
	"github.com/srbot/notesdk/sdk/event"
)

const (
	// DefaultStaleness is how long a detected kind is reused.
	DefaultStaleness = 30 * time.Second

	profileKey = "profile"
)

// Profile is a detected kind and the budget it implies.
type Profile struct {
	Kind       Kind
	Timeout    time.Duration
	RetryCount int
	DetectedAt time.Time
}

// Profiler caches the detected connection kind for the staleness window.
type Profiler struct {
	conditions Conditions
	table      Table
	staleness  time.Duration
	cache      *cache.Cache
	group      singleflight.Group
	publisher  event.Publisher
	now        func() time.Time
}

type Option func(*Profiler)

func WithTable(t Table) Option {
	return func(p *Profiler) {
		if len(t) > 0 {
			p.table = t
		}
	}
}

func WithStaleness(d time.Duration) Option {
	return func(p *Profiler) {
		if d > 0 {
			p.staleness = d
		}
	}
}

// WithPublisher sends network.changed events from Watch.
func WithPublisher(pub event.Publisher) Option {
	return func(p *Profiler) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// NewProfiler builds a profiler over conditions. A nil provider behaves like
// StaticConditions{}.
func NewProfiler(conditions Conditions, opts ...Option) *Profiler {
	if conditions == nil {
		conditions = StaticConditions{}
	}
	p := &Profiler{
		conditions: conditions,
		table:      DefaultTable(),
		staleness:  DefaultStaleness,
		publisher:  event.Discard,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cache = cache.New(p.staleness, 2*p.staleness)
	return p
}

// Conditions returns the provider the profiler reads from.
func (p *Profiler) Conditions() Conditions { return p.conditions }

// Table returns the budget table in use.
func (p *Profiler) Table() Table { return p.table }

// Profile returns the cached profile or derives a fresh one.
func (p *Profiler) Profile(ctx context.Context) Profile {
	if v, ok := p.cache.Get(profileKey); ok {
		return v.(Profile)
	}

	v, _, _ := p.group.Do(profileKey, func() (interface{}, error) {
		if v, ok := p.cache.Get(profileKey); ok {
			return v, nil
		}
		// Detached from the caller; probes carry their own timeout.
		kind := p.derive(context.WithoutCancel(ctx))
		entry := p.table.Lookup(kind)
		prof := Profile{
			Kind:       kind,
			Timeout:    entry.Timeout,
			RetryCount: entry.RetryCount,
			DetectedAt: p.now(),
		}
		p.cache.Set(profileKey, prof, cache.DefaultExpiration)

		logtrace.Debug(ctx, "Connection profile detected", logtrace.Fields{
			logtrace.FieldModule:     "netprofile",
			logtrace.FieldConnection: string(kind),
			logtrace.FieldTimeout:    entry.Timeout.String(),
			logtrace.FieldMaxRetries: entry.RetryCount,
		})
		return prof, nil
	})
	return v.(Profile)
}

// Detect returns the current connection kind.
func (p *Profiler) Detect(ctx context.Context) Kind { return p.Profile(ctx).Kind }

// Timeout returns the per-attempt timeout for the current kind.
func (p *Profiler) Timeout(ctx context.Context) time.Duration { return p.Profile(ctx).Timeout }

// RetryCount returns the retry budget for the current kind.
func (p *Profiler) RetryCount(ctx context.Context) int { return p.Profile(ctx).RetryCount }

// Online reports whether the host currently has connectivity.
func (p *Profiler) Online(ctx context.Context) bool { return p.conditions.Online(ctx) }

// Invalidate drops the cached kind so the next call re-detects.
func (p *Profiler) Invalidate() {
	p.cache.Delete(profileKey)
}

func (p *Profiler) derive(ctx context.Context) Kind {
	sig := p.conditions.Signal(ctx)
	if !sig.Available || strings.TrimSpace(sig.EffectiveType) == "" {
		return Kind4G
	}
	if strings.EqualFold(sig.Type, string(KindWiFi)) {
		return KindWiFi
	}
	return ParseKind(sig.EffectiveType)
}

// Watch invalidates the cache on every change signal and publishes the
// re-detected profile. It returns when ctx is done or changes is closed.
func (p *Profiler) Watch(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			p.Invalidate()
			prof := p.Profile(ctx)
			online := p.conditions.Online(ctx)

			logtrace.Info(ctx, "Network conditions changed", logtrace.Fields{
				logtrace.FieldModule:     "netprofile",
				logtrace.FieldConnection: string(prof.Kind),
				"online":                 online,
			})
			p.publisher.Publish(event.NewEvent(event.NetworkChanged, "", map[event.EventDataKey]interface{}{
				event.KeyConnection: string(prof.Kind),
				event.KeyOnline:     online,
			}))
		}
	}
}
