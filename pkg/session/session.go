// Package session keeps an in-memory view of the poll sessions that are
// alive in this process. A session exists only while the Poll call that owns
// it is running; nothing is persisted.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/srbot/notesdk/pkg/logtrace"
)

// Info is a point-in-time copy of one session.
type Info struct {
	TaskID      string
	Interval    time.Duration
	MaxDuration time.Duration
	StartedAt   time.Time
	Attempts    int
}

// Registry is a concurrency-safe set of live sessions. Polling the same task
// twice yields two independent sessions.
type Registry struct {
	mu   sync.RWMutex
	seq  uint64
	live map[uint64]*Session
}

func NewRegistry() *Registry {
	return &Registry{live: make(map[uint64]*Session)}
}

// Begin registers a session that starts at startedAt. A nil registry returns
// a detached session that still counts attempts.
func (r *Registry) Begin(ctx context.Context, taskID string, interval, maxDuration time.Duration, startedAt time.Time) *Session {
	s := &Session{
		reg: r,
		info: Info{
			TaskID:      taskID,
			Interval:    interval,
			MaxDuration: maxDuration,
			StartedAt:   startedAt,
		},
	}
	if r != nil {
		r.mu.Lock()
		r.seq++
		s.key = r.seq
		r.live[s.key] = s
		r.mu.Unlock()
	}

	logtrace.Debug(ctx, "session: started", logtrace.Fields{
		logtrace.FieldTaskID: taskID,
		"interval":           interval.String(),
		"max_duration":       maxDuration.String(),
	})
	return s
}

// Snapshot returns copies of the live sessions, oldest first.
func (r *Registry) Snapshot() []Info {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]Info, 0, len(r.live))
	for _, s := range r.live {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

func (r *Registry) remove(key uint64) {
	if r == nil || key == 0 {
		return
	}
	r.mu.Lock()
	delete(r.live, key)
	r.mu.Unlock()
}

// Session is the mutable state of one Poll call.
type Session struct {
	reg  *Registry
	key  uint64
	mu   sync.Mutex
	info Info
	once sync.Once
}

// RecordAttempt counts one status query and returns the new total.
func (s *Session) RecordAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Attempts++
	return s.info.Attempts
}

// Elapsed is the time since the session started, as seen at now.
func (s *Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.info.StartedAt)
}

// Expired reports whether the elapsed time has passed the budget.
func (s *Session) Expired(now time.Time) bool {
	return s.Elapsed(now) > s.info.MaxDuration
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// End removes the session from its registry. Safe to call multiple times.
func (s *Session) End(ctx context.Context, outcome string) {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.reg.remove(s.key)
		info := s.Info()
		logtrace.Debug(ctx, "session: ended", logtrace.Fields{
			logtrace.FieldTaskID:  info.TaskID,
			logtrace.FieldAttempt: info.Attempts,
			"outcome":             outcome,
		})
	})
}
