package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBeginEndSnapshot(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	t0 := time.Unix(1000, 0)

	if snap := r.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %#v", snap)
	}

	a := r.Begin(ctx, "task-a", time.Second, time.Minute, t0)
	b := r.Begin(ctx, "task-b", time.Second, time.Minute, t0.Add(time.Second))

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(snap))
	}
	if snap[0].TaskID != "task-a" || snap[1].TaskID != "task-b" {
		t.Fatalf("expected oldest first, got %v", snap)
	}

	a.End(ctx, "completed")
	if r.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", r.Len())
	}

	b.End(ctx, "cancelled")
	b.End(ctx, "cancelled")
	if r.Len() != 0 {
		t.Fatalf("expected registry empty, got %d", r.Len())
	}
}

func TestSameTaskTwiceIsIndependent(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	now := time.Now()

	first := r.Begin(ctx, "dup", time.Second, time.Minute, now)
	second := r.Begin(ctx, "dup", time.Second, time.Minute, now)
	first.RecordAttempt()
	first.RecordAttempt()

	if second.Info().Attempts != 0 {
		t.Fatalf("attempts leaked between sessions: %d", second.Info().Attempts)
	}
	first.End(ctx, "done")
	if r.Len() != 1 {
		t.Fatalf("ending one session removed the other")
	}
}

func TestExpiry(t *testing.T) {
	t0 := time.Unix(0, 0)
	s := NewRegistry().Begin(context.Background(), "x", time.Second, 60*time.Second, t0)

	if s.Expired(t0.Add(60 * time.Second)) {
		t.Fatalf("elapsed equal to the budget must not expire")
	}
	if !s.Expired(t0.Add(60*time.Second + time.Millisecond)) {
		t.Fatalf("expected expiry once elapsed exceeds the budget")
	}
}

func TestNilRegistryDetachedSession(t *testing.T) {
	var r *Registry
	s := r.Begin(context.Background(), "x", time.Second, time.Minute, time.Now())
	if got := s.RecordAttempt(); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	s.End(context.Background(), "done")
	if r.Snapshot() != nil || r.Len() != 0 {
		t.Fatalf("nil registry should report nothing")
	}
}

func TestConcurrentAttempts(t *testing.T) {
	r := NewRegistry()
	s := r.Begin(context.Background(), "c", time.Second, time.Minute, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordAttempt()
			_ = r.Snapshot()
		}()
	}
	wg.Wait()

	if got := s.Info().Attempts; got != 50 {
		t.Fatalf("expected 50 attempts, got %d", got)
	}
}
