package netprofile

import (
	"context"
	"time"
)

// Signal is what the host reports about link quality.
type Signal struct {
	// Available is false when the host exposes no quality signal at all.
	Available     bool
	EffectiveType string
	// Type is the physical link type, e.g. "wifi" or "cellular".
	Type string
}

//go:generate mockgen -destination=mocks/mock_conditions.go -package=mocks -source=conditions.go

// Conditions reports network state to the profiler and the fetch client.
type Conditions interface {
	Online(ctx context.Context) bool
	Signal(ctx context.Context) Signal
}

// StaticConditions reports fixed values. The zero value is an online host
// without a quality signal.
type StaticConditions struct {
	Offline bool
	Sig     Signal
}

func (s StaticConditions) Online(context.Context) bool { return !s.Offline }

func (s StaticConditions) Signal(context.Context) Signal { return s.Sig }

// ChangeSource is implemented by providers that can signal connection
// changes, the trigger for Profiler.Watch.
type ChangeSource interface {
	Watch(ctx context.Context, interval time.Duration) <-chan struct{}
}
