package task

import (
	"time"

	json "github.com/json-iterator/go"
)

// State is the server-side lifecycle state of a task.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StateRunning, StateCompleted, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Status is one status query response.
type Status struct {
	Success     bool            `json:"success"`
	TaskID      string          `json:"task_id"`
	State       State           `json:"status"`
	InfoHash    string          `json:"info_hash,omitempty"`
	CreatedAt   float64         `json:"created_at,omitempty"`
	CompletedAt *float64        `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Created returns the creation time reported by the server.
func (s *Status) Created() time.Time { return unixSeconds(s.CreatedAt) }

// Completed returns the completion time, if the task has finished.
func (s *Status) Completed() (time.Time, bool) {
	if s.CompletedAt == nil {
		return time.Time{}, false
	}
	return unixSeconds(*s.CompletedAt), true
}

// DecodeResult unmarshals the result payload into v.
func (s *Status) DecodeResult(v interface{}) error {
	if len(s.Result) == 0 {
		return ErrNoResult
	}
	return json.Unmarshal(s.Result, v)
}

func unixSeconds(f float64) time.Time {
	if f <= 0 {
		return time.Time{}
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*float64(time.Second)))
}

// Tick is the progress report emitted after every status query.
type Tick struct {
	TaskID       string
	Attempt      int
	Elapsed      time.Duration
	ElapsedSec   int
	RemainingSec int
	Status       *Status
}

// PollOptions tunes one Poll call. Zero values take the client defaults.
type PollOptions struct {
	Interval      time.Duration
	MaxDuration   time.Duration
	StatusTimeout time.Duration
	// OnTick is called synchronously after each query. Panics are recovered
	// and logged; they never stop polling.
	OnTick func(Tick)
}

type submitResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
	Status  State  `json:"status"`
	Error   string `json:"error"`
}
