package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/srbot/notesdk/sdk/net"
)

var (
	// ErrCancelled is returned when the caller's context ends a poll or a
	// request early.
	ErrCancelled = net.ErrCancelled
	ErrNoResult  = errors.New("task has no result payload")
	ErrEmptyID   = errors.New("task id is empty")
)

// SubmissionError means the server did not accept the task.
type SubmissionError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmissionError) Error() string {
	return "task submission failed: " + e.Message
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// StatusQueryError means a status query failed or returned garbage.
type StatusQueryError struct {
	TaskID     string
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusQueryError) Error() string {
	return fmt.Sprintf("status query for task %s failed: %s", e.TaskID, e.Message)
}

func (e *StatusQueryError) Unwrap() error { return e.Err }

// PollTimeoutError means the poll budget ran out before a terminal state.
type PollTimeoutError struct {
	TaskID      string
	Attempts    int
	MaxDuration time.Duration
	LastState   State
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("task %s did not finish within %s (%d status queries, last state %q)",
		e.TaskID, e.MaxDuration, e.Attempts, e.LastState)
}

// TaskFailedError carries the failure reported by the server.
type TaskFailedError struct {
	TaskID  string
	Message string
	Status  *Status
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}
