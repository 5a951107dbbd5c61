package event

import "time"

// EventType represents the type of event
type EventType string

const (
	// Task lifecycle events
	TaskSubmitted   EventType = "task.submitted"
	TaskTick        EventType = "task.tick"
	TaskCompleted   EventType = "task.completed"
	TaskFailed      EventType = "task.failed"
	TaskCancelled   EventType = "task.cancelled"
	TaskPollTimeout EventType = "task.poll_timeout"

	// Transport events
	FetchRetry EventType = "fetch.retry"

	// Connectivity events
	NetworkChanged EventType = "network.changed"
)

// Event represents an event emitted by the SDK
type Event struct {
	Type      EventType
	TaskID    string
	Timestamp time.Time
	Data      map[EventDataKey]interface{}
}

func NewEvent(eventType EventType, taskID string, data map[EventDataKey]interface{}) Event {
	if data == nil {
		data = make(map[EventDataKey]interface{})
	}

	return Event{
		Type:      eventType,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Publisher is the subset of Bus that emitters depend on.
type Publisher interface {
	Publish(Event)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
