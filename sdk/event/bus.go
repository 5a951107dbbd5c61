package event

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/srbot/notesdk/pkg/logtrace"
)

// Handler is a function that processes events
type Handler func(Event)

// Bus fans events out to subscribers. Handlers run on their own goroutines,
// bounded by the worker pool, and a panicking handler never reaches the
// publisher.
type Bus struct {
	subscribers      map[EventType][]Handler
	wildcardHandlers []Handler
	mu               sync.RWMutex
	workerPool       chan struct{}
	maxWorkers       int
	inflight         sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus(maxWorkers int) *Bus {
	if maxWorkers <= 0 {
		maxWorkers = 50
	}

	return &Bus{
		subscribers: make(map[EventType][]Handler),
		workerPool:  make(chan struct{}, maxWorkers),
		maxWorkers:  maxWorkers,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	logtrace.Debug(context.Background(), "Subscribing handler to event type", logtrace.Fields{
		logtrace.FieldModule: "event",
		"event_type":         eventType,
	})
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (b *Bus) SubscribeAll(handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.wildcardHandlers = append(b.wildcardHandlers, handler)
}

func (b *Bus) safelyCallHandler(handler Handler, event Event) {
	b.workerPool <- struct{}{}
	b.inflight.Add(1)

	go func() {
		defer func() {
			<-b.workerPool
			b.inflight.Done()

			if r := recover(); r != nil {
				logtrace.Error(context.Background(), "Event handler panicked", logtrace.Fields{
					logtrace.FieldModule:     "event",
					logtrace.FieldError:      r,
					logtrace.FieldTaskID:     event.TaskID,
					logtrace.FieldStackTrace: string(debug.Stack()),
					"event_type":             event.Type,
				})
			}
		}()

		handler(copyEvent(event))
	}()
}

func copyEvent(e Event) Event {
	copied := Event{
		Type:      e.Type,
		TaskID:    e.TaskID,
		Timestamp: e.Timestamp,
		Data:      make(map[EventDataKey]interface{}, len(e.Data)),
	}
	for k, v := range e.Data {
		copied.Data[k] = v
	}
	return copied
}

// Publish sends an event to all relevant subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, handler := range b.subscribers[event.Type] {
		b.safelyCallHandler(handler, event)
	}
	for _, handler := range b.wildcardHandlers {
		b.safelyCallHandler(handler, event)
	}
}

// WaitForHandlers blocks until every dispatched handler has returned.
func (b *Bus) WaitForHandlers() {
	b.inflight.Wait()
}

// Close releases resources used by the event bus
func (b *Bus) Close() {
	b.WaitForHandlers()
}
