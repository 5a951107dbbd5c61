package event

// EventDataKey defines standard keys used in event data
type EventDataKey string

const (
	KeyError   EventDataKey = "error"
	KeyMessage EventDataKey = "message"

	// Poll progress
	KeyAttempt      EventDataKey = "attempt"
	KeyStatus       EventDataKey = "status"
	KeyElapsedSec   EventDataKey = "elapsed_sec"
	KeyRemainingSec EventDataKey = "remaining_sec"

	// Fetch retries
	KeyURL     EventDataKey = "url"
	KeyBackoff EventDataKey = "backoff"

	// Connectivity
	KeyConnection EventDataKey = "connection"
	KeyOnline     EventDataKey = "online"
)
