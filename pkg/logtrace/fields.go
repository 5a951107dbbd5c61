package logtrace

// Fields is a type alias for structured log fields
type Fields map[string]interface{}

// WithFields returns a copy of base with extra fields merged in.
func WithFields(base Fields, extra Fields) Fields {
	fields := make(Fields, len(base)+len(extra))
	for key, value := range base {
		fields[key] = value
	}
	for key, value := range extra {
		fields[key] = value
	}
	return fields
}

const (
	FieldCorrelationID = "correlation_id"
	FieldOrigin        = "origin"
	FieldModule        = "module"
	FieldMethod        = "method"
	FieldURL           = "url"
	FieldError         = "error"
	FieldStatus        = "status"
	FieldStatusCode    = "status_code"
	FieldStackTrace    = "stack_trace"
	FieldTaskID        = "task_id"
	FieldAttempt       = "attempt"
	FieldMaxRetries    = "max_retries"
	FieldTimeout       = "timeout"
	FieldBackoff       = "backoff"
	FieldElapsed       = "elapsed"
	FieldConnection    = "connection"
	FieldRequestID     = "request_id"
	FieldNoteID        = "note_id"
	FieldInfoHash      = "info_hash"
)
