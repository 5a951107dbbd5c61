package task

import "time"

// Submission budget
const (
	// submitTimeout bounds each submission attempt. Submission is a fast
	// enqueue on the server, so a slow link should not stretch it.
	submitTimeout = 10 * time.Second
	submitRetries = 1
)

// Status polling
const (
	statusTimeout      = 5 * time.Second
	defaultPollEvery   = time.Second
	defaultPollMaxWait = 60 * time.Second
)

// Synchronous calibration runs the whole job inside the request.
const (
	syncTimeout = 60 * time.Second
	syncRetries = 2
)
