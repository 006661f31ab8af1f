package queue

import "context"

// Job handles one message type.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type routed to this job.
	Type() string

	// Handle processes a payload. A returned error is retried up to the
	// queue's RetryLimit.
	Handle(ctx context.Context, payload interface{}) error
}
