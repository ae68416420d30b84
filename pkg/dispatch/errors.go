package dispatch

import "errors"

var (
	// ErrUnknownFormat is returned for a payload format the dispatcher
	// does not know how to serialize
	ErrUnknownFormat = errors.New("unknown webhook payload format")

	// ErrRepositoryNil is returned when a nil dependency is passed to
	// NewDispatcher
	ErrRepositoryNil = errors.New("dispatch dependency cannot be nil")

	// ErrDeliveryFailed wraps a failed delivery attempt so the queue
	// reschedules the job
	ErrDeliveryFailed = errors.New("webhook delivery attempt failed")
)
