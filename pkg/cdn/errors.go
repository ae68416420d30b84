package cdn

import "errors"

var (
	// ErrInvalidConfiguration is returned when the purger is constructed
	// with a missing or unparsable endpoint.
	ErrInvalidConfiguration = errors.New("invalid cdn configuration")

	// ErrPurgeFailed is returned when the purge endpoint rejects a batch.
	ErrPurgeFailed = errors.New("cdn purge failed")
)
