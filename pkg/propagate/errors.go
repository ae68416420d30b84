package propagate

import "errors"

var (
	// ErrDependencyNil is returned when a required collaborator is missing.
	ErrDependencyNil = errors.New("propagate dependency cannot be nil")

	// ErrCacheWrite wraps payload cache write failures, the only
	// per-connection errors a cycle surfaces to its caller.
	ErrCacheWrite = errors.New("payload cache write failed")
)
