package proxy

import "errors"

var (
	// ErrRepositoryNil is returned when a required dependency is missing.
	ErrRepositoryNil = errors.New("proxy dependency cannot be nil")

	// ErrInvalidHost is returned for proxy hosts that are empty or not http(s).
	ErrInvalidHost = errors.New("invalid proxy host")

	// ErrHealthcheckFailed is returned when the proxy healthcheck endpoint
	// is unreachable or returns an unexpected response.
	ErrHealthcheckFailed = errors.New("proxy healthcheck failed")

	// ErrPushFailed is returned when a feature payload push is rejected.
	ErrPushFailed = errors.New("proxy feature push failed")
)
