package condition

import "errors"

var (
	// ErrInvalidJSON indicates the input is not a well-formed JSON document
	// or is not the expected shape (e.g. a scalar where an object is required).
	ErrInvalidJSON = errors.New("invalid condition JSON")
)
