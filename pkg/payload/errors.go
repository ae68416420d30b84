package payload

import "errors"

var (
	// ErrInvalidEncryptionKey indicates a connection's encryption key could
	// not be decoded into usable key material.
	ErrInvalidEncryptionKey = errors.New("invalid encryption key")

	// ErrInvalidCiphertext indicates an encrypted payload is malformed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrEncryptionFailed wraps low-level cipher failures.
	ErrEncryptionFailed = errors.New("payload encryption failed")

	// ErrSourceNil indicates the builder was constructed without a data
	// source.
	ErrSourceNil = errors.New("payload source cannot be nil")
)
