package credstore

import "errors"

var (
	// ErrNotFound is returned when a key has no value (or has expired).
	ErrNotFound = errors.New("credstore: key not found")

	// ErrEncryptorRequired is returned when the store is asked to read or
	// write the encrypted namespace without an encryption key configured.
	ErrEncryptorRequired = errors.New("credstore: encryption key not configured")
)
