package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist
	// or is not in a state the operation applies to.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists: a snapshot (symbol, fetched_at) pair
	// or a bridge transaction's deposit hash.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
