package storage

import "errors"

// Store errors. Days are written once; a recomputation needs the old rows
// removed first.
var (
	// ErrNotFound is returned when a requested day has not been stored.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a day, or a payment within a day,
	// is already stored.
	ErrDuplicateKey = errors.New("duplicate key: day already stored")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
