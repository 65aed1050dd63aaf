package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrLimitExceeded indicates a bounded collection is already at capacity.
	ErrLimitExceeded = errors.New("limit exceeded")
)
