package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every backend. Backends wrap them with the
// record kind and key; match with errors.Is.
var (
	// ErrNotFound is returned when a range, outcome or run does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a record id is already stored.
	// Ranges, outcomes, runs and grid rows are never updated in place.
	ErrDuplicateKey = errors.New("duplicate key: record is append-only")

	// ErrInvalidInput is returned for a nil record or an empty id.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSchemaChanged is returned when an applied migration no longer
	// matches the checksum recorded when it ran.
	ErrSchemaChanged = errors.New("applied migration changed")
)

// Record kinds named in wrapped storage errors.
const (
	KindBar     = "price bar"
	KindRange   = "opening range"
	KindOutcome = "trade outcome"
	KindRun     = "validation run"
	KindGrid    = "grid result"
)

// NotFound reports that the kind record with key does not exist.
func NotFound(kind, key string) error {
	return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
}

// Duplicate reports that the kind record with key is already stored.
func Duplicate(kind, key string) error {
	return fmt.Errorf("%s %s: %w", kind, key, ErrDuplicateKey)
}

// Invalid reports a record rejected before it reached the backend.
func Invalid(kind, reason string) error {
	return fmt.Errorf("%s: %s: %w", kind, reason, ErrInvalidInput)
}
