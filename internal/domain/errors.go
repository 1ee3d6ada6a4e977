package domain

import "errors"

// Errors shared by the cost model, simulator and validation pipeline.
var (
	// ErrUnknownInstrument is returned when an instrument is not on the allowlist.
	// Fatal: instrument profiles are never defaulted.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrIntegrityGateFailed marks a trade whose friction consumes too much of its risk.
	// Recoverable: the trade is excluded from statistics.
	ErrIntegrityGateFailed = errors.New("integrity gate failed")

	// ErrInsufficientData is returned when a window or split holds no bars.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrLeakageViolation is returned when test data could be reused or splits overlap.
	ErrLeakageViolation = errors.New("leakage violation")

	// ErrRunTimeout is returned when a validation run exceeds its time budget.
	ErrRunTimeout = errors.New("validation run timed out")

	// ErrInvalidBars is returned when a bar sequence is unordered or malformed.
	ErrInvalidBars = errors.New("invalid bar sequence")

	// ErrInvalidParams is returned for malformed trade or grid parameters.
	ErrInvalidParams = errors.New("invalid parameters")
)
