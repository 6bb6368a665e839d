package gesture

import "errors"

// Sentinel errors for gesture operations.
var (
	// ErrValidation indicates a missing or invalid field; nothing was mutated.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates the referenced gesture id does not exist.
	ErrNotFound = errors.New("gesture not found")

	// ErrRecordingInactive indicates progress for a recording that was already stopped or completed.
	ErrRecordingInactive = errors.New("recording not active")
)
