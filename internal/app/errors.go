package service

import "errors"

var (
	// ErrExtractionFailed wraps a signature extraction failure during verification.
	ErrExtractionFailed = errors.New("biometric extraction failed")
	// ErrInvalidThreshold is returned for thresholds outside [0,1].
	ErrInvalidThreshold = errors.New("threshold must be within [0,1]")
	// ErrInvalidRequest is returned for enrollment requests missing required fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotStarted is returned when attendance is submitted before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrQueueFull is returned when the attendance queue rejects an event.
	ErrQueueFull = errors.New("attendance queue full")
)
