package signature

import (
	"errors"
	"fmt"
)

// Sentinel kinds for extraction errors.
var (
	ErrNoFaceDetected         = errors.New("no face detected")
	ErrIncompleteLandmarks    = fmt.Errorf("%w: incomplete landmark set", ErrNoFaceDetected)
	ErrPoorFingerprintQuality = errors.New("poor fingerprint quality")
	ErrEmptyImage             = errors.New("empty image")
	ErrProvider               = errors.New("feature provider failed")
)
