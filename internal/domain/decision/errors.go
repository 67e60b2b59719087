package decision

import "errors"

var (
	// ErrInvalidPolicy is returned when a policy value is outside [0,1] or the
	// fusion weights do not sum to 1.
	ErrInvalidPolicy = errors.New("invalid decision policy")
	// ErrUnknownProfileKey is returned when a calibration profile sets a key
	// the policy does not define.
	ErrUnknownProfileKey = errors.New("unknown profile key")
)
