package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplateDecode is returned when a stored template cannot be
	// decrypted or deserialized.
	ErrTemplateDecode = errors.New("template decode failed")
	// ErrMalformedSignature is returned when a decoded signature violates its
	// fixed-length contract in a way zero-padding cannot repair.
	ErrMalformedSignature = fmt.Errorf("%w: malformed signature", ErrTemplateDecode)
	// ErrEmptyKey is returned when no encryption secret is configured.
	ErrEmptyKey = errors.New("encryption key must not be empty")
)
