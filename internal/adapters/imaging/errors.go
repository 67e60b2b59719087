package imaging

import "errors"

var (
	ErrEmptyInput        = errors.New("empty image payload")
	ErrInvalidBase64     = errors.New("invalid base64 image")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrImageTooLarge     = errors.New("image too large")
	ErrInvalidImage      = errors.New("invalid image")
)
