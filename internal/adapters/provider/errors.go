package provider

import "errors"

var (
	ErrBadBaseURL    = errors.New("invalid provider base url")
	ErrUnavailable   = errors.New("provider unavailable")
	ErrBadResponse   = errors.New("malformed provider response")
	ErrRequestFailed = errors.New("provider rejected request")
)
