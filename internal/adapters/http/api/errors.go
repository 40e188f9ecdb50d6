package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrHijackUnsupported = errors.New("response writer does not support hijacking")
)

var errMissingScale = errors.New("missing scale")
