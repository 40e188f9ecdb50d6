package simulate

import "errors"

// Sentinel kinds for simulation failures.
var (
	ErrUnhealthy       = errors.New("service unhealthy")
	ErrAlreadyReleased = errors.New("results already released")
	ErrIncomplete      = errors.New("submissions incomplete")
	ErrMismatch        = errors.New("published ranking mismatch")
	ErrUnexpectedReply = errors.New("unexpected response")
)
