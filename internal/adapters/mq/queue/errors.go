package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull   = errors.New("announcement queue full")
	ErrClosed = errors.New("announcement queue closed")
)
