package directory

import "errors"

// Sentinel kinds for directory errors.
var (
	ErrLoad = errors.New("load directory failed")
)
