package worker

import "errors"

// ErrShutdownTimeout reports workers that did not stop in time.
var ErrShutdownTimeout = errors.New("worker shutdown timed out")
