package service

import "errors"

// Sentinel kinds for service wiring errors.
var (
	ErrMissingDirectory = errors.New("service requires an assignment directory")
	ErrMissingRubric    = errors.New("service requires a rubric")
)
