package auth

import "errors"

// Sentinel kinds for authentication errors.
var (
	ErrMissingSecret = errors.New("jwt secret not configured")
	ErrMissingToken  = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid bearer token")
)
