package auth

import "errors"

// Sentinel errors for credential attachment.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrTokenUnavailable   = errors.New("auth: token unavailable")
	ErrSigningFailed      = errors.New("auth: signing failed")
)
