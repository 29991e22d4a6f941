package client

import "errors"

// ErrNoAuthenticator is returned when an auth-flagged descriptor is sent by
// a client without an authenticator.
var ErrNoAuthenticator = errors.New("client: request requires auth but no authenticator is configured")
