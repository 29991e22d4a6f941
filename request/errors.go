package request

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for descriptor validation.
var (
	ErrUnresolvedParams = errors.New("request: unresolved path parameters")
	ErrInvalidKey       = errors.New("request: invalid identity key")
	ErrMissingEndpoint  = errors.New("request: endpoint is required")
)

// ConfigError is a local configuration failure detected before sending.
type ConfigError struct {
	Endpoint string
	Missing  []string
	Err      error
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%v: %s (%s)", e.Err, e.Endpoint, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Endpoint)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
