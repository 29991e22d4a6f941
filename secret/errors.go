package secret

import "errors"

var (
	// ErrProviderNotRegistered is returned for references to unknown providers.
	ErrProviderNotRegistered = errors.New("secret: provider not registered")

	// ErrSecretNotFound is returned when a provider has no value for a reference.
	ErrSecretNotFound = errors.New("secret: not found")

	// ErrEmptySecret is returned in strict mode when a provider yields "".
	ErrEmptySecret = errors.New("secret: empty value")

	// ErrMissingEnv is returned when ${VAR} names an unset variable.
	ErrMissingEnv = errors.New("secret: missing environment variables")
)
