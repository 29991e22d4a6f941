package keys

import (
	"errors"
	"strings"
)

// MaxKeyLength is the maximum allowed length for an identity key.
const MaxKeyLength = 512

// Sentinel errors for key validation.
var (
	ErrInvalidKey = errors.New("keys: key is invalid")
	ErrKeyTooLong = errors.New("keys: key exceeds max length")
)

// Endpoint builds the endpoint-shape identity shared by the abort, cache
// and queue keys. The template is used before parameter substitution.
func Endpoint(method, base, template string) string {
	return strings.ToUpper(method) + " " + base + template
}

// Abort returns the default abort key.
func Abort(method, base, template string) string {
	return Endpoint(method, base, template)
}

// Cache returns the default cache key.
func Cache(method, base, template string) string {
	return Endpoint(method, base, template)
}

// Queue returns the default queue key. It follows the cache key derivation.
func Queue(method, base, template string) string {
	return Cache(method, base, template)
}

// Request returns the identity of one fully resolved variant.
// Format: "<METHOD> <path>[?<query>]"
func Request(method, path string, query map[string]any) string {
	key := strings.ToUpper(method) + " " + path
	if q := EncodeQuery(query); q != "" {
		key += "?" + q
	}
	return key
}

// Validate checks that a key can be used as an identity override.
func Validate(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
