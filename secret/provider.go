package secret

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider resolves references as environment variable names.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider returns a provider backed by os.LookupEnv.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the value of the environment variable ref.
func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("%w: env %q", ErrSecretNotFound, ref)
	}
	return v, nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error { return nil }

// StaticProvider serves secrets from memory. Useful for tests and for
// credentials injected programmatically.
type StaticProvider struct {
	name string

	mu     sync.RWMutex
	values map[string]string
}

// NewStaticProvider creates a provider named name seeded with values.
// An empty name defaults to "static".
func NewStaticProvider(name string, values map[string]string) *StaticProvider {
	if name == "" {
		name = "static"
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &StaticProvider{name: name, values: copied}
}

// Name returns the provider name.
func (p *StaticProvider) Name() string { return p.name }

// Set stores or replaces a secret.
func (p *StaticProvider) Set(ref, value string) {
	p.mu.Lock()
	p.values[ref] = value
	p.mu.Unlock()
}

// Resolve returns the stored value for ref.
func (p *StaticProvider) Resolve(_ context.Context, ref string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[ref]
	if !ok {
		return "", fmt.Errorf("%w: %s %q", ErrSecretNotFound, p.name, ref)
	}
	return v, nil
}

// Close drops all stored values.
func (p *StaticProvider) Close() error {
	p.mu.Lock()
	p.values = map[string]string{}
	p.mu.Unlock()
	return nil
}
