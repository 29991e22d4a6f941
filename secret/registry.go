package secret

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ProviderFactory builds a Provider from its settings.
type ProviderFactory func(settings map[string]string) (Provider, error)

// Registry maps provider names to factories so providers can be chosen
// by name from configuration or the command line.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]ProviderFactory{}}
}

// Register adds factory under name. Names are unique.
func (r *Registry) Register(name string, factory ProviderFactory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return errors.New("secret: provider name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("secret: provider %q registered twice", name)
	}
	r.factories[name] = factory
	return nil
}

// Create builds the provider registered under name.
func (r *Registry) Create(name string, settings map[string]string) (Provider, error) {
	r.mu.RLock()
	factory := r.factories[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, name)
	}
	return factory(settings)
}

// Resolver builds each named provider and returns a resolver over them.
// Providers already built are closed when a later one fails.
func (r *Registry) Resolver(strict bool, names ...string) (*Resolver, error) {
	res := NewResolver(strict)
	for _, name := range names {
		p, err := r.Create(name, nil)
		if err != nil {
			_ = res.Close()
			return nil, err
		}
		res.Register(p)
	}
	return res, nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultRegistry knows the env and static providers.
var DefaultRegistry = func() *Registry {
	r := NewRegistry()
	_ = r.Register("env", func(map[string]string) (Provider, error) {
		return NewEnvProvider(), nil
	})
	_ = r.Register("static", func(values map[string]string) (Provider, error) {
		return NewStaticProvider("static", values), nil
	})
	return r
}()
