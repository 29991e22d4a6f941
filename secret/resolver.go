package secret

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

const refPrefix = "secretref:"

// refPattern matches secretref:<provider>:<ref> embedded in a longer value,
// such as "Bearer secretref:env:TOKEN".
var refPattern = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

// Resolver turns configured header values into their final form: it
// expands ${ENV} references, then replaces secretref:<provider>:<ref>
// tokens using the registered providers. It is safe for concurrent use;
// the HTTP adapter calls it for every request.
//
// A nil Resolver only expands environment variables.
type Resolver struct {
	strict bool

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewResolver creates a resolver. In strict mode an empty secret is an
// error.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{strict: strict, providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider under its name.
func (r *Resolver) Register(p Provider) {
	if r == nil || p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[p.Name()] = p
}

// ParseSecretRef splits a value that is exactly secretref:<provider>:<ref>.
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

// ResolveValue expands env references and secret refs in value.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil || r == nil {
		return expanded, err
	}

	if provider, ref, ok := ParseSecretRef(expanded); ok {
		return r.lookup(ctx, provider, ref)
	}
	if !strings.Contains(expanded, refPrefix) {
		return expanded, nil
	}

	var firstErr error
	out := refPattern.ReplaceAllStringFunc(expanded, func(token string) string {
		if firstErr != nil {
			return token
		}
		m := refPattern.FindStringSubmatch(token)
		v, err := r.lookup(ctx, m[1], m[2])
		if err != nil {
			firstErr = err
			return token
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// ResolveMap resolves every value of input. Keys are visited in sorted
// order so the reported failure is deterministic; errors name the key,
// never the value.
func (r *Resolver) ResolveMap(ctx context.Context, input map[string]string) (map[string]string, error) {
	if input == nil {
		return nil, nil
	}
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make(map[string]string, len(input))
	for _, k := range keys {
		v, err := r.ResolveValue(ctx, input[k])
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// ResolveHeaders resolves request header values.
func (r *Resolver) ResolveHeaders(ctx context.Context, headers map[string]string) (map[string]string, error) {
	out, err := r.ResolveMap(ctx, headers)
	if err != nil {
		return nil, fmt.Errorf("secret: header %w", err)
	}
	return out, nil
}

func (r *Resolver) lookup(ctx context.Context, name, ref string) (string, error) {
	r.mu.RLock()
	p := r.providers[name]
	r.mu.RUnlock()

	if p == nil {
		return "", fmt.Errorf("%w: %q", ErrProviderNotRegistered, name)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if v == "" && r.strict {
		return "", fmt.Errorf("%w: %s", ErrEmptySecret, name)
	}
	return v, nil
}

// Close closes every provider and returns the first error.
func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
