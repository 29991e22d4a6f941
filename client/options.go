package client

import (
	"github.com/jonwraymond/fetchops/auth"
	"github.com/jonwraymond/fetchops/cache"
	"github.com/jonwraymond/fetchops/cache/persist"
	"github.com/jonwraymond/fetchops/dispatch"
	"github.com/jonwraymond/fetchops/observe"
	"github.com/jonwraymond/fetchops/secret"
	"github.com/jonwraymond/fetchops/transport"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	adapter       transport.Adapter
	storage       cache.Storage
	initial       cache.Snapshot
	authenticator auth.Authenticator
	observer      observe.Observer
	ownsObserver  bool
	logger        observe.Logger
	secrets       *secret.Resolver
	snapshots     *persist.Store
	dispatchOpts  []dispatch.Option
	cacheOpts     []cache.Option
}

// WithAdapter sets the transport. Default: an HTTP adapter.
func WithAdapter(a transport.Adapter) Option {
	return func(o *options) { o.adapter = a }
}

// WithStorage overrides the storage driver selected by the config.
func WithStorage(s cache.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithInitialData seeds the cache.
func WithInitialData(s cache.Snapshot) Option {
	return func(o *options) { o.initial = s }
}

// WithAuthenticator sets the authenticator applied to auth-flagged
// descriptors.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(o *options) { o.authenticator = a }
}

// WithObserver wires tracing, metrics and logging from an Observer. The
// caller keeps ownership.
func WithObserver(obs observe.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the logger. It takes precedence over the observer's.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSecretResolver resolves ${ENV} and secretref: values in default
// headers and in the headers of the default HTTP adapter.
func WithSecretResolver(r *secret.Resolver) Option {
	return func(o *options) { o.secrets = r }
}

// WithSnapshotStore persists the cache on Close.
func WithSnapshotStore(s *persist.Store) Option {
	return func(o *options) { o.snapshots = s }
}

// WithDispatchOptions passes extra options to the dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(o *options) { o.dispatchOpts = append(o.dispatchOpts, opts...) }
}

// WithCacheOptions passes extra options to the cache.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *options) { o.cacheOpts = append(o.cacheOpts, opts...) }
}
