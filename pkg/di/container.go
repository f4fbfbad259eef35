package di

import (
	"github.com/rs/zerolog"

	"github.com/goliatone/go-livequery-cache/connectivity"
	"github.com/goliatone/go-livequery-cache/docstore"
	"github.com/goliatone/go-livequery-cache/kvstore"
	"github.com/goliatone/go-livequery-cache/livecache"
	"github.com/goliatone/go-livequery-cache/profilecache"
	"github.com/goliatone/go-livequery-cache/session"
)

// Container wires the cache components an application needs around one
// document store, connectivity monitor and durable key-value store. It
// manages the singletons; the generic cache constructors are package
// level functions because Go methods cannot have type parameters.
type Container struct {
	store   docstore.Store
	monitor connectivity.Monitor
	kv      kvstore.Store
	logger  zerolog.Logger

	resolverConfig profilecache.ResolverCacheConfig
	profileCache   *profilecache.Cache
	orgCache       *profilecache.OrgCache
}

// Option configures a Container.
type Option func(*Container)

// WithLogger attaches a logger shared by everything the container
// builds; the default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// WithResolverCacheConfig overrides the memoization settings used when
// wrapping profile resolvers.
func WithResolverCacheConfig(cfg profilecache.ResolverCacheConfig) Option {
	return func(c *Container) { c.resolverConfig = cfg }
}

// NewContainer creates a container over the application's collaborators:
// the live document store, the connectivity monitor, the durable
// key-value store, and the resolver for linked profiles.
func NewContainer(store docstore.Store, monitor connectivity.Monitor, kv kvstore.Store, resolver profilecache.Resolver, orgResolver profilecache.OrgResolver, opts ...Option) (*Container, error) {
	c := &Container{
		store:          store,
		monitor:        monitor,
		kv:             kv,
		logger:         zerolog.Nop(),
		resolverConfig: profilecache.DefaultResolverCacheConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	memoized, err := profilecache.NewMemoizedResolver(resolver, c.resolverConfig)
	if err != nil {
		return nil, err
	}

	c.profileCache = profilecache.New(kv, memoized, profilecache.WithLogger(c.logger))
	c.orgCache = profilecache.NewOrgCache(kv, orgResolver, profilecache.WithOrgLogger(c.logger))
	return c, nil
}

// Store returns the singleton document store.
func (c *Container) Store() docstore.Store {
	return c.store
}

// Monitor returns the singleton connectivity monitor.
func (c *Container) Monitor() connectivity.Monitor {
	return c.monitor
}

// KVStore returns the singleton durable key-value store.
func (c *Container) KVStore() kvstore.Store {
	return c.kv
}

// ProfileCache returns the singleton durable profile cache, its resolver
// already wrapped with memoization.
func (c *Container) ProfileCache() *profilecache.Cache {
	return c.profileCache
}

// OrgCache returns the singleton organization-data cache.
func (c *Container) OrgCache() *profilecache.OrgCache {
	return c.orgCache
}

// ResolverCacheConfig returns a copy of the memoization settings used by
// this container.
func (c *Container) ResolverCacheConfig() profilecache.ResolverCacheConfig {
	return c.resolverConfig
}

// NewSession builds a session manager for one signed-in user. The caller
// owns its lifecycle: call Start to begin and Close when done.
func (c *Container) NewSession(userID string, contact session.Contact) *session.Manager {
	return session.NewManager(c.store, c.monitor, c.kv, userID, contact, session.WithLogger(c.logger))
}

// NewEntityCache creates a live single-document cache over the
// container's store and monitor.
//
// Example: NewEntityCache[Student](container)
func NewEntityCache[T any](c *Container) *livecache.EntityCache[T] {
	return livecache.NewEntityCache[T](c.store, c.monitor, livecache.WithLogger(c.logger))
}

// NewCollectionCache creates a live query-result cache over the
// container's store and monitor.
func NewCollectionCache[T any](c *Container) *livecache.CollectionCache[T] {
	return livecache.NewCollectionCache[T](c.store, c.monitor, livecache.WithLogger(c.logger))
}

// NewCompositeCache creates a merged two-query cache over the
// container's store and monitor.
func NewCompositeCache[T1, T2 any](c *Container) *livecache.CompositeCache[T1, T2] {
	return livecache.NewCompositeCache[T1, T2](c.store, c.monitor, livecache.WithLogger(c.logger))
}
