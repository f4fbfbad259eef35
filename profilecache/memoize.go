package profilecache

import (
	"context"
	"time"

	"github.com/goliatone/go-livequery-cache/internal/resolvecache"
)

const resolverKeyPrefix = "profiles::"

// ResolverCacheConfig exposes the memoization settings for consumers of
// this package.
type ResolverCacheConfig struct {
	Capacity             int
	NumShards            int
	TTL                  time.Duration
	EvictionPercentage   int
	EarlyRefresh         *ResolverEarlyRefreshConfig
	MissingRecordStorage bool
	EvictionInterval     time.Duration
}

// ResolverEarlyRefreshConfig mirrors the underlying early refresh options.
type ResolverEarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultResolverCacheConfig returns a ResolverCacheConfig populated with
// sensible defaults.
func DefaultResolverCacheConfig() ResolverCacheConfig {
	return convertFromInternal(resolvecache.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c ResolverCacheConfig) Validate() error {
	return c.toInternal().Validate()
}

func (c ResolverCacheConfig) toInternal() resolvecache.Config {
	var early *resolvecache.EarlyRefreshConfig
	if c.EarlyRefresh != nil {
		early = &resolvecache.EarlyRefreshConfig{
			MinAsyncRefreshTime: c.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: c.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     c.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      c.EarlyRefresh.RetryBaseDelay,
		}
	}

	return resolvecache.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
	}
}

func convertFromInternal(cfg resolvecache.Config) ResolverCacheConfig {
	var early *ResolverEarlyRefreshConfig
	if cfg.EarlyRefresh != nil {
		early = &ResolverEarlyRefreshConfig{
			MinAsyncRefreshTime: cfg.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: cfg.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     cfg.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      cfg.EarlyRefresh.RetryBaseDelay,
		}
	}

	return ResolverCacheConfig{
		Capacity:             cfg.Capacity,
		NumShards:            cfg.NumShards,
		TTL:                  cfg.TTL,
		EvictionPercentage:   cfg.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: cfg.MissingRecordStorage,
		EvictionInterval:     cfg.EvictionInterval,
	}
}

// MemoizedResolver wraps a Resolver with an in-process read-through
// cache. Concurrent resolves for the same user collapse into a single
// upstream call; results are served from memory until the TTL elapses.
//
// This layer is about burst absorption, not durability: the durable
// per-user storage in Cache is unaffected by it.
type MemoizedResolver struct {
	base    Resolver
	service *resolvecache.Service[[]Profile]
}

// NewMemoizedResolver wraps base with memoization configured by cfg.
func NewMemoizedResolver(base Resolver, cfg ResolverCacheConfig) (*MemoizedResolver, error) {
	service, err := resolvecache.New[[]Profile](cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return &MemoizedResolver{base: base, service: service}, nil
}

// ResolveProfiles implements Resolver.
func (m *MemoizedResolver) ResolveProfiles(ctx context.Context, userID string) ([]Profile, error) {
	return m.service.GetOrFetch(ctx, resolverKeyPrefix+userID, func(ctx context.Context) ([]Profile, error) {
		return m.base.ResolveProfiles(ctx, userID)
	})
}

// Invalidate drops the memoized entry so the next resolve goes upstream.
func (m *MemoizedResolver) Invalidate(userID string) {
	m.service.Delete(resolverKeyPrefix + userID)
}
