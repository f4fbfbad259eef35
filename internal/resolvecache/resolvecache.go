// Package resolvecache wraps sturdyc into a small typed read-through
// memoization service. It backs in-process caching of remote resolver
// calls so that repeated lookups for the same user or organization
// within the TTL window collapse into one backend round-trip, with
// sturdyc's stampede protection deduplicating concurrent fetches.
package resolvecache

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the sturdyc initialization parameters.
type Config struct {
	// Capacity is the maximum number of cached entries. Must be positive.
	Capacity int

	// NumShards sets the shard count for concurrent access. Must be positive.
	NumShards int

	// TTL is how long a memoized result stays served without re-fetching.
	TTL time.Duration

	// EvictionPercentage is the share of entries evicted when the cache
	// is full, between 1 and 100.
	EvictionPercentage int

	// EarlyRefresh enables background refresh of hot entries before they
	// expire. Nil disables it.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage remembers negative results so absent keys do
	// not hammer the resolver.
	MissingRecordStorage bool

	// EvictionInterval overrides how often expired entries are collected.
	// Zero uses the sturdyc default.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig mirrors the sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns settings sized for resolver memoization: a small
// cache with a short TTL. Durable freshness policy lives elsewhere; this
// layer only absorbs bursts.
func DefaultConfig() Config {
	return Config{
		Capacity:             1000,
		NumShards:            64,
		TTL:                  5 * time.Minute,
		EvictionPercentage:   10,
		MissingRecordStorage: true,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return err
	}
	if early := c.EarlyRefresh; early != nil {
		return validation.ValidateStruct(early,
			validation.Field(&early.MinAsyncRefreshTime, validation.Min(time.Duration(0))),
			validation.Field(&early.MaxAsyncRefreshTime, validation.Min(time.Duration(0))),
			validation.Field(&early.SyncRefreshTime, validation.Min(time.Duration(0))),
			validation.Field(&early.RetryBaseDelay, validation.Min(time.Duration(0))),
		)
	}
	return nil
}

func (c Config) options() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}
	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Service memoizes fetches of T behind string keys.
type Service[T any] struct {
	client *sturdyc.Client[T]
}

// New validates cfg and builds the underlying sturdyc client.
func New[T any](cfg Config) (*Service[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[T](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.options()...,
	)
	return &Service[T]{client: client}, nil
}

// GetOrFetch returns the memoized value for key, fetching and storing it
// on a miss. Concurrent calls for the same key share one fetch.
func (s *Service[T]) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	return s.client.GetOrFetch(ctx, key, fetch)
}

// Delete drops key so the next GetOrFetch re-fetches.
func (s *Service[T]) Delete(key string) {
	s.client.Delete(key)
}
