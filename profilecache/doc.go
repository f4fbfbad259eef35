// Package profilecache persists a user's linked profiles and active
// selection across restarts, and layers TTL-gated organization data on
// the same durable store.
//
// # Profile cache
//
// Cache keys its storage per user id, so one device switching between
// linked accounts never mixes data across users. Read serves the locally
// stored list immediately when present and refreshes against the
// Resolver in the background; the refreshed list is persisted before it
// becomes visible. A refresh that fails over a local hit degrades
// gracefully: the cached list stays up and no error is surfaced.
//
// Overlapping refreshes follow last-issued-wins. A refresh that finishes
// after a newer one was issued is discarded with ErrSuperseded; it never
// persists or notifies.
//
// If the stored active profile id no longer matches any server-side
// profile, the first server profile becomes active and that repair is
// persisted.
//
// # Organization cache
//
// OrgCache is a read-through cache with a freshness window (24h by
// default): a stored record younger than the window is served without a
// resolve, anything older or unreadable triggers one, and fresh results
// are persisted before they are returned.
//
// # Resolver memoization
//
// NewMemoizedResolver wraps any Resolver with a short-TTL in-process
// cache that collapses concurrent resolves for the same user into a
// single upstream call. It composes with Cache: durability and freshness
// policy stay in Cache, burst absorption lives in the wrapper.
package profilecache
