// Package docstore defines the document database contract the cache layer
// sits in front of: document references, query descriptors, snapshots
// tagged with cache-origin metadata, and the live subscription API.
//
// # Overview
//
// The package exports three pieces:
//
//   - Store: the collaborator interface, one-shot CRUD plus live
//     subscriptions on single documents and on queries
//   - Query: an explicit, comparable query descriptor (collection,
//     filters, ordering, limit)
//   - Snapshot / QuerySnapshot: delivered subscription states, each
//     carrying a FromCache flag identifying locally-served data
//
// # Query descriptors
//
// Query is a value, not a handle. Building the same query twice yields
// two interchangeable descriptors:
//
//	q1 := docstore.NewQuery("students").Where("email", docstore.OpEqual, addr)
//	q2 := docstore.NewQuery("students").Where("email", docstore.OpEqual, addr)
//	q1.Equal(q2) // true
//
// This property is what lets the cache layer decide unambiguously when a
// consumer switched queries and a re-subscription is required. Key and
// Fingerprint expose the same identity as a string and a 64-bit hash.
//
// # Snapshots
//
// Every notification carries FromCache. Combined with live connectivity
// state this is what the cache layer reconciles into a single offline
// signal: data served from a local cache while the device is offline is
// stale-but-usable, which calls for different treatment than an outright
// subscription failure.
//
// # Errors
//
// Store implementations report failures through the package sentinels
// (ErrPermissionDenied, ErrUnavailable, ErrNotFound) so that callers can
// classify with errors.Is. Permission failures are terminal; the cache
// layer never retries them automatically.
//
// # Implementations
//
// The memstore subpackage provides a complete in-process implementation
// used by tests and examples. Production deployments adapt their backend
// client to the Store interface.
package docstore
