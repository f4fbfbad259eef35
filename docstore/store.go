package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Sentinel errors reported by Store implementations. Callers classify
// failures with errors.Is rather than matching on message text.
var (
	// ErrPermissionDenied signals that the backend rejected the operation
	// outright (auth/rules failure). Subscriptions failing with this error
	// are never retried automatically.
	ErrPermissionDenied = errors.New("docstore: permission denied")

	// ErrUnavailable signals a transport-level failure reaching the backend.
	ErrUnavailable = errors.New("docstore: backend unavailable")

	// ErrNotFound signals that a one-shot read addressed a document that
	// does not exist.
	ErrNotFound = errors.New("docstore: document not found")
)

// DocRef addresses a single document. Identity is the (Collection, ID)
// pair; the zero value is not a valid reference.
type DocRef struct {
	Collection string
	ID         string
}

// Snapshot is one delivered state of a document. Data holds the raw JSON
// payload (nil when the document does not exist). FromCache reports
// whether the payload originated from a local cache rather than a
// confirmed server round-trip.
type Snapshot struct {
	Ref       DocRef
	Exists    bool
	Data      json.RawMessage
	FromCache bool
}

// QuerySnapshot is one delivered state of a query subscription. Docs are
// ordered exactly as the query's ordering dictates; consumers must not
// re-sort them.
type QuerySnapshot struct {
	Docs      []Snapshot
	FromCache bool
}

// CancelFunc detaches a subscription. Calling it more than once is a
// no-op. A notification already in flight when CancelFunc returns may
// still land; consumers guard against such phantom deliveries with a
// liveness check (the cache layer uses an epoch counter).
type CancelFunc func()

// Store is the document database collaborator: collections of JSON
// documents addressable by id, queryable with filters/ordering, and
// subscribable for live change notification.
//
// Subscription callbacks may be invoked from arbitrary goroutines, but
// notifications for a single subscription are delivered serially in
// receipt order.
type Store interface {
	// SubscribeDoc registers a live subscription on a single document.
	// The current state is delivered as the first snapshot.
	SubscribeDoc(ref DocRef, onNext func(Snapshot), onError func(error)) CancelFunc

	// SubscribeQuery registers a live subscription on a query. The current
	// result set is delivered as the first snapshot.
	SubscribeQuery(q Query, onNext func(QuerySnapshot), onError func(error)) CancelFunc

	// Get performs a one-shot read of a document.
	Get(ctx context.Context, ref DocRef) (Snapshot, error)

	// Set creates or replaces a document with the JSON encoding of value.
	Set(ctx context.Context, ref DocRef, value any) error

	// Add creates a document with a generated id and returns its reference.
	Add(ctx context.Context, collection string, value any) (DocRef, error)

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, ref DocRef) error
}
