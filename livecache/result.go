package livecache

// EntityResult is the reconciled view of a single-document subscription.
//
// Loading is true from the start of a subscription lifetime until the
// first snapshot or error arrives, and false from then on; Retry starts
// a new lifetime. Offline means the most recent snapshot was served from
// a local cache while connectivity was down; the data shown may be stale
// but usable. LoadingError means the subscription failed outright, a
// separate signal from Offline so callers can present the two
// differently.
type EntityResult[T any] struct {
	Loading      bool
	Offline      bool
	LoadingError bool
	Exists       bool
	Data         *T
}

// CollectionResult is the reconciled view of a query subscription. Docs
// is never nil and preserves the backing store's query order exactly.
type CollectionResult[T any] struct {
	Loading      bool
	Offline      bool
	LoadingError bool
	Docs         []T
}

// CompositeResult merges two concurrently running query subscriptions.
// Docs1 and Docs2 stay in their own slots; callers interpret each by its
// own query's semantics. Each flag is the OR of the corresponding flag
// on the two inputs.
type CompositeResult[T1, T2 any] struct {
	Loading      bool
	Offline      bool
	LoadingError bool
	Docs1        []T1
	Docs2        []T2
}
