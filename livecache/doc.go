// Package livecache implements a read-through live-query cache with
// offline reconciliation: subscription wrappers that turn a document
// store's raw snapshot callbacks into a small, stable result contract
// for view layers.
//
// # Overview
//
// Three cache types cover the subscription shapes a consumer needs:
//
//   - EntityCache: a live view of one document
//   - CollectionCache: a live view of an ordered query result set
//   - CompositeCache: two collection caches run concurrently with
//     merged status flags
//
// Each produces a result with four booleans and the payload:
//
//	{Loading, Offline, LoadingError, Exists/Data | Docs}
//
// # Offline reconciliation
//
// Document stores with a local cache deliver snapshots tagged with their
// origin. The cache folds that tag together with the connectivity
// monitor's live state:
//
//	Offline = snapshot.FromCache && !monitor.Connected()
//
// recomputed on every snapshot and on every connectivity change. This
// keeps "showing stale cached data because the device is offline"
// distinct from "the subscription failed": the former renders the data
// with an offline banner, the latter renders an error state with a retry
// action.
//
// # Lifetimes
//
// Loading is true from the start of a subscription lifetime until the
// first snapshot or error. Errors are terminal for the lifetime: the
// cache never retries automatically, recovery is an explicit Retry call
// that starts a new lifetime while keeping previously held data visible.
// Superseded subscriptions (reference change, retry, close) can no
// longer affect the result; an epoch counter discards their late
// snapshots.
//
// # Usage
//
//	cache := livecache.NewCollectionCache[Lesson](store, monitor)
//	defer cache.Close()
//
//	q := docstore.NewQuery("lessons").
//		Where("class", docstore.OpEqual, classID).
//		OrderBy("createdAt")
//	cache.Watch(&q)
//
//	cancel := cache.Subscribe(func(r livecache.CollectionResult[Lesson]) {
//		render(r)
//	})
//	defer cancel()
//
// Values are decoded from JSON with the document id merged into the
// entity's `json:"id"` field; SetDecoder overrides this per cache.
package livecache
