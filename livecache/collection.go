package livecache

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-livequery-cache/connectivity"
	"github.com/goliatone/go-livequery-cache/docstore"
)

// CollectionCache maintains a live, reconciled view of an ordered query
// result set.
//
// Offline, error and retry semantics match EntityCache, with one
// difference: switching to a different query descriptor synchronously
// resets the view to {Loading: true, Docs: []} before the new
// subscription's first snapshot, so a query switch never shows the
// previous query's results. Retry, by contrast, keeps held docs.
type CollectionCache[T any] struct {
	store   docstore.Store
	monitor connectivity.Monitor
	logger  zerolog.Logger
	decoder Decoder[T]

	mu            sync.Mutex
	epoch         uint64
	query         *docstore.Query
	cancel        docstore.CancelFunc
	connCancel    connectivity.CancelFunc
	hasSnapshot   bool
	lastFromCache bool
	result        CollectionResult[T]
	observers     map[uint64]func(CollectionResult[T])
	nextObserver  uint64
	closed        bool
}

// NewCollectionCache returns a cache in the neutral non-watching state.
func NewCollectionCache[T any](store docstore.Store, monitor connectivity.Monitor, opts ...Option) *CollectionCache[T] {
	cfg := newConfig(opts)
	c := &CollectionCache[T]{
		store:     store,
		monitor:   monitor,
		logger:    cfg.logger,
		decoder:   DecodeJSON[T],
		observers: make(map[uint64]func(CollectionResult[T])),
		result:    CollectionResult[T]{Docs: []T{}},
	}
	c.connCancel = monitor.Subscribe(c.onConnectivity)
	return c
}

// SetDecoder replaces the default JSON decoder. Must be called before
// Watch.
func (c *CollectionCache[T]) SetDecoder(decoder Decoder[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoder = decoder
}

// Watch points the cache at q, tearing down any previous subscription
// first. Descriptors are compared by value: re-watching an equivalent
// query is a no-op, switching to a different one resets the view
// synchronously. A nil query moves the cache to the terminal neutral
// state without performing any subscription work.
func (c *CollectionCache[T]) Watch(q *docstore.Query) {
	c.mu.Lock()
	if c.closed || sameQuery(c.query, q) {
		c.mu.Unlock()
		return
	}

	c.epoch++
	epoch := c.epoch
	old := c.cancel
	c.cancel = nil
	c.hasSnapshot = false

	if q == nil {
		c.query = nil
		c.result = CollectionResult[T]{Docs: []T{}}
	} else {
		cp := *q
		c.query = &cp
		c.result = CollectionResult[T]{Loading: true, Docs: []T{}}
	}
	result, observers := c.snapshotLocked()
	c.mu.Unlock()

	if old != nil {
		old()
	}
	notifyCollection(observers, result)

	if q != nil {
		c.subscribe(epoch, *q)
	}
}

// Retry starts a new subscription lifetime for the current query,
// clearing LoadingError but keeping held docs until a new snapshot or
// error supersedes them.
func (c *CollectionCache[T]) Retry() {
	c.mu.Lock()
	if c.closed || c.query == nil {
		c.mu.Unlock()
		return
	}

	c.epoch++
	epoch := c.epoch
	q := *c.query
	old := c.cancel
	c.cancel = nil
	c.hasSnapshot = false
	c.result.Loading = true
	c.result.LoadingError = false
	result, observers := c.snapshotLocked()
	c.mu.Unlock()

	if old != nil {
		old()
	}
	notifyCollection(observers, result)

	c.subscribe(epoch, q)
}

// Result returns the current reconciled view. Docs is never nil.
func (c *CollectionCache[T]) Result() CollectionResult[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Subscribe registers fn to be called on every result change.
func (c *CollectionCache[T]) Subscribe(fn func(CollectionResult[T])) connectivity.CancelFunc {
	c.mu.Lock()
	id := c.nextObserver
	c.nextObserver++
	if c.observers != nil {
		c.observers[id] = fn
	}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Close tears down the subscription and detaches all observers.
func (c *CollectionCache[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	old := c.cancel
	c.cancel = nil
	c.observers = nil
	connCancel := c.connCancel
	c.mu.Unlock()

	if old != nil {
		old()
	}
	if connCancel != nil {
		connCancel()
	}
}

func (c *CollectionCache[T]) subscribe(epoch uint64, q docstore.Query) {
	cancel := c.store.SubscribeQuery(q,
		func(snap docstore.QuerySnapshot) { c.onSnapshot(epoch, snap) },
		func(err error) { c.onError(epoch, err) },
	)

	c.mu.Lock()
	if c.epoch == epoch && !c.closed {
		c.cancel = cancel
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	cancel()
}

func (c *CollectionCache[T]) onSnapshot(epoch uint64, snap docstore.QuerySnapshot) {
	connected := c.monitor.Connected()

	// Decode before taking the lock; a failed document is skipped, never
	// fatal to the whole snapshot.
	docs := make([]T, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		value, err := c.decoder(doc)
		if err != nil {
			c.logger.Debug().Str("collection", doc.Ref.Collection).Str("id", doc.Ref.ID).
				Err(err).Msg("skipping undecodable document")
			continue
		}
		docs = append(docs, value)
	}

	c.mu.Lock()
	if epoch != c.epoch || c.closed {
		c.mu.Unlock()
		c.logger.Debug().Msg("discarding query snapshot from superseded subscription")
		return
	}

	c.hasSnapshot = true
	c.lastFromCache = snap.FromCache
	c.result.Loading = false
	c.result.LoadingError = false
	c.result.Offline = reconcileOffline(snap.FromCache, connected)
	c.result.Docs = docs

	result, observers := c.snapshotLocked()
	c.mu.Unlock()

	notifyCollection(observers, result)
}

func (c *CollectionCache[T]) onError(epoch uint64, err error) {
	c.mu.Lock()
	if epoch != c.epoch || c.closed {
		c.mu.Unlock()
		return
	}

	c.result.Loading = false
	c.result.LoadingError = true
	result, observers := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug().Err(err).Msg("query subscription failed")
	notifyCollection(observers, result)
}

func (c *CollectionCache[T]) onConnectivity(connected bool) {
	c.mu.Lock()
	if c.closed || !c.hasSnapshot {
		c.mu.Unlock()
		return
	}

	offline := reconcileOffline(c.lastFromCache, connected)
	if offline == c.result.Offline {
		c.mu.Unlock()
		return
	}
	c.result.Offline = offline
	result, observers := c.snapshotLocked()
	c.mu.Unlock()

	notifyCollection(observers, result)
}

func (c *CollectionCache[T]) snapshotLocked() (CollectionResult[T], []func(CollectionResult[T])) {
	observers := make([]func(CollectionResult[T]), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	return c.result, observers
}

func notifyCollection[T any](observers []func(CollectionResult[T]), result CollectionResult[T]) {
	for _, fn := range observers {
		fn(result)
	}
}

func sameQuery(a, b *docstore.Query) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
