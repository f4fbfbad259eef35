package livecache

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-livequery-cache/connectivity"
	"github.com/goliatone/go-livequery-cache/docstore"
)

// EntityCache maintains a live, reconciled view of a single document.
//
// Exactly one store subscription is active at a time; changing the
// watched reference or calling Retry supersedes the previous
// subscription before (or atomically with) establishing the next one,
// and snapshots from superseded subscriptions are discarded via an
// internal epoch counter. Held data survives reference changes, retries
// and errors until a newer snapshot replaces it, so consumers can keep
// rendering the last known state while a fresh subscription connects.
type EntityCache[T any] struct {
	store   docstore.Store
	monitor connectivity.Monitor
	logger  zerolog.Logger
	decoder Decoder[T]

	mu            sync.Mutex
	epoch         uint64
	ref           *docstore.DocRef
	cancel        docstore.CancelFunc
	connCancel    connectivity.CancelFunc
	hasSnapshot   bool
	lastFromCache bool
	result        EntityResult[T]
	observers     map[uint64]func(EntityResult[T])
	nextObserver  uint64
	closed        bool
}

// NewEntityCache returns a cache in the neutral non-watching state. Call
// Watch to start a subscription.
func NewEntityCache[T any](store docstore.Store, monitor connectivity.Monitor, opts ...Option) *EntityCache[T] {
	cfg := newConfig(opts)
	c := &EntityCache[T]{
		store:     store,
		monitor:   monitor,
		logger:    cfg.logger,
		decoder:   DecodeJSON[T],
		observers: make(map[uint64]func(EntityResult[T])),
	}
	c.connCancel = monitor.Subscribe(c.onConnectivity)
	return c
}

// SetDecoder replaces the default JSON decoder. Must be called before
// Watch.
func (c *EntityCache[T]) SetDecoder(decoder Decoder[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoder = decoder
}

// Watch points the cache at ref, tearing down any previous subscription
// first. Watching the same reference again is a no-op. A nil ref moves
// the cache to the terminal neutral state {Loading: false, Exists: false}
// without performing any subscription work.
func (c *EntityCache[T]) Watch(ref *docstore.DocRef) {
	c.mu.Lock()
	if c.closed || sameRef(c.ref, ref) {
		c.mu.Unlock()
		return
	}

	c.epoch++
	epoch := c.epoch
	old := c.cancel
	c.cancel = nil
	c.hasSnapshot = false

	if ref == nil {
		c.ref = nil
		c.result = EntityResult[T]{}
	} else {
		r := *ref
		c.ref = &r
		// New lifetime: loading until the first snapshot, previous data
		// retained for stale-while-revalidate rendering.
		c.result.Loading = true
		c.result.LoadingError = false
		c.result.Offline = false
	}
	result, observers := c.snapshotLocked()
	c.mu.Unlock()

	if old != nil {
		old()
	}
	notifyEntity(observers, result)

	if ref != nil {
		c.subscribe(epoch, *ref)
	}
}

// Retry starts a new subscription lifetime, clearing LoadingError but
// keeping held data until a new snapshot or error supersedes it. It is a
// no-op when nothing is being watched.
func (c *EntityCache[T]) Retry() {
	c.mu.Lock()
	if c.closed || c.ref == nil {
		c.mu.Unlock()
		return
	}

	c.epoch++
	epoch := c.epoch
	ref := *c.ref
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
	notifyEntity(observers, result)

	c.subscribe(epoch, ref)
}

// Result returns the current reconciled view.
func (c *EntityCache[T]) Result() EntityResult[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Subscribe registers fn to be called on every result change. fn may be
// invoked from arbitrary goroutines; use Result for the current state.
func (c *EntityCache[T]) Subscribe(fn func(EntityResult[T])) connectivity.CancelFunc {
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

// Close tears down the subscription and detaches all observers. The
// cache cannot be reused afterwards.
func (c *EntityCache[T]) Close() {
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

func (c *EntityCache[T]) subscribe(epoch uint64, ref docstore.DocRef) {
	cancel := c.store.SubscribeDoc(ref,
		func(snap docstore.Snapshot) { c.onSnapshot(epoch, snap) },
		func(err error) { c.onError(epoch, err) },
	)

	c.mu.Lock()
	if c.epoch == epoch && !c.closed {
		c.cancel = cancel
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	// Superseded while connecting.
	cancel()
}

func (c *EntityCache[T]) onSnapshot(epoch uint64, snap docstore.Snapshot) {
	connected := c.monitor.Connected()

	c.mu.Lock()
	if epoch != c.epoch || c.closed {
		c.mu.Unlock()
		c.logger.Debug().Str("collection", snap.Ref.Collection).Str("id", snap.Ref.ID).
			Msg("discarding snapshot from superseded subscription")
		return
	}

	c.hasSnapshot = true
	c.lastFromCache = snap.FromCache
	c.result.Loading = false
	c.result.LoadingError = false
	c.result.Offline = reconcileOffline(snap.FromCache, connected)

	if snap.Exists {
		data, err := c.decoder(snap)
		if err != nil {
			c.result.LoadingError = true
			c.logger.Debug().Str("collection", snap.Ref.Collection).Str("id", snap.Ref.ID).
				Err(err).Msg("entity decode failed")
		} else {
			c.result.Exists = true
			c.result.Data = &data
		}
	} else {
		c.result.Exists = false
		c.result.Data = nil
	}

	result, observers := c.snapshotLocked()
	c.mu.Unlock()

	notifyEntity(observers, result)
}

func (c *EntityCache[T]) onError(epoch uint64, err error) {
	c.mu.Lock()
	if epoch != c.epoch || c.closed {
		c.mu.Unlock()
		return
	}

	c.result.Loading = false
	c.result.LoadingError = true
	result, observers := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug().Err(err).Msg("entity subscription failed")
	notifyEntity(observers, result)
}

// onConnectivity recomputes the offline flag against the held snapshot's
// cache-origin. Connectivity is a live input, not a one-time read: going
// back online while showing cached data clears the offline signal even
// though no new snapshot has arrived.
func (c *EntityCache[T]) onConnectivity(connected bool) {
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

	notifyEntity(observers, result)
}

func (c *EntityCache[T]) snapshotLocked() (EntityResult[T], []func(EntityResult[T])) {
	observers := make([]func(EntityResult[T]), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	return c.result, observers
}

func notifyEntity[T any](observers []func(EntityResult[T]), result EntityResult[T]) {
	for _, fn := range observers {
		fn(result)
	}
}

func sameRef(a, b *docstore.DocRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
