package livecache

import (
	"sync"

	"github.com/goliatone/go-livequery-cache/connectivity"
	"github.com/goliatone/go-livequery-cache/docstore"
)

// CompositeCache runs two CollectionCaches concurrently and presents a
// single merged status, e.g. the student-scoped and teacher-scoped
// account queries for one signed-in user. Loading, Offline and
// LoadingError are each the OR of the corresponding flag on the two
// inputs: the composite is loading while either side still is, offline
// when either side shows cached-while-disconnected data, and failed when
// either subscription failed.
type CompositeCache[T1, T2 any] struct {
	first  *CollectionCache[T1]
	second *CollectionCache[T2]

	mu           sync.Mutex
	observers    map[uint64]func(CompositeResult[T1, T2])
	nextObserver uint64
	suppressed   bool
	closed       bool
}

// NewCompositeCache returns a composite over two internally managed
// collection caches sharing the given store and monitor.
func NewCompositeCache[T1, T2 any](store docstore.Store, monitor connectivity.Monitor, opts ...Option) *CompositeCache[T1, T2] {
	c := &CompositeCache[T1, T2]{
		first:     NewCollectionCache[T1](store, monitor, opts...),
		second:    NewCollectionCache[T2](store, monitor, opts...),
		observers: make(map[uint64]func(CompositeResult[T1, T2])),
	}
	c.first.Subscribe(func(CollectionResult[T1]) { c.notify() })
	c.second.Subscribe(func(CollectionResult[T2]) { c.notify() })
	return c
}

// SetDecoders replaces the default JSON decoders. Must be called before
// Watch.
func (c *CompositeCache[T1, T2]) SetDecoders(first Decoder[T1], second Decoder[T2]) {
	c.first.SetDecoder(first)
	c.second.SetDecoder(second)
}

// Watch points the two underlying caches at their queries. Either query
// may be nil, leaving that slot in the neutral non-loading state.
//
// Observer notifications are held back until both sides have been
// pointed at their query. A store that delivers its initial snapshot
// synchronously would otherwise expose a half-watched merge in which one
// side has resolved while the other has not started loading yet.
func (c *CompositeCache[T1, T2]) Watch(q1, q2 *docstore.Query) {
	c.holdNotifications(func() {
		c.first.Watch(q1)
		c.second.Watch(q2)
	})
}

// Result merges the two current views.
func (c *CompositeCache[T1, T2]) Result() CompositeResult[T1, T2] {
	r1 := c.first.Result()
	r2 := c.second.Result()
	return CompositeResult[T1, T2]{
		Loading:      r1.Loading || r2.Loading,
		Offline:      r1.Offline || r2.Offline,
		LoadingError: r1.LoadingError || r2.LoadingError,
		Docs1:        r1.Docs,
		Docs2:        r2.Docs,
	}
}

// Subscribe registers fn to be called whenever either side changes.
func (c *CompositeCache[T1, T2]) Subscribe(fn func(CompositeResult[T1, T2])) connectivity.CancelFunc {
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

// Retry starts new lifetimes on both underlying subscriptions.
func (c *CompositeCache[T1, T2]) Retry() {
	c.holdNotifications(func() {
		c.first.Retry()
		c.second.Retry()
	})
}

// Close tears down both underlying caches and detaches all observers.
func (c *CompositeCache[T1, T2]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.observers = nil
	c.mu.Unlock()

	c.first.Close()
	c.second.Close()
}

// holdNotifications runs fn with child-triggered notifications muted,
// then delivers one notification of the settled merge.
func (c *CompositeCache[T1, T2]) holdNotifications(fn func()) {
	c.mu.Lock()
	c.suppressed = true
	c.mu.Unlock()

	fn()

	c.mu.Lock()
	c.suppressed = false
	c.mu.Unlock()
	c.notify()
}

func (c *CompositeCache[T1, T2]) notify() {
	c.mu.Lock()
	if c.suppressed {
		c.mu.Unlock()
		return
	}
	observers := make([]func(CompositeResult[T1, T2]), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	result := c.Result()
	for _, fn := range observers {
		fn(result)
	}
}
