// Package memstore is a complete in-process docstore.Store: collections
// of JSON documents with filter/order/limit query evaluation and live
// fan-out to document and query subscribers on every mutation.
//
// It exists for tests, examples and embedded use. Delivery is
// synchronous: when a mutating call returns, every affected subscriber
// has observed the new state, which keeps tests deterministic. The
// trade-off is that subscription callbacks must not synchronously mutate
// the store, or they would observe their own delivery lock.
//
// SetOffline flips the store into a mode where every delivered snapshot
// is tagged FromCache, mimicking a backend client serving reads from its
// local cache while disconnected.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-livequery-cache/docstore"
)

// AccessRule decides whether a subscription on a collection is allowed.
// Returning a non-nil error rejects the subscription with that error.
type AccessRule func(collection string) error

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithAccessRule installs a subscription access rule, typically used in
// tests to simulate permission failures.
func WithAccessRule(rule AccessRule) Option {
	return func(s *Store) { s.rule = rule }
}

// Store is an in-memory document store with live subscriptions.
type Store struct {
	logger zerolog.Logger
	rule   AccessRule

	mu          sync.Mutex
	collections map[string]map[string]json.RawMessage
	offline     bool

	docSubs   *xsync.MapOf[string, *docSub]
	querySubs *xsync.MapOf[string, *querySub]
}

var _ docstore.Store = (*Store)(nil)

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		logger:      zerolog.Nop(),
		collections: make(map[string]map[string]json.RawMessage),
		docSubs:     xsync.NewMapOf[string, *docSub](),
		querySubs:   xsync.NewMapOf[string, *querySub](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type docSub struct {
	ref     docstore.DocRef
	onNext  func(docstore.Snapshot)
	onError func(error)

	deliverMu sync.Mutex
	cancelled bool
}

func (d *docSub) deliver(snap docstore.Snapshot) {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()
	if d.cancelled {
		return
	}
	d.onNext(snap)
}

type querySub struct {
	query   docstore.Query
	key     string
	onNext  func(docstore.QuerySnapshot)
	onError func(error)

	deliverMu sync.Mutex
	cancelled bool
}

func (q *querySub) deliver(snap docstore.QuerySnapshot) {
	q.deliverMu.Lock()
	defer q.deliverMu.Unlock()
	if q.cancelled {
		return
	}
	q.onNext(snap)
}

// SubscribeDoc implements docstore.Store. The document's current state is
// delivered synchronously before SubscribeDoc returns.
func (s *Store) SubscribeDoc(ref docstore.DocRef, onNext func(docstore.Snapshot), onError func(error)) docstore.CancelFunc {
	if err := s.checkAccess(ref.Collection); err != nil {
		onError(err)
		return func() {}
	}

	sub := &docSub{ref: ref, onNext: onNext, onError: onError}
	id := uuid.NewString()

	// Holding deliverMu across registration guarantees the initial
	// snapshot is delivered before any concurrent mutation's snapshot.
	sub.deliverMu.Lock()
	s.mu.Lock()
	s.docSubs.Store(id, sub)
	initial := s.docSnapshotLocked(ref)
	s.mu.Unlock()
	sub.onNext(initial)
	sub.deliverMu.Unlock()

	s.logger.Debug().Str("collection", ref.Collection).Str("id", ref.ID).Msg("doc subscription added")

	return func() {
		s.docSubs.Delete(id)
		sub.deliverMu.Lock()
		sub.cancelled = true
		sub.deliverMu.Unlock()
	}
}

// SubscribeQuery implements docstore.Store. The query's current result
// set is delivered synchronously before SubscribeQuery returns.
func (s *Store) SubscribeQuery(q docstore.Query, onNext func(docstore.QuerySnapshot), onError func(error)) docstore.CancelFunc {
	if err := q.Validate(); err != nil {
		onError(fmt.Errorf("%w: %v", docstore.ErrPermissionDenied, err))
		return func() {}
	}
	if err := s.checkAccess(q.Collection); err != nil {
		onError(err)
		return func() {}
	}

	sub := &querySub{query: q, key: q.Key(), onNext: onNext, onError: onError}
	id := uuid.NewString()

	sub.deliverMu.Lock()
	s.mu.Lock()
	s.querySubs.Store(id, sub)
	initial := s.querySnapshotLocked(q)
	s.mu.Unlock()
	sub.onNext(initial)
	sub.deliverMu.Unlock()

	s.logger.Debug().Str("query", sub.key).Msg("query subscription added")

	return func() {
		s.querySubs.Delete(id)
		sub.deliverMu.Lock()
		sub.cancelled = true
		sub.deliverMu.Unlock()
	}
}

func (s *Store) checkAccess(collection string) error {
	if s.rule == nil {
		return nil
	}
	if err := s.rule(collection); err != nil {
		s.logger.Debug().Str("collection", collection).Err(err).Msg("subscription rejected")
		return err
	}
	return nil
}

// Get implements docstore.Store.
func (s *Store) Get(_ context.Context, ref docstore.DocRef) (docstore.Snapshot, error) {
	s.mu.Lock()
	snap := s.docSnapshotLocked(ref)
	s.mu.Unlock()

	if !snap.Exists {
		return snap, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, ref.Collection, ref.ID)
	}
	return snap, nil
}

// Set implements docstore.Store.
func (s *Store) Set(_ context.Context, ref docstore.DocRef, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memstore: encode %s/%s: %w", ref.Collection, ref.ID, err)
	}
	s.apply(ref, data)
	return nil
}

// Add implements docstore.Store.
func (s *Store) Add(_ context.Context, collection string, value any) (docstore.DocRef, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return docstore.DocRef{}, fmt.Errorf("memstore: encode %s: %w", collection, err)
	}
	ref := docstore.DocRef{Collection: collection, ID: uuid.NewString()}
	s.apply(ref, data)
	return ref, nil
}

// Delete implements docstore.Store.
func (s *Store) Delete(_ context.Context, ref docstore.DocRef) error {
	s.apply(ref, nil)
	return nil
}

// SetOffline toggles cache-origin tagging. Every subscription receives a
// refreshed snapshot so observers see the origin change, the way a
// backend client re-reports its current state when connectivity flips.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	docTargets, queryTargets := s.collectAllLocked()
	s.mu.Unlock()

	s.fanOut(docTargets, queryTargets)
}

// apply writes data (nil = delete) and fans out to affected subscribers.
func (s *Store) apply(ref docstore.DocRef, data json.RawMessage) {
	s.mu.Lock()
	docs := s.collections[ref.Collection]
	if data == nil {
		delete(docs, ref.ID)
	} else {
		if docs == nil {
			docs = make(map[string]json.RawMessage)
			s.collections[ref.Collection] = docs
		}
		docs[ref.ID] = data
	}
	docTargets, queryTargets := s.collectAffectedLocked(ref)
	s.mu.Unlock()

	s.fanOut(docTargets, queryTargets)
}

type docDelivery struct {
	sub  *docSub
	snap docstore.Snapshot
}

type queryDelivery struct {
	sub  *querySub
	snap docstore.QuerySnapshot
}

func (s *Store) collectAffectedLocked(ref docstore.DocRef) ([]docDelivery, []queryDelivery) {
	var docTargets []docDelivery
	s.docSubs.Range(func(_ string, sub *docSub) bool {
		if sub.ref == ref {
			docTargets = append(docTargets, docDelivery{sub, s.docSnapshotLocked(sub.ref)})
		}
		return true
	})

	var queryTargets []queryDelivery
	s.querySubs.Range(func(_ string, sub *querySub) bool {
		if sub.query.Collection == ref.Collection {
			queryTargets = append(queryTargets, queryDelivery{sub, s.querySnapshotLocked(sub.query)})
		}
		return true
	})
	return docTargets, queryTargets
}

func (s *Store) collectAllLocked() ([]docDelivery, []queryDelivery) {
	var docTargets []docDelivery
	s.docSubs.Range(func(_ string, sub *docSub) bool {
		docTargets = append(docTargets, docDelivery{sub, s.docSnapshotLocked(sub.ref)})
		return true
	})

	var queryTargets []queryDelivery
	s.querySubs.Range(func(_ string, sub *querySub) bool {
		queryTargets = append(queryTargets, queryDelivery{sub, s.querySnapshotLocked(sub.query)})
		return true
	})
	return docTargets, queryTargets
}

func (s *Store) fanOut(docTargets []docDelivery, queryTargets []queryDelivery) {
	for _, t := range docTargets {
		t.sub.deliver(t.snap)
	}
	for _, t := range queryTargets {
		t.sub.deliver(t.snap)
	}
}

func (s *Store) docSnapshotLocked(ref docstore.DocRef) docstore.Snapshot {
	data, ok := s.collections[ref.Collection][ref.ID]
	return docstore.Snapshot{
		Ref:       ref,
		Exists:    ok,
		Data:      data,
		FromCache: s.offline,
	}
}

func (s *Store) querySnapshotLocked(q docstore.Query) docstore.QuerySnapshot {
	type row struct {
		id      string
		data    json.RawMessage
		decoded map[string]any
	}

	var rows []row
	for id, data := range s.collections[q.Collection] {
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			s.logger.Debug().Str("collection", q.Collection).Str("id", id).Err(err).Msg("skipping undecodable document")
			continue
		}
		if !matchesAll(decoded, q.Filters) {
			continue
		}
		rows = append(rows, row{id: id, data: data, decoded: decoded})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, order := range q.Orders {
			cmp := compareValues(rows[i].decoded[order.Field], rows[j].decoded[order.Field])
			if cmp == 0 {
				continue
			}
			if order.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		// Implicit id tiebreak keeps result order deterministic.
		return rows[i].id < rows[j].id
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	docs := make([]docstore.Snapshot, len(rows))
	for i, r := range rows {
		docs[i] = docstore.Snapshot{
			Ref:       docstore.DocRef{Collection: q.Collection, ID: r.id},
			Exists:    true,
			Data:      r.data,
			FromCache: s.offline,
		}
	}
	return docstore.QuerySnapshot{Docs: docs, FromCache: s.offline}
}
