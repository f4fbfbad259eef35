package livecache

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-livequery-cache/docstore"
)

// fakeStore is a scriptable docstore.Store: tests push snapshots and
// errors into registered subscriptions by hand, which gives precise
// control over delivery order, supersession and cancellation.
type fakeStore struct {
	mu        sync.Mutex
	docSubs   []*fakeDocSub
	querySubs []*fakeQuerySub
}

type fakeDocSub struct {
	ref       docstore.DocRef
	onNext    func(docstore.Snapshot)
	onError   func(error)
	cancelled bool
}

type fakeQuerySub struct {
	query     docstore.Query
	onNext    func(docstore.QuerySnapshot)
	onError   func(error)
	cancelled bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) SubscribeDoc(ref docstore.DocRef, onNext func(docstore.Snapshot), onError func(error)) docstore.CancelFunc {
	s.mu.Lock()
	sub := &fakeDocSub{ref: ref, onNext: onNext, onError: onError}
	s.docSubs = append(s.docSubs, sub)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		sub.cancelled = true
		s.mu.Unlock()
	}
}

func (s *fakeStore) SubscribeQuery(q docstore.Query, onNext func(docstore.QuerySnapshot), onError func(error)) docstore.CancelFunc {
	s.mu.Lock()
	sub := &fakeQuerySub{query: q, onNext: onNext, onError: onError}
	s.querySubs = append(s.querySubs, sub)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		sub.cancelled = true
		s.mu.Unlock()
	}
}

func (s *fakeStore) Get(context.Context, docstore.DocRef) (docstore.Snapshot, error) {
	return docstore.Snapshot{}, errors.New("fakeStore: Get not scripted")
}

func (s *fakeStore) Set(context.Context, docstore.DocRef, any) error {
	return errors.New("fakeStore: Set not scripted")
}

func (s *fakeStore) Add(context.Context, string, any) (docstore.DocRef, error) {
	return docstore.DocRef{}, errors.New("fakeStore: Add not scripted")
}

func (s *fakeStore) Delete(context.Context, docstore.DocRef) error {
	return errors.New("fakeStore: Delete not scripted")
}

// docSubCount returns how many doc subscriptions were ever registered.
func (s *fakeStore) docSubCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docSubs)
}

func (s *fakeStore) querySubCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.querySubs)
}

// lastDocSub returns the most recently registered doc subscription.
func (s *fakeStore) lastDocSub() *fakeDocSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.docSubs) == 0 {
		return nil
	}
	return s.docSubs[len(s.docSubs)-1]
}

func (s *fakeStore) lastQuerySub() *fakeQuerySub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.querySubs) == 0 {
		return nil
	}
	return s.querySubs[len(s.querySubs)-1]
}

func (s *fakeStore) querySubAt(i int) *fakeQuerySub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.querySubs[i]
}
