// Package kvstore defines the durable key-value persistence collaborator
// used for the selected-profile and organization-metadata caches, plus an
// in-memory implementation for tests and a SQL-backed durable one.
//
// Keys are plain strings; callers partition them per user id so that
// switching between linked profiles on one device never leaks data across
// accounts.
package kvstore

import (
	"context"
	"errors"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-livequery-cache/internal/bunkv"
)

// ErrNotFound is returned by GetItem when the key has never been written
// or has been removed.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is asynchronous durable key→string persistence.
type Store interface {
	// GetItem returns the value stored under key, or ErrNotFound.
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error
}

// memoryStore is a process-local Store, primarily for tests and examples.
type memoryStore struct {
	items *xsync.MapOf[string, string]
}

// NewMemory returns an empty in-memory Store safe for concurrent use.
func NewMemory() Store {
	return &memoryStore{items: xsync.NewMapOf[string, string]()}
}

func (s *memoryStore) GetItem(_ context.Context, key string) (string, error) {
	value, ok := s.items.Load(key)
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *memoryStore) SetItem(_ context.Context, key, value string) error {
	s.items.Store(key, value)
	return nil
}

func (s *memoryStore) RemoveItem(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

// NewBun returns a Store persisted in a SQL table through bun. The table
// is created on first use; see internal/bunkv for the schema.
func NewBun(db *bun.DB) Store {
	return bunStore{inner: bunkv.New(db)}
}

// bunStore adapts the internal implementation to the exported interface,
// mapping its not-found sentinel to ErrNotFound.
type bunStore struct {
	inner *bunkv.Store
}

func (s bunStore) GetItem(ctx context.Context, key string) (string, error) {
	value, err := s.inner.Get(ctx, key)
	if errors.Is(err, bunkv.ErrNoEntry) {
		return "", ErrNotFound
	}
	return value, err
}

func (s bunStore) SetItem(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, key, value)
}

func (s bunStore) RemoveItem(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}
