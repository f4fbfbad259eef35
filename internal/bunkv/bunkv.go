// Package bunkv persists key-value entries in a SQL table through bun.
// It backs the exported kvstore.NewBun constructor.
package bunkv

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/uptrace/bun"
)

// ErrNoEntry is returned by Get when the key is absent.
var ErrNoEntry = errors.New("bunkv: no entry")

type entry struct {
	bun.BaseModel `bun:"table:kv_entries"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// Store reads and writes kv_entries rows. The table is created lazily on
// first access so callers only need to hand over an opened *bun.DB.
type Store struct {
	db *bun.DB

	initOnce sync.Once
	initErr  error
}

// New returns a Store over db.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) init(ctx context.Context) error {
	s.initOnce.Do(func() {
		_, s.initErr = s.db.NewCreateTable().
			Model((*entry)(nil)).
			IfNotExists().
			Exec(ctx)
	})
	return s.initErr
}

// Get returns the value stored under key, or ErrNoEntry.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := s.init(ctx); err != nil {
		return "", err
	}

	var row entry
	err := s.db.NewSelect().
		Model(&row).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoEntry
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.init(ctx); err != nil {
		return err
	}

	_, err := s.db.NewInsert().
		Model(&entry{Key: key, Value: value}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.init(ctx); err != nil {
		return err
	}

	_, err := s.db.NewDelete().
		Model((*entry)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	return err
}
