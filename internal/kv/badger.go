// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// incrRetries bounds optimistic retries when concurrent Incr calls on the
// same key conflict.
const incrRetries = 32

// BadgerStore is an embedded Store for single-node deployments.
// Badger expiry has one-second resolution.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database at path. An empty path
// with inMemory set gives a throwaway in-memory store.
func OpenBadger(path string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Name implements Named.
func (s *BadgerStore) Name() string { return "badger" }

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}
	return out, nil
}

// Set implements Store.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger set %q: %w", key, err)
	}
	return nil
}

// Delete implements Store. Missing keys are not an error.
func (s *BadgerStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Incr implements Store. The expiry set on creation is carried over on every
// rewrite of the counter.
func (s *BadgerStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var n int64
	for attempt := 0; attempt < incrRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				n = 1
				e := badger.NewEntry([]byte(key), []byte("1"))
				if ttl > 0 {
					e = e.WithTTL(ttl)
				}
				return txn.SetEntry(e)
			case err != nil:
				return err
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			cur, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return ErrNotCounter
			}
			n = cur + 1
			e := badger.NewEntry([]byte(key), []byte(strconv.FormatInt(n, 10)))
			e.ExpiresAt = item.ExpiresAt()
			return txn.SetEntry(e)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("badger incr %q: %w", key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("badger incr %q: %w", key, badger.ErrConflict)
}

// Keys implements Scanner.
func (s *BadgerStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger keys %q: %w", prefix, err)
	}
	return keys, nil
}

// Ping implements Store.
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("%w: badger closed", ErrUnavailable)
	}
	return nil
}

// RunGC reclaims value log space; a nil error means a file was rewritten.
func (s *BadgerStore) RunGC() error {
	return s.db.RunValueLogGC(0.5)
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
