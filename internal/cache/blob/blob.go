// SPDX-License-Identifier: MIT

// Package blob provides a disk-backed byte cache for snapshot payloads
// fetched from remote storage. Entries are keyed by object path and
// expire after a TTL so repeated reads of the same snapshot do not
// round-trip to S3.
package blob

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("blob: not found")

// Store is a badger-backed blob cache.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens or creates a blob store at dir. A zero ttl means entries
// never expire.
func Open(dir string, ttl time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Get returns the cached payload for key, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
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
		return nil, fmt.Errorf("blob get %s: %w", key, err)
	}
	return out, nil
}

// Put stores payload under key, honoring the store TTL.
func (s *Store) Put(key string, payload []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), payload)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("blob put %s: %w", key, err)
	}
	return nil
}

// Delete removes key if present.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("blob delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
