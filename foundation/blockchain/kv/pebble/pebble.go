// Package pebble implements the kv store on top of cockroachdb pebble, either
// on disk or over an in-memory filesystem.
package pebble

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/ethsim/foundation/blockchain/kv"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Store represents a pebble database.
type Store struct {
	db *pebble.DB
}

// Open opens or creates the database in the specified directory.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %q: %w", path, err)
	}

	return &Store{db: db}, nil
}

// NewMemory constructs a database backed by an in-memory filesystem.
func NewMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open memory pebble: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns a copy of the value stored for the key.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	return append([]byte{}, value...), nil
}

// Has reports whether the key exists.
func (s *Store) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Put writes the value for the key and syncs it.
func (s *Store) Put(key []byte, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

// Delete removes the key.
func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

// Iterate walks every key with the prefix in byte order. The slices handed
// to fn are copies and may be retained.
func (s *Store) Iterate(prefix []byte, fn func(key []byte, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: kv.UpperBound(prefix),
	})
	if err != nil {
		return err
	}

	for iter.First(); iter.Valid(); iter.Next() {
		key := append([]byte{}, iter.Key()...)
		value := append([]byte{}, iter.Value()...)

		if err := fn(key, value); err != nil {
			iter.Close()
			return err
		}
	}

	return iter.Close()
}

// Close flushes and releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
