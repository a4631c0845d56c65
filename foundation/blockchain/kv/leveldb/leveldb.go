// Package leveldb implements the kv store on top of goleveldb, either on
// disk or fully in memory.
package leveldb

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/ethsim/foundation/blockchain/kv"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Store represents a goleveldb database.
type Store struct {
	db *leveldb.DB
}

// Open opens or creates the database in the specified directory. A corrupted
// database is recovered before being returned.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: 16 * opt.MiB,
	})
	if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}

	return &Store{db: db}, nil
}

// NewMemory constructs a database that lives only in memory.
func NewMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory leveldb: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns a copy of the value stored for the key.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, err := s.db.Get(key, nil)
	if err != nil {
		return nil, translate(err)
	}
	return value, nil
}

// Has reports whether the key exists.
func (s *Store) Has(key []byte) (bool, error) {
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return false, translate(err)
	}
	return ok, nil
}

// Put writes the value for the key.
func (s *Store) Put(key []byte, value []byte) error {
	return translate(s.db.Put(key, value, nil))
}

// Delete removes the key.
func (s *Store) Delete(key []byte) error {
	return translate(s.db.Delete(key, nil))
}

// Iterate walks every key with the prefix in byte order. The slices handed
// to fn are copies and may be retained.
func (s *Store) Iterate(prefix []byte, fn func(key []byte, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		key := append([]byte{}, iter.Key()...)
		value := append([]byte{}, iter.Value()...)

		if err := fn(key, value); err != nil {
			return err
		}
	}

	return translate(iter.Error())
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, leveldb.ErrNotFound):
		return kv.ErrNotFound
	case errors.Is(err, leveldb.ErrClosed):
		return kv.ErrClosed
	}
	return err
}
