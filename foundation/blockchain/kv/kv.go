// Package kv defines the byte store consumed by the chain and a prefixed
// table view over it. Concrete backends live in the leveldb and pebble
// sub-packages.
package kv

import (
	"errors"
)

// Set of error variables for the store.
var (
	ErrNotFound = errors.New("key not found")
	ErrEmptyKey = errors.New("empty key")
	ErrClosed   = errors.New("store closed")
)

// Store interface represents the behavior required to be implemented by any
// package providing byte level storage for the chain.
type Store interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte, fn func(key []byte, value []byte) error) error
	Close() error
}

// =============================================================================

// Table provides access to the subset of a store whose keys share a prefix.
type Table struct {
	store  Store
	prefix []byte
}

// NewTable constructs a table over the store using the specified prefix.
func NewTable(store Store, prefix string) *Table {
	return &Table{
		store:  store,
		prefix: []byte(prefix),
	}
}

// Get returns the value for the key. An empty key is never present.
func (t *Table) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrNotFound
	}
	return t.store.Get(t.key(key))
}

// Has reports whether the key exists in the table.
func (t *Table) Has(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, nil
	}
	return t.store.Has(t.key(key))
}

// Put writes the value for the key.
func (t *Table) Put(key []byte, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return t.store.Put(t.key(key), value)
}

// Delete removes the key from the table.
func (t *Table) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return t.store.Delete(t.key(key))
}

// Iterate calls fn for every key in the table in byte order. The key passed
// to fn has the table prefix removed.
func (t *Table) Iterate(fn func(key []byte, value []byte) error) error {
	return t.store.Iterate(t.prefix, func(key []byte, value []byte) error {
		return fn(key[len(t.prefix):], value)
	})
}

func (t *Table) key(key []byte) []byte {
	k := make([]byte, 0, len(t.prefix)+len(key))
	k = append(k, t.prefix...)
	return append(k, key...)
}

// =============================================================================

// UpperBound returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists.
func UpperBound(prefix []byte) []byte {
	limit := make([]byte, len(prefix))
	copy(limit, prefix)

	for i := len(limit) - 1; i >= 0; i-- {
		limit[i]++
		if limit[i] != 0 {
			return limit[:i+1]
		}
	}

	return nil
}
