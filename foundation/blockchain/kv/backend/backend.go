// Package backend opens a kv store by backend name.
package backend

import (
	"fmt"
	"strings"

	"github.com/ardanlabs/ethsim/foundation/blockchain/kv"
	"github.com/ardanlabs/ethsim/foundation/blockchain/kv/leveldb"
	"github.com/ardanlabs/ethsim/foundation/blockchain/kv/pebble"
)

// Set of supported backends.
const (
	Memory  = "memory"
	LevelDB = "leveldb"
	Pebble  = "pebble"
)

// Open returns the store for the named backend. The memory backend ignores
// the path.
func Open(name string, path string) (kv.Store, error) {
	switch strings.ToLower(name) {
	case Memory, "":
		return leveldb.NewMemory()
	case LevelDB:
		if path == "" {
			return nil, fmt.Errorf("backend %q requires a path", name)
		}
		return leveldb.Open(path)
	case Pebble:
		if path == "" {
			return nil, fmt.Errorf("backend %q requires a path", name)
		}
		return pebble.Open(path)
	}

	return nil, fmt.Errorf("unknown backend %q", name)
}
