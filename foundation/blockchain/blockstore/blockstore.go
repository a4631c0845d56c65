// Package blockstore maintains the canonical chain of blocks over a kv store
// along with the earliest, latest and pending slots.
package blockstore

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ardanlabs/ethsim/foundation/blockchain/codec"
	"github.com/ardanlabs/ethsim/foundation/blockchain/kv"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// Set of error variables for the block store.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidTag   = errors.New("invalid block tag")
	ErrPersistence  = errors.New("persistence failure")
	ErrGenesisExist = errors.New("genesis block already set")
)

// Table prefixes used by the block store.
const (
	numbersPrefix = "n"
	hashesPrefix  = "h"
	metaPrefix    = "m"
)

// headKey is the metadata key holding the storage key of the latest block.
var headKey = []byte("head")

// defaultCacheSize is used when no cache size is configured.
const defaultCacheSize = 256

// =============================================================================

// Seed provides the values a new pending block is built with.
type Seed struct {
	Coinbase common.Address
	GasLimit uint64
	Time     uint64
}

// Config represents the configuration required to construct a block store.
type Config struct {
	Store     kv.Store
	CacheSize int
	Seed      func() Seed
}

// Store manages the blocks of the chain.
type Store struct {
	mu       sync.RWMutex
	numbers  *kv.Table
	hashes   *kv.Table
	meta     *kv.Table
	cache    *lru.Cache[string, *codec.Block]
	seed     func() Seed
	earliest *codec.Block
	latest   *codec.Block
	pending  *codec.Block
}

// New constructs a block store. If the underlying store already holds a
// chain, the earliest and latest slots are restored from it.
func New(cfg Config) (*Store, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}

	cache, err := lru.New[string, *codec.Block](size)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == nil {
		seed = func() Seed { return Seed{} }
	}

	s := Store{
		numbers: kv.NewTable(cfg.Store, numbersPrefix),
		hashes:  kv.NewTable(cfg.Store, hashesPrefix),
		meta:    kv.NewTable(cfg.Store, metaPrefix),
		cache:   cache,
		seed:    seed,
	}

	head, err := s.meta.Get(headKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return &s, nil
	case err != nil:
		return nil, fmt.Errorf("%w: read head: %w", ErrPersistence, err)
	}

	if s.latest, err = s.GetByKey(head); err != nil {
		return nil, fmt.Errorf("restore latest: %w", err)
	}

	if s.earliest, err = s.GetByKey(codec.NumberKey(0)); err != nil {
		return nil, fmt.Errorf("restore earliest: %w", err)
	}

	return &s, nil
}

// Put writes the block under its number key and indexes its hash. The two
// writes are issued concurrently and any failure is reported as a
// persistence error. Put is idempotent so a failed call can be retried.
func (s *Store) Put(block *codec.Block) error {
	data, err := codec.Encode(block)
	if err != nil {
		return err
	}

	key := block.Key()
	hash := block.Hash()

	var g errgroup.Group
	g.Go(func() error {
		return s.numbers.Put(key, data)
	})
	g.Go(func() error {
		return s.hashes.Put(hash.Bytes(), key)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: put block %d: %w", ErrPersistence, block.Number(), err)
	}

	s.cache.Add(string(key), block)

	return nil
}

// Commit persists the block, promotes it to the latest block and clears the
// pending slot.
func (s *Store) Commit(block *codec.Block) error {
	if err := s.Put(block); err != nil {
		return err
	}

	if err := s.meta.Put(headKey, block.Key()); err != nil {
		return fmt.Errorf("%w: write head: %w", ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = block
	s.pending = nil

	return nil
}

// SetGenesis commits block 0 and fixes the earliest slot. It can only be
// called once for a given chain.
func (s *Store) SetGenesis(block *codec.Block) error {
	s.mu.RLock()
	exists := s.earliest != nil
	s.mu.RUnlock()

	if exists {
		return ErrGenesisExist
	}

	if block.Number() != 0 {
		return fmt.Errorf("genesis block must be number 0, got %d", block.Number())
	}

	if err := s.Commit(block); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.earliest = block

	return nil
}

// =============================================================================

// Earliest returns the genesis block.
func (s *Store) Earliest() (*codec.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.earliest == nil {
		return nil, ErrNotFound
	}
	return s.earliest, nil
}

// Latest returns the most recently committed block.
func (s *Store) Latest() (*codec.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return nil, ErrNotFound
	}
	return s.latest, nil
}

// Pending returns a copy of the block being assembled on top of the latest
// block, materializing it on first demand. Repeated calls return the same
// block until the next commit.
func (s *Store) Pending() (*codec.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return nil, ErrNotFound
	}

	if s.pending == nil {
		s.pending = s.materialize(s.latest.Header)
	}

	return copyBlock(s.pending), nil
}

// GetByNumber resolves the block reference and returns the block.
func (s *Store) GetByNumber(ref string) (*codec.Block, error) {
	r, err := ParseTag(ref)
	if err != nil {
		return nil, err
	}

	switch r.Tag {
	case Earliest:
		return s.Earliest()
	case Latest:
		return s.Latest()
	case Pending:
		return s.Pending()
	case Raw:
		return s.GetByKey(r.Key)
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidTag, ref)
}

// GetByNumberU64 returns the committed block with the specified number.
func (s *Store) GetByNumberU64(number uint64) (*codec.Block, error) {
	return s.GetByKey(codec.NumberKey(number))
}

// GetByKey returns the committed block stored under the key.
func (s *Store) GetByKey(key []byte) (*codec.Block, error) {
	if block, ok := s.cache.Get(string(key)); ok {
		return block, nil
	}

	data, err := s.numbers.Get(key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: get block: %w", ErrPersistence, err)
	}

	block, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}

	s.cache.Add(string(key), block)

	return block, nil
}

// GetByHash returns the committed block with the specified hash.
func (s *Store) GetByHash(hash common.Hash) (*codec.Block, error) {
	key, err := s.hashes.Get(hash.Bytes())
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: get hash: %w", ErrPersistence, err)
	}

	return s.GetByKey(key)
}

// ForEach calls fn for every committed block from genesis to the latest
// block in order.
func (s *Store) ForEach(fn func(block *codec.Block) error) error {
	latest, err := s.Latest()
	if err != nil {
		return err
	}

	for n := uint64(0); n <= latest.Number(); n++ {
		block, err := s.GetByNumberU64(n)
		if err != nil {
			return err
		}

		if err := fn(block); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================

func (s *Store) materialize(parent *types.Header) *codec.Block {
	seed := s.seed()

	gasLimit := seed.GasLimit
	if gasLimit == 0 {
		gasLimit = parent.GasLimit
	}

	timestamp := seed.Time
	if timestamp < parent.Time {
		timestamp = parent.Time
	}

	header := types.Header{
		ParentHash:  parent.Hash(),
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    seed.Coinbase,
		Root:        parent.Root,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  new(big.Int),
		Number:      new(big.Int).Add(parent.Number, big.NewInt(1)),
		GasLimit:    gasLimit,
		Time:        timestamp,
		Extra:       []byte{},
	}

	return codec.NewBlock(&header)
}

func copyBlock(b *codec.Block) *codec.Block {
	cpy := codec.Block{
		Header:       types.CopyHeader(b.Header),
		Transactions: make([]*types.Transaction, len(b.Transactions)),
		Uncles:       make([]*types.Header, len(b.Uncles)),
	}

	copy(cpy.Transactions, b.Transactions)
	copy(cpy.Uncles, b.Uncles)

	return &cpy
}
