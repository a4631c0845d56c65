// Package state is the core API for the blockchain and implements all the
// business rules and processing: transaction submission, block commits,
// receipts and the account operations that change lock state.
package state

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/ethsim/foundation/blockchain/accounts"
	"github.com/ardanlabs/ethsim/foundation/blockchain/blockstore"
	"github.com/ardanlabs/ethsim/foundation/blockchain/database"
	"github.com/ardanlabs/ethsim/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethsim/foundation/blockchain/kv"
	"github.com/ethereum/go-ethereum/core/types"
)

// Set of error variables for the pipeline.
var (
	ErrNonceTooLow  = errors.New("nonce too low")
	ErrNonceTooHigh = errors.New("nonce too high")
	ErrGasLimit     = errors.New("exceeds block gas limit")
	ErrShutdown     = errors.New("node is shutting down")
	ErrNoWorker     = errors.New("worker is not running")
	ErrNotFound     = blockstore.ErrNotFound
)

// Table prefixes used by the state package.
const (
	receiptsPrefix = "r"
	lookupsPrefix  = "l"
)

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing the single point of ordering for chain mutations. Do
// returns before running fn only when ctx is done first; once fn is admitted
// it always runs to completion.
type Worker interface {
	Shutdown()
	Do(ctx context.Context, fn func()) error
}

// Publisher interface represents the behavior required to fan out the
// header of every committed block.
type Publisher interface {
	Send(header *types.Header)
}

// =============================================================================

// Config represents the configuration required to start the blockchain node.
type Config struct {
	Genesis     genesis.Genesis
	Store       kv.Store
	CacheBlocks int
	Accounts    *accounts.Manager
	Executor    database.Executor
	Heads       Publisher
	Now         func() time.Time
	BlockTime   time.Duration
	EvHandler   EventHandler
}

// State manages the blockchain database.
type State struct {
	genesis   genesis.Genesis
	chainID   *big.Int
	evHandler EventHandler
	now       func() time.Time
	blockTime time.Duration

	store    kv.Store
	blocks   *blockstore.Store
	db       *database.Database
	accounts *accounts.Manager
	executor database.Executor
	heads    Publisher
	receipts *kv.Table
	lookups  *kv.Table

	Worker Worker
}

// New constructs a new blockchain for data management. When the store is
// empty the genesis block is created from the genesis allocations.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.Store == nil {
		return nil, errors.New("state: a store is required")
	}

	if cfg.Accounts == nil {
		return nil, errors.New("state: an account manager is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	executor := cfg.Executor
	if executor == nil {
		executor = database.Transfer{}
	}

	heads := cfg.Heads
	if heads == nil {
		heads = discard{}
	}

	gen := cfg.Genesis
	if gen.GasLimit == 0 {
		gen.GasLimit = genesis.DefaultGasLimit
	}
	if gen.ChainID == 0 {
		gen.ChainID = genesis.DefaultChainID
	}

	// Update the world state with account balance information from genesis.
	allocs, err := gen.Allocations()
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.Store, allocs)
	if err != nil {
		return nil, err
	}

	seed := func() blockstore.Seed {
		return blockstore.Seed{
			Coinbase: coinbase(gen),
			GasLimit: gen.GasLimit,
			Time:     uint64(now().Unix()),
		}
	}

	blocks, err := blockstore.New(blockstore.Config{
		Store:     cfg.Store,
		CacheSize: cfg.CacheBlocks,
		Seed:      seed,
	})
	if err != nil {
		return nil, err
	}

	s := State{
		genesis:   gen,
		chainID:   new(big.Int).SetUint64(gen.ChainID),
		evHandler: ev,
		now:       now,
		blockTime: cfg.BlockTime,

		store:    cfg.Store,
		blocks:   blocks,
		db:       db,
		accounts: cfg.Accounts,
		executor: executor,
		heads:    heads,
		receipts: kv.NewTable(cfg.Store, receiptsPrefix),
		lookups:  kv.NewTable(cfg.Store, lookupsPrefix),
	}

	// Create block 0 the first time the chain is started.
	switch latest, err := blocks.Latest(); {
	case errors.Is(err, blockstore.ErrNotFound):
		block := gen.Block(db.HashState())
		if err := blocks.SetGenesis(block); err != nil {
			return nil, fmt.Errorf("set genesis: %w", err)
		}
		ev("state: New: genesis block[%d] hash[%s]", block.Number(), block.Hash())

	case err != nil:
		return nil, err

	default:
		ev("state: New: resuming at block[%d] hash[%s]", latest.Number(), latest.Hash())
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	// Make sure the database is properly closed.
	return s.store.Close()
}

// =============================================================================

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// ChainID returns the chain id used for transaction signatures.
func (s *State) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// NetworkID returns the network id reported to clients.
func (s *State) NetworkID() uint64 {
	if s.genesis.NetworkID == 0 {
		return s.genesis.ChainID
	}
	return s.genesis.NetworkID
}

// GasPrice returns the price used when a transaction doesn't set one.
func (s *State) GasPrice() *big.Int {
	return new(big.Int).SetUint64(s.genesis.GasPrice)
}

// BlockTime returns the interval at which empty blocks are mined, zero when
// blocks are only produced by transactions.
func (s *State) BlockTime() time.Duration {
	return s.blockTime
}

// Accounts returns the account manager.
func (s *State) Accounts() *accounts.Manager {
	return s.accounts
}

// =============================================================================

// do runs fn on the worker.
func (s *State) do(ctx context.Context, fn func()) error {
	if s.Worker == nil {
		return ErrNoWorker
	}
	return s.Worker.Do(ctx, fn)
}

// discard is the publisher used when nobody listens for new heads.
type discard struct{}

func (discard) Send(*types.Header) {}
