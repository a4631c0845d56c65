// Package database maintains the world state of the chain: the balance and
// nonce of every account, persisted to a kv table and summarized by a state
// root.
package database

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/ethsim/foundation/blockchain/kv"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// accountsPrefix is the table prefix for persisted accounts.
const accountsPrefix = "a"

// ErrPersistence is returned when account changes can't be written.
var ErrPersistence = errors.New("persistence failure")

// =============================================================================

// Database manages data related to accounts who have transacted on the
// blockchain.
type Database struct {
	mu       sync.RWMutex
	accounts map[common.Address]Account
	table    *kv.Table
}

// New constructs the world state over the store. Accounts already persisted
// are loaded; on an empty store the genesis balances are applied and written.
func New(store kv.Store, balances map[common.Address]*uint256.Int) (*Database, error) {
	db := Database{
		accounts: make(map[common.Address]Account),
		table:    kv.NewTable(store, accountsPrefix),
	}

	err := db.table.Iterate(func(key []byte, value []byte) error {
		var acc Account
		if err := rlp.DecodeBytes(value, &acc); err != nil {
			return fmt.Errorf("decode account %x: %w", key, err)
		}
		db.accounts[common.BytesToAddress(key)] = acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(db.accounts) > 0 {
		return &db, nil
	}

	// Update the database with account balance information from genesis.
	changes := make(map[common.Address]Account, len(balances))
	for addr, balance := range balances {
		changes[addr] = Account{Balance: new(uint256.Int).Set(balance)}
	}

	if err := db.apply(changes); err != nil {
		return nil, err
	}

	return &db, nil
}

// Query returns the account for the address. Unknown accounts have a zero
// nonce and balance.
func (db *Database) Query(addr common.Address) Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.accounts[addr].clone()
}

// Exists reports whether the address has any recorded state.
func (db *Database) Exists(addr common.Address) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.accounts[addr]
	return exists
}

// Copy makes a copy of the current accounts in the database.
func (db *Database) Copy() map[common.Address]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := make(map[common.Address]Account, len(db.accounts))
	for addr, acc := range db.accounts {
		accounts[addr] = acc.clone()
	}
	return accounts
}

// HashState returns the root over all accounts ordered by address.
func (db *Database) HashState() common.Hash {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return hashState(db.accounts)
}

// Begin starts a journal of changes over the current state.
func (db *Database) Begin() *Journal {
	return &Journal{
		db:    db,
		dirty: make(map[common.Address]Account),
	}
}

// =============================================================================

// apply persists the changes and then updates the in-memory state.
func (db *Database) apply(changes map[common.Address]Account) error {
	for addr, acc := range changes {
		data, err := rlp.EncodeToBytes(acc.normalize())
		if err != nil {
			return err
		}

		if err := db.table.Put(addr.Bytes(), data); err != nil {
			return fmt.Errorf("%w: account %s: %w", ErrPersistence, addr, err)
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for addr, acc := range changes {
		db.accounts[addr] = acc.normalize()
	}

	return nil
}

// restore puts the accounts back to the specified values. A nil value
// removes the account.
func (db *Database) restore(prior map[common.Address]*Account) error {
	for addr, acc := range prior {
		if acc == nil {
			if err := db.table.Delete(addr.Bytes()); err != nil {
				return fmt.Errorf("%w: account %s: %w", ErrPersistence, addr, err)
			}
			continue
		}

		data, err := rlp.EncodeToBytes(acc.normalize())
		if err != nil {
			return err
		}

		if err := db.table.Put(addr.Bytes(), data); err != nil {
			return fmt.Errorf("%w: account %s: %w", ErrPersistence, addr, err)
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for addr, acc := range prior {
		if acc == nil {
			delete(db.accounts, addr)
			continue
		}
		db.accounts[addr] = acc.normalize()
	}

	return nil
}

// stateEntry is the hashed form of an account.
type stateEntry struct {
	Address common.Address
	Nonce   uint64
	Balance *uint256.Int
}

func hashState(accounts map[common.Address]Account) common.Hash {
	if len(accounts) == 0 {
		return types.EmptyRootHash
	}

	entries := make([]stateEntry, 0, len(accounts))
	for addr, acc := range accounts {
		acc = acc.normalize()
		entries = append(entries, stateEntry{Address: addr, Nonce: acc.Nonce, Balance: acc.Balance})
	}

	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Address[:], entries[j].Address[:]) < 0
	})

	data, err := rlp.EncodeToBytes(entries)
	if err != nil {
		return common.Hash{}
	}

	return crypto.Keccak256Hash(data)
}
