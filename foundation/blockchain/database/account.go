package database

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account represents information stored in the database for an individual
// account.
type Account struct {
	Nonce   uint64
	Balance *uint256.Int
}

// clone returns a deep copy so callers can't mutate the stored balance.
func (a Account) clone() Account {
	a = a.normalize()
	a.Balance = new(uint256.Int).Set(a.Balance)
	return a
}

// normalize replaces a missing balance with zero.
func (a Account) normalize() Account {
	if a.Balance == nil {
		a.Balance = new(uint256.Int)
	}
	return a
}

// =============================================================================

// Journal records account changes while a block is assembled. Nothing is
// visible in the database until Commit is called.
type Journal struct {
	db    *Database
	dirty map[common.Address]Account
}

// Account returns the account as seen through the journal.
func (j *Journal) Account(addr common.Address) Account {
	if acc, exists := j.dirty[addr]; exists {
		return acc.clone()
	}
	return j.db.Query(addr)
}

// SetAccount records a new value for the account.
func (j *Journal) SetAccount(addr common.Address, acc Account) {
	j.dirty[addr] = acc.clone()
}

// AddBalance credits the account.
func (j *Journal) AddBalance(addr common.Address, amount *uint256.Int) {
	acc := j.Account(addr)
	acc.Balance.Add(acc.Balance, amount)
	j.SetAccount(addr, acc)
}

// SubBalance debits the account. The caller has checked the balance.
func (j *Journal) SubBalance(addr common.Address, amount *uint256.Int) {
	acc := j.Account(addr)
	acc.Balance.Sub(acc.Balance, amount)
	j.SetAccount(addr, acc)
}

// HashState returns the state root the database would have after Commit.
func (j *Journal) HashState() common.Hash {
	accounts := j.db.Copy()
	for addr, acc := range j.dirty {
		accounts[addr] = acc
	}
	return hashState(accounts)
}

// Commit writes the recorded changes to the database.
func (j *Journal) Commit() error {
	if len(j.dirty) == 0 {
		return nil
	}

	if err := j.db.apply(j.dirty); err != nil {
		return err
	}

	j.dirty = make(map[common.Address]Account)
	return nil
}

// Discard drops the recorded changes.
func (j *Journal) Discard() {
	j.dirty = make(map[common.Address]Account)
}

// Snapshot captures the current value of every account the journal changes
// so a commit can be undone.
func (j *Journal) Snapshot() *Snapshot {
	j.db.mu.RLock()
	defer j.db.mu.RUnlock()

	prior := make(map[common.Address]*Account, len(j.dirty))
	for addr := range j.dirty {
		acc, exists := j.db.accounts[addr]
		if !exists {
			prior[addr] = nil
			continue
		}
		acc = acc.clone()
		prior[addr] = &acc
	}

	return &Snapshot{db: j.db, prior: prior}
}

// Snapshot holds the accounts as they were before a journal was committed.
// A nil entry marks an account that didn't exist.
type Snapshot struct {
	db    *Database
	prior map[common.Address]*Account
}

// Restore writes the captured accounts back, removing the ones that didn't
// exist.
func (s *Snapshot) Restore() error {
	return s.db.restore(s.prior)
}
