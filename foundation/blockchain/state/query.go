package state

import (
	"math/big"

	"github.com/ardanlabs/ethsim/foundation/blockchain/codec"
	"github.com/ardanlabs/ethsim/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// QueryBlockByNumber resolves the block reference, a tag or a number.
func (s *State) QueryBlockByNumber(ref string) (*codec.Block, error) {
	return s.blocks.GetByNumber(ref)
}

// QueryBlockByHash returns the committed block with the hash.
func (s *State) QueryBlockByHash(hash common.Hash) (*codec.Block, error) {
	return s.blocks.GetByHash(hash)
}

// QueryBlocksByNumber returns the committed blocks in the inclusive range.
// The range is clamped to the latest block.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) ([]*codec.Block, error) {
	latest, err := s.blocks.Latest()
	if err != nil {
		return nil, err
	}

	if to > latest.Number() {
		to = latest.Number()
	}

	var out []*codec.Block
	for i := from; i <= to; i++ {
		block, err := s.blocks.GetByNumberU64(i)
		if err != nil {
			s.evHandler("state: QueryBlocksByNumber: ERROR: %s", err)
			return nil, err
		}
		out = append(out, block)
	}

	return out, nil
}

// QueryAccount returns the world state of the account as of the referenced
// block. Only the current state is kept, so any block that exists resolves
// to the current values.
func (s *State) QueryAccount(addr common.Address, ref string) (database.Account, error) {
	if _, err := s.blocks.GetByNumber(ref); err != nil {
		return database.Account{}, err
	}

	return s.db.Query(addr), nil
}

// QueryBalance returns the balance of the account in wei.
func (s *State) QueryBalance(addr common.Address, ref string) (*big.Int, error) {
	acc, err := s.QueryAccount(addr, ref)
	if err != nil {
		return nil, err
	}

	return acc.Balance.ToBig(), nil
}

// QueryNonce returns the number of transactions sent by the account.
func (s *State) QueryNonce(addr common.Address, ref string) (uint64, error) {
	acc, err := s.QueryAccount(addr, ref)
	if err != nil {
		return 0, err
	}

	return acc.Nonce, nil
}

// QueryAccounts returns a copy of every account in the world state.
func (s *State) QueryAccounts() map[common.Address]database.Account {
	return s.db.Copy()
}
