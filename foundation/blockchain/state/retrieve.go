package state

import (
	"github.com/ardanlabs/ethsim/foundation/blockchain/codec"
	"github.com/ethereum/go-ethereum/common"
)

// RetrieveLatestBlock returns the current latest block.
func (s *State) RetrieveLatestBlock() (*codec.Block, error) {
	return s.blocks.Latest()
}

// RetrieveEarliestBlock returns the genesis block.
func (s *State) RetrieveEarliestBlock() (*codec.Block, error) {
	return s.blocks.Earliest()
}

// RetrieveBlockNumber returns the number of the latest block.
func (s *State) RetrieveBlockNumber() uint64 {
	latest, err := s.blocks.Latest()
	if err != nil {
		return 0
	}
	return latest.Number()
}

// RetrieveStateRoot returns the root of the current world state.
func (s *State) RetrieveStateRoot() common.Hash {
	return s.db.HashState()
}

// RetrieveAddresses returns the accounts held by the node in creation order.
func (s *State) RetrieveAddresses() []common.Address {
	return s.accounts.Addresses()
}
