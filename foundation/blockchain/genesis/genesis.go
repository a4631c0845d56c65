// Package genesis maintains the parameters of the chain and the initial
// account allocations, optionally loaded from a genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ardanlabs/ethsim/foundation/blockchain/codec"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// Set of default chain parameters.
const (
	DefaultChainID  = 1337
	DefaultGasLimit = 6_721_975
	DefaultGasPrice = 2_000_000_000
	DefaultTxGas    = 90_000
)

// Genesis represents the genesis file.
type Genesis struct {
	Date      time.Time         `json:"date"`
	ChainID   uint64            `json:"chain_id"`   // The chain id used for replay protected signatures.
	NetworkID uint64            `json:"network_id"` // Reported by net_version.
	GasLimit  uint64            `json:"gas_limit"`  // The gas limit of every block.
	GasPrice  uint64            `json:"gas_price"`  // Price in wei used when a transaction doesn't set one.
	Coinbase  string            `json:"coinbase"`   // Account collecting the fees.
	ExtraData string            `json:"extra_data"`
	Balances  map[string]string `json:"balances"` // Wei amounts as decimal or 0x hex strings.
}

// Default returns the genesis used when no file is provided.
func Default() Genesis {
	return Genesis{
		Date:      time.Unix(0, 0).UTC(),
		ChainID:   DefaultChainID,
		NetworkID: DefaultChainID,
		GasLimit:  DefaultGasLimit,
		GasPrice:  DefaultGasPrice,
		Coinbase:  common.Address{}.Hex(),
		Balances:  map[string]string{},
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Missing parameters take their
// default values.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("parse genesis %q: %w", path, err)
	}

	if genesis.Balances == nil {
		genesis.Balances = map[string]string{}
	}

	return genesis, nil
}

// Allocations converts the balances into the form the world state uses.
func (g Genesis) Allocations() (map[common.Address]*uint256.Int, error) {
	allocs := make(map[common.Address]*uint256.Int, len(g.Balances))

	for addr, amount := range g.Balances {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid genesis account %q", addr)
		}

		balance, err := ParseWei(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid genesis balance for %s: %w", addr, err)
		}

		allocs[common.HexToAddress(addr)] = balance
	}

	return allocs, nil
}

// Credit adds a balance for the account, expressed in ether.
func (g *Genesis) Credit(addr common.Address, ether uint64) {
	if g.Balances == nil {
		g.Balances = map[string]string{}
	}

	wei := new(uint256.Int).Mul(uint256.NewInt(ether), uint256.NewInt(params.Ether))
	g.Balances[addr.Hex()] = wei.Dec()
}

// Block constructs block 0 with the specified state root.
func (g Genesis) Block(root common.Hash) *codec.Block {
	header := types.Header{
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    common.HexToAddress(g.Coinbase),
		Root:        root,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  new(big.Int),
		Number:      new(big.Int),
		GasLimit:    g.GasLimit,
		Time:        uint64(g.Date.Unix()),
		Extra:       []byte(g.ExtraData),
	}

	return codec.NewBlock(&header)
}

// =============================================================================

// ParseWei parses a decimal or 0x prefixed hex amount.
func ParseWei(s string) (*uint256.Int, error) {
	if has0xPrefix(s) {
		b, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, err
		}

		v, overflow := uint256.FromBig(b)
		if overflow {
			return nil, fmt.Errorf("amount %q overflows 256 bits", s)
		}
		return v, nil
	}

	return uint256.FromDecimal(s)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
