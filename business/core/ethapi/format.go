package ethapi

import (
	"math/big"

	"github.com/ardanlabs/ethsim/foundation/blockchain/codec"
	"github.com/ardanlabs/ethsim/foundation/blockchain/signature"
	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// marshalHeader converts the header into the form used by block lookups and
// newHeads notifications.
func marshalHeader(head *types.Header) map[string]any {
	return map[string]any{
		"number":           (*hexutil.Big)(head.Number),
		"hash":             head.Hash(),
		"parentHash":       head.ParentHash,
		"nonce":            head.Nonce,
		"mixHash":          head.MixDigest,
		"sha3Uncles":       head.UncleHash,
		"logsBloom":        head.Bloom,
		"stateRoot":        head.Root,
		"miner":            head.Coinbase,
		"difficulty":       (*hexutil.Big)(head.Difficulty),
		"extraData":        hexutil.Bytes(head.Extra),
		"gasLimit":         hexutil.Uint64(head.GasLimit),
		"gasUsed":          hexutil.Uint64(head.GasUsed),
		"timestamp":        hexutil.Uint64(head.Time),
		"transactionsRoot": head.TxHash,
		"receiptsRoot":     head.ReceiptHash,
	}
}

// marshalBlock converts the block into its JSON-RPC form. Transactions are
// returned as hashes unless fullTx is set.
func marshalBlock(block *codec.Block, fullTx bool, chainID *big.Int) map[string]any {
	fields := marshalHeader(block.Header)
	fields["size"] = hexutil.Uint64(block.Size())
	fields["totalDifficulty"] = (*hexutil.Big)(new(big.Int))

	hash := block.Hash()
	number := block.Number()

	txs := make([]any, len(block.Transactions))
	for i, tx := range block.Transactions {
		if !fullTx {
			txs[i] = tx.Hash()
			continue
		}

		from, _ := signature.Sender(tx, chainID)
		txs[i] = marshalTransaction(tx, from, hash, number, uint64(i), chainID)
	}
	fields["transactions"] = txs

	uncles := make([]common.Hash, len(block.Uncles))
	for i, uncle := range block.Uncles {
		uncles[i] = uncle.Hash()
	}
	fields["uncles"] = uncles

	return fields
}

// marshalTransaction converts a committed transaction into its JSON-RPC form.
func marshalTransaction(tx *types.Transaction, from common.Address, blockHash common.Hash, blockNumber uint64, index uint64, chainID *big.Int) map[string]any {
	v, r, s := tx.RawSignatureValues()

	return map[string]any{
		"type":             hexutil.Uint64(tx.Type()),
		"hash":             tx.Hash(),
		"nonce":            hexutil.Uint64(tx.Nonce()),
		"blockHash":        blockHash,
		"blockNumber":      hexutil.Uint64(blockNumber),
		"transactionIndex": hexutil.Uint64(index),
		"from":             from,
		"to":               tx.To(),
		"value":            (*hexutil.Big)(tx.Value()),
		"gas":              hexutil.Uint64(tx.Gas()),
		"gasPrice":         (*hexutil.Big)(tx.GasPrice()),
		"input":            hexutil.Bytes(tx.Data()),
		"chainId":          (*hexutil.Big)(chainID),
		"v":                (*hexutil.Big)(v),
		"r":                (*hexutil.Big)(r),
		"s":                (*hexutil.Big)(s),
	}
}

// marshalTxInfo converts a transaction lookup into its JSON-RPC form.
func marshalTxInfo(info *state.TxInfo, chainID *big.Int) map[string]any {
	return marshalTransaction(info.Tx, info.From, info.BlockHash, info.BlockNumber, info.Index, chainID)
}

// marshalReceipt converts the receipt into its JSON-RPC form. The status is
// reported as a plain integer.
func marshalReceipt(r *state.Receipt) map[string]any {
	logs := r.Logs
	if logs == nil {
		logs = []*types.Log{}
	}

	return map[string]any{
		"transactionHash":   r.TxHash,
		"transactionIndex":  hexutil.Uint64(r.TxIndex),
		"blockHash":         r.BlockHash,
		"blockNumber":       hexutil.Uint64(r.BlockNumber),
		"from":              r.From,
		"to":                r.To,
		"cumulativeGasUsed": hexutil.Uint64(r.CumulativeGasUsed),
		"gasUsed":           hexutil.Uint64(r.GasUsed),
		"effectiveGasPrice": (*hexutil.Big)(r.EffectiveGasPrice),
		"contractAddress":   r.ContractAddress,
		"logs":              logs,
		"logsBloom":         r.Bloom,
		"status":            r.Status,
		"type":              hexutil.Uint64(types.LegacyTxType),
	}
}
