package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/ethsim/foundation/blockchain/blockstore"
	"github.com/ardanlabs/ethsim/foundation/blockchain/codec"
	"github.com/ardanlabs/ethsim/foundation/blockchain/kv"
	"github.com/ardanlabs/ethsim/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

// Receipt is the outcome of a committed transaction.
type Receipt struct {
	TxHash            common.Hash
	TxIndex           uint64
	BlockHash         common.Hash
	BlockNumber       uint64
	From              common.Address
	To                *common.Address
	CumulativeGasUsed uint64
	GasUsed           uint64
	ContractAddress   *common.Address
	Logs              []*types.Log
	Bloom             types.Bloom
	Status            uint64
	EffectiveGasPrice *big.Int
}

// TxInfo is a committed transaction with its position in the chain.
type TxInfo struct {
	Tx          *types.Transaction
	From        common.Address
	BlockHash   common.Hash
	BlockNumber uint64
	Index       uint64
}

// =============================================================================

// finalize computes the transaction and receipt roots and the bloom of the
// block, then stamps the block position into the receipts and their logs.
func finalize(block *codec.Block, receipts []*Receipt) {
	header := block.Header

	consensus := make(types.Receipts, len(receipts))
	var bloom types.Bloom

	for i, r := range receipts {
		r.Bloom = logsBloom(r.Logs)
		bloom = orBloom(bloom, r.Bloom)

		consensus[i] = &types.Receipt{
			Type:              types.LegacyTxType,
			Status:            r.Status,
			CumulativeGasUsed: r.CumulativeGasUsed,
			Bloom:             r.Bloom,
			Logs:              r.Logs,
		}
	}

	header.TxHash = types.EmptyTxsHash
	if len(block.Transactions) > 0 {
		header.TxHash = types.DeriveSha(types.Transactions(block.Transactions), trie.NewStackTrie(nil))
	}

	header.ReceiptHash = types.EmptyReceiptsHash
	if len(consensus) > 0 {
		header.ReceiptHash = types.DeriveSha(consensus, trie.NewStackTrie(nil))
	}

	header.Bloom = bloom

	hash := block.Hash()
	var logIndex uint
	for _, r := range receipts {
		r.BlockHash = hash
		for _, l := range r.Logs {
			l.BlockNumber = r.BlockNumber
			l.BlockHash = hash
			l.TxHash = r.TxHash
			l.TxIndex = uint(r.TxIndex)
			l.Index = logIndex
			logIndex++
		}
	}
}

func logsBloom(logs []*types.Log) types.Bloom {
	var bloom types.Bloom
	for _, l := range logs {
		bloom.Add(l.Address.Bytes())
		for _, topic := range l.Topics {
			bloom.Add(topic.Bytes())
		}
	}
	return bloom
}

func orBloom(a types.Bloom, b types.Bloom) types.Bloom {
	for i := range a {
		a[i] |= b[i]
	}
	return a
}

// =============================================================================

// storedReceipt is the persisted form of a receipt. Block position is kept in
// the lookup entry.
type storedReceipt struct {
	Status            uint64
	CumulativeGasUsed uint64
	GasUsed           uint64
	From              common.Address
	To                []byte
	ContractAddress   []byte
	EffectiveGasPrice *big.Int
	Logs              []*types.Log
}

// lookup locates a transaction in the chain.
type lookup struct {
	BlockNumber uint64
	Index       uint64
}

// persistReceipt writes the receipt and the transaction lookup entry.
func (s *State) persistReceipt(r *Receipt) error {
	sr := storedReceipt{
		Status:            r.Status,
		CumulativeGasUsed: r.CumulativeGasUsed,
		GasUsed:           r.GasUsed,
		From:              r.From,
		EffectiveGasPrice: r.EffectiveGasPrice,
		Logs:              r.Logs,
	}

	if r.To != nil {
		sr.To = r.To.Bytes()
	}
	if r.ContractAddress != nil {
		sr.ContractAddress = r.ContractAddress.Bytes()
	}
	if sr.EffectiveGasPrice == nil {
		sr.EffectiveGasPrice = new(big.Int)
	}
	if sr.Logs == nil {
		sr.Logs = []*types.Log{}
	}

	data, err := rlp.EncodeToBytes(sr)
	if err != nil {
		return err
	}

	if err := s.receipts.Put(r.TxHash.Bytes(), data); err != nil {
		return fmt.Errorf("%w: receipt: %w", blockstore.ErrPersistence, err)
	}

	data, err = rlp.EncodeToBytes(lookup{BlockNumber: r.BlockNumber, Index: r.TxIndex})
	if err != nil {
		return err
	}

	if err := s.lookups.Put(r.TxHash.Bytes(), data); err != nil {
		return fmt.Errorf("%w: lookup: %w", blockstore.ErrPersistence, err)
	}

	return nil
}

// dropReceipt removes the receipt and lookup entries of a transaction whose
// block was never committed.
func (s *State) dropReceipt(hash common.Hash) {
	if err := s.receipts.Delete(hash.Bytes()); err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.evHandler("state: dropReceipt: receipt[%s] ERROR: %s", hash, err)
	}
	if err := s.lookups.Delete(hash.Bytes()); err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.evHandler("state: dropReceipt: lookup[%s] ERROR: %s", hash, err)
	}
}

// QueryReceipt returns the receipt of a committed transaction.
func (s *State) QueryReceipt(hash common.Hash) (*Receipt, error) {
	lk, block, err := s.locate(hash)
	if err != nil {
		return nil, err
	}

	data, err := s.receipts.Get(hash.Bytes())
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: receipt: %w", blockstore.ErrPersistence, err)
	}

	var sr storedReceipt
	if err := rlp.DecodeBytes(data, &sr); err != nil {
		return nil, fmt.Errorf("%w: receipt: %w", codec.ErrMalformedEncoding, err)
	}

	r := Receipt{
		TxHash:            hash,
		TxIndex:           lk.Index,
		BlockHash:         block.Hash(),
		BlockNumber:       lk.BlockNumber,
		From:              sr.From,
		CumulativeGasUsed: sr.CumulativeGasUsed,
		GasUsed:           sr.GasUsed,
		Logs:              sr.Logs,
		Status:            sr.Status,
		EffectiveGasPrice: sr.EffectiveGasPrice,
	}

	if len(sr.To) > 0 {
		to := common.BytesToAddress(sr.To)
		r.To = &to
	}
	if len(sr.ContractAddress) > 0 {
		addr := common.BytesToAddress(sr.ContractAddress)
		r.ContractAddress = &addr
	}

	finalizeLogs(&r)

	return &r, nil
}

// QueryTransaction returns a committed transaction and its position.
func (s *State) QueryTransaction(hash common.Hash) (*TxInfo, error) {
	lk, block, err := s.locate(hash)
	if err != nil {
		return nil, err
	}

	tx := block.Transactions[lk.Index]

	from, err := signature.Sender(tx, s.chainID)
	if err != nil {
		return nil, err
	}

	info := TxInfo{
		Tx:          tx,
		From:        from,
		BlockHash:   block.Hash(),
		BlockNumber: lk.BlockNumber,
		Index:       lk.Index,
	}

	return &info, nil
}

// locate resolves the lookup entry and the block of a transaction.
func (s *State) locate(hash common.Hash) (lookup, *codec.Block, error) {
	data, err := s.lookups.Get(hash.Bytes())
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return lookup{}, nil, ErrNotFound
	case err != nil:
		return lookup{}, nil, fmt.Errorf("%w: lookup: %w", blockstore.ErrPersistence, err)
	}

	var lk lookup
	if err := rlp.DecodeBytes(data, &lk); err != nil {
		return lookup{}, nil, fmt.Errorf("%w: lookup: %w", codec.ErrMalformedEncoding, err)
	}

	block, err := s.blocks.GetByNumberU64(lk.BlockNumber)
	if err != nil {
		return lookup{}, nil, err
	}

	if lk.Index >= uint64(len(block.Transactions)) || block.Transactions[lk.Index].Hash() != hash {
		return lookup{}, nil, ErrNotFound
	}

	return lk, block, nil
}

// finalizeLogs restores the positional fields of logs read from storage.
func finalizeLogs(r *Receipt) {
	r.Bloom = logsBloom(r.Logs)

	var index uint
	for _, l := range r.Logs {
		l.BlockNumber = r.BlockNumber
		l.BlockHash = r.BlockHash
		l.TxHash = r.TxHash
		l.TxIndex = uint(r.TxIndex)
		l.Index = index
		index++
	}
}
