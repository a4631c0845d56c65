package state

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ardanlabs/ethsim/foundation/blockchain/accounts"
	"github.com/ardanlabs/ethsim/foundation/blockchain/codec"
	"github.com/ardanlabs/ethsim/foundation/blockchain/database"
	"github.com/ardanlabs/ethsim/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethsim/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxArgs represents an unsigned transaction submitted on behalf of an
// account held by the node. Nil fields take their default values.
type TxArgs struct {
	From     common.Address
	To       *common.Address
	Gas      *uint64
	GasPrice *big.Int
	Value    *big.Int
	Data     []byte
	Nonce    *uint64
}

// SendTransaction signs the transaction with the key of an unlocked account
// and mines it into a new block.
func (s *State) SendTransaction(ctx context.Context, args TxArgs) (common.Hash, error) {
	return s.submit(ctx, args, nil)
}

// SendTransactionWithPassphrase signs the transaction with a key decrypted
// for this call only and mines it into a new block. The lock state of the
// account is not changed.
func (s *State) SendTransactionWithPassphrase(ctx context.Context, args TxArgs, passphrase string) (common.Hash, error) {
	return s.submit(ctx, args, &passphrase)
}

// SendRawTransaction mines a transaction signed by the client. The sender must
// be an account known to the node.
func (s *State) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	tx, err := codec.DecodeTx(raw)
	if err != nil {
		return common.Hash{}, err
	}

	from, err := signature.Sender(tx, s.chainID)
	if err != nil {
		return common.Hash{}, err
	}

	var hash common.Hash
	job := func() {
		if !s.accounts.Has(from) && !s.db.Exists(from) {
			err = accounts.ErrUnknownAccount
			return
		}

		if err = s.checkNonce(from, tx.Nonce()); err != nil {
			return
		}

		hash, err = s.commitTx(tx, from)
	}

	if werr := s.do(ctx, job); werr != nil {
		return common.Hash{}, werr
	}

	return hash, err
}

// MineBlock commits the pending block as it is, without transactions.
func (s *State) MineBlock(ctx context.Context) (*codec.Block, error) {
	var block *codec.Block
	var err error

	job := func() {
		block, err = s.mineEmpty()
	}

	if werr := s.do(ctx, job); werr != nil {
		return nil, werr
	}

	return block, err
}

// =============================================================================

// submit runs the complete pipeline for an unsigned transaction inside a
// single worker job.
func (s *State) submit(ctx context.Context, args TxArgs, passphrase *string) (common.Hash, error) {
	var hash common.Hash
	var err error

	job := func() {
		hash, err = s.sendTx(args, passphrase)
	}

	if werr := s.do(ctx, job); werr != nil {
		return common.Hash{}, werr
	}

	return hash, err
}

// sendTx resolves the signer, checks the nonce, signs and commits. It must be
// called from the worker.
func (s *State) sendTx(args TxArgs, passphrase *string) (common.Hash, error) {

	// The lock state or passphrase is checked before anything else so a
	// locked account never learns about its nonce.
	sign, err := s.accounts.Authorize(args.From, passphrase)
	if err != nil {
		return common.Hash{}, err
	}

	expected := s.db.Query(args.From).Nonce

	nonce := expected
	if args.Nonce != nil {
		if err := s.checkNonce(args.From, *args.Nonce); err != nil {
			return common.Hash{}, err
		}
		nonce = *args.Nonce
	}

	gas := uint64(genesis.DefaultTxGas)
	if args.Gas != nil {
		gas = *args.Gas
	}

	gasPrice := s.GasPrice()
	if args.GasPrice != nil {
		gasPrice = args.GasPrice
	}

	value := new(big.Int)
	if args.Value != nil {
		value = args.Value
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       args.To,
		Value:    value,
		Data:     args.Data,
	})

	signed, err := signature.SignTx(tx, s.chainID, sign)
	if err != nil {
		return common.Hash{}, err
	}

	return s.commitTx(signed, args.From)
}

// checkNonce compares the nonce with the one the sender must use next.
func (s *State) checkNonce(from common.Address, nonce uint64) error {
	expected := s.db.Query(from).Nonce

	switch {
	case nonce < expected:
		return fmt.Errorf("%w: address %s, tx: %d state: %d", ErrNonceTooLow, from, nonce, expected)
	case nonce > expected:
		return fmt.Errorf("%w: address %s, tx: %d state: %d", ErrNonceTooHigh, from, nonce, expected)
	}

	return nil
}

// commitTx appends the transaction to the pending block, executes it and
// commits the block. Nothing is written when validation fails. The world
// state is written before the block becomes the latest one and is restored
// if a later write fails. It must be called from the worker.
func (s *State) commitTx(tx *types.Transaction, from common.Address) (common.Hash, error) {
	msg, err := database.NewMessage(tx, from)
	if err != nil {
		return common.Hash{}, err
	}

	pending, err := s.blocks.Pending()
	if err != nil {
		return common.Hash{}, err
	}

	header := pending.Header

	if header.GasUsed+tx.Gas() > header.GasLimit {
		return common.Hash{}, fmt.Errorf("%w: gas %d, limit %d", ErrGasLimit, tx.Gas(), header.GasLimit-header.GasUsed)
	}

	j := s.db.Begin()

	res, err := database.ApplyMessage(j, s.executor, msg, header)
	if err != nil {
		j.Discard()
		return common.Hash{}, err
	}

	receipt := Receipt{
		TxHash:            tx.Hash(),
		TxIndex:           uint64(len(pending.Transactions)),
		BlockNumber:       pending.Number(),
		From:              from,
		To:                tx.To(),
		CumulativeGasUsed: header.GasUsed + res.GasUsed,
		GasUsed:           res.GasUsed,
		ContractAddress:   res.ContractAddress,
		Logs:              res.Logs,
		Status:            res.Status,
		EffectiveGasPrice: tx.GasPrice(),
	}

	pending.Transactions = append(pending.Transactions, tx)
	header.GasUsed += res.GasUsed
	header.Root = j.HashState()

	finalize(pending, []*Receipt{&receipt})

	snap := j.Snapshot()

	// undo puts the world state back and drops the receipt so the chain
	// reads as if the transaction was never submitted.
	undo := func() {
		if err := snap.Restore(); err != nil {
			s.evHandler("state: commitTx: restore: tx[%s] ERROR: %s", tx.Hash(), err)
		}
		s.dropReceipt(tx.Hash())
	}

	if err := j.Commit(); err != nil {
		undo()
		return common.Hash{}, err
	}

	if err := s.persistReceipt(&receipt); err != nil {
		undo()
		return common.Hash{}, err
	}

	if err := s.blocks.Commit(pending); err != nil {
		undo()
		return common.Hash{}, err
	}

	s.evHandler("state: commitTx: block[%d] hash[%s] tx[%s] from[%s] status[%d]", pending.Number(), pending.Hash(), tx.Hash(), from, res.Status)

	s.heads.Send(types.CopyHeader(pending.Header))

	return tx.Hash(), nil
}

// mineEmpty commits the pending block without transactions. It must be called
// from the worker.
func (s *State) mineEmpty() (*codec.Block, error) {
	pending, err := s.blocks.Pending()
	if err != nil {
		return nil, err
	}

	pending.Header.Root = s.db.HashState()
	finalize(pending, nil)

	if err := s.blocks.Commit(pending); err != nil {
		return nil, err
	}

	s.evHandler("state: mineEmpty: block[%d] hash[%s]", pending.Number(), pending.Hash())

	s.heads.Send(types.CopyHeader(pending.Header))

	return pending, nil
}

func coinbase(g genesis.Genesis) common.Address {
	return common.HexToAddress(g.Coinbase)
}
