package ethapi

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func (a *API) blockNumber(ctx context.Context, call jsonrpc.Call) (any, error) {
	return hexutil.Uint64(a.state.RetrieveBlockNumber()), nil
}

func (a *API) chainID(ctx context.Context, call jsonrpc.Call) (any, error) {
	return (*hexutil.Big)(a.state.ChainID()), nil
}

func (a *API) gasPrice(ctx context.Context, call jsonrpc.Call) (any, error) {
	return (*hexutil.Big)(a.state.GasPrice()), nil
}

func (a *API) getBalance(ctx context.Context, call jsonrpc.Call) (any, error) {
	var addr common.Address
	var rawRef json.RawMessage
	if err := call.Bind(1, &addr, &rawRef); err != nil {
		return nil, err
	}

	ref, err := blockRef(rawRef)
	if err != nil {
		return nil, err
	}

	balance, err := a.state.QueryBalance(addr, ref)
	if err != nil {
		return nil, err
	}

	return (*hexutil.Big)(balance), nil
}

func (a *API) getTransactionCount(ctx context.Context, call jsonrpc.Call) (any, error) {
	var addr common.Address
	var rawRef json.RawMessage
	if err := call.Bind(1, &addr, &rawRef); err != nil {
		return nil, err
	}

	ref, err := blockRef(rawRef)
	if err != nil {
		return nil, err
	}

	nonce, err := a.state.QueryNonce(addr, ref)
	if err != nil {
		return nil, err
	}

	return hexutil.Uint64(nonce), nil
}

// =============================================================================

func (a *API) getBlockByNumber(ctx context.Context, call jsonrpc.Call) (any, error) {
	var rawRef json.RawMessage
	var fullTx bool
	if err := call.Bind(1, &rawRef, &fullTx); err != nil {
		return nil, err
	}

	ref, err := blockRef(rawRef)
	if err != nil {
		return nil, err
	}

	block, err := a.state.QueryBlockByNumber(ref)
	switch {
	case errors.Is(err, state.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}

	return marshalBlock(block, fullTx, a.state.ChainID()), nil
}

func (a *API) getBlockByHash(ctx context.Context, call jsonrpc.Call) (any, error) {
	var hash common.Hash
	var fullTx bool
	if err := call.Bind(1, &hash, &fullTx); err != nil {
		return nil, err
	}

	block, err := a.state.QueryBlockByHash(hash)
	switch {
	case errors.Is(err, state.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}

	return marshalBlock(block, fullTx, a.state.ChainID()), nil
}

func (a *API) getTransactionByHash(ctx context.Context, call jsonrpc.Call) (any, error) {
	var hash common.Hash
	if err := call.Bind(1, &hash); err != nil {
		return nil, err
	}

	info, err := a.state.QueryTransaction(hash)
	switch {
	case errors.Is(err, state.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}

	return marshalTxInfo(info, a.state.ChainID()), nil
}

func (a *API) getTransactionReceipt(ctx context.Context, call jsonrpc.Call) (any, error) {
	var hash common.Hash
	if err := call.Bind(1, &hash); err != nil {
		return nil, err
	}

	receipt, err := a.state.QueryReceipt(hash)
	switch {
	case errors.Is(err, state.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}

	return marshalReceipt(receipt), nil
}

// =============================================================================

func (a *API) netVersion(ctx context.Context, call jsonrpc.Call) (any, error) {
	return strconv.FormatUint(a.state.NetworkID(), 10), nil
}

func (a *API) netListening(ctx context.Context, call jsonrpc.Call) (any, error) {
	return true, nil
}

func (a *API) clientVersion(ctx context.Context, call jsonrpc.Call) (any, error) {
	return a.clientVersionString(), nil
}

func (a *API) sha3(ctx context.Context, call jsonrpc.Call) (any, error) {
	var data hexutil.Bytes
	if err := call.Bind(1, &data); err != nil {
		return nil, err
	}

	return hexutil.Bytes(crypto.Keccak256(data)), nil
}
