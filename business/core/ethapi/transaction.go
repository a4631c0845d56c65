package ethapi

import (
	"context"
	"encoding/json"

	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func (a *API) sendTransaction(ctx context.Context, call jsonrpc.Call) (any, error) {
	var args TxArgs
	if err := call.Bind(1, &args); err != nil {
		return nil, err
	}

	tx, err := args.toState()
	if err != nil {
		return nil, err
	}

	return a.state.SendTransaction(ctx, tx)
}

// personalSendTransaction signs with a passphrase used for this call only.
// A missing or non-string passphrase is an invalid password.
func (a *API) personalSendTransaction(ctx context.Context, call jsonrpc.Call) (any, error) {
	var args TxArgs
	var rawPass json.RawMessage
	if err := call.Bind(1, &args, &rawPass); err != nil {
		return nil, err
	}

	pass, err := passphrase(rawPass)
	if err != nil {
		return nil, err
	}

	tx, err := args.toState()
	if err != nil {
		return nil, err
	}

	return a.state.SendTransactionWithPassphrase(ctx, tx, pass)
}

func (a *API) sendRawTransaction(ctx context.Context, call jsonrpc.Call) (any, error) {
	var raw hexutil.Bytes
	if err := call.Bind(1, &raw); err != nil {
		return nil, err
	}

	return a.state.SendRawTransaction(ctx, raw)
}

// mine serves evm_mine by committing an empty block.
func (a *API) mine(ctx context.Context, call jsonrpc.Call) (any, error) {
	if _, err := a.state.MineBlock(ctx); err != nil {
		return nil, err
	}

	return "0x0", nil
}
