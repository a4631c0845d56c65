package ethapi

import (
	"context"
	"encoding/json"

	"github.com/ardanlabs/ethsim/foundation/blockchain/signature"
	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// accounts serves eth_accounts and personal_listAccounts.
func (a *API) accounts(ctx context.Context, call jsonrpc.Call) (any, error) {
	addrs := a.state.RetrieveAddresses()
	if addrs == nil {
		addrs = []common.Address{}
	}
	return addrs, nil
}

func (a *API) newAccount(ctx context.Context, call jsonrpc.Call) (any, error) {
	var raw json.RawMessage
	if err := call.Bind(0, &raw); err != nil {
		return nil, err
	}

	pass, err := optionalPassphrase(raw)
	if err != nil {
		return nil, err
	}

	return a.state.NewAccount(ctx, pass)
}

func (a *API) unlockAccount(ctx context.Context, call jsonrpc.Call) (any, error) {
	var addr common.Address
	var rawPass, rawDuration json.RawMessage
	if err := call.Bind(1, &addr, &rawPass, &rawDuration); err != nil {
		return nil, err
	}

	pass, err := passphrase(rawPass)
	if err != nil {
		return nil, err
	}

	duration, err := unlockDuration(rawDuration)
	if err != nil {
		return nil, err
	}

	if err := a.state.UnlockAccount(ctx, addr, pass, duration); err != nil {
		return nil, err
	}

	return true, nil
}

func (a *API) lockAccount(ctx context.Context, call jsonrpc.Call) (any, error) {
	var addr common.Address
	if err := call.Bind(1, &addr); err != nil {
		return nil, err
	}

	if err := a.state.LockAccount(ctx, addr); err != nil {
		return nil, err
	}

	return true, nil
}

func (a *API) importRawKey(ctx context.Context, call jsonrpc.Call) (any, error) {
	var key string
	var rawPass json.RawMessage
	if err := call.Bind(2, &key, &rawPass); err != nil {
		return nil, err
	}

	pass, err := passphrase(rawPass)
	if err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(trim0x(key))
	if err != nil {
		return nil, jsonrpc.InvalidParams("invalid private key: %s", err)
	}

	return a.state.ImportRawKey(ctx, privateKey, pass)
}

// sign serves eth_sign which takes the address first and requires the
// account to be unlocked.
func (a *API) sign(ctx context.Context, call jsonrpc.Call) (any, error) {
	var addr common.Address
	var data hexutil.Bytes
	if err := call.Bind(2, &addr, &data); err != nil {
		return nil, err
	}

	sig, err := a.state.Sign(ctx, addr, data)
	if err != nil {
		return nil, err
	}

	return hexutil.Bytes(sig), nil
}

// personalSign serves personal_sign which takes the data first and signs
// with a passphrase without unlocking the account.
func (a *API) personalSign(ctx context.Context, call jsonrpc.Call) (any, error) {
	var data hexutil.Bytes
	var addr common.Address
	var rawPass json.RawMessage
	if err := call.Bind(3, &data, &addr, &rawPass); err != nil {
		return nil, err
	}

	pass, err := passphrase(rawPass)
	if err != nil {
		return nil, err
	}

	sig, err := a.state.SignWithPassphrase(addr, pass, data)
	if err != nil {
		return nil, err
	}

	return hexutil.Bytes(sig), nil
}

func (a *API) ecRecover(ctx context.Context, call jsonrpc.Call) (any, error) {
	var data, sig hexutil.Bytes
	if err := call.Bind(2, &data, &sig); err != nil {
		return nil, err
	}

	return signature.RecoverText(data, sig)
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
