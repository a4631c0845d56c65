// Package ethapi implements the Ethereum JSON-RPC methods served by the node
// on top of the chain state.
package ethapi

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
	"github.com/ardanlabs/ethsim/foundation/events"
	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config represents the values required by the API.
type Config struct {
	Log     *zap.SugaredLogger
	State   *state.State
	Heads   *events.Events[*types.Header]
	Version string
}

// API serves the eth, personal, net, web3 and evm namespaces.
type API struct {
	log     *zap.SugaredLogger
	state   *state.State
	heads   *events.Events[*types.Header]
	version string
}

// New constructs the API for the specified chain state.
func New(cfg Config) *API {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &API{
		log:     log,
		state:   cfg.State,
		heads:   cfg.Heads,
		version: cfg.Version,
	}
}

// Register adds every method of the API to the dispatcher.
func (a *API) Register(d *jsonrpc.Dispatcher) {
	methods := map[string]jsonrpc.Handler{
		"eth_accounts":              a.accounts,
		"eth_sign":                  a.sign,
		"eth_sendTransaction":       a.sendTransaction,
		"eth_sendRawTransaction":    a.sendRawTransaction,
		"eth_getTransactionReceipt": a.getTransactionReceipt,
		"eth_getTransactionByHash":  a.getTransactionByHash,
		"eth_getBlockByNumber":      a.getBlockByNumber,
		"eth_getBlockByHash":        a.getBlockByHash,
		"eth_blockNumber":           a.blockNumber,
		"eth_getBalance":            a.getBalance,
		"eth_getTransactionCount":   a.getTransactionCount,
		"eth_chainId":               a.chainID,
		"eth_gasPrice":              a.gasPrice,

		"personal_listAccounts":    a.accounts,
		"personal_newAccount":      a.newAccount,
		"personal_unlockAccount":   a.unlockAccount,
		"personal_lockAccount":     a.lockAccount,
		"personal_sendTransaction": a.personalSendTransaction,
		"personal_importRawKey":    a.importRawKey,
		"personal_sign":            a.personalSign,
		"personal_ecRecover":       a.ecRecover,
		"net_version":              a.netVersion,
		"net_listening":            a.netListening,
		"web3_clientVersion":       a.clientVersion,
		"web3_sha3":                a.sha3,
		"evm_mine":                 a.mine,
	}

	for method, handler := range methods {
		d.Register(method, rpcErrors(handler))
	}

	d.RegisterSubscription("eth_subscribe", rpcErrors(a.subscribe))
	d.RegisterSubscription("eth_unsubscribe", rpcErrors(a.unsubscribe))
}

// rpcErrors converts the errors returned by the handler into error objects
// with stable messages.
func rpcErrors(handler jsonrpc.Handler) jsonrpc.Handler {
	h := func(ctx context.Context, call jsonrpc.Call) (any, error) {
		result, err := handler(ctx, call)
		if err != nil {
			return nil, toRPCError(err)
		}
		return result, nil
	}

	return h
}

// =============================================================================

// subscriptionID constructs a new random subscription id.
func subscriptionID() string {
	id := uuid.New()
	return "0x" + hex.EncodeToString(id[:])
}

// clientVersionString returns the version reported by web3_clientVersion.
func (a *API) clientVersionString() string {
	return fmt.Sprintf("EthSim/%s/ethereum-go", a.version)
}
