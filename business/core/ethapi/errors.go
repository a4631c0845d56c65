package ethapi

import (
	"errors"

	"github.com/ardanlabs/ethsim/foundation/blockchain/accounts"
	"github.com/ardanlabs/ethsim/foundation/blockchain/blockstore"
	"github.com/ardanlabs/ethsim/foundation/blockchain/codec"
	"github.com/ardanlabs/ethsim/foundation/blockchain/database"
	"github.com/ardanlabs/ethsim/foundation/blockchain/signature"
	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ardanlabs/ethsim/foundation/validate"
)

// mapping pairs the sentinel errors of the chain with the error object
// reported to clients. The first match wins.
var mapping = []struct {
	err  error
	code int
	msg  string
}{
	{blockstore.ErrInvalidTag, jsonrpc.CodeInvalidParams, "invalid block tag"},
	{accounts.ErrAccountLocked, jsonrpc.CodeServer, "signer account is locked"},
	{accounts.ErrInvalidPassword, jsonrpc.CodeServer, "Invalid password"},
	{accounts.ErrUnknownAccount, jsonrpc.CodeServer, "unknown account"},
	{accounts.ErrAccountExists, jsonrpc.CodeServer, "account already exists"},
	{state.ErrNonceTooLow, jsonrpc.CodeServer, "nonce too low"},
	{state.ErrNonceTooHigh, jsonrpc.CodeServer, "nonce too high"},
	{state.ErrShutdown, jsonrpc.CodeServer, "node is shutting down"},
	{codec.ErrMalformedEncoding, jsonrpc.CodeServer, "malformed block encoding"},
	{blockstore.ErrPersistence, jsonrpc.CodeServer, "persistence failure"},
	{database.ErrPersistence, jsonrpc.CodeServer, "persistence failure"},
	{blockstore.ErrNotFound, jsonrpc.CodeServer, "not found"},
	{signature.ErrInvalidSignature, jsonrpc.CodeInvalidParams, "invalid signature"},
	{database.ErrUint256Overflow, jsonrpc.CodeInvalidParams, "value or gas price out of uint256 range"},
}

// toRPCError converts errors of the chain into error objects with stable
// messages. Errors without a mapping keep their own message.
func toRPCError(err error) error {
	if err == nil {
		return nil
	}

	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	if fe := validate.GetFieldErrors(err); fe != nil {
		return &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: fe.Error(),
			Data:    fe.Fields(),
		}
	}

	for _, m := range mapping {
		if errors.Is(err, m.err) {
			return jsonrpc.NewError(m.code, "%s", m.msg)
		}
	}

	return jsonrpc.NewError(jsonrpc.CodeServer, "%s", err.Error())
}
