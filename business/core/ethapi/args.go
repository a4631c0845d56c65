package ethapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ardanlabs/ethsim/foundation/blockchain/accounts"
	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ardanlabs/ethsim/foundation/validate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// defaultUnlock is the unlock duration used when a call doesn't provide one.
const defaultUnlock = 300 * time.Second

// Quantity is an unsigned integer provided as a JSON number or as a decimal
// or 0x prefixed hex string.
type Quantity uint64

// UnmarshalJSON implements the json.Unmarshaler interface.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	input := string(bytes.TrimSpace(data))
	if len(input) >= 2 && input[0] == '"' && input[len(input)-1] == '"' {
		input = input[1 : len(input)-1]
	}

	value, err := strconv.ParseUint(input, 10, 64)
	if err != nil {
		if value, err = hexutil.DecodeUint64(input); err != nil {
			return fmt.Errorf("invalid quantity %q", input)
		}
	}

	*q = Quantity(value)
	return nil
}

// BigQuantity is a 256 bit unsigned integer provided as a JSON number or as
// a decimal or 0x prefixed hex string.
type BigQuantity big.Int

// UnmarshalJSON implements the json.Unmarshaler interface.
func (q *BigQuantity) UnmarshalJSON(data []byte) error {
	input := string(bytes.TrimSpace(data))
	if len(input) >= 2 && input[0] == '"' && input[len(input)-1] == '"' {
		input = input[1 : len(input)-1]
	}

	value, ok := new(big.Int).SetString(input, 10)
	if !ok {
		var err error
		if value, err = hexutil.DecodeBig(input); err != nil {
			return fmt.Errorf("invalid quantity %q", input)
		}
	}

	if value.Sign() < 0 {
		return fmt.Errorf("negative quantity %q", input)
	}

	if value.BitLen() > 256 {
		return fmt.Errorf("quantity %q exceeds 256 bits", input)
	}

	*q = BigQuantity(*value)
	return nil
}

// ToInt returns the value as a big integer.
func (q *BigQuantity) ToInt() *big.Int {
	if q == nil {
		return nil
	}
	return (*big.Int)(q)
}

// =============================================================================

// TxArgs represents the transaction object of eth_sendTransaction and
// personal_sendTransaction.
type TxArgs struct {
	From     *common.Address `json:"from" validate:"required"`
	To       *common.Address `json:"to"`
	Gas      *Quantity       `json:"gas"`
	GasLimit *Quantity       `json:"gasLimit"`
	GasPrice *BigQuantity    `json:"gasPrice"`
	Value    *BigQuantity    `json:"value"`
	Data     *hexutil.Bytes  `json:"data"`
	Input    *hexutil.Bytes  `json:"input"`
	Nonce    *Quantity       `json:"nonce"`
}

// toState validates the arguments and converts them for the pipeline.
func (args TxArgs) toState() (state.TxArgs, error) {
	if err := validate.Check(args); err != nil {
		return state.TxArgs{}, err
	}

	if args.Data != nil && args.Input != nil && !bytes.Equal(*args.Data, *args.Input) {
		return state.TxArgs{}, jsonrpc.InvalidParams("both data and input are set and not equal")
	}

	tx := state.TxArgs{
		From:     *args.From,
		To:       args.To,
		GasPrice: args.GasPrice.ToInt(),
		Value:    args.Value.ToInt(),
	}

	switch {
	case args.Gas != nil:
		gas := uint64(*args.Gas)
		tx.Gas = &gas
	case args.GasLimit != nil:
		gas := uint64(*args.GasLimit)
		tx.Gas = &gas
	}

	switch {
	case args.Input != nil:
		tx.Data = *args.Input
	case args.Data != nil:
		tx.Data = *args.Data
	}

	if args.Nonce != nil {
		nonce := uint64(*args.Nonce)
		tx.Nonce = &nonce
	}

	return tx, nil
}

// =============================================================================

// passphrase decodes a passphrase argument. Anything other than a JSON
// string is rejected as an invalid password.
func passphrase(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", accounts.ErrInvalidPassword
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", accounts.ErrInvalidPassword
	}

	return s, nil
}

// optionalPassphrase decodes a passphrase argument that may be absent.
func optionalPassphrase(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	s, err := passphrase(raw)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// unlockDuration decodes the duration in seconds of an unlock. An absent
// duration takes the default and zero unlocks indefinitely.
func unlockDuration(raw json.RawMessage) (time.Duration, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return defaultUnlock, nil
	}

	var q Quantity
	if err := json.Unmarshal(raw, &q); err != nil {
		return 0, jsonrpc.InvalidParams("invalid duration: %s", err)
	}

	const maxSeconds = uint64(1<<63-1) / uint64(time.Second)
	if uint64(q) > maxSeconds {
		return 0, jsonrpc.InvalidParams("duration too large")
	}

	return time.Duration(q) * time.Second, nil
}

// blockRef decodes an optional block reference. The latest block is used
// when absent.
func blockRef(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "latest", nil
	}

	if raw[0] != '"' {
		var n Quantity
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", jsonrpc.InvalidParams("invalid block tag")
		}
		return strconv.FormatUint(uint64(n), 10), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", jsonrpc.InvalidParams("invalid block tag")
	}

	return s, nil
}
