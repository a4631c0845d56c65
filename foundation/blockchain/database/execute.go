package database

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// Set of error variables for transaction execution.
var (
	ErrIntrinsicGas      = errors.New("intrinsic gas too low")
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")
	ErrGasUintOverflow   = errors.New("gas uint64 overflow")
	ErrUint256Overflow   = errors.New("value or gas price out of uint256 range")
)

// Set of receipt status values.
const (
	StatusFailed  uint64 = 0
	StatusSuccess uint64 = 1
)

// =============================================================================

// Message is a transaction with its resolved sender.
type Message struct {
	From     common.Address
	To       *common.Address
	Nonce    uint64
	Value    *uint256.Int
	Gas      uint64
	GasPrice *uint256.Int
	Data     []byte
}

// NewMessage converts a signed transaction into a message. Amounts that are
// negative or don't fit in 256 bits are rejected.
func NewMessage(tx *types.Transaction, from common.Address) (Message, error) {
	value, overflow := uint256.FromBig(tx.Value())
	if overflow || tx.Value().Sign() < 0 {
		return Message{}, fmt.Errorf("%w: value %s", ErrUint256Overflow, tx.Value())
	}

	price, overflow := uint256.FromBig(tx.GasPrice())
	if overflow || tx.GasPrice().Sign() < 0 {
		return Message{}, fmt.Errorf("%w: gas price %s", ErrUint256Overflow, tx.GasPrice())
	}

	msg := Message{
		From:     from,
		To:       tx.To(),
		Nonce:    tx.Nonce(),
		Value:    value,
		Gas:      tx.Gas(),
		GasPrice: price,
		Data:     tx.Data(),
	}

	return msg, nil
}

// Result is what an executor reports for a single message.
type Result struct {
	Status          uint64
	GasUsed         uint64
	Logs            []*types.Log
	ContractAddress *common.Address
}

// Executor interface represents the behavior required to run a message
// against the state. The executor moves value and reports the gas it used;
// nonce and fee accounting are handled by ApplyMessage.
type Executor interface {
	Execute(j *Journal, msg Message, header *types.Header) (Result, error)
}

// =============================================================================

// IntrinsicGas computes the gas a message costs before any execution.
func IntrinsicGas(data []byte, creation bool) (uint64, error) {
	gas := params.TxGas
	if creation {
		gas = params.TxGasContractCreation
	}

	if len(data) == 0 {
		return gas, nil
	}

	var nz uint64
	for _, b := range data {
		if b != 0 {
			nz++
		}
	}
	z := uint64(len(data)) - nz

	const maxUint64 = 1<<64 - 1
	if (maxUint64-gas)/params.TxDataNonZeroGasEIP2028 < nz {
		return 0, ErrGasUintOverflow
	}
	gas += nz * params.TxDataNonZeroGasEIP2028

	if (maxUint64-gas)/params.TxDataZeroGas < z {
		return 0, ErrGasUintOverflow
	}
	gas += z * params.TxDataZeroGas

	return gas, nil
}

// Validate checks the message can pay for itself against the journal
// without recording anything.
func Validate(j *Journal, msg Message) error {
	intrinsic, err := IntrinsicGas(msg.Data, msg.To == nil)
	if err != nil {
		return err
	}

	if msg.Gas < intrinsic {
		return fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGas, msg.Gas, intrinsic)
	}

	cost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(msg.Gas), price(msg))
	if overflow {
		return ErrInsufficientFunds
	}

	if _, overflow := cost.AddOverflow(cost, value(msg)); overflow {
		return ErrInsufficientFunds
	}

	balance := j.Account(msg.From).Balance
	if balance.Lt(cost) {
		return fmt.Errorf("%w: address %s have %s want %s", ErrInsufficientFunds, msg.From, balance.Dec(), cost.Dec())
	}

	return nil
}

// ApplyMessage performs the business logic for applying a message to the
// journal. The sender buys all the gas up front, the executor runs, unused
// gas is refunded and the coinbase collects the fee for the gas used. The
// sender nonce is advanced regardless of the execution status.
func ApplyMessage(j *Journal, exec Executor, msg Message, header *types.Header) (Result, error) {
	if err := Validate(j, msg); err != nil {
		return Result{}, err
	}

	gasPrice := price(msg)

	upfront := new(uint256.Int).Mul(uint256.NewInt(msg.Gas), gasPrice)
	j.SubBalance(msg.From, upfront)

	from := j.Account(msg.From)
	from.Nonce++
	j.SetAccount(msg.From, from)

	res, err := exec.Execute(j, msg, header)
	if err != nil {
		return Result{}, err
	}

	if res.GasUsed > msg.Gas {
		res.GasUsed = msg.Gas
	}

	refund := new(uint256.Int).Mul(uint256.NewInt(msg.Gas-res.GasUsed), gasPrice)
	j.AddBalance(msg.From, refund)

	fee := new(uint256.Int).Mul(uint256.NewInt(res.GasUsed), gasPrice)
	j.AddBalance(header.Coinbase, fee)

	return res, nil
}

// =============================================================================

// Transfer is the default executor. It moves value between accounts and
// treats contract creation as a value transfer to the derived address.
type Transfer struct{}

// Execute implements the Executor interface.
func (Transfer) Execute(j *Journal, msg Message, header *types.Header) (Result, error) {
	gasUsed, err := IntrinsicGas(msg.Data, msg.To == nil)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Status:  StatusSuccess,
		GasUsed: gasUsed,
		Logs:    []*types.Log{},
	}

	to := msg.To
	if to == nil {
		contract := crypto.CreateAddress(msg.From, msg.Nonce)
		res.ContractAddress = &contract
		to = &contract
	}

	amount := value(msg)
	if j.Account(msg.From).Balance.Lt(amount) {
		res.Status = StatusFailed
		return res, nil
	}

	j.SubBalance(msg.From, amount)
	j.AddBalance(*to, amount)

	return res, nil
}

// =============================================================================

func price(msg Message) *uint256.Int {
	if msg.GasPrice == nil {
		return new(uint256.Int)
	}
	return msg.GasPrice
}

func value(msg Message) *uint256.Int {
	if msg.Value == nil {
		return new(uint256.Int)
	}
	return msg.Value
}
