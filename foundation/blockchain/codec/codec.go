// Package codec encodes and decodes blocks and transactions to and from their
// canonical RLP representation.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// ErrMalformedEncoding is returned when a byte sequence can't be decoded
// into a block or transaction. It signals corrupt data.
var ErrMalformedEncoding = errors.New("malformed block encoding")

// blockElements is the number of items in an encoded block:
// [header, transactions, uncles].
const blockElements = 3

// =============================================================================

// Block represents a group of transactions batched together under a header.
type Block struct {
	Header       *types.Header
	Transactions []*types.Transaction
	Uncles       []*types.Header
}

// NewBlock constructs a block from the header with no transactions.
func NewBlock(header *types.Header) *Block {
	return &Block{
		Header:       header,
		Transactions: []*types.Transaction{},
		Uncles:       []*types.Header{},
	}
}

// Hash returns the keccak256 digest of the encoded header.
func (b *Block) Hash() common.Hash {
	return b.Header.Hash()
}

// Number returns the block number.
func (b *Block) Number() uint64 {
	if b.Header.Number == nil {
		return 0
	}
	return b.Header.Number.Uint64()
}

// Key returns the storage key for the block.
func (b *Block) Key() []byte {
	return NumberKey(b.Number())
}

// Size returns the size of the encoded block in bytes.
func (b *Block) Size() uint64 {
	data, err := Encode(b)
	if err != nil {
		return 0
	}
	return uint64(len(data))
}

// =============================================================================

// extblock is the wire form of a block.
type extblock struct {
	Header *types.Header
	Txs    []*types.Transaction
	Uncles []*types.Header
}

// Encode returns the canonical encoding of the block.
func Encode(b *Block) ([]byte, error) {
	if b == nil || b.Header == nil {
		return nil, errors.New("encode: block has no header")
	}

	eb := extblock{
		Header: b.Header,
		Txs:    b.Transactions,
		Uncles: b.Uncles,
	}

	if eb.Txs == nil {
		eb.Txs = []*types.Transaction{}
	}
	if eb.Uncles == nil {
		eb.Uncles = []*types.Header{}
	}

	return rlp.EncodeToBytes(eb)
}

// Decode parses an encoded block. The outer structure must be a list of
// exactly three items and every integer must be canonically encoded.
func Decode(data []byte) (*Block, error) {
	content, rest, err := rlp.SplitList(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEncoding, err)
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedEncoding, len(rest))
	}

	n, err := rlp.CountValues(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEncoding, err)
	}

	if n != blockElements {
		return nil, fmt.Errorf("%w: expected %d elements, got %d", ErrMalformedEncoding, blockElements, n)
	}

	var eb extblock
	if err := rlp.DecodeBytes(data, &eb); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEncoding, err)
	}

	b := Block{
		Header:       eb.Header,
		Transactions: eb.Txs,
		Uncles:       eb.Uncles,
	}

	if b.Transactions == nil {
		b.Transactions = []*types.Transaction{}
	}
	if b.Uncles == nil {
		b.Uncles = []*types.Header{}
	}

	return &b, nil
}

// EncodeTx returns the canonical encoding of a single transaction.
func EncodeTx(tx *types.Transaction) ([]byte, error) {
	return tx.MarshalBinary()
}

// DecodeTx parses a single encoded transaction.
func DecodeTx(data []byte) (*types.Transaction, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEncoding, err)
	}
	return &tx, nil
}

// =============================================================================

// NumberKey returns the storage key for a block number. This is the minimal
// big-endian encoding of the number, except block 0 which is stored under a
// single zero byte since an empty key is indistinguishable from absence.
func NumberKey(number uint64) []byte {
	if number == 0 {
		return []byte{0}
	}

	var b [8]byte
	binary.BigEndian.PutUint64(b[:], number)

	return bytes.TrimLeft(b[:], "\x00")
}

// KeyNumber converts a storage key produced by NumberKey back to a number.
func KeyNumber(key []byte) (uint64, error) {
	switch {
	case len(key) == 0:
		return 0, fmt.Errorf("%w: empty block key", ErrMalformedEncoding)
	case len(key) > 8:
		return 0, fmt.Errorf("%w: block key too long", ErrMalformedEncoding)
	case len(key) == 1 && key[0] == 0:
		return 0, nil
	case key[0] == 0:
		return 0, fmt.Errorf("%w: block key has leading zero", ErrMalformedEncoding)
	}

	var b [8]byte
	copy(b[8-len(key):], key)

	return binary.BigEndian.Uint64(b[:]), nil
}
