// Package signature provides helper functions for handling the blockchain
// signature needs: transaction signing, personal message hashing and sender
// recovery.
package signature

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// ethereumID is added to the recovery id of personal message signatures
// returned over RPC.
const ethereumID = 27

// ErrInvalidSignature is returned when a signature can't be parsed or
// recovered.
var ErrInvalidSignature = errors.New("invalid signature")

// SignFunc produces a 65 byte [R|S|V] signature over a 32 byte hash.
type SignFunc func(hash []byte) ([]byte, error)

// =============================================================================

// Signer returns the transaction signer for the chain.
func Signer(chainID *big.Int) types.Signer {
	return types.LatestSignerForChainID(chainID)
}

// SignTx hashes the transaction for the chain, signs the hash with fn and
// returns the signed transaction.
func SignTx(tx *types.Transaction, chainID *big.Int, fn SignFunc) (*types.Transaction, error) {
	signer := Signer(chainID)

	sig, err := fn(signer.Hash(tx).Bytes())
	if err != nil {
		return nil, err
	}

	return tx.WithSignature(signer, sig)
}

// Sender extracts the address for the account that signed the transaction.
func Sender(tx *types.Transaction, chainID *big.Int) (common.Address, error) {
	from, err := types.Sender(Signer(chainID), tx)
	if err != nil {
		return common.Address{}, errors.Join(ErrInvalidSignature, err)
	}
	return from, nil
}

// =============================================================================

// TextHash returns the hash signed by personal_sign and eth_sign:
// keccak256("\x19Ethereum Signed Message:\n" + len(data) + data).
func TextHash(data []byte) []byte {
	return accounts.TextHash(data)
}

// ToRPC converts a signature with a 0/1 recovery id into the 27/28 form.
func ToRPC(sig []byte) []byte {
	out := make([]byte, len(sig))
	copy(out, sig)

	if len(out) == crypto.SignatureLength && out[crypto.RecoveryIDOffset] < ethereumID {
		out[crypto.RecoveryIDOffset] += ethereumID
	}
	return out
}

// RecoverText extracts the address that produced the personal message
// signature. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverText(data []byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}

	raw := make([]byte, len(sig))
	copy(raw, sig)
	if raw[crypto.RecoveryIDOffset] >= ethereumID {
		raw[crypto.RecoveryIDOffset] -= ethereumID
	}

	if err := VerifySignature(raw); err != nil {
		return common.Address{}, err
	}

	pub, err := crypto.SigToPub(TextHash(data), raw)
	if err != nil {
		return common.Address{}, errors.Join(ErrInvalidSignature, err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature verifies the [R|S|V] signature has a valid recovery id and
// canonical values.
func VerifySignature(sig []byte) error {
	if len(sig) != crypto.SignatureLength {
		return ErrInvalidSignature
	}

	v := sig[crypto.RecoveryIDOffset]
	if v != 0 && v != 1 {
		return errors.Join(ErrInvalidSignature, errors.New("invalid recovery id"))
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return errors.Join(ErrInvalidSignature, errors.New("invalid signature values"))
	}

	return nil
}
