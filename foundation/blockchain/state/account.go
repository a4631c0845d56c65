package state

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/ardanlabs/ethsim/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
)

// The operations in this file change the lock table of the account manager
// so they are ordered with the transaction pipeline by running on the worker.

// NewAccount creates the next deterministic account. A nil passphrase leaves
// the account unlocked unless the account manager is secure.
func (s *State) NewAccount(ctx context.Context, passphrase *string) (common.Address, error) {
	var addr common.Address
	var err error

	job := func() {
		addr, err = s.accounts.Create(passphrase)
	}

	if werr := s.do(ctx, job); werr != nil {
		return common.Address{}, werr
	}

	if err == nil {
		s.evHandler("state: NewAccount: account[%s]", addr)
	}

	return addr, err
}

// ImportRawKey adds a private key to the keystore, locked behind the
// passphrase.
func (s *State) ImportRawKey(ctx context.Context, key *ecdsa.PrivateKey, passphrase string) (common.Address, error) {
	var addr common.Address
	var err error

	job := func() {
		addr, err = s.accounts.Import(key, passphrase, false)
	}

	if werr := s.do(ctx, job); werr != nil {
		return common.Address{}, werr
	}

	return addr, err
}

// UnlockAccount unlocks the account for the duration, indefinitely when the
// duration is zero.
func (s *State) UnlockAccount(ctx context.Context, addr common.Address, passphrase string, duration time.Duration) error {
	var err error

	job := func() {
		err = s.accounts.Unlock(addr, passphrase, duration)
	}

	if werr := s.do(ctx, job); werr != nil {
		return werr
	}

	return err
}

// LockAccount locks the account.
func (s *State) LockAccount(ctx context.Context, addr common.Address) error {
	var err error

	job := func() {
		err = s.accounts.Lock(addr)
	}

	if werr := s.do(ctx, job); werr != nil {
		return werr
	}

	return err
}

// Sign produces a personal message signature with an unlocked account.
func (s *State) Sign(ctx context.Context, addr common.Address, data []byte) ([]byte, error) {
	var sig []byte
	var err error

	job := func() {
		sig, err = s.accounts.SignWith(addr, signature.TextHash(data))
	}

	if werr := s.do(ctx, job); werr != nil {
		return nil, werr
	}

	if err != nil {
		return nil, err
	}

	return signature.ToRPC(sig), nil
}

// SignWithPassphrase produces a personal message signature with a key
// decrypted for this call only.
func (s *State) SignWithPassphrase(addr common.Address, passphrase string, data []byte) ([]byte, error) {
	sig, err := s.accounts.SignOnce(addr, passphrase, signature.TextHash(data))
	if err != nil {
		return nil, err
	}

	return signature.ToRPC(sig), nil
}
