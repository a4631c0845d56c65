// Package accounts maintains the keystore of the node: the accounts it can
// sign for, their encrypted key material and their lock state.
package accounts

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Set of error variables for account management.
var (
	ErrAccountLocked   = errors.New("signer account is locked")
	ErrInvalidPassword = errors.New("Invalid password")
	ErrUnknownAccount  = errors.New("unknown account")
	ErrAccountExists   = errors.New("account already exists")
)

// LockState represents whether an account can currently sign.
type LockState int

// Set of lock states.
const (
	Locked LockState = iota
	UnlockedIndefinite
	UnlockedUntil
)

// String implements the fmt.Stringer interface.
func (ls LockState) String() string {
	switch ls {
	case UnlockedIndefinite:
		return "unlocked"
	case UnlockedUntil:
		return "unlocked-until"
	}
	return "locked"
}

// Status describes the lock state of an account.
type Status struct {
	State LockState
	Until time.Time
}

// =============================================================================

// account holds the key material for a single address. The raw key is only
// cached while the account is unlocked.
type account struct {
	address common.Address
	name    string
	crypto  keystore.CryptoJSON
	key     *ecdsa.PrivateKey
	state   LockState
	until   time.Time
}

// Config represents the configuration required to construct a manager.
type Config struct {
	Generator *Generator
	Secure    bool
	Now       func() time.Time
	ScryptN   int
	ScryptP   int
}

// Manager owns every account the node can sign for.
type Manager struct {
	mu       sync.Mutex
	gen      *Generator
	secure   bool
	now      func() time.Time
	scryptN  int
	scryptP  int
	accounts map[common.Address]*account
	order    []common.Address
}

// New constructs an account manager.
func New(cfg Config) (*Manager, error) {
	gen := cfg.Generator
	if gen == nil {
		var err error
		if gen, err = NewGenerator(DefaultSeed, ""); err != nil {
			return nil, err
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	scryptN, scryptP := cfg.ScryptN, cfg.ScryptP
	if scryptN == 0 || scryptP == 0 {
		scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	}

	m := Manager{
		gen:      gen,
		secure:   cfg.Secure,
		now:      now,
		scryptN:  scryptN,
		scryptP:  scryptP,
		accounts: make(map[common.Address]*account),
	}

	return &m, nil
}

// Mnemonic returns the mnemonic the generated keys are derived from.
func (m *Manager) Mnemonic() string {
	return m.gen.Mnemonic()
}

// Create adds the next generated key to the keystore. The account starts
// locked when a passphrase is provided or the manager is secure. A nil
// passphrase is treated as the empty string.
func (m *Manager) Create(passphrase *string) (common.Address, error) {
	var pass string
	if passphrase != nil {
		pass = *passphrase
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.gen.Next()
	for m.accounts[crypto.PubkeyToAddress(key.PublicKey)] != nil {
		key = m.gen.Next()
	}

	locked := passphrase != nil || m.secure

	return m.add(key, pass, !locked, "")
}

// Import adds an externally supplied key to the keystore.
func (m *Manager) Import(key *ecdsa.PrivateKey, passphrase string, unlocked bool) (common.Address, error) {
	return m.ImportNamed("", key, passphrase, unlocked)
}

// ImportNamed adds a key with a display name, typically loaded from a file.
func (m *Manager) ImportNamed(name string, key *ecdsa.PrivateKey, passphrase string, unlocked bool) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accounts[crypto.PubkeyToAddress(key.PublicKey)] != nil {
		return common.Address{}, ErrAccountExists
	}

	return m.add(key, passphrase, unlocked, name)
}

// Unlock verifies the passphrase and unlocks the account. A zero duration
// unlocks it until it is explicitly locked again.
func (m *Manager) Unlock(addr common.Address, passphrase string, duration time.Duration) error {
	acc, err := m.lookup(addr)
	if err != nil {
		return err
	}

	key, err := m.decrypt(acc, passphrase)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc.key = key
	if duration <= 0 {
		acc.state = UnlockedIndefinite
		acc.until = time.Time{}
		return nil
	}

	acc.state = UnlockedUntil
	acc.until = m.now().Add(duration)

	return nil
}

// Lock locks the account and drops the cached key.
func (m *Manager) Lock(addr common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, exists := m.accounts[addr]
	if !exists {
		return ErrUnknownAccount
	}

	lock(acc)

	return nil
}

// SignWith signs the hash with the key of an unlocked account. It never
// changes the lock state other than noticing an elapsed unlock duration.
func (m *Manager) SignWith(addr common.Address, hash []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, exists := m.accounts[addr]
	if !exists {
		return nil, ErrUnknownAccount
	}

	if !m.unlocked(acc) {
		return nil, ErrAccountLocked
	}

	return crypto.Sign(hash, acc.key)
}

// SignOnce signs the hash with a key decrypted for this call only. The lock
// state of the account is left as it was.
func (m *Manager) SignOnce(addr common.Address, passphrase string, hash []byte) ([]byte, error) {
	acc, err := m.lookup(addr)
	if err != nil {
		return nil, err
	}

	key, err := m.decrypt(acc, passphrase)
	if err != nil {
		return nil, err
	}

	return crypto.Sign(hash, key)
}

// Authorize checks the account can sign and returns a function that signs
// with its key. Without a passphrase the account must be unlocked. With a
// passphrase the key is decrypted for the returned function only and the lock
// state is left as it was.
func (m *Manager) Authorize(addr common.Address, passphrase *string) (func(hash []byte) ([]byte, error), error) {
	acc, err := m.lookup(addr)
	if err != nil {
		return nil, err
	}

	if passphrase == nil {
		m.mu.Lock()
		ok := m.unlocked(acc)
		m.mu.Unlock()

		if !ok {
			return nil, ErrAccountLocked
		}

		fn := func(hash []byte) ([]byte, error) {
			return m.SignWith(addr, hash)
		}
		return fn, nil
	}

	key, err := m.decrypt(acc, *passphrase)
	if err != nil {
		return nil, err
	}

	fn := func(hash []byte) ([]byte, error) {
		return crypto.Sign(hash, key)
	}
	return fn, nil
}

// VerifyPassword reports whether the passphrase decrypts the account key.
func (m *Manager) VerifyPassword(addr common.Address, passphrase string) error {
	acc, err := m.lookup(addr)
	if err != nil {
		return err
	}

	_, err = m.decrypt(acc, passphrase)
	return err
}

// =============================================================================

// Addresses returns the accounts in the order they were added.
func (m *Manager) Addresses() []common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()

	addrs := make([]common.Address, len(m.order))
	copy(addrs, m.order)
	return addrs
}

// Has reports whether the manager holds the key for the address.
func (m *Manager) Has(addr common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.accounts[addr]
	return exists
}

// Name returns the display name of an imported account, if any.
func (m *Manager) Name(addr common.Address) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, exists := m.accounts[addr]; exists {
		return acc.name
	}
	return ""
}

// Status returns the current lock state of the account.
func (m *Manager) Status(addr common.Address) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, exists := m.accounts[addr]
	if !exists {
		return Status{}, ErrUnknownAccount
	}

	m.unlocked(acc)

	return Status{State: acc.state, Until: acc.until}, nil
}

// =============================================================================

// add encrypts and stores the key. The caller must hold the lock.
func (m *Manager) add(key *ecdsa.PrivateKey, passphrase string, unlocked bool, name string) (common.Address, error) {
	cj, err := keystore.EncryptDataV3(crypto.FromECDSA(key), []byte(passphrase), m.scryptN, m.scryptP)
	if err != nil {
		return common.Address{}, fmt.Errorf("encrypt key: %w", err)
	}

	acc := account{
		address: crypto.PubkeyToAddress(key.PublicKey),
		name:    name,
		crypto:  cj,
	}

	if unlocked {
		acc.key = key
		acc.state = UnlockedIndefinite
	}

	m.accounts[acc.address] = &acc
	m.order = append(m.order, acc.address)

	return acc.address, nil
}

// unlocked applies lazy expiry and reports whether the account can sign.
// The caller must hold the lock.
func (m *Manager) unlocked(acc *account) bool {
	switch acc.state {
	case UnlockedIndefinite:
		return true
	case UnlockedUntil:
		if m.now().Before(acc.until) {
			return true
		}
		lock(acc)
	}
	return false
}

// lookup returns the account for the address. The encrypted key material of
// an account never changes so it can be read without holding the lock.
func (m *Manager) lookup(addr common.Address) (*account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, exists := m.accounts[addr]
	if !exists {
		return nil, ErrUnknownAccount
	}
	return acc, nil
}

func (m *Manager) decrypt(acc *account, passphrase string) (*ecdsa.PrivateKey, error) {
	data, err := keystore.DecryptDataV3(acc.crypto, passphrase)
	if err != nil {
		return nil, ErrInvalidPassword
	}

	key, err := crypto.ToECDSA(data)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}

	return key, nil
}

func lock(acc *account) {
	acc.key = nil
	acc.state = Locked
	acc.until = time.Time{}
}
