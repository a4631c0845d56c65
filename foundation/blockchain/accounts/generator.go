package accounts

import (
	"crypto/ecdsa"
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// DefaultSeed is used when neither a seed nor a mnemonic is configured.
const DefaultSeed = "ethsim"

// Generator produces a deterministic sequence of private keys. Two
// generators built from the same seed or mnemonic produce the same sequence.
type Generator struct {
	mu       sync.Mutex
	mnemonic string
	master   []byte
	next     uint64
}

// NewGenerator constructs a generator. When no mnemonic is provided one is
// derived from the seed. Any phrase is accepted as a mnemonic, the BIP-39
// checksum is not enforced.
func NewGenerator(seed string, mnemonic string) (*Generator, error) {
	if mnemonic == "" {
		if seed == "" {
			seed = DefaultSeed
		}

		entropy := crypto.Keccak256([]byte(seed))[:16]

		var err error
		if mnemonic, err = bip39.NewMnemonic(entropy); err != nil {
			return nil, err
		}
	}

	g := Generator{
		mnemonic: mnemonic,
		master:   bip39.NewSeed(mnemonic, ""),
	}

	return &g, nil
}

// Mnemonic returns the mnemonic the keys are derived from.
func (g *Generator) Mnemonic() string {
	return g.mnemonic
}

// Next returns the next key in the sequence. A generator never returns the
// same index twice.
func (g *Generator) Next() *ecdsa.PrivateKey {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := g.Key(g.next)
	g.next++

	return key
}

// Key returns the key at the specified index without advancing the sequence.
func (g *Generator) Key(index uint64) *ecdsa.PrivateKey {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)

	h := crypto.Keccak256(g.master, idx[:])
	for {
		key, err := crypto.ToECDSA(h)
		if err == nil {
			return key
		}
		h = crypto.Keccak256(h)
	}
}
