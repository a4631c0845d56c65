// Package nameservice reads a folder of ECDSA key files, imports every key
// into the account manager as an unlocked account and keeps a name lookup
// for those accounts.
package nameservice

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/ethsim/foundation/blockchain/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// keyExt is the extension of key files.
const keyExt = ".ecdsa"

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	accounts map[common.Address]string
}

// New constructs a name service with the keys found under root. When a
// manager is provided each key is imported into it.
func New(root string, mgr *accounts.Manager) (*NameService, error) {
	ns := NameService{
		accounts: make(map[common.Address]string),
	}

	if root == "" {
		return &ns, nil
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != keyExt {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("load %s: %w", fileName, err)
		}

		name := strings.TrimSuffix(filepath.Base(fileName), keyExt)
		addr := crypto.PubkeyToAddress(privateKey.PublicKey)
		ns.accounts[addr] = name

		if mgr != nil {
			if _, err := mgr.ImportNamed(name, privateKey, "", true); err != nil && !errors.Is(err, accounts.ErrAccountExists) {
				return fmt.Errorf("import %s: %w", name, err)
			}
		}

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account.
func (ns *NameService) Lookup(addr common.Address) string {
	name, exists := ns.accounts[addr]
	if !exists {
		return addr.Hex()
	}
	return name
}

// Copy returns a copy of the map of names and accounts.
func (ns *NameService) Copy() map[common.Address]string {
	cpy := make(map[common.Address]string, len(ns.accounts))
	for addr, name := range ns.accounts {
		cpy[addr] = name
	}
	return cpy
}
