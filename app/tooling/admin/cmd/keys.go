package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/ethsim/foundation/blockchain/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

const keyExtension = ".ecdsa"

var (
	total   int
	keyName string
	keyPath string
)

var mnemonicCmd = &cobra.Command{
	Use:   "mnemonic",
	Short: "Print the mnemonic derived from the seed",
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := accounts.NewGenerator(seed, mnemonic)
		if err != nil {
			return err
		}

		fmt.Println(gen.Mnemonic())
		return nil
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Print the accounts a node started with the same seed creates",
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := accounts.NewGenerator(seed, mnemonic)
		if err != nil {
			return err
		}

		fmt.Printf("Mnemonic: %s\n\n", gen.Mnemonic())
		for i := 0; i < total; i++ {
			key := gen.Next()
			fmt.Printf("(%d) %s  %s\n", i, crypto.PubkeyToAddress(key.PublicKey), hexutil.Encode(crypto.FromECDSA(key)))
		}

		return nil
	},
}

// generateCmd writes a key file the node imports as a named account.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key file for the node keys folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return err
		}

		name := keyName
		if !strings.HasSuffix(name, keyExtension) {
			name += keyExtension
		}

		path := filepath.Join(keyPath, name)
		if err := crypto.SaveECDSA(path, privateKey); err != nil {
			return err
		}

		fmt.Printf("%s  %s\n", crypto.PubkeyToAddress(privateKey.PublicKey), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mnemonicCmd)

	rootCmd.AddCommand(accountsCmd)
	accountsCmd.Flags().IntVarP(&total, "total", "n", 10, "Number of accounts to derive.")

	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&keyName, "name", "a", "private", "Name of the account.")
	generateCmd.Flags().StringVarP(&keyPath, "keys-folder", "p", "zblock/accounts/", "Path to the directory with private keys.")
}
