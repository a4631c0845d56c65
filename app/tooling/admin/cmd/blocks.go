package cmd

import (
	"fmt"

	"github.com/ardanlabs/ethsim/foundation/blockchain/blockstore"
	"github.com/ardanlabs/ethsim/foundation/blockchain/codec"
	"github.com/ardanlabs/ethsim/foundation/blockchain/kv/backend"
	"github.com/spf13/cobra"
)

var (
	dbBackend string
	dbPath    string
)

// blocksCmd reads a chain a stopped node persisted.
var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Print the blocks of a stored chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := backend.Open(dbBackend, dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		blocks, err := blockstore.New(blockstore.Config{Store: store})
		if err != nil {
			return err
		}

		return blocks.ForEach(func(block *codec.Block) error {
			fmt.Printf("Block %d  Hash: %s  Parent: %s  Txs: %d  GasUsed: %d\n",
				block.Number(), block.Hash(), block.Header.ParentHash, len(block.Transactions), block.Header.GasUsed)

			for _, tx := range block.Transactions {
				fmt.Printf("    Tx: %s  Nonce: %d  Value: %s\n", tx.Hash(), tx.Nonce(), tx.Value())
			}

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(blocksCmd)
	blocksCmd.Flags().StringVarP(&dbBackend, "backend", "b", backend.LevelDB, "Storage backend of the chain (leveldb|pebble).")
	blocksCmd.Flags().StringVarP(&dbPath, "path", "p", "zblock/blocks.db", "Path to the stored chain.")
}
