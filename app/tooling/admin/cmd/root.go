// Package cmd contains the admin commands.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	seed     string
	mnemonic string
	url      string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&seed, "seed", "s", "ethsim", "Seed the node derives its accounts from.")
	rootCmd.PersistentFlags().StringVarP(&mnemonic, "mnemonic", "m", "", "Mnemonic the node derives its accounts from, overrides the seed.")
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8545", "Url of the node.")
}

var rootCmd = &cobra.Command{
	Use:          "admin",
	Short:        "Administer an ethsim node",
	SilenceUsage: true,
}

// Execute runs the command selected on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
