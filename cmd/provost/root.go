package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "provost",
	Short: "Provost - pull request governance core",
	Long: `Provost is a policy enforcement core for pull request governance.

It provides:
  - Deterministic policy evaluation with integrity hashing
  - An append-only decision ledger, immutable after finalization
  - Quorum-signed overrides with TTL expiry and revocation
  - Dry-run simulation of draft policies against history
  - Derived governance metrics and trust signals`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "provost.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
