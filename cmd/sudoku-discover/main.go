package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	version = "dev" // Will be set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "sudoku-discover",
	Short: "DRAM bank-selection function discovery engine",
	Long: `sudoku-discover recovers a DRAM module's undocumented bank-selection
address mapping functions by timing row-buffer-conflict side channels.
It pools candidate physical addresses, partitions them by bank using a
pairwise conflict oracle, enumerates and scores XOR-bit hypotheses
against the oracle, cross-validates survivors against the DRAM refresh
signal, and assembles the confirmed functions into a mapping.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "platform profile overlay file (default: built-in profiles only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(profilesCmd)
}

// Commands are defined in separate files:
// - runCmd in run.go
// - profilesCmd in profiles.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
