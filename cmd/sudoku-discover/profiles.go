package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/drammap/sudoku-discover/pkg/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Args:  cobra.NoArgs,
	Short: "List the built-in platform profiles",
	Long:  `Lists the CPU/DDR combinations sudoku-discover has timing bounds and DRAM geometry for out of the box.`,
	RunE:  listProfiles,
}

func listProfiles(cmd *cobra.Command, args []string) error {
	registry, err := profile.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load profile overlay: %w", err)
	}
	names := registry.Names()
	sort.Strings(names)
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
