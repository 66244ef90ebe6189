package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drammap/sudoku-discover/pkg/addrpool"
	"github.com/drammap/sudoku-discover/pkg/diag"
	"github.com/drammap/sudoku-discover/pkg/engine"
	"github.com/drammap/sudoku-discover/pkg/mem"
	"github.com/drammap/sudoku-discover/pkg/pin"
	"github.com/drammap/sudoku-discover/pkg/profile"
	"github.com/drammap/sudoku-discover/pkg/timing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Run the discovery pipeline against the local machine's DRAM",
	Long:  `Reserves huge pages, builds an address pool from their physical translations, and runs the full discovery pipeline to recover the bank-selection mapping.`,
	RunE:  runDiscover,
}

func init() {
	runCmd.Flags().String("cpu", "", "CPU family profile id (e.g. alderlake, raptorlake, zen4, skylake)")
	runCmd.Flags().String("ddr", "", "DDR generation profile id (e.g. ddr4, ddr5)")
	runCmd.Flags().Int("pages", 4, "number of 1GB huge pages to reserve for the address pool")
	runCmd.Flags().Int64("seed", 1, "random seed for address-pool draws")
	runCmd.Flags().Int("pin-cpu", -1, "pin the measuring goroutine to this CPU (-1 disables pinning)")
	runCmd.Flags().String("output", "", "write the resulting mapping as JSON to this file (default: stdout)")
	runCmd.Flags().String("format", "json", "diagnostics log format (json, text)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cpuID, _ := cmd.Flags().GetString("cpu")
	ddrID, _ := cmd.Flags().GetString("ddr")
	if cpuID == "" || ddrID == "" {
		return fmt.Errorf("--cpu and --ddr are required (see 'sudoku-discover profiles')")
	}
	numPages, _ := cmd.Flags().GetInt("pages")
	seed, _ := cmd.Flags().GetInt64("seed")
	pinCPU, _ := cmd.Flags().GetInt("pin-cpu")
	outputPath, _ := cmd.Flags().GetString("output")
	logFormat, _ := cmd.Flags().GetString("format")

	registry, err := profile.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load profile overlay: %w", err)
	}
	p, err := registry.Select(cpuID, ddrID)
	if err != nil {
		return fmt.Errorf("select platform profile: %w", err)
	}

	level := diag.LevelInfo
	if verbose {
		level = diag.LevelDebug
	}
	format := diag.FormatJSON
	if logFormat == "text" {
		format = diag.FormatText
	}
	d := diag.New(diag.Config{Level: level, Format: format, Output: os.Stderr})

	if pinCPU >= 0 {
		unpin, err := pin.Pin(pinCPU)
		if err != nil {
			return fmt.Errorf("pin to cpu %d: %w", pinCPU, err)
		}
		defer unpin()

		restoreTurbo, err := pin.DisableTurbo()
		if err != nil {
			d.Zerolog().Warn().Err(err).Msg("could not disable turbo boost, continuing without it")
		} else {
			defer restoreTurbo()
		}
	}

	region, err := mem.Reserve(numPages)
	if err != nil {
		return fmt.Errorf("reserve huge pages: %w", err)
	}
	defer region.Close()

	records, err := region.AddressRecords()
	if err != nil {
		return fmt.Errorf("translate huge pages: %w", err)
	}

	masks := []addrpool.Mask{{
		Lower: uintptr(p.Timing.PCIOffsetLowerBound),
		Upper: uintptr(p.Timing.PCIOffsetUpperBound),
	}}

	e := engine.New(engine.Config{
		Profile: p,
		Records: records,
		Masks:   masks,
		Source:  timing.NewCPUSource(),
		Seed:    seed,
		Diag:    d,
	})

	m, err := e.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("discovery run failed: %w", err)
	}

	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := m.Write(out); err != nil {
		return fmt.Errorf("write mapping: %w", err)
	}

	if !m.Complete {
		return m.IncompleteError()
	}
	return nil
}
