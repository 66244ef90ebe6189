// Package profile holds the immutable, runtime-selected configuration the
// discovery engine reads from: per-platform timing bounds and DRAM
// geometry. The original engine baked one of these in at compile time via
// a chain of `#ifdef COMPILE_ALDER_LAKE_DDR5`-style macros; this package
// replaces that with a registry keyed by a (CPU, DDR) identifier pair,
// selected at runtime and returned as a typed error on a miss instead of
// exiting the process.
package profile

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/drammap/sudoku-discover/pkg/errs"
)

// DDRType identifies the DRAM generation.
type DDRType string

const (
	DDR4 DDRType = "DDR4"
	DDR5 DDRType = "DDR5"
)

// Timing holds the per-platform cycle-count bounds and iteration budgets
// the discovery engine thresholds against. Field names mirror
// constants.h's #define block.
type Timing struct {
	SBDRLowerBound                  uint64  `yaml:"sbdr_lower_bound"`
	SBDRUpperBound                  uint64  `yaml:"sbdr_upper_bound"`
	RefreshCycleLowerBound          uint64  `yaml:"refresh_cycle_lower_bound"`
	RefreshCycleUpperBound          uint64  `yaml:"refresh_cycle_upper_bound"`
	RegularRefreshIntervalThreshold float64 `yaml:"regular_refresh_interval_threshold"`
	BankGroupThreshold              uint64  `yaml:"bank_group_threshold"`
	PCIOffsetLowerBound             uint64  `yaml:"pci_offset_lower_bound"`
	PCIOffsetUpperBound             uint64  `yaml:"pci_offset_upper_bound"`
	CachelineOffset                 uint    `yaml:"cacheline_offset"`

	MaxNumTrials            int `yaml:"max_num_trials"`
	NumEffectiveTrial       int `yaml:"num_effective_trial"`
	TrialSuccessScore       int `yaml:"trial_success_score"`
	TrialFailureScore       int `yaml:"trial_failure_score"`
	FilterScore             int `yaml:"filter_score"`
	MinimumSetSize          int `yaml:"minimum_set_size"`
	ConflictNumIteration    int `yaml:"conflict_num_iteration"`
	RefreshNumIteration     int `yaml:"refresh_num_iteration"`
	ConsecutiveNumIteration int `yaml:"consecutive_num_iteration"`
	ConsecutiveLength       int `yaml:"consecutive_length"`

	FunctionMinNumBits int `yaml:"function_min_num_bits"`
	FunctionMaxNumBits int `yaml:"function_max_num_bits"`
}

// Geometry holds the DRAM addressing layout, mirroring config.h's
// DRAMConfig/AddressTableEntry.
type Geometry struct {
	Type               DDRType `yaml:"type"`
	ModuleSize         uint64  `yaml:"module_size_bytes"`
	NumRanks           int     `yaml:"num_ranks"`
	DQ                 int     `yaml:"dq"`
	ChipSize           uint64  `yaml:"chip_size_bytes"`
	NumRankBits        int     `yaml:"num_rank_bits"`
	NumSubchannelBits  int     `yaml:"num_subchannel_bits"`
	NumBankGroupBits   int     `yaml:"num_bank_group_bits"`
	NumBankAddressBits int     `yaml:"num_bank_address_bits"`
	NumRowBits         int     `yaml:"num_row_bits"`
	NumColumnBits      int     `yaml:"num_column_bits"`
	BurstLength        int     `yaml:"burst_length"`
}

// NumBankBits is the total number of address bits expected to select a
// bank (bank-group bits plus bank-address bits).
func (g Geometry) NumBankBits() int {
	return g.NumBankGroupBits + g.NumBankAddressBits
}

// RowBitBoundary is the lowest physical-address bit position belonging
// to the row field: everything below it is subchannel/rank/bank-group/
// bank-address/column. Hypotheses whose bit-set lies entirely above this
// boundary cannot be bank-selection functions and are pruned from the
// hypothesizer's search.
func (g Geometry) RowBitBoundary(cachelineOffset uint) int {
	return int(cachelineOffset) + g.NumColumnBits + g.NumBankBits() + g.NumSubchannelBits + g.NumRankBits
}

// String renders the geometry the way the original's DRAMConfig::ToString
// did: "DDR5,2Rx8,32GB".
func (g Geometry) String() string {
	return fmt.Sprintf("%s,%dRx%d,%dGB", g.Type, g.NumRanks, g.DQ, g.ModuleSize/(1<<30))
}

// Profile bundles a Timing and Geometry under the identifier used to
// select it from the Registry.
type Profile struct {
	CPUID    string   `yaml:"cpu_id"`
	DDRID    string   `yaml:"ddr_id"`
	Timing   Timing   `yaml:"timing"`
	Geometry Geometry `yaml:"geometry"`
}

// Registry is a set of named Profiles, as loaded from defaults plus any
// YAML overlay.
type Registry struct {
	profiles map[string]Profile
}

func key(cpuID, ddrID string) string { return cpuID + "/" + ddrID }

// entry constructs a Geometry the way DRAMConfig's second constructor
// does: derive subchannel/rank bits from the DDR generation and rank
// count, and subtract log2(burstLength) implicit low column bits.
func entry(ddr DDRType, moduleSize uint64, ranks, dq, bankGroupBits, bankAddrBits, rowBits, columnBits, burstLength int) Geometry {
	subch := 0
	if ddr == DDR5 {
		subch = 1
	}
	chipSize := moduleSize / uint64(ranks*64/dq) * 8
	return Geometry{
		Type:               ddr,
		ModuleSize:         moduleSize,
		NumRanks:           ranks,
		DQ:                 dq,
		ChipSize:           chipSize,
		NumRankBits:        int(math.Log2(float64(ranks))),
		NumSubchannelBits:  subch,
		NumBankGroupBits:   bankGroupBits,
		NumBankAddressBits: bankAddrBits,
		NumRowBits:         rowBits,
		NumColumnBits:      columnBits - int(math.Log2(float64(burstLength))),
		BurstLength:        burstLength,
	}
}

const gb = uint64(1) << 30

// defaultTiming returns the iteration budgets and score thresholds shared
// across all platforms (constants.h's non-platform-specific #defines);
// only the SBDR/refresh cycle bounds, the bank-group threshold and the
// PCI-hole offsets vary per CPU/DDR generation.
func defaultTiming(sbdrLo, sbdrHi, refLo, refHi, bankGroupThresh uint64, pciLo, pciHi uint64) Timing {
	return Timing{
		SBDRLowerBound:                  sbdrLo,
		SBDRUpperBound:                  sbdrHi,
		RefreshCycleLowerBound:          refLo,
		RefreshCycleUpperBound:          refHi,
		RegularRefreshIntervalThreshold: 0.9,
		BankGroupThreshold:              bankGroupThresh,
		PCIOffsetLowerBound:             pciLo,
		PCIOffsetUpperBound:             pciHi,
		CachelineOffset:                 6,
		MaxNumTrials:                    16384,
		NumEffectiveTrial:               1024,
		TrialSuccessScore:               1024 - 64,
		TrialFailureScore:               64,
		FilterScore:                     4,
		MinimumSetSize:                  64,
		ConflictNumIteration:            300,
		RefreshNumIteration:             1024,
		ConsecutiveNumIteration:         512,
		ConsecutiveLength:               4,
		FunctionMinNumBits:              1,
		FunctionMaxNumBits:              12,
	}
}

// Defaults returns the compiled-in profile registry, transcribed from
// constants.h and config.h's DRAMAddressTable. Cycle bounds are
// platform-calibrated approximations; override them with a YAML overlay
// for a specific machine (see Load).
func Defaults() *Registry {
	r := &Registry{profiles: make(map[string]Profile)}

	r.add(Profile{
		CPUID: "alderlake", DDRID: "ddr4",
		Timing:   defaultTiming(200, 400, 7000, 8500, 400, 0x4000_0000, 0x1_0000_0000),
		Geometry: entry(DDR4, 16*gb, 2, 8, 2, 2, 17, 10, 8),
	})
	r.add(Profile{
		CPUID: "alderlake", DDRID: "ddr5",
		Timing:   defaultTiming(230, 430, 7300, 8700, 420, 0x4000_0000, 0x1_0000_0000),
		Geometry: entry(DDR5, 16*gb, 2, 8, 3, 2, 16, 10, 16),
	})
	r.add(Profile{
		CPUID: "raptorlake", DDRID: "ddr5",
		Timing:   defaultTiming(225, 420, 7300, 8700, 420, 0x4000_0000, 0x1_0000_0000),
		Geometry: entry(DDR5, 16*gb, 2, 4, 3, 2, 16, 11, 16),
	})
	r.add(Profile{
		// ZenHammer (USENIX Security 2024): AMD Zen platforms map a PCI
		// hole into the otherwise-contiguous physical address space;
		// PCIOffset bounds exclude it from the candidate address pool.
		CPUID: "zen4", DDRID: "ddr5",
		Timing:   defaultTiming(210, 410, 7200, 8600, 410, 0x0800_0000, 0x1000_0000),
		Geometry: entry(DDR5, 16*gb, 2, 8, 3, 2, 16, 10, 16),
	})
	r.add(Profile{
		CPUID: "skylake", DDRID: "ddr4",
		Timing:   defaultTiming(195, 390, 7000, 8500, 400, 0x4000_0000, 0x1_0000_0000),
		Geometry: entry(DDR4, 8*gb, 2, 8, 2, 2, 16, 10, 8),
	})

	return r
}

func (r *Registry) add(p Profile) { r.profiles[key(p.CPUID, p.DDRID)] = p }

// Select returns the registered profile for (cpuID, ddrID), or an
// InvalidProfile error if none is registered.
func (r *Registry) Select(cpuID, ddrID string) (Profile, error) {
	p, ok := r.profiles[key(cpuID, ddrID)]
	if !ok {
		return Profile{}, errs.New(errs.InvalidProfile, "no platform profile registered for cpu=%q ddr=%q", cpuID, ddrID)
	}
	return p, nil
}

// Names lists every registered (cpuID, ddrID) pair, for the CLI's
// "profiles" subcommand.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		names = append(names, key(p.CPUID, p.DDRID))
	}
	return names
}

// overlay is the YAML document shape accepted by Load: a list of profiles
// to add to, or replace within, the default registry.
type overlay struct {
	Profiles []Profile `yaml:"profiles"`
}

// Load starts from Defaults and merges in any profiles found in the YAML
// file at path. A missing file is not an error — the defaults are
// returned unchanged.
func Load(path string) (*Registry, error) {
	r := Defaults()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile overlay: %w", err)
	}

	var ov overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("parse profile overlay: %w", err)
	}
	for _, p := range ov.Profiles {
		r.add(p)
	}
	return r, nil
}
