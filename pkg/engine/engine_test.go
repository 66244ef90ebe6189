package engine

import (
	"context"
	"testing"

	"github.com/drammap/sudoku-discover/pkg/addrpool"
	"github.com/drammap/sudoku-discover/pkg/profile"
	"github.com/drammap/sudoku-discover/pkg/timing"
)

// trackingSource wraps a FakeSource, recording the two addresses under
// test in the current iteration so the scripted LatencyFn can decide
// conflict/no-conflict from the pair rather than a single address.
type trackingSource struct {
	*timing.FakeSource
	current [2]uintptr
	seen    int
}

func (t *trackingSource) Flush(addr uintptr) {
	if t.seen == 0 {
		t.current[0] = addr
	} else if t.seen == 1 {
		t.current[1] = addr
	}
	t.seen++
	t.FakeSource.Flush(addr)
}

func (t *trackingSource) Fence() {
	if t.seen >= 2 {
		t.seen = 0
	}
	t.FakeSource.Fence()
}

// testProfile builds a minimal single-bank-bit platform where physical
// address bit 7 is the true (and only plausible, given the pruning
// below) bank-selection function, letting the pipeline run end to end
// over a tiny search space.
func testProfile() profile.Profile {
	t := profile.Timing{
		SBDRLowerBound:                  300,
		SBDRUpperBound:                  400,
		RefreshCycleLowerBound:          0,
		RefreshCycleUpperBound:          1 << 40,
		RegularRefreshIntervalThreshold: 0,
		CachelineOffset:                 6,
		MaxNumTrials:                    500,
		NumEffectiveTrial:               30,
		TrialSuccessScore:               20,
		TrialFailureScore:               5,
		FilterScore:                     3,
		MinimumSetSize:                  8,
		ConflictNumIteration:            8,
		RefreshNumIteration:             16,
		FunctionMinNumBits:              1,
		FunctionMaxNumBits:              1,
	}
	return profile.Profile{
		CPUID: "test", DDRID: "test",
		Timing: t,
		Geometry: profile.Geometry{
			NumRankBits:        0,
			NumSubchannelBits:  0,
			NumBankGroupBits:   0,
			NumBankAddressBits: 1,
			NumColumnBits:      0,
			NumRowBits:         10,
			BurstLength:        1,
		},
	}
}

func testRecords() []addrpool.Record {
	records := make([]addrpool.Record, 0, 64)
	for i := 1; i <= 64; i++ {
		paddr := uintptr(i) << 7
		records = append(records, addrpool.Record{Vaddr: paddr, Paddr: paddr})
	}
	return records
}

func TestRunProducesCompleteMapping(t *testing.T) {
	tracker := &trackingSource{FakeSource: timing.NewFakeSource()}
	tracker.LatencyFn = func(addr uintptr, callIndex uint64) uint64 {
		// Every 16th touch (the first touch of every eighth paired
		// sample) stalls, standing in for a DRAM refresh so the refresh
		// validator sees periodic events; it never moves an oracle
		// median, since one of an oracle probe's eight samples is hit.
		if callIndex%16 == 0 {
			return 900
		}
		// A same-bank pair's combined latency (175+175+2) falls inside
		// the [300,400] conflict window.
		bankOf := func(a uintptr) uintptr { return (a >> 7) & 1 }
		if bankOf(tracker.current[0]) == bankOf(tracker.current[1]) {
			return 175
		}
		return 50
	}

	e := New(Config{
		Profile: testProfile(),
		Records: testRecords(),
		Source:  tracker,
		Seed:    99,
	})

	m, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !m.Complete {
		t.Fatalf("expected complete mapping, got %+v", m)
	}
	if len(m.Functions) != 1 {
		t.Fatalf("got %d functions, want 1", len(m.Functions))
	}
	if m.Functions[0].Bits[0] != 7 {
		t.Errorf("got bit %d, want bit 7 (the true bank-selection bit)", m.Functions[0].Bits[0])
	}
}

func TestRunFailsOnEmptyPool(t *testing.T) {
	e := New(Config{
		Profile: testProfile(),
		Records: nil,
		Source:  timing.NewFakeSource(),
	})
	if _, err := e.Run(context.Background()); err == nil {
		t.Fatal("expected error for empty address pool")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StatePool:        "POOL",
		StatePartition:   "PARTITION",
		StateHypothesize: "HYPOTHESIZE",
		StateScore:       "SCORE",
		StateValidate:    "VALIDATE",
		StateAssemble:    "ASSEMBLE",
		StateCompleted:   "COMPLETED",
		StateFailed:      "FAILED",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
