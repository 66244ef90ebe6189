package partition

import (
	"testing"

	"github.com/drammap/sudoku-discover/pkg/addrpool"
	"github.com/drammap/sudoku-discover/pkg/oracle"
	"github.com/drammap/sudoku-discover/pkg/profile"
	"github.com/drammap/sudoku-discover/pkg/timing"
)

func testTiming() profile.Timing {
	return profile.Timing{
		SBDRLowerBound:       300,
		SBDRUpperBound:       400,
		ConflictNumIteration: 16,
		MaxNumTrials:         200,
		MinimumSetSize:       4,
	}
}

// bankOfAddr buckets an address into one of two banks by a single low
// bit, simulating a real XOR bank-selection function for the oracle's
// fake timing source to react to.
func bankOfAddr(a uintptr) uintptr { return (a >> 12) & 1 }

func newFakeOracle() *oracle.Oracle {
	src := timing.NewFakeSource()
	lastA := map[uintptr]uintptr{}
	_ = lastA
	return oracle.New(src, testTiming())
}

func TestPartitionProducesClusters(t *testing.T) {
	// Build a pool where addresses alternate between two synthetic banks
	// based on bit 12; wire a fake timing source whose touch latency
	// depends on the two addresses currently under test via a closure
	// over current. A same-bank pair's combined latency (175+175+2) falls
	// inside the oracle's [300,400] window.
	var current [2]uintptr
	src := timing.NewFakeSource()
	src.LatencyFn = func(addr uintptr, callIndex uint64) uint64 {
		_ = addr
		if bankOfAddr(current[0]) == bankOfAddr(current[1]) {
			return 175
		}
		return 50
	}

	o := oracleWithTracking(src, &current)

	pairs := make([]addrpool.Record, 0, 64)
	for i := 1; i <= 64; i++ {
		paddr := uintptr(i) << 12
		pairs = append(pairs, addrpool.Record{Vaddr: paddr, Paddr: paddr})
	}
	pool, err := addrpool.New(pairs, nil, 42)
	if err != nil {
		t.Fatal(err)
	}

	p := New(pool, o, testTiming())
	clusters, err := p.Partition(2)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	for _, c := range clusters {
		if len(c.Records) < testTiming().MinimumSetSize {
			t.Errorf("cluster has %d records, want >= %d", len(c.Records), testTiming().MinimumSetSize)
		}
		bank := bankOfAddr(c.Records[0].Paddr)
		for _, r := range c.Records {
			if bankOfAddr(r.Paddr) != bank {
				t.Errorf("cluster mixes banks: %v vs %v", r.Paddr, c.Records[0].Paddr)
			}
		}
	}
}

// oracleWithTracking wraps a fake source so SameBank calls record which
// two addresses are currently under test in current, letting the
// LatencyFn closure react to the pair instead of a single address.
func oracleWithTracking(src *timing.FakeSource, current *[2]uintptr) *oracle.Oracle {
	tracked := &trackingSource{FakeSource: src, current: current}
	return oracle.New(tracked, testTiming())
}

type trackingSource struct {
	*timing.FakeSource
	current *[2]uintptr
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
