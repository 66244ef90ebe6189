package timing

// FakeSource is a deterministic, in-memory Source used by every package's
// tests in place of real hardware. It models a cycle counter that
// advances by a fixed bookkeeping overhead on Flush/Fence and by
// LatencyFn's return value on Touch, so a test can script exactly the
// latency sequence a real DRAM side channel would produce (row-buffer
// conflicts, refresh spikes) without touching actual memory.
type FakeSource struct {
	Cycle          uint64
	FlushOverhead  uint64
	FenceOverhead  uint64
	// LatencyFn computes the simulated load latency for a Touch at addr;
	// callIndex counts Touch invocations from zero across the FakeSource's
	// lifetime, letting tests simulate periodic effects like refresh.
	LatencyFn func(addr uintptr, callIndex uint64) uint64

	callIndex uint64
}

// NewFakeSource returns a FakeSource with reasonable bookkeeping defaults
// and a LatencyFn that always reports zero latency; tests override it.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		FlushOverhead: 5,
		FenceOverhead: 2,
		LatencyFn:     func(uintptr, uint64) uint64 { return 0 },
	}
}

func (f *FakeSource) Flush(uintptr) { f.Cycle += f.FlushOverhead }
func (f *FakeSource) Fence()        { f.Cycle += f.FenceOverhead }
func (f *FakeSource) TSC() uint64   { return f.Cycle }

func (f *FakeSource) Touch(addr uintptr) {
	f.Cycle += f.LatencyFn(addr, f.callIndex)
	f.callIndex++
}
