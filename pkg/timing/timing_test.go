package timing

import "testing"

func TestFakeSourceAdvancesCycleOnFlushAndFence(t *testing.T) {
	src := NewFakeSource()
	start := src.TSC()
	src.Flush(0x1000)
	src.Fence()
	if got, want := src.TSC(), start+src.FlushOverhead+src.FenceOverhead; got != want {
		t.Errorf("TSC() = %d, want %d", got, want)
	}
}

func TestFakeSourceTouchUsesLatencyFnAndCallIndex(t *testing.T) {
	src := NewFakeSource()
	var gotIndices []uint64
	src.LatencyFn = func(addr uintptr, callIndex uint64) uint64 {
		gotIndices = append(gotIndices, callIndex)
		return 100
	}

	before := src.TSC()
	src.Touch(0x2000)
	src.Touch(0x2000)
	after := src.TSC()

	if after-before != 200 {
		t.Errorf("two touches advanced TSC by %d, want 200", after-before)
	}
	if len(gotIndices) != 2 || gotIndices[0] != 0 || gotIndices[1] != 1 {
		t.Errorf("got call indices %v, want [0 1]", gotIndices)
	}
}

func TestCPUSourceSatisfiesSource(t *testing.T) {
	var _ Source = NewCPUSource()
}
