//go:build amd64

package timing

// CPUSource is the real amd64 implementation of Source: CLFLUSH, MFENCE,
// and RDTSCP via the raw instructions in timing_amd64.s. It trades
// CLFLUSHOPT's weaker ordering (the original C++ engine uses clflushopt)
// for CLFLUSH's stronger one — CLFLUSH is itself serializing against
// subsequent loads/stores to the flushed line, so the explicit MFENCE in
// the sampler's per-iteration sequence is slightly conservative but never
// incorrect.
type CPUSource struct{}

// NewCPUSource returns the amd64 hardware timing source.
func NewCPUSource() CPUSource { return CPUSource{} }

func (CPUSource) Flush(addr uintptr) { clflushAsm(addr) }
func (CPUSource) Fence()             { mfenceAsm() }
func (CPUSource) TSC() uint64        { return rdtscpAsm() }

//go:noinline
func (CPUSource) Touch(addr uintptr) { touchGeneric(addr) }

// clflushAsm, mfenceAsm, rdtscpAsm are implemented in timing_amd64.s.
func clflushAsm(addr uintptr)
func mfenceAsm()
func rdtscpAsm() uint64
