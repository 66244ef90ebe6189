//go:build !amd64

package timing

import "time"

// CPUSource on non-amd64 platforms has no cache-flush or RDTSCP
// equivalent wired up; it degrades to a software clock. The conflict
// oracle's bounds will not calibrate correctly against it — this exists
// only so the engine package compiles and its unit tests (which inject a
// fake Source) run on any build host, not so discovery actually works on
// non-amd64 hardware. Real discovery runs require amd64.
type CPUSource struct{}

// NewCPUSource returns the degraded non-amd64 timing source.
func NewCPUSource() CPUSource { return CPUSource{} }

func (CPUSource) Flush(addr uintptr) {}
func (CPUSource) Fence()             {}
func (CPUSource) TSC() uint64        { return uint64(time.Now().UnixNano()) }
func (CPUSource) Touch(addr uintptr) { touchGeneric(addr) }
