// Package timing is the facade spec C1 names: flush, fence, tsc, touch.
// It is kept as small and opaque as possible — per the platform's design
// note, the actual machine instructions live in an isolated compilation
// unit (timing_amd64.s) so the Go compiler never has the chance to
// reorder or inline them away. Everything above this package talks to a
// Source interface and never assumes amd64.
package timing

import "unsafe"

// Source exposes the four primitives the rest of the engine calls as
// abstract operations. tsc must be monotone non-decreasing on one
// hardware thread and must not be reordered across the surrounding
// memory operations; flush/fence/touch are serializing with respect to
// it in the same sense.
type Source interface {
	// Flush requests the cache line containing addr be evicted from all
	// cache levels.
	Flush(addr uintptr)
	// Fence issues a full memory/speculation fence.
	Fence()
	// TSC does a serializing read of the cycle counter.
	TSC() uint64
	// Touch performs a single byte load from addr with a barrier
	// preventing the compiler from eliding it as a dead read.
	Touch(addr uintptr)
}

// sink absorbs the result of Touch so the compiler cannot prove the load
// is dead and remove it. A single byte is enough; the value itself is
// never meaningful.
var sink byte

//go:noinline
func touchGeneric(addr uintptr) {
	sink ^= *(*byte)(unsafe.Pointer(addr))
}
