// Package pin implements Measurement Isolation (spec C15): locking the
// measuring goroutine to a single OS thread and CPU, so the kernel never
// migrates a latency-sensitive timing loop mid-measurement, plus a
// best-effort turbo-boost disable hook.
package pin

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/drammap/sudoku-discover/pkg/errs"
)

// Pin locks the calling goroutine to its current OS thread and restricts
// that thread's scheduling affinity to exactly cpu. The caller must be
// the goroutine that will run the timing loop, and must call the
// returned unpin before returning: it restores the thread's prior
// affinity mask and releases the OS thread back to the Go scheduler's
// pool.
//
// Pin controls scheduling only; callers that also want turbo boost off
// for the run call DisableTurbo separately.
func Pin(cpu int) (unpin func(), err error) {
	if cpu < 0 {
		return nil, errs.New(errs.AllocationFailure, "cpu index must be non-negative, got %d", cpu)
	}

	runtime.LockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		return nil, errs.Wrap(errs.AllocationFailure, err, "get current CPU affinity")
	}

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpu)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		runtime.UnlockOSThread()
		return nil, errs.Wrap(errs.AllocationFailure, err, "set CPU affinity to cpu %d", cpu)
	}

	return func() {
		_ = unix.SchedSetaffinity(0, &prev)
		runtime.UnlockOSThread()
	}, nil
}

// Current returns the calling thread's current CPU affinity mask,
// translated into a slice of CPU indices, for diagnostics or for
// restoring a prior affinity after a measurement run.
func Current() ([]int, error) {
	var mask unix.CPUSet
	if err := unix.SchedGetaffinity(0, &mask); err != nil {
		return nil, errs.Wrap(errs.AllocationFailure, err, "get current CPU affinity")
	}
	// CPUSet's underlying array size is not exported by the unix package,
	// so scan a generous fixed range of CPU indices rather than guessing
	// at its width.
	const maxScanCPU = 1024
	cpus := make([]int, 0, mask.Count())
	for i := 0; i < maxScanCPU; i++ {
		if mask.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}

// noTurboPath is the intel_pstate governor file that disables turbo boost
// machine-wide when written "1". AMD's cpufreq-based governors have no
// single equivalent knob, so DisableTurbo is a best-effort hook: it is a
// harmless no-op wherever the file does not exist.
const noTurboPath = "/sys/devices/system/cpu/intel_pstate/no_turbo"

// DisableTurbo writes "1" to the intel_pstate no_turbo file if present,
// returning a restore func that writes back the file's original
// contents. If the file does not exist (non-Intel host, or pstate driver
// not in use), DisableTurbo is a no-op and restore does nothing.
func DisableTurbo() (restore func(), err error) {
	original, err := os.ReadFile(noTurboPath)
	if err != nil {
		if os.IsNotExist(err) {
			return func() {}, nil
		}
		return nil, errs.Wrap(errs.AllocationFailure, err, "read %s", noTurboPath)
	}

	if err := os.WriteFile(noTurboPath, []byte("1\n"), 0644); err != nil {
		return nil, errs.Wrap(errs.AllocationFailure, err, "disable turbo via %s", noTurboPath)
	}

	return func() {
		_ = os.WriteFile(noTurboPath, original, 0644)
	}, nil
}
