// Package errs defines the typed error kinds the discovery engine can
// return. Every engine package returns one of these instead of calling
// os.Exit or panicking on a recoverable condition — only cmd/ packages
// translate a returned error into a process exit code.
package errs

import "fmt"

// Kind identifies which class of failure an Error represents.
type Kind string

const (
	// NoPhysicalTranslation: pagemap lookup yielded zero; the process may
	// lack CAP_SYS_ADMIN.
	NoPhysicalTranslation Kind = "no_physical_translation"
	// InsufficientConflictSignal: the partitioner could not build a
	// cluster of the configured minimum size; the platform profile is
	// likely wrong.
	InsufficientConflictSignal Kind = "insufficient_conflict_signal"
	// UnsupportedHistogramWidth: caller asked for an unsupported column
	// count from the histogram sampler.
	UnsupportedHistogramWidth Kind = "unsupported_histogram_width"
	// EmptyIntervalSample: fewer than two refresh events detected during
	// validation; REFRESH_CYCLE thresholds are likely wrong.
	EmptyIntervalSample Kind = "empty_interval_sample"
	// MappingIncomplete: the surviving hypothesis count disagrees with
	// the configured DRAM geometry.
	MappingIncomplete Kind = "mapping_incomplete"
	// AllocationFailure: huge-page mmap failed.
	AllocationFailure Kind = "allocation_failure"
	// InvalidProfile: no registered platform profile matches the
	// requested (cpuID, ddrID) pair.
	InvalidProfile Kind = "invalid_profile"
)

// Error is a typed, wrapped error carrying one of the Kind values above.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that wraps an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.kind == kind
}
