// Package oracle implements the Conflict Oracle (spec C3): deciding
// whether two physical addresses share a DRAM bank from sampled
// paired-access latency.
package oracle

import (
	"github.com/drammap/sudoku-discover/pkg/profile"
	"github.com/drammap/sudoku-discover/pkg/sampler"
	"github.com/drammap/sudoku-discover/pkg/timing"
)

// Verdict is the outcome of a same_bank? query.
type Verdict int

const (
	Different Verdict = iota
	Same
	Inconclusive
)

func (v Verdict) String() string {
	switch v {
	case Same:
		return "same"
	case Different:
		return "different"
	default:
		return "inconclusive"
	}
}

// Oracle decides same-bank status for address pairs by sampling paired
// row-buffer-conflict latency through a timing.Source.
type Oracle struct {
	src    timing.Source
	timing profile.Timing
}

// New constructs an Oracle bound to the given timing source and the
// platform profile's calibrated latency bounds.
func New(src timing.Source, t profile.Timing) *Oracle {
	return &Oracle{src: src, timing: t}
}

// SameBank decides same_bank?(a1, a2) per spec: sample paired-coarse
// latency, evaluate the median against the configured SBDR window, and
// use the 25th-percentile whisker to detect refresh interference. Only
// that whisker tie-break is retried once; a median clearly outside the
// window (above SBDR_UPPER_BOUND) is surrendered to the caller as
// Inconclusive without a resample.
func (o *Oracle) SameBank(a1, a2 uintptr) Verdict {
	v, whiskerTie := o.evaluate(a1, a2)
	if v == Inconclusive && whiskerTie {
		v, _ = o.evaluate(a1, a2)
	}
	return v
}

// evaluate reports the verdict and whether it was produced by the
// 25th-percentile-whisker tie-break (the only case SameBank retries).
func (o *Oracle) evaluate(a1, a2 uintptr) (verdict Verdict, whiskerTie bool) {
	rows := sampler.SamplePairedCoarse(o.src, a1, a2, o.timing.ConflictNumIteration)
	stats := sampler.Summarize(sampler.D1Values(rows))

	lower := float64(o.timing.SBDRLowerBound)
	upper := float64(o.timing.SBDRUpperBound)

	if stats.Median < lower {
		return Different, false
	}
	if stats.Median >= lower && stats.Median <= upper {
		if stats.P25 < lower {
			// Whisker below the window while the median sits inside it:
			// likely a refresh-interval artifact, not a true conflict.
			return Inconclusive, true
		}
		return Same, false
	}
	return Inconclusive, false
}

// Disjoint reports whether candidate is Different from every one of the
// given cluster representatives, used by the partitioner to confirm a
// new pivot belongs to none of the existing banks.
func (o *Oracle) Disjoint(candidate uintptr, representatives []uintptr) bool {
	for _, rep := range representatives {
		if o.SameBank(candidate, rep) != Different {
			return false
		}
	}
	return true
}
