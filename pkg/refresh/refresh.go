// Package refresh implements the Refresh Validator (spec C8): using
// refresh-interval statistics to reject false-positive bank-selection
// hypotheses.
package refresh

import (
	"sort"

	"github.com/drammap/sudoku-discover/pkg/errs"
	"github.com/drammap/sudoku-discover/pkg/profile"
	"github.com/drammap/sudoku-discover/pkg/sampler"
	"github.com/drammap/sudoku-discover/pkg/timing"
)

// Mode selects which HistogramRow width the validator samples.
type Mode int

const (
	// Coarse attributes refresh detection to the combined 2-column
	// latency of a paired access.
	Coarse Mode = iota
	// Fine attributes refresh detection to the second access's segment
	// latency alone, adjusting the inferred refresh timestamp by the
	// first access's latency. This is the 3-column path; unlike the
	// path it is modeled on, the width here always matches the sampler
	// actually invoked.
	Fine
)

// Report is the outcome of validating one hypothesis's address pair.
type Report struct {
	Mode         Mode
	Intervals    []uint64
	Median       uint64
	InWindowFrac float64
	Validated    bool
}

// Validate runs sample_paired_coarse or sample_paired_fine against a, b
// depending on mode, extracts refresh-affected samples via threshold,
// and checks the resulting inter-refresh intervals against the
// platform's tREFI window. It returns an EmptyIntervalSample error when
// fewer than two refresh events were detected at all — a sign the
// threshold is miscalibrated rather than a genuine out-of-window median.
func Validate(src timing.Source, a, b uintptr, mode Mode, threshold uint64, t profile.Timing) (Report, error) {
	width := sampler.Width2
	if mode == Fine {
		width = sampler.Width3
	}
	if err := sampler.ValidateWidth(int(width)); err != nil {
		return Report{Mode: mode}, err
	}

	var refreshTimestamps []uint64

	switch mode {
	case Coarse:
		rows := sampler.SamplePairedCoarse(src, a, b, t.RefreshNumIteration)
		refreshTimestamps = filterCoarse(rows, threshold)
	case Fine:
		rows := sampler.SamplePairedFine(src, a, b, t.RefreshNumIteration)
		refreshTimestamps = filterFine(rows, threshold)
	}

	intervals := computeIntervals(refreshTimestamps)
	if len(intervals) == 0 {
		return Report{Mode: mode}, errs.New(errs.EmptyIntervalSample,
			"fewer than two refresh events detected in mode %v (thresholds likely miscalibrated)", mode)
	}

	median := medianUint64(intervals)
	frac := inWindowFraction(intervals, t.RefreshCycleLowerBound, t.RefreshCycleUpperBound)

	validated := median >= t.RefreshCycleLowerBound &&
		median <= t.RefreshCycleUpperBound &&
		frac >= t.RegularRefreshIntervalThreshold

	return Report{
		Mode:         mode,
		Intervals:    intervals,
		Median:       median,
		InWindowFrac: frac,
		Validated:    validated,
	}, nil
}

// filterCoarse marks an iteration refresh-affected when its combined
// (2-column) latency exceeds threshold, recording the timestamp relative
// to the first sample's t0.
func filterCoarse(rows []sampler.Row2, threshold uint64) []uint64 {
	if len(rows) == 0 {
		return nil
	}
	base := rows[0].T0
	var out []uint64
	for _, r := range rows {
		if r.D1 > threshold {
			out = append(out, r.T0-base)
		}
	}
	return out
}

// filterFine marks an iteration refresh-affected when its second
// segment latency exceeds threshold, adjusting the inferred refresh
// timestamp by the first access's latency so it lands where the second
// access actually executed.
func filterFine(rows []sampler.Row3, threshold uint64) []uint64 {
	if len(rows) == 0 {
		return nil
	}
	base := rows[0].T0
	var out []uint64
	for _, r := range rows {
		if r.D2 > threshold {
			out = append(out, r.T0-base+r.D1)
		}
	}
	return out
}

// computeIntervals turns a sorted sequence of refresh timestamps into
// successive deltas. Fewer than two refresh detections yield no
// intervals, matching "no refresh detected" boundary behavior.
func computeIntervals(refreshes []uint64) []uint64 {
	if len(refreshes) < 2 {
		return nil
	}
	sorted := append([]uint64(nil), refreshes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	intervals := make([]uint64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, sorted[i]-sorted[i-1])
	}
	return intervals
}

func medianUint64(vals []uint64) uint64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]uint64(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func inWindowFraction(vals []uint64, lower, upper uint64) float64 {
	if len(vals) == 0 {
		return 0
	}
	count := 0
	for _, v := range vals {
		if v >= lower && v <= upper {
			count++
		}
	}
	return float64(count) / float64(len(vals))
}
