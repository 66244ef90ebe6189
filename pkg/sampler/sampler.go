// Package sampler implements the Histogram Sampler (spec C2): it drives
// the timing facade through flush/fence/touch/fence sequences and
// collects the resulting cycle-count rows into fixed-width SampleSets.
package sampler

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/drammap/sudoku-discover/pkg/errs"
	"github.com/drammap/sudoku-discover/pkg/timing"
)

// Row2 is a 2-column HistogramRow: a start timestamp and one segment
// delta, used by single-access and paired-coarse sampling.
type Row2 struct {
	T0 uint64
	D1 uint64
}

// Row3 is a 3-column HistogramRow, used by paired-fine sampling where the
// two accesses' latencies are recorded separately.
type Row3 struct {
	T0 uint64
	D1 uint64
	D2 uint64
}

// ConsecutiveRow holds L back-to-back load latencies from one address,
// produced by SampleConsecutive.
type ConsecutiveRow struct {
	T0 uint64
	D  []uint64
}

// SampleSingle records N iterations of flush; fence; t0=tsc; touch;
// fence; t1=tsc at a single address, yielding d1 = t1-t0.
func SampleSingle(src timing.Source, a uintptr, n int) []Row2 {
	rows := make([]Row2, n)
	for i := 0; i < n; i++ {
		src.Flush(a)
		src.Fence()
		t0 := src.TSC()
		src.Touch(a)
		src.Fence()
		t1 := src.TSC()
		rows[i] = Row2{T0: t0, D1: t1 - t0}
	}
	return rows
}

// SamplePairedCoarse records the combined latency of two back-to-back
// uncached loads: flush both, then touch both before the closing fence.
func SamplePairedCoarse(src timing.Source, a1, a2 uintptr, n int) []Row2 {
	rows := make([]Row2, n)
	for i := 0; i < n; i++ {
		src.Flush(a1)
		src.Flush(a2)
		src.Fence()
		t0 := src.TSC()
		src.Touch(a1)
		src.Touch(a2)
		src.Fence()
		t1 := src.TSC()
		rows[i] = Row2{T0: t0, D1: t1 - t0}
	}
	return rows
}

// SamplePairedFine records both segment latencies of a paired access
// separately: the first access's latency and the second access's latency,
// each bracketed by its own fence.
func SamplePairedFine(src timing.Source, a1, a2 uintptr, n int) []Row3 {
	rows := make([]Row3, n)
	for i := 0; i < n; i++ {
		src.Flush(a1)
		src.Flush(a2)
		src.Fence()
		t0 := src.TSC()
		src.Touch(a1)
		src.Fence()
		t1 := src.TSC()
		src.Touch(a2)
		src.Fence()
		t2 := src.TSC()
		rows[i] = Row3{T0: t0, D1: t1 - t0, D2: t2 - t1}
	}
	return rows
}

// SampleConsecutive records L back-to-back loads from the same address
// per iteration, used to measure refresh effects on a single bank.
func SampleConsecutive(src timing.Source, a uintptr, n, l int) []ConsecutiveRow {
	rows := make([]ConsecutiveRow, n)
	for i := 0; i < n; i++ {
		src.Flush(a)
		src.Fence()
		t0 := src.TSC()
		deltas := make([]uint64, l)
		prev := t0
		for j := 0; j < l; j++ {
			src.Touch(a)
			src.Fence()
			t := src.TSC()
			deltas[j] = t - prev
			prev = t
		}
		rows[i] = ConsecutiveRow{T0: t0, D: deltas}
	}
	return rows
}

// Stats is the {min, p25, median, p75, max, mean} summary used for
// thresholding decisions.
type Stats struct {
	Min    float64
	P25    float64
	Median float64
	P75    float64
	Max    float64
	Mean   float64
}

// D1Values extracts the d1 column from a Row2 SampleSet as float64s.
func D1Values(rows []Row2) []float64 {
	vals := make([]float64, len(rows))
	for i, r := range rows {
		vals[i] = float64(r.D1)
	}
	return vals
}

// D2Values extracts the d2 column from a Row3 SampleSet as float64s.
func D2Values(rows []Row3) []float64 {
	vals := make([]float64, len(rows))
	for i, r := range rows {
		vals[i] = float64(r.D2)
	}
	return vals
}

// Summarize computes Stats over a set of latency samples. An empty input
// yields a zero-valued Stats without error, per spec's "SampleSet of
// length 0 yields an empty statistics record without error" boundary.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return Stats{
		Min:    sorted[0],
		P25:    stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P75:    stat.Quantile(0.75, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
		Mean:   stat.Mean(sorted, nil),
	}
}

// Width is the set of supported HistogramRow column counts.
type Width int

const (
	Width2 Width = 2
	Width3 Width = 3
)

// ValidateWidth returns UnsupportedHistogramWidth for anything other than
// the two- and three-column row shapes the engine understands.
func ValidateWidth(w int) error {
	if w != int(Width2) && w != int(Width3) {
		return errs.New(errs.UnsupportedHistogramWidth, "unsupported histogram width: %d", w)
	}
	return nil
}
