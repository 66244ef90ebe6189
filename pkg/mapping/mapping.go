// Package mapping implements the Mapping Assembler (spec C9): combining
// validated FunctionHypotheses into a coherent, linearly independent
// Mapping artifact.
package mapping

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/drammap/sudoku-discover/pkg/errs"
	"github.com/drammap/sudoku-discover/pkg/hypothesis"
)

// Expected describes how many functions of each kind the platform
// profile's DRAM geometry calls for, plus the row/column bit ranges the
// geometry implies directly (these don't come from hypothesis discovery,
// they're geometry facts carried through so Assemble can emit them).
type Expected struct {
	RankBits       int
	SubchannelBits int
	BankGroupBits  int
	BankBits       int

	ColumnBitsLow  int
	ColumnBitsHigh int
	RowBitsLow     int
	RowBitsHigh    int
}

func (e Expected) total() int {
	return e.RankBits + e.SubchannelBits + e.BankGroupBits + e.BankBits
}

// Mapping is the terminal artifact: the recovered bank-selection functions
// grouped into the geometry categories the platform profile calls for,
// plus the row/column bit ranges implied by that geometry. Functions,
// Complete, Expected and Got carry the raw diagnostic view used to report
// a mapping-incomplete outcome.
type Mapping struct {
	Rank       []int   `json:"rank"`
	Subchannel []int   `json:"subchannel"`
	BankGroup  [][]int `json:"bank_group"`
	Bank       [][]int `json:"bank"`
	RowBits    [2]int  `json:"row_bits"`
	ColumnBits [2]int  `json:"column_bits"`

	Functions []hypothesis.Hypothesis `json:"functions"`
	Complete  bool                    `json:"complete"`
	Expected  int                     `json:"expected"`
	Got       int                     `json:"got"`
}

// Assemble groups validated hypotheses by highest bit position, removes
// duplicates by canonical bit-set, keeps only a linearly independent
// subset, and assigns them to rank/subchannel/bank-group/bank slots in
// ascending bit-position order: bank bits sit lowest (closest to the
// column field), then bank-group bits, then subchannel, then rank — the
// same low-to-high order Geometry.RowBitBoundary sums in. Row and column
// bit ranges are geometry facts and are always emitted regardless of
// whether discovery succeeded. If the independent count does not match
// expected, it still returns every surviving hypothesis with Complete set
// to false so the caller can emit a mapping-incomplete diagnostic.
func Assemble(validated []hypothesis.Hypothesis, expected Expected) Mapping {
	deduped := dedupe(validated)
	independent := linearlyIndependentSubset(deduped)

	sort.Slice(independent, func(i, j int) bool {
		return independent[i].Highest() < independent[j].Highest()
	})

	want := expected.total()
	got := len(independent)

	remaining := independent
	var bankHyps, bankGroupHyps, subchannelHyps, rankHyps []hypothesis.Hypothesis
	bankHyps, remaining = take(remaining, expected.BankBits)
	bankGroupHyps, remaining = take(remaining, expected.BankGroupBits)
	subchannelHyps, remaining = take(remaining, expected.SubchannelBits)
	rankHyps, remaining = take(remaining, expected.RankBits)

	m := Mapping{
		Rank:       flattenBits(rankHyps),
		Subchannel: flattenBits(subchannelHyps),
		BankGroup:  toBitLists(bankGroupHyps),
		Bank:       toBitLists(bankHyps),
		RowBits:    [2]int{expected.RowBitsLow, expected.RowBitsHigh},
		ColumnBits: [2]int{expected.ColumnBitsLow, expected.ColumnBitsHigh},
		Functions:  independent,
		Expected:   want,
		Got:        got,
		Complete:   got == want,
	}
	return m
}

// take splits off up to n hypotheses from the front of hs, clamped to
// len(hs), returning the split-off slice and the remainder.
func take(hs []hypothesis.Hypothesis, n int) (taken, rest []hypothesis.Hypothesis) {
	if n <= 0 {
		return nil, hs
	}
	if n > len(hs) {
		n = len(hs)
	}
	return hs[:n], hs[n:]
}

// toBitLists converts each hypothesis into its own bit-list entry,
// preserving the XOR structure of multi-term bank/bank-group functions.
func toBitLists(hs []hypothesis.Hypothesis) [][]int {
	if len(hs) == 0 {
		return nil
	}
	out := make([][]int, len(hs))
	for i, h := range hs {
		out[i] = h.Bits
	}
	return out
}

// flattenBits concatenates every hypothesis's bits into one flat list,
// the convention used for rank/subchannel selectors (conventionally
// single physical bits rather than multi-term XOR functions).
func flattenBits(hs []hypothesis.Hypothesis) []int {
	var out []int
	for _, h := range hs {
		out = append(out, h.Bits...)
	}
	return out
}

// dedupe removes hypotheses whose canonical bit-set has already been
// seen.
func dedupe(hs []hypothesis.Hypothesis) []hypothesis.Hypothesis {
	seen := map[[64]bool]bool{}
	var out []hypothesis.Hypothesis
	for _, h := range hs {
		k := h.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, h)
	}
	return out
}

// linearlyIndependentSubset greedily keeps hypotheses whose bit-set,
// treated as a vector over GF(2) on the meaningful bit range, is not the
// XOR of any two already-kept hypotheses — the spec's check that no
// pairwise XOR of validated hypotheses equals a third.
func linearlyIndependentSubset(hs []hypothesis.Hypothesis) []hypothesis.Hypothesis {
	var kept []hypothesis.Hypothesis
	for _, h := range hs {
		if !xorEqualsAny(h, kept) {
			kept = append(kept, h)
		}
	}
	return kept
}

func xorEqualsAny(candidate hypothesis.Hypothesis, kept []hypothesis.Hypothesis) bool {
	ck := candidate.Key()
	for i := 0; i < len(kept); i++ {
		for j := i + 1; j < len(kept); j++ {
			if xor(kept[i].Key(), kept[j].Key()) == ck {
				return true
			}
		}
	}
	return false
}

func xor(a, b [64]bool) [64]bool {
	var out [64]bool
	for i := range a {
		out[i] = a[i] != b[i]
	}
	return out
}

// IncompleteError returns a mapping-incomplete diagnostic error listing
// the hypotheses the assembler had left when it could not reach the
// expected count.
func (m Mapping) IncompleteError() error {
	if m.Complete {
		return nil
	}
	return errs.New(errs.MappingIncomplete, "mapping incomplete: expected %d functions, assembled %d: %+v", m.Expected, m.Got, m.Functions)
}

// Write serializes the Mapping as JSON to w.
func (m Mapping) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
