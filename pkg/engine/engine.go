// Package engine sequences the discovery pipeline: Pool, Partition,
// Hypothesize, Score, Validate, Assemble (spec C4 through C9), the way
// the original project's orchestrator sequenced a chaos test's lifecycle
// through a small state machine.
package engine

import (
	"context"
	"fmt"

	"github.com/drammap/sudoku-discover/pkg/addrpool"
	"github.com/drammap/sudoku-discover/pkg/diag"
	"github.com/drammap/sudoku-discover/pkg/errs"
	"github.com/drammap/sudoku-discover/pkg/hypothesis"
	"github.com/drammap/sudoku-discover/pkg/mapping"
	"github.com/drammap/sudoku-discover/pkg/oracle"
	"github.com/drammap/sudoku-discover/pkg/partition"
	"github.com/drammap/sudoku-discover/pkg/profile"
	"github.com/drammap/sudoku-discover/pkg/refresh"
	"github.com/drammap/sudoku-discover/pkg/score"
	"github.com/drammap/sudoku-discover/pkg/timing"
)

// State is one stage of the discovery pipeline.
type State int

const (
	StatePool State = iota
	StatePartition
	StateHypothesize
	StateScore
	StateValidate
	StateAssemble
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePool:
		return "POOL"
	case StatePartition:
		return "PARTITION"
	case StateHypothesize:
		return "HYPOTHESIZE"
	case StateScore:
		return "SCORE"
	case StateValidate:
		return "VALIDATE"
	case StateAssemble:
		return "ASSEMBLE"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Config bundles everything a discovery run needs: the platform profile,
// the raw address records to build a Pool from, and the timing source to
// probe with (a real CPUSource in production, a FakeSource in tests).
type Config struct {
	Profile profile.Profile
	Records []addrpool.Record
	Masks   []addrpool.Mask
	Source  timing.Source
	Seed    int64
	Diag    *diag.Diag
}

// Engine runs one discovery pipeline to completion or failure.
type Engine struct {
	cfg    Config
	cancel *cancelFlag
	state  State
}

// New constructs an Engine from cfg, defaulting Diag to a stdout JSON
// logger if none was supplied.
func New(cfg Config) *Engine {
	if cfg.Diag == nil {
		cfg.Diag = diag.New(diag.Config{})
	}
	return &Engine{cfg: cfg, cancel: newCancelFlag(), state: StatePool}
}

// Run executes the full pipeline, returning the assembled Mapping or the
// error the first failing stage produced.
func (e *Engine) Run(ctx context.Context) (mapping.Mapping, error) {
	e.cancel.watchSignals(ctx)

	pool, err := e.runPool()
	if err != nil {
		return mapping.Mapping{}, e.fail(err)
	}

	o := oracle.New(e.cfg.Source, e.cfg.Profile.Timing)

	_, err = e.runPartition(pool, o)
	if err != nil {
		return mapping.Mapping{}, e.fail(err)
	}
	if cancelled, reason := e.cancel.status(); cancelled {
		return mapping.Mapping{}, e.fail(fmt.Errorf("interrupted after partition: %s", reason))
	}

	survivors, err := e.runHypothesizeAndScore(pool, o)
	if err != nil {
		return mapping.Mapping{}, e.fail(err)
	}
	if cancelled, reason := e.cancel.status(); cancelled {
		return mapping.Mapping{}, e.fail(fmt.Errorf("interrupted after scoring: %s", reason))
	}

	validated := e.runValidate(pool, survivors)

	m := e.runAssemble(validated)
	e.transition(StateCompleted)
	return m, nil
}

func (e *Engine) transition(s State) {
	e.state = s
	e.cfg.Diag.Phase(s.String())
}

func (e *Engine) fail(err error) error {
	e.transition(StateFailed)
	return err
}

func (e *Engine) runPool() (*addrpool.Pool, error) {
	e.transition(StatePool)
	pool, err := addrpool.New(e.cfg.Records, e.cfg.Masks, e.cfg.Seed)
	if err != nil {
		return nil, err
	}
	if pool.Size() == 0 {
		return nil, errs.New(errs.AllocationFailure, "address pool is empty after filtering")
	}
	return pool, nil
}

func (e *Engine) runPartition(pool *addrpool.Pool, o *oracle.Oracle) ([]partition.Cluster, error) {
	e.transition(StatePartition)
	p := partition.New(pool, o, e.cfg.Profile.Timing)

	numBanks := 1 << uint(e.cfg.Profile.Geometry.NumBankBits())
	clusters, err := p.Partition(numBanks)
	if err != nil {
		e.cfg.Diag.PartitionFailed(err)
		return nil, err
	}
	for i, c := range clusters {
		e.cfg.Diag.ClusterFound(i, len(c.Records))
	}
	return clusters, nil
}

func (e *Engine) runHypothesizeAndScore(pool *addrpool.Pool, o *oracle.Oracle) ([]hypothesis.Hypothesis, error) {
	e.transition(StateHypothesize)
	t := e.cfg.Profile.Timing
	rowBound := e.cfg.Profile.Geometry.RowBitBoundary(t.CachelineOffset)
	enumerator := hypothesis.NewEnumerator(t.FunctionMinNumBits, t.FunctionMaxNumBits, int(t.CachelineOffset), 63, rowBound)

	e.transition(StateScore)
	scorer := score.New(pool, o, t)

	var survivors []hypothesis.Hypothesis
	target := e.cfg.Profile.Geometry.NumBankBits()

	for {
		if cancelled, _ := e.cancel.status(); cancelled {
			break
		}
		h, ok := enumerator.Next()
		if !ok {
			break
		}

		filterResult, err := scorer.Filter(h)
		if err != nil {
			return nil, err
		}
		if filterResult.Discarded {
			e.cfg.Diag.HypothesisFiltered(h.Bits, filterResult.Failure)
			continue
		}

		full, err := scorer.Full(h)
		if err != nil {
			return nil, err
		}
		if full.Discarded {
			continue
		}
		if full.Promoted(t.TrialSuccessScore) {
			e.cfg.Diag.HypothesisPromoted(h.Bits, full.Success, full.Failure)
			survivors = append(survivors, h)
		}

		if target > 0 && len(survivors) >= target*2 {
			// Enough candidates confirmed to cross-check against the
			// expected bank count; the enumerator is restartable so
			// stopping early here does not lose remaining hypotheses
			// permanently.
			break
		}
	}
	return survivors, nil
}

func (e *Engine) runValidate(pool *addrpool.Pool, candidates []hypothesis.Hypothesis) []hypothesis.Hypothesis {
	e.transition(StateValidate)
	t := e.cfg.Profile.Timing

	var validated []hypothesis.Hypothesis
	for _, h := range candidates {
		a, b, err := pairWithEqualFunction(pool, h)
		if err != nil {
			continue
		}

		threshold := t.SBDRUpperBound
		coarse, coarseErr := refresh.Validate(e.cfg.Source, a, b, refresh.Coarse, threshold, t)
		fine, fineErr := refresh.Validate(e.cfg.Source, a, b, refresh.Fine, threshold, t)

		ok := coarseErr == nil && coarse.Validated || fineErr == nil && fine.Validated
		report := coarse
		reportErr := coarseErr
		if fineErr == nil && fine.Validated {
			report = fine
			reportErr = fineErr
		}
		if reportErr != nil {
			e.cfg.Diag.RefreshValidated(h.Bits, 0, 0, false)
			continue
		}
		e.cfg.Diag.RefreshValidated(h.Bits, report.Median, report.InWindowFrac, ok)

		if ok {
			validated = append(validated, h)
		}
	}
	return validated
}

func (e *Engine) runAssemble(validated []hypothesis.Hypothesis) mapping.Mapping {
	e.transition(StateAssemble)
	geo := e.cfg.Profile.Geometry
	t := e.cfg.Profile.Timing
	rowBoundary := geo.RowBitBoundary(t.CachelineOffset)
	expected := mapping.Expected{
		RankBits:       geo.NumRankBits,
		SubchannelBits: geo.NumSubchannelBits,
		BankGroupBits:  geo.NumBankGroupBits,
		BankBits:       geo.NumBankAddressBits,
		ColumnBitsLow:  int(t.CachelineOffset),
		ColumnBitsHigh: int(t.CachelineOffset) + geo.NumColumnBits - 1,
		RowBitsLow:     rowBoundary,
		RowBitsHigh:    rowBoundary + geo.NumRowBits - 1,
	}
	m := mapping.Assemble(validated, expected)
	if m.Complete {
		e.cfg.Diag.MappingComplete(len(m.Functions))
	} else {
		highest := make([]int, len(m.Functions))
		for i, f := range m.Functions {
			highest[i] = f.Highest()
		}
		e.cfg.Diag.MappingIncomplete(m.Expected, m.Got, highest)
	}
	return m
}

// pairWithEqualFunction draws pairs from the pool until it finds two
// addresses with f(paddr(a)) == f(paddr(b)), as the refresh validator's
// protocol requires.
func pairWithEqualFunction(pool *addrpool.Pool, h hypothesis.Hypothesis) (uintptr, uintptr, error) {
	const maxAttempts = 256
	for i := 0; i < maxAttempts; i++ {
		a, b, err := pool.RandomPair()
		if err != nil {
			return 0, 0, err
		}
		if h.Eval(a.Paddr) == h.Eval(b.Paddr) {
			return a.Paddr, b.Paddr, nil
		}
	}
	return 0, 0, errs.New(errs.InsufficientConflictSignal, "could not find an address pair agreeing under hypothesis %v", h.Bits)
}
