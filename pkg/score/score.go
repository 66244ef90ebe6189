// Package score implements the Function Scorer (spec C7): scoring how
// well a candidate hypothesis agrees with the Conflict Oracle's
// same-bank verdicts over random address pairs.
package score

import (
	"github.com/drammap/sudoku-discover/pkg/addrpool"
	"github.com/drammap/sudoku-discover/pkg/hypothesis"
	"github.com/drammap/sudoku-discover/pkg/oracle"
	"github.com/drammap/sudoku-discover/pkg/profile"
)

// Result is a FunctionScore: the success/failure tally accumulated for
// one hypothesis.
type Result struct {
	Hypothesis hypothesis.Hypothesis
	Success    int
	Failure    int
	Discarded  bool
}

// Promoted reports whether the hypothesis accumulated enough successes
// to pass this stage.
func (r Result) Promoted(successThreshold int) bool {
	return !r.Discarded && r.Success >= successThreshold
}

// Scorer evaluates hypotheses against random pairs drawn from the
// Address Pool, consulting the Conflict Oracle for ground truth.
type Scorer struct {
	pool   *addrpool.Pool
	oracle *oracle.Oracle
	timing profile.Timing
}

// New constructs a Scorer bound to the given pool, oracle, and the
// platform profile's trial/threshold configuration.
func New(pool *addrpool.Pool, o *oracle.Oracle, t profile.Timing) *Scorer {
	return &Scorer{pool: pool, oracle: o, timing: t}
}

// Filter runs the cheap pre-filter pass (64 pairs) and reports whether h
// survives: hypotheses accumulating FilterScore or more early failures
// are dropped before the expensive full pass.
func (s *Scorer) Filter(h hypothesis.Hypothesis) (Result, error) {
	return s.run(h, 64, s.timing.FilterScore-1, -1)
}

// Full runs the full scoring pass (NumEffectiveTrial pairs) with
// short-circuit discard at TrialFailureScore and promotion at
// TrialSuccessScore.
func (s *Scorer) Full(h hypothesis.Hypothesis) (Result, error) {
	return s.run(h, s.timing.NumEffectiveTrial, s.timing.TrialFailureScore, s.timing.TrialSuccessScore)
}

// run draws up to trials pairs, scoring each against the 2x2 oracle/
// f-agreement matrix, and stops early once failureLimit is exceeded or
// (when successLimit >= 0) successLimit successes have accumulated.
func (s *Scorer) run(h hypothesis.Hypothesis, trials, failureLimit, successLimit int) (Result, error) {
	r := Result{Hypothesis: h}

	for i := 0; i < trials; i++ {
		a, b, err := s.pool.RandomPair()
		if err != nil {
			return r, err
		}

		verdict := s.oracle.SameBank(a.Paddr, b.Paddr)
		if verdict == oracle.Inconclusive {
			continue
		}

		agree := h.Eval(a.Paddr) == h.Eval(b.Paddr)
		switch {
		case verdict == oracle.Same && agree:
			r.Success++
		case verdict == oracle.Same && !agree:
			r.Failure++
		case verdict == oracle.Different && !agree:
			r.Success++
		case verdict == oracle.Different && agree:
			r.Failure++
		}

		if r.Failure > failureLimit {
			r.Discarded = true
			return r, nil
		}
		if successLimit >= 0 && r.Success >= successLimit {
			return r, nil
		}
	}
	return r, nil
}
