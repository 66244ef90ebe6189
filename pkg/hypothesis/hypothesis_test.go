package hypothesis

import "testing"

func TestEvalXORParity(t *testing.T) {
	h := Hypothesis{Bits: []int{6, 7}}
	// bits 6 and 7 both set -> parity 0
	if got := h.Eval(0b11000000); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	// only bit 6 set -> parity 1
	if got := h.Eval(0b01000000); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}

func TestEnumeratorCanonicalOrder(t *testing.T) {
	e := NewEnumerator(1, 2, 6, 9, -1)

	var seen []Hypothesis
	for {
		h, ok := e.Next()
		if !ok {
			break
		}
		seen = append(seen, h)
	}

	// cardinality-1 hypotheses must all precede cardinality-2 ones.
	sawTwo := false
	for _, h := range seen {
		if len(h.Bits) == 2 {
			sawTwo = true
		} else if sawTwo {
			t.Fatalf("cardinality-1 hypothesis found after a cardinality-2 one: %+v", h)
		}
	}

	// within cardinality 1, bit index must be ascending.
	var ones []int
	for _, h := range seen {
		if len(h.Bits) == 1 {
			ones = append(ones, h.Bits[0])
		}
	}
	for i := 1; i < len(ones); i++ {
		if ones[i] <= ones[i-1] {
			t.Fatalf("cardinality-1 hypotheses not in ascending order: %v", ones)
		}
	}
}

func TestEnumeratorPrunesAboveRowBound(t *testing.T) {
	e := NewEnumerator(1, 1, 6, 12, 9)
	for {
		h, ok := e.Next()
		if !ok {
			break
		}
		if h.Bits[0] > 9 {
			t.Fatalf("hypothesis entirely above row bound should be pruned: %+v", h)
		}
	}
}

func TestEnumeratorResetAndRemaining(t *testing.T) {
	e := NewEnumerator(1, 1, 6, 10, -1)
	total := e.Remaining()
	if total == 0 {
		t.Fatal("expected at least one hypothesis")
	}
	e.Next()
	if e.Remaining() != total-1 {
		t.Fatalf("remaining = %d, want %d", e.Remaining(), total-1)
	}
	e.Reset()
	if e.Remaining() != total {
		t.Fatalf("after reset remaining = %d, want %d", e.Remaining(), total)
	}
}

func TestEnumeratorNoDuplicates(t *testing.T) {
	e := NewEnumerator(1, 3, 6, 12, -1)
	seen := map[[64]bool]bool{}
	for {
		h, ok := e.Next()
		if !ok {
			break
		}
		k := h.Key()
		if seen[k] {
			t.Fatalf("duplicate hypothesis: %+v", h)
		}
		seen[k] = true
	}
}
