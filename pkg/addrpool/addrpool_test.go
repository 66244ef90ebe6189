package addrpool

import "testing"

func samplePairs() []Record {
	return []Record{
		{Vaddr: 0x7f0000000000, Paddr: 0x100000},
		{Vaddr: 0x7f0000001000, Paddr: 0x101000},
		{Vaddr: 0x7f0000002000, Paddr: 0x102000},
		{Vaddr: 0x7f0000003000, Paddr: 0x103000},
	}
}

func TestNewRejectsZeroPaddr(t *testing.T) {
	pairs := []Record{{Vaddr: 1, Paddr: 0}}
	if _, err := New(pairs, nil, 1); err == nil {
		t.Fatal("expected error for zero paddr")
	}
}

func TestNewFiltersUnaligned(t *testing.T) {
	pairs := []Record{
		{Vaddr: 1, Paddr: 0x1000},
		{Vaddr: 2, Paddr: 0x1001},
	}
	pool, err := New(pairs, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if pool.Size() != 1 {
		t.Fatalf("got size %d, want 1", pool.Size())
	}
}

func TestNewAppliesMask(t *testing.T) {
	pool, err := New(samplePairs(), []Mask{{Lower: 0x101000, Upper: 0x101fff}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if pool.Size() != 3 {
		t.Fatalf("got size %d, want 3", pool.Size())
	}
	for _, r := range pool.AllRecords() {
		if r.Paddr == 0x101000 {
			t.Error("masked address still present")
		}
	}
}

func TestRandomRecordEmptyPool(t *testing.T) {
	pool, err := New(nil, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.RandomRecord(); err == nil {
		t.Fatal("expected error on empty pool")
	}
}

func TestSampleKClampsToSize(t *testing.T) {
	pool, err := New(samplePairs(), nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	out, err := pool.SampleK(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != pool.Size() {
		t.Fatalf("got %d records, want %d", len(out), pool.Size())
	}
}

func TestRandomPairDistinct(t *testing.T) {
	pool, err := New(samplePairs(), nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	a, b, err := pool.RandomPair()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("expected distinct records")
	}
}

func TestRandomPairTooSmall(t *testing.T) {
	pool, err := New(samplePairs()[:1], nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := pool.RandomPair(); err == nil {
		t.Fatal("expected error for pool smaller than 2")
	}
}
