// Package addrpool implements the Address Pool (spec C4): the set of
// candidate (vaddr, paddr) records drawn from huge pages, filtered to
// remove known non-DRAM/PCI-hole ranges.
package addrpool

import (
	"math/rand"

	"github.com/drammap/sudoku-discover/pkg/errs"
)

const cachelineSize = 64

// Record is an {vaddr, paddr} pair. Invariant: Paddr != 0 and
// cache-line aligned.
type Record struct {
	Vaddr uintptr
	Paddr uintptr
}

// Pool is the Address Pool: an immutable, filtered collection of
// AddressRecords plus the random-draw operations consumers need.
type Pool struct {
	records []Record
	rng     *rand.Rand
}

// Mask filters a physical address range, removing known non-DRAM or
// PCI-hole regions.
type Mask struct {
	Lower uintptr
	Upper uintptr
}

// excluded reports whether paddr falls inside the PCI-hole range the
// mask describes.
func (m Mask) excluded(paddr uintptr) bool {
	return paddr >= m.Lower && paddr <= m.Upper
}

// New builds a Pool from raw (vaddr, paddr) pairs, validating the
// AddressRecord invariant and applying the optional exclusion masks.
// seed makes the pool's random draws reproducible.
func New(pairs []Record, masks []Mask, seed int64) (*Pool, error) {
	filtered := make([]Record, 0, len(pairs))
	for _, r := range pairs {
		if r.Paddr == 0 {
			return nil, errs.New(errs.NoPhysicalTranslation, "address record with vaddr 0x%x has no physical translation", r.Vaddr)
		}
		if r.Paddr&(cachelineSize-1) != 0 {
			continue
		}
		if maskedOut(r.Paddr, masks) {
			continue
		}
		filtered = append(filtered, r)
	}
	return &Pool{records: filtered, rng: rand.New(rand.NewSource(seed))}, nil
}

func maskedOut(paddr uintptr, masks []Mask) bool {
	for _, m := range masks {
		if m.excluded(paddr) {
			return true
		}
	}
	return false
}

// Size reports the number of records available in the pool.
func (p *Pool) Size() int { return len(p.records) }

// AllRecords returns every record the pool holds. Callers must not
// mutate the returned slice's elements; Records are read-only outside
// the pool.
func (p *Pool) AllRecords() []Record {
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// RandomRecord draws a single uniformly random record from the pool.
func (p *Pool) RandomRecord() (Record, error) {
	if len(p.records) == 0 {
		return Record{}, errs.New(errs.AllocationFailure, "address pool is empty")
	}
	return p.records[p.rng.Intn(len(p.records))], nil
}

// SampleK draws k records without replacement. If k exceeds the pool's
// size, every record is returned in randomized order.
func (p *Pool) SampleK(k int) ([]Record, error) {
	if len(p.records) == 0 {
		return nil, errs.New(errs.AllocationFailure, "address pool is empty")
	}
	if k > len(p.records) {
		k = len(p.records)
	}
	idx := p.rng.Perm(len(p.records))[:k]
	out := make([]Record, k)
	for i, j := range idx {
		out[i] = p.records[j]
	}
	return out, nil
}

// RandomPair draws two distinct random records, retrying until they
// differ; the pool must hold at least two records.
func (p *Pool) RandomPair() (Record, Record, error) {
	if len(p.records) < 2 {
		return Record{}, Record{}, errs.New(errs.AllocationFailure, "address pool has fewer than 2 records")
	}
	i := p.rng.Intn(len(p.records))
	j := p.rng.Intn(len(p.records))
	for j == i {
		j = p.rng.Intn(len(p.records))
	}
	return p.records[i], p.records[j], nil
}
