// Package partition implements the Bank Partitioner (spec C5): clustering
// the Address Pool into presumed same-bank groups using the Conflict
// Oracle.
package partition

import (
	"github.com/drammap/sudoku-discover/pkg/addrpool"
	"github.com/drammap/sudoku-discover/pkg/errs"
	"github.com/drammap/sudoku-discover/pkg/oracle"
	"github.com/drammap/sudoku-discover/pkg/profile"
)

// Cluster is a BankCluster: a set of records the oracle has confirmed
// are mutually same-bank, plus one designated representative used for
// disjointness checks against future pivots.
type Cluster struct {
	Records        []addrpool.Record
	Representative addrpool.Record
}

// Partitioner drives the pivot-and-grow protocol described in the bank
// partitioning design.
type Partitioner struct {
	pool   *addrpool.Pool
	oracle *oracle.Oracle
	timing profile.Timing
}

// New constructs a Partitioner over the given pool and oracle, using the
// platform profile's trial budget and minimum cluster size.
func New(pool *addrpool.Pool, o *oracle.Oracle, t profile.Timing) *Partitioner {
	return &Partitioner{pool: pool, oracle: o, timing: t}
}

// Partition clusters the pool into numClusters BankClusters, each
// reaching the profile's minimum set size, stopping once numClusters
// have been produced or the pool is exhausted of usable pivots.
func (p *Partitioner) Partition(numClusters int) ([]Cluster, error) {
	clusters := make([]Cluster, 0, numClusters)

	for len(clusters) < numClusters {
		pivot, err := p.findPivot(clusters)
		if err != nil {
			return clusters, err
		}

		cluster, err := p.grow(pivot)
		if err != nil {
			return clusters, err
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// findPivot draws a random record disjoint from every existing cluster's
// representative, retrying up to MaxNumTrials times.
func (p *Partitioner) findPivot(existing []Cluster) (addrpool.Record, error) {
	if len(existing) == 0 {
		return p.pool.RandomRecord()
	}

	reps := make([]uintptr, len(existing))
	for i, c := range existing {
		reps[i] = c.Representative.Paddr
	}

	for trial := 0; trial < p.timing.MaxNumTrials; trial++ {
		candidate, err := p.pool.RandomRecord()
		if err != nil {
			return addrpool.Record{}, err
		}
		if p.oracle.Disjoint(candidate.Paddr, reps) {
			return candidate, nil
		}
	}
	return addrpool.Record{}, errs.New(errs.InsufficientConflictSignal, "could not find a pivot disjoint from %d existing clusters after %d trials", len(existing), p.timing.MaxNumTrials)
}

// grow builds one cluster around pivot by drawing candidates and keeping
// those the oracle reports Same, stopping once MinimumSetSize elements
// have been collected.
func (p *Partitioner) grow(pivot addrpool.Record) (Cluster, error) {
	cluster := Cluster{Records: []addrpool.Record{pivot}, Representative: pivot}

	for trial := 0; trial < p.timing.MaxNumTrials && len(cluster.Records) < p.timing.MinimumSetSize; trial++ {
		candidate, err := p.pool.RandomRecord()
		if err != nil {
			return Cluster{}, err
		}
		if candidate.Paddr == pivot.Paddr {
			continue
		}
		if p.oracle.SameBank(pivot.Paddr, candidate.Paddr) == oracle.Same {
			cluster.Records = append(cluster.Records, candidate)
		}
	}

	if len(cluster.Records) < p.timing.MinimumSetSize {
		return Cluster{}, errs.New(errs.InsufficientConflictSignal, "cluster reached only %d/%d elements after %d trials", len(cluster.Records), p.timing.MinimumSetSize, p.timing.MaxNumTrials)
	}
	return cluster, nil
}
