// Package matcher pairs the points of two consecutive snapshots that
// occupy the same position.
//
// Two points match when their Euclidean distance is at most the configured
// tolerance; the default tolerance of zero means exact coordinate
// equality. Each point takes part in at most one pair. Conflicts are
// resolved deterministically: current points claim in ascending index
// order, and each takes its nearest unclaimed previous point, preferring
// the lowest previous index among equals.
package matcher

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/overlaptrack/internal/overlap/parallel"
	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
)

// Pair links a point of the previous snapshot to a point of the current one.
type Pair struct {
	Prev int
	Cur  int
}

// Options configures Match.
type Options struct {
	// Tolerance is the distance at or below which two points are
	// considered identical. Zero means exact equality.
	Tolerance float64
	// Workers bounds the number of probe partitions. Zero means GOMAXPROCS.
	Workers int
}

// Stats summarises one Match call.
type Stats struct {
	Probed     int // current points probed
	Matched    int // pairs emitted
	Contested  int // current points whose nearest candidate was already claimed
	Partitions int // probe partitions used
}

// ValidateTolerance reports whether tol is usable as a match tolerance.
func ValidateTolerance(tol float64) error {
	if math.IsNaN(tol) || math.IsInf(tol, 0) || tol < 0 {
		return fmt.Errorf("%w: spatial tolerance must be finite and non-negative, got %v", snapshot.ErrInvalidInput, tol)
	}
	return nil
}

// Match returns the matched point pairs between prev and cur, sorted by
// ascending Cur index.
//
// The probe phase runs in parallel across contiguous ranges of cur; the
// claim phase is sequential so the result does not depend on the worker
// count. ctx is checked before each probe partition starts.
func Match(ctx context.Context, prev, cur *snapshot.Snapshot, opts Options) ([]Pair, Stats, error) {
	if err := ValidateTolerance(opts.Tolerance); err != nil {
		return nil, Stats{}, err
	}
	if prev == nil || cur == nil {
		return nil, Stats{}, fmt.Errorf("%w: nil snapshot", snapshot.ErrInvalidInput)
	}

	ix := NewIndex(prev, opts.Tolerance)
	curPoints := cur.Points()
	candidates := make([][]Candidate, len(curPoints))

	ranges, err := parallel.For(ctx, len(curPoints), opts.Workers, func(_ int, r parallel.Range) error {
		for i := r.Lo; i < r.Hi; i++ {
			candidates[i] = ix.Candidates(curPoints[i].Position)
		}
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}

	pairs, stats := claim(candidates, ix.Len())
	stats.Partitions = len(ranges)
	return pairs, stats, nil
}

// claim assigns each current point its first unclaimed candidate, walking
// current points in ascending index order.
func claim(candidates [][]Candidate, prevLen int) ([]Pair, Stats) {
	claimed := make([]bool, prevLen)
	pairs := make([]Pair, 0, len(candidates))
	stats := Stats{Probed: len(candidates)}

	for cur, cands := range candidates {
		if len(cands) > 0 && claimed[cands[0].Index] {
			stats.Contested++
		}
		for _, c := range cands {
			if claimed[c.Index] {
				continue
			}
			claimed[c.Index] = true
			pairs = append(pairs, Pair{Prev: c.Index, Cur: cur})
			break
		}
	}
	stats.Matched = len(pairs)
	return pairs, stats
}
