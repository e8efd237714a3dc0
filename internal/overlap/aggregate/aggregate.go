// Package aggregate turns matched point pairs into a weighted overlap
// table between the regions of two consecutive snapshots.
package aggregate

import (
	"context"
	"fmt"

	"github.com/banshee-data/overlaptrack/internal/overlap/matcher"
	"github.com/banshee-data/overlaptrack/internal/overlap/parallel"
	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
	"github.com/emirpasic/gods/maps/treemap"
)

// Entry is one nonzero cell of the overlap table: Shared points labelled
// SourceRegion at SourceTimestep are labelled TargetRegion at
// TargetTimestep.
type Entry struct {
	SourceTimestep int64
	SourceRegion   int64
	TargetTimestep int64
	TargetRegion   int64
	Shared         int
}

// regionPair keys the overlap counters.
type regionPair struct {
	source, target int64
}

func compareRegionPairs(a, b interface{}) int {
	x, y := a.(regionPair), b.(regionPair)
	switch {
	case x.source < y.source:
		return -1
	case x.source > y.source:
		return 1
	case x.target < y.target:
		return -1
	case x.target > y.target:
		return 1
	default:
		return 0
	}
}

// Aggregate counts, for every matched pair, the (prev region, cur region)
// combination it links and returns one Entry per nonzero count, ordered by
// ascending source region then ascending target region.
//
// Counting fans out over contiguous ranges of pairs; per-range counters are
// merged in range order so the output is independent of workers.
func Aggregate(ctx context.Context, prev, cur *snapshot.Snapshot, pairs []matcher.Pair, workers int) ([]Entry, error) {
	if prev == nil || cur == nil {
		return nil, fmt.Errorf("%w: nil snapshot", snapshot.ErrInvalidInput)
	}

	counters := make([]map[regionPair]int, len(parallel.Ranges(len(pairs), workers)))
	_, err := parallel.For(ctx, len(pairs), workers, func(part int, r parallel.Range) error {
		local := make(map[regionPair]int)
		for _, pr := range pairs[r.Lo:r.Hi] {
			if pr.Prev < 0 || pr.Prev >= prev.Len() || pr.Cur < 0 || pr.Cur >= cur.Len() {
				return fmt.Errorf("%w: pair (%d, %d) out of range", snapshot.ErrInvalidInput, pr.Prev, pr.Cur)
			}
			k := regionPair{source: prev.Point(pr.Prev).Region, target: cur.Point(pr.Cur).Region}
			local[k]++
		}
		counters[part] = local
		return nil
	})
	if err != nil {
		return nil, err
	}

	table := treemap.NewWith(compareRegionPairs)
	for _, local := range counters {
		for k, n := range local {
			if v, ok := table.Get(k); ok {
				table.Put(k, v.(int)+n)
			} else {
				table.Put(k, n)
			}
		}
	}

	entries := make([]Entry, 0, table.Size())
	it := table.Iterator()
	for it.Next() {
		k := it.Key().(regionPair)
		n := it.Value().(int)
		if n == 0 {
			continue
		}
		entries = append(entries, Entry{
			SourceTimestep: prev.Timestep(),
			SourceRegion:   k.source,
			TargetTimestep: cur.Timestep(),
			TargetRegion:   k.target,
			Shared:         n,
		})
	}
	return entries, nil
}
