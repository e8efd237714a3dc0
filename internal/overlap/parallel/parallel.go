// Package parallel splits point-index ranges into contiguous partitions and
// runs per-partition work concurrently.
//
// Partitions are numbered in ascending index order so callers can merge
// per-partition results deterministically by iterating the returned slice.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// MinChunk is the smallest number of indices worth handing to a goroutine.
// Inputs shorter than this run as a single partition.
const MinChunk = 256

// Range is a half-open index interval [Lo, Hi).
type Range struct {
	Lo, Hi int
}

// Len returns the number of indices covered by r.
func (r Range) Len() int { return r.Hi - r.Lo }

// Workers resolves a requested worker count. Zero or negative means
// GOMAXPROCS.
func Workers(requested int) int {
	if requested <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return requested
}

// Ranges divides [0, n) into at most workers contiguous ranges of near
// equal length, never smaller than MinChunk (except the only range when
// n < MinChunk). n == 0 yields no ranges.
func Ranges(n, workers int) []Range {
	if n <= 0 {
		return nil
	}
	workers = Workers(workers)
	parts := (n + MinChunk - 1) / MinChunk
	if parts > workers {
		parts = workers
	}
	if parts < 1 {
		parts = 1
	}

	out := make([]Range, 0, parts)
	size := n / parts
	rem := n % parts
	lo := 0
	for i := 0; i < parts; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		out = append(out, Range{Lo: lo, Hi: hi})
		lo = hi
	}
	return out
}

// For runs fn once per range of Ranges(n, workers). The context is checked
// before each partition starts; work inside a partition is not interrupted.
// The first error returned by any partition is returned.
func For(ctx context.Context, n, workers int, fn func(part int, r Range) error) ([]Range, error) {
	ranges := Ranges(n, workers)
	if len(ranges) == 1 {
		if err := ctx.Err(); err != nil {
			return ranges, err
		}
		return ranges, fn(0, ranges[0])
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i, r)
		})
	}
	return ranges, g.Wait()
}
