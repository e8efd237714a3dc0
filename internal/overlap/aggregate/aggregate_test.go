package aggregate

import (
	"context"
	"math/rand"
	"testing"

	"github.com/banshee-data/overlaptrack/internal/overlap/matcher"
	"github.com/banshee-data/overlaptrack/internal/overlap/parallel"
	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var square = []snapshot.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}

func mustSnapshot(t *testing.T, timestep int64, pos []snapshot.Vec3, labels []int64) *snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.NewFromPoints(timestep, pos, labels)
	require.NoError(t, err)
	return s
}

func TestAggregateSplit(t *testing.T) {
	t.Parallel()

	prev := mustSnapshot(t, 0, square, []int64{1, 1, 1, 1})
	cur := mustSnapshot(t, 1, square, []int64{1, 1, 2, 2})
	pairs := []matcher.Pair{{Prev: 0, Cur: 0}, {Prev: 1, Cur: 1}, {Prev: 2, Cur: 2}, {Prev: 3, Cur: 3}}

	got, err := Aggregate(context.Background(), prev, cur, pairs, 1)
	require.NoError(t, err)

	want := []Entry{
		{SourceTimestep: 0, SourceRegion: 1, TargetTimestep: 1, TargetRegion: 1, Shared: 2},
		{SourceTimestep: 0, SourceRegion: 1, TargetTimestep: 1, TargetRegion: 2, Shared: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateOrderIndependentOfPairOrder(t *testing.T) {
	t.Parallel()

	prev := mustSnapshot(t, 4, square, []int64{9, 3, 9, 3})
	cur := mustSnapshot(t, 5, square, []int64{-1, 8, 8, -1})
	pairs := []matcher.Pair{{Prev: 3, Cur: 3}, {Prev: 0, Cur: 0}, {Prev: 2, Cur: 2}, {Prev: 1, Cur: 1}}

	got, err := Aggregate(context.Background(), prev, cur, pairs, 1)
	require.NoError(t, err)
	require.Len(t, got, 4)

	keys := make([][2]int64, len(got))
	for i, e := range got {
		keys[i] = [2]int64{e.SourceRegion, e.TargetRegion}
		assert.Equal(t, int64(4), e.SourceTimestep)
		assert.Equal(t, int64(5), e.TargetTimestep)
		assert.Equal(t, 1, e.Shared)
	}
	assert.Equal(t, [][2]int64{{3, -1}, {3, 8}, {9, -1}, {9, 8}}, keys)
}

func TestAggregateNoPairs(t *testing.T) {
	t.Parallel()

	prev := mustSnapshot(t, 0, square, []int64{1, 1, 1, 1})
	cur := mustSnapshot(t, 1, square, []int64{1, 1, 1, 1})

	got, err := Aggregate(context.Background(), prev, cur, nil, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregateRejectsOutOfRangePairs(t *testing.T) {
	t.Parallel()

	prev := mustSnapshot(t, 0, square, []int64{1, 1, 1, 1})
	cur := mustSnapshot(t, 1, square[:2], []int64{1, 1})

	for _, p := range []matcher.Pair{{Prev: 4, Cur: 0}, {Prev: 0, Cur: 2}, {Prev: -1, Cur: 0}} {
		_, err := Aggregate(context.Background(), prev, cur, []matcher.Pair{p}, 1)
		assert.ErrorIs(t, err, snapshot.ErrInvalidInput, "pair %+v", p)
	}

	_, err := Aggregate(context.Background(), nil, cur, nil, 1)
	assert.ErrorIs(t, err, snapshot.ErrInvalidInput)
}

func TestAggregateDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(3))
	n := 5 * parallel.MinChunk
	pos := make([]snapshot.Vec3, n)
	prevLabels := make([]int64, n)
	curLabels := make([]int64, n)
	pairs := make([]matcher.Pair, n)
	for i := range pos {
		pos[i] = snapshot.Vec3{float64(i), 0, 0}
		prevLabels[i] = int64(rng.Intn(6))
		curLabels[i] = int64(rng.Intn(6))
		pairs[i] = matcher.Pair{Prev: i, Cur: i}
	}
	prev := mustSnapshot(t, 0, pos, prevLabels)
	cur := mustSnapshot(t, 1, pos, curLabels)

	base, err := Aggregate(context.Background(), prev, cur, pairs, 1)
	require.NoError(t, err)

	total := 0
	for _, e := range base {
		total += e.Shared
		assert.Positive(t, e.Shared)
	}
	assert.Equal(t, n, total)

	for _, workers := range []int{2, 5, 16} {
		got, err := Aggregate(context.Background(), prev, cur, pairs, workers)
		require.NoError(t, err)
		if diff := cmp.Diff(base, got); diff != "" {
			t.Fatalf("workers %d: entries differ:\n%s", workers, diff)
		}
	}
}

func TestAggregateHonoursCancellation(t *testing.T) {
	t.Parallel()

	prev := mustSnapshot(t, 0, square, []int64{1, 1, 1, 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Aggregate(ctx, prev, prev, []matcher.Pair{{Prev: 0, Cur: 0}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
