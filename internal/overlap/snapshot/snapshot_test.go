package snapshot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squareInput(timestep int64, labels ...int64) Input {
	return Input{
		Timestep:  timestep,
		Positions: Float64Array([]float64{0, 0, 0, 1, 0, 0, 0, 1, 0, 1, 1, 0}),
		Labels:    Int64Array(labels),
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   Input
	}{
		{"negative timestep", squareInput(-1, 1, 1, 1, 1)},
		{"empty", Input{Positions: Float64Array(nil), Labels: Int64Array(nil)}},
		{"ragged positions", Input{Positions: Float64Array([]float64{0, 0}), Labels: Int64Array([]int64{1})}},
		{"length mismatch", squareInput(0, 1, 1, 1)},
		{"invalid kind", Input{Positions: Array{}, Labels: Int64Array([]int64{1})}},
		{"nan coordinate", Input{
			Positions: Float64Array([]float64{math.NaN(), 0, 0}),
			Labels:    Int64Array([]int64{1}),
		}},
		{"infinite coordinate", Input{
			Positions: Float64Array([]float64{0, math.Inf(1), 0}),
			Labels:    Int64Array([]int64{1}),
		}},
		{"fractional label", Input{
			Positions: Float64Array([]float64{0, 0, 0}),
			Labels:    Float64Array([]float64{1.5}),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, err := New(tc.in)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestNewBuildsRegionIndex(t *testing.T) {
	t.Parallel()

	s, err := New(squareInput(3, 7, 2, 7, 2))
	require.NoError(t, err)

	assert.Equal(t, int64(3), s.Timestep())
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, []int64{2, 7}, s.Regions())
	assert.Equal(t, []int{0, 2}, s.RegionPoints(7))
	assert.Equal(t, []int{1, 3}, s.RegionPoints(2))
	assert.Nil(t, s.RegionPoints(99))
	assert.Equal(t, 2, s.RegionSize(7))
	assert.Equal(t, 0, s.RegionSize(99))

	p := s.Point(3)
	assert.Equal(t, Vec3{1, 1, 0}, p.Position)
	assert.Equal(t, int64(2), p.Region)
	assert.Equal(t, 3, p.Index)
}

func TestCentroid(t *testing.T) {
	t.Parallel()

	s, err := New(squareInput(0, 1, 1, 1, 1))
	require.NoError(t, err)

	c, ok := s.Centroid(1)
	require.True(t, ok)
	assert.InDelta(t, 0.5, c[0], 1e-12)
	assert.InDelta(t, 0.5, c[1], 1e-12)
	assert.InDelta(t, 0.0, c[2], 1e-12)

	_, ok = s.Centroid(2)
	assert.False(t, ok)
}

func TestSnapshotIsImmutable(t *testing.T) {
	t.Parallel()

	s, err := New(squareInput(0, 1, 1, 2, 2))
	require.NoError(t, err)

	pts := s.Points()
	pts[0].Region = 42
	regions := s.Regions()
	regions[0] = 42
	idx := s.RegionPoints(1)
	idx[0] = 42

	assert.Equal(t, int64(1), s.Point(0).Region)
	assert.Equal(t, []int64{1, 2}, s.Regions())
	assert.Equal(t, []int{0, 1}, s.RegionPoints(1))
}

func TestDegenerateCount(t *testing.T) {
	t.Parallel()

	pos := []Vec3{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {1, 0, 0}, {1, 0, 0}}
	s, err := NewFromPoints(0, pos, []int64{1, 2, 1, 5, 5})
	require.NoError(t, err)

	// All three origin points share a coordinate with a different label.
	assert.Equal(t, 3, s.Degenerate())
}

func TestDegenerateCountIgnoresOrder(t *testing.T) {
	t.Parallel()

	pos := []Vec3{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	for _, labels := range [][]int64{{1, 2, 2}, {2, 2, 1}, {2, 1, 2}} {
		s, err := NewFromPoints(0, pos, labels)
		require.NoError(t, err)
		assert.Equal(t, 3, s.Degenerate(), "labels %v", labels)
	}
}

func TestNegativeZeroIsCoincident(t *testing.T) {
	t.Parallel()

	s, err := NewFromPoints(0, []Vec3{{0, 0, 0}, {math.Copysign(0, -1), 0, 0}}, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Degenerate())
}

func TestNewFromPointsValidation(t *testing.T) {
	t.Parallel()

	_, err := NewFromPoints(-2, []Vec3{{0, 0, 0}}, []int64{1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewFromPoints(0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewFromPoints(0, []Vec3{{0, 0, 0}}, []int64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
