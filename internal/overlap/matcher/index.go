package matcher

import (
	"math"
	"sort"

	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
	"gonum.org/v1/gonum/floats"
)

// maxCell bounds grid cell coordinates so that neighbour offsets never
// overflow int64. Beyond it the float64 spacing of a coordinate exceeds
// the tolerance by orders of magnitude, so any value within tolerance is
// the same value and the axis is keyed by its exact bits instead.
const maxCell = math.MaxInt64 / 4

// cellKey addresses one cubic cell of the tolerance grid. Axes flagged in
// exact hold math.Float64bits of the coordinate rather than a cell index.
type cellKey struct {
	cell  [3]int64
	exact uint8
}

// Index is a hashed spatial index over the points of one snapshot.
//
// With zero tolerance it buckets points by exact coordinate. With a
// positive tolerance it buckets points into a regular grid whose cell size
// equals the tolerance, so every point within tolerance of a probe lies in
// the probe's cell or one of its 26 neighbours. Buckets hold point
// indices in ascending order.
type Index struct {
	tolerance float64
	points    []snapshot.Point

	exact map[snapshot.Vec3][]int
	grid  map[cellKey][]int
}

// Candidate is an indexed point within tolerance of a probe.
type Candidate struct {
	Index    int
	Distance float64
}

// NewIndex builds an Index over s. tolerance must be finite and >= 0.
func NewIndex(s *snapshot.Snapshot, tolerance float64) *Index {
	ix := &Index{
		tolerance: tolerance,
		points:    s.Points(),
	}
	if tolerance == 0 {
		ix.exact = make(map[snapshot.Vec3][]int, len(ix.points))
		for _, p := range ix.points {
			ix.exact[p.Position] = append(ix.exact[p.Position], p.Index)
		}
		return ix
	}

	ix.grid = make(map[cellKey][]int, len(ix.points))
	for _, p := range ix.points {
		k := ix.cellOf(p.Position)
		ix.grid[k] = append(ix.grid[k], p.Index)
	}
	return ix
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return len(ix.points) }

// Tolerance returns the match tolerance the index was built with.
func (ix *Index) Tolerance() float64 { return ix.tolerance }

func (ix *Index) cellOf(p snapshot.Vec3) cellKey {
	var k cellKey
	for a := 0; a < 3; a++ {
		c := math.Floor(p[a] / ix.tolerance)
		if math.Abs(c) >= maxCell {
			k.cell[a] = int64(math.Float64bits(p[a]))
			k.exact |= 1 << a
			continue
		}
		k.cell[a] = int64(c)
	}
	return k
}

// Candidates returns the indexed points within tolerance of p, nearest
// first and by ascending index among equal distances. For zero tolerance
// all candidates are exactly coincident, so the order is ascending index.
func (ix *Index) Candidates(p snapshot.Vec3) []Candidate {
	if ix.exact != nil {
		bucket := ix.exact[p]
		if len(bucket) == 0 {
			return nil
		}
		out := make([]Candidate, len(bucket))
		for i, idx := range bucket {
			out[i] = Candidate{Index: idx}
		}
		return out
	}

	var out []Candidate
	base := ix.cellOf(p)
	var lo, hi [3]int64
	for a := 0; a < 3; a++ {
		if base.exact&(1<<a) == 0 {
			lo[a], hi[a] = -1, 1
		}
	}
	probe := p[:]
	for dx := lo[0]; dx <= hi[0]; dx++ {
		for dy := lo[1]; dy <= hi[1]; dy++ {
			for dz := lo[2]; dz <= hi[2]; dz++ {
				k := cellKey{
					cell:  [3]int64{base.cell[0] + dx, base.cell[1] + dy, base.cell[2] + dz},
					exact: base.exact,
				}
				for _, idx := range ix.grid[k] {
					q := ix.points[idx].Position
					d := floats.Distance(probe, q[:], 2)
					if d <= ix.tolerance {
						out = append(out, Candidate{Index: idx, Distance: d})
					}
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Index < out[j].Index
	})
	return out
}
