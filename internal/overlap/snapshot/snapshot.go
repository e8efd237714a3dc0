package snapshot

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrInvalidInput reports host data that cannot form a snapshot, or any
// other argument the overlap tracker rejects without touching its state.
var ErrInvalidInput = errors.New("overlap: invalid input")

// Vec3 is a 3-component spatial coordinate.
type Vec3 [3]float64

// Point is one labelled point of a snapshot. Index is its position in the
// host arrays and is stable for the lifetime of the snapshot.
type Point struct {
	Position Vec3
	Region   int64
	Index    int
}

// Input is the host-supplied data for one timestep: flat xyz positions
// (length 3·n) and n labels.
type Input struct {
	Timestep  int64
	Positions Array
	Labels    Array
}

// Snapshot is an immutable, timestep-indexed set of labelled points.
type Snapshot struct {
	timestep int64
	points   []Point

	regions   map[int64][]int // label → ascending point indices
	order     []int64         // labels, ascending
	centroids map[int64]Vec3

	// coincident points carrying different labels
	degenerate int
}

// New validates in and builds a Snapshot from it.
func New(in Input) (*Snapshot, error) {
	if in.Timestep < 0 {
		return nil, fmt.Errorf("%w: negative timestep %d", ErrInvalidInput, in.Timestep)
	}
	coords, err := in.Positions.Float64s()
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	labels, err := in.Labels.Int64s()
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	if len(coords) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot at timestep %d", ErrInvalidInput, in.Timestep)
	}
	if len(coords)%3 != 0 {
		return nil, fmt.Errorf("%w: position array length %d is not a multiple of 3", ErrInvalidInput, len(coords))
	}
	if len(coords)/3 != len(labels) {
		return nil, fmt.Errorf("%w: %d positions but %d labels", ErrInvalidInput, len(coords)/3, len(labels))
	}

	positions := make([]Vec3, len(labels))
	for i := range positions {
		positions[i] = Vec3{coords[3*i], coords[3*i+1], coords[3*i+2]}
	}
	return build(in.Timestep, positions, labels)
}

// NewFromPoints builds a Snapshot from already-typed positions and labels.
func NewFromPoints(timestep int64, positions []Vec3, labels []int64) (*Snapshot, error) {
	if timestep < 0 {
		return nil, fmt.Errorf("%w: negative timestep %d", ErrInvalidInput, timestep)
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot at timestep %d", ErrInvalidInput, timestep)
	}
	if len(positions) != len(labels) {
		return nil, fmt.Errorf("%w: %d positions but %d labels", ErrInvalidInput, len(positions), len(labels))
	}
	return build(timestep, positions, labels)
}

func build(timestep int64, positions []Vec3, labels []int64) (*Snapshot, error) {
	s := &Snapshot{
		timestep: timestep,
		points:   make([]Point, len(positions)),
		regions:  make(map[int64][]int),
	}

	type site struct {
		label    int64
		count    int
		conflict bool
	}
	sites := make(map[Vec3]*site, len(positions))
	for i, p := range positions {
		for axis, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: point %d axis %d is not finite", ErrInvalidInput, i, axis)
			}
		}
		s.points[i] = Point{Position: p, Region: labels[i], Index: i}
		s.regions[labels[i]] = append(s.regions[labels[i]], i)

		if st, ok := sites[p]; ok {
			st.count++
			st.conflict = st.conflict || st.label != labels[i]
		} else {
			sites[p] = &site{label: labels[i], count: 1}
		}
	}
	for _, st := range sites {
		if st.conflict {
			s.degenerate += st.count
		}
	}

	s.order = make([]int64, 0, len(s.regions))
	for r := range s.regions {
		s.order = append(s.order, r)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })

	s.centroids = make(map[int64]Vec3, len(s.regions))
	for _, r := range s.order {
		s.centroids[r] = s.centroid(s.regions[r])
	}
	return s, nil
}

func (s *Snapshot) centroid(idx []int) Vec3 {
	var c Vec3
	axis := make([]float64, len(idx))
	for a := 0; a < 3; a++ {
		for k, i := range idx {
			axis[k] = s.points[i].Position[a]
		}
		c[a] = stat.Mean(axis, nil)
	}
	return c
}

// Timestep returns the timestep index of the snapshot.
func (s *Snapshot) Timestep() int64 { return s.timestep }

// Len returns the number of points.
func (s *Snapshot) Len() int { return len(s.points) }

// Point returns the point at index i.
func (s *Snapshot) Point(i int) Point { return s.points[i] }

// Points returns a copy of all points in index order.
func (s *Snapshot) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Regions returns the distinct labels present, ascending.
func (s *Snapshot) Regions() []int64 {
	out := make([]int64, len(s.order))
	copy(out, s.order)
	return out
}

// RegionPoints returns the ascending point indices labelled r, or nil.
func (s *Snapshot) RegionPoints(r int64) []int {
	idx, ok := s.regions[r]
	if !ok {
		return nil
	}
	out := make([]int, len(idx))
	copy(out, idx)
	return out
}

// RegionSize returns the number of points labelled r.
func (s *Snapshot) RegionSize(r int64) int { return len(s.regions[r]) }

// Centroid returns the mean position of the points labelled r. The
// second result is false if r does not occur in the snapshot.
func (s *Snapshot) Centroid(r int64) (Vec3, bool) {
	c, ok := s.centroids[r]
	return c, ok
}

// Degenerate returns how many points sit at a coordinate that carries more
// than one label, independent of point order. Such points are resolved by
// the matcher's index-order tie-break and never rejected.
func (s *Snapshot) Degenerate() int { return s.degenerate }
