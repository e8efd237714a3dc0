package graph

import (
	"errors"
	"fmt"

	"github.com/banshee-data/overlaptrack/internal/overlap/aggregate"
	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
)

// ErrInvalidState reports a builder call made out of sequence. The graph
// is left exactly as it was before the call.
var ErrInvalidState = errors.New("overlap: invalid state")

// State is the position of a Builder in its consume-once lifecycle.
type State int

const (
	// StateIdle: no snapshot has been ingested yet.
	StateIdle State = iota
	// StateHaveOne: one current snapshot; the next Ingest opens a pair.
	StateHaveOne
	// StateHaveTwo: a pair is open and waits for its overlaps.
	StateHaveTwo
	// StateFinalized is terminal.
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHaveOne:
		return "have-one"
	case StateHaveTwo:
		return "have-two"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Builder grows a TrackingGraph from a strictly increasing sequence of
// snapshots and the overlaps between each consecutive pair.
//
//	Idle --Ingest--> HaveOne(t) --Ingest--> HaveTwo(t, t') --IngestOverlaps--> HaveOne(t') ...
//	any --Finalize--> Finalized
//
// Builder is not safe for concurrent use; callers serialise access.
type Builder struct {
	graph *TrackingGraph
	state State

	prev int64 // source timestep of the open pair (HaveTwo)
	cur  int64 // most recently ingested timestep (HaveOne, HaveTwo)
}

// NewBuilder returns a Builder over an empty graph.
func NewBuilder() *Builder {
	return &Builder{graph: NewTrackingGraph()}
}

// Graph returns the graph being built. Callers must treat it as read-only.
func (b *Builder) Graph() *TrackingGraph { return b.graph }

// State returns the current lifecycle state.
func (b *Builder) State() State { return b.state }

// LastTimestep returns the most recently ingested timestep.
func (b *Builder) LastTimestep() (int64, bool) {
	if b.state == StateIdle || len(b.graph.timesteps) == 0 {
		return 0, false
	}
	return b.cur, true
}

// CheckIngest reports whether a snapshot at timestep t may be ingested now,
// without changing anything. A timestep that does not follow the last one
// matches both ErrInvalidState and snapshot.ErrInvalidInput.
func (b *Builder) CheckIngest(t int64) error {
	switch b.state {
	case StateFinalized:
		return fmt.Errorf("%w: builder is finalized", ErrInvalidState)
	case StateHaveTwo:
		return fmt.Errorf("%w: overlaps for timesteps %d->%d not yet ingested", ErrInvalidState, b.prev, b.cur)
	case StateHaveOne:
		if t <= b.cur {
			return fmt.Errorf("%w: %w: timestep %d does not follow %d", ErrInvalidState, snapshot.ErrInvalidInput, t, b.cur)
		}
	}
	if t < 0 {
		return fmt.Errorf("%w: negative timestep %d", snapshot.ErrInvalidInput, t)
	}
	return nil
}

// Ingest registers every region of s as a node, including regions that
// will never gain an edge.
func (b *Builder) Ingest(s *snapshot.Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", snapshot.ErrInvalidInput)
	}
	if err := b.CheckIngest(s.Timestep()); err != nil {
		return err
	}
	b.register(s)
	return nil
}

// IngestOverlaps adds one edge per entry for the open pair and closes it.
// Every entry must link the pair's source timestep to its target timestep,
// reference registered regions and carry a positive weight. An edge that
// already exists, or repeats within entries, is rejected with
// ErrInvalidState since each pair is consumed once.
func (b *Builder) IngestOverlaps(entries []aggregate.Entry) error {
	if b.state != StateHaveTwo {
		return fmt.Errorf("%w: no open timestep pair (state %s)", ErrInvalidState, b.state)
	}
	target := func(r int64) bool {
		_, ok := b.graph.nodeIndex[NodeKey{Timestep: b.cur, Region: r}]
		return ok
	}
	if err := b.checkOverlaps(entries, b.prev, b.cur, target); err != nil {
		return err
	}
	b.applyOverlaps(entries)
	return nil
}

// Advance ingests s and the overlaps between the previous snapshot and s as
// a single step. Both halves are validated before either is applied, so a
// rejected call leaves the graph untouched. From StateIdle entries must
// be empty.
func (b *Builder) Advance(s *snapshot.Snapshot, entries []aggregate.Entry) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", snapshot.ErrInvalidInput)
	}
	if err := b.CheckIngest(s.Timestep()); err != nil {
		return err
	}

	if b.state == StateIdle {
		if len(entries) > 0 {
			return fmt.Errorf("%w: %d overlaps without a previous timestep", snapshot.ErrInvalidInput, len(entries))
		}
		b.register(s)
		return nil
	}

	target := func(r int64) bool { return s.RegionSize(r) > 0 }
	if err := b.checkOverlaps(entries, b.cur, s.Timestep(), target); err != nil {
		return err
	}
	b.register(s)
	b.applyOverlaps(entries)
	return nil
}

// Finalize moves the builder to its terminal state. Finalizing twice is
// an error.
func (b *Builder) Finalize() error {
	if b.state == StateFinalized {
		return fmt.Errorf("%w: already finalized", ErrInvalidState)
	}
	b.state = StateFinalized
	return nil
}

func (b *Builder) register(s *snapshot.Snapshot) {
	t := s.Timestep()
	for _, r := range s.Regions() {
		c, _ := s.Centroid(r)
		b.graph.addNode(Node{
			Key:        NodeKey{Timestep: t, Region: r},
			Position:   c,
			PointCount: s.RegionSize(r),
		})
	}
	b.graph.addTimestep(t)

	if b.state == StateIdle {
		b.state = StateHaveOne
	} else {
		b.prev = b.cur
		b.state = StateHaveTwo
	}
	b.cur = t
}

func (b *Builder) checkOverlaps(entries []aggregate.Entry, src, dst int64, hasTarget func(int64) bool) error {
	batch := make(map[edgeKey]struct{}, len(entries))
	for i, e := range entries {
		if e.SourceTimestep != src || e.TargetTimestep != dst {
			return fmt.Errorf("%w: overlap %d links timesteps %d->%d, want %d->%d",
				snapshot.ErrInvalidInput, i, e.SourceTimestep, e.TargetTimestep, src, dst)
		}
		if e.Shared <= 0 {
			return fmt.Errorf("%w: overlap %d has non-positive weight %d", snapshot.ErrInvalidInput, i, e.Shared)
		}
		if _, ok := b.graph.nodeIndex[NodeKey{Timestep: src, Region: e.SourceRegion}]; !ok {
			return fmt.Errorf("%w: overlap %d references unknown region %d at timestep %d",
				snapshot.ErrInvalidInput, i, e.SourceRegion, src)
		}
		if !hasTarget(e.TargetRegion) {
			return fmt.Errorf("%w: overlap %d references unknown region %d at timestep %d",
				snapshot.ErrInvalidInput, i, e.TargetRegion, dst)
		}

		k := edgeKey{sourceTimestep: src, sourceRegion: e.SourceRegion, targetRegion: e.TargetRegion}
		if _, ok := b.graph.edgeIndex[k]; ok {
			return fmt.Errorf("%w: edge t%d/r%d->r%d already ingested", ErrInvalidState, src, e.SourceRegion, e.TargetRegion)
		}
		if _, ok := batch[k]; ok {
			return fmt.Errorf("%w: edge t%d/r%d->r%d repeated", ErrInvalidState, src, e.SourceRegion, e.TargetRegion)
		}
		batch[k] = struct{}{}
	}
	return nil
}

func (b *Builder) applyOverlaps(entries []aggregate.Entry) {
	for _, e := range entries {
		b.graph.addEdge(Edge{
			Source: NodeKey{Timestep: e.SourceTimestep, Region: e.SourceRegion},
			Target: NodeKey{Timestep: e.TargetTimestep, Region: e.TargetRegion},
			Weight: e.Shared,
		})
	}
	b.state = StateHaveOne
}
