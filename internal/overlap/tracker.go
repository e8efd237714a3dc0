// Package overlap tracks labelled point regions across a sequence of
// snapshots by counting the points that two consecutive snapshots share.
//
// A Tracker consumes snapshots in strictly increasing timestep order. For
// each new snapshot it matches points against the previous one, counts the
// matched points per region pair and commits the resulting nodes and
// edges to a TrackingGraph. After Finalize the graph can be exported as a
// Mesh.
package overlap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/overlaptrack/internal/config"
	"github.com/banshee-data/overlaptrack/internal/monitoring"
	"github.com/banshee-data/overlaptrack/internal/overlap/aggregate"
	"github.com/banshee-data/overlaptrack/internal/overlap/export"
	"github.com/banshee-data/overlaptrack/internal/overlap/graph"
	"github.com/banshee-data/overlaptrack/internal/overlap/matcher"
	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
)

var (
	// ErrInvalidInput matches any rejected argument or host data.
	ErrInvalidInput = snapshot.ErrInvalidInput
	// ErrInvalidState matches any operation called out of sequence.
	ErrInvalidState = graph.ErrInvalidState
)

// Config holds the tracker parameters.
type Config struct {
	// SpatialTolerance is the largest distance at which two points are
	// considered the same point. Zero means exact equality.
	SpatialTolerance float64
	// LabelAttributeName names the per-point attribute holding region
	// labels in host data.
	LabelAttributeName string
	// Workers bounds parallel partitions. Zero means GOMAXPROCS.
	Workers int
	// Debug is the diagnostic verbosity; 0 disables debug lines.
	Debug int
}

// DefaultConfig returns exact matching on the "RegionId" attribute with a
// single worker.
func DefaultConfig() Config {
	return Config{
		LabelAttributeName: config.DefaultLabelAttributeName,
		Workers:            1,
	}
}

// ConfigFromTracking resolves a TrackingConfig, applying its defaults.
func ConfigFromTracking(tc *config.TrackingConfig) Config {
	if tc == nil {
		return DefaultConfig()
	}
	return Config{
		SpatialTolerance:   tc.GetSpatialTolerance(),
		LabelAttributeName: tc.GetLabelAttributeName(),
		Workers:            tc.Workers(),
		Debug:              tc.GetDebugLevel(),
	}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger routes tracker log lines to logf instead of monitoring.Logf.
func WithLogger(logf func(format string, v ...interface{})) Option {
	return func(t *Tracker) { t.logf = logf }
}

// WithMetrics records tracker activity on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithProgress reports completion in [0, 1] to fn.
func WithProgress(fn func(progress float64)) Option {
	return func(t *Tracker) { t.progress = fn }
}

// StepStats describes one accepted timestep.
type StepStats struct {
	Timestep   int64
	Points     int
	Regions    int
	Matched    int
	Contested  int
	Degenerate int
	Edges      int
}

// Tracker builds a tracking graph from consecutive snapshots. It is not
// safe for concurrent use; parallelism happens inside each step.
type Tracker struct {
	cfg      Config
	builder  *graph.Builder
	prev     *snapshot.Snapshot
	mesh     *export.Mesh
	last     StepStats
	logf     func(format string, v ...interface{})
	metrics  *monitoring.Metrics
	progress func(float64)
}

// New returns a Tracker for cfg.
func New(cfg Config, opts ...Option) (*Tracker, error) {
	if err := matcher.ValidateTolerance(cfg.SpatialTolerance); err != nil {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: negative worker count %d", ErrInvalidInput, cfg.Workers)
	}
	if cfg.LabelAttributeName == "" {
		cfg.LabelAttributeName = config.DefaultLabelAttributeName
	}
	t := &Tracker{cfg: cfg, builder: graph.NewBuilder()}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Config returns the tracker parameters.
func (t *Tracker) Config() Config { return t.cfg }

// State returns the lifecycle state of the underlying builder.
func (t *Tracker) State() graph.State { return t.builder.State() }

// Graph returns the tracking graph built so far. Callers must not retain
// it across further ProcessTimestep calls if they need a stable view.
func (t *Tracker) Graph() *graph.TrackingGraph { return t.builder.Graph() }

// LastStep returns the statistics of the most recently accepted timestep.
func (t *Tracker) LastStep() StepStats { return t.last }

// ProcessTimestep validates in, links it to the previously processed
// snapshot and commits the result. A rejected or cancelled call leaves the
// graph and the retained snapshot unchanged.
func (t *Tracker) ProcessTimestep(ctx context.Context, in snapshot.Input) error {
	s, err := snapshot.New(in)
	if err != nil {
		t.reject(err)
		return fmt.Errorf("timestep %d: %w", in.Timestep, err)
	}
	return t.ProcessSnapshot(ctx, s)
}

// ProcessSnapshot is ProcessTimestep for an already built snapshot.
func (t *Tracker) ProcessSnapshot(ctx context.Context, s *snapshot.Snapshot) error {
	return t.step(ctx, s, 0, 1)
}

// ProcessSequence processes inputs in order, stopping at the first error.
// Progress is reported across the whole sequence.
func (t *Tracker) ProcessSequence(ctx context.Context, inputs []snapshot.Input) error {
	n := float64(len(inputs))
	for i, in := range inputs {
		s, err := snapshot.New(in)
		if err != nil {
			t.reject(err)
			return fmt.Errorf("snapshot %d (timestep %d): %w", i, in.Timestep, err)
		}
		if err := t.step(ctx, s, float64(i)/n, float64(i+1)/n); err != nil {
			return fmt.Errorf("snapshot %d: %w", i, err)
		}
	}
	return nil
}

// step runs one timestep, reporting progress within [lo, hi].
func (t *Tracker) step(ctx context.Context, s *snapshot.Snapshot, lo, hi float64) error {
	if s == nil {
		err := fmt.Errorf("%w: nil snapshot", ErrInvalidInput)
		t.reject(err)
		return err
	}
	if err := t.builder.CheckIngest(s.Timestep()); err != nil {
		t.reject(err)
		return fmt.Errorf("timestep %d: %w", s.Timestep(), err)
	}
	if err := ctx.Err(); err != nil {
		t.reject(err)
		return fmt.Errorf("timestep %d: %w", s.Timestep(), err)
	}

	stats := StepStats{
		Timestep:   s.Timestep(),
		Points:     s.Len(),
		Regions:    len(s.Regions()),
		Degenerate: s.Degenerate(),
	}
	if stats.Degenerate > 0 {
		t.debugf(1, "[overlap] t=%d: %d coincident points carry conflicting labels", s.Timestep(), stats.Degenerate)
	}

	var entries []aggregate.Entry
	if t.prev != nil {
		start := time.Now()
		pairs, ms, err := matcher.Match(ctx, t.prev, s, matcher.Options{
			Tolerance: t.cfg.SpatialTolerance,
			Workers:   t.cfg.Workers,
		})
		t.metrics.ObserveMatch(time.Since(start))
		if err != nil {
			t.reject(err)
			return fmt.Errorf("match %d->%d: %w", t.prev.Timestep(), s.Timestep(), err)
		}
		stats.Matched = ms.Matched
		stats.Contested = ms.Contested
		if ms.Contested > 0 {
			t.debugf(1, "[overlap] t=%d: %d points lost their nearest candidate to an earlier point", s.Timestep(), ms.Contested)
		}
		t.debugf(2, "[overlap] t=%d: probed %d points in %d partitions", s.Timestep(), ms.Probed, ms.Partitions)

		if err := ctx.Err(); err != nil {
			t.reject(err)
			return fmt.Errorf("timestep %d: %w", s.Timestep(), err)
		}
		t.report(lo + (hi-lo)/2)

		entries, err = aggregate.Aggregate(ctx, t.prev, s, pairs, t.cfg.Workers)
		if err != nil {
			t.reject(err)
			return fmt.Errorf("aggregate %d->%d: %w", t.prev.Timestep(), s.Timestep(), err)
		}
	}

	if err := t.builder.Advance(s, entries); err != nil {
		t.reject(err)
		return fmt.Errorf("timestep %d: %w", s.Timestep(), err)
	}
	t.prev = s
	stats.Edges = len(entries)
	t.last = stats

	g := t.builder.Graph()
	t.metrics.RecordTimestep(g.NodeCount(), g.EdgeCount())
	t.log("[overlap] t=%d: %d points, %d regions, %d matched, %d edges",
		stats.Timestep, stats.Points, stats.Regions, stats.Matched, stats.Edges)
	t.report(hi)
	return nil
}

// Finalize closes the sequence and returns the exported graph. Later
// ProcessTimestep and Finalize calls fail with ErrInvalidState.
func (t *Tracker) Finalize() (*export.Mesh, error) {
	if err := t.builder.Finalize(); err != nil {
		return nil, err
	}
	t.prev = nil
	t.mesh = export.Export(t.builder.Graph())
	g := t.builder.Graph()
	t.log("[overlap] finalized: %d nodes, %d edges over %d timesteps", g.NodeCount(), g.EdgeCount(), len(g.Timesteps()))
	return t.mesh, nil
}

// Export returns the mesh built by Finalize. Each call returns a fresh
// copy with equal contents.
func (t *Tracker) Export() (*export.Mesh, error) {
	if t.builder.State() != graph.StateFinalized {
		return nil, fmt.Errorf("%w: export before finalize (state %s)", ErrInvalidState, t.builder.State())
	}
	return export.Export(t.builder.Graph()), nil
}

func (t *Tracker) reject(err error) {
	if t.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		t.metrics.RecordRejected(monitoring.ReasonCanceled)
	case errors.Is(err, ErrInvalidState):
		t.metrics.RecordRejected(monitoring.ReasonInvalidState)
	default:
		t.metrics.RecordRejected(monitoring.ReasonInvalidInput)
	}
}

func (t *Tracker) log(format string, v ...interface{}) {
	if t.logf != nil {
		t.logf(format, v...)
		return
	}
	monitoring.Logf(format, v...)
}

func (t *Tracker) debugf(level int, format string, v ...interface{}) {
	if t.cfg.Debug < level {
		return
	}
	t.log(format, v...)
}

func (t *Tracker) report(p float64) {
	if t.progress != nil {
		t.progress(p)
	}
}
