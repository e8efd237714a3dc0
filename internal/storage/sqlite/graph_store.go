package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/overlaptrack/internal/overlap/export"
	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
	"github.com/banshee-data/overlaptrack/internal/timeutil"
)

// ErrRunNotFound is returned when a run id has no stored run.
var ErrRunNotFound = errors.New("tracking run not found")

// Run describes one stored tracking run.
type Run struct {
	RunID      string          `json:"run_id"`
	Label      string          `json:"label"`
	ConfigJSON json.RawMessage `json:"config_json,omitempty"`
	NodeCount  int             `json:"node_count"`
	EdgeCount  int             `json:"edge_count"`
	CreatedAt  int64           `json:"created_at"`
}

// GraphStore provides persistence for exported tracking graphs.
type GraphStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewGraphStore creates a new GraphStore over a migrated database.
func NewGraphStore(db *sql.DB) *GraphStore {
	return &GraphStore{db: db, clock: timeutil.RealClock{}}
}

// WithClock returns s using clock for run timestamps and retry backoff.
func (s *GraphStore) WithClock(clock timeutil.Clock) *GraphStore {
	s.clock = clock
	return s
}

// SaveRun validates mesh and stores it in a single transaction. It
// returns the generated run id.
func (s *GraphStore) SaveRun(ctx context.Context, label string, configJSON string, mesh *export.Mesh) (string, error) {
	if mesh == nil {
		return "", fmt.Errorf("%w: nil mesh", snapshot.ErrInvalidInput)
	}
	if err := mesh.Validate(); err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	if configJSON == "" {
		configJSON = "{}"
	}
	if !json.Valid([]byte(configJSON)) {
		return "", fmt.Errorf("%w: config is not valid JSON", snapshot.ErrInvalidInput)
	}

	runID := uuid.New().String()
	createdAt := s.clock.Now().UnixNano()

	err := retryOnBusy(s.clock, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tracking_runs (run_id, label, config_json, node_count, edge_count, created_at_ns)
				VALUES (?, ?, ?, ?, ?, ?)`,
				runID, label, configJSON, mesh.NodeCount(), mesh.EdgeCount(), createdAt,
			); err != nil {
				return fmt.Errorf("insert run: %w", err)
			}

			nodeStmt, err := tx.PrepareContext(ctx, `
				INSERT INTO tracking_nodes (run_id, ordinal, timestep, region, x, y, z, point_count)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("prepare node insert: %w", err)
			}
			defer nodeStmt.Close()
			for i, p := range mesh.Points {
				if _, err := nodeStmt.ExecContext(ctx, runID, i,
					mesh.NodeTimestep[i], mesh.NodeRegion[i], p[0], p[1], p[2], mesh.NodePointCount[i],
				); err != nil {
					return fmt.Errorf("insert node %d: %w", i, err)
				}
			}

			edgeStmt, err := tx.PrepareContext(ctx, `
				INSERT INTO tracking_edges (run_id, ordinal, source_ordinal, target_ordinal, weight)
				VALUES (?, ?, ?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("prepare edge insert: %w", err)
			}
			defer edgeStmt.Close()
			for i, c := range mesh.Cells {
				if _, err := edgeStmt.ExecContext(ctx, runID, i, c[0], c[1], mesh.EdgeWeight[i]); err != nil {
					return fmt.Errorf("insert edge %d: %w", i, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// GetRun returns the metadata of a stored run.
func (s *GraphStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, label, config_json, node_count, edge_count, created_at_ns
		FROM tracking_runs
		WHERE run_id = ?`, runID)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// LoadRun reconstructs the Mesh of a stored run and validates it.
func (s *GraphStore) LoadRun(ctx context.Context, runID string) (*export.Mesh, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	mesh := &export.Mesh{
		Points:         make([]snapshot.Vec3, 0, run.NodeCount),
		NodeTimestep:   make([]int64, 0, run.NodeCount),
		NodeRegion:     make([]int64, 0, run.NodeCount),
		NodePointCount: make([]int, 0, run.NodeCount),
		Cells:          make([][2]int, 0, run.EdgeCount),
		EdgeWeight:     make([]int, 0, run.EdgeCount),
	}

	nodes, err := s.db.QueryContext(ctx, `
		SELECT ordinal, timestep, region, x, y, z, point_count
		FROM tracking_nodes
		WHERE run_id = ?
		ORDER BY ordinal`, runID)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer nodes.Close()
	for nodes.Next() {
		var (
			ordinal, count   int
			timestep, region int64
			p                snapshot.Vec3
		)
		if err := nodes.Scan(&ordinal, &timestep, &region, &p[0], &p[1], &p[2], &count); err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		if ordinal != len(mesh.Points) {
			return nil, fmt.Errorf("%w: run %s has a gap at node ordinal %d", snapshot.ErrInvalidInput, runID, len(mesh.Points))
		}
		mesh.Points = append(mesh.Points, p)
		mesh.NodeTimestep = append(mesh.NodeTimestep, timestep)
		mesh.NodeRegion = append(mesh.NodeRegion, region)
		mesh.NodePointCount = append(mesh.NodePointCount, count)
	}
	if err := nodes.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	edges, err := s.db.QueryContext(ctx, `
		SELECT ordinal, source_ordinal, target_ordinal, weight
		FROM tracking_edges
		WHERE run_id = ?
		ORDER BY ordinal`, runID)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer edges.Close()
	for edges.Next() {
		var ordinal, src, dst, weight int
		if err := edges.Scan(&ordinal, &src, &dst, &weight); err != nil {
			return nil, fmt.Errorf("scan edge row: %w", err)
		}
		if ordinal != len(mesh.Cells) {
			return nil, fmt.Errorf("%w: run %s has a gap at edge ordinal %d", snapshot.ErrInvalidInput, runID, len(mesh.Cells))
		}
		mesh.Cells = append(mesh.Cells, [2]int{src, dst})
		mesh.EdgeWeight = append(mesh.EdgeWeight, weight)
	}
	if err := edges.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}

	if mesh.NodeCount() != run.NodeCount || mesh.EdgeCount() != run.EdgeCount {
		return nil, fmt.Errorf("%w: run %s recorded %d nodes/%d edges but stored %d/%d", snapshot.ErrInvalidInput,
			runID, run.NodeCount, run.EdgeCount, mesh.NodeCount(), mesh.EdgeCount())
	}
	if err := mesh.Validate(); err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return mesh, nil
}

// ListRuns returns every stored run, newest first.
func (s *GraphStore) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, label, config_json, node_count, edge_count, created_at_ns
		FROM tracking_runs
		ORDER BY created_at_ns DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run with its nodes and edges.
func (s *GraphStore) DeleteRun(ctx context.Context, runID string) error {
	return retryOnBusy(s.clock, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tracking_edges WHERE run_id = ?`, runID); err != nil {
				return fmt.Errorf("delete edges: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM tracking_nodes WHERE run_id = ?`, runID); err != nil {
				return fmt.Errorf("delete nodes: %w", err)
			}
			result, err := tx.ExecContext(ctx, `DELETE FROM tracking_runs WHERE run_id = ?`, runID)
			if err != nil {
				return fmt.Errorf("delete run: %w", err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if affected == 0 {
				return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
			}
			return nil
		})
	})
}

func (s *GraphStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var cfg string
	if err := row.Scan(&r.RunID, &r.Label, &cfg, &r.NodeCount, &r.EdgeCount, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	r.ConfigJSON = json.RawMessage(cfg)
	return &r, nil
}
