package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/overlaptrack/internal/db"
	"github.com/banshee-data/overlaptrack/internal/overlap/export"
	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
	"github.com/banshee-data/overlaptrack/internal/timeutil"
)

func setupGraphStore(t *testing.T) (*GraphStore, *db.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "tracking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store := NewGraphStore(database.DB).WithClock(timeutil.NewSteppingClock(time.Unix(1_700_000_000, 0), time.Second))
	return store, database
}

func splitMesh() *export.Mesh {
	return &export.Mesh{
		Points:         []snapshot.Vec3{{0.5, 0.5, 0}, {0.5, 0, 0}, {0.5, 1, 0}},
		NodeTimestep:   []int64{0, 1, 1},
		NodeRegion:     []int64{1, 1, 2},
		NodePointCount: []int{4, 2, 2},
		Cells:          [][2]int{{0, 1}, {0, 2}},
		EdgeWeight:     []int{2, 2},
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := setupGraphStore(t)

	id, err := store.SaveRun(ctx, "split", `{"spatial_tolerance":0}`, splitMesh())
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	got, err := store.LoadRun(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(splitMesh(), got); diff != "" {
		t.Errorf("loaded mesh mismatch (-want +got):\n%s", diff)
	}

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "split", run.Label)
	assert.Equal(t, 3, run.NodeCount)
	assert.Equal(t, 2, run.EdgeCount)
	assert.JSONEq(t, `{"spatial_tolerance":0}`, string(run.ConfigJSON))
}

func TestSaveEmptyMesh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := setupGraphStore(t)

	empty := &export.Mesh{}
	id, err := store.SaveRun(ctx, "", "", empty)
	require.NoError(t, err)

	got, err := store.LoadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NodeCount())
	assert.NotNil(t, got.Points)

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(run.ConfigJSON))
}

func TestSaveRunRejectsInvalidMesh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := setupGraphStore(t)

	bad := splitMesh()
	bad.EdgeWeight[1] = 0
	_, err := store.SaveRun(ctx, "bad", "{}", bad)
	assert.ErrorIs(t, err, snapshot.ErrInvalidInput)

	_, err = store.SaveRun(ctx, "nil", "{}", nil)
	assert.ErrorIs(t, err, snapshot.ErrInvalidInput)

	_, err = store.SaveRun(ctx, "cfg", "{not json", splitMesh())
	assert.ErrorIs(t, err, snapshot.ErrInvalidInput)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestListRunsNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := setupGraphStore(t)

	var ids []string
	for _, label := range []string{"first", "second", "third"} {
		id, err := store.SaveRun(ctx, label, "{}", splitMesh())
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{runs[0].Label, runs[1].Label, runs[2].Label})
	assert.Equal(t, ids[2], runs[0].RunID)
	assert.Greater(t, runs[0].CreatedAt, runs[1].CreatedAt)
}

func TestDeleteRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, database := setupGraphStore(t)

	keep, err := store.SaveRun(ctx, "keep", "{}", splitMesh())
	require.NoError(t, err)
	drop, err := store.SaveRun(ctx, "drop", "{}", splitMesh())
	require.NoError(t, err)

	require.NoError(t, store.DeleteRun(ctx, drop))

	_, err = store.LoadRun(ctx, drop)
	assert.ErrorIs(t, err, ErrRunNotFound)

	var nodes, edges int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM tracking_nodes WHERE run_id = ?`, drop).Scan(&nodes))
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM tracking_edges WHERE run_id = ?`, drop).Scan(&edges))
	assert.Zero(t, nodes)
	assert.Zero(t, edges)

	_, err = store.LoadRun(ctx, keep)
	assert.NoError(t, err)

	assert.ErrorIs(t, store.DeleteRun(ctx, drop), ErrRunNotFound)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()
	store, _ := setupGraphStore(t)

	_, err := store.GetRun(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestLoadRunDetectsCorruption(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, database := setupGraphStore(t)

	id, err := store.SaveRun(ctx, "corrupt", "{}", splitMesh())
	require.NoError(t, err)

	_, err = database.Exec(`DELETE FROM tracking_edges WHERE run_id = ? AND ordinal = 0`, id)
	require.NoError(t, err)

	_, err = store.LoadRun(ctx, id)
	assert.ErrorIs(t, err, snapshot.ErrInvalidInput)
}

func TestRunJSON(t *testing.T) {
	t.Parallel()

	r := Run{RunID: "abc", Label: "x", ConfigJSON: json.RawMessage(`{"a":1}`), NodeCount: 1}
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"abc","label":"x","config_json":{"a":1},"node_count":1,"edge_count":0,"created_at":0}`, string(raw))
}

func TestRetryOnBusy(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	attempts := 0
	err := retryOnBusy(clock, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{busyBackoff, 2 * busyBackoff}, clock.Sleeps())

	attempts = 0
	sentinel := errors.New("constraint failed")
	err = retryOnBusy(clock, func() error {
		attempts++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}
