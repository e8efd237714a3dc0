// Package testutil provides shared test fixtures for the overlap packages.
package testutil

import (
	"testing"

	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
)

// Square is the unit square in the z=0 plane, one point per corner.
var Square = []snapshot.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}

// MustSnapshot builds a snapshot of Square with one label per corner.
func MustSnapshot(t *testing.T, timestep int64, labels ...int64) *snapshot.Snapshot {
	t.Helper()
	return MustSnapshotAt(t, timestep, Square, labels...)
}

// MustSnapshotAt builds a snapshot from positions and labels.
func MustSnapshotAt(t *testing.T, timestep int64, positions []snapshot.Vec3, labels ...int64) *snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.NewFromPoints(timestep, positions, labels)
	if err != nil {
		t.Fatalf("build snapshot t=%d: %v", timestep, err)
	}
	return s
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
