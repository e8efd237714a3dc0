// Package snapshot owns the point-snapshot data model of the overlap
// tracker.
//
// Responsibilities: validation of host-supplied position and label
// arrays, resolution of the numeric kind of those arrays, and the
// per-snapshot region index (label → point indices, centroid, size).
// Key types: Snapshot, Point, Input, Array.
//
// A region label is only meaningful inside the snapshot that carries it.
// Nothing in this package relates labels across timesteps.
package snapshot
