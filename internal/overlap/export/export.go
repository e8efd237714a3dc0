// Package export flattens a tracking graph into parallel arrays: one
// positioned point per node and one two-point line cell per edge.
package export

import (
	"fmt"

	"github.com/banshee-data/overlaptrack/internal/overlap/graph"
	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
)

// Mesh is the exported tracking graph. Node arrays (Points, NodeTimestep,
// NodeRegion, NodePointCount) are parallel and indexed by node ordinal;
// edge arrays (Cells, EdgeWeight) are parallel and indexed by edge
// ordinal. Each cell holds the node ordinals of its source and target.
type Mesh struct {
	Points         []snapshot.Vec3 `json:"points"`
	NodeTimestep   []int64         `json:"node_timestep"`
	NodeRegion     []int64         `json:"node_region"`
	NodePointCount []int           `json:"node_point_count"`

	Cells      [][2]int `json:"cells"`
	EdgeWeight []int    `json:"edge_weight"`
}

// NodeCount returns the number of exported nodes.
func (m *Mesh) NodeCount() int { return len(m.Points) }

// EdgeCount returns the number of exported edges.
func (m *Mesh) EdgeCount() int { return len(m.Cells) }

// Export builds a Mesh from g in node and edge insertion order. It does not
// modify g; calling it repeatedly on the same graph yields equal meshes.
// An empty graph yields a Mesh with empty, non-nil arrays.
func Export(g *graph.TrackingGraph) *Mesh {
	nodes := g.Nodes()
	edges := g.Edges()

	m := &Mesh{
		Points:         make([]snapshot.Vec3, len(nodes)),
		NodeTimestep:   make([]int64, len(nodes)),
		NodeRegion:     make([]int64, len(nodes)),
		NodePointCount: make([]int, len(nodes)),
		Cells:          make([][2]int, len(edges)),
		EdgeWeight:     make([]int, len(edges)),
	}

	ordinal := make(map[graph.NodeKey]int, len(nodes))
	for i, n := range nodes {
		ordinal[n.Key] = i
		m.Points[i] = n.Position
		m.NodeTimestep[i] = n.Key.Timestep
		m.NodeRegion[i] = n.Key.Region
		m.NodePointCount[i] = n.PointCount
	}
	for i, e := range edges {
		m.Cells[i] = [2]int{ordinal[e.Source], ordinal[e.Target]}
		m.EdgeWeight[i] = e.Weight
	}
	return m
}

// Validate checks the parallel-array invariants of m: equal node array
// lengths, equal edge array lengths, in-range cell endpoints, positive
// weights, and edges that advance in time.
func (m *Mesh) Validate() error {
	n := len(m.Points)
	if len(m.NodeTimestep) != n || len(m.NodeRegion) != n || len(m.NodePointCount) != n {
		return fmt.Errorf("%w: node arrays have mismatched lengths (%d, %d, %d, %d)",
			snapshot.ErrInvalidInput, n, len(m.NodeTimestep), len(m.NodeRegion), len(m.NodePointCount))
	}
	if len(m.EdgeWeight) != len(m.Cells) {
		return fmt.Errorf("%w: %d cells but %d edge weights", snapshot.ErrInvalidInput, len(m.Cells), len(m.EdgeWeight))
	}
	for i, c := range m.Cells {
		if c[0] < 0 || c[0] >= n || c[1] < 0 || c[1] >= n {
			return fmt.Errorf("%w: cell %d endpoints %v out of range", snapshot.ErrInvalidInput, i, c)
		}
		if m.EdgeWeight[i] <= 0 {
			return fmt.Errorf("%w: edge %d has non-positive weight %d", snapshot.ErrInvalidInput, i, m.EdgeWeight[i])
		}
		if m.NodeTimestep[c[0]] >= m.NodeTimestep[c[1]] {
			return fmt.Errorf("%w: edge %d does not advance in time (%d -> %d)",
				snapshot.ErrInvalidInput, i, m.NodeTimestep[c[0]], m.NodeTimestep[c[1]])
		}
	}
	return nil
}
