// Package graph holds the persistent tracking graph and the builder state
// machine that grows it one snapshot at a time.
//
// Node identity is the (timestep, region) pair. Regions carry no identity
// across timesteps; linking a region to its successors is exactly what the
// weighted edges express. Nodes and edges are never removed, and both are
// kept in insertion order so exports are reproducible.
package graph

import (
	"fmt"

	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
)

// NodeKey identifies a node: one region observed at one timestep.
type NodeKey struct {
	Timestep int64
	Region   int64
}

func (k NodeKey) String() string { return fmt.Sprintf("t%d/r%d", k.Timestep, k.Region) }

// Node is a region observed at a timestep, positioned at the centroid of
// its points.
type Node struct {
	Key        NodeKey
	Position   snapshot.Vec3
	PointCount int
}

// Edge is a directed overlap from a region at one timestep to a region at
// the next ingested timestep. Weight is the shared point count and is
// always positive.
type Edge struct {
	Source NodeKey
	Target NodeKey
	Weight int
}

// edgeKey is the uniqueness key for edges: a timestep pair is processed
// once, so (source timestep, source region, target region) determines an
// edge.
type edgeKey struct {
	sourceTimestep int64
	sourceRegion   int64
	targetRegion   int64
}

func keyOf(e Edge) edgeKey {
	return edgeKey{sourceTimestep: e.Source.Timestep, sourceRegion: e.Source.Region, targetRegion: e.Target.Region}
}

// TrackingGraph is an insertion-ordered directed multigraph of region
// nodes and overlap edges. It is exclusively mutated by a Builder.
type TrackingGraph struct {
	nodes     []Node
	nodeIndex map[NodeKey]int

	edges     []Edge
	edgeIndex map[edgeKey]int
	outgoing  map[NodeKey][]int
	incoming  map[NodeKey][]int

	timesteps []int64
}

// NewTrackingGraph returns an empty graph.
func NewTrackingGraph() *TrackingGraph {
	return &TrackingGraph{
		nodeIndex: make(map[NodeKey]int),
		edgeIndex: make(map[edgeKey]int),
		outgoing:  make(map[NodeKey][]int),
		incoming:  make(map[NodeKey][]int),
	}
}

// NodeCount returns the number of nodes.
func (g *TrackingGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *TrackingGraph) EdgeCount() int { return len(g.edges) }

// Nodes returns a copy of all nodes in insertion order.
func (g *TrackingGraph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns a copy of all edges in insertion order.
func (g *TrackingGraph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Node looks up a node by key.
func (g *TrackingGraph) Node(k NodeKey) (Node, bool) {
	i, ok := g.nodeIndex[k]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// NodeOrdinal returns the insertion position of the node with key k.
func (g *TrackingGraph) NodeOrdinal(k NodeKey) (int, bool) {
	i, ok := g.nodeIndex[k]
	return i, ok
}

// HasEdge reports whether an edge from source to a node with the given
// target region exists.
func (g *TrackingGraph) HasEdge(source NodeKey, targetRegion int64) bool {
	_, ok := g.edgeIndex[edgeKey{sourceTimestep: source.Timestep, sourceRegion: source.Region, targetRegion: targetRegion}]
	return ok
}

// Outgoing returns the edges leaving k in insertion order.
func (g *TrackingGraph) Outgoing(k NodeKey) []Edge { return g.collect(g.outgoing[k]) }

// Incoming returns the edges entering k in insertion order.
func (g *TrackingGraph) Incoming(k NodeKey) []Edge { return g.collect(g.incoming[k]) }

func (g *TrackingGraph) collect(idx []int) []Edge {
	if len(idx) == 0 {
		return nil
	}
	out := make([]Edge, len(idx))
	for i, e := range idx {
		out[i] = g.edges[e]
	}
	return out
}

// Timesteps returns the ingested timesteps in ascending order.
func (g *TrackingGraph) Timesteps() []int64 {
	out := make([]int64, len(g.timesteps))
	copy(out, g.timesteps)
	return out
}

// addNode inserts n unless a node with the same key exists. It reports
// whether a node was created.
func (g *TrackingGraph) addNode(n Node) bool {
	if _, ok := g.nodeIndex[n.Key]; ok {
		return false
	}
	g.nodeIndex[n.Key] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return true
}

// addEdge inserts e. Callers validate uniqueness and endpoints first.
func (g *TrackingGraph) addEdge(e Edge) {
	i := len(g.edges)
	g.edges = append(g.edges, e)
	g.edgeIndex[keyOf(e)] = i
	g.outgoing[e.Source] = append(g.outgoing[e.Source], i)
	g.incoming[e.Target] = append(g.incoming[e.Target], i)
}

func (g *TrackingGraph) addTimestep(t int64) {
	g.timesteps = append(g.timesteps, t)
}
