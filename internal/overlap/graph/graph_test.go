package graph

import (
	"testing"

	"github.com/banshee-data/overlaptrack/internal/overlap/aggregate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNodeIsIdempotent(t *testing.T) {
	t.Parallel()

	g := NewTrackingGraph()
	k := NodeKey{Timestep: 3, Region: 8}
	assert.True(t, g.addNode(Node{Key: k, PointCount: 5}))
	assert.False(t, g.addNode(Node{Key: k, PointCount: 99}))

	require.Equal(t, 1, g.NodeCount())
	n, ok := g.Node(k)
	require.True(t, ok)
	assert.Equal(t, 5, n.PointCount, "first registration wins")

	ord, ok := g.NodeOrdinal(k)
	require.True(t, ok)
	assert.Equal(t, 0, ord)
	_, ok = g.NodeOrdinal(NodeKey{Timestep: 3, Region: 9})
	assert.False(t, ok)
}

func TestNodeCountMatchesDistinctPairs(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.Advance(mustSnapshot(t, 0, 1, 2, 3, 3), nil))
	require.NoError(t, b.Advance(mustSnapshot(t, 1, 1, 1, 1, 1), []aggregate.Entry{
		entry(0, 1, 1, 1, 1), entry(0, 2, 1, 1, 1), entry(0, 3, 1, 1, 2),
	}))
	require.NoError(t, b.Advance(mustSnapshot(t, 2, 5, 6, 7, 8), nil))

	// 3 regions at t0, 1 at t1, 4 at t2.
	assert.Equal(t, 8, b.Graph().NodeCount())
	assert.Equal(t, 3, b.Graph().EdgeCount())
	assert.Empty(t, b.Graph().Outgoing(NodeKey{Timestep: 1, Region: 1}))
}

func TestHasEdge(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.Advance(mustSnapshot(t, 0, 1, 1, 1, 1), nil))
	require.NoError(t, b.Advance(mustSnapshot(t, 1, 2, 2, 2, 2), []aggregate.Entry{entry(0, 1, 1, 2, 4)}))

	g := b.Graph()
	assert.True(t, g.HasEdge(NodeKey{Timestep: 0, Region: 1}, 2))
	assert.False(t, g.HasEdge(NodeKey{Timestep: 0, Region: 1}, 1))
	assert.False(t, g.HasEdge(NodeKey{Timestep: 1, Region: 2}, 2))
}

func TestGraphAccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.Advance(mustSnapshot(t, 0, 1, 1, 1, 1), nil))
	require.NoError(t, b.Advance(mustSnapshot(t, 1, 1, 1, 1, 1), []aggregate.Entry{entry(0, 1, 1, 1, 4)}))

	g := b.Graph()
	nodes := g.Nodes()
	nodes[0].PointCount = -1
	edges := g.Edges()
	edges[0].Weight = -1
	ts := g.Timesteps()
	ts[0] = -1

	assert.Equal(t, 4, g.Nodes()[0].PointCount)
	assert.Equal(t, 4, g.Edges()[0].Weight)
	assert.Equal(t, int64(0), g.Timesteps()[0])
}

func TestNodeKeyString(t *testing.T) {
	assert.Equal(t, "t4/r-2", NodeKey{Timestep: 4, Region: -2}.String())
}
