package retention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapdom/retain/internal/heapdump/dominator"
	"github.com/heapdom/retain/internal/heapdump/graph"
	"github.com/heapdom/retain/internal/heapdump/record"
)

// root -> A, root -> D, A -> B, A -> C, B -> D, C -> D.
// A uniquely dominates B and C, but D is also directly reachable from
// root, so D sits outside A's dominator subtree even though the
// reference graph can still walk from A to D via B or C.
func buildLeakedOutGraph(t *testing.T) (*graph.Graph, *dominator.Tree) {
	t.Helper()
	b := graph.NewBuilder()
	b.AddRoot(&record.RootRecord{References: []uint64{1, 4}})
	b.AddObject(&record.ObjectRecord{Address: 1, Type: record.TypeObject, Bytes: 10, References: []uint64{2, 3}})
	b.AddObject(&record.ObjectRecord{Address: 2, Type: record.TypeObject, Bytes: 10, References: []uint64{4}})
	b.AddObject(&record.ObjectRecord{Address: 3, Type: record.TypeObject, Bytes: 10, References: []uint64{4}})
	b.AddObject(&record.ObjectRecord{Address: 4, Type: record.TypeObject, Bytes: 10})
	g := b.Finalize()
	return g, dominator.Compute(g, graph.RootIndex)
}

func TestComputeSubtree_MembersExcludeLeakedNode(t *testing.T) {
	g, tree := buildLeakedOutGraph(t)
	idxA, _ := g.IndexOf(1)
	idxB, _ := g.IndexOf(2)
	idxC, _ := g.IndexOf(3)
	idxD, _ := g.IndexOf(4)

	sub := ComputeSubtree(g, tree, computeSubtreeStats(g, tree), idxA, labelByAddress(g))

	assert.True(t, sub.Members.Test(int(idxA)))
	assert.True(t, sub.Members.Test(int(idxB)))
	assert.True(t, sub.Members.Test(int(idxC)))
	assert.False(t, sub.Members.Test(int(idxD)))
}

func TestComputeSubtree_LeakedOutContainsSiblingReachableNode(t *testing.T) {
	g, tree := buildLeakedOutGraph(t)
	idxA, _ := g.IndexOf(1)
	idxD, _ := g.IndexOf(4)

	sub := ComputeSubtree(g, tree, computeSubtreeStats(g, tree), idxA, labelByAddress(g))

	require.Contains(t, sub.LeakedOut, idxD)
}

func TestComputeSubtree_InUseByTypeScopedToMembers(t *testing.T) {
	g, tree := buildLeakedOutGraph(t)
	idxA, _ := g.IndexOf(1)

	sub := ComputeSubtree(g, tree, computeSubtreeStats(g, tree), idxA, labelByAddress(g))

	require.Len(t, sub.InUseByType, 1)
	assert.Equal(t, record.TypeObject, sub.InUseByType[0].Type)
	// A, B, C: three 10-byte objects in the subtree; D is excluded.
	assert.EqualValues(t, 30, sub.InUseByType[0].Bytes)
	assert.EqualValues(t, 3, sub.InUseByType[0].Count)
}

func TestComputeSubtree_RootOfSubtreeIsTheRerootNode(t *testing.T) {
	g, tree := buildLeakedOutGraph(t)
	idxA, _ := g.IndexOf(1)
	sub := ComputeSubtree(g, tree, computeSubtreeStats(g, tree), idxA, labelByAddress(g))
	assert.Equal(t, idxA, sub.Root)
}
