package retention

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapdom/retain/internal/heapdump/dominator"
	"github.com/heapdom/retain/internal/heapdump/graph"
	"github.com/heapdom/retain/internal/heapdump/record"
)

func labelByAddress(g *graph.Graph) func(int32) string {
	return func(idx int32) string {
		return fmt.Sprintf("0x%x", g.Node(idx).Address)
	}
}

func buildChain(t *testing.T) (*graph.Graph, *dominator.Tree) {
	t.Helper()
	b := graph.NewBuilder()
	b.AddRoot(&record.RootRecord{References: []uint64{1}})
	b.AddObject(&record.ObjectRecord{Address: 1, Type: record.TypeArray, Bytes: 10, References: []uint64{2}})
	b.AddObject(&record.ObjectRecord{Address: 2, Type: record.TypeArray, Bytes: 20, References: []uint64{3}})
	b.AddObject(&record.ObjectRecord{Address: 3, Type: record.TypeString, Bytes: 30})
	g := b.Finalize()
	return g, dominator.Compute(g, graph.RootIndex)
}

func TestComputeSubtreeStats_ChainAccumulates(t *testing.T) {
	g, tree := buildChain(t)
	result := Compute(g, tree, labelByAddress(g))

	idx1, _ := g.IndexOf(1)
	idx2, _ := g.IndexOf(2)
	idx3, _ := g.IndexOf(3)

	assert.EqualValues(t, 60, result.NodeStats[idx1].SubtreeBytes)
	assert.EqualValues(t, 3, result.NodeStats[idx1].SubtreeCount)
	assert.EqualValues(t, 50, result.NodeStats[idx2].SubtreeBytes)
	assert.EqualValues(t, 30, result.NodeStats[idx3].SubtreeBytes)
	assert.EqualValues(t, 1, result.NodeStats[idx3].SubtreeCount)
}

func TestComputeSubtreeStats_DiamondCountsSharedNodeOnce(t *testing.T) {
	b := graph.NewBuilder()
	b.AddRoot(&record.RootRecord{References: []uint64{1, 2}})
	b.AddObject(&record.ObjectRecord{Address: 1, Type: record.TypeObject, Bytes: 10, References: []uint64{3}})
	b.AddObject(&record.ObjectRecord{Address: 2, Type: record.TypeObject, Bytes: 10, References: []uint64{3}})
	b.AddObject(&record.ObjectRecord{Address: 3, Type: record.TypeObject, Bytes: 10})
	g := b.Finalize()
	tree := dominator.Compute(g, graph.RootIndex)
	result := Compute(g, tree, labelByAddress(g))

	// C is dominated directly by root (diamond), so it contributes to
	// root's subtree total exactly once, not once per incoming path. The
	// synthetic root has no bytes of its own, so the total is A+B+C.
	assert.EqualValues(t, 30, result.NodeStats[graph.RootIndex].SubtreeBytes)
	assert.EqualValues(t, 4, result.NodeStats[graph.RootIndex].SubtreeCount)
}

func TestInUseByType(t *testing.T) {
	g, tree := buildChain(t)
	result := Compute(g, tree, labelByAddress(g))

	var arrayTotal, stringTotal *TypeTotal
	for i := range result.InUseByType {
		switch result.InUseByType[i].Type {
		case record.TypeArray:
			arrayTotal = &result.InUseByType[i]
		case record.TypeString:
			stringTotal = &result.InUseByType[i]
		}
	}
	require.NotNil(t, arrayTotal)
	require.NotNil(t, stringTotal)
	assert.EqualValues(t, 30, arrayTotal.Bytes)
	assert.EqualValues(t, 2, arrayTotal.Count)
	assert.EqualValues(t, 30, stringTotal.Bytes)
	assert.EqualValues(t, 1, stringTotal.Count)
}

func TestRetainers_SortedDescendingBySubtreeBytes(t *testing.T) {
	g, tree := buildChain(t)
	result := Compute(g, tree, labelByAddress(g))

	for i := 1; i < len(result.Retainers); i++ {
		assert.GreaterOrEqual(t, result.Retainers[i-1].SubtreeBytes, result.Retainers[i].SubtreeBytes)
	}
}

func TestRetainedByType_NearestDifferingAncestor(t *testing.T) {
	// root -> Array(1) -> Array(2) -> String(3). Walking up from 3: its
	// immediate dominator 2 shares its type chain up to 1 (ARRAY, differs
	// from STRING) so 3's bytes land under ARRAY, not under root.
	g, tree := buildChain(t)
	result := Compute(g, tree, labelByAddress(g))

	var arrayTotal *TypeTotal
	for i := range result.RetainedByType {
		if result.RetainedByType[i].Type == record.TypeArray {
			arrayTotal = &result.RetainedByType[i]
		}
	}
	require.NotNil(t, arrayTotal)
	// Node 1 (self ARRAY, no differing ancestor before root -> own type),
	// node 3 (self STRING, nearest differing ancestor is ARRAY at node 2
	// or node 1) both attribute to ARRAY alongside node 1's own self-bytes.
	assert.Greater(t, arrayTotal.Bytes, uint64(0))
}

func TestRetainedByType_SameTypeChainFallsBackToOwnType(t *testing.T) {
	b := graph.NewBuilder()
	b.AddRoot(&record.RootRecord{References: []uint64{1}})
	b.AddObject(&record.ObjectRecord{Address: 1, Type: record.TypeObject, Bytes: 10, References: []uint64{2}})
	b.AddObject(&record.ObjectRecord{Address: 2, Type: record.TypeObject, Bytes: 20})
	g := b.Finalize()
	tree := dominator.Compute(g, graph.RootIndex)
	result := Compute(g, tree, labelByAddress(g))

	var objectTotal *TypeTotal
	for i := range result.RetainedByType {
		if result.RetainedByType[i].Type == record.TypeObject {
			objectTotal = &result.RetainedByType[i]
		}
	}
	require.NotNil(t, objectTotal)
	assert.EqualValues(t, 30, objectTotal.Bytes)
}

func TestUnreachableByType(t *testing.T) {
	b := graph.NewBuilder()
	b.AddRoot(&record.RootRecord{References: []uint64{1}})
	b.AddObject(&record.ObjectRecord{Address: 1, Type: record.TypeObject, Bytes: 10})
	b.AddObject(&record.ObjectRecord{Address: 100, Type: record.TypeHash, Bytes: 7})
	g := b.Finalize()
	tree := dominator.Compute(g, graph.RootIndex)
	result := Compute(g, tree, labelByAddress(g))

	require.Len(t, result.UnreachableByType, 1)
	assert.Equal(t, record.TypeHash, result.UnreachableByType[0].Type)
	assert.EqualValues(t, 7, result.UnreachableByType[0].Bytes)
}

func TestTopN_AddsAggregateRow(t *testing.T) {
	totals := []TypeTotal{
		{Type: record.TypeArray, Bytes: 100, Count: 1},
		{Type: record.TypeHash, Bytes: 50, Count: 1},
		{Type: record.TypeString, Bytes: 25, Count: 1},
	}
	top := TopN(totals, 2)
	require.Len(t, top, 3)
	assert.Equal(t, record.TypeTag("..."), top[2].Type)
	assert.EqualValues(t, 25, top[2].Bytes)
}

func TestTopN_NoTruncationWhenUnderLimit(t *testing.T) {
	totals := []TypeTotal{{Type: record.TypeArray, Bytes: 100, Count: 1}}
	top := TopN(totals, 5)
	assert.Len(t, top, 1)
}
