package retention

import (
	"sort"

	"github.com/heapdom/retain/internal/heapdump/dominator"
	"github.com/heapdom/retain/internal/heapdump/graph"
	"github.com/heapdom/retain/internal/heapdump/record"
	"github.com/heapdom/retain/pkg/collections"
)

// Subtree is an Aggregator report restricted to one node's dominator
// subtree within the whole-graph dominator tree, plus the set of nodes
// reachable from that node in the reference graph but dominated elsewhere
// ("leaked out" — kept alive by some other retainer too).
type Subtree struct {
	Root            int32
	Members         *collections.Bitset
	LeakedOut       []int32
	Retainers       []RetainerEntry
	InUseByType     []TypeTotal
	RetainedByType  []TypeTotal
	LeakedOutByType []TypeTotal
}

// ComputeSubtree restricts the whole-graph dominator tree and its
// already-computed subtree stats to the dominator subtree rooted at
// rerootIdx, and separately computes the leaked-out set: nodes forward
// reachable from rerootIdx in the reference graph that are not part of
// its dominator subtree, because some other path into them bypasses
// rerootIdx entirely. stats must come from the whole-graph aggregation;
// within the subtree the restricted totals are identical to the
// whole-graph ones, so they are reused rather than recomputed.
func ComputeSubtree(g *graph.Graph, tree *dominator.Tree, stats []NodeStats, rerootIdx int32, labeler func(int32) string) *Subtree {
	members := subtreeMembers(g, tree, rerootIdx)

	totalsIn := map[record.TypeTag]*TypeTotal{}
	totalsLeaked := map[record.TypeTag]*TypeTotal{}
	members.Iterate(func(i int) bool {
		addTotal(totalsIn, g.Node(int32(i)).Type, g.Node(int32(i)).Bytes)
		return true
	})

	forwardReachable := forwardBFS(g, rerootIdx)
	leakedOut := make([]int32, 0)
	forwardReachable.Iterate(func(i int) bool {
		if !members.Test(i) {
			leakedOut = append(leakedOut, int32(i))
			addTotal(totalsLeaked, g.Node(int32(i)).Type, g.Node(int32(i)).Bytes)
		}
		return true
	})

	entries := make([]RetainerEntry, 0, members.Count())
	members.Iterate(func(i int) bool {
		entries = append(entries, RetainerEntry{
			NodeIndex:    int32(i),
			Label:        labeler(int32(i)),
			SubtreeBytes: stats[i].SubtreeBytes,
			SubtreeCount: stats[i].SubtreeCount,
		})
		return true
	})
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].SubtreeBytes != entries[b].SubtreeBytes {
			return entries[a].SubtreeBytes > entries[b].SubtreeBytes
		}
		return entries[a].NodeIndex < entries[b].NodeIndex
	})

	return &Subtree{
		Root:            rerootIdx,
		Members:         members,
		LeakedOut:       leakedOut,
		Retainers:       entries,
		InUseByType:     sortedTotals(totalsIn),
		RetainedByType:  retainedByTypeWithin(g, tree, members),
		LeakedOutByType: sortedTotals(totalsLeaked),
	}
}

// subtreeMembers collects rerootIdx and every descendant of rerootIdx in
// the dominator tree, via one pass building children lists and a walk
// down from rerootIdx.
func subtreeMembers(g *graph.Graph, tree *dominator.Tree, rerootIdx int32) *collections.Bitset {
	n := g.NodeCount()
	children := make([][]int32, n)
	for i := int32(0); i < n; i++ {
		if tree.Reachable[i] && i != tree.Root {
			p := tree.Idom[i]
			children[p] = append(children[p], i)
		}
	}

	members := collections.NewBitset(int(n))
	members.Set(int(rerootIdx))
	queue := []int32{rerootIdx}
	for len(queue) > 0 {
		v := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, c := range children[v] {
			if !members.Test(int(c)) {
				members.Set(int(c))
				queue = append(queue, c)
			}
		}
	}
	return members
}

// forwardBFS returns the set of nodes reachable from start by following
// reference-graph edges directly, independent of dominance.
func forwardBFS(g *graph.Graph, start int32) *collections.Bitset {
	visited := collections.NewBitset(int(g.NodeCount()))
	visited.Set(int(start))
	queue := []int32{start}
	for len(queue) > 0 {
		v := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, w := range g.Successors(v) {
			if !visited.Test(int(w)) {
				visited.Set(int(w))
				queue = append(queue, w)
			}
		}
	}
	return visited
}

// retainedByTypeWithin is the retained-by-type attribution walk restricted
// to a node set, used to scope the report to one subtree without
// recomputing the dominator tree.
func retainedByTypeWithin(g *graph.Graph, tree *dominator.Tree, members *collections.Bitset) []TypeTotal {
	totals := map[record.TypeTag]*TypeTotal{}
	members.Iterate(func(raw int) bool {
		i := int32(raw)
		myType := g.Node(i).Type
		attrib := myType

		ancestor := tree.Idom[i]
		for ancestor != dominator.NoDominator && ancestor != tree.Root && members.Test(int(ancestor)) {
			if g.Node(ancestor).Type != myType {
				attrib = g.Node(ancestor).Type
				break
			}
			ancestor = tree.Idom[ancestor]
		}

		addTotal(totals, attrib, g.Node(i).Bytes)
		return true
	})
	return sortedTotals(totals)
}
