// Package retention walks a computed dominator tree bottom-up to produce
// retained-size statistics and the ranked reports the CLI prints.
package retention

import (
	"context"
	"sort"

	"github.com/heapdom/retain/internal/heapdump/dominator"
	"github.com/heapdom/retain/internal/heapdump/graph"
	"github.com/heapdom/retain/internal/heapdump/record"
	"github.com/heapdom/retain/pkg/parallel"
)

// NodeStats holds the inclusive dominator-subtree totals for one node.
type NodeStats struct {
	SubtreeBytes uint64
	SubtreeCount uint64
}

// TypeTotal is one row of a by-type aggregate report.
type TypeTotal struct {
	Type  record.TypeTag
	Bytes uint64
	Count uint64
}

// RetainerEntry is one row of the ranked retainers report.
type RetainerEntry struct {
	NodeIndex    int32
	Label        string
	SubtreeBytes uint64
	SubtreeCount uint64
}

// Result bundles the four whole-graph (or whole-subtree) reports plus the
// per-node stats they were derived from.
type Result struct {
	NodeStats         []NodeStats
	InUseByType       []TypeTotal
	Retainers         []RetainerEntry
	RetainedByType    []TypeTotal
	UnreachableByType []TypeTotal
}

// Compute produces subtree_bytes/subtree_count for every node reachable
// from tree.Root, then derives the in-use, retainers, retained-by-type,
// and unreachable-by-type reports.
func Compute(g *graph.Graph, tree *dominator.Tree, labeler func(int32) string) *Result {
	return ComputeWithWorkers(context.Background(), g, tree, labeler, 0)
}

// ComputeWithWorkers is Compute with an explicit worker count for the
// retained-by-type fan-out. maxWorkers <= 0 picks a default from the
// machine's CPU count.
func ComputeWithWorkers(ctx context.Context, g *graph.Graph, tree *dominator.Tree, labeler func(int32) string, maxWorkers int) *Result {
	stats := computeSubtreeStats(g, tree)

	return &Result{
		NodeStats:         stats,
		InUseByType:       inUseByType(g, tree),
		Retainers:         retainers(g, tree, stats, labeler),
		RetainedByType:    retainedByType(ctx, g, tree, maxWorkers),
		UnreachableByType: unreachableByType(g, tree),
	}
}

// computeSubtreeStats performs a single iterative post-order traversal of
// the dominator tree (no recursion, so it cannot stack-overflow on a deep
// heap), accumulating each node's self-bytes up into its immediate
// dominator exactly once per edge.
func computeSubtreeStats(g *graph.Graph, tree *dominator.Tree) []NodeStats {
	n := g.NodeCount()
	stats := make([]NodeStats, n)
	childCount := make([]int32, n)

	for i := int32(0); i < n; i++ {
		if !tree.Reachable[i] {
			continue
		}
		stats[i] = NodeStats{SubtreeBytes: g.Node(i).Bytes, SubtreeCount: 1}
		if i == tree.Root {
			continue
		}
		childCount[tree.Idom[i]]++
	}

	queue := make([]int32, 0, n)
	for i := int32(0); i < n; i++ {
		if tree.Reachable[i] && childCount[i] == 0 {
			queue = append(queue, i)
		}
	}

	remaining := childCount
	for len(queue) > 0 {
		v := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if v == tree.Root {
			continue
		}
		p := tree.Idom[v]
		stats[p].SubtreeBytes += stats[v].SubtreeBytes
		stats[p].SubtreeCount += stats[v].SubtreeCount
		remaining[p]--
		if remaining[p] == 0 {
			queue = append(queue, p)
		}
	}

	return stats
}

func inUseByType(g *graph.Graph, tree *dominator.Tree) []TypeTotal {
	totals := map[record.TypeTag]*TypeTotal{}
	for i := int32(0); i < g.NodeCount(); i++ {
		if !tree.Reachable[i] {
			continue
		}
		addTotal(totals, g.Node(i).Type, g.Node(i).Bytes)
	}
	return sortedTotals(totals)
}

func unreachableByType(g *graph.Graph, tree *dominator.Tree) []TypeTotal {
	totals := map[record.TypeTag]*TypeTotal{}
	for i := int32(0); i < g.NodeCount(); i++ {
		if tree.Reachable[i] || i == tree.Root {
			continue
		}
		addTotal(totals, g.Node(i).Type, g.Node(i).Bytes)
	}
	return sortedTotals(totals)
}

func retainers(g *graph.Graph, tree *dominator.Tree, stats []NodeStats, labeler func(int32) string) []RetainerEntry {
	entries := make([]RetainerEntry, 0, g.NodeCount())
	for i := int32(0); i < g.NodeCount(); i++ {
		if !tree.Reachable[i] {
			continue
		}
		entries = append(entries, RetainerEntry{
			NodeIndex:    i,
			Label:        labeler(i),
			SubtreeBytes: stats[i].SubtreeBytes,
			SubtreeCount: stats[i].SubtreeCount,
		})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].SubtreeBytes != entries[b].SubtreeBytes {
			return entries[a].SubtreeBytes > entries[b].SubtreeBytes
		}
		return entries[a].NodeIndex < entries[b].NodeIndex
	})
	return entries
}

// retainedByType attributes each node's self-bytes to the type of its
// nearest dominator-chain ancestor whose type differs from its own; a
// node whose entire ancestor chain shares its type (up to, but excluding,
// the analysis root) is credited under its own type instead.
//
// The attribution walk only reads the graph and the dominator tree, so
// the node index space is split into chunks processed concurrently, each
// worker accumulating into a private totals map merged after the barrier.
func retainedByType(ctx context.Context, g *graph.Graph, tree *dominator.Tree, maxWorkers int) []TypeTotal {
	indices := make([]int32, 0, g.NodeCount())
	for i := int32(0); i < g.NodeCount(); i++ {
		if tree.Reachable[i] {
			indices = append(indices, i)
		}
	}

	poolCfg := parallel.DefaultPoolConfig()
	if maxWorkers > 0 {
		poolCfg = poolCfg.WithWorkers(maxWorkers)
	}

	merged := parallel.ProcessChunks(ctx, poolCfg, indices,
		func(_ context.Context, chunk []int32, _ int) map[record.TypeTag]*TypeTotal {
			totals := map[record.TypeTag]*TypeTotal{}
			for _, i := range chunk {
				addTotal(totals, attributedType(g, tree, i), g.Node(i).Bytes)
			}
			return totals
		},
		func(results []map[record.TypeTag]*TypeTotal) map[record.TypeTag]*TypeTotal {
			totals := map[record.TypeTag]*TypeTotal{}
			for _, r := range results {
				for tag, t := range r {
					dst, ok := totals[tag]
					if !ok {
						totals[tag] = &TypeTotal{Type: tag, Bytes: t.Bytes, Count: t.Count}
						continue
					}
					dst.Bytes += t.Bytes
					dst.Count += t.Count
				}
			}
			return totals
		})

	return sortedTotals(merged)
}

// attributedType walks node i's dominator chain toward the analysis root
// and returns the first ancestor type differing from i's own, or i's own
// type if the whole chain agrees.
func attributedType(g *graph.Graph, tree *dominator.Tree, i int32) record.TypeTag {
	myType := g.Node(i).Type
	ancestor := tree.Idom[i]
	for ancestor != dominator.NoDominator && ancestor != tree.Root {
		if g.Node(ancestor).Type != myType {
			return g.Node(ancestor).Type
		}
		ancestor = tree.Idom[ancestor]
	}
	return myType
}

func addTotal(totals map[record.TypeTag]*TypeTotal, t record.TypeTag, bytes uint64) {
	total, ok := totals[t]
	if !ok {
		total = &TypeTotal{Type: t}
		totals[t] = total
	}
	total.Bytes += bytes
	total.Count++
}

func sortedTotals(totals map[record.TypeTag]*TypeTotal) []TypeTotal {
	out := make([]TypeTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Bytes != out[b].Bytes {
			return out[a].Bytes > out[b].Bytes
		}
		return out[a].Type < out[b].Type
	})
	return out
}

// TopN returns the first n entries of totals plus, if there is a
// remainder, one aggregate row labelled "...". n <= 0 means unlimited.
func TopN(totals []TypeTotal, n int) []TypeTotal {
	if n <= 0 || n >= len(totals) {
		return totals
	}
	out := make([]TypeTotal, 0, n+1)
	out = append(out, totals[:n]...)
	var rest TypeTotal
	rest.Type = "..."
	for _, t := range totals[n:] {
		rest.Bytes += t.Bytes
		rest.Count += t.Count
	}
	out = append(out, rest)
	return out
}

// TopNRetainers returns the first n retainer rows plus, if there is a
// remainder, one aggregate row labelled "...". n <= 0 means unlimited.
func TopNRetainers(entries []RetainerEntry, n int) []RetainerEntry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	out := make([]RetainerEntry, 0, n+1)
	out = append(out, entries[:n]...)
	var rest RetainerEntry
	rest.NodeIndex = -1
	rest.Label = "..."
	for _, e := range entries[n:] {
		rest.SubtreeBytes += e.SubtreeBytes
		rest.SubtreeCount += e.SubtreeCount
	}
	out = append(out, rest)
	return out
}
