package report

import (
	"fmt"
	"io"

	"github.com/heapdom/retain/internal/heapdump/dominator"
	"github.com/heapdom/retain/internal/heapdump/graph"
	"github.com/heapdom/retain/internal/heapdump/retention"
)

// DOTWriter renders the dominator tree, pruned to the union of the top-N
// retainers and their ancestor chain back to the analysis root, in
// Graphviz DOT format.
type DOTWriter struct{}

// NewDOTWriter creates a DOT format writer.
func NewDOTWriter() *DOTWriter {
	return &DOTWriter{}
}

// Write emits the pruned dominator tree as a DOT digraph and returns the
// node and edge counts written. root bounds the emission: ancestor chains
// stop there, so passing a re-rooted analysis node renders only its
// dominator subtree, while tree.Root renders the whole graph.
func (w *DOTWriter) Write(g *graph.Graph, tree *dominator.Tree, root int32, retainers []retention.RetainerEntry, writer io.Writer) (nodeCount, edgeCount int, err error) {
	nodes := prunedNodeSet(tree, root, retainers)
	labeler := NodeLabel(g)

	if _, err = fmt.Fprintln(writer, "digraph dominators {"); err != nil {
		return 0, 0, err
	}
	if _, err = fmt.Fprintln(writer, "  node [shape=box];"); err != nil {
		return 0, 0, err
	}

	for idx := range nodes {
		label := labeler(idx)
		if _, err = fmt.Fprintf(writer, "  \"%d\" [label=\"%s\"];\n", idx, label); err != nil {
			return 0, 0, err
		}
		nodeCount++
	}

	for idx := range nodes {
		if idx == root {
			continue
		}
		parent := tree.Idom[idx]
		if !nodes[parent] {
			continue
		}
		if _, err = fmt.Fprintf(writer, "  \"%d\" -> \"%d\";\n", parent, idx); err != nil {
			return 0, 0, err
		}
		edgeCount++
	}

	if _, err = fmt.Fprintln(writer, "}"); err != nil {
		return 0, 0, err
	}

	return nodeCount, edgeCount, nil
}

// prunedNodeSet is the union of the given retainer nodes and every
// dominator-chain ancestor back to root, so the emitted DOT graph remains
// a single connected tree. Retainers whose chain never meets root (nodes
// outside its dominator subtree) are skipped entirely.
func prunedNodeSet(tree *dominator.Tree, root int32, retainers []retention.RetainerEntry) map[int32]bool {
	nodes := map[int32]bool{root: true}
	for _, r := range retainers {
		if r.NodeIndex < 0 { // skip the "..." aggregate row
			continue
		}
		chain := make([]int32, 0, 32)
		inside := false
		for idx := r.NodeIndex; ; {
			if nodes[idx] {
				inside = true
				break
			}
			chain = append(chain, idx)
			if idx == tree.Root {
				break
			}
			idx = tree.Idom[idx]
		}
		if !inside {
			continue
		}
		for _, idx := range chain {
			nodes[idx] = true
		}
	}
	return nodes
}
