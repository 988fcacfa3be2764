package report

import (
	"fmt"
	"io"

	"github.com/heapdom/retain/internal/heapdump/dominator"
	"github.com/heapdom/retain/internal/heapdump/graph"
)

// FlameWriter writes dominator-tree stacks in folded format: for every
// leaf under the analysis root, one line of semicolon-joined type-tag
// frames from that root down to the leaf, followed by the leaf's
// self-bytes.
type FlameWriter struct{}

// NewFlameWriter creates a folded-format flame graph writer.
func NewFlameWriter() *FlameWriter {
	return &FlameWriter{}
}

// Write emits one folded stack per leaf of root's dominator subtree.
// Passing tree.Root covers every reachable node; passing a re-rooted
// analysis node emits only the stacks it retains.
func (w *FlameWriter) Write(g *graph.Graph, tree *dominator.Tree, root int32, writer io.Writer) error {
	n := g.NodeCount()
	children := make([][]int32, n)
	for i := int32(0); i < n; i++ {
		if tree.Reachable[i] && i != tree.Root {
			children[tree.Idom[i]] = append(children[tree.Idom[i]], i)
		}
	}

	// Walk root's subtree only; leaves outside it belong to some other
	// retainer's stacks.
	stack := []int32{root}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(children[v]) == 0 {
			if err := w.writeStack(g, tree, root, v, writer); err != nil {
				return err
			}
			continue
		}
		stack = append(stack, children[v]...)
	}
	return nil
}

func (w *FlameWriter) writeStack(g *graph.Graph, tree *dominator.Tree, root, leaf int32, writer io.Writer) error {
	path := make([]int32, 0, 32)
	for cur := leaf; ; {
		path = append(path, cur)
		if cur == root {
			break
		}
		cur = tree.Idom[cur]
	}

	stack := ""
	for i := len(path) - 1; i >= 0; i-- {
		if stack != "" {
			stack += ";"
		}
		stack += string(g.Node(path[i]).Type)
	}

	_, err := fmt.Fprintf(writer, "%s %d\n", stack, g.Node(leaf).Bytes)
	return err
}
