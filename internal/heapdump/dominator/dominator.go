// Package dominator computes the immediate-dominator tree of a rooted
// heap graph using the Lengauer-Tarjan algorithm.
//
// Reference: "A Fast Algorithm for Finding Dominators in a Flowgraph" by
// Thomas Lengauer and Robert Endre Tarjan, 1979.
package dominator

import (
	"github.com/heapdom/retain/internal/heapdump/graph"
)

// NoDominator marks a node unreachable from the analysis root.
const NoDominator int32 = -1

// Tree is the immediate-dominator relation over a graph, computed from a
// chosen analysis root (the synthetic root by default, or a user-chosen
// re-root node).
type Tree struct {
	Root int32
	// Idom[i] is the immediate dominator of graph node i, or NoDominator
	// if i is the root itself or unreachable from it.
	Idom []int32
	// Reachable[i] is true if node i is reachable from Root.
	Reachable []bool
}

// localState holds the algorithm's working arrays, all indexed by a dense
// local numbering where the analysis root always occupies index 0. Index 0
// doubles as the "undefined" value for parent/idom, which is safe because
// nothing dominates the root. ancestor uses -1 for "not yet linked"
// instead, because nodes are linked directly under the root (ancestor 0)
// and eval must still see them as part of the forest.
type localState struct {
	parent   []int32
	semi     []int32
	idom     []int32
	ancestor []int32
	label    []int32
	bucket   [][]int32

	dfn    []int32
	vertex []int32
	n      int32
}

// Compute returns the dominator tree of g rooted at analysisRoot. Every
// node of g receives an entry; unreachable nodes are NoDominator.
func Compute(g *graph.Graph, analysisRoot int32) *Tree {
	totalNodes := g.NodeCount()

	localOf := make([]int32, totalNodes)
	graphOf := make([]int32, totalNodes)
	localOf[analysisRoot] = 0
	graphOf[0] = analysisRoot
	next := int32(1)
	for gi := int32(0); gi < totalNodes; gi++ {
		if gi == analysisRoot {
			continue
		}
		localOf[gi] = next
		graphOf[next] = gi
		next++
	}

	successors := make([][]int32, totalNodes)
	predecessors := make([][]int32, totalNodes)
	for gi := int32(0); gi < totalNodes; gi++ {
		li := localOf[gi]
		for _, to := range g.Successors(gi) {
			lj := localOf[to]
			successors[li] = append(successors[li], lj)
			predecessors[lj] = append(predecessors[lj], li)
		}
	}

	s := &localState{
		parent:   make([]int32, totalNodes),
		semi:     make([]int32, totalNodes),
		idom:     make([]int32, totalNodes),
		ancestor: make([]int32, totalNodes),
		label:    make([]int32, totalNodes),
		bucket:   make([][]int32, totalNodes),
		dfn:      make([]int32, totalNodes),
		vertex:   make([]int32, totalNodes),
	}
	for i := int32(0); i < totalNodes; i++ {
		s.label[i] = i
	}

	dfsNumber(s, successors)
	semidominators(s, predecessors)

	tree := &Tree{
		Root:      analysisRoot,
		Idom:      make([]int32, totalNodes),
		Reachable: make([]bool, totalNodes),
	}
	for i := range tree.Idom {
		tree.Idom[i] = NoDominator
	}

	for li := int32(0); li < totalNodes; li++ {
		gi := graphOf[li]
		if s.dfn[li] == 0 {
			continue
		}
		tree.Reachable[gi] = true
		if li == 0 {
			continue // analysis root has no dominator
		}
		domLi := s.idom[li]
		tree.Idom[gi] = graphOf[domLi]
	}

	return tree
}

// dfsNumber performs an iterative (stack-based, overflow-safe) DFS from
// local node 0, assigning DFS numbers and building the DFS spanning tree.
func dfsNumber(s *localState, successors [][]int32) {
	type frame struct {
		v     int32
		i     int32
		first bool
	}

	stack := make([]frame, 0, 1024)
	stack = append(stack, frame{v: 0, i: 0, first: true})

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.first {
			top.first = false
			s.n++
			s.dfn[top.v] = s.n
			s.vertex[s.n-1] = top.v
			s.semi[top.v] = s.n
		}

		advanced := false
		for top.i < int32(len(successors[top.v])) {
			w := successors[top.v][top.i]
			top.i++
			if s.dfn[w] == 0 {
				s.parent[w] = top.v
				stack = append(stack, frame{v: w, i: 0, first: true})
				advanced = true
				break
			}
		}

		if !advanced {
			stack = stack[:len(stack)-1]
		}
	}
}

// semidominators computes semidominators, processes buckets, and
// implicitly/explicitly defines immediate dominators, in reverse DFS order.
func semidominators(s *localState, predecessors [][]int32) {
	for i := range s.ancestor {
		s.ancestor[i] = -1 // not yet linked into the forest
	}

	link := func(v, w int32) {
		s.ancestor[w] = v
	}

	var eval func(v int32) int32
	eval = func(v int32) int32 {
		if s.ancestor[v] == -1 {
			return v
		}
		compressPath(s, v)
		return s.label[v]
	}

	for i := s.n; i >= 2; i-- {
		w := s.vertex[i-1]

		for _, v := range predecessors[w] {
			if s.dfn[v] == 0 {
				continue
			}
			var u int32
			if s.dfn[v] <= s.dfn[w] {
				u = v
			} else {
				u = eval(v)
			}
			if s.semi[u] < s.semi[w] {
				s.semi[w] = s.semi[u]
			}
		}

		semiNode := s.vertex[s.semi[w]-1]
		s.bucket[semiNode] = append(s.bucket[semiNode], w)

		link(s.parent[w], w)

		for _, v := range s.bucket[s.parent[w]] {
			u := eval(v)
			if s.semi[u] < s.semi[v] {
				s.idom[v] = u
			} else {
				s.idom[v] = s.parent[w]
			}
		}
		s.bucket[s.parent[w]] = nil
	}

	for i := int32(2); i <= s.n; i++ {
		w := s.vertex[i-1]
		if s.idom[w] != s.vertex[s.semi[w]-1] {
			s.idom[w] = s.idom[s.idom[w]]
		}
	}

	s.idom[0] = 0
}

// compressPath performs iterative path compression for eval: after it
// runs, label[v] holds the node with the minimum semidominator on the
// path from v to the root of its forest tree.
func compressPath(s *localState, v int32) {
	path := make([]int32, 0, 32)
	current := v
	for s.ancestor[current] != -1 && s.ancestor[s.ancestor[current]] != -1 {
		path = append(path, current)
		current = s.ancestor[current]
	}

	for i := len(path) - 1; i >= 0; i-- {
		node := path[i]
		anc := s.ancestor[node]
		if s.semi[s.label[anc]] < s.semi[s.label[node]] {
			s.label[node] = s.label[anc]
		}
		s.ancestor[node] = s.ancestor[anc]
	}
}
