// Package graph assembles heap dump records into a compact, index-based
// directed graph with one synthetic root, ready for dominator analysis.
package graph

import (
	"github.com/heapdom/retain/internal/heapdump/record"
)

// RootIndex is the reserved node index for the synthetic root. It is never
// assigned to a real heap address.
const RootIndex int32 = 0

// Node is one graph vertex: a heap object, a stub for a dangling
// reference, or (at index 0) the synthetic root.
type Node struct {
	Address   uint64
	Type      record.TypeTag
	Bytes     uint64
	ClassAddr uint64
	HasClass  bool
	ClassName string
	Value     string
	Length    int
	HasLength bool
	Size      int
	HasSize   bool
	// Stub is true until an ObjectRecord for this address is applied.
	// A node that is still a stub after Finalize is a dangling reference.
	Stub bool
}

// Stats accumulates non-fatal build-time anomalies.
type Stats struct {
	DuplicateObjects  int
	UnknownReferences int
}

// Graph is the immutable, finalized heap graph. Edge storage is a single
// flat CSR-style (offsets + targets) adjacency array, filled in Finalize by
// concatenating each node's deduplicated reference list in node order, so
// traversal never touches a map.
type Graph struct {
	nodes   []Node
	offsets []int32
	targets []int32

	addrToIdx map[uint64]int32
	Stats     Stats
}

// NodeCount returns the number of nodes, including the synthetic root.
func (g *Graph) NodeCount() int32 {
	return int32(len(g.nodes))
}

// Node returns the node at idx.
func (g *Graph) Node(idx int32) *Node {
	return &g.nodes[idx]
}

// IndexOf returns the node index for a heap address, if one exists.
func (g *Graph) IndexOf(addr uint64) (int32, bool) {
	idx, ok := g.addrToIdx[addr]
	return idx, ok
}

// Successors returns the outgoing neighbor indices of idx, referrer to
// referent, deduplicated with self-loops already dropped.
func (g *Graph) Successors(idx int32) []int32 {
	start, end := g.offsets[idx], g.offsets[idx+1]
	return g.targets[start:end]
}

// Builder incrementally constructs a Graph from a stream of records.
type Builder struct {
	addrToIdx map[uint64]int32
	nodes     []Node
	outEdges  [][]int32
	classAddr map[uint64]uint64 // node addr -> class addr, for second-pass resolution
	className map[uint64]string // class-object addr -> its Name field
	rootEdges []int32
	stats     Stats
	finalized bool
}

// NewBuilder creates an empty Builder with the synthetic root pre-seeded
// at index 0.
func NewBuilder() *Builder {
	b := &Builder{
		addrToIdx: make(map[uint64]int32),
		classAddr: make(map[uint64]uint64),
		className: make(map[uint64]string),
	}
	b.nodes = append(b.nodes, Node{Type: record.TypeRoot, Stub: false})
	b.outEdges = append(b.outEdges, nil)
	return b
}

// NodeFor returns the index for addr, creating a stub node on first sight.
// Idempotent.
func (b *Builder) NodeFor(addr uint64) int32 {
	if idx, ok := b.addrToIdx[addr]; ok {
		return idx
	}
	idx := int32(len(b.nodes))
	b.addrToIdx[addr] = idx
	b.nodes = append(b.nodes, Node{Address: addr, Type: record.TypeOther, Stub: true})
	b.outEdges = append(b.outEdges, nil)
	return idx
}

// AddObject applies an ObjectRecord to the graph. A second record for the
// same address overwrites scalar attributes and replaces (does not merge)
// the outgoing reference list; a counter of such duplicates is kept.
func (b *Builder) AddObject(rec *record.ObjectRecord) {
	idx := b.NodeFor(rec.Address)

	if !b.nodes[idx].Stub {
		b.stats.DuplicateObjects++
	}

	b.nodes[idx] = Node{
		Address:   rec.Address,
		Type:      rec.Type,
		Bytes:     rec.Bytes,
		ClassAddr: rec.Class,
		HasClass:  rec.HasClass,
		Value:     rec.Value,
		Length:    rec.Length,
		HasLength: rec.HasLength,
		Size:      rec.Size,
		HasSize:   rec.HasSize,
		Stub:      false,
	}

	if rec.HasClass {
		b.classAddr[rec.Address] = rec.Class
	}
	if rec.Name != "" {
		b.className[rec.Address] = rec.Name
	}

	refs := make([]int32, 0, len(rec.References))
	for _, addr := range rec.References {
		refs = append(refs, b.NodeFor(addr))
	}
	b.outEdges[idx] = refs
}

// AddRoot applies a RootRecord, adding synthetic-root edges to every
// referenced address. The category label is discarded.
func (b *Builder) AddRoot(rec *record.RootRecord) {
	for _, addr := range rec.References {
		b.rootEdges = append(b.rootEdges, b.NodeFor(addr))
	}
}

// Finalize returns the immutable Graph. No further mutation of the
// builder or its returned graph is permitted afterward.
func (b *Builder) Finalize() *Graph {
	b.finalized = true
	b.outEdges[RootIndex] = append(b.outEdges[RootIndex], b.rootEdges...)

	for addr, classAddr := range b.classAddr {
		idx := b.addrToIdx[addr]
		if name, ok := b.className[classAddr]; ok {
			b.nodes[idx].ClassName = name
		}
	}

	totalEdges := 0
	for idx := range b.nodes {
		totalEdges += len(dedupSansSelfLoop(int32(idx), b.outEdges[idx]))
	}

	offsets := make([]int32, len(b.nodes)+1)
	targets := make([]int32, 0, totalEdges)
	for idx := range b.nodes {
		deduped := dedupSansSelfLoop(int32(idx), b.outEdges[idx])
		targets = append(targets, deduped...)
		offsets[idx+1] = int32(len(targets))
	}

	unknownRefs := 0
	for i, n := range b.nodes {
		if i == int(RootIndex) {
			continue
		}
		if n.Stub {
			unknownRefs++
		}
	}
	b.stats.UnknownReferences = unknownRefs

	return &Graph{
		nodes:     b.nodes,
		offsets:   offsets,
		targets:   targets,
		addrToIdx: b.addrToIdx,
		Stats:     b.stats,
	}
}

// dedupSansSelfLoop collapses multi-edges and drops self-loops, preserving
// first-occurrence order so traversal order is stable across runs given
// the same input bytes.
func dedupSansSelfLoop(from int32, targets []int32) []int32 {
	if len(targets) == 0 {
		return nil
	}
	seen := make(map[int32]bool, len(targets))
	out := make([]int32, 0, len(targets))
	for _, to := range targets {
		if to == from || seen[to] {
			continue
		}
		seen[to] = true
		out = append(out, to)
	}
	return out
}
