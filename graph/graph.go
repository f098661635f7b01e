// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package graph implements a directed multigraph with stable
// node and edge descriptors.
package graph

// NodeID is an opaque descriptor for a node. Descriptors remain valid
// across mutations that do not remove the node they refer to.
type NodeID int

// EdgeID is an opaque descriptor for an edge.
type EdgeID int

// Nil descriptors, returned by lookups that find nothing.
const (
	NilNode NodeID = -1
	NilEdge EdgeID = -1
)

type nodeSlot[N any] struct {
	label   N
	in, out []EdgeID
	live    bool
}

type edgeSlot[E any] struct {
	label    E
	from, to NodeID
	live     bool
}

// Graph is a directed multigraph with node labels of type N and edge
// labels of type E. Nodes and edges are stored in arenas; removal marks
// a slot dead without invalidating other descriptors.
type Graph[N, E any] struct {
	nodes []nodeSlot[N]
	edges []edgeSlot[E]

	numNodes int
	numEdges int

	index map[NodeID]int // dense node index, rebuilt lazily
}

// New returns an empty graph.
func New[N, E any]() *Graph[N, E] {
	return &Graph[N, E]{}
}

// InsertNode adds a node with the given label and returns its descriptor.
func (g *Graph[N, E]) InsertNode(label N) NodeID {
	g.nodes = append(g.nodes, nodeSlot[N]{label: label, live: true})
	g.numNodes++
	g.index = nil
	return NodeID(len(g.nodes) - 1)
}

// InsertEdge adds an edge from 'from' to 'to' and returns its descriptor.
// In-edges of a node keep the order in which they were inserted.
func (g *Graph[N, E]) InsertEdge(label E, from, to NodeID) EdgeID {
	g.mustNode(from)
	g.mustNode(to)
	g.edges = append(g.edges, edgeSlot[E]{label: label, from: from, to: to, live: true})
	e := EdgeID(len(g.edges) - 1)
	g.nodes[from].out = append(g.nodes[from].out, e)
	g.nodes[to].in = append(g.nodes[to].in, e)
	g.numEdges++
	return e
}

// RemoveEdge deletes an edge. The descriptor becomes invalid.
func (g *Graph[N, E]) RemoveEdge(e EdgeID) {
	if !g.HasEdge(e) {
		return
	}
	s := &g.edges[e]
	s.live = false
	g.nodes[s.from].out = removeID(g.nodes[s.from].out, e)
	g.nodes[s.to].in = removeID(g.nodes[s.to].in, e)
	g.numEdges--
}

// RemoveNode deletes a node and all edges incident to it.
func (g *Graph[N, E]) RemoveNode(v NodeID) {
	if !g.HasNode(v) {
		return
	}
	for _, e := range append([]EdgeID(nil), g.nodes[v].out...) {
		g.RemoveEdge(e)
	}
	for _, e := range append([]EdgeID(nil), g.nodes[v].in...) {
		g.RemoveEdge(e)
	}
	g.nodes[v].live = false
	g.numNodes--
	g.index = nil
}

// HasNode reports whether v refers to a live node.
func (g *Graph[N, E]) HasNode(v NodeID) bool {
	return v >= 0 && int(v) < len(g.nodes) && g.nodes[v].live
}

// HasEdge reports whether e refers to a live edge.
func (g *Graph[N, E]) HasEdge(e EdgeID) bool {
	return e >= 0 && int(e) < len(g.edges) && g.edges[e].live
}

// Node returns the label of v.
func (g *Graph[N, E]) Node(v NodeID) N {
	g.mustNode(v)
	return g.nodes[v].label
}

// SetNode replaces the label of v.
func (g *Graph[N, E]) SetNode(v NodeID, label N) {
	g.mustNode(v)
	g.nodes[v].label = label
}

// Edge returns the label of e.
func (g *Graph[N, E]) Edge(e EdgeID) E {
	g.mustEdge(e)
	return g.edges[e].label
}

// SetEdge replaces the label of e.
func (g *Graph[N, E]) SetEdge(e EdgeID, label E) {
	g.mustEdge(e)
	g.edges[e].label = label
}

// Source returns the origin node of e.
func (g *Graph[N, E]) Source(e EdgeID) NodeID {
	g.mustEdge(e)
	return g.edges[e].from
}

// Target returns the destination node of e.
func (g *Graph[N, E]) Target(e EdgeID) NodeID {
	g.mustEdge(e)
	return g.edges[e].to
}

// Nodes returns the descriptors of all live nodes in insertion order.
func (g *Graph[N, E]) Nodes() []NodeID {
	ret := make([]NodeID, 0, g.numNodes)
	for i := range g.nodes {
		if g.nodes[i].live {
			ret = append(ret, NodeID(i))
		}
	}
	return ret
}

// Edges returns the descriptors of all live edges in insertion order.
func (g *Graph[N, E]) Edges() []EdgeID {
	ret := make([]EdgeID, 0, g.numEdges)
	for i := range g.edges {
		if g.edges[i].live {
			ret = append(ret, EdgeID(i))
		}
	}
	return ret
}

// InEdges returns the edges ending at v, in insertion order.
func (g *Graph[N, E]) InEdges(v NodeID) []EdgeID {
	g.mustNode(v)
	return g.nodes[v].in
}

// OutEdges returns the edges starting at v, in insertion order.
func (g *Graph[N, E]) OutEdges(v NodeID) []EdgeID {
	g.mustNode(v)
	return g.nodes[v].out
}

// InDegree returns the number of edges ending at v.
func (g *Graph[N, E]) InDegree(v NodeID) int {
	g.mustNode(v)
	return len(g.nodes[v].in)
}

// OutDegree returns the number of edges starting at v.
func (g *Graph[N, E]) OutDegree(v NodeID) int {
	g.mustNode(v)
	return len(g.nodes[v].out)
}

// NumNodes returns the number of live nodes.
func (g *Graph[N, E]) NumNodes() int { return g.numNodes }

// NumEdges returns the number of live edges.
func (g *Graph[N, E]) NumEdges() int { return g.numEdges }

// Index returns a map assigning each live node a dense index in
// [0, NumNodes). The map is cached until the node set changes.
func (g *Graph[N, E]) Index() map[NodeID]int {
	if g.index == nil {
		g.index = make(map[NodeID]int, g.numNodes)
		for _, v := range g.Nodes() {
			g.index[v] = len(g.index)
		}
	}
	return g.index
}

// Find returns the first live node whose label satisfies pred.
func (g *Graph[N, E]) Find(pred func(N) bool) (NodeID, bool) {
	for i := range g.nodes {
		if g.nodes[i].live && pred(g.nodes[i].label) {
			return NodeID(i), true
		}
	}
	return NilNode, false
}

func (g *Graph[N, E]) mustNode(v NodeID) {
	if !g.HasNode(v) {
		panic("graph: invalid node descriptor")
	}
}

func (g *Graph[N, E]) mustEdge(e EdgeID) {
	if !g.HasEdge(e) {
		panic("graph: invalid edge descriptor")
	}
}

func removeID(s []EdgeID, e EdgeID) []EdgeID {
	for i, x := range s {
		if x == e {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
