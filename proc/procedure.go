// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"github.com/das-labor/panopticon/graph"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/region"
)

// A Procedure groups basic blocks into a control-transfer graph. The
// reverse-postorder cache is invalidated by every mutation; analyses
// derived from the graph carry the procedure's version and go stale
// when it changes.
type Procedure struct {
	Name string
	CFG  *CFG

	entry   graph.NodeID
	version uint64
	rpo     []graph.NodeID
}

// NewProcedure returns an empty procedure.
func NewProcedure(name string) *Procedure {
	return &Procedure{Name: name, CFG: graph.New[Node, il.Guard](), entry: graph.NilNode}
}

// Entry returns the entry node, if set.
func (p *Procedure) Entry() (graph.NodeID, bool) {
	if p.entry == graph.NilNode || !p.CFG.HasNode(p.entry) {
		return graph.NilNode, false
	}
	return p.entry, true
}

// EntryBlock returns the entry basic block, if set.
func (p *Procedure) EntryBlock() (*BasicBlock, bool) {
	v, ok := p.Entry()
	if !ok {
		return nil, false
	}
	n := p.CFG.Node(v)
	if !n.IsBlock() {
		return nil, false
	}
	return n.Block, true
}

// SetEntry marks v as the procedure's entry.
func (p *Procedure) SetEntry(v graph.NodeID) {
	p.entry = v
	p.Invalidate()
}

// Version identifies the current mutation state. Cached analyses
// compare it to detect staleness.
func (p *Procedure) Version() uint64 { return p.version }

// Invalidate drops the cached orderings after a mutation.
func (p *Procedure) Invalidate() {
	p.version++
	p.rpo = nil
}

// AddBlock inserts a basic block node.
func (p *Procedure) AddBlock(bb *BasicBlock) graph.NodeID {
	p.Invalidate()
	return p.CFG.InsertNode(BlockNode(bb))
}

// Link adds a control transfer between two nodes under guard g.
func (p *Procedure) Link(from, to graph.NodeID, g il.Guard) graph.EdgeID {
	p.Invalidate()
	return p.CFG.InsertEdge(g, from, to)
}

// LinkValue adds a control transfer from a node to a symbolic target.
func (p *Procedure) LinkValue(from graph.NodeID, v il.Rvalue, g il.Guard) graph.EdgeID {
	p.Invalidate()
	to := p.CFG.InsertNode(ValueNode(v))
	return p.CFG.InsertEdge(g, from, to)
}

// RevPostorder returns the basic-block nodes reachable from the entry
// in reverse postorder. The result is cached until the next mutation.
func (p *Procedure) RevPostorder() []graph.NodeID {
	if p.rpo != nil {
		return p.rpo
	}
	ent, ok := p.Entry()
	if !ok {
		return nil
	}

	var post []graph.NodeID
	seen := map[graph.NodeID]bool{}

	var dfs func(v graph.NodeID)
	dfs = func(v graph.NodeID) {
		seen[v] = true
		for _, e := range p.CFG.OutEdges(v) {
			w := p.CFG.Target(e)
			if !seen[w] {
				dfs(w)
			}
		}
		if p.CFG.Node(v).IsBlock() {
			post = append(post, v)
		}
	}
	dfs(ent)

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	p.rpo = post
	return post
}

// FindBlock returns the block node occupying the offset a.
func (p *Procedure) FindBlock(a region.Offset) (graph.NodeID, bool) {
	return p.CFG.Find(func(n Node) bool {
		return n.IsBlock() && n.Block.Area().Contains(a)
	})
}

// FindBlockStarting returns the block node whose area starts at a.
func (p *Procedure) FindBlockStarting(a region.Offset) (graph.NodeID, bool) {
	return p.CFG.Find(func(n Node) bool {
		return n.IsBlock() && n.Block.Area().Lower == a
	})
}

// NodeOf returns the graph node holding bb.
func (p *Procedure) NodeOf(bb *BasicBlock) (graph.NodeID, bool) {
	return p.CFG.Find(func(n Node) bool { return n.Block == bb })
}

// Blocks returns all basic-block nodes.
func (p *Procedure) Blocks() []graph.NodeID {
	var ret []graph.NodeID
	for _, v := range p.CFG.Nodes() {
		if p.CFG.Node(v).IsBlock() {
			ret = append(ret, v)
		}
	}
	return ret
}

// Execute calls fn on every IL instruction of every basic block.
// Blocks are visited in unspecified order.
func (p *Procedure) Execute(fn func(il.Instr)) {
	for _, v := range p.Blocks() {
		p.CFG.Node(v).Block.Execute(fn)
	}
}

// Split cuts the block in node v in two at offset pos. With last set,
// the mnemonic covering pos ends the first half; otherwise it starts
// the second. Incoming edges stay on the first half, outgoing edges
// move to the second, and the halves are linked by an unconditional
// transfer. Returns the two nodes.
func (p *Procedure) Split(v graph.NodeID, pos region.Offset, last bool) (graph.NodeID, graph.NodeID) {
	n := p.CFG.Node(v)
	if !n.IsBlock() {
		return v, v
	}

	var up, down []il.Mnemonic
	for _, m := range n.Block.Mnemonics() {
		switch {
		case m.Area.Last() < pos || (last && m.Area.Contains(pos)):
			up = append(up, m)
		default:
			down = append(down, m)
		}
	}
	if len(up) == 0 || len(down) == 0 {
		return v, v
	}

	ub := NewBasicBlock(up...)
	db := NewBasicBlock(down...)
	uv := p.CFG.InsertNode(BlockNode(ub))
	dv := p.CFG.InsertNode(BlockNode(db))

	for _, e := range append([]graph.EdgeID(nil), p.CFG.InEdges(v)...) {
		p.CFG.InsertEdge(p.CFG.Edge(e), p.CFG.Source(e), uv)
	}
	for _, e := range append([]graph.EdgeID(nil), p.CFG.OutEdges(v)...) {
		p.CFG.InsertEdge(p.CFG.Edge(e), dv, p.CFG.Target(e))
	}
	p.CFG.InsertEdge(il.True(), uv, dv)

	if p.entry == v {
		p.entry = uv
	}
	p.CFG.RemoveNode(v)
	p.Invalidate()
	return uv, dv
}

// Merge joins two adjacent blocks into one, keeping up's incoming and
// down's outgoing edges.
func (p *Procedure) Merge(upv, downv graph.NodeID) graph.NodeID {
	un := p.CFG.Node(upv)
	dn := p.CFG.Node(downv)
	if !un.IsBlock() || !dn.IsBlock() {
		return upv
	}
	if un.Block.Area().Upper != dn.Block.Area().Lower {
		return upv
	}

	ms := append(append([]il.Mnemonic(nil), un.Block.Mnemonics()...), dn.Block.Mnemonics()...)
	nv := p.CFG.InsertNode(BlockNode(NewBasicBlock(ms...)))

	for _, e := range append([]graph.EdgeID(nil), p.CFG.InEdges(upv)...) {
		if p.CFG.Source(e) != downv {
			p.CFG.InsertEdge(p.CFG.Edge(e), p.CFG.Source(e), nv)
		}
	}
	for _, e := range append([]graph.EdgeID(nil), p.CFG.OutEdges(downv)...) {
		if p.CFG.Target(e) != upv {
			p.CFG.InsertEdge(p.CFG.Edge(e), nv, p.CFG.Target(e))
		}
	}

	if p.entry == upv || p.entry == downv {
		p.entry = nv
	}
	p.CFG.RemoveNode(upv)
	p.CFG.RemoveNode(downv)
	p.Invalidate()
	return nv
}
