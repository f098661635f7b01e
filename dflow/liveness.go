// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dflow

import (
	"github.com/das-labor/panopticon/graph"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/proc"
)

// BlockLive is the per-block liveness state. UEVar holds the variables
// used before any definition in the block, VarKill the ones the block
// defines, LiveOut the ones live on exit.
type BlockLive struct {
	UEVar   map[string]bool
	VarKill map[string]bool
	LiveOut map[string]bool
}

// Live is the result of the liveness analysis.
type Live struct {
	Names   map[string]bool
	Usage   map[string][]graph.NodeID // variable name to defining blocks
	Blocks  map[graph.NodeID]*BlockLive
	Version uint64
}

// At returns the per-block state of v, creating it on first use.
func (l *Live) At(v graph.NodeID) *BlockLive {
	b, ok := l.Blocks[v]
	if !ok {
		b = &BlockLive{UEVar: map[string]bool{}, VarKill: map[string]bool{}, LiveOut: map[string]bool{}}
		l.Blocks[v] = b
	}
	return b
}

// Liveness runs the iterative liveness analysis over the procedure's
// basic blocks. Uses in outgoing-edge guards and symbolic jump targets
// count as uses in the source block.
func Liveness(p *proc.Procedure) *Live {
	ret := &Live{
		Names:   map[string]bool{},
		Usage:   map[string][]graph.NodeID{},
		Blocks:  map[graph.NodeID]*BlockLive{},
		Version: p.Version(),
	}

	g := p.CFG
	rpo := p.RevPostorder()

	collect := func(v il.Rvalue, bb graph.NodeID) {
		if vr, ok := v.(il.Variable); ok {
			ret.Names[vr.Name] = true
			bl := ret.At(bb)
			if !bl.VarKill[vr.Name] {
				bl.UEVar[vr.Name] = true
			}
		}
	}

	for _, bb := range rpo {
		bl := ret.At(bb)
		g.Node(bb).Block.Execute(func(i il.Instr) {
			for _, v := range i.Operands {
				collect(v, bb)
			}
			if vr, ok := i.Assignee.(il.Variable); ok {
				bl.VarKill[vr.Name] = true
				ret.Names[vr.Name] = true
				ret.addUsage(vr.Name, bb)
			}
		})

		for _, e := range g.OutEdges(bb) {
			tgt := g.Node(g.Target(e))
			if !tgt.IsBlock() {
				collect(tgt.Value, bb)
			}
			for _, rel := range g.Edge(e).Relations {
				collect(rel.A, bb)
				collect(rel.B, bb)
			}
		}
	}

	// LiveOut(b) = ⋃ over successors s of UEVar(s) ∪ (LiveOut(s) \ VarKill(s))
	for changed := true; changed; {
		changed = false
		for _, bb := range rpo {
			bl := ret.At(bb)
			next := map[string]bool{}

			for _, e := range g.OutEdges(bb) {
				tv := g.Target(e)
				if !g.Node(tv).IsBlock() {
					continue
				}
				sl := ret.At(tv)
				for n := range sl.UEVar {
					next[n] = true
				}
				for n := range sl.LiveOut {
					if !sl.VarKill[n] {
						next[n] = true
					}
				}
			}

			if !sameSet(bl.LiveOut, next) {
				bl.LiveOut = next
				changed = true
			}
		}
	}

	return ret
}

func (l *Live) addUsage(name string, bb graph.NodeID) {
	for _, v := range l.Usage[name] {
		if v == bb {
			return
		}
	}
	l.Usage[name] = append(l.Usage[name], bb)
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
