// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package proc arranges mnemonics into basic blocks and procedures and
// implements the worklist-driven control-flow reconstruction.
package proc

import (
	"github.com/das-labor/panopticon/graph"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/region"
)

// A BasicBlock is a non-empty ordered run of mnemonics with contiguous
// and increasing address ranges.
type BasicBlock struct {
	mnemonics []il.Mnemonic
	area      region.Bound
}

// NewBasicBlock builds a block from mnemonics in program order.
func NewBasicBlock(ms ...il.Mnemonic) *BasicBlock {
	bb := &BasicBlock{mnemonics: ms}
	bb.recompute()
	return bb
}

func (bb *BasicBlock) recompute() {
	var area region.Bound
	for i := range bb.mnemonics {
		area = area.Hull(bb.mnemonics[i].Area)
		if area.Size() == 0 {
			// hull of synthetic zero-width mnemonics
			area = bb.mnemonics[i].Area
		}
	}
	bb.area = area
}

// Mnemonics returns the block's mnemonics in program order.
func (bb *BasicBlock) Mnemonics() []il.Mnemonic { return bb.mnemonics }

// Area returns the hull of the block's mnemonic ranges.
func (bb *BasicBlock) Area() region.Bound { return bb.area }

// Mutate hands the mnemonic list to fn for in-place modification and
// recomputes the block's area.
func (bb *BasicBlock) Mutate(fn func(*[]il.Mnemonic)) {
	fn(&bb.mnemonics)
	bb.recompute()
}

// Execute calls fn on every IL instruction in program order.
func (bb *BasicBlock) Execute(fn func(il.Instr)) {
	for i := range bb.mnemonics {
		for _, in := range bb.mnemonics[i].Instructions {
			fn(in)
		}
	}
}

// Rewrite calls fn on a pointer to every IL instruction in program
// order, allowing in-place replacement.
func (bb *BasicBlock) Rewrite(fn func(*il.Instr)) {
	for i := range bb.mnemonics {
		for k := range bb.mnemonics[i].Instructions {
			fn(&bb.mnemonics[i].Instructions[k])
		}
	}
}

// A Node is a vertex of a procedure's control-transfer graph: either a
// basic block or a symbolic (unresolved) jump target.
type Node struct {
	Block *BasicBlock
	Value il.Rvalue
}

// BlockNode wraps a basic block.
func BlockNode(bb *BasicBlock) Node { return Node{Block: bb} }

// ValueNode wraps an unresolved rvalue target.
func ValueNode(v il.Rvalue) Node { return Node{Value: v} }

// IsBlock reports whether the node is a basic block.
func (n Node) IsBlock() bool { return n.Block != nil }

// CFG is a procedure's control-transfer graph. Edges carry guards.
type CFG = graph.Graph[Node, il.Guard]
