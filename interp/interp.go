// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package interp implements a fixed-point solver over procedures,
// parameterised by an abstract domain. Executing a procedure under a
// domain maps every assigned variable to an element of the domain's
// lattice.
package interp

import (
	"github.com/das-labor/panopticon/graph"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/proc"
)

// A Domain supplies the lattice the solver runs over. Supremum must be
// commutative, associative and idempotent.
type Domain[V any] interface {
	// Overapproximate lifts a concrete rvalue into the lattice.
	Overapproximate(il.Rvalue) V

	// Supremum joins two lattice elements.
	Supremum(a, b V) V

	// Execute applies an IL operation to operands already lifted into
	// the lattice.
	Execute(op il.Opcode, ops []V) V

	// Equal compares two lattice elements.
	Equal(a, b V) bool
}

// Env maps variables to lattice elements.
type Env[V any] map[il.Variable]V

// A Solver runs a domain to its fixed point over a procedure. Cancel,
// if set, is polled between worklist iterations; when it reports true
// the solver returns the environment computed so far.
type Solver[V any] struct {
	Domain Domain[V]
	Cancel func() bool
}

// Run executes every basic block's IL under the domain until the
// worklist drains.
func (s Solver[V]) Run(p *proc.Procedure) Env[V] {
	env := Env[V]{}
	g := p.CFG

	lift := func(v il.Rvalue) V {
		if vr, ok := v.(il.Variable); ok {
			if x, ok := env[vr]; ok {
				return x
			}
		}
		return s.Domain.Overapproximate(v)
	}

	worklist := map[graph.NodeID]bool{}
	for _, v := range p.Blocks() {
		worklist[v] = true
	}

	for len(worklist) > 0 {
		if s.Cancel != nil && s.Cancel() {
			break
		}

		var v graph.NodeID
		first := true
		for w := range worklist {
			if first || w < v {
				v = w
				first = false
			}
		}
		delete(worklist, v)

		modified := false
		g.Node(v).Block.Execute(func(i il.Instr) {
			vr, ok := i.Assignee.(il.Variable)
			if !ok {
				return
			}

			ops := make([]V, len(i.Operands))
			for k, op := range i.Operands {
				ops[k] = lift(op)
			}
			res := s.Domain.Execute(i.Op, ops)

			old, seen := env[vr]
			if !seen || !s.Domain.Equal(old, res) {
				env[vr] = res
				modified = true
			}
		})

		if modified {
			for _, e := range g.OutEdges(v) {
				w := g.Target(e)
				if g.Node(w).IsBlock() {
					worklist[w] = true
				}
			}
		}
	}

	return env
}

// Interpret runs domain d over p without cancellation.
func Interpret[V any](p *proc.Procedure, d Domain[V]) Env[V] {
	return Solver[V]{Domain: d}.Run(p)
}
