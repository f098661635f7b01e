// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dflow

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/graph"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/proc"
)

// phiWidth is the width assigned to freshly inserted φ variables.
const phiWidth = 512

// SSA transforms the procedure into static single assignment form:
// φ-functions are inserted at the dominance frontiers of every
// definition of a global variable, then all variables are renamed so
// each definition carries a unique subscript and every use reads the
// nearest dominating definition.
func SSA(p *proc.Procedure, d *Dom, l *Live) error {
	if d.Version != p.Version() || l.Version != p.Version() {
		return errors.New("stale dominance or liveness information")
	}

	g := p.CFG

	// globals: variables live across block boundaries
	globals := map[string]bool{}
	for _, bl := range l.Blocks {
		for n := range bl.UEVar {
			globals[n] = true
		}
	}

	names := make([]string, 0, len(globals))
	for n := range globals {
		names = append(names, n)
	}
	sort.Strings(names)

	// insert φ-functions at dominance frontiers
	for _, n := range names {
		worklist := append([]graph.NodeID(nil), l.Usage[n]...)

		for len(worklist) > 0 {
			bb := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]

			for _, frontier := range d.Frontiers[bb] {
				fn := g.Node(frontier)
				if !fn.IsBlock() {
					continue
				}

				hasPhi := false
				fn.Block.Execute(func(i il.Instr) {
					if i.Op == il.UnivPhi {
						if v, ok := i.Assignee.(il.Variable); ok && v.Name == n {
							hasPhi = true
						}
					}
				})
				if hasPhi {
					continue
				}

				phi := il.NewInstr(il.UnivPhi, il.Var(n, phiWidth))
				fn.Block.Mutate(func(ms *[]il.Mnemonic) {
					if len(*ms) > 0 && (*ms)[0].IsPhis() {
						(*ms)[0].Instructions = append((*ms)[0].Instructions, phi)
					} else {
						at := fn.Block.Area().Lower
						*ms = append([]il.Mnemonic{il.Phis(at, []il.Instr{phi})}, *ms...)
					}
				})
				worklist = append(worklist, frontier)
			}
		}
	}

	// rename
	counter := map[string]int{}
	stack := map[string][]int{}
	for n := range l.Names {
		counter[n] = 1
		stack[n] = []int{0}
	}

	newName := func(n string) int {
		i := counter[n]
		counter[n]++
		stack[n] = append(stack[n], i)
		return i
	}
	top := func(n string) int {
		s := stack[n]
		return s[len(s)-1]
	}

	var rename func(v graph.NodeID) error
	rename = func(v graph.NodeID) error {
		n := g.Node(v)
		if !n.IsBlock() {
			return nil
		}
		bb := n.Block

		// rewrite φ assignees with fresh subscripts
		bb.Rewrite(func(i *il.Instr) {
			if i.Op != il.UnivPhi {
				return
			}
			if vr, ok := i.Assignee.(il.Variable); ok {
				i.Assignee = il.Subscripted(vr.Name, vr.Width, newName(vr.Name))
			}
		})

		// rewrite operands with the active subscript, assignees with a
		// fresh one
		bb.Mutate(func(ms *[]il.Mnemonic) {
			for mi := range *ms {
				mne := &(*ms)[mi]
				for oi, op := range mne.Operands {
					if vr, ok := op.(il.Variable); ok {
						mne.Operands[oi] = il.Subscripted(vr.Name, vr.Width, top(vr.Name))
					}
				}
				for ii := range mne.Instructions {
					in := &mne.Instructions[ii]
					if in.Op == il.UnivPhi {
						continue
					}
					for oi, op := range in.Operands {
						if vr, ok := op.(il.Variable); ok {
							in.Operands[oi] = il.Subscripted(vr.Name, vr.Width, top(vr.Name))
						}
					}
					if vr, ok := in.Assignee.(il.Variable); ok {
						in.Assignee = il.Subscripted(vr.Name, vr.Width, newName(vr.Name))
					}
				}
			}
		})

		// rewrite outgoing guards and symbolic targets, fill successor
		// φ parameters
		for _, e := range g.OutEdges(v) {
			guard := g.Edge(e)
			for ri := range guard.Relations {
				rel := &guard.Relations[ri]
				if vr, ok := rel.A.(il.Variable); ok {
					rel.A = il.Subscripted(vr.Name, vr.Width, top(vr.Name))
				}
				if vr, ok := rel.B.(il.Variable); ok {
					rel.B = il.Subscripted(vr.Name, vr.Width, top(vr.Name))
				}
			}
			g.SetEdge(e, guard)

			tv := g.Target(e)
			tn := g.Node(tv)

			if !tn.IsBlock() {
				if vr, ok := tn.Value.(il.Variable); ok {
					g.SetNode(tv, proc.ValueNode(il.Subscripted(vr.Name, vr.Width, top(vr.Name))))
				}
				continue
			}

			// this edge's ordinal among the successor's in-edges picks
			// the φ operand slot
			ord := -1
			for i, ie := range g.InEdges(tv) {
				if ie == e {
					ord = i
					break
				}
			}
			if ord < 0 {
				return errors.New("edge missing from successor in-edges")
			}

			tn.Block.Mutate(func(ms *[]il.Mnemonic) {
				if len(*ms) == 0 || !(*ms)[0].IsPhis() {
					return
				}
				phis := &(*ms)[0]
				for ii := range phis.Instructions {
					in := &phis.Instructions[ii]
					vr, ok := in.Assignee.(il.Variable)
					if in.Op != il.UnivPhi || !ok {
						continue
					}
					for len(in.Operands) <= ord {
						in.Operands = append(in.Operands, il.Undefined{})
					}
					in.Operands[ord] = il.Subscripted(vr.Name, vr.Width, top(vr.Name))
				}
			})
		}

		// recurse into dominator-tree children, then pop this block's
		// definitions
		for _, c := range d.Children(v) {
			if err := rename(c); err != nil {
				return err
			}
		}

		bb.Execute(func(i il.Instr) {
			if vr, ok := i.Assignee.(il.Variable); ok {
				s := stack[vr.Name]
				if len(s) == 0 {
					return
				}
				stack[vr.Name] = s[:len(s)-1]
			}
		})
		return nil
	}

	ent, ok := p.Entry()
	if !ok {
		return errors.New("procedure has no entry")
	}
	if err := rename(ent); err != nil {
		return err
	}

	p.Invalidate()
	return nil
}
