// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"fmt"
	"sort"

	"github.com/das-labor/panopticon/disasm"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/region"
)

func procName(entry region.Offset) string {
	return fmt.Sprintf("proc_%d", entry)
}

// A Program is the set of procedures recovered from one memory region,
// plus the call edges between them.
type Program struct {
	Name   string
	Region string

	procs []*Procedure
	calls map[*Procedure][]*Procedure
}

// NewProgram returns an empty program rooted in the named region.
func NewProgram(name, regionName string) *Program {
	return &Program{Name: name, Region: regionName, calls: map[*Procedure][]*Procedure{}}
}

// Procedures returns the program's procedures ordered by entry offset.
func (pr *Program) Procedures() []*Procedure {
	ret := append([]*Procedure(nil), pr.procs...)
	sort.Slice(ret, func(i, j int) bool {
		a, aok := ret[i].EntryBlock()
		b, bok := ret[j].EntryBlock()
		if !aok || !bok {
			return aok && !bok
		}
		return a.Area().Lower < b.Area().Lower
	})
	return ret
}

// Insert adds a procedure, replacing any existing one with the same
// entry offset.
func (pr *Program) Insert(p *Procedure) {
	if bb, ok := p.EntryBlock(); ok {
		if old, found := pr.ByEntry(bb.Area().Lower); found {
			pr.remove(old)
		}
	}
	pr.procs = append(pr.procs, p)
}

func (pr *Program) remove(p *Procedure) {
	for i, q := range pr.procs {
		if q == p {
			pr.procs = append(pr.procs[:i], pr.procs[i+1:]...)
			break
		}
	}
	delete(pr.calls, p)
	for from, tos := range pr.calls {
		for i := len(tos) - 1; i >= 0; i-- {
			if tos[i] == p {
				tos = append(tos[:i], tos[i+1:]...)
			}
		}
		pr.calls[from] = tos
	}
}

// ByEntry returns the procedure whose entry block starts at off.
func (pr *Program) ByEntry(off region.Offset) (*Procedure, bool) {
	for _, p := range pr.procs {
		if bb, ok := p.EntryBlock(); ok && bb.Area().Lower == off {
			return p, true
		}
	}
	return nil, false
}

// ByName returns the procedure with the given name.
func (pr *Program) ByName(name string) (*Procedure, bool) {
	for _, p := range pr.procs {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// AddCall records a call edge.
func (pr *Program) AddCall(from, to *Procedure) {
	pr.calls[from] = append(pr.calls[from], to)
}

// CallsFrom returns the procedures called by p.
func (pr *Program) CallsFrom(p *Procedure) []*Procedure { return pr.calls[p] }

// callTargets collects the constant targets of int-call instructions
// in p.
func callTargets(p *Procedure) []region.Offset {
	var ret []region.Offset
	p.Execute(func(i il.Instr) {
		if i.Op != il.IntCall || len(i.Operands) != 1 {
			return
		}
		if c, ok := i.Operands[0].(il.Constant); ok {
			ret = append(ret, c.Value)
		}
	})
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// ExtendProgram disassembles the procedure at start and, transitively,
// every procedure it calls, adding them to prog. A nil prog is
// created on the first decoded procedure; nil is returned when
// nothing could be decoded at all.
func ExtendProgram[T disasm.Token, S any](prog *Program, d *disasm.Disassembler[T, S], init S, temps *il.TempPool, data region.Slab, regionName string, start region.Offset) (*Program, error) {
	todo := []region.Offset{start}
	seen := map[region.Offset]bool{}
	calls := map[region.Offset][]region.Offset{}

	for len(todo) > 0 {
		sort.Slice(todo, func(i, j int) bool { return todo[i] < todo[j] })
		off := todo[0]
		todo = todo[1:]
		if seen[off] {
			continue
		}
		seen[off] = true

		var existing *Procedure
		if prog != nil {
			existing, _ = prog.ByEntry(off)
		}

		p, err := Disassemble(existing, d, init, temps, data, off)
		if err != nil {
			return prog, err
		}
		if p == nil {
			continue
		}

		if prog == nil {
			prog = NewProgram(fmt.Sprintf("prog_%s", regionName), regionName)
		}
		prog.Insert(p)

		for _, tgt := range callTargets(p) {
			calls[off] = append(calls[off], tgt)
			if !seen[tgt] {
				todo = append(todo, tgt)
			}
		}
	}

	if prog == nil {
		return nil, nil
	}

	for from, tos := range calls {
		fp, ok := prog.ByEntry(from)
		if !ok {
			continue
		}
		for _, to := range tos {
			if tp, ok := prog.ByEntry(to); ok {
				prog.AddCall(fp, tp)
			}
		}
	}

	return prog, nil
}
