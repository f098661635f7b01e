// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm

import (
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/region"
)

// A Jump is a possible successor of a mnemonic sequence: a target
// rvalue and the guard under which the jump is taken.
type Jump struct {
	Target il.Rvalue
	Guard  il.Guard
}

// State is passed down a rule chain while it matches a token
// sequence. It collects matched tokens and capture-group values, and
// the semantic actions fill it with mnemonics and jumps. Ctx holds
// mutable architecture state (prefix bytes, operand sizes) scoped to
// one match.
type State[T Token, S any] struct {
	Address  region.Offset
	Ctx      S
	Tokens   []T
	Captures map[string]uint64

	Mnemonics []il.Mnemonic
	Jumps     []Jump

	temps    *il.TempPool
	nextAddr region.Offset
	err      error
}

// NewState returns a state for a match starting at the byte address a.
// Temporaries allocated by semantic actions are drawn from temps.
func NewState[T Token, S any](a region.Offset, init S, temps *il.TempPool) *State[T, S] {
	return &State[T, S]{
		Address:  a,
		Ctx:      init,
		Captures: map[string]uint64{},
		temps:    temps,
		nextAddr: a,
	}
}

// Group returns the value of a capture group.
func (st *State[T, S]) Group(name string) uint64 { return st.Captures[name] }

// Mnemonic appends a mnemonic of length len bytes with the given
// opcode, format string and operands. sem, if non-nil, is called with
// a code generator emitting the mnemonic's IL. Mnemonics start where
// the previous one ended; the first starts at the match address.
func (st *State[T, S]) Mnemonic(length region.Offset, opcode, format string, ops []il.Rvalue, sem func(*il.CodeGen)) {
	if st.err != nil {
		return
	}

	var instrs []il.Instr
	if sem != nil {
		cg := il.NewCodeGen(&instrs, st.temps)
		sem(cg)
		if err := cg.Err(); err != nil {
			st.err = err
			return
		}
	}

	if format == "" {
		for i := range ops {
			if i > 0 {
				format += ", "
			}
			format += "{8}"
		}
	}

	m, err := il.NewMnemonic(region.NewBound(st.nextAddr, st.nextAddr+length), opcode, format, ops, instrs)
	if err != nil {
		st.err = err
		return
	}
	st.Mnemonics = append(st.Mnemonics, m)
	st.nextAddr += length
}

// Jump adds a possible successor address chosen when g holds.
func (st *State[T, S]) Jump(target il.Rvalue, g il.Guard) {
	st.Jumps = append(st.Jumps, Jump{Target: target, Guard: g})
}

// JumpTo adds a constant successor address.
func (st *State[T, S]) JumpTo(a region.Offset, g il.Guard) {
	st.Jump(il.Const(a), g)
}

// Err returns the first error a semantic action ran into.
func (st *State[T, S]) Err() error { return st.err }

// Fail marks the state as failed; used by semantic actions that detect
// ill-formed input after matching.
func (st *State[T, S]) Fail(err error) { st.err = err }
