// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package amd64 implements the x86/AMD64 frontend: 8 bit tokens,
// prefix handling carried as mutable match state, and ModR/M and SIB
// dispatch through dedicated sub-disassemblers.
package amd64

import (
	"fmt"

	"github.com/das-labor/panopticon/il"
)

// Mode selects the operating mode the code is decoded for.
type Mode int

const (
	Mode16 Mode = 16
	Mode32 Mode = 32
	Mode64 Mode = 64
)

// ramSpace names the flat data memory space amd64 IL references.
const ramSpace = "ram"

// status flags
var (
	flagCF = il.Var("CF", 1)
	flagPF = il.Var("PF", 1)
	flagAF = il.Var("AF", 1)
	flagZF = il.Var("ZF", 1)
	flagSF = il.Var("SF", 1)
	flagOF = il.Var("OF", 1)
)

// An Operand is a decoded ModR/M operand: either a register number or
// a memory reference described by base, index, scale and displacement.
type Operand struct {
	Mem    bool
	Reg    uint64
	Base   int // register number, -1 when absent
	Index  int // register number, -1 when absent
	Scale  uint64
	Disp   int64
	RipRel bool
}

// State is the mutable architecture state carried through one match:
// the operating mode, the sizes selected by prefixes, the REX byte
// fields and the last decoded ModR/M operand.
type State struct {
	Mode Mode

	OpSize   uint // operand size in bits
	AddrSize uint // address size in bits

	Rex  bool
	RexW bool
	RexR bool
	RexX bool
	RexB bool

	Lock bool
	Rep  bool

	Modrm    Operand
	RegField uint64
}

// NewState returns the initial state for the given mode.
func NewState(m Mode) State {
	st := State{Mode: m}
	switch m {
	case Mode16:
		st.OpSize, st.AddrSize = 16, 16
	case Mode32:
		st.OpSize, st.AddrSize = 32, 32
	default:
		st.OpSize, st.AddrSize = 32, 64
	}
	return st
}

// effOpSize returns the operand size after prefixes.
func (s *State) effOpSize() uint {
	if s.RexW {
		return 64
	}
	return s.OpSize
}

var reg8Names = [...]string{"al", "cl", "dl", "bl", "ah", "ch", "dh", "bh"}
var reg8RexNames = [...]string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"}
var reg16Names = [...]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
	"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w"}
var reg32Names = [...]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
var reg64Names = [...]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}

// regVar returns the register variable for number n at the given
// width. REX selects the uniform byte registers.
func (s *State) regVar(n uint64, width uint) il.Variable {
	switch width {
	case 8:
		if s.Rex {
			return il.Var(reg8RexNames[n&15], 8)
		}
		return il.Var(reg8Names[n&7], 8)
	case 16:
		return il.Var(reg16Names[n&15], 16)
	case 32:
		return il.Var(reg32Names[n&15], 32)
	case 64:
		return il.Var(reg64Names[n&15], 64)
	default:
		panic(fmt.Sprintf("amd64: register width %d", width))
	}
}

// addrReg returns the register variable used in address computation.
func (s *State) addrReg(n int) il.Variable {
	return s.regVar(uint64(n), s.AddrSize)
}

// ipVar returns the instruction pointer at the current address size.
func (s *State) ipVar() il.Variable {
	switch s.AddrSize {
	case 16:
		return il.Var("ip", 16)
	case 32:
		return il.Var("eip", 32)
	default:
		return il.Var("rip", 64)
	}
}

// regField returns the reg-field operand of the last ModR/M byte,
// extended by REX.R.
func (s *State) regField(width uint) il.Variable {
	n := s.RegField
	if s.RexR {
		n |= 8
	}
	return s.regVar(n, width)
}

// rmAddress emits the address computation of a memory operand and
// returns the offset rvalue.
func (s *State) rmAddress(m *il.CodeGen, op Operand) il.Rvalue {
	var acc il.Rvalue

	if op.RipRel {
		acc = s.ipVar()
	} else if op.Base >= 0 {
		base := op.Base
		if s.RexB {
			base |= 8
		}
		acc = s.addrReg(base)
	}

	if op.Index >= 0 {
		idx := op.Index
		if s.RexX {
			idx |= 8
		}
		scaled := m.MulI(nil, s.addrReg(idx), il.Const(1<<op.Scale))
		if acc != nil {
			acc = m.AddI(nil, acc, scaled)
		} else {
			acc = scaled
		}
	}

	if op.Disp != 0 || acc == nil {
		d := il.Const(uint64(op.Disp))
		if acc != nil {
			acc = m.AddI(nil, acc, d)
		} else {
			acc = d
		}
	}

	return acc
}

// rmRef emits the memory reference of a decoded memory operand.
func (s *State) rmRef(m *il.CodeGen, op Operand, width uint) il.Memory {
	return il.Mem(s.rmAddress(m, op), uint16(width/8), il.LittleEndian, ramSpace)
}

// rmRead returns an rvalue reading the ModR/M operand.
func (s *State) rmRead(m *il.CodeGen, width uint) il.Rvalue {
	if !s.Modrm.Mem {
		n := s.Modrm.Reg
		if s.RexB {
			n |= 8
		}
		return s.regVar(n, width)
	}
	return s.rmRef(m, s.Modrm, width)
}

// rmWrite returns the lvalue naming the ModR/M operand.
func (s *State) rmWrite(m *il.CodeGen, width uint) il.Lvalue {
	if !s.Modrm.Mem {
		n := s.Modrm.Reg
		if s.RexB {
			n |= 8
		}
		return s.regVar(n, width)
	}
	return s.rmRef(m, s.Modrm, width)
}

// le turns a big-endian capture accumulation of n bytes into the
// little-endian value they encode.
func le(v uint64, n uint) uint64 {
	var out uint64
	for i := uint(0); i < n; i++ {
		out |= (v >> (8 * (n - 1 - i)) & 0xff) << (8 * i)
	}
	return out
}

// signed interprets the low bits of v as a signed bits-wide integer.
func signed(v uint64, bits uint) int64 {
	mask := uint64(1)<<bits - 1
	v &= mask
	if v&(1<<(bits-1)) != 0 {
		return int64(v | ^mask)
	}
	return int64(v)
}
