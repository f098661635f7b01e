// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amd64

import (
	"github.com/das-labor/panopticon/disasm"
)

// SemState is the semantic state amd64 actions receive.
type SemState = disasm.State[uint8, State]

// Dis abbreviates the amd64 rule set type.
type Dis = disasm.Disassembler[uint8, State]

const dispByte = "d@........"

// buildRM returns the sub-disassembler decoding one ModR/M byte whose
// reg field matches regBits, plus any SIB byte and displacement. The
// decoded operand lands in the match state.
func buildRM(regBits string) *Dis {
	rm := disasm.New[uint8, State]()

	reg := func(st *SemState) {
		st.Ctx.RegField = st.Group("reg")
	}

	// mod 00: no displacement, except rm=100 (SIB) and rm=101
	// (disp32, rip-relative in 64 bit mode)
	rm.Pat("00 " + regBits + " 100").Pat("scale@.. index@... 101").
		Pat(dispByte).Pat(dispByte).Pat(dispByte).Pat(dispByte).
		Call(func(st *SemState) {
			reg(st)
			op := Operand{Mem: true, Base: -1, Index: int(st.Group("index")), Scale: st.Group("scale")}
			if op.Index == 4 && !st.Ctx.RexX {
				op.Index = -1
			}
			op.Disp = signed(le(st.Group("d"), 4), 32)
			st.Ctx.Modrm = op
		}).Do(nil)

	rm.Pat("00 " + regBits + " 100").Pat("scale@.. index@... base@...").
		Call(func(st *SemState) {
			reg(st)
			op := Operand{Mem: true, Base: int(st.Group("base")), Index: int(st.Group("index")), Scale: st.Group("scale")}
			if op.Index == 4 && !st.Ctx.RexX {
				op.Index = -1
			}
			st.Ctx.Modrm = op
		}).Do(nil)

	rm.Pat("00 " + regBits + " 101").
		Pat(dispByte).Pat(dispByte).Pat(dispByte).Pat(dispByte).
		Call(func(st *SemState) {
			reg(st)
			op := Operand{Mem: true, Base: -1, Index: -1, Disp: signed(le(st.Group("d"), 4), 32)}
			if st.Ctx.Mode == Mode64 {
				op.RipRel = true
			}
			st.Ctx.Modrm = op
		}).Do(nil)

	rm.Pat("00 " + regBits + " rm@...").
		Call(func(st *SemState) {
			reg(st)
			st.Ctx.Modrm = Operand{Mem: true, Base: int(st.Group("rm")), Index: -1}
		}).Do(nil)

	// mod 01: 8 bit displacement
	rm.Pat("01 " + regBits + " 100").Pat("scale@.. index@... base@...").Pat(dispByte).
		Call(func(st *SemState) {
			reg(st)
			op := Operand{Mem: true, Base: int(st.Group("base")), Index: int(st.Group("index")), Scale: st.Group("scale")}
			if op.Index == 4 && !st.Ctx.RexX {
				op.Index = -1
			}
			op.Disp = signed(st.Group("d"), 8)
			st.Ctx.Modrm = op
		}).Do(nil)

	rm.Pat("01 " + regBits + " rm@...").Pat(dispByte).
		Call(func(st *SemState) {
			reg(st)
			st.Ctx.Modrm = Operand{Mem: true, Base: int(st.Group("rm")), Index: -1, Disp: signed(st.Group("d"), 8)}
		}).Do(nil)

	// mod 10: 32 bit displacement
	rm.Pat("10 " + regBits + " 100").Pat("scale@.. index@... base@...").
		Pat(dispByte).Pat(dispByte).Pat(dispByte).Pat(dispByte).
		Call(func(st *SemState) {
			reg(st)
			op := Operand{Mem: true, Base: int(st.Group("base")), Index: int(st.Group("index")), Scale: st.Group("scale")}
			if op.Index == 4 && !st.Ctx.RexX {
				op.Index = -1
			}
			op.Disp = signed(le(st.Group("d"), 4), 32)
			st.Ctx.Modrm = op
		}).Do(nil)

	rm.Pat("10 " + regBits + " rm@...").
		Pat(dispByte).Pat(dispByte).Pat(dispByte).Pat(dispByte).
		Call(func(st *SemState) {
			reg(st)
			st.Ctx.Modrm = Operand{Mem: true, Base: int(st.Group("rm")), Index: -1, Disp: signed(le(st.Group("d"), 4), 32)}
		}).Do(nil)

	// mod 11: register direct
	rm.Pat("11 " + regBits + " rm@...").
		Call(func(st *SemState) {
			reg(st)
			st.Ctx.Modrm = Operand{Reg: st.Group("rm"), Base: -1, Index: -1}
		}).Do(nil)

	return rm
}

// rm decodes a ModR/M byte with a free reg field; rm0 through rm7
// require the given value in the reg field and are used by the
// immediate-group opcodes.
var (
	rmAny = buildRM("reg@...")
	rmFix = [8]*Dis{
		buildRM("000"), buildRM("001"), buildRM("010"), buildRM("011"),
		buildRM("100"), buildRM("101"), buildRM("110"), buildRM("111"),
	}
)
