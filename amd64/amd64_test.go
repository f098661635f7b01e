// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amd64

import (
	"testing"

	"github.com/das-labor/panopticon/disasm"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/region"
)

func match(t *testing.T, mode Mode, bytes []byte) *SemState {
	t.Helper()
	main := Disassembler(mode)
	if main.Err() != nil {
		t.Fatal(main.Err())
	}
	sl := region.SlabFromBytes(bytes)
	st := disasm.NewState[uint8, State](0, NewState(mode), &il.TempPool{Prefix: "t", Width: 64})
	if _, err := main.Match(&sl, 0, sl.Size(), st); err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(st.Mnemonics) == 0 {
		t.Fatal("no mnemonic emitted")
	}
	return st
}

// mov ebx, eax encodes as 89 C3 (mod=11, reg=eax, rm=ebx).
func TestMovRegReg(t *testing.T) {
	st := match(t, Mode32, []byte{0x89, 0xC3})

	m := st.Mnemonics[0]
	if m.Opcode != "mov" {
		t.Fatalf("opcode incorrect. exp: mov, got: %s", m.Opcode)
	}
	if m.Area != region.NewBound(0, 2) {
		t.Errorf("area incorrect: [%d,%d)", m.Area.Lower, m.Area.Upper)
	}
	if len(m.Instructions) != 1 {
		t.Fatalf("instruction count incorrect: %d", len(m.Instructions))
	}
	in := m.Instructions[0]
	if in.Assignee != il.Lvalue(il.Var("ebx", 32)) || in.Operands[0] != il.Rvalue(il.Var("eax", 32)) {
		t.Errorf("assignment incorrect: %v", in)
	}
}

// The 66 prefix shrinks the operand size: 66 89 C3 moves ax to bx.
func TestOperandSizePrefix(t *testing.T) {
	st := match(t, Mode32, []byte{0x66, 0x89, 0xC3})

	in := st.Mnemonics[0].Instructions[0]
	if in.Assignee != il.Lvalue(il.Var("bx", 16)) || in.Operands[0] != il.Rvalue(il.Var("ax", 16)) {
		t.Errorf("16 bit assignment incorrect: %v", in)
	}
}

// REX.W selects 64 bit operands: 48 89 C3 moves rax to rbx.
func TestRexW(t *testing.T) {
	st := match(t, Mode64, []byte{0x48, 0x89, 0xC3})

	in := st.Mnemonics[0].Instructions[0]
	if in.Assignee != il.Lvalue(il.Var("rbx", 64)) || in.Operands[0] != il.Rvalue(il.Var("rax", 64)) {
		t.Errorf("64 bit assignment incorrect: %v", in)
	}
}

// REX.B extends the rm register: 49 89 C7 moves rax to r15.
func TestRexB(t *testing.T) {
	st := match(t, Mode64, []byte{0x49, 0x89, 0xC7})

	in := st.Mnemonics[0].Instructions[0]
	if in.Assignee != il.Lvalue(il.Var("r15", 64)) {
		t.Errorf("extended register incorrect: %v", in.Assignee)
	}
}

// mov [ebx+8], ecx encodes as 89 4B 08 (mod=01, reg=ecx, rm=ebx,
// disp8).
func TestMovMemDisp(t *testing.T) {
	st := match(t, Mode32, []byte{0x89, 0x4B, 0x08})

	m := st.Mnemonics[0]
	if m.Area != region.NewBound(0, 3) {
		t.Fatalf("area incorrect: [%d,%d)", m.Area.Lower, m.Area.Upper)
	}

	last := m.Instructions[len(m.Instructions)-1]
	mem, ok := last.Assignee.(il.Memory)
	if !ok {
		t.Fatalf("store target not memory: %v", last.Assignee)
	}
	if mem.Space != ramSpace || mem.Bytes != 4 || mem.Endian != il.LittleEndian {
		t.Errorf("store shape incorrect: %v", mem)
	}
	if last.Operands[0] != il.Rvalue(il.Var("ecx", 32)) {
		t.Errorf("store source incorrect: %v", last.Operands[0])
	}
}

// add eax, 1 through the 83 /0 group sign-extends its immediate.
func TestAluGroup(t *testing.T) {
	st := match(t, Mode32, []byte{0x83, 0xC0, 0x01})

	m := st.Mnemonics[0]
	if m.Opcode != "add" {
		t.Fatalf("opcode incorrect. exp: add, got: %s", m.Opcode)
	}

	assigned := map[string]bool{}
	for _, i := range m.Instructions {
		if v, ok := i.Assignee.(il.Variable); ok {
			assigned[v.Name] = true
		}
	}
	for _, want := range []string{"eax", "ZF", "SF", "CF", "OF"} {
		if !assigned[want] {
			t.Errorf("%s not written by add", want)
		}
	}
}

// ret ends the path: no successors.
func TestRet(t *testing.T) {
	st := match(t, Mode32, []byte{0xC3})
	if st.Mnemonics[0].Opcode != "ret" {
		t.Fatalf("opcode incorrect: %s", st.Mnemonics[0].Opcode)
	}
	if len(st.Jumps) != 0 {
		t.Errorf("ret has successors: %v", st.Jumps)
	}
}

// jz +5 at offset 0 branches to 7 when ZF is set.
func TestJcc(t *testing.T) {
	st := match(t, Mode32, []byte{0x74, 0x05})

	m := st.Mnemonics[0]
	if m.Opcode != "je" {
		t.Fatalf("opcode incorrect. exp: je, got: %s", m.Opcode)
	}
	if len(st.Jumps) != 2 {
		t.Fatalf("jump count incorrect. exp: 2, got: %d", len(st.Jumps))
	}

	targets := map[uint64]il.Guard{}
	for _, j := range st.Jumps {
		c, ok := j.Target.(il.Constant)
		if !ok {
			t.Fatalf("target not constant: %v", j.Target)
		}
		targets[c.Value] = j.Guard
	}
	if g, ok := targets[7]; !ok || g.Always() {
		t.Error("taken edge incorrect")
	}
	if g, ok := targets[2]; !ok || g.Always() {
		t.Error("fall-through edge incorrect")
	}
}

// call rel32 records the call target in the IL and falls through.
func TestCall(t *testing.T) {
	st := match(t, Mode32, []byte{0xE8, 0x10, 0x00, 0x00, 0x00})

	m := st.Mnemonics[0]
	if m.Opcode != "call" {
		t.Fatalf("opcode incorrect: %s", m.Opcode)
	}

	var target il.Rvalue
	for _, i := range m.Instructions {
		if i.Op == il.IntCall {
			target = i.Operands[0]
		}
	}
	if target != il.Rvalue(il.Const(0x15)) {
		t.Errorf("call target incorrect. exp: $15, got: %v", target)
	}
	if len(st.Jumps) != 1 {
		t.Fatalf("jump count incorrect: %d", len(st.Jumps))
	}
	if c, ok := st.Jumps[0].Target.(il.Constant); !ok || c.Value != 5 {
		t.Errorf("fall-through incorrect: %v", st.Jumps[0].Target)
	}
}

// push rbx in 64 bit mode moves the stack pointer down by 8.
func TestPush(t *testing.T) {
	st := match(t, Mode64, []byte{0x53})

	m := st.Mnemonics[0]
	if m.Opcode != "push" {
		t.Fatalf("opcode incorrect: %s", m.Opcode)
	}

	var store *il.Instr
	for i := range m.Instructions {
		if _, ok := m.Instructions[i].Assignee.(il.Memory); ok {
			store = &m.Instructions[i]
		}
	}
	if store == nil {
		t.Fatal("push does not store")
	}
	mem := store.Assignee.(il.Memory)
	if mem.Bytes != 8 || mem.Offset != il.Rvalue(il.Var("rsp", 64)) {
		t.Errorf("store shape incorrect: %v", mem)
	}
	if store.Operands[0] != il.Rvalue(il.Var("rbx", 64)) {
		t.Errorf("pushed register incorrect: %v", store.Operands[0])
	}
}

// shl eax, 4 encodes as C1 E0 04.
func TestShiftGroup(t *testing.T) {
	st := match(t, Mode32, []byte{0xC1, 0xE0, 0x04})

	m := st.Mnemonics[0]
	if m.Opcode != "shl" {
		t.Fatalf("opcode incorrect. exp: shl, got: %s", m.Opcode)
	}
	last := m.Instructions[len(m.Instructions)-1]
	if last.Assignee != il.Lvalue(il.Var("eax", 32)) {
		t.Errorf("shift target incorrect: %v", last.Assignee)
	}
}

// movzx eax, bl encodes as 0F B6 C3.
func TestMovzx(t *testing.T) {
	st := match(t, Mode32, []byte{0x0F, 0xB6, 0xC3})

	m := st.Mnemonics[0]
	if m.Opcode != "movzx" {
		t.Fatalf("opcode incorrect. exp: movzx, got: %s", m.Opcode)
	}
	in := m.Instructions[0]
	if in.Assignee != il.Lvalue(il.Var("eax", 32)) || in.Operands[0] != il.Rvalue(il.Var("bl", 8)) {
		t.Errorf("extension incorrect: %v", in)
	}
}

// not ecx through the F7 group flips every bit.
func TestUnaryGroup(t *testing.T) {
	st := match(t, Mode32, []byte{0xF7, 0xD1})

	m := st.Mnemonics[0]
	if m.Opcode != "not" {
		t.Fatalf("opcode incorrect. exp: not, got: %s", m.Opcode)
	}
	last := m.Instructions[len(m.Instructions)-1]
	if last.Assignee != il.Lvalue(il.Var("ecx", 32)) {
		t.Errorf("target incorrect: %v", last.Assignee)
	}
}

// inc edx is a single byte outside 64 bit mode; the same byte is a
// REX prefix in 64 bit mode.
func TestIncModes(t *testing.T) {
	st := match(t, Mode32, []byte{0x42})
	if st.Mnemonics[0].Opcode != "inc" {
		t.Errorf("opcode incorrect. exp: inc, got: %s", st.Mnemonics[0].Opcode)
	}

	st = match(t, Mode64, []byte{0x42, 0x89, 0xC3})
	if st.Mnemonics[0].Opcode != "mov" {
		t.Errorf("REX-prefixed mov incorrect: %s", st.Mnemonics[0].Opcode)
	}
}

// An unknown opcode falls back to a one-byte unk mnemonic.
func TestFailsafe(t *testing.T) {
	st := match(t, Mode32, []byte{0x0F, 0xFF})
	if st.Mnemonics[0].Opcode != "unk" {
		t.Errorf("failsafe opcode incorrect: %s", st.Mnemonics[0].Opcode)
	}
}
