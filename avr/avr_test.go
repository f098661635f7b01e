// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avr

import (
	"testing"

	"github.com/das-labor/panopticon/disasm"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/region"
)

func match(t *testing.T, bytes []byte, at region.Offset) *SemState {
	t.Helper()
	main := Disassembler()
	if main.Err() != nil {
		t.Fatal(main.Err())
	}
	sl := region.SlabFromBytes(bytes)
	st := disasm.NewState[uint16, State](at, Mega128(), &il.TempPool{Prefix: "t", Width: 16})
	if _, err := main.Match(&sl, at, sl.Size(), st); err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(st.Mnemonics) == 0 {
		t.Fatal("no mnemonic emitted")
	}
	return st
}

// add r16, r17 encodes as 0000 11 1 10000 0001.
func TestAdd(t *testing.T) {
	st := match(t, []byte{0x01, 0x0F}, 0)

	m := st.Mnemonics[0]
	if m.Opcode != "add" {
		t.Fatalf("opcode incorrect. exp: add, got: %s", m.Opcode)
	}
	if m.Area != region.NewBound(0, 2) {
		t.Errorf("area incorrect: [%d,%d)", m.Area.Lower, m.Area.Upper)
	}
	if len(m.Operands) != 2 ||
		m.Operands[0] != il.Rvalue(il.Var("r16", 8)) ||
		m.Operands[1] != il.Rvalue(il.Var("r17", 8)) {
		t.Errorf("operands incorrect: %v", m.Operands)
	}

	// the destination register and every arithmetic flag are written
	assigned := map[string]bool{}
	for _, i := range m.Instructions {
		if v, ok := i.Assignee.(il.Variable); ok {
			assigned[v.Name] = true
		}
	}
	for _, want := range []string{"r16", "C", "Z", "N", "V", "S", "H"} {
		if !assigned[want] {
			t.Errorf("%s not written by add", want)
		}
	}

	// the result is reduced mod 256 into r16
	last := m.Instructions[len(m.Instructions)-1]
	if last.Op != il.UnivNop || last.Assignee != il.Lvalue(il.Var("r16", 8)) {
		t.Errorf("final assignment incorrect: %v", last)
	}

	if len(st.Jumps) != 1 {
		t.Fatalf("jump count incorrect. exp: 1, got: %d", len(st.Jumps))
	}
	if c, ok := st.Jumps[0].Target.(il.Constant); !ok || c.Value != 2 {
		t.Errorf("fall-through target incorrect: %v", st.Jumps[0].Target)
	}
}

// ldi r17, $2A encodes as 1110 0010 0001 1010.
func TestLdi(t *testing.T) {
	st := match(t, []byte{0x1A, 0xE2}, 0)

	m := st.Mnemonics[0]
	if m.Opcode != "ldi" {
		t.Fatalf("opcode incorrect. exp: ldi, got: %s", m.Opcode)
	}
	if m.Operands[0] != il.Rvalue(il.Var("r17", 8)) || m.Operands[1] != il.Rvalue(il.Const(0x2A)) {
		t.Errorf("operands incorrect: %v", m.Operands)
	}
	if len(m.Instructions) != 1 || m.Instructions[0].Op != il.UnivNop {
		t.Errorf("semantics incorrect: %v", m.Instructions)
	}
}

// eor r1, r1 decodes as clr r1.
func TestClrAlias(t *testing.T) {
	// 0010 01 0 00001 0001
	st := match(t, []byte{0x11, 0x24}, 0)
	if st.Mnemonics[0].Opcode != "clr" {
		t.Errorf("opcode incorrect. exp: clr, got: %s", st.Mnemonics[0].Opcode)
	}
}

// rjmp .-2 encodes as 1100 111111111111.
func TestRjmpBackward(t *testing.T) {
	st := match(t, []byte{0xFF, 0xCF}, 4)

	if st.Mnemonics[0].Opcode != "rjmp" {
		t.Fatalf("opcode incorrect: %s", st.Mnemonics[0].Opcode)
	}
	if len(st.Jumps) != 1 {
		t.Fatalf("jump count incorrect: %d", len(st.Jumps))
	}
	if c, ok := st.Jumps[0].Target.(il.Constant); !ok || c.Value != 4 {
		t.Errorf("backward target incorrect. exp: 4, got: %v", st.Jumps[0].Target)
	}
}

// breq +2 words encodes as 1111 00 0000010 001.
func TestBranchGuards(t *testing.T) {
	st := match(t, []byte{0x11, 0xF0}, 0)

	m := st.Mnemonics[0]
	if m.Opcode != "breq" {
		t.Fatalf("opcode incorrect. exp: breq, got: %s", m.Opcode)
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
	// fall through at 2, taken at 2 + 2*2 = 6
	if _, ok := targets[2]; !ok {
		t.Error("fall-through edge missing")
	}
	if g, ok := targets[6]; !ok {
		t.Error("taken edge missing")
	} else if g.Always() {
		t.Error("taken edge unguarded")
	}
}

// sec encodes as $9408 and sets the carry.
func TestFlagOps(t *testing.T) {
	st := match(t, []byte{0x08, 0x94}, 0)
	m := st.Mnemonics[0]
	if m.Opcode != "sec" {
		t.Fatalf("opcode incorrect. exp: sec, got: %s", m.Opcode)
	}
	if len(m.Instructions) != 1 ||
		m.Instructions[0].Assignee != il.Lvalue(il.Var("C", 1)) ||
		m.Instructions[0].Operands[0] != il.Rvalue(il.Const(1)) {
		t.Errorf("semantics incorrect: %v", m.Instructions)
	}
}

// lds r16, $0100 is a two-word instruction.
func TestLds(t *testing.T) {
	// 1001 000 10000 0000, then $0100
	st := match(t, []byte{0x00, 0x91, 0x00, 0x01}, 0)

	m := st.Mnemonics[0]
	if m.Opcode != "lds" {
		t.Fatalf("opcode incorrect. exp: lds, got: %s", m.Opcode)
	}
	if m.Area != region.NewBound(0, 4) {
		t.Errorf("area incorrect: [%d,%d)", m.Area.Lower, m.Area.Upper)
	}
	if len(m.Instructions) != 1 {
		t.Fatalf("semantics incorrect: %v", m.Instructions)
	}
	mem, ok := m.Instructions[0].Operands[0].(il.Memory)
	if !ok || mem.Space != "sram" || mem.Offset != il.Rvalue(il.Const(0x100)) {
		t.Errorf("load source incorrect: %v", m.Instructions[0].Operands[0])
	}
}

// adiw r24, 1 encodes as 1001 0110 0000 0001.
func TestAdiw(t *testing.T) {
	st := match(t, []byte{0x01, 0x96}, 0)

	m := st.Mnemonics[0]
	if m.Opcode != "adiw" {
		t.Fatalf("opcode incorrect. exp: adiw, got: %s", m.Opcode)
	}
	if m.Operands[0] != il.Rvalue(il.Var("r24", 8)) || m.Operands[1] != il.Rvalue(il.Const(1)) {
		t.Errorf("operands incorrect: %v", m.Operands)
	}

	assigned := map[string]bool{}
	for _, i := range m.Instructions {
		if v, ok := i.Assignee.(il.Variable); ok {
			assigned[v.Name] = true
		}
	}
	for _, want := range []string{"r24", "r25", "Z", "C"} {
		if !assigned[want] {
			t.Errorf("%s not written by adiw", want)
		}
	}
}

// ldd r4, Y+2 encodes as 10 0 0 00 0 00100 1 010.
func TestLdd(t *testing.T) {
	st := match(t, []byte{0x4A, 0x80}, 0)

	m := st.Mnemonics[0]
	if m.Opcode != "ldd" {
		t.Fatalf("opcode incorrect. exp: ldd, got: %s", m.Opcode)
	}
	if m.Operands[0] != il.Rvalue(il.Var("r4", 8)) ||
		m.Operands[1] != il.Rvalue(il.Var("Y", 16)) ||
		m.Operands[2] != il.Rvalue(il.Const(2)) {
		t.Errorf("operands incorrect: %v", m.Operands)
	}
}

// ld r4, Y (the q=0 encoding) stays a plain ld.
func TestLdYZero(t *testing.T) {
	st := match(t, []byte{0x48, 0x80}, 0)
	if st.Mnemonics[0].Opcode != "ld" {
		t.Errorf("opcode incorrect. exp: ld, got: %s", st.Mnemonics[0].Opcode)
	}
}

// A flat image with a backward rjmp reconstructs into a looping
// program.
func TestDisassembleLoop(t *testing.T) {
	// 0: ldi r16, $10; 2: add r16, r17; 4: rjmp .-4 (back to 2)
	img := []byte{
		0x00, 0xE1, // ldi r16, $10
		0x01, 0x0F, // add r16, r17
		0xFE, 0xCF, // rjmp .-4
	}
	sl := region.SlabFromBytes(img)

	prog, err := Disassemble(Mega128(), nil, sl, region.Ref{Region: "flash", Offset: 0})
	if err != nil {
		t.Fatal(err)
	}
	if prog == nil {
		t.Fatal("no program recovered")
	}

	procs := prog.Procedures()
	if len(procs) != 1 {
		t.Fatalf("procedure count incorrect. exp: 1, got: %d", len(procs))
	}
	p := procs[0]

	bb, ok := p.EntryBlock()
	if !ok {
		t.Fatal("entry missing")
	}
	if bb.Area().Lower != 0 {
		t.Errorf("entry offset incorrect: %d", bb.Area().Lower)
	}

	// every block tiles the region without overlap
	for _, v := range p.Blocks() {
		a := p.CFG.Node(v).Block.Area()
		if a.Lower > a.Upper {
			t.Errorf("block area inverted: [%d,%d)", a.Lower, a.Upper)
		}
	}

	// the rjmp block loops back to the add block
	loop, ok := p.FindBlockStarting(2)
	if !ok {
		t.Fatal("loop body block missing")
	}
	found := false
	for _, e := range p.CFG.InEdges(loop) {
		src := p.CFG.Node(p.CFG.Source(e))
		if src.IsBlock() && src.Block.Area().Contains(4) {
			found = true
		}
	}
	if !found {
		t.Error("loop edge missing")
	}
}
