// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"encoding/json"
	"testing"

	"github.com/das-labor/panopticon/disasm"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/region"
)

// testDis decodes every byte as a one-byte instruction falling
// through to the next; $FF jumps back to offset 1, $C3 ends the path,
// $E0 branches to the byte it encodes plus fall-through.
func testDis() *disasm.Disassembler[uint8, struct{}] {
	d := disasm.New[uint8, struct{}]()

	d.Tok(0xFF).Do(func(st *disasm.State[uint8, struct{}]) {
		st.Mnemonic(1, "loop", "", nil, nil)
		st.JumpTo(1, il.True())
	})
	d.Tok(0xC3).Do(func(st *disasm.State[uint8, struct{}]) {
		st.Mnemonic(1, "end", "", nil, nil)
	})
	d.Tok(0xE0).Pat("k@........").Do(func(st *disasm.State[uint8, struct{}]) {
		st.Mnemonic(2, "br", "", nil, nil)
		g := il.If(il.Var("Z", 1), il.Eq, il.Const(1))
		st.JumpTo(region.Offset(st.Group("k")), g)
		st.JumpTo(st.Address+2, g.Negation())
	})
	d.Pat("0.......").Do(func(st *disasm.State[uint8, struct{}]) {
		st.Mnemonic(1, "i", "", nil, nil)
		st.JumpTo(st.Address+1, il.True())
	})

	return d
}

func disassemble(t *testing.T, bytes []byte, start region.Offset) *Procedure {
	t.Helper()
	sl := region.SlabFromBytes(bytes)
	p, err := Disassemble[uint8, struct{}](nil, testDis(), struct{}{}, &il.TempPool{Prefix: "t", Width: 8}, sl, start)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func blockAreas(p *Procedure) map[region.Offset]region.Bound {
	ret := map[region.Offset]region.Bound{}
	for _, v := range p.Blocks() {
		a := p.CFG.Node(v).Block.Area()
		ret[a.Lower] = a
	}
	return ret
}

func TestLinearRun(t *testing.T) {
	p := disassemble(t, []byte{0x01, 0x02, 0xC3}, 0)
	if p == nil {
		t.Fatal("no procedure recovered")
	}

	blocks := p.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("block count incorrect. exp: 1, got: %d", len(blocks))
	}
	bb := p.CFG.Node(blocks[0]).Block
	if bb.Area() != region.NewBound(0, 3) {
		t.Errorf("block area incorrect: [%d,%d)", bb.Area().Lower, bb.Area().Upper)
	}
	if p.Name != "proc_0" {
		t.Errorf("procedure name incorrect: %s", p.Name)
	}

	// consecutive mnemonics are address-adjacent
	ms := bb.Mnemonics()
	for i := 1; i < len(ms); i++ {
		if ms[i-1].Area.Upper != ms[i].Area.Lower {
			t.Errorf("mnemonics %d and %d not adjacent", i-1, i)
		}
	}
}

func TestLoopSplitsBlocks(t *testing.T) {
	p := disassemble(t, []byte{0x01, 0x02, 0xFF}, 0)
	if p == nil {
		t.Fatal("no procedure recovered")
	}

	areas := blockAreas(p)
	if len(areas) != 2 {
		t.Fatalf("block count incorrect. exp: 2, got: %d (%v)", len(areas), areas)
	}
	if areas[0] != region.NewBound(0, 1) {
		t.Errorf("first block area incorrect: %v", areas[0])
	}
	if areas[1] != region.NewBound(1, 3) {
		t.Errorf("second block area incorrect: %v", areas[1])
	}

	// the loop edge goes from the second block back to itself
	v1, ok := p.FindBlockStarting(1)
	if !ok {
		t.Fatal("block at 1 missing")
	}
	self := false
	for _, e := range p.CFG.OutEdges(v1) {
		if p.CFG.Target(e) == v1 {
			self = true
		}
	}
	if !self {
		t.Error("loop edge missing")
	}

	ent, ok := p.EntryBlock()
	if !ok || ent.Area().Lower != 0 {
		t.Error("entry incorrect")
	}
}

func TestBranchGuards(t *testing.T) {
	// 0: br 5; 2: i; 3: i; 4: end; 5: end
	p := disassemble(t, []byte{0xE0, 0x05, 0x01, 0x02, 0xC3, 0xC3}, 0)
	if p == nil {
		t.Fatal("no procedure recovered")
	}

	v0, ok := p.FindBlockStarting(0)
	if !ok {
		t.Fatal("entry block missing")
	}
	out := p.CFG.OutEdges(v0)
	if len(out) != 2 {
		t.Fatalf("branch out-degree incorrect. exp: 2, got: %d", len(out))
	}

	targets := map[region.Offset]il.Guard{}
	for _, e := range out {
		n := p.CFG.Node(p.CFG.Target(e))
		if !n.IsBlock() {
			t.Fatalf("branch target not a block: %v", n.Value)
		}
		targets[n.Block.Area().Lower] = p.CFG.Edge(e)
	}
	if _, ok := targets[5]; !ok {
		t.Error("taken edge missing")
	}
	if _, ok := targets[2]; !ok {
		t.Error("fall-through edge missing")
	}
	if targets[5].Always() || targets[2].Always() {
		t.Error("branch edges are unguarded")
	}
}

func TestSymbolicTarget(t *testing.T) {
	d := disasm.New[uint8, struct{}]()
	d.Tok(0x10).Do(func(st *disasm.State[uint8, struct{}]) {
		st.Mnemonic(1, "ijmp", "", nil, nil)
		st.Jump(il.Var("Z", 16), il.True())
	})

	sl := region.SlabFromBytes([]byte{0x10})
	p, err := Disassemble[uint8, struct{}](nil, d, struct{}{}, &il.TempPool{Prefix: "t", Width: 8}, sl, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("no procedure recovered")
	}

	var symbolic int
	for _, v := range p.CFG.Nodes() {
		n := p.CFG.Node(v)
		if !n.IsBlock() {
			symbolic++
			if n.Value != il.Rvalue(il.Var("Z", 16)) {
				t.Errorf("symbolic target incorrect: %v", n.Value)
			}
		}
	}
	if symbolic != 1 {
		t.Errorf("symbolic node count incorrect. exp: 1, got: %d", symbolic)
	}
}

func TestUndecodableDropped(t *testing.T) {
	// 0x80 matches nothing; decoding continues with what the entry
	// reaches
	d := disasm.New[uint8, struct{}]()
	d.Pat("0.......").Do(func(st *disasm.State[uint8, struct{}]) {
		st.Mnemonic(1, "i", "", nil, nil)
	})

	sl := region.SlabFromBytes([]byte{0x80})
	p, err := Disassemble[uint8, struct{}](nil, d, struct{}{}, &il.TempPool{Prefix: "t", Width: 8}, sl, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Errorf("procedure recovered from undecodable input")
	}
}

func TestSeedBeyondSlab(t *testing.T) {
	p := disassemble(t, []byte{0xC3}, 40)
	if p != nil {
		t.Error("procedure recovered from out-of-range seed")
	}
}

func TestExtendKeepsName(t *testing.T) {
	p := disassemble(t, []byte{0x01, 0xC3}, 0)
	if p == nil {
		t.Fatal("no procedure recovered")
	}
	p.Name = "main"

	sl := region.SlabFromBytes([]byte{0x01, 0xC3})
	q, err := Disassemble[uint8, struct{}](p, testDis(), struct{}{}, &il.TempPool{Prefix: "t", Width: 8}, sl, 0)
	if err != nil {
		t.Fatal(err)
	}
	if q == nil || q.Name != "main" {
		t.Errorf("extension lost the procedure name")
	}
}

func TestSplitAndMerge(t *testing.T) {
	p := disassemble(t, []byte{0x01, 0x02, 0xC3}, 0)
	v := p.Blocks()[0]

	up, down := p.Split(v, 1, false)
	un := p.CFG.Node(up).Block
	dn := p.CFG.Node(down).Block
	if un.Area() != region.NewBound(0, 1) || dn.Area() != region.NewBound(1, 3) {
		t.Fatalf("split areas incorrect: %v %v", un.Area(), dn.Area())
	}
	if len(p.CFG.OutEdges(up)) != 1 || p.CFG.Target(p.CFG.OutEdges(up)[0]) != down {
		t.Error("split halves not linked")
	}

	nv := p.Merge(up, down)
	if p.CFG.Node(nv).Block.Area() != region.NewBound(0, 3) {
		t.Error("merge area incorrect")
	}
	if len(p.Blocks()) != 1 {
		t.Errorf("block count after merge incorrect: %d", len(p.Blocks()))
	}
}

func TestProgramCalls(t *testing.T) {
	// 0: call 3 (0xE1 k encodes call k); 2: end; 3: end
	d := disasm.New[uint8, struct{}]()
	d.Tok(0xE1).Pat("k@........").Do(func(st *disasm.State[uint8, struct{}]) {
		target := st.Group("k")
		st.Mnemonic(2, "call", "", nil, func(m *il.CodeGen) {
			m.CallI(nil, il.Const(target))
		})
		st.JumpTo(st.Address+2, il.True())
	})
	d.Tok(0xC3).Do(func(st *disasm.State[uint8, struct{}]) {
		st.Mnemonic(1, "end", "", nil, nil)
	})

	sl := region.SlabFromBytes([]byte{0xE1, 0x03, 0xC3, 0xC3})
	prog, err := ExtendProgram[uint8, struct{}](nil, d, struct{}{}, &il.TempPool{Prefix: "t", Width: 8}, sl, "flash", 0)
	if err != nil {
		t.Fatal(err)
	}
	if prog == nil {
		t.Fatal("no program recovered")
	}

	procs := prog.Procedures()
	if len(procs) != 2 {
		t.Fatalf("procedure count incorrect. exp: 2, got: %d", len(procs))
	}

	caller, ok := prog.ByEntry(0)
	if !ok {
		t.Fatal("caller missing")
	}
	callee, ok := prog.ByEntry(3)
	if !ok {
		t.Fatal("callee missing")
	}
	calls := prog.CallsFrom(caller)
	if len(calls) != 1 || calls[0] != callee {
		t.Errorf("call edge incorrect: %v", calls)
	}
}

func TestProcedureMarshalRoundTrip(t *testing.T) {
	p := disassemble(t, []byte{0xE0, 0x05, 0x01, 0x02, 0xC3, 0xC3}, 0)

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var got Procedure
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}

	if got.Name != p.Name {
		t.Errorf("name changed: %s", got.Name)
	}
	if got.CFG.NumNodes() != p.CFG.NumNodes() || got.CFG.NumEdges() != p.CFG.NumEdges() {
		t.Errorf("graph shape changed: %d/%d vs %d/%d",
			got.CFG.NumNodes(), got.CFG.NumEdges(), p.CFG.NumNodes(), p.CFG.NumEdges())
	}

	a, aok := p.EntryBlock()
	b, bok := got.EntryBlock()
	if aok != bok || (aok && a.Area() != b.Area()) {
		t.Error("entry changed")
	}

	want := blockAreas(p)
	have := blockAreas(&got)
	for lo, area := range want {
		if have[lo] != area {
			t.Errorf("block %d area changed: exp %v, got %v", lo, area, have[lo])
		}
	}
}
