// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package il

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/region"
)

func TestValueEquality(t *testing.T) {
	if Const(1) != Const(1) {
		t.Error("equal constants not equal")
	}
	if Const(1) == Const(2) {
		t.Error("different constants equal")
	}
	if Var("a", 8) != Var("a", 8) {
		t.Error("equal variables not equal")
	}
	if Var("a", 8) == Subscripted("a", 8, 0) {
		t.Error("variables with different subscripts equal")
	}

	m1 := Mem(Const(4), 1, LittleEndian, "ram")
	m2 := Mem(Const(4), 1, LittleEndian, "ram")
	if Rvalue(m1) != Rvalue(m2) {
		t.Error("equal memory references not equal")
	}
}

func TestValueOrdering(t *testing.T) {
	vals := []Rvalue{
		Undefined{},
		Const(1),
		Const(2),
		Var("a", 8),
		Var("b", 8),
		Mem(Const(0), 1, LittleEndian, "ram"),
	}
	for i := range vals {
		for k := range vals {
			c := Compare(vals[i], vals[k])
			switch {
			case i == k && c != 0:
				t.Errorf("Compare(%v, %v) = %d, exp: 0", vals[i], vals[k], c)
			case i < k && c >= 0:
				t.Errorf("Compare(%v, %v) = %d, exp: < 0", vals[i], vals[k], c)
			case i > k && c <= 0:
				t.Errorf("Compare(%v, %v) = %d, exp: > 0", vals[i], vals[k], c)
			}
		}
	}
}

func TestCheckValue(t *testing.T) {
	bad := []Rvalue{
		Var("", 8),
		Var("a", 0),
		Var("a", 65),
		Subscripted("a", 8, 0),
		Mem(Const(0), 0, LittleEndian, "ram"),
		Mem(Const(0), 1, 0, "ram"),
		Mem(Const(0), 1, LittleEndian, ""),
	}
	for _, v := range bad {
		if err := CheckValue(v); errors.Cause(err) != ErrIllFormed {
			t.Errorf("CheckValue(%v) = %v, exp: ill-formed", v, err)
		}
	}

	good := []Rvalue{
		Const(42),
		Undefined{},
		Var("a", 64),
		Mem(Var("p", 16), 2, BigEndian, "sram"),
	}
	for _, v := range good {
		if err := CheckValue(v); err != nil {
			t.Errorf("CheckValue(%v) = %v, exp: nil", v, err)
		}
	}
}

func TestCodeGen(t *testing.T) {
	var out []Instr
	temps := &TempPool{Prefix: "t", Width: 16}
	cg := NewCodeGen(&out, temps)

	a := Var("a", 8)
	tmp := cg.AddI(nil, a, Const(1))
	cg.Assign(a, tmp)

	if cg.Err() != nil {
		t.Fatalf("codegen failed: %v", cg.Err())
	}
	if len(out) != 2 {
		t.Fatalf("instruction count incorrect. exp: 2, got: %d", len(out))
	}
	if out[0].Op != IntAdd || out[1].Op != UnivNop {
		t.Errorf("opcodes incorrect: %v, %v", out[0].Op, out[1].Op)
	}
	if tv, ok := tmp.(Variable); !ok || tv.Name != "t0" || tv.Width != 16 {
		t.Errorf("temporary incorrect: %v", tmp)
	}
}

func TestCodeGenRejectsIllFormed(t *testing.T) {
	var out []Instr
	cg := NewCodeGen(&out, &TempPool{Prefix: "t", Width: 16})

	cg.Assign(Var("", 8), Const(1))
	if errors.Cause(cg.Err()) != ErrIllFormed {
		t.Fatalf("expected ill-formed error, got: %v", cg.Err())
	}
	if len(out) != 0 {
		t.Errorf("ill-formed instruction emitted")
	}

	// the generator stays failed
	cg.Assign(Var("ok", 8), Const(1))
	if len(out) != 0 {
		t.Errorf("emission after failure")
	}
}

func TestGuardNegation(t *testing.T) {
	g := If(Var("a", 8), ULess, Const(10))
	n := g.Negation()
	if len(n.Relations) != 1 || n.Relations[0].Code != UGeq {
		t.Errorf("negation incorrect: %v", n)
	}
	if nn := n.Negation(); !nn.Equal(g) {
		t.Errorf("double negation not identity: %v", nn)
	}
	if !True().Negation().Always() {
		t.Errorf("negated empty guard not always-true")
	}
}

func TestFormatParsing(t *testing.T) {
	m, err := NewMnemonic(region.NewBound(0, 1), "mov", "{8:-:eax}, {8}", []Rvalue{Var("eax", 32), Const(0xff)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Format) != 3 {
		t.Fatalf("token count incorrect. exp: 3, got: %d", len(m.Format))
	}
	if m.Format[0].Alias != "eax" || !m.Format[0].Signed || m.Format[0].Width != 8 {
		t.Errorf("first token incorrect: %+v", m.Format[0])
	}
	if !m.Format[1].Literal || m.Format[1].Alias != ", " {
		t.Errorf("literal token incorrect: %+v", m.Format[1])
	}
	if got := m.FormatOperands(); got != "eax, 255" {
		t.Errorf("rendering incorrect. exp: %q, got: %q", "eax, 255", got)
	}
}

// An unknown modifier character starts the alias.
func TestFormatUnknownModifier(t *testing.T) {
	m, err := NewMnemonic(region.NewBound(0, 1), "x", "{8:xyz}", []Rvalue{Const(1)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.Format[0].Alias != "xyz" || m.Format[0].Signed {
		t.Errorf("unknown modifier not treated as alias: %+v", m.Format[0])
	}
}

func TestFormatSigned(t *testing.T) {
	tok := FormatToken{Width: 8, Signed: true}
	if got := FormatConstant(tok, 0xff); got != -1 {
		t.Errorf("signed rendering incorrect. exp: -1, got: %d", got)
	}
	tok.Signed = false
	if got := FormatConstant(tok, 0xff); got != 255 {
		t.Errorf("unsigned rendering incorrect. exp: 255, got: %d", got)
	}
}

func TestFormatErrors(t *testing.T) {
	if _, err := NewMnemonic(region.NewBound(0, 1), "x", "{}", nil, nil); err == nil {
		t.Error("empty field accepted")
	}
	if _, err := NewMnemonic(region.NewBound(0, 1), "x", "{8", nil, nil); err == nil {
		t.Error("unterminated field accepted")
	}
	if _, err := NewMnemonic(region.NewBound(0, 1), "x", "{8}", nil, nil); err == nil {
		t.Error("field without operand accepted")
	}
}

func TestValueMarshalRoundTrip(t *testing.T) {
	vals := []Rvalue{
		Const(0xdeadbeef),
		Undefined{},
		Subscripted("eax", 32, 4),
		Mem(Var("p", 64), 8, BigEndian, "ram"),
		Mem(Mem(Const(1), 1, LittleEndian, "a"), 2, LittleEndian, "b"),
	}
	for _, v := range vals {
		data, err := MarshalValue(v)
		if err != nil {
			t.Fatalf("marshal %v: %v", v, err)
		}
		got, err := UnmarshalValue(data)
		if err != nil {
			t.Fatalf("unmarshal %v: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip changed value. exp: %v, got: %v", v, got)
		}
	}
}

func TestInstrMarshalRoundTrip(t *testing.T) {
	in := NewInstr(IntAdd, Var("a", 8), Var("b", 8), Const(1))
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var got Instr
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(in) {
		t.Errorf("round trip changed instruction. exp: %v, got: %v", in, got)
	}
}

func TestMnemonicMarshalRoundTrip(t *testing.T) {
	m, err := NewMnemonic(region.NewBound(4, 6), "add", "{8}, {8}",
		[]Rvalue{Var("r16", 8), Var("r17", 8)},
		[]Instr{NewInstr(IntAdd, Var("r16", 8), Var("r16", 8), Var("r17", 8))})
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var got Mnemonic
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(m) {
		t.Errorf("round trip changed mnemonic. exp: %v, got: %v", m, got)
	}
}

func TestGuardMarshalRoundTrip(t *testing.T) {
	g := If(Var("ZF", 1), Eq, Const(1))
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	var got Guard
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(g) {
		t.Errorf("round trip changed guard. exp: %v, got: %v", g, got)
	}
}
