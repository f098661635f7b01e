// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"testing"

	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/proc"
	"github.com/das-labor/panopticon/region"
)

func mne(t *testing.T, lo, hi region.Offset, name string, instrs ...il.Instr) il.Mnemonic {
	t.Helper()
	m, err := il.NewMnemonic(region.NewBound(lo, hi), name, "", nil, instrs)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestKSetJoin(t *testing.T) {
	d := NewKSet(2)

	if got := d.Supremum(Set(1, 2), Set(3)); got.Kind != KSetTop {
		t.Errorf("join({1,2},{3}) incorrect. exp: ⊤, got: %v", got)
	}
	if got := d.Supremum(Set(1, 2), Set(1, 2)); !d.Equal(got, Set(1, 2)) {
		t.Errorf("join({1,2},{1,2}) incorrect. exp: {1,2}, got: %v", got)
	}
	if got := d.Supremum(Bottom(), Set(7)); !d.Equal(got, Set(7)) {
		t.Errorf("join(⊥, x) incorrect. exp: {7}, got: %v", got)
	}
	if got := d.Supremum(Set(7), Bottom()); !d.Equal(got, Set(7)) {
		t.Errorf("join(x, ⊥) incorrect. exp: {7}, got: %v", got)
	}
	if got := d.Supremum(Top(), Set(7)); got.Kind != KSetTop {
		t.Errorf("join(⊤, x) incorrect. exp: ⊤, got: %v", got)
	}
}

// The join of any domain is idempotent, commutative and associative.
func TestKSetJoinLaws(t *testing.T) {
	d := NewKSet(2)
	samples := []KSetValue{Bottom(), Top(), Set(1), Set(2), Set(1, 2), Set(3, 4)}

	for _, a := range samples {
		if !d.Equal(d.Supremum(a, a), a) {
			t.Errorf("join not idempotent for %v", a)
		}
		for _, b := range samples {
			if !d.Equal(d.Supremum(a, b), d.Supremum(b, a)) {
				t.Errorf("join not commutative for %v, %v", a, b)
			}
			for _, c := range samples {
				l := d.Supremum(d.Supremum(a, b), c)
				r := d.Supremum(a, d.Supremum(b, c))
				if !d.Equal(l, r) {
					t.Errorf("join not associative for %v, %v, %v", a, b, c)
				}
			}
		}
	}
}

func TestKSetPointwise(t *testing.T) {
	d := NewKSet(2)

	got := d.Execute(il.IntAdd, []KSetValue{Set(1, 2), Set(10)})
	if !d.Equal(got, Set(11, 12)) {
		t.Errorf("pointwise add incorrect. exp: {11,12}, got: %v", got)
	}

	// more than k results collapse to ⊤
	got = d.Execute(il.IntAdd, []KSetValue{Set(1, 2), Set(10, 20)})
	if got.Kind != KSetTop {
		t.Errorf("overflowing add incorrect. exp: ⊤, got: %v", got)
	}

	if got := d.Execute(il.IntAdd, []KSetValue{Top(), Set(1)}); got.Kind != KSetTop {
		t.Errorf("⊤ not absorbing: %v", got)
	}
	if got := d.Execute(il.IntAdd, []KSetValue{Bottom(), Set(1)}); got.Kind != KSetBottom {
		t.Errorf("⊥ not propagating: %v", got)
	}
}

func TestKSetOverapproximate(t *testing.T) {
	d := NewKSet(2)
	if got := d.Overapproximate(il.Const(5)); !d.Equal(got, Set(5)) {
		t.Errorf("constant lift incorrect: %v", got)
	}
	if got := d.Overapproximate(il.Undefined{}); got.Kind != KSetTop {
		t.Errorf("undefined lift incorrect: %v", got)
	}
	if got := d.Overapproximate(il.Var("x", 8)); got.Kind != KSetBottom {
		t.Errorf("variable lift incorrect: %v", got)
	}
}

func TestConcreteArithmetic(t *testing.T) {
	d := Concrete{}

	cases := []struct {
		op   il.Opcode
		a, b uint64
		want uint64
	}{
		{il.IntAdd, 3, 4, 7},
		{il.IntSub, 3, 4, ^uint64(0)},
		{il.IntMul, 5, 5, 25},
		{il.IntDiv, 7, 2, 3},
		{il.IntMod, 7, 2, 1},
		{il.IntAnd, 6, 3, 2},
		{il.IntOr, 6, 3, 7},
		{il.IntXor, 6, 3, 5},
		{il.IntLess, 1, 2, 1},
		{il.IntLess, 2, 1, 0},
		{il.IntEqual, 4, 4, 1},
		{il.IntRshift, 8, 2, 2},
		{il.IntLshift, 1, 3, 8},
	}
	for _, c := range cases {
		got := d.Execute(c.op, []il.Rvalue{il.Const(c.a), il.Const(c.b)})
		if got != il.Rvalue(il.Const(c.want)) {
			t.Errorf("%v(%d, %d) incorrect. exp: %d, got: %v", c.op, c.a, c.b, c.want, got)
		}
	}

	if got := d.Execute(il.IntDiv, []il.Rvalue{il.Const(1), il.Const(0)}); got != il.Rvalue(il.Undefined{}) {
		t.Errorf("division by zero incorrect: %v", got)
	}
	if got := d.Execute(il.IntAdd, []il.Rvalue{il.Undefined{}, il.Const(1)}); got != il.Rvalue(il.Undefined{}) {
		t.Errorf("undefined does not propagate: %v", got)
	}
}

// Undefined short-circuit operands resolve only against an absorbing
// constant.
func TestConcreteShortCircuit(t *testing.T) {
	d := Concrete{}
	undef := il.Rvalue(il.Undefined{})

	if got := d.Execute(il.LogicAnd, []il.Rvalue{undef, il.Const(0)}); got != il.Rvalue(il.Const(0)) {
		t.Errorf("undef ∧ 0 incorrect: %v", got)
	}
	if got := d.Execute(il.LogicAnd, []il.Rvalue{undef, il.Const(1)}); got != undef {
		t.Errorf("undef ∧ 1 incorrect: %v", got)
	}
	if got := d.Execute(il.LogicOr, []il.Rvalue{undef, il.Const(1)}); got != il.Rvalue(il.Const(1)) {
		t.Errorf("undef ∨ 1 incorrect: %v", got)
	}
	if got := d.Execute(il.LogicOr, []il.Rvalue{undef, il.Const(0)}); got != undef {
		t.Errorf("undef ∨ 0 incorrect: %v", got)
	}
}

// Solving a straight-line procedure under the k-set domain maps every
// variable to its set of possible constants.
func TestSolver(t *testing.T) {
	p := proc.NewProcedure("p")

	a := il.Subscripted("a", 8, 0)
	b := il.Subscripted("b", 8, 0)

	v := p.AddBlock(proc.NewBasicBlock(
		mne(t, 0, 1, "m0",
			il.NewInstr(il.UnivNop, a, il.Const(2)),
			il.NewInstr(il.IntAdd, b, a, il.Const(3)),
		),
	))
	p.SetEntry(v)

	env := Interpret[KSetValue](p, NewKSet(2))

	d := NewKSet(2)
	if got := env[a]; !d.Equal(got, Set(2)) {
		t.Errorf("a incorrect. exp: {2}, got: %v", got)
	}
	if got := env[b]; !d.Equal(got, Set(5)) {
		t.Errorf("b incorrect. exp: {5}, got: %v", got)
	}
}

// A diamond whose arms assign different constants joins both at the
// φ.
func TestSolverJoin(t *testing.T) {
	p := proc.NewProcedure("p")

	x1 := il.Subscripted("x", 8, 1)
	x2 := il.Subscripted("x", 8, 2)
	x3 := il.Subscripted("x", 8, 3)

	top := p.AddBlock(proc.NewBasicBlock(mne(t, 0, 1, "m0")))
	left := p.AddBlock(proc.NewBasicBlock(
		mne(t, 1, 2, "m1", il.NewInstr(il.UnivNop, x1, il.Const(1)))))
	right := p.AddBlock(proc.NewBasicBlock(
		mne(t, 2, 3, "m2", il.NewInstr(il.UnivNop, x2, il.Const(9)))))

	phi := il.NewInstr(il.UnivPhi, x3, x1, x2)
	join := proc.NewBasicBlock(il.Phis(3, []il.Instr{phi}), mne(t, 3, 4, "m3"))
	jv := p.AddBlock(join)

	p.Link(top, left, il.True())
	p.Link(top, right, il.True())
	p.Link(left, jv, il.True())
	p.Link(right, jv, il.True())
	p.SetEntry(top)

	env := Interpret[KSetValue](p, NewKSet(2))

	d := NewKSet(2)
	if got := env[x3]; !d.Equal(got, Set(1, 9)) {
		t.Errorf("φ join incorrect. exp: {1,9}, got: %v", got)
	}
}

func TestSolverCancel(t *testing.T) {
	p := proc.NewProcedure("p")
	v := p.AddBlock(proc.NewBasicBlock(
		mne(t, 0, 1, "m0", il.NewInstr(il.UnivNop, il.Subscripted("a", 8, 0), il.Const(1)))))
	p.SetEntry(v)

	s := Solver[KSetValue]{Domain: NewKSet(2), Cancel: func() bool { return true }}
	env := s.Run(p)
	if len(env) != 0 {
		t.Errorf("cancelled solver still produced %d values", len(env))
	}
}
