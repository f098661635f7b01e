// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package il

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrIllFormed is returned when the code generator rejects an
// instruction that violates an IL invariant.
var ErrIllFormed = errors.New("ill-formed IL")

// A TempPool allocates architecture-scoped temporary variables.
type TempPool struct {
	Prefix string
	Width  uint16
	next   int
}

// New returns a fresh unversioned temporary.
func (p *TempPool) New() Variable {
	v := Var(fmt.Sprintf("%s%d", p.Prefix, p.next), p.Width)
	p.next++
	return v
}

// CheckValue verifies the invariants the code generator demands of
// emitted values: variables carry a name, a width in 1…64 and no SSA
// subscript yet; memory references carry a space, a byte count, a
// known byte order and an offset that is not the reference itself.
func CheckValue(v Rvalue) error {
	switch x := v.(type) {
	case Constant, Undefined:
		return nil
	case Variable:
		if x.Name == "" {
			return errors.Wrap(ErrIllFormed, "variable with empty name")
		}
		if x.Subscript != -1 {
			return errors.Wrapf(ErrIllFormed, "variable %s already subscripted", x.Name)
		}
		if x.Width == 0 || x.Width > 64 {
			return errors.Wrapf(ErrIllFormed, "variable %s has width %d", x.Name, x.Width)
		}
		return nil
	case Memory:
		if x.Space == "" {
			return errors.Wrap(ErrIllFormed, "memory reference with empty space")
		}
		if x.Bytes == 0 {
			return errors.Wrap(ErrIllFormed, "memory reference of zero bytes")
		}
		if x.Endian != LittleEndian && x.Endian != BigEndian {
			return errors.Wrap(ErrIllFormed, "memory reference with unknown byte order")
		}
		if x.Offset == Rvalue(x) {
			return errors.Wrap(ErrIllFormed, "memory reference offset refers to itself")
		}
		return CheckValue(x.Offset)
	default:
		return errors.Wrap(ErrIllFormed, "unknown value variant")
	}
}

// A CodeGen emits IL instructions into an instruction list, checking
// each one. Passing a nil assignee to any method allocates a fresh
// temporary and returns it; the first violation is kept in Err and
// later emissions become no-ops.
type CodeGen struct {
	out   *[]Instr
	temps *TempPool
	err   error
}

// NewCodeGen returns a generator appending to out, drawing temporaries
// from temps.
func NewCodeGen(out *[]Instr, temps *TempPool) *CodeGen {
	return &CodeGen{out: out, temps: temps}
}

// Err returns the first invariant violation, if any.
func (cg *CodeGen) Err() error { return cg.err }

func (cg *CodeGen) emit(op Opcode, dst Lvalue, args ...Rvalue) Lvalue {
	if dst == nil {
		dst = cg.temps.New()
	}
	if cg.err != nil {
		return dst
	}
	for _, a := range args {
		if err := CheckValue(a); err != nil {
			cg.err = err
			return dst
		}
	}
	if err := CheckValue(dst); err != nil {
		cg.err = err
		return dst
	}
	*cg.out = append(*cg.out, NewInstr(op, dst, args...))
	return dst
}

// Assign emits dst ≔ v.
func (cg *CodeGen) Assign(dst Lvalue, v Rvalue) Lvalue { return cg.emit(UnivNop, dst, v) }

// AndB emits dst ≔ a ∧ b.
func (cg *CodeGen) AndB(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(LogicAnd, dst, a, b) }

// OrB emits dst ≔ a ∨ b.
func (cg *CodeGen) OrB(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(LogicOr, dst, a, b) }

// NotB emits dst ≔ ¬a.
func (cg *CodeGen) NotB(dst Lvalue, a Rvalue) Lvalue { return cg.emit(LogicNeg, dst, a) }

// ImplB emits dst ≔ a → b.
func (cg *CodeGen) ImplB(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(LogicImpl, dst, a, b) }

// EquivB emits dst ≔ a ↔ b.
func (cg *CodeGen) EquivB(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(LogicEquiv, dst, a, b) }

// LiftB emits dst ≔ (int)a.
func (cg *CodeGen) LiftB(dst Lvalue, a Rvalue) Lvalue { return cg.emit(LogicLift, dst, a) }

// RshiftB emits dst ≔ a ≫ b over booleans.
func (cg *CodeGen) RshiftB(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(LogicRshift, dst, a, b) }

// LshiftB emits dst ≔ a ≪ b over booleans.
func (cg *CodeGen) LshiftB(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(LogicLshift, dst, a, b) }

// AddI emits dst ≔ a + b.
func (cg *CodeGen) AddI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntAdd, dst, a, b) }

// SubI emits dst ≔ a - b.
func (cg *CodeGen) SubI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntSub, dst, a, b) }

// MulI emits dst ≔ a * b.
func (cg *CodeGen) MulI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntMul, dst, a, b) }

// DivI emits dst ≔ a div b.
func (cg *CodeGen) DivI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntDiv, dst, a, b) }

// ModI emits dst ≔ a mod b.
func (cg *CodeGen) ModI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntMod, dst, a, b) }

// AndI emits dst ≔ a & b.
func (cg *CodeGen) AndI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntAnd, dst, a, b) }

// OrI emits dst ≔ a | b.
func (cg *CodeGen) OrI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntOr, dst, a, b) }

// XorI emits dst ≔ a ⊕ b.
func (cg *CodeGen) XorI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntXor, dst, a, b) }

// RshiftI emits dst ≔ a ≫ b.
func (cg *CodeGen) RshiftI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntRshift, dst, a, b) }

// LshiftI emits dst ≔ a ≪ b.
func (cg *CodeGen) LshiftI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntLshift, dst, a, b) }

// LessI emits dst ≔ a < b.
func (cg *CodeGen) LessI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntLess, dst, a, b) }

// EqualI emits dst ≔ a = b.
func (cg *CodeGen) EqualI(dst Lvalue, a, b Rvalue) Lvalue { return cg.emit(IntEqual, dst, a, b) }

// CallI emits dst ≔ call(a).
func (cg *CodeGen) CallI(dst Lvalue, a Rvalue) Lvalue { return cg.emit(IntCall, dst, a) }
