// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import "github.com/das-labor/panopticon/il"

// Concrete executes IL with two's-complement semantics on 64 bit
// unsigned integers. Undefined propagates through every operation,
// except where a constant operand absorbs: 0 for conjunction, non-zero
// for disjunction. This is not an abstract domain; the solver is not
// guaranteed to terminate over it.
type Concrete struct{}

// Overapproximate keeps constants and collapses everything else to
// undefined.
func (Concrete) Overapproximate(v il.Rvalue) il.Rvalue {
	if c, ok := v.(il.Constant); ok {
		return c
	}
	return il.Undefined{}
}

// Supremum joins two concrete values: equal values survive, anything
// else is undefined.
func (Concrete) Supremum(a, b il.Rvalue) il.Rvalue {
	if a == b {
		return a
	}
	return il.Undefined{}
}

// Equal compares two concrete values structurally.
func (Concrete) Equal(a, b il.Rvalue) bool { return a == b }

func constOf(v il.Rvalue) (uint64, bool) {
	c, ok := v.(il.Constant)
	return c.Value, ok
}

func boolConst(b bool) il.Rvalue {
	if b {
		return il.Const(1)
	}
	return il.Const(0)
}

// Execute applies op to concrete operands.
func (d Concrete) Execute(op il.Opcode, ops []il.Rvalue) il.Rvalue {
	bin := func(fn func(a, b uint64) (uint64, bool)) il.Rvalue {
		if len(ops) != 2 {
			return il.Undefined{}
		}
		a, aok := constOf(ops[0])
		b, bok := constOf(ops[1])
		if !aok || !bok {
			return il.Undefined{}
		}
		if r, ok := fn(a, b); ok {
			return il.Const(r)
		}
		return il.Undefined{}
	}

	switch op {
	case il.LogicAnd:
		return d.shortCircuit(ops, false)
	case il.LogicOr:
		return d.shortCircuit(ops, true)
	case il.LogicNeg:
		if len(ops) == 1 {
			if a, ok := constOf(ops[0]); ok {
				return boolConst(a == 0)
			}
		}
		return il.Undefined{}
	case il.LogicImpl:
		// a → b ≡ ¬a ∨ b
		if len(ops) == 2 {
			na := d.Execute(il.LogicNeg, ops[:1])
			return d.shortCircuit([]il.Rvalue{na, ops[1]}, true)
		}
		return il.Undefined{}
	case il.LogicEquiv:
		return bin(func(a, b uint64) (uint64, bool) {
			if (a != 0) == (b != 0) {
				return 1, true
			}
			return 0, true
		})
	case il.LogicLift:
		if len(ops) == 1 {
			if a, ok := constOf(ops[0]); ok {
				return il.Const(a)
			}
		}
		return il.Undefined{}
	case il.LogicRshift, il.IntRshift:
		return bin(func(a, b uint64) (uint64, bool) {
			if b > 63 {
				return 0, true
			}
			return a >> b, true
		})
	case il.LogicLshift, il.IntLshift:
		return bin(func(a, b uint64) (uint64, bool) {
			if b > 63 {
				return 0, true
			}
			return a << b, true
		})
	case il.IntAdd:
		return bin(func(a, b uint64) (uint64, bool) { return a + b, true })
	case il.IntSub:
		return bin(func(a, b uint64) (uint64, bool) { return a - b, true })
	case il.IntMul:
		return bin(func(a, b uint64) (uint64, bool) { return a * b, true })
	case il.IntDiv:
		return bin(func(a, b uint64) (uint64, bool) {
			if b == 0 {
				return 0, false
			}
			return a / b, true
		})
	case il.IntMod:
		return bin(func(a, b uint64) (uint64, bool) {
			if b == 0 {
				return 0, false
			}
			return a % b, true
		})
	case il.IntAnd:
		return bin(func(a, b uint64) (uint64, bool) { return a & b, true })
	case il.IntOr:
		return bin(func(a, b uint64) (uint64, bool) { return a | b, true })
	case il.IntXor:
		return bin(func(a, b uint64) (uint64, bool) { return a ^ b, true })
	case il.IntLess:
		return bin(func(a, b uint64) (uint64, bool) {
			if a < b {
				return 1, true
			}
			return 0, true
		})
	case il.IntEqual:
		return bin(func(a, b uint64) (uint64, bool) {
			if a == b {
				return 1, true
			}
			return 0, true
		})
	case il.IntCall:
		return il.Undefined{}
	case il.UnivNop:
		if len(ops) == 1 {
			return ops[0]
		}
		return il.Undefined{}
	case il.UnivPhi:
		var acc il.Rvalue = il.Undefined{}
		first := true
		for _, v := range ops {
			if first {
				acc = v
				first = false
			} else {
				acc = d.Supremum(acc, v)
			}
		}
		return acc
	default:
		return il.Undefined{}
	}
}

// shortCircuit evaluates conjunction (absorb false) or disjunction
// (absorb true) over possibly undefined operands.
func (Concrete) shortCircuit(ops []il.Rvalue, disjunction bool) il.Rvalue {
	if len(ops) != 2 {
		return il.Undefined{}
	}
	a, aok := constOf(ops[0])
	b, bok := constOf(ops[1])

	switch {
	case aok && bok:
		if disjunction {
			return boolConst(a != 0 || b != 0)
		}
		return boolConst(a != 0 && b != 0)
	case aok:
		if disjunction == (a != 0) {
			return boolConst(disjunction)
		}
		return il.Undefined{}
	case bok:
		if disjunction == (b != 0) {
			return boolConst(disjunction)
		}
		return il.Undefined{}
	default:
		return il.Undefined{}
	}
}
