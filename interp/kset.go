// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/das-labor/panopticon/il"
)

// KSetKind tags the three shapes of a k-set lattice element.
type KSetKind int

const (
	KSetBottom KSetKind = iota // ⊥: nothing known yet
	KSetSet                    // up to k concrete values
	KSetTop                    // ⊤: any value
)

// A KSetValue is an element of the k-set lattice: ⊥, a set of at most
// k constants, or ⊤.
type KSetValue struct {
	Kind  KSetKind
	Elems []uint64 // sorted, deduplicated
}

// Bottom is the empty k-set element.
func Bottom() KSetValue { return KSetValue{Kind: KSetBottom} }

// Top is the absorbing k-set element.
func Top() KSetValue { return KSetValue{Kind: KSetTop} }

// Set returns the element holding exactly the given constants.
func Set(vals ...uint64) KSetValue {
	return KSetValue{Kind: KSetSet, Elems: normalize(vals)}
}

func normalize(vals []uint64) []uint64 {
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	out := vals[:0]
	for i, v := range vals {
		if i == 0 || v != vals[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func (v KSetValue) String() string {
	switch v.Kind {
	case KSetBottom:
		return "⊥"
	case KSetTop:
		return "⊤"
	default:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = fmt.Sprintf("0x%x", e)
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
}

// KSet is the k-set domain: sets of up to K constants, collapsing to ⊤
// beyond the bound. Operations are computed pointwise under the
// concrete interpreter.
type KSet struct {
	K    int
	conc Concrete
}

// NewKSet returns the domain with bound k.
func NewKSet(k int) KSet { return KSet{K: k} }

func (d KSet) cap(v KSetValue) KSetValue {
	if v.Kind == KSetSet && len(v.Elems) > d.K {
		return Top()
	}
	return v
}

// Overapproximate lifts constants to singleton sets, undefined to ⊤
// and unknown variables or memory to ⊥.
func (d KSet) Overapproximate(v il.Rvalue) KSetValue {
	switch x := v.(type) {
	case il.Constant:
		return d.cap(Set(x.Value))
	case il.Undefined:
		return Top()
	default:
		return Bottom()
	}
}

// Supremum joins two elements: ⊥ is the identity, ⊤ absorbs, set
// union collapses to ⊤ past the bound.
func (d KSet) Supremum(a, b KSetValue) KSetValue {
	switch {
	case a.Kind == KSetBottom:
		return b
	case b.Kind == KSetBottom:
		return a
	case a.Kind == KSetTop || b.Kind == KSetTop:
		return Top()
	default:
		return d.cap(Set(append(append([]uint64(nil), a.Elems...), b.Elems...)...))
	}
}

// Equal compares two elements.
func (KSet) Equal(a, b KSetValue) bool {
	if a.Kind != b.Kind || len(a.Elems) != len(b.Elems) {
		return false
	}
	for i := range a.Elems {
		if a.Elems[i] != b.Elems[i] {
			return false
		}
	}
	return true
}

// Execute computes op pointwise over the operand sets.
func (d KSet) Execute(op il.Opcode, ops []KSetValue) KSetValue {
	if op == il.UnivPhi {
		acc := Bottom()
		for _, v := range ops {
			acc = d.Supremum(acc, v)
		}
		return acc
	}

	for _, v := range ops {
		if v.Kind == KSetTop {
			return Top()
		}
	}
	for _, v := range ops {
		if v.Kind == KSetBottom {
			return Bottom()
		}
	}

	switch len(ops) {
	case 1:
		var out []uint64
		for _, a := range ops[0].Elems {
			if r, ok := constOf(d.conc.Execute(op, []il.Rvalue{il.Const(a)})); ok {
				out = append(out, r)
			}
		}
		return d.cap(Set(out...))
	case 2:
		var out []uint64
		for _, a := range ops[0].Elems {
			for _, b := range ops[1].Elems {
				if r, ok := constOf(d.conc.Execute(op, []il.Rvalue{il.Const(a), il.Const(b)})); ok {
					out = append(out, r)
				}
			}
		}
		return d.cap(Set(out...))
	default:
		return Top()
	}
}
