// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package il

import (
	"fmt"
	"strings"
)

// RelCode is a two-operand relation between rvalues.
type RelCode int

const (
	ULeq RelCode = iota // unsigned ≤
	SLeq                // signed ≤
	UGeq                // unsigned ≥
	SGeq                // signed ≥
	ULess               // unsigned <
	SLess               // signed <
	UGrtr               // unsigned >
	SGrtr               // signed >
	Eq
	Neq
)

var relNames = map[RelCode]string{
	ULeq: "≤ᵤ", SLeq: "≤ₛ", UGeq: "≥ᵤ", SGeq: "≥ₛ",
	ULess: "<ᵤ", SLess: "<ₛ", UGrtr: ">ᵤ", SGrtr: ">ₛ",
	Eq: "=", Neq: "≠",
}

func (c RelCode) String() string { return relNames[c] }

// negated maps every relation to its complement.
var negated = map[RelCode]RelCode{
	ULeq: UGrtr, SLeq: SGrtr, UGeq: ULess, SGeq: SLess,
	ULess: UGeq, SLess: SGeq, UGrtr: ULeq, SGrtr: SLeq,
	Eq: Neq, Neq: Eq,
}

// A Relation relates two rvalues.
type Relation struct {
	Code RelCode
	A, B Rvalue
}

func (r Relation) String() string {
	return fmt.Sprintf("%s %s %s", r.A, r.Code, r.B)
}

// A Guard is a conjunction of relations attached to a control-transfer
// edge. The empty conjunction is always true.
type Guard struct {
	Relations []Relation
}

// True returns the always-true guard.
func True() Guard { return Guard{} }

// If returns a single-relation guard.
func If(a Rvalue, c RelCode, b Rvalue) Guard {
	return Guard{Relations: []Relation{{Code: c, A: a, B: b}}}
}

// Negation returns the guard with every relation complemented.
func (g Guard) Negation() Guard {
	rels := make([]Relation, len(g.Relations))
	for i, r := range g.Relations {
		rels[i] = Relation{Code: negated[r.Code], A: r.A, B: r.B}
	}
	return Guard{Relations: rels}
}

// Always reports whether the guard is the empty, always-true
// conjunction.
func (g Guard) Always() bool { return len(g.Relations) == 0 }

func (g Guard) String() string {
	if g.Always() {
		return "true"
	}
	parts := make([]string, len(g.Relations))
	for i, r := range g.Relations {
		parts[i] = r.String()
	}
	return strings.Join(parts, " ∧ ")
}

// Equal reports structural equality.
func (g Guard) Equal(o Guard) bool {
	if len(g.Relations) != len(o.Relations) {
		return false
	}
	for i := range g.Relations {
		if g.Relations[i] != o.Relations[i] {
			return false
		}
	}
	return true
}
