// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm

import (
	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/region"
)

// ErrMatchFailed is returned when no rule matches at an offset.
var ErrMatchFailed = errors.New("no rule matched")

type ruleKind int

const (
	rulePattern ruleKind = iota
	ruleConjunction
	ruleAction
	ruleSub
)

// A rule is one node of a rule tree: a token pattern, a sequential
// conjunction of two rules, a semantic action, or a nested
// disassembler tried as an alternative set.
type rule[T Token, S any] struct {
	kind ruleKind

	pat           Pattern[T]          // rulePattern
	first, second *rule[T, S]         // ruleConjunction
	act           func(*State[T, S])  // ruleAction
	sub           *Disassembler[T, S] // ruleSub
}

// match applies the rule at token position pos. It returns the next
// position and whether the rule succeeded.
func (r *rule[T, S]) match(in *input[T], pos int, st *State[T, S]) (int, bool) {
	switch r.kind {
	case rulePattern:
		t, ok := in.at(pos)
		if !ok || !r.pat.Matches(t) {
			return pos, false
		}
		r.pat.Extract(t, st.Captures)
		st.Tokens = append(st.Tokens, t)
		return pos + 1, true

	case ruleConjunction:
		mid, ok := r.first.match(in, pos, st)
		if !ok {
			return pos, false
		}
		return r.second.match(in, mid, st)

	case ruleAction:
		if r.act != nil {
			r.act(st)
		}
		return pos, true

	case ruleSub:
		return r.sub.match(in, pos, st)

	default:
		panic("disasm: unknown rule kind")
	}
}

// input is a bounded token window over a slab.
type input[T Token] struct {
	slab  *region.Slab
	base  region.Offset // byte offset of token 0
	limit region.Offset // first byte past the window
	size  region.Offset // bytes per token
}

// at reads the little-endian token at index i, failing on undefined
// bytes and reads past the window.
func (in *input[T]) at(i int) (T, bool) {
	off := in.base + region.Offset(i)*in.size
	if off+in.size > in.limit {
		return 0, false
	}
	var v uint64
	for k := region.Offset(0); k < in.size; k++ {
		t, err := in.slab.Read(off + k)
		if err != nil || !t.Defined {
			return 0, false
		}
		v |= uint64(t.Byte) << (8 * k)
	}
	return T(v), true
}

// A Disassembler is an ordered set of alternative rules plus an
// optional failsafe action run when nothing matches. Rules are built
// with Tok/Pat/Sub, which extend the rule under construction, and Do,
// which binds a semantic action and commits the rule. Do without any
// preceding pattern installs the failsafe, which consumes a single
// token.
type Disassembler[T Token, S any] struct {
	alts     []*rule[T, S]
	failsafe *rule[T, S]
	current  *rule[T, S]
	err      error
}

// New returns a disassembler with an empty rule set matching nothing.
func New[T Token, S any]() *Disassembler[T, S] {
	return &Disassembler[T, S]{}
}

// Err returns the first rule-construction error.
func (d *Disassembler[T, S]) Err() error { return d.err }

func (d *Disassembler[T, S]) append(r *rule[T, S]) {
	if d.current == nil {
		d.current = r
	} else {
		d.current = &rule[T, S]{kind: ruleConjunction, first: d.current, second: r}
	}
}

// Tok appends an exact-match token to the rule under construction.
func (d *Disassembler[T, S]) Tok(v T) *Disassembler[T, S] {
	d.append(&rule[T, S]{kind: rulePattern, pat: Exact(v)})
	return d
}

// Pat appends a token pattern parsed from s.
func (d *Disassembler[T, S]) Pat(s string) *Disassembler[T, S] {
	p, err := ParsePattern[T](s)
	if err != nil {
		if d.err == nil {
			d.err = err
		}
		return d
	}
	d.append(&rule[T, S]{kind: rulePattern, pat: p})
	return d
}

// Sub appends a nested disassembler; its rules run before the action
// bound to this rule.
func (d *Disassembler[T, S]) Sub(sub *Disassembler[T, S]) *Disassembler[T, S] {
	if sub.err != nil && d.err == nil {
		d.err = sub.err
	}
	d.append(&rule[T, S]{kind: ruleSub, sub: sub})
	return d
}

// Call appends a non-consuming action to the rule under construction.
// It runs when the chain has matched up to this point, before the
// remaining elements; prefix rules use it to update the architecture
// state carried by the match.
func (d *Disassembler[T, S]) Call(fn func(*State[T, S])) *Disassembler[T, S] {
	d.append(&rule[T, S]{kind: ruleAction, act: fn})
	return d
}

// Do binds fn as the semantic action of the rule built since the last
// Do and commits the rule. Called without any preceding pattern it
// installs the failsafe.
func (d *Disassembler[T, S]) Do(fn func(*State[T, S])) *Disassembler[T, S] {
	act := &rule[T, S]{kind: ruleAction, act: fn}
	if d.current == nil {
		d.failsafe = act
		return d
	}
	d.alts = append(d.alts, &rule[T, S]{kind: ruleConjunction, first: d.current, second: act})
	d.current = nil
	return d
}

// match tries each alternative in registration order, then the
// failsafe.
func (d *Disassembler[T, S]) match(in *input[T], pos int, st *State[T, S]) (int, bool) {
	for _, r := range d.alts {
		ntok := len(st.Tokens)
		caps := make(map[string]uint64, len(st.Captures))
		for k, v := range st.Captures {
			caps[k] = v
		}
		if next, ok := r.match(in, pos, st); ok {
			return next, true
		}
		// a failed alternative leaves no tokens or captures behind
		st.Tokens = st.Tokens[:ntok]
		st.Captures = caps
	}
	if d.failsafe != nil {
		t, ok := in.at(pos)
		if !ok {
			return pos, false
		}
		st.Tokens = append(st.Tokens, t)
		return d.failsafe.match(in, pos+1, st)
	}
	return pos, false
}

// Match runs the rule set against the slab window [start, limit),
// filling st. It returns the number of tokens consumed.
func (d *Disassembler[T, S]) Match(sl *region.Slab, start, limit region.Offset, st *State[T, S]) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if limit > sl.Size() {
		limit = sl.Size()
	}

	in := &input[T]{slab: sl, base: start, limit: limit, size: region.Offset(tokenBits[T]() / 8)}
	n, ok := d.match(in, 0, st)
	if !ok {
		return 0, errors.Wrapf(ErrMatchFailed, "at offset %d", start)
	}
	if st.err != nil {
		return n, st.err
	}
	return n, nil
}

// TokenBytes returns the size in bytes of the token type.
func TokenBytes[T Token]() region.Offset {
	return region.Offset(tokenBits[T]() / 8)
}
