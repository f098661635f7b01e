// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements the rule engine turning token streams into
// mnemonics and IL. Rules are built from token patterns, sequential
// and alternative composition, and semantic actions; a Disassembler is
// the top-level alternative with a builder interface.
package disasm

import "github.com/pkg/errors"

// ErrInvalidPattern is returned for malformed token-pattern literals.
var ErrInvalidPattern = errors.New("invalid token pattern")

// Token is the integral unit an architecture's rules consume.
type Token interface {
	~uint8 | ~uint16 | ~uint32
}

// tokenBits returns the width of T in bits.
func tokenBits[T Token]() uint {
	n := uint(0)
	for v := ^T(0); v != 0; v >>= 1 {
		n++
	}
	return n
}

// A Pattern matches one token against mask/value and extracts named
// capture groups.
type Pattern[T Token] struct {
	Mask     T
	Value    T
	Captures map[string]T
}

// ParsePattern parses a token-pattern literal. The pattern is a string
// of '0'/'1' (exact bits) and '.' (any bit); "name@" starts a capture
// group whose '.' run is extracted into the named integer. Spaces are
// ignored. Patterns shorter than the token are zero-extended on the
// high side; wider patterns are invalid.
func ParsePattern[T Token](s string) (Pattern[T], error) {
	width := tokenBits[T]()

	// first pass: number of bit-consuming characters
	n := uint(0)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '0' || c == '1' || c == '.':
			n++
		case c == ' ' || c == '@' || isAlpha(c):
		default:
			return Pattern[T]{}, errors.Wrapf(ErrInvalidPattern, "%q: bad character %q at column %d", s, c, i)
		}
	}
	if n > width {
		return Pattern[T]{}, errors.Wrapf(ErrInvalidPattern, "%q: %d bits in a %d bit token", s, n, width)
	}

	p := Pattern[T]{Captures: map[string]T{}}
	bit := int(n) - 1
	i := 0

	const (
		stAny = iota
		stName
		stGroup
	)
	st := stAny
	var name string

	for i < len(s) {
		c := s[i]
		switch st {
		case stAny:
			switch {
			case c == '0' || c == '1':
				if c == '1' {
					p.Value |= 1 << uint(bit)
				}
				p.Mask |= 1 << uint(bit)
				bit--
				i++
			case c == '.':
				bit--
				i++
			case isAlpha(c):
				name = string(c)
				st = stName
				i++
			case c == ' ':
				i++
			default:
				return Pattern[T]{}, errors.Wrapf(ErrInvalidPattern, "%q: bad character %q at column %d", s, c, i)
			}
		case stName:
			switch {
			case c == '@':
				if _, ok := p.Captures[name]; !ok {
					p.Captures[name] = 0
				}
				st = stGroup
				i++
			case isAlpha(c):
				name += string(c)
				i++
			default:
				return Pattern[T]{}, errors.Wrapf(ErrInvalidPattern, "%q: bad character %q in capture group name at column %d", s, c, i)
			}
		case stGroup:
			if c == '.' {
				p.Captures[name] |= 1 << uint(bit)
				bit--
				i++
			} else {
				st = stAny
			}
		}
	}
	if st == stName {
		return Pattern[T]{}, errors.Wrapf(ErrInvalidPattern, "%q: unterminated capture group %q", s, name)
	}

	// zero-extend on the high side
	for b := int(n); b < int(width); b++ {
		p.Mask |= 1 << uint(b)
	}

	return p, nil
}

// Exact returns the pattern matching exactly the token v.
func Exact[T Token](v T) Pattern[T] {
	return Pattern[T]{Mask: ^T(0), Value: v}
}

// Matches reports whether the token t satisfies the pattern.
func (p Pattern[T]) Matches(t T) bool {
	return t&p.Mask == p.Value
}

// Extract accumulates the capture-group bits of t into the given map,
// concatenating with any bits captured by earlier occurrences of the
// same group.
func (p Pattern[T]) Extract(t T, into map[string]uint64) {
	width := tokenBits[T]()
	for name, mask := range p.Captures {
		res := into[name]
		for bit := int(width) - 1; bit >= 0; bit-- {
			if mask>>uint(bit)&1 != 0 {
				res = res<<1 | uint64(t>>uint(bit)&1)
			}
		}
		into[name] = res
	}
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
