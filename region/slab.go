// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import "github.com/pkg/errors"

// ErrOutOfRange is returned when a slab or region is read past its end.
var ErrOutOfRange = errors.New("read out of range")

// A Tryte is an optional byte: a concrete value or undefined.
type Tryte struct {
	Byte    byte
	Defined bool
}

// Def returns a defined tryte holding b.
func Def(b byte) Tryte { return Tryte{Byte: b, Defined: true} }

// Undef is the undefined tryte.
var Undef = Tryte{}

// An overlay is a sparse map applied on top of one slab source. Keys
// are source-local offsets shifted by delta.
type overlay struct {
	m     map[Offset]Tryte
	delta Offset
}

// A source is one segment of a slab: either a run of concrete bytes or
// an undefined run, plus the overlays applied to it. Later overlays win.
type source struct {
	data     []byte // nil for an undefined run
	size     Offset
	overlays []overlay
}

// A Slab is a lazy concatenation of byte sources with sparse overrides.
// Reading yields trytes; random access is amortised by a one-entry
// range cache.
type Slab struct {
	sources []source

	// cache of the source containing the last offset read
	cacheBound Bound
	cacheIdx   int
	cacheOK    bool
}

// SlabFromBytes returns a slab viewing the given bytes.
func SlabFromBytes(data []byte) Slab {
	if len(data) == 0 {
		return Slab{}
	}
	return Slab{sources: []source{{data: data, size: Offset(len(data))}}}
}

// UndefinedSlab returns a slab of n undefined trytes.
func UndefinedSlab(n Offset) Slab {
	if n == 0 {
		return Slab{}
	}
	return Slab{sources: []source{{size: n}}}
}

// Size returns the number of trytes in the slab.
func (s *Slab) Size() Offset {
	var n Offset
	for i := range s.sources {
		n += s.sources[i].size
	}
	return n
}

// Read returns the tryte at offset o.
func (s *Slab) Read(o Offset) (Tryte, error) {
	if !s.cacheOK || !s.cacheBound.Contains(o) {
		s.cacheOK = false
		var at Offset
		for i := range s.sources {
			b := Bound{Lower: at, Upper: at + s.sources[i].size}
			if b.Contains(o) {
				s.cacheBound = b
				s.cacheIdx = i
				s.cacheOK = true
				break
			}
			at = b.Upper
		}
		if !s.cacheOK {
			return Undef, errors.Wrapf(ErrOutOfRange, "offset %d in %d byte slab", o, s.Size())
		}
	}

	src := &s.sources[s.cacheIdx]
	local := o - s.cacheBound.Lower

	// later overlays shadow earlier ones
	for i := len(src.overlays) - 1; i >= 0; i-- {
		ov := src.overlays[i]
		if t, ok := ov.m[local+ov.delta]; ok {
			return t, nil
		}
	}

	if src.data == nil {
		return Undef, nil
	}
	return Def(src.data[local]), nil
}

// MustRead is Read for offsets known to be inside the slab.
func (s *Slab) MustRead(o Offset) Tryte {
	t, err := s.Read(o)
	if err != nil {
		panic(err)
	}
	return t
}

// Cut returns the sub-slab covering [lo, hi). Bounds are clamped to the
// slab size.
func (s *Slab) Cut(lo, hi Offset) Slab {
	if hi > s.Size() {
		hi = s.Size()
	}
	if lo > hi {
		lo = hi
	}

	var ret Slab
	var at Offset
	for i := range s.sources {
		src := &s.sources[i]
		if lo < at+src.size && hi > at {
			var trim Offset
			if lo > at {
				trim = lo - at
			}
			end := src.size
			if hi-at < end {
				end = hi - at
			}

			ns := source{size: end - trim}
			if src.data != nil {
				ns.data = src.data[trim:end]
			}
			for _, ov := range src.overlays {
				ns.overlays = append(ns.overlays, overlay{m: ov.m, delta: ov.delta + trim})
			}
			ret.sources = append(ret.sources, ns)
		}
		at += src.size
	}
	return ret
}

// Combine returns the concatenation of a and b.
func Combine(a, b Slab) Slab {
	var ret Slab
	ret.sources = append(ret.sources, a.sources...)
	ret.sources = append(ret.sources, b.sources...)
	return ret
}

// overlaid returns s with m applied on top of every source.
func overlaid(m map[Offset]Tryte, s Slab) Slab {
	var ret Slab
	var at Offset
	for i := range s.sources {
		src := s.sources[i]
		ns := source{data: src.data, size: src.size}
		ns.overlays = append(ns.overlays, src.overlays...)
		// map keys are slab-global, sources start at 'at'
		ns.overlays = append(ns.overlays, overlay{m: m, delta: at})
		ret.sources = append(ret.sources, ns)
		at += src.size
	}
	return ret
}

// An Iter walks a slab. It supports forward, backward and random
// access traversal; dereferencing yields a tryte.
type Iter struct {
	s   *Slab
	off Offset
}

// Iter returns an iterator positioned at offset at.
func (s *Slab) Iter(at Offset) Iter { return Iter{s: s, off: at} }

// Pos returns the iterator's current offset.
func (i Iter) Pos() Offset { return i.off }

// Valid reports whether the iterator points inside the slab.
func (i Iter) Valid() bool { return i.off < i.s.Size() }

// Deref returns the tryte under the iterator.
func (i Iter) Deref() (Tryte, error) { return i.s.Read(i.off) }

// Next returns an iterator advanced by one.
func (i Iter) Next() Iter { return Iter{s: i.s, off: i.off + 1} }

// Prev returns an iterator moved back by one.
func (i Iter) Prev() Iter { return Iter{s: i.s, off: i.off - 1} }

// Advance returns an iterator moved forward by n.
func (i Iter) Advance(n Offset) Iter { return Iter{s: i.s, off: i.off + n} }
