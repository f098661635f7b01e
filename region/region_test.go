// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"testing"

	"github.com/pkg/errors"
)

func expectByte(t *testing.T, s *Slab, off Offset, want byte) {
	t.Helper()
	tr, err := s.Read(off)
	if err != nil {
		t.Fatalf("read at %d failed: %v", off, err)
	}
	if !tr.Defined {
		t.Fatalf("byte at %d undefined, exp: $%02X", off, want)
	}
	if tr.Byte != want {
		t.Errorf("byte at %d incorrect. exp: $%02X, got: $%02X", off, want, tr.Byte)
	}
}

func expectUndef(t *testing.T, s *Slab, off Offset) {
	t.Helper()
	tr, err := s.Read(off)
	if err != nil {
		t.Fatalf("read at %d failed: %v", off, err)
	}
	if tr.Defined {
		t.Errorf("byte at %d defined, exp: undefined", off)
	}
}

func TestSlabRead(t *testing.T) {
	s := SlabFromBytes([]byte{1, 2, 3})
	if s.Size() != 3 {
		t.Fatalf("size incorrect. exp: 3, got: %d", s.Size())
	}
	for i, want := range []byte{1, 2, 3} {
		expectByte(t, &s, Offset(i), want)
	}

	if _, err := s.Read(3); errors.Cause(err) != ErrOutOfRange {
		t.Errorf("read past end did not fail with OutOfRange: %v", err)
	}
}

func TestSlabCombineAndCut(t *testing.T) {
	s := Combine(SlabFromBytes([]byte{1, 2}), UndefinedSlab(2))
	s = Combine(s, SlabFromBytes([]byte{5}))

	if s.Size() != 5 {
		t.Fatalf("size incorrect. exp: 5, got: %d", s.Size())
	}
	expectByte(t, &s, 0, 1)
	expectUndef(t, &s, 2)
	expectByte(t, &s, 4, 5)

	c := s.Cut(1, 5)
	if c.Size() != 4 {
		t.Fatalf("cut size incorrect. exp: 4, got: %d", c.Size())
	}
	expectByte(t, &c, 0, 2)
	expectUndef(t, &c, 1)
	expectByte(t, &c, 3, 5)
}

func TestSparseLayerFilter(t *testing.T) {
	l := NewSparseLayer("patch")
	if err := l.Write(1, Def(0xAA)); err != nil {
		t.Fatal(err)
	}
	if err := l.Write(2, Undef); err != nil {
		t.Fatal(err)
	}

	in := SlabFromBytes([]byte{1, 2, 3, 4})
	out := l.Filter(in)

	expectByte(t, &out, 0, 1)
	expectByte(t, &out, 1, 0xAA)
	expectUndef(t, &out, 2)
	expectByte(t, &out, 3, 4)
}

func TestBlobAndUndefinedFilterIgnoreInput(t *testing.T) {
	in := SlabFromBytes([]byte{9, 9})

	b := NewBytesLayer("blob", []byte{7})
	out := b.Filter(in)
	if out.Size() != 1 {
		t.Errorf("blob filter size incorrect. exp: 1, got: %d", out.Size())
	}
	expectByte(t, &out, 0, 7)

	u := NewUndefinedLayer("undef", 3)
	out = u.Filter(in)
	if out.Size() != 3 {
		t.Errorf("undefined filter size incorrect. exp: 3, got: %d", out.Size())
	}
	expectUndef(t, &out, 1)
}

func TestLayerWriteReadOnly(t *testing.T) {
	l := NewBytesLayer("blob", []byte{1})
	if err := l.Write(0, Def(2)); errors.Cause(err) != ErrReadOnly {
		t.Errorf("write to blob layer did not fail with ReadOnly: %v", err)
	}
}

// Writing bytes read from a slab back into a sparse layer must not
// change what the region reads.
func TestSparseRoundTrip(t *testing.T) {
	r := WrapRegion("base", []byte{1, 2, 3, 4})
	before := r.Read()

	l := NewSparseLayer("echo")
	for i := Offset(0); i < before.Size(); i++ {
		tr, err := before.Read(i)
		if err != nil {
			t.Fatal(err)
		}
		if err := l.Write(i, tr); err != nil {
			t.Fatal(err)
		}
	}
	r.Add(NewBound(0, 4), l)

	after := r.Read()
	if after.Size() != before.Size() {
		t.Fatalf("size changed. exp: %d, got: %d", before.Size(), after.Size())
	}
	for i := Offset(0); i < after.Size(); i++ {
		a, _ := before.Read(i)
		b, _ := after.Read(i)
		if a != b {
			t.Errorf("byte %d changed. exp: %v, got: %v", i, a, b)
		}
	}
}

func TestRegionStackedRead(t *testing.T) {
	r := WrapRegion("base", []byte{1, 2, 3, 4, 5, 6})

	patch := NewSparseLayer("patch")
	patch.Write(0, Def(0xFF)) // offset 2 in the region

	r.Add(NewBound(2, 4), patch)

	s := r.Read()
	if s.Size() != 6 {
		t.Fatalf("size incorrect. exp: 6, got: %d", s.Size())
	}
	expectByte(t, &s, 1, 2)
	expectByte(t, &s, 2, 0xFF)
	expectByte(t, &s, 3, 4)
	expectByte(t, &s, 5, 6)
}

func TestRegionUndefinedHole(t *testing.T) {
	r := WrapRegion("base", []byte{1, 2, 3, 4})
	r.Add(NewBound(1, 3), NewUndefinedLayer("hole", 2))

	s := r.Read()
	expectByte(t, &s, 0, 1)
	expectUndef(t, &s, 1)
	expectUndef(t, &s, 2)
	expectByte(t, &s, 3, 4)
}

func TestProjectionCoversRoot(t *testing.T) {
	regs := NewRegions()
	root := regs.InsertNode(UndefRegion("base", 100))
	a := regs.InsertNode(WrapRegion("a", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}))
	b := regs.InsertNode(UndefRegion("b", 20))
	regs.InsertEdge(NewBound(10, 20), root, a)
	regs.InsertEdge(NewBound(50, 70), root, b)

	ps := Projection(regs)

	var total Offset
	var last Offset
	for _, p := range ps {
		if p.Bound.Lower < last && p.Region.Name() == "base" {
			t.Errorf("projection out of order at %v", p.Bound)
		}
		if p.Region.Name() == "base" {
			last = p.Bound.Upper
		}
		total += p.Bound.Size()
	}
	if total != 100 {
		t.Errorf("projection does not cover root. exp: 100 bytes, got: %d", total)
	}

	names := map[string]bool{}
	for _, p := range ps {
		names[p.Region.Name()] = true
	}
	for _, n := range []string{"base", "a", "b"} {
		if !names[n] {
			t.Errorf("region %s missing from projection", n)
		}
	}
}

func TestCompose(t *testing.T) {
	regs := NewRegions()
	root := regs.InsertNode(UndefRegion("base", 8))
	a := regs.InsertNode(WrapRegion("a", []byte{0xAA, 0xBB}))
	regs.InsertEdge(NewBound(2, 4), root, a)

	s := Compose(regs)
	if s.Size() != 8 {
		t.Fatalf("composed size incorrect. exp: 8, got: %d", s.Size())
	}
	expectUndef(t, &s, 1)
	expectByte(t, &s, 2, 0xAA)
	expectByte(t, &s, 3, 0xBB)
	expectUndef(t, &s, 4)
}

func TestBlobRefCount(t *testing.T) {
	b := WrapBytes([]byte{1, 2, 3})
	h := b.Retain()

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if h.Data() == nil {
		t.Fatal("data released while a handle is alive")
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if h.Data() != nil {
		t.Error("data not released after the last handle closed")
	}
}
