// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

// A Region owns a base layer and a stack of bounded overlay layers.
// Reading composes the base through the stack in insertion order.
type Region struct {
	name  string
	base  *Layer
	stack []StackEntry
	size  Offset
}

// A StackEntry applies Layer to the slice of the region covered by
// Bound.
type StackEntry struct {
	Bound Bound
	Layer *Layer
}

// New returns a region over the given base layer.
func New(name string, base *Layer) *Region {
	sl := base.Filter(Slab{})
	return &Region{name: name, base: base, size: sl.Size()}
}

// MapRegion maps the file at path and wraps it in a region.
func MapRegion(name, path string) (*Region, error) {
	b, err := MapFile(path)
	if err != nil {
		return nil, err
	}
	return New(name, NewBlobLayer(name, b)), nil
}

// WrapRegion returns a region over an in-memory byte slice.
func WrapRegion(name string, data []byte) *Region {
	return New(name, NewBytesLayer(name, data))
}

// UndefRegion returns a region of size undefined bytes.
func UndefRegion(name string, size Offset) *Region {
	return New(name, NewUndefinedLayer(name, size))
}

// Name returns the region's name.
func (r *Region) Name() string { return r.name }

// Size returns the region's extent in bytes.
func (r *Region) Size() Offset { return r.size }

// Base returns the region's base layer.
func (r *Region) Base() *Layer { return r.base }

// Stack returns the overlay stack in application order.
func (r *Region) Stack() []StackEntry { return r.stack }

// Add pushes a layer onto the stack, applied over the slice b. The
// bound is clamped to the region's size.
func (r *Region) Add(b Bound, l *Layer) {
	if b.Upper > r.size {
		b.Upper = r.size
	}
	r.stack = append(r.stack, StackEntry{Bound: b, Layer: l})
}

// Read composes the base layer through the stack and returns the
// resulting slab. The slab always has exactly Size trytes.
func (r *Region) Read() Slab {
	ret := r.base.Filter(Slab{})

	for _, e := range r.stack {
		var n Slab
		if e.Bound.Lower > 0 {
			n = ret.Cut(0, e.Bound.Lower)
		}

		src := ret.Cut(e.Bound.Lower, e.Bound.Upper)
		filtered := e.Layer.Filter(src)
		n = Combine(n, filtered)

		if e.Bound.Upper < ret.Size() {
			n = Combine(n, ret.Cut(e.Bound.Upper, ret.Size()))
		}

		ret = n
	}

	return ret
}
