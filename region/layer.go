// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import "github.com/pkg/errors"

// ErrReadOnly is returned when writing to a non-sparse layer.
var ErrReadOnly = errors.New("layer is read-only")

type layerKind int

const (
	layerBlob layerKind = iota
	layerSparse
	layerUndefined
)

// A Layer is one element of a region's stack: a constant blob, a
// sparse mutable map of trytes, or an undefined run. A layer rewrites
// the slab produced by the layers below it via Filter.
type Layer struct {
	name string
	kind layerKind

	blob   *Blob
	sparse map[Offset]Tryte
	size   Offset // undefined run length
}

// NewBlobLayer returns a read-only layer over the blob's bytes.
func NewBlobLayer(name string, b *Blob) *Layer {
	return &Layer{name: name, kind: layerBlob, blob: b}
}

// NewBytesLayer returns a read-only layer over an owned byte slice.
func NewBytesLayer(name string, data []byte) *Layer {
	return NewBlobLayer(name, WrapBytes(data))
}

// NewSparseLayer returns an empty writable overlay layer.
func NewSparseLayer(name string) *Layer {
	return &Layer{name: name, kind: layerSparse, sparse: map[Offset]Tryte{}}
}

// NewUndefinedLayer returns a layer of size undefined trytes.
func NewUndefinedLayer(name string, size Offset) *Layer {
	return &Layer{name: name, kind: layerUndefined, size: size}
}

// Name returns the layer's name.
func (l *Layer) Name() string { return l.name }

// IsUndefined reports whether the layer is an undefined run.
func (l *Layer) IsUndefined() bool { return l.kind == layerUndefined }

// Filter rewrites the input slab. A blob layer replaces it with the
// blob's bytes, an undefined layer with undefined trytes, and a sparse
// layer overlays its entries onto the input.
func (l *Layer) Filter(in Slab) Slab {
	switch l.kind {
	case layerBlob:
		return SlabFromBytes(l.blob.Data())
	case layerUndefined:
		return UndefinedSlab(l.size)
	default:
		return overlaid(l.sparse, in)
	}
}

// Write stores t at pos. Only sparse layers are writable.
func (l *Layer) Write(pos Offset, t Tryte) error {
	if l.kind != layerSparse {
		return errors.Wrapf(ErrReadOnly, "layer %s", l.name)
	}
	l.sparse[pos] = t
	return nil
}

// Sparse returns the layer's map for serialisation, or nil.
func (l *Layer) Sparse() map[Offset]Tryte {
	if l.kind != layerSparse {
		return nil
	}
	return l.sparse
}

// Bytes returns a blob layer's data, or nil.
func (l *Layer) Bytes() []byte {
	if l.kind != layerBlob {
		return nil
	}
	return l.blob.Data()
}

// UndefSize returns the length of an undefined layer, or 0.
func (l *Layer) UndefSize() Offset {
	if l.kind != layerUndefined {
		return 0
	}
	return l.size
}
