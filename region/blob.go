// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// A Blob is a shared, immutable run of bytes backing one or more
// layers. It either owns an in-memory slice or borrows a memory-mapped
// file. Blobs are reference counted; the mapping is released when the
// last reference is closed.
type Blob struct {
	data   []byte
	mapped bool
	refs   *int
}

// WrapBytes returns a blob owning the given slice.
func WrapBytes(data []byte) *Blob {
	refs := 1
	return &Blob{data: data, refs: &refs}
}

// MapFile memory-maps the file at path read-only.
func MapFile(path string) (*Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s", path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot stat %s", path)
	}
	if fi.Size() == 0 {
		refs := 1
		return &Blob{refs: &refs}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot map %s", path)
	}

	refs := 1
	return &Blob{data: data, mapped: true, refs: &refs}, nil
}

// Retain adds a reference to b and returns it; each reference is
// dropped by one Close.
func (b *Blob) Retain() *Blob {
	*b.refs++
	return b
}

// Close drops this handle. The last Close unmaps a mapped blob.
func (b *Blob) Close() error {
	*b.refs--
	if *b.refs > 0 {
		return nil
	}
	if b.mapped && b.data != nil {
		data := b.data
		b.data = nil
		b.mapped = false
		return unix.Munmap(data)
	}
	b.data = nil
	return nil
}

// Data returns the underlying bytes. The slice must not be mutated.
func (b *Blob) Data() []byte { return b.data }

// Size returns the number of bytes in the blob.
func (b *Blob) Size() Offset { return Offset(len(b.data)) }
