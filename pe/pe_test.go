// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pe

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/region"
)

type section struct {
	name     string
	virtAddr uint32
	virtSize uint32
	raw      []byte
	flags    uint32
}

// buildPE assembles a minimal PE32 image in memory.
func buildPE(machine uint16, characteristics uint16, entryRVA uint32, imageBase uint32, secs []section) []byte {
	le := binary.LittleEndian

	const peOff = 0x80
	optSize := 224

	// headers plus section table
	hdrSize := peOff + 24 + optSize + 40*len(secs)
	img := make([]byte, hdrSize)
	rawOff := uint32(hdrSize)
	for _, s := range secs {
		img = append(img, s.raw...)
	}

	img[0], img[1] = 'M', 'Z'
	le.PutUint32(img[0x3c:], peOff)
	copy(img[peOff:], "PE\x00\x00")

	coff := img[peOff+4:]
	le.PutUint16(coff[0:], machine)
	le.PutUint16(coff[2:], uint16(len(secs)))
	le.PutUint16(coff[16:], uint16(optSize))
	le.PutUint16(coff[18:], characteristics)

	opt := img[peOff+24:]
	le.PutUint16(opt[0:], 0x10b)
	le.PutUint32(opt[16:], entryRVA)
	le.PutUint32(opt[28:], imageBase)

	var sizeOfImage uint32
	for _, s := range secs {
		if end := s.virtAddr + s.virtSize; end > sizeOfImage {
			sizeOfImage = end
		}
	}
	le.PutUint32(opt[56:], sizeOfImage)

	secTab := img[peOff+24+optSize:]
	for i, s := range secs {
		hdr := secTab[i*40:]
		copy(hdr[0:8], s.name)
		le.PutUint32(hdr[8:], s.virtSize)
		le.PutUint32(hdr[12:], s.virtAddr)
		le.PutUint32(hdr[16:], uint32(len(s.raw)))
		le.PutUint32(hdr[20:], rawOff)
		le.PutUint32(hdr[36:], s.flags)
		rawOff += uint32(len(s.raw))
	}

	return img
}

func TestParse(t *testing.T) {
	img := buildPE(uint16(MachineI386), 0x0102, 0x1000, 0x400000, []section{
		{name: ".text", virtAddr: 0x1000, virtSize: 4, raw: []byte{0x90, 0x90, 0x90, 0xC3}},
		{name: ".bss", virtAddr: 0x2000, virtSize: 0x100, flags: sectionUninitialized},
	})

	p, err := Parse(img)
	if err != nil {
		t.Fatal(err)
	}

	if p.Machine != MachineI386 {
		t.Errorf("machine incorrect: %04x", uint16(p.Machine))
	}
	if p.Entry.Offset != 0x401000 {
		t.Errorf("entry incorrect. exp: $401000, got: $%X", p.Entry.Offset)
	}
	if p.ImageBase != 0x400000 {
		t.Errorf("image base incorrect: $%X", p.ImageBase)
	}

	// the code byte is readable through the composed regions graph
	sl := region.Compose(p.Regions)
	tr, err := sl.Read(0x401003)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.Defined || tr.Byte != 0xC3 {
		t.Errorf("mapped section byte incorrect: %v", tr)
	}

	// BSS maps as undefined
	tr, err = sl.Read(0x402000)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Defined {
		t.Errorf("BSS byte defined: %v", tr)
	}

	// the projection covers the whole base region
	var total region.Offset
	for _, pr := range region.Projection(p.Regions) {
		total += pr.Bound.Size()
	}
	root, _ := region.Root(p.Regions)
	if total != p.Regions.Node(root).Size() {
		t.Errorf("projection does not cover the base. exp: %d, got: %d",
			p.Regions.Node(root).Size(), total)
	}
}

func TestUnsupportedMachine(t *testing.T) {
	img := buildPE(0x01c0, 0x0102, 0, 0x400000, nil)
	if _, err := Parse(img); errors.Cause(err) != ErrUnsupportedArchitecture {
		t.Errorf("ARM image accepted: %v", err)
	}
}

func TestNonExecutableRejected(t *testing.T) {
	img := buildPE(uint16(MachineI386), 0x0100, 0, 0x400000, nil)
	if _, err := Parse(img); err == nil {
		t.Error("non-executable image accepted")
	}
}

func TestMissingMagic(t *testing.T) {
	if _, err := Parse([]byte{'X', 'Y'}); err == nil {
		t.Error("image without MZ accepted")
	}

	img := buildPE(uint16(MachineI386), 0x0102, 0, 0x400000, nil)
	img[0x80] = 'X'
	if _, err := Parse(img); err == nil {
		t.Error("image without PE signature accepted")
	}
}
