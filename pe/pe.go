// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pe loads PE images onto the regions graph: the section table
// is mapped into a base region at its virtual addresses, BSS sections
// become undefined layers.
package pe

import (
	"encoding/binary"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/das-labor/panopticon/region"
)

// ErrUnsupportedArchitecture is returned for machine types other than
// IA-32 and AMD64.
var ErrUnsupportedArchitecture = errors.New("unsupported architecture")

// Machine is the COFF machine type of the image.
type Machine uint16

const (
	MachineI386  Machine = 0x014c
	MachineAMD64 Machine = 0x8664
)

const (
	peHeaderOffsetAt = 0x3c
	fileExecutable   = 0x0002 // IMAGE_FILE_EXECUTABLE_IMAGE

	sectionUninitialized = 0x00000080 // IMAGE_SCN_CNT_UNINITIALIZED_DATA
)

// An Image is a loaded PE binary: its machine type, entry point and
// the regions graph mapping each section over the base region.
type Image struct {
	Machine   Machine
	Regions   *region.Regions
	Entry     region.Ref
	ImageBase uint64

	blob *region.Blob
}

// Close releases the backing file mapping, if any.
func (img *Image) Close() error {
	if img.blob == nil {
		return nil
	}
	b := img.blob
	img.blob = nil
	return b.Close()
}

// Load parses the PE file at path and maps its sections.
func Load(path string) (*Image, error) {
	blob, err := region.MapFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Parse(blob.Data())
	if err != nil {
		blob.Close()
		return nil, errors.Wrapf(err, "%s", path)
	}
	img.blob = blob
	return img, nil
}

// Parse reads a PE image from memory.
func Parse(data []byte) (*Image, error) {
	if len(data) < peHeaderOffsetAt+4 || data[0] != 'M' || data[1] != 'Z' {
		return nil, errors.New("missing MZ header")
	}

	peOff := binary.LittleEndian.Uint32(data[peHeaderOffsetAt:])
	if int(peOff)+24 > len(data) {
		return nil, errors.New("PE header offset out of range")
	}
	if string(data[peOff:peOff+4]) != "PE\x00\x00" {
		return nil, errors.New("missing PE signature")
	}

	coff := data[peOff+4:]
	machine := Machine(binary.LittleEndian.Uint16(coff[0:]))
	numSections := int(binary.LittleEndian.Uint16(coff[2:]))
	optSize := int(binary.LittleEndian.Uint16(coff[16:]))
	characteristics := binary.LittleEndian.Uint16(coff[18:])

	if machine != MachineI386 && machine != MachineAMD64 {
		return nil, errors.Wrapf(ErrUnsupportedArchitecture, "machine 0x%04x", uint16(machine))
	}
	if characteristics&fileExecutable == 0 {
		return nil, errors.New("image is not executable")
	}

	opt := data[peOff+24:]
	if optSize < 2 || len(opt) < optSize {
		return nil, errors.New("optional header truncated")
	}

	var imageBase, entryRVA, sizeOfImage uint64
	switch magic := binary.LittleEndian.Uint16(opt[0:]); magic {
	case 0x10b: // PE32
		entryRVA = uint64(binary.LittleEndian.Uint32(opt[16:]))
		imageBase = uint64(binary.LittleEndian.Uint32(opt[28:]))
		sizeOfImage = uint64(binary.LittleEndian.Uint32(opt[56:]))
	case 0x20b: // PE32+
		entryRVA = uint64(binary.LittleEndian.Uint32(opt[16:]))
		imageBase = binary.LittleEndian.Uint64(opt[24:])
		sizeOfImage = uint64(binary.LittleEndian.Uint32(opt[56:]))
	default:
		return nil, errors.Errorf("unknown optional header magic 0x%x", magic)
	}

	regs := region.NewRegions()
	base := region.UndefRegion("base", imageBase+sizeOfImage)
	root := regs.InsertNode(base)

	secTab := int(peOff) + 24 + optSize
	for i := 0; i < numSections; i++ {
		off := secTab + i*40
		if off+40 > len(data) {
			return nil, errors.Errorf("section header %d out of range", i)
		}
		hdr := data[off : off+40]

		name := trimName(hdr[0:8])
		virtSize := uint64(binary.LittleEndian.Uint32(hdr[8:]))
		virtAddr := uint64(binary.LittleEndian.Uint32(hdr[12:]))
		rawSize := uint64(binary.LittleEndian.Uint32(hdr[16:]))
		rawOff := uint64(binary.LittleEndian.Uint32(hdr[20:]))
		flags := binary.LittleEndian.Uint32(hdr[36:])

		at := imageBase + virtAddr
		size := virtSize
		if size == 0 {
			size = rawSize
		}

		var r *region.Region
		switch {
		case flags&sectionUninitialized != 0 || rawSize == 0:
			r = region.UndefRegion(name, size)
		case virtSize > rawSize:
			// raw bytes over an undefined tail
			if rawOff+rawSize > uint64(len(data)) {
				return nil, errors.Errorf("section %s raw data out of range", name)
			}
			r = region.UndefRegion(name, virtSize)
			r.Add(region.NewBound(0, rawSize), region.NewBytesLayer(name, data[rawOff:rawOff+rawSize]))
		default:
			if rawOff+rawSize > uint64(len(data)) {
				return nil, errors.Errorf("section %s raw data out of range", name)
			}
			r = region.WrapRegion(name, data[rawOff:rawOff+rawSize])
		}

		v := regs.InsertNode(r)
		regs.InsertEdge(region.NewBound(at, at+size), root, v)

		log.WithFields(log.Fields{"section": name, "va": at, "size": size}).
			Info("mapped PE section")
	}

	return &Image{
		Machine:   machine,
		Regions:   regs,
		Entry:     region.Ref{Region: "base", Offset: imageBase + entryRVA},
		ImageBase: imageBase,
	}, nil
}

func trimName(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
