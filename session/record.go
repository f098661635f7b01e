// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"github.com/das-labor/panopticon/region"
)

// RecordKind tags what a record iteration step returned.
type RecordKind int

const (
	RecordStructure RecordKind = iota
	RecordBasicBlock
)

// A Record is one addressable item of a region: a structure or a
// basic block.
type Record struct {
	Kind RecordKind
	Ref  region.Ref
	Area region.Bound
	Name string
}

// NextRecord returns the first structure or basic block at or after
// the reference offset in the reference's region.
func (s *Session) NextRecord(ref region.Ref) (Record, bool) {
	var best Record
	found := false

	consider := func(r Record) {
		if r.Area.Lower < ref.Offset {
			return
		}
		if !found || r.Area.Lower < best.Area.Lower {
			best = r
			found = true
		}
	}

	for _, st := range s.Structures {
		if st.Ref.Region != ref.Region {
			continue
		}
		consider(Record{Kind: RecordStructure, Ref: st.Ref, Area: st.Area, Name: st.Name})
	}

	for _, prog := range s.Programs {
		if prog.Region != ref.Region {
			continue
		}
		for _, p := range prog.Procedures() {
			for _, v := range p.Blocks() {
				bb := p.CFG.Node(v).Block
				consider(Record{
					Kind: RecordBasicBlock,
					Ref:  region.Ref{Region: ref.Region, Offset: bb.Area().Lower},
					Area: bb.Area(),
					Name: p.Name,
				})
			}
		}
	}

	return best, found
}
