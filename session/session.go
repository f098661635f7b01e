// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session ties the analysis core together for a consumer: it
// owns the regions graph, the recovered programs, comments and
// structures, offers record iteration and persistence, and exposes the
// reversible command surface.
package session

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/das-labor/panopticon/amd64"
	"github.com/das-labor/panopticon/avr"
	"github.com/das-labor/panopticon/pe"
	"github.com/das-labor/panopticon/proc"
	"github.com/das-labor/panopticon/region"
)

// A Structure is a named byte range a user annotated in a region.
type Structure struct {
	Name string      `json:"name"`
	Ref  region.Ref  `json:"ref"`
	Area region.Bound `json:"area"`
}

// A Session is one open image with everything recovered from it.
type Session struct {
	Regions    *region.Regions
	Programs   []*proc.Program
	Comments   map[region.Ref]string
	Structures []Structure

	uuids     map[string]*proc.Procedure
	overrides map[string]map[string]uint64
	nextUUID  int

	undo []command
	redo []command
}

// New returns an empty session over the given regions graph.
func New(regs *region.Regions) *Session {
	return &Session{
		Regions:   regs,
		Comments:  map[region.Ref]string{},
		uuids:     map[string]*proc.Procedure{},
		overrides: map[string]map[string]uint64{},
	}
}

// OpenRaw opens a flat AVR flash image and disassembles it from
// offset 0.
func OpenRaw(path string) (*Session, error) {
	r, err := region.MapRegion("flash", path)
	if err != nil {
		return nil, err
	}

	regs := region.NewRegions()
	regs.InsertNode(r)

	s := New(regs)
	data := r.Read()
	prog, err := avr.Disassemble(avr.Mega128(), nil, data, region.Ref{Region: "flash", Offset: 0})
	if err != nil {
		return nil, err
	}
	if prog != nil {
		s.AddProgram(prog)
	}
	return s, nil
}

// OpenPE opens a PE binary, maps its sections and disassembles from
// the entry point.
func OpenPE(path string) (*Session, error) {
	img, err := pe.Load(path)
	if err != nil {
		return nil, err
	}

	s := New(img.Regions)

	if _, ok := region.Root(img.Regions); !ok {
		return nil, errors.New("PE image has no base region")
	}
	data := region.Compose(img.Regions)

	mode := amd64.Mode32
	if img.Machine == pe.MachineAMD64 {
		mode = amd64.Mode64
	}

	prog, err := amd64.Disassemble(mode, nil, data, img.Entry)
	if err != nil {
		return nil, err
	}
	if prog != nil {
		s.AddProgram(prog)
	}
	return s, nil
}

// AddProgram registers a program and assigns procedure UUIDs.
func (s *Session) AddProgram(p *proc.Program) {
	s.Programs = append(s.Programs, p)
	for _, pr := range p.Procedures() {
		s.registerUUID(pr)
	}
	log.WithFields(log.Fields{"program": p.Name, "procedures": len(p.Procedures())}).
		Info("program added to session")
}

func (s *Session) registerUUID(p *proc.Procedure) string {
	for id, q := range s.uuids {
		if q == p {
			return id
		}
	}
	s.nextUUID++
	id := fmt.Sprintf("%08x-0000-4000-8000-%012x", s.nextUUID, s.nextUUID)
	s.uuids[id] = p
	return id
}

// UUIDs returns the identifier of every known procedure.
func (s *Session) UUIDs() map[string]*proc.Procedure {
	ret := make(map[string]*proc.Procedure, len(s.uuids))
	for k, v := range s.uuids {
		ret[k] = v
	}
	return ret
}

// Procedure resolves a procedure UUID.
func (s *Session) Procedure(uuid string) (*proc.Procedure, bool) {
	p, ok := s.uuids[uuid]
	return p, ok
}

// ValueOverrides returns the user-set variable values of a procedure.
func (s *Session) ValueOverrides(uuid string) map[string]uint64 {
	return s.overrides[uuid]
}
