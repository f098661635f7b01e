// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/region"
)

// maxUndo bounds the undo stack.
const maxUndo = 256

// A command is one reversible mutation of the session.
type command interface {
	apply(*Session) error
	revert(*Session) error
}

// run applies cmd and pushes it onto the undo stack, clearing redo.
func (s *Session) run(cmd command) error {
	if err := cmd.apply(s); err != nil {
		return err
	}
	s.undo = append(s.undo, cmd)
	if len(s.undo) > maxUndo {
		s.undo = s.undo[1:]
	}
	s.redo = nil
	return nil
}

// Undo reverts the most recent command.
func (s *Session) Undo() error {
	if len(s.undo) == 0 {
		return errors.New("nothing to undo")
	}
	cmd := s.undo[len(s.undo)-1]
	if err := cmd.revert(s); err != nil {
		return err
	}
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, cmd)
	return nil
}

// Redo reapplies the most recently undone command.
func (s *Session) Redo() error {
	if len(s.redo) == 0 {
		return errors.New("nothing to redo")
	}
	cmd := s.redo[len(s.redo)-1]
	if err := cmd.apply(s); err != nil {
		return err
	}
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, cmd)
	return nil
}

type commentCmd struct {
	ref      region.Ref
	text     string
	old      string
	hadOld   bool
	captured bool
}

func (c *commentCmd) apply(s *Session) error {
	if !c.captured {
		c.old, c.hadOld = s.Comments[c.ref]
		c.captured = true
	}
	if c.text == "" {
		delete(s.Comments, c.ref)
	} else {
		s.Comments[c.ref] = c.text
	}
	return nil
}

func (c *commentCmd) revert(s *Session) error {
	if c.hadOld {
		s.Comments[c.ref] = c.old
	} else {
		delete(s.Comments, c.ref)
	}
	return nil
}

// CommentOn attaches text to an address. Empty text removes the
// comment.
func (s *Session) CommentOn(ref region.Ref, text string) error {
	return s.run(&commentCmd{ref: ref, text: text})
}

type renameCmd struct {
	uuid     string
	name     string
	old      string
	captured bool
}

func (c *renameCmd) apply(s *Session) error {
	p, ok := s.uuids[c.uuid]
	if !ok {
		return errors.Errorf("unknown procedure %s", c.uuid)
	}
	if !c.captured {
		c.old = p.Name
		c.captured = true
	}
	p.Name = c.name
	return nil
}

func (c *renameCmd) revert(s *Session) error {
	p, ok := s.uuids[c.uuid]
	if !ok {
		return errors.Errorf("unknown procedure %s", c.uuid)
	}
	p.Name = c.old
	return nil
}

// RenameFunction sets a procedure's human-readable name.
func (s *Session) RenameFunction(uuid, name string) error {
	return s.run(&renameCmd{uuid: uuid, name: name})
}

type setValueCmd struct {
	uuid     string
	variable string
	value    uint64
	old      uint64
	hadOld   bool
	captured bool
}

func (c *setValueCmd) apply(s *Session) error {
	if _, ok := s.uuids[c.uuid]; !ok {
		return errors.Errorf("unknown procedure %s", c.uuid)
	}
	ov := s.overrides[c.uuid]
	if ov == nil {
		ov = map[string]uint64{}
		s.overrides[c.uuid] = ov
	}
	if !c.captured {
		c.old, c.hadOld = ov[c.variable]
		c.captured = true
	}
	ov[c.variable] = c.value
	return nil
}

func (c *setValueCmd) revert(s *Session) error {
	ov := s.overrides[c.uuid]
	if ov == nil {
		return nil
	}
	if c.hadOld {
		ov[c.variable] = c.old
	} else {
		delete(ov, c.variable)
	}
	return nil
}

// SetValueFor pins a variable of a procedure to a user-chosen value.
func (s *Session) SetValueFor(uuid, variable string, value uint64) error {
	return s.run(&setValueCmd{uuid: uuid, variable: variable, value: value})
}

type structureCmd struct {
	st Structure
}

func (c *structureCmd) apply(s *Session) error {
	s.Structures = append(s.Structures, c.st)
	return nil
}

func (c *structureCmd) revert(s *Session) error {
	for i := len(s.Structures) - 1; i >= 0; i-- {
		if s.Structures[i] == c.st {
			s.Structures = append(s.Structures[:i], s.Structures[i+1:]...)
			return nil
		}
	}
	return nil
}

// AddStructure annotates a byte range with a named structure.
func (s *Session) AddStructure(st Structure) error {
	return s.run(&structureCmd{st: st})
}
