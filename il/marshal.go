// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package il

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/region"
)

// valueJSON is the wire form of a value: a kind tag plus the fields of
// the variant.
type valueJSON struct {
	Kind      string     `json:"kind"`
	Value     uint64     `json:"value,omitempty"`
	Name      string     `json:"name,omitempty"`
	Width     uint16     `json:"width,omitempty"`
	Subscript int        `json:"subscript,omitempty"`
	Offset    *valueJSON `json:"offset,omitempty"`
	Bytes     uint16     `json:"bytes,omitempty"`
	Endian    int        `json:"endian,omitempty"`
	Space     string     `json:"space,omitempty"`
}

func valueToJSON(v Rvalue) *valueJSON {
	switch x := v.(type) {
	case nil:
		return nil
	case Constant:
		return &valueJSON{Kind: "constant", Value: x.Value}
	case Undefined:
		return &valueJSON{Kind: "undefined"}
	case Variable:
		return &valueJSON{Kind: "variable", Name: x.Name, Width: x.Width, Subscript: x.Subscript}
	case Memory:
		return &valueJSON{
			Kind:   "memory",
			Offset: valueToJSON(x.Offset),
			Bytes:  x.Bytes,
			Endian: int(x.Endian),
			Space:  x.Space,
		}
	default:
		panic("il: unknown value variant")
	}
}

func valueFromJSON(j *valueJSON) (Rvalue, error) {
	if j == nil {
		return nil, nil
	}
	switch j.Kind {
	case "constant":
		return Constant{Value: j.Value}, nil
	case "undefined":
		return Undefined{}, nil
	case "variable":
		return Variable{Name: j.Name, Width: j.Width, Subscript: j.Subscript}, nil
	case "memory":
		off, err := valueFromJSON(j.Offset)
		if err != nil {
			return nil, err
		}
		return Memory{Offset: off, Bytes: j.Bytes, Endian: Endianness(j.Endian), Space: j.Space}, nil
	default:
		return nil, errors.Errorf("unknown value kind %q", j.Kind)
	}
}

// MarshalValue encodes any rvalue as JSON.
func MarshalValue(v Rvalue) ([]byte, error) {
	return json.Marshal(valueToJSON(v))
}

// UnmarshalValue decodes an rvalue from JSON.
func UnmarshalValue(data []byte) (Rvalue, error) {
	var j valueJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return valueFromJSON(&j)
}

type instrJSON struct {
	Op       string       `json:"op"`
	Assignee *valueJSON   `json:"assignee"`
	Operands []*valueJSON `json:"operands"`
}

// MarshalJSON encodes the instruction with its stable opcode name.
func (i Instr) MarshalJSON() ([]byte, error) {
	j := instrJSON{Op: i.Op.String(), Assignee: valueToJSON(i.Assignee)}
	for _, v := range i.Operands {
		j.Operands = append(j.Operands, valueToJSON(v))
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an instruction.
func (i *Instr) UnmarshalJSON(data []byte) error {
	var j instrJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	op, ok := OpcodeByName(j.Op)
	if !ok {
		return errors.Errorf("unknown opcode %q", j.Op)
	}
	assignee, err := valueFromJSON(j.Assignee)
	if err != nil {
		return err
	}
	lv, ok := assignee.(Lvalue)
	if !ok {
		return errors.Errorf("assignee of %s is not an lvalue", j.Op)
	}
	var ops []Rvalue
	for _, v := range j.Operands {
		rv, err := valueFromJSON(v)
		if err != nil {
			return err
		}
		ops = append(ops, rv)
	}
	*i = Instr{Op: op, Assignee: lv, Operands: ops}
	return nil
}

type relationJSON struct {
	Code int        `json:"code"`
	A    *valueJSON `json:"a"`
	B    *valueJSON `json:"b"`
}

type guardJSON struct {
	Relations []relationJSON `json:"relations,omitempty"`
}

// MarshalJSON encodes the guard.
func (g Guard) MarshalJSON() ([]byte, error) {
	var j guardJSON
	for _, r := range g.Relations {
		j.Relations = append(j.Relations, relationJSON{Code: int(r.Code), A: valueToJSON(r.A), B: valueToJSON(r.B)})
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a guard.
func (g *Guard) UnmarshalJSON(data []byte) error {
	var j guardJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	g.Relations = nil
	for _, r := range j.Relations {
		a, err := valueFromJSON(r.A)
		if err != nil {
			return err
		}
		b, err := valueFromJSON(r.B)
		if err != nil {
			return err
		}
		g.Relations = append(g.Relations, Relation{Code: RelCode(r.Code), A: a, B: b})
	}
	return nil
}

type mnemonicJSON struct {
	Lower        region.Offset `json:"lower"`
	Upper        region.Offset `json:"upper"`
	Opcode       string        `json:"opcode"`
	Operands     []*valueJSON  `json:"operands,omitempty"`
	Instructions []Instr       `json:"instructions,omitempty"`
	Format       string        `json:"format,omitempty"`
}

// MarshalJSON encodes the mnemonic. The format string is stored in
// source form and re-parsed on load.
func (m Mnemonic) MarshalJSON() ([]byte, error) {
	j := mnemonicJSON{
		Lower:        m.Area.Lower,
		Upper:        m.Area.Upper,
		Opcode:       m.Opcode,
		Instructions: m.Instructions,
		Format:       m.FormatString,
	}
	for _, v := range m.Operands {
		j.Operands = append(j.Operands, valueToJSON(v))
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a mnemonic.
func (m *Mnemonic) UnmarshalJSON(data []byte) error {
	var j mnemonicJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var ops []Rvalue
	for _, v := range j.Operands {
		rv, err := valueFromJSON(v)
		if err != nil {
			return err
		}
		ops = append(ops, rv)
	}
	mn, err := NewMnemonic(region.Bound{Lower: j.Lower, Upper: j.Upper}, j.Opcode, j.Format, ops, j.Instructions)
	if err != nil {
		return err
	}
	*m = mn
	return nil
}
