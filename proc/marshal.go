// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/graph"
	"github.com/das-labor/panopticon/il"
)

type nodeJSON struct {
	ID    int             `json:"id"`
	Block []il.Mnemonic   `json:"block,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

type edgeJSON struct {
	From  int      `json:"from"`
	To    int      `json:"to"`
	Guard il.Guard `json:"guard"`
}

type procJSON struct {
	Name  string     `json:"name"`
	Entry int        `json:"entry"`
	Nodes []nodeJSON `json:"nodes"`
	Edges []edgeJSON `json:"edges"`
}

// MarshalJSON encodes the procedure's graph with dense node ids.
func (p *Procedure) MarshalJSON() ([]byte, error) {
	j := procJSON{Name: p.Name, Entry: -1}
	ids := map[graph.NodeID]int{}

	for i, v := range p.CFG.Nodes() {
		ids[v] = i
		n := p.CFG.Node(v)
		nj := nodeJSON{ID: i}
		if n.IsBlock() {
			nj.Block = n.Block.Mnemonics()
			if len(nj.Block) == 0 {
				nj.Block = []il.Mnemonic{}
			}
		} else {
			raw, err := il.MarshalValue(n.Value)
			if err != nil {
				return nil, err
			}
			nj.Value = raw
		}
		j.Nodes = append(j.Nodes, nj)
	}

	for _, e := range p.CFG.Edges() {
		j.Edges = append(j.Edges, edgeJSON{
			From:  ids[p.CFG.Source(e)],
			To:    ids[p.CFG.Target(e)],
			Guard: p.CFG.Edge(e),
		})
	}

	if ent, ok := p.Entry(); ok {
		j.Entry = ids[ent]
	}

	return json.Marshal(j)
}

// UnmarshalJSON decodes a procedure.
func (p *Procedure) UnmarshalJSON(data []byte) error {
	var j procJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	np := NewProcedure(j.Name)
	ids := map[int]graph.NodeID{}

	for _, nj := range j.Nodes {
		switch {
		case nj.Value != nil:
			v, err := il.UnmarshalValue(nj.Value)
			if err != nil {
				return err
			}
			ids[nj.ID] = np.CFG.InsertNode(ValueNode(v))
		default:
			ids[nj.ID] = np.AddBlock(NewBasicBlock(nj.Block...))
		}
	}

	for _, ej := range j.Edges {
		from, ok := ids[ej.From]
		if !ok {
			return errors.Errorf("edge references unknown node %d", ej.From)
		}
		to, ok := ids[ej.To]
		if !ok {
			return errors.Errorf("edge references unknown node %d", ej.To)
		}
		np.Link(from, to, ej.Guard)
	}

	if j.Entry >= 0 {
		v, ok := ids[j.Entry]
		if !ok {
			return errors.Errorf("entry references unknown node %d", j.Entry)
		}
		np.SetEntry(v)
	}

	*p = *np
	return nil
}

type programJSON struct {
	Name       string       `json:"name"`
	Region     string       `json:"region"`
	Procedures []*Procedure `json:"procedures"`
	Calls      [][2]int     `json:"calls,omitempty"`
}

// MarshalJSON encodes the program with call edges as procedure
// indices.
func (pr *Program) MarshalJSON() ([]byte, error) {
	j := programJSON{Name: pr.Name, Region: pr.Region, Procedures: pr.procs}

	idx := map[*Procedure]int{}
	for i, p := range pr.procs {
		idx[p] = i
	}
	for from, tos := range pr.calls {
		for _, to := range tos {
			j.Calls = append(j.Calls, [2]int{idx[from], idx[to]})
		}
	}

	return json.Marshal(j)
}

// UnmarshalJSON decodes a program.
func (pr *Program) UnmarshalJSON(data []byte) error {
	var j programJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	np := NewProgram(j.Name, j.Region)
	np.procs = j.Procedures
	for _, c := range j.Calls {
		if c[0] < 0 || c[0] >= len(np.procs) || c[1] < 0 || c[1] >= len(np.procs) {
			return errors.Errorf("call edge %v out of range", c)
		}
		np.AddCall(np.procs[c[0]], np.procs[c[1]])
	}

	*pr = *np
	return nil
}
