// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/graph"
	"github.com/das-labor/panopticon/proc"
	"github.com/das-labor/panopticon/region"
)

type tryteJSON struct {
	Byte    byte `json:"byte"`
	Defined bool `json:"defined"`
}

type layerJSON struct {
	Name   string               `json:"name"`
	Kind   string               `json:"kind"` // blob, sparse, undefined
	Data   []byte               `json:"data,omitempty"`
	Size   region.Offset        `json:"size,omitempty"`
	Sparse map[string]tryteJSON `json:"sparse,omitempty"`
}

func layerToJSON(l *region.Layer) layerJSON {
	switch {
	case l.IsUndefined():
		return layerJSON{Name: l.Name(), Kind: "undefined", Size: l.UndefSize()}
	case l.Sparse() != nil:
		m := map[string]tryteJSON{}
		for off, t := range l.Sparse() {
			m[offsetKey(off)] = tryteJSON{Byte: t.Byte, Defined: t.Defined}
		}
		return layerJSON{Name: l.Name(), Kind: "sparse", Sparse: m}
	default:
		return layerJSON{Name: l.Name(), Kind: "blob", Data: l.Bytes()}
	}
}

func layerFromJSON(j layerJSON) (*region.Layer, error) {
	switch j.Kind {
	case "undefined":
		return region.NewUndefinedLayer(j.Name, j.Size), nil
	case "sparse":
		l := region.NewSparseLayer(j.Name)
		for k, t := range j.Sparse {
			off, err := parseOffsetKey(k)
			if err != nil {
				return nil, err
			}
			if err := l.Write(off, region.Tryte{Byte: t.Byte, Defined: t.Defined}); err != nil {
				return nil, err
			}
		}
		return l, nil
	case "blob":
		return region.NewBytesLayer(j.Name, j.Data), nil
	default:
		return nil, errors.Errorf("unknown layer kind %q", j.Kind)
	}
}

type stackJSON struct {
	Bound region.Bound `json:"bound"`
	Layer layerJSON    `json:"layer"`
}

type regionJSON struct {
	Name  string      `json:"name"`
	Base  layerJSON   `json:"base"`
	Stack []stackJSON `json:"stack,omitempty"`
}

func regionToJSON(r *region.Region) regionJSON {
	j := regionJSON{Name: r.Name(), Base: layerToJSON(r.Base())}
	for _, e := range r.Stack() {
		j.Stack = append(j.Stack, stackJSON{Bound: e.Bound, Layer: layerToJSON(e.Layer)})
	}
	return j
}

func regionFromJSON(j regionJSON) (*region.Region, error) {
	base, err := layerFromJSON(j.Base)
	if err != nil {
		return nil, err
	}
	r := region.New(j.Name, base)
	for _, e := range j.Stack {
		l, err := layerFromJSON(e.Layer)
		if err != nil {
			return nil, err
		}
		r.Add(e.Bound, l)
	}
	return r, nil
}

type regionNodeJSON struct {
	ID     int        `json:"id"`
	Region regionJSON `json:"region"`
}

type regionEdgeJSON struct {
	From  int          `json:"from"`
	To    int          `json:"to"`
	Bound region.Bound `json:"bound"`
}

type commentJSON struct {
	Ref  region.Ref `json:"ref"`
	Text string     `json:"text"`
}

type uuidJSON struct {
	Program int    `json:"program"`
	Name    string `json:"name"`
}

type sessionJSON struct {
	RegionNodes []regionNodeJSON             `json:"region_nodes"`
	RegionEdges []regionEdgeJSON             `json:"region_edges"`
	Programs    []*proc.Program              `json:"programs,omitempty"`
	Comments    []commentJSON                `json:"comments,omitempty"`
	Structures  []Structure                  `json:"structures,omitempty"`
	UUIDs       map[string]uuidJSON          `json:"uuids,omitempty"`
	Overrides   map[string]map[string]uint64 `json:"overrides,omitempty"`
}

// MarshalJSON encodes the whole session. Memory-mapped blobs are
// stored by content.
func (s *Session) MarshalJSON() ([]byte, error) {
	j := sessionJSON{
		Programs:   s.Programs,
		Structures: s.Structures,
		UUIDs:      map[string]uuidJSON{},
		Overrides:  s.overrides,
	}

	ids := map[graph.NodeID]int{}
	for i, v := range s.Regions.Nodes() {
		ids[v] = i
		j.RegionNodes = append(j.RegionNodes, regionNodeJSON{ID: i, Region: regionToJSON(s.Regions.Node(v))})
	}
	for _, e := range s.Regions.Edges() {
		j.RegionEdges = append(j.RegionEdges, regionEdgeJSON{
			From:  ids[s.Regions.Source(e)],
			To:    ids[s.Regions.Target(e)],
			Bound: s.Regions.Edge(e),
		})
	}

	for ref, text := range s.Comments {
		j.Comments = append(j.Comments, commentJSON{Ref: ref, Text: text})
	}

	for uuid, p := range s.uuids {
		for i, prog := range s.Programs {
			if q, ok := prog.ByName(p.Name); ok && q == p {
				j.UUIDs[uuid] = uuidJSON{Program: i, Name: p.Name}
				break
			}
		}
	}

	return json.Marshal(j)
}

// UnmarshalJSON decodes a session.
func (s *Session) UnmarshalJSON(data []byte) error {
	var j sessionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	ns := New(region.NewRegions())
	ids := map[int]graph.NodeID{}

	for _, nj := range j.RegionNodes {
		r, err := regionFromJSON(nj.Region)
		if err != nil {
			return err
		}
		ids[nj.ID] = ns.Regions.InsertNode(r)
	}
	for _, ej := range j.RegionEdges {
		from, ok := ids[ej.From]
		if !ok {
			return errors.Errorf("region edge references unknown node %d", ej.From)
		}
		to, ok := ids[ej.To]
		if !ok {
			return errors.Errorf("region edge references unknown node %d", ej.To)
		}
		ns.Regions.InsertEdge(ej.Bound, from, to)
	}

	ns.Programs = j.Programs
	ns.Structures = j.Structures
	for _, c := range j.Comments {
		ns.Comments[c.Ref] = c.Text
	}
	if j.Overrides != nil {
		ns.overrides = j.Overrides
	}

	for uuid, u := range j.UUIDs {
		if u.Program < 0 || u.Program >= len(ns.Programs) {
			return errors.Errorf("uuid %s references unknown program %d", uuid, u.Program)
		}
		if p, ok := ns.Programs[u.Program].ByName(u.Name); ok {
			ns.uuids[uuid] = p
		}
	}
	ns.nextUUID = len(ns.uuids)

	*s = *ns
	return nil
}

// Save writes the session to path.
func (s *Session) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "cannot serialise session")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}
	return nil
}

// Open reads a session back from path.
func Open(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}
	s := New(region.NewRegions())
	if err := json.Unmarshal(data, s); err != nil {
		return nil, errors.Wrapf(err, "cannot parse %s", path)
	}
	return s, nil
}

func offsetKey(o region.Offset) string {
	return strconv.FormatUint(o, 10)
}

func parseOffsetKey(s string) (region.Offset, error) {
	o, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad offset key %q", s)
	}
	return o, nil
}
