// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/das-labor/panopticon/disasm"
	"github.com/das-labor/panopticon/graph"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/region"
)

// jumpOut records a control transfer leaving the mnemonic whose last
// byte keys it.
type jumpOut struct {
	target il.Rvalue
	guard  il.Guard
}

// jumpIn records a control transfer entering the offset that keys it.
type jumpIn struct {
	from  region.Offset
	guard il.Guard
}

// mnemKey returns the table key of a mnemonic: its last byte, or its
// lower bound for synthetic empty ranges.
func mnemKey(m *il.Mnemonic) region.Offset { return m.Area.Last() }

// Disassemble produces (or extends) a procedure whose basic blocks
// tile the region decoded from data, starting at offset start. Decode
// faults are recovered locally: failed or overlapping offsets are
// logged and dropped, and the result is a consistent partial
// procedure. It returns nil without error when nothing could be
// decoded.
func Disassemble[T disasm.Token, S any](p *Procedure, d *disasm.Disassembler[T, S], init S, temps *il.TempPool, data region.Slab, start region.Offset) (*Procedure, error) {
	todo := map[region.Offset]bool{start: true}
	mnems := map[region.Offset][]il.Mnemonic{}
	source := map[region.Offset][]jumpOut{}
	destination := map[region.Offset][]jumpIn{}

	// load existing mnemonics and jumps into the tables
	if p != nil {
		for _, v := range p.CFG.Nodes() {
			n := p.CFG.Node(v)
			if n.IsBlock() {
				for _, m := range n.Block.Mnemonics() {
					mnems[mnemKey(&m)] = append(mnems[mnemKey(&m)], m)
				}
			} else if c, ok := n.Value.(il.Constant); ok {
				todo[c.Value] = true
			}
		}

		for _, e := range p.CFG.Edges() {
			src := p.CFG.Node(p.CFG.Source(e))
			tgt := p.CFG.Node(p.CFG.Target(e))
			g := p.CFG.Edge(e)

			if !src.IsBlock() {
				continue
			}
			last := src.Block.Area().Last()

			switch {
			case tgt.IsBlock():
				lower := tgt.Block.Area().Lower
				source[last] = append(source[last], jumpOut{target: il.Const(lower), guard: g})
				destination[lower] = append(destination[lower], jumpIn{from: last, guard: g})
			default:
				if c, ok := tgt.Value.(il.Constant); ok {
					source[last] = append(source[last], jumpOut{target: c, guard: g})
					destination[c.Value] = append(destination[c.Value], jumpIn{from: last, guard: g})
				} else {
					source[last] = append(source[last], jumpOut{target: tgt.Value, guard: g})
				}
			}
		}
	}

	sortedKeys := func(m map[region.Offset][]il.Mnemonic) []region.Offset {
		ks := make([]region.Offset, 0, len(m))
		for k := range m {
			ks = append(ks, k)
		}
		sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
		return ks
	}

	// decode until the worklist drains
	for len(todo) > 0 {
		var cur region.Offset
		first := true
		for a := range todo {
			if first || a < cur {
				cur = a
				first = false
			}
		}
		delete(todo, cur)

		if cur >= data.Size() {
			log.WithFields(log.Fields{"offset": cur, "size": data.Size()}).
				Warn("seed offset beyond slab, dropped")
			continue
		}

		// first decoded mnemonic group at or after cur
		keys := sortedKeys(mnems)
		idx := sort.Search(len(keys), func(i int) bool { return keys[i] >= cur })

		var area region.Bound
		haveArea := false
		if idx < len(keys) {
			for _, m := range mnems[keys[idx]] {
				area = area.Hull(m.Area)
			}
			haveArea = true
		}

		switch {
		case !haveArea || !area.Contains(cur):
			limit := data.Size()
			if haveArea && area.Lower > cur {
				limit = area.Lower
			}

			st := disasm.NewState[T, S](cur, init, temps)
			if _, err := d.Match(&data, cur, limit, st); err != nil {
				log.WithFields(log.Fields{"offset": cur, "error": err}).
					Warn("no mnemonic matched, offset dropped")
				continue
			}

			last := cur
			for _, m := range st.Mnemonics {
				if k := mnemKey(&m); k > last {
					last = k
				}
				mnems[mnemKey(&m)] = append(mnems[mnemKey(&m)], m)
			}

			for _, j := range st.Jumps {
				if c, ok := j.Target.(il.Constant); ok {
					source[last] = append(source[last], jumpOut{target: c, guard: j.Guard})
					destination[c.Value] = append(destination[c.Value], jumpIn{from: last, guard: j.Guard})
					todo[c.Value] = true
				} else {
					source[last] = append(source[last], jumpOut{target: j.Target, guard: j.Guard})
				}
			}

		case area.Lower != cur:
			log.WithFields(log.Fields{"offset": cur, "lower": area.Lower, "upper": area.Upper}).
				Warn("overlapping mnemonics, offset skipped")
		}
	}

	if len(mnems) == 0 {
		return nil, nil
	}

	ret := NewProcedure("(unnamed proc)")
	if p != nil {
		ret.Name = p.Name
	}

	// fuse adjacent mnemonics into basic blocks
	keys := sortedKeys(mnems)
	blocks := map[region.Offset]graph.NodeID{} // keyed by last block byte

	makeBlock := func(from, to int) {
		var ms []il.Mnemonic
		for _, k := range keys[from:to] {
			ms = append(ms, mnems[k]...)
		}
		bb := NewBasicBlock(ms...)
		blocks[bb.Area().Last()] = ret.AddBlock(bb)
	}

	firstIdx := 0
	for i := 0; i < len(keys)-1; i++ {
		var area region.Bound
		for _, m := range mnems[keys[i]] {
			area = area.Hull(m.Area)
		}
		if area.Size() == 0 {
			continue
		}

		// next mnemonic isn't adjacent
		newBB := false
		var nextLower region.Bound
		for _, m := range mnems[keys[i+1]] {
			nextLower = nextLower.Hull(m.Area)
		}
		newBB = nextLower.Lower != area.Upper

		// or a jump leaves here to somewhere other than the next mnemonic
		for _, j := range source[area.Last()] {
			c, ok := j.target.(il.Constant)
			if !ok || c.Value != area.Upper {
				newBB = true
			}
		}

		// or a jump enters the next mnemonic from somewhere else
		for _, j := range destination[area.Upper] {
			if j.from != area.Last() {
				newBB = true
			}
		}

		if newBB {
			makeBlock(firstIdx, i+1)
			firstIdx = i + 1
		} else {
			delete(source, area.Last())
			delete(destination, area.Upper)
		}
	}
	makeBlock(firstIdx, len(keys))

	// connect basic blocks
	blockKeys := make([]region.Offset, 0, len(blocks))
	for k := range blocks {
		blockKeys = append(blockKeys, k)
	}
	sort.Slice(blockKeys, func(i, j int) bool { return blockKeys[i] < blockKeys[j] })

	blockAt := func(lower region.Offset) (graph.NodeID, bool) {
		i := sort.Search(len(blockKeys), func(i int) bool { return blockKeys[i] >= lower })
		if i == len(blockKeys) {
			return graph.NilNode, false
		}
		v := blocks[blockKeys[i]]
		if ret.CFG.Node(v).Block.Area().Lower != lower {
			return graph.NilNode, false
		}
		return v, true
	}

	srcKeys := make([]region.Offset, 0, len(source))
	for k := range source {
		srcKeys = append(srcKeys, k)
	}
	sort.Slice(srcKeys, func(i, j int) bool { return srcKeys[i] < srcKeys[j] })

	for _, k := range srcKeys {
		from, ok := blocks[k]
		if !ok {
			log.WithFields(log.Fields{"offset": k}).Warn("jump source not covered by a basic block")
			continue
		}
		for _, j := range source[k] {
			if c, isConst := j.target.(il.Constant); isConst {
				if to, found := blockAt(c.Value); found {
					ret.Link(from, to, j.guard)
					continue
				}
			}
			ret.LinkValue(from, j.target, j.guard)
		}
	}

	// set the entry: prefer the previous entry if it survived, else the
	// block covering the original start offset
	entryOff := start
	if p != nil {
		if bb, ok := p.EntryBlock(); ok {
			entryOff = bb.Area().Lower
		}
	}
	if v, ok := blockAt(entryOff); ok {
		ret.SetEntry(v)
	} else {
		i := sort.Search(len(blockKeys), func(i int) bool { return blockKeys[i] >= start })
		if i == len(blockKeys) {
			i = len(blockKeys) - 1
		}
		ret.SetEntry(blocks[blockKeys[i]])
	}

	if p == nil {
		if bb, ok := ret.EntryBlock(); ok {
			ret.Name = procName(bb.Area().Lower)
		}
	}

	return ret, nil
}
