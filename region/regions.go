// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"sort"

	"github.com/das-labor/panopticon/graph"
)

// Regions models memory maps: a digraph of regions where an edge from
// an outer region to an inner one, labelled with a bound, means the
// inner region is mapped over that slice of the outer one.
type Regions = graph.Graph[*Region, Bound]

// NewRegions returns an empty regions graph.
func NewRegions() *Regions {
	return graph.New[*Region, Bound]()
}

// Root returns the region that no other region maps, i.e. the one with
// no incoming edges.
func Root(regs *Regions) (graph.NodeID, bool) {
	for _, v := range regs.Nodes() {
		if regs.InDegree(v) == 0 {
			return v, true
		}
	}
	return graph.NilNode, false
}

// A Projected is one piece of the flattened regions graph: a slice
// Bound of Region, in Region's own coordinates, that no deeper region
// shadows.
type Projected struct {
	Bound  Bound
	Region *Region
}

// Projection flattens the regions graph into a sequence of (bound,
// region) pairs in depth-first address order. Inner regions shadow the
// slices of the outer regions they cover; each bound is in the
// coordinates of the region it names, not in root coordinates.
func Projection(regs *Regions) []Projected {
	var ret []Projected
	visited := map[graph.NodeID]bool{}

	var step func(v graph.NodeID)
	step = func(v graph.NodeID) {
		r := regs.Node(v)
		es := append([]graph.EdgeID(nil), regs.OutEdges(v)...)
		sort.Slice(es, func(i, j int) bool {
			return regs.Edge(es[i]).Lower < regs.Edge(es[j]).Lower
		})

		var last Offset
		for _, e := range es {
			b := regs.Edge(e)
			nx := regs.Target(e)

			if last < b.Lower {
				ret = append(ret, Projected{Bound: Bound{Lower: last, Upper: b.Lower}, Region: r})
			}
			last = b.Upper

			if !visited[nx] {
				visited[nx] = true
				step(nx)
			}
		}

		if last < r.Size() {
			ret = append(ret, Projected{Bound: Bound{Lower: last, Upper: r.Size()}, Region: r})
		}
	}

	if root, ok := Root(regs); ok {
		visited[root] = true
		step(root)
	}
	return ret
}

// Compose reads the whole regions graph as one slab in root
// coordinates: every mapped region's bytes replace the slice of its
// parent it covers.
func Compose(regs *Regions) Slab {
	root, ok := Root(regs)
	if !ok {
		return Slab{}
	}

	var step func(v graph.NodeID) Slab
	step = func(v graph.NodeID) Slab {
		sl := regs.Node(v).Read()

		es := append([]graph.EdgeID(nil), regs.OutEdges(v)...)
		sort.Slice(es, func(i, j int) bool {
			return regs.Edge(es[i]).Lower < regs.Edge(es[j]).Lower
		})

		for _, e := range es {
			b := regs.Edge(e)
			child := step(regs.Target(e))

			if b.Lower >= sl.Size() {
				continue
			}
			hi := b.Upper
			if hi > sl.Size() {
				hi = sl.Size()
			}

			mid := child.Cut(0, hi-b.Lower)
			if mid.Size() < hi-b.Lower {
				mid = Combine(mid, sl.Cut(b.Lower+mid.Size(), hi))
			}

			sl = Combine(Combine(sl.Cut(0, b.Lower), mid), sl.Cut(hi, sl.Size()))
		}
		return sl
	}

	return step(root)
}

// FindRegion returns the node of the region with the given name.
func FindRegion(regs *Regions, name string) (graph.NodeID, bool) {
	return regs.Find(func(r *Region) bool { return r.Name() == name })
}
