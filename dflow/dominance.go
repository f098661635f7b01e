// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dflow implements the dataflow analyses run over a
// procedure's control-transfer graph: dominance, liveness and the
// transformation into static single assignment form.
package dflow

import (
	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/graph"
	"github.com/das-labor/panopticon/proc"
)

// Dom is the dominance information of a procedure: the immediate
// dominator of every reachable node, the dominator-tree children and
// the dominance frontiers. It carries the procedure version it was
// computed for.
type Dom struct {
	Root      graph.NodeID
	IDom      map[graph.NodeID]graph.NodeID
	Frontiers map[graph.NodeID][]graph.NodeID
	Version   uint64

	children map[graph.NodeID][]graph.NodeID
}

// Children returns the dominator-tree children of v in a stable order.
func (d *Dom) Children(v graph.NodeID) []graph.NodeID { return d.children[v] }

// Dominance runs Lengauer–Tarjan over the procedure's graph rooted at
// the entry and derives the dominance frontiers.
func Dominance(p *proc.Procedure) (*Dom, error) {
	root, ok := p.Entry()
	if !ok {
		return nil, errors.New("procedure has no entry")
	}

	g := p.CFG

	// depth-first numbering
	var vertex []graph.NodeID
	dfnum := map[graph.NodeID]int{}
	parent := map[graph.NodeID]graph.NodeID{}

	var dfs func(v graph.NodeID)
	dfs = func(v graph.NodeID) {
		dfnum[v] = len(vertex)
		vertex = append(vertex, v)
		for _, e := range g.OutEdges(v) {
			w := g.Target(e)
			if _, seen := dfnum[w]; !seen {
				parent[w] = v
				dfs(w)
			}
		}
	}
	dfs(root)

	semi := map[graph.NodeID]int{}
	idom := map[graph.NodeID]graph.NodeID{}
	samedom := map[graph.NodeID]graph.NodeID{}
	ancestor := map[graph.NodeID]graph.NodeID{}
	best := map[graph.NodeID]graph.NodeID{}
	bucket := map[graph.NodeID][]graph.NodeID{}

	for _, v := range vertex {
		semi[v] = dfnum[v]
		best[v] = v
	}

	var eval func(v graph.NodeID) graph.NodeID
	eval = func(v graph.NodeID) graph.NodeID {
		a, ok := ancestor[v]
		if !ok {
			return best[v]
		}
		if _, ok := ancestor[a]; ok {
			b := eval(a)
			ancestor[v] = ancestor[a]
			if semi[b] < semi[best[v]] {
				best[v] = b
			}
		}
		return best[v]
	}

	for i := len(vertex) - 1; i >= 1; i-- {
		w := vertex[i]
		par := parent[w]

		for _, e := range g.InEdges(w) {
			u := g.Source(e)
			if _, reach := dfnum[u]; !reach {
				continue
			}
			var s int
			if dfnum[u] <= dfnum[w] {
				s = dfnum[u]
			} else {
				s = semi[eval(u)]
			}
			if s < semi[w] {
				semi[w] = s
			}
		}
		bucket[vertex[semi[w]]] = append(bucket[vertex[semi[w]]], w)
		ancestor[w] = par

		for _, v := range bucket[par] {
			u := eval(v)
			if semi[u] < semi[v] {
				samedom[v] = u
			} else {
				idom[v] = par
			}
		}
		bucket[par] = nil
	}

	for i := 1; i < len(vertex); i++ {
		w := vertex[i]
		if u, ok := samedom[w]; ok {
			idom[w] = idom[u]
		}
	}
	idom[root] = root

	d := &Dom{
		Root:      root,
		IDom:      idom,
		Frontiers: map[graph.NodeID][]graph.NodeID{},
		Version:   p.Version(),
		children:  map[graph.NodeID][]graph.NodeID{},
	}

	for i := 1; i < len(vertex); i++ {
		w := vertex[i]
		d.children[idom[w]] = append(d.children[idom[w]], w)
	}

	// dominance frontiers: n is in the frontier of every node on the
	// path from a predecessor of n up to, but excluding, idom(n)
	for _, n := range vertex {
		if g.InDegree(n) < 2 {
			continue
		}
		for _, e := range g.InEdges(n) {
			runner := g.Source(e)
			if _, reach := dfnum[runner]; !reach {
				continue
			}
			for runner != idom[n] {
				addFrontier(d, runner, n)
				runner = idom[runner]
			}
		}
	}

	return d, nil
}

func addFrontier(d *Dom, runner, n graph.NodeID) {
	for _, x := range d.Frontiers[runner] {
		if x == n {
			return
		}
	}
	d.Frontiers[runner] = append(d.Frontiers[runner], n)
}
