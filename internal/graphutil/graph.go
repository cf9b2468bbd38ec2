// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graphutil

import (
	"sort"

	"github.com/yourbasic/graph"
	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// Digraph is a directed graph over the dense vertex set {0, ..., Order()-1}. It is the common representation used
// to run the graph algorithms of the yourbasic and gonum libraries on control-flow automata and call graphs.
// It implements the graph.Iterator interface of github.com/yourbasic/graph.
type Digraph struct {
	// edges[v] is the set of successors of v
	edges []map[int]bool
}

// NewDigraph returns a graph with n vertices and no edges
func NewDigraph(n int) *Digraph {
	edges := make([]map[int]bool, n)
	for i := range edges {
		edges[i] = map[int]bool{}
	}
	return &Digraph{edges: edges}
}

// AddEdge adds a directed edge from v to w. Adding an existing edge is a no-op.
func (g *Digraph) AddEdge(v, w int) {
	g.edges[v][w] = true
}

// HasEdge returns true if there is an edge from v to w
func (g *Digraph) HasEdge(v, w int) bool {
	return v >= 0 && v < len(g.edges) && g.edges[v][w]
}

// Order implements the graph.Iterator interface
func (g *Digraph) Order() int {
	return len(g.edges)
}

// Visit implements the graph.Iterator interface. Successors are visited in increasing order.
func (g *Digraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	for _, w := range g.Successors(v) {
		if do(w, 1) {
			return true
		}
	}
	return false
}

// Successors returns the successors of v in increasing order
func (g *Digraph) Successors(v int) []int {
	if v < 0 || v >= len(g.edges) {
		return nil
	}
	succ := make([]int, 0, len(g.edges[v]))
	for w := range g.edges[v] {
		succ = append(succ, w)
	}
	sort.Ints(succ)
	return succ
}

// Subgraph returns a new graph with the same order, keeping only the edges whose endpoints both satisfy include.
// Vertex indices stay consistent across subgraphs.
func (g *Digraph) Subgraph(include func(v int) bool) *Digraph {
	sub := NewDigraph(g.Order())
	for v, succ := range g.edges {
		if !include(v) {
			continue
		}
		for w := range succ {
			if include(w) {
				sub.edges[v][w] = true
			}
		}
	}
	return sub
}

// StrongComponents returns the strongly connected components of the graph, computed by the yourbasic library.
func (g *Digraph) StrongComponents() [][]int {
	return graph.StrongComponents(g)
}

// Gonum returns a copy of the graph as a gonum simple directed graph. Self-loops are dropped, since gonum's simple
// graphs cannot represent them.
func (g *Digraph) Gonum() *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for v := range g.edges {
		dg.AddNode(simple.Node(v))
	}
	for v, succ := range g.edges {
		for w := range succ {
			if v != w {
				dg.SetEdge(dg.NewEdge(simple.Node(v), simple.Node(w)))
			}
		}
	}
	return dg
}

// TopologicalRank returns, for each vertex, the rank of its strongly connected component in a topological order of
// the condensed graph. Vertices in the same component share the same rank, and if there is a path from v to w
// that does not stay inside one component, then rank[v] < rank[w].
func (g *Digraph) TopologicalRank() []int {
	// TarjanSCC returns the components in reverse topological order
	sccs := topo.TarjanSCC(g.Gonum())
	rank := make([]int, g.Order())
	for i, scc := range sccs {
		for _, n := range scc {
			rank[n.ID()] = len(sccs) - 1 - i
		}
	}
	return rank
}

// ReachableFrom returns the vertices reachable from v (including v) in increasing order.
func (g *Digraph) ReachableFrom(v int) []int {
	if v < 0 || v >= g.Order() {
		return nil
	}
	dg := g.Gonum()
	var reached []int
	bf := traverse.BreadthFirst{
		Visit: func(n gonum.Node) { reached = append(reached, int(n.ID())) },
	}
	bf.Walk(dg, simple.Node(v), nil)
	sort.Ints(reached)
	return reached
}
