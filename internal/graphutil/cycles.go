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

import "sort"

// FindAllElementaryCycles finds all elementary cycles in the graph g. Each cycle is returned as the list of its
// vertices, starting and ending with its least vertex.
// This uses Donald B. Johnson's algorithm presented in
// "Finding All The Elementary Circuits of a Directed Graph", 1975
func FindAllElementaryCycles(g *Digraph) [][]int {
	s := &cycleState{cycles: [][]int{}}
	start := 0
	for start < g.Order() {
		lowerBound := start
		sub := g.Subgraph(func(v int) bool { return v >= lowerBound })
		least := -1
		var leastComponent []int
		for _, component := range sub.StrongComponents() {
			if len(component) == 1 && !sub.HasEdge(component[0], component[0]) {
				continue
			}
			sort.Ints(component)
			if least < 0 || component[0] < least {
				least = component[0]
				leastComponent = component
			}
		}
		if least < 0 {
			return s.cycles
		}
		inComponent := make(map[int]bool, len(leastComponent))
		for _, v := range leastComponent {
			inComponent[v] = true
		}
		s.reset()
		s.circuit(least, least, sub.Subgraph(func(v int) bool { return inComponent[v] }))
		start = least + 1
	}
	return s.cycles
}

type cycleState struct {
	blocked map[int]bool
	blist   map[int]map[int]bool
	stack   []int
	cycles  [][]int
}

func (s *cycleState) reset() {
	s.blocked = map[int]bool{}
	s.blist = map[int]map[int]bool{}
	s.stack = []int{}
}

func (s *cycleState) unblock(u int) {
	s.blocked[u] = false
	for w := range s.blist[u] {
		delete(s.blist[u], w)
		if s.blocked[w] {
			s.unblock(w)
		}
	}
}

func (s *cycleState) circuit(v int, start int, g *Digraph) bool {
	found := false
	s.stack = append(s.stack, v)
	s.blocked[v] = true
	for _, w := range g.Successors(v) {
		if w == start {
			cycle := make([]int, len(s.stack), len(s.stack)+1)
			copy(cycle, s.stack)
			cycle = append(cycle, w)
			s.cycles = append(s.cycles, cycle)
			found = true
		} else if !s.blocked[w] {
			if s.circuit(w, start, g) {
				found = true
			}
		}
	}

	if found {
		s.unblock(v)
	} else {
		for _, w := range g.Successors(v) {
			if s.blist[w] == nil {
				s.blist[w] = map[int]bool{}
			}
			s.blist[w][v] = true
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
	return found
}
