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

package graphutil_test

import (
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"github.com/awslabs/ar-jvm-tools/internal/graphutil"
	"github.com/google/go-cmp/cmp"
	"github.com/yourbasic/graph"
)

func buildDigraph(n int, edges [][2]int) *graphutil.Digraph {
	g := graphutil.NewDigraph(n)
	for _, e := range edges {
		g.AddEdge(e[0], e[1])
	}
	return g
}

func cycleStrings(cycles [][]int) []string {
	results := make([]string, len(cycles))
	for i, cycle := range cycles {
		results[i] = strings.Join(funcutil.Map(cycle, strconv.Itoa), "")
	}
	sort.Strings(results)
	return results
}

func TestFindAllElementaryCycles(t *testing.T) {
	tests := []struct {
		name     string
		order    int
		edges    [][2]int
		expected []string
	}{
		{"acyclic", 4, [][2]int{{0, 1}, {1, 2}, {0, 3}}, []string{}},
		{"self-loop", 2, [][2]int{{0, 1}, {1, 1}}, []string{"11"}},
		{"triangle", 3, [][2]int{{0, 1}, {1, 2}, {2, 0}}, []string{"0120"}},
		{
			"shared nodes",
			11,
			[][2]int{{2, 4}, {4, 2}, {2, 5}, {5, 10}, {10, 2}, {2, 6}, {6, 4}, {3, 8}, {8, 3}, {3, 9}, {9, 8}},
			[]string{"242", "25102", "2642", "383", "3983"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := buildDigraph(test.order, test.edges)
			stats := graph.Check(g)
			t.Logf("size: %d, loops: %d, isolated: %d", stats.Size, stats.Loops, stats.Isolated)
			got := cycleStrings(graphutil.FindAllElementaryCycles(g))
			if diff := cmp.Diff(test.expected, got); diff != "" {
				t.Errorf("cycles mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTopologicalRank(t *testing.T) {
	// 0 -> {1 <-> 2} -> 3, with a self-loop on 3
	g := buildDigraph(4, [][2]int{{0, 1}, {1, 2}, {2, 1}, {2, 3}, {3, 3}})
	rank := g.TopologicalRank()
	if rank[1] != rank[2] {
		t.Errorf("nodes of a cycle should share a rank, got %v", rank)
	}
	if !(rank[0] < rank[1] && rank[2] < rank[3]) {
		t.Errorf("ranks should follow the topological order, got %v", rank)
	}
}

func TestReachableFrom(t *testing.T) {
	g := buildDigraph(5, [][2]int{{0, 1}, {1, 2}, {3, 4}, {2, 2}})
	if diff := cmp.Diff([]int{0, 1, 2}, g.ReachableFrom(0)); diff != "" {
		t.Errorf("reachable mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4}, g.ReachableFrom(4)); diff != "" {
		t.Errorf("reachable mismatch (-want +got):\n%s", diff)
	}
}

func TestTreePathLabels(t *testing.T) {
	root := graphutil.NewTree("a")
	b := root.AddChild("b")
	c := b.AddChild("c")
	root.AddChild("d")
	if c.Depth() != 2 {
		t.Errorf("expected depth 2, got %d", c.Depth())
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, c.PathLabels()); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, root.PathLabels()); diff != "" {
		t.Errorf("path of the root mismatch (-want +got):\n%s", diff)
	}
}
