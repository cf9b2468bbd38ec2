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

package taint_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/callgraph"
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
	"github.com/awslabs/ar-jvm-tools/analysis/jvm"
	"github.com/awslabs/ar-jvm-tools/analysis/taint"
	"github.com/google/go-cmp/cmp"
)

func TestTaintAbstractStateLattice(t *testing.T) {
	states := []taint.TaintAbstractState{
		{},
		taint.NewTaintAbstractState(),
		taint.NewTaintAbstractState(0),
		taint.NewTaintAbstractState(1),
		taint.NewTaintAbstractState(0, 1),
		taint.NewTaintAbstractState(1, 2, 300),
	}
	for _, a := range states {
		if !a.Join(a).Equal(a) {
			t.Errorf("%v join %v should be %v", a, a, a)
		}
		for _, b := range states {
			ab := a.Join(b)
			if !ab.Equal(b.Join(a)) {
				t.Errorf("join of %v and %v is not commutative", a, b)
			}
			if !a.IsLessOrEqual(ab) || !b.IsLessOrEqual(ab) {
				t.Errorf("%v is not an upper bound of %v and %v", ab, a, b)
			}
			if a.IsLessOrEqual(b) && b.IsLessOrEqual(a) && !a.Equal(b) {
				t.Errorf("%v and %v are both smaller than the other but not equal", a, b)
			}
			for _, c := range states {
				if !a.Join(b).Join(c).Equal(a.Join(b.Join(c))) {
					t.Errorf("join of %v, %v and %v is not associative", a, b, c)
				}
			}
		}
	}
	var bottom taint.TaintAbstractState
	if !bottom.IsBottom() || !taint.NewTaintAbstractState().IsBottom() || taint.NewTaintAbstractState(3).IsBottom() {
		t.Errorf("unexpected bottom elements")
	}
	s := taint.NewTaintAbstractState(2, 0, 5)
	if diff := cmp.Diff([]int{0, 2, 5}, s.Sources()); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 2}, s.Filter(func(id int) bool { return id < 3 }).Sources()); diff != "" {
		t.Errorf("filtered sources mismatch (-want +got):\n%s", diff)
	}
	if !s.Contains(5) || s.Contains(1) {
		t.Errorf("unexpected membership in %v", s)
	}
}

func TestTaintStatesAreImmutable(t *testing.T) {
	a := taint.NewTaintAbstractState(1)
	b := taint.NewTaintAbstractState(2)
	ab := a.Join(b)
	if a.Contains(2) || b.Contains(1) || !ab.Contains(1) || !ab.Contains(2) {
		t.Errorf("join modified its operands: %v %v %v", a, b, ab)
	}
}

func TestSourceAndSinkValidation(t *testing.T) {
	cid := config.NewCodeIdentifier("A", "m", "")
	if _, err := taint.NewTaintSink(cid, false, nil, nil, nil); err == nil {
		t.Errorf("a sink without sensitive position should be rejected")
	}
	if _, err := taint.NewTaintSink(cid, false, []int{0}, nil, nil); err == nil {
		t.Errorf("argument positions start at 1")
	}
	if _, err := taint.NewTaintSource("", cid, false, false, nil, nil); err == nil {
		t.Errorf("a source that taints nothing should be rejected")
	}
	src, err := taint.NewTaintSource("", cid, false, true, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if src.Name != "A.m" {
		t.Errorf("source name should default to its method, got %q", src.Name)
	}
	sink, err := taint.NewTaintSink(cid, true, nil, nil, func(s *taint.TaintSource) bool { return s.Name == "x" })
	if err != nil {
		t.Fatal(err)
	}
	if sink.ValidFor(src) {
		t.Errorf("sink should not be valid for %s", src)
	}
}

const problemConfig = `
taint-tracking-problems:
  - sources:
      - class: "^A$"
        method: "^source$"
        name: input
        taints-return: true
      - class: "^A$"
        method: "^fill$"
        name: fill
        taints-this: true
        taints-args: [1]
        taints-globals: ["A.g"]
      - class: "^A$"
        method: "^secret$"
        name: secret
        taints-return: true
    sinks:
      - class: "^A$"
        method: "^sink$"
        takes-args: [2]
        valid-sources: [input, fill]
      - class: "^A$"
        method: "^log$"
        takes-instance: true
        takes-globals: ["A.g"]
    trace-threshold: [secret]
`

func loadProblem(t *testing.T, content string) *taint.Problem {
	t.Helper()
	cfg, err := config.Parse([]byte(content))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	p, err := taint.NewProblem(cfg.TaintTrackingProblems[0])
	if err != nil {
		t.Fatalf("failed to build problem: %v", err)
	}
	return p
}

func TestNewProblem(t *testing.T) {
	p := loadProblem(t, problemConfig)
	names := []string{}
	for i, s := range p.Sources {
		if s.ID != i {
			t.Errorf("source %s has id %d, expected %d", s, s.ID, i)
		}
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"input", "fill", "secret"}, names); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2}, p.Threshold.Sources()); diff != "" {
		t.Errorf("threshold mismatch (-want +got):\n%s", diff)
	}
	sink := p.MatchingSinks(bytecode.MethodSignature{Class: "A", Name: "sink", Descriptor: "(II)V"})
	if len(sink) != 1 {
		t.Fatalf("expected one sink, got %v", sink)
	}
	if !sink[0].ValidFor(p.Source(0)) || sink[0].ValidFor(p.Source(2)) {
		t.Errorf("valid sources of the sink should be input and fill")
	}
	if !p.IsSourceOrSink(bytecode.MethodSignature{Class: "A", Name: "log"}) ||
		p.IsSourceOrSink(bytecode.MethodSignature{Class: "B", Name: "log"}) {
		t.Errorf("unexpected source or sink matching")
	}
}

func TestNewProblemErrors(t *testing.T) {
	for _, test := range []struct {
		name    string
		content string
		msg     string
	}{
		{"no sensitive position", `
taint-tracking-problems:
  - sinks:
      - method: sink
`, "no sensitive position"},
		{"unknown valid source", `
taint-tracking-problems:
  - sources:
      - method: source
        taints-return: true
    sinks:
      - method: sink
        takes-args: [1]
        valid-sources: [other]
`, "unknown valid source"},
		{"unknown threshold", `
taint-tracking-problems:
  - sources:
      - method: source
        taints-return: true
    trace-threshold: [other]
`, "trace threshold"},
		{"duplicate names", `
taint-tracking-problems:
  - sources:
      - method: a
        name: s
        taints-return: true
      - method: b
        name: s
        taints-return: true
`, "duplicate source name"},
	} {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(test.content))
			if err != nil {
				t.Fatal(err)
			}
			_, err = taint.NewProblem(cfg.TaintTrackingProblems[0])
			if err == nil || !strings.Contains(err.Error(), test.msg) {
				t.Errorf("expected error containing %q, got %v", test.msg, err)
			}
		})
	}
}

const program = `
classes:
  - name: A
    methods:
      - name: source
        descriptor: ()Ljava/lang/String;
        static: true
      - name: fill
        descriptor: (Ljava/lang/Object;)V
      - name: sink
        descriptor: (JLjava/lang/String;)V
        static: true
      - name: log
        descriptor: ()V
      - name: main
        descriptor: (LA;Ljava/lang/Object;)V
        static: true
        code: |
          aload_0
          aload_1
          invokevirtual A.fill(Ljava/lang/Object;)V
          lconst_0
          invokestatic A.source()Ljava/lang/String;
          invokestatic A.sink(JLjava/lang/String;)V
          aload_0
          invokevirtual A.log()V
          aload_1
          invokestatic lib/L.wrap(Ljava/lang/Object;)Ljava/lang/Object;
          pop
          return
`

var sigMain = bytecode.MethodSignature{Class: "A", Name: "main", Descriptor: "(LA;Ljava/lang/Object;)V"}

type fixture struct {
	problem *taint.Problem
	cfa     *cfa.CFA
	pool    *bytecode.ClassPool
}

func load(t *testing.T) fixture {
	t.Helper()
	pool, err := bytecode.LoadProgram([]byte(program))
	if err != nil {
		t.Fatalf("failed to load program: %v", err)
	}
	c, err := cfa.Build(pool, callgraph.Build(pool))
	if err != nil {
		t.Fatalf("failed to build cfa: %v", err)
	}
	return fixture{problem: loadProblem(t, problemConfig), cfa: c, pool: pool}
}

// run steps through main and returns the states before each instruction, by offset
func (f fixture) run(t *testing.T) map[int]*taint.State {
	t.Helper()
	sem := taint.Semantics{Problem: f.problem}
	entry, _ := f.cfa.FunctionEntryNode(sigMain)
	s := jvm.NewEntryState[taint.Value](f.pool.Method(sigMain), entry.ID, taint.NewHeap(heap.TreeModel), sem)
	transfer := jvm.NewTransferRelation[taint.Value](f.cfa, sem, nil)
	res := map[int]*taint.State{}
	// main is straight-line code: follow the normal successors
	for {
		n := f.cfa.Node(s.Node)
		res[n.Offset] = s
		var next *taint.State
		for _, e := range n.LeavingIntraproceduralEdges() {
			if f.cfa.Node(e.Target()).Kind != cfa.InstructionNode {
				continue
			}
			succ, err := transfer.Step(s, e)
			if err != nil {
				t.Fatalf("step failed: %v", err)
			}
			next = succ
		}
		if next == nil {
			return res
		}
		s = next
	}
}

func TestSourceSemantics(t *testing.T) {
	f := load(t)
	states := f.run(t)
	input := taint.NewTaintAbstractState(0)
	fill := taint.NewTaintAbstractState(1)

	// after fill, the content of the receiver and of the argument and A.g are tainted
	s := states[5]
	for _, slot := range []int{0, 1} {
		content := s.Heap.GetField(s.Local(slot), heap.ObjectField)
		if !content.Taint.Equal(fill) {
			t.Errorf("content of local %d should be tainted by fill, got %v", slot, content)
		}
		if !s.Local(slot).Taint.IsBottom() {
			t.Errorf("local %d itself should not be tainted", slot)
		}
	}
	if !s.Static("A.g").Taint.Equal(fill) {
		t.Errorf("A.g should be tainted by fill, got %v", s.Static("A.g"))
	}
	// the value returned by source is tainted
	top, _ := states[9].Peek(0)
	if !top.Taint.Equal(input) {
		t.Errorf("source should taint its return, got %v", top)
	}
	if top.Refs.Len() != 1 || top.Refs.Slice()[0].Origin.Kind != heap.Return {
		t.Errorf("source should return a reference created at the call, got %v", top.Refs)
	}
	// unknown calls return the taint of their arguments and of their content
	ret, _ := states[20].Peek(0)
	if !ret.Taint.Equal(fill) {
		t.Errorf("wrap should return the taint of the content of its argument, got %v", ret)
	}
}

func TestCheckSinks(t *testing.T) {
	f := load(t)
	states := f.run(t)
	var got []string
	for _, offset := range []int{0, 2, 9, 13} {
		findings, err := taint.CheckSinks(f.problem, f.cfa, states[offset])
		if err != nil {
			t.Fatal(err)
		}
		for _, finding := range findings {
			got = append(got, finding.Target.Name+" "+finding.Location.String()+" "+finding.Taint.String())
		}
	}
	// the first argument of sink, a long, is not sensitive; log takes its receiver and A.g
	expected := []string{
		"sink Stack0 {0}",
		fmt.Sprintf("log {param0@%d}.<object> {1}", entryID(t, f)),
		"log A.g {1}",
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

func entryID(t *testing.T, f fixture) cfa.NodeID {
	t.Helper()
	entry, ok := f.cfa.FunctionEntryNode(sigMain)
	if !ok {
		t.Fatal("no entry")
	}
	return entry.ID
}
