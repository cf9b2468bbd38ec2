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

package bam_test

import (
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bam"
	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/callgraph"
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
	"github.com/awslabs/ar-jvm-tools/analysis/jvm"
	"github.com/awslabs/ar-jvm-tools/analysis/taint"
	"github.com/google/go-cmp/cmp"
)

const program = `
classes:
  - name: Box
  - name: A
    methods:
      - name: source
        descriptor: ()Ljava/lang/String;
        static: true
      - name: get
        descriptor: ()Ljava/lang/String;
        static: true
        code: |
          invokestatic A.source()Ljava/lang/String;
          areturn
      - name: main
        descriptor: ()V
        static: true
        code: |
          invokestatic A.get()Ljava/lang/String;
          astore_0
          return
      - name: id
        descriptor: (I)I
        static: true
        code: |
          iload_0
          ireturn
      - name: twice
        descriptor: ()V
        static: true
        code: |
          iconst_0
          invokestatic A.id(I)I
          pop
          iconst_0
          invokestatic A.id(I)I
          pop
          return
      - name: fact
        descriptor: (I)I
        static: true
        code: |
          iload_0
          ifeq base
          iload_0
          iconst_1
          isub
          invokestatic A.fact(I)I
          iload_0
          imul
          ireturn
          base: iconst_1
          ireturn
      - name: set
        descriptor: (LBox;)V
        static: true
        code: |
          aload_0
          invokestatic A.source()Ljava/lang/String;
          putfield Box.v Ljava/lang/String;
          return
      - name: boxed
        descriptor: ()V
        static: true
        code: |
          new Box
          dup
          invokestatic A.set(LBox;)V
          getfield Box.v Ljava/lang/String;
          astore_0
          return
      - name: relay
        descriptor: ()Ljava/lang/String;
        static: true
        code: |
          invokestatic A.get()Ljava/lang/String;
          areturn
      - name: warm
        descriptor: ()V
        static: true
        code: |
          invokestatic A.relay()Ljava/lang/String;
          pop
          return
      - name: warmThenRelay
        descriptor: ()V
        static: true
        code: |
          invokestatic A.warm()V
          invokestatic A.relay()Ljava/lang/String;
          astore_0
          return
      - name: legacy
        descriptor: ()V
        static: true
        code: |
          jsr l
          l: return
      - name: callsLegacy
        descriptor: ()V
        static: true
        code: |
          invokestatic A.legacy()V
          return
`

const taintConfig = `
taint-tracking-problems:
  - sources:
      - method: "^source$"
        taints-return: true
    sinks:
      - method: "^sink$"
        takes-args: [1]
`

func sig(name, desc string) bytecode.MethodSignature {
	return bytecode.MethodSignature{Class: "A", Name: name, Descriptor: desc}
}

type fixture struct {
	pool    *bytecode.ClassPool
	cfa     *cfa.CFA
	problem *taint.Problem
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
	cfg, err := config.Parse([]byte(taintConfig))
	if err != nil {
		t.Fatal(err)
	}
	p, err := taint.NewProblem(cfg.TaintTrackingProblems[0])
	if err != nil {
		t.Fatal(err)
	}
	return fixture{pool: pool, cfa: c, problem: p}
}

func (f fixture) analyzer(depth int) *bam.Analyzer[taint.Value] {
	return bam.NewAnalyzer[taint.Value](f.cfa, f.pool, taint.Semantics{Problem: f.problem},
		bam.Options{MaxCallStackDepth: depth, Excluded: f.problem.IsSourceOrSink}, config.NewDiscardLogGroup())
}

func (f fixture) run(t *testing.T, a *bam.Analyzer[taint.Value], m bytecode.MethodSignature) (*bam.Block[taint.Value],
	error) {
	t.Helper()
	entry, ok := f.cfa.FunctionEntryNode(m)
	if !ok {
		t.Fatalf("no entry for %s", m)
	}
	init := jvm.NewEntryState[taint.Value](f.pool.Method(m), entry.ID, taint.NewHeap(heap.TreeModel),
		taint.Semantics{Problem: f.problem})
	return a.Run(m, init)
}

func (f fixture) stateAt(t *testing.T, b *bam.Block[taint.Value], offset int) *taint.State {
	t.Helper()
	n, ok := f.cfa.FunctionNode(b.Signature, offset)
	if !ok {
		t.Fatalf("no node at %s@%d", b.Signature, offset)
	}
	states := b.StatesAt(n.ID)
	if len(states) != 1 {
		t.Fatalf("expected one state at %s@%d, got %d", b.Signature, offset, len(states))
	}
	return states[0]
}

func TestCallStackDepth(t *testing.T) {
	for _, test := range []struct {
		depth   int
		tainted bool
		blocks  int
	}{
		{-1, true, 2},
		{0, false, 1},
		{1, true, 2},
	} {
		f := load(t)
		a := f.analyzer(test.depth)
		b, err := f.run(t, a, sig("main", "()V"))
		if err != nil {
			t.Fatalf("depth %d: %v", test.depth, err)
		}
		top, err := f.stateAt(t, b, 3).Peek(0)
		if err != nil {
			t.Fatal(err)
		}
		if top.Taint.IsBottom() == test.tainted {
			t.Errorf("depth %d: value returned by get is %v", test.depth, top)
		}
		if len(a.Blocks()) != test.blocks {
			t.Errorf("depth %d: expected %d blocks, got %d", test.depth, test.blocks, len(a.Blocks()))
		}
	}
}

func TestBlocksAreMemoized(t *testing.T) {
	f := load(t)
	a := f.analyzer(-1)
	b, err := f.run(t, a, sig("twice", "()V"))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Blocks()) != 2 {
		t.Fatalf("expected the block of id to be reused, got %d blocks", len(a.Blocks()))
	}
	id := a.Blocks()[1]
	if len(b.Calls) != 2 {
		t.Errorf("expected two expanded invocations, got %v", b.Calls)
	}
	for node, callees := range b.Calls {
		if len(callees) != 1 || callees[0] != id {
			t.Errorf("invocation at %d should expand the block of id", node)
		}
	}
	if callers := a.Callers(id); len(callers) != 2 || callers[0].Block != b {
		t.Errorf("unexpected callers %v", callers)
	}
}

func TestRecursiveCallsAreNotExpanded(t *testing.T) {
	f := load(t)
	a := f.analyzer(-1)
	b, err := f.run(t, a, sig("fact", "(I)I"))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Blocks()) != 1 || len(b.Calls) != 0 {
		t.Errorf("recursive call should not be expanded")
	}
	if len(b.ReturnStates(f.cfa)) != 1 {
		t.Errorf("fact should return")
	}
}

func TestHeapFlowsThroughCalls(t *testing.T) {
	f := load(t)
	a := f.analyzer(-1)
	b, err := f.run(t, a, sig("boxed", "()V"))
	if err != nil {
		t.Fatal(err)
	}
	// after getfield, at astore_0
	v, err := f.stateAt(t, b, 10).Peek(0)
	if err != nil {
		t.Fatal(err)
	}
	if v.Taint.IsBottom() {
		t.Errorf("field written by the callee should be tainted, got %v", v)
	}
}

func TestAbortInCallee(t *testing.T) {
	f := load(t)
	a := f.analyzer(-1)
	b, err := f.run(t, a, sig("callsLegacy", "()V"))
	if err == nil || !strings.Contains(err.Error(), "unsupported instruction") {
		t.Errorf("expected the abort of the callee to abort the analysis, got %v", err)
	}
	if b.Result.IsCompleted() {
		t.Errorf("caller block should be aborted")
	}
}

func TestBlocksAnalyzedDeeperAreNotReused(t *testing.T) {
	f := load(t)
	a := f.analyzer(2)
	b, err := f.run(t, a, sig("warmThenRelay", "()V"))
	if err != nil {
		t.Fatal(err)
	}
	// at astore_0, after the second call to relay
	v, err := f.stateAt(t, b, 6).Peek(0)
	if err != nil {
		t.Fatal(err)
	}
	if v.Taint.IsBottom() {
		t.Errorf("relay called at depth 1 should expand get, got %v", v)
	}
	var relays []int
	for _, blk := range a.Blocks() {
		if blk.Signature == sig("relay", "()Ljava/lang/String;") {
			relays = append(relays, blk.Budget)
		}
	}
	if diff := cmp.Diff([]int{0, 1}, relays); diff != "" {
		t.Errorf("unexpected budgets of the blocks of relay (-want +got):\n%s", diff)
	}
}

func TestRecursiveMethodsOfTheCallGraph(t *testing.T) {
	f := load(t)
	recursive := callgraph.Build(f.pool).RecursiveMethods()
	if diff := cmp.Diff(map[bytecode.MethodSignature]bool{sig("fact", "(I)I"): true}, recursive); diff != "" {
		t.Fatalf("unexpected recursive methods (-want +got):\n%s", diff)
	}
	for _, test := range []struct {
		method bytecode.MethodSignature
		blocks int
	}{
		{sig("fact", "(I)I"), 1},
		{sig("twice", "()V"), 2},
		{sig("warmThenRelay", "()V"), 4},
	} {
		a := bam.NewAnalyzer[taint.Value](f.cfa, f.pool, taint.Semantics{Problem: f.problem}, bam.Options{
			MaxCallStackDepth: -1,
			Excluded:          f.problem.IsSourceOrSink,
			Recursive:         recursive,
		}, config.NewDiscardLogGroup())
		if _, err := f.run(t, a, test.method); err != nil {
			t.Fatalf("%s: %v", test.method, err)
		}
		if len(a.Blocks()) != test.blocks {
			t.Errorf("%s: expected %d blocks, got %d", test.method, test.blocks, len(a.Blocks()))
		}
	}
}
