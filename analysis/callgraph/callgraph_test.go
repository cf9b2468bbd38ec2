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

package callgraph

import (
	"sort"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"github.com/google/go-cmp/cmp"
)

const program = `
classes:
  - name: Shape
    interface: true
    methods:
      - name: area
        descriptor: ()I
        abstract: true
  - name: Square
    interfaces: [Shape]
    methods:
      - name: area
        descriptor: ()I
        code: |
          iconst_1
          ireturn
  - name: Circle
    interfaces: [Shape]
    methods:
      - name: area
        descriptor: ()I
        code: |
          iconst_2
          ireturn
  - name: Main
    methods:
      - name: main
        descriptor: (LShape;)V
        static: true
        code: |
          aload_0
          invokeinterface Shape.area()I
          pop
          iconst_0
          invokestatic Main.even(I)Z
          pop
          invokestatic java/lang/System.gc()V
          invokedynamic run()Ljava/lang/Runnable;
          pop
          return
      - name: even
        descriptor: (I)Z
        static: true
        code: |
          iload_0
          invokestatic Main.odd(I)Z
          ireturn
      - name: odd
        descriptor: (I)Z
        static: true
        code: |
          iload_0
          invokestatic Main.even(I)Z
          ireturn
      - name: loop
        descriptor: ()V
        static: true
        code: |
          invokestatic Main.loop()V
          return
`

func loadCallGraph(t *testing.T) *CallGraph {
	pool, err := bytecode.LoadProgram([]byte(program))
	if err != nil {
		t.Fatalf("failed to load program: %v", err)
	}
	return Build(pool)
}

func sig(s string) bytecode.MethodSignature {
	m, err := bytecode.ParseMethodSignature(s)
	if err != nil {
		panic(err)
	}
	return m
}

func TestBuildResolvesCalls(t *testing.T) {
	cg := loadCallGraph(t)
	main := sig("Main.main(LShape;)V")

	itf := cg.CallsAt(CodeLocation{Signature: main, Offset: 1})
	targets := funcutil.Map(itf, func(c *Call) string { return c.Target.String() })
	if diff := cmp.Diff([]string{"Circle.area()I", "Square.area()I"}, targets); diff != "" {
		t.Errorf("interface call targets mismatch (-want +got):\n%s", diff)
	}

	gc := cg.CallsAt(CodeLocation{Signature: main, Offset: 12})
	if len(gc) != 1 || gc[0].IsResolved() || gc[0].Target.String() != "java/lang/System.gc()V" {
		t.Errorf("expected one unresolved call to System.gc, got %v", gc)
	}

	if calls := cg.CallsAt(CodeLocation{Signature: main, Offset: 15}); len(calls) != 0 {
		t.Errorf("invokedynamic should have no call, got %v", calls)
	}
	if n := len(cg.CallsFrom(main)); n != 4 {
		t.Errorf("expected 4 calls from main, got %d", n)
	}
	if callers := cg.CallersOf(sig("Main.even(I)Z")); len(callers) != 2 {
		t.Errorf("expected 2 callers of even, got %v", callers)
	}
}

func TestRecursion(t *testing.T) {
	cg := loadCallGraph(t)
	rec := cg.RecursiveMethods()
	expected := map[bytecode.MethodSignature]bool{
		sig("Main.even(I)Z"): true,
		sig("Main.odd(I)Z"):  true,
		sig("Main.loop()V"):  true,
	}
	if diff := cmp.Diff(expected, rec); diff != "" {
		t.Errorf("recursive methods mismatch (-want +got):\n%s", diff)
	}
	cycles := cg.Cycles()
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %v", cycles)
	}
	for _, cycle := range cycles {
		if cycle[0] != cycle[len(cycle)-1] {
			t.Errorf("cycle %v should start and end with the same method", cycle)
		}
	}
}

func TestReachableMethods(t *testing.T) {
	cg := loadCallGraph(t)
	main := bytecode.MethodSignature{Class: "Main", Name: "main", Descriptor: "(LShape;)V"}
	got := funcutil.Map(cg.ReachableMethods([]bytecode.MethodSignature{main}), bytecode.MethodSignature.String)
	sort.Strings(got)
	want := []string{
		"Circle.area()I",
		"Main.even(I)Z",
		"Main.main(LShape;)V",
		"Main.odd(I)Z",
		"Square.area()I",
		"java/lang/System.gc()V",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected reachable methods (-want +got):\n%s", diff)
	}
	loop := bytecode.MethodSignature{Class: "Main", Name: "loop", Descriptor: "()V"}
	if got := cg.ReachableMethods([]bytecode.MethodSignature{loop}); len(got) != 1 || got[0] != loop {
		t.Errorf("loop only reaches itself, got %v", got)
	}
}
