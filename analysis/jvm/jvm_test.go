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

package jvm_test

import (
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/callgraph"
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/cpa"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
	"github.com/awslabs/ar-jvm-tools/analysis/jvm"
	"github.com/google/go-cmp/cmp"
)

// tval is a set of labels and references
type tval struct {
	labels uint
	refs   heap.ReferenceSet
}

func (v tval) Join(o tval) tval {
	return tval{labels: v.labels | o.labels, refs: v.refs.Join(o.refs)}
}

func (v tval) IsLessOrEqual(o tval) bool {
	return v.labels&^o.labels == 0 && v.refs.IsLessOrEqual(o.refs)
}

func (v tval) Equal(o tval) bool {
	return v.labels == o.labels && v.refs.Equal(o.refs)
}

func (v tval) References() heap.ReferenceSet { return v.refs }

func (v tval) WithReferences(refs heap.ReferenceSet) tval { return tval{labels: v.labels, refs: refs} }

const addLabel = 4

// tsem labels the values returned by methods named source with 1, and the results of iadd with addLabel
type tsem struct{}

func (tsem) Default() tval { return tval{} }

func (tsem) Compute(ins bytecode.Instruction, operands []tval) tval {
	res := tval{}
	for _, o := range operands {
		res = res.Join(o)
	}
	if ins.Opcode == bytecode.Iadd {
		res.labels |= addLabel
	}
	return res
}

func (tsem) InvokeMethod(_ *jvm.State[tval], site jvm.CallSite, args []tval) (tval, error) {
	if site.Targets[0].Name == "source" {
		return tval{labels: 1}, nil
	}
	res := tval{}
	for _, a := range args {
		res = res.Join(a)
	}
	return res, nil
}

func valueOf(refs heap.ReferenceSet) tval { return tval{refs: refs} }

const program = `
classes:
  - name: Box
  - name: T
    methods:
      - name: source
        descriptor: ()I
        static: true
      - name: add
        descriptor: (I)I
        static: true
        code: |
          iload_0
          istore_1
          iload_1
          iload_0
          iadd
          ireturn
      - name: box
        descriptor: ()LBox;
        static: true
        code: |
          new Box
          dup
          invokestatic T.source()I
          putfield Box.v I
          areturn
      - name: statics
        descriptor: ()V
        static: true
        code: |
          getstatic T.s LBox;
          putstatic T.t LBox;
          invokestatic T.source()I
          putstatic T.s I
          return
      - name: thrower
        descriptor: (LBox;)V
        static: true
        code: |
          .catch any start end h
          start:
            aload_0
            athrow
          end:
            return
          h: astore_1
            aload_1
            athrow
      - name: loop
        descriptor: (I)I
        static: true
        code: |
          iconst_0
          istore_1
          head: iload_0
          ifeq done
          iload_1
          iload_0
          iadd
          istore_1
          goto head
          done: iload_1
          ireturn
      - name: legacy
        descriptor: ()V
        static: true
        code: |
          jsr l
          l: return
`

func tSig(name, desc string) bytecode.MethodSignature {
	return bytecode.MethodSignature{Class: "T", Name: name, Descriptor: desc}
}

type fixture struct {
	pool *bytecode.ClassPool
	cfa  *cfa.CFA
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
	return fixture{pool: pool, cfa: c}
}

func (f fixture) entry(t *testing.T, sig bytecode.MethodSignature, model heap.Model) *jvm.State[tval] {
	t.Helper()
	n, ok := f.cfa.FunctionEntryNode(sig)
	if !ok {
		t.Fatalf("no entry for %s", sig)
	}
	return jvm.NewEntryState[tval](f.pool.Method(sig), n.ID, heap.NewState(model, valueOf, tval{}), tsem{})
}

// run computes the fixpoint from the state and returns the reached set
func (f fixture) run(t *testing.T, init *jvm.State[tval]) (*cpa.ReachedSet, cpa.Result) {
	t.Helper()
	transfer := jvm.NewTransferRelation[tval](f.cfa, tsem{}, nil)
	alg := cpa.NewAlgorithm(
		cpa.NewConfigurableProgramAnalysis(transfer, cpa.MergeJoinOperator{}, cpa.StopJoinOperator{}),
		config.NewDiscardLogGroup())
	reached := cpa.NewReachedSet()
	reached.Add(init, cpa.StaticPrecision{})
	waitlist := cpa.NewBreadthFirstWaitlist()
	waitlist.Add(init)
	return reached, alg.Run(reached, waitlist)
}

func (f fixture) single(t *testing.T, reached *cpa.ReachedSet, n *cfa.Node) *jvm.State[tval] {
	t.Helper()
	states := reached.StatesAt(n.ID)
	if len(states) != 1 {
		t.Fatalf("expected one state at %v, got %d", n, len(states))
	}
	return states[0].(*jvm.State[tval])
}

func TestLocalsAndStack(t *testing.T) {
	f := load(t)
	sig := tSig("add", "(I)I")
	init := f.entry(t, sig, heap.TreeModel)
	init.Frame.Locals[0] = tval{labels: 1}
	reached, res := f.run(t, init)
	if !res.IsCompleted() {
		t.Fatalf("analysis did not complete: %v", res.Reason)
	}
	exit := f.single(t, reached, f.cfa.FunctionReturnExitNode(sig))
	if exit.StackSize() != 1 {
		t.Fatalf("expected the return value on the stack, got %v", exit)
	}
	ret, _ := exit.Peek(0)
	if !ret.Equal(tval{labels: 1 | addLabel}) {
		t.Errorf("unexpected return value %v", ret)
	}
	if len(exit.Frame.Locals) != 0 {
		t.Errorf("locals should be discarded at the return exit, got %v", exit.Frame.Locals)
	}
	// after istore_1, both locals hold the argument
	n, _ := f.cfa.FunctionNode(sig, 2)
	s := f.single(t, reached, n)
	if !s.Local(1).Equal(tval{labels: 1}) || s.StackSize() != 0 {
		t.Errorf("unexpected state after store: %v", s)
	}
}

func TestLoopConverges(t *testing.T) {
	f := load(t)
	sig := tSig("loop", "(I)I")
	init := f.entry(t, sig, heap.TreeModel)
	init.Frame.Locals[0] = tval{labels: 1}
	reached, res := f.run(t, init)
	if !res.IsCompleted() {
		t.Fatalf("analysis did not complete: %v", res.Reason)
	}
	head, _ := f.cfa.FunctionNode(sig, 2)
	s := f.single(t, reached, head)
	if !s.Local(1).Equal(tval{labels: 1 | addLabel}) {
		t.Errorf("loop head should have joined the accumulator, got %v", s.Local(1))
	}
	exit := f.single(t, reached, f.cfa.FunctionReturnExitNode(sig))
	if ret, _ := exit.Peek(0); !ret.Equal(tval{labels: 1 | addLabel}) {
		t.Errorf("unexpected return value %v", ret)
	}
}

func TestHeapWrites(t *testing.T) {
	f := load(t)
	sig := tSig("box", "()LBox;")
	newNode, _ := f.cfa.FunctionNode(sig, 0)
	for _, test := range []struct {
		model heap.Model
		field tval
	}{
		{heap.TreeModel, tval{labels: 1}},
		{heap.ForgetfulModel, tval{}},
	} {
		t.Run(string(test.model), func(t *testing.T) {
			reached, res := f.run(t, f.entry(t, sig, test.model))
			if !res.IsCompleted() {
				t.Fatalf("analysis did not complete: %v", res.Reason)
			}
			exit := f.single(t, reached, f.cfa.FunctionReturnExitNode(sig))
			obj, _ := exit.Peek(0)
			want := heap.NewReferenceSet(heap.Reference{Site: newNode.ID})
			if !obj.refs.Equal(want) {
				t.Errorf("returned %v, expected %v", obj.refs, want)
			}
			v, err := jvm.ValueAt(exit, jvm.HeapLocation{Refs: want, Field: "v"})
			if err != nil {
				t.Fatal(err)
			}
			if !v.Equal(test.field) {
				t.Errorf("field v is %v, expected %v", v, test.field)
			}
		})
	}
}

func TestStatics(t *testing.T) {
	f := load(t)
	sig := tSig("statics", "()V")
	reached, res := f.run(t, f.entry(t, sig, heap.TreeModel))
	if !res.IsCompleted() {
		t.Fatalf("analysis did not complete: %v", res.Reason)
	}
	exit := f.single(t, reached, f.cfa.FunctionReturnExitNode(sig))
	initial := heap.NewReferenceSet(heap.Reference{
		Site:   cfa.UnknownNodeID,
		Origin: heap.Origin{Kind: heap.Static, Field: "T.s"},
	})
	if got := exit.Static("T.t"); !got.refs.Equal(initial) {
		t.Errorf("T.t should hold the initial object of T.s, got %v", got)
	}
	if got := exit.Static("T.s"); !got.Equal(tval{labels: 1}) {
		t.Errorf("T.s should hold the source value, got %v", got)
	}
	// a static field never written holds its initial object
	if got := exit.Static("T.u"); got.refs.Len() != 1 || got.refs.Slice()[0].Origin.Field != "T.u" {
		t.Errorf("unexpected initial value %v", got)
	}
}

func TestExceptionalEdges(t *testing.T) {
	f := load(t)
	sig := tSig("thrower", "(LBox;)V")
	init := f.entry(t, sig, heap.TreeModel)
	reached, res := f.run(t, init)
	if !res.IsCompleted() {
		t.Fatalf("analysis did not complete: %v", res.Reason)
	}
	param := init.Local(0)
	if param.refs.Len() != 1 || param.refs.Slice()[0].Origin.Kind != heap.Parameter {
		t.Fatalf("expected a parameter reference, got %v", param)
	}
	catch, ok := f.cfa.CatchNode(sig, 3, bytecode.AnyCatchType)
	if !ok {
		t.Fatal("no catch node")
	}
	s := f.single(t, reached, catch)
	if top, _ := s.Peek(0); s.StackSize() != 1 || !top.Equal(param) {
		t.Errorf("catch node should have the thrown value on the stack, got %v", s)
	}
	if !s.Local(0).Equal(param) {
		t.Errorf("locals should be kept in the handler, got %v", s)
	}
	exit := f.single(t, reached, f.cfa.FunctionExceptionExitNode(sig))
	if top, _ := exit.Peek(0); exit.StackSize() != 1 || !top.Equal(param) {
		t.Errorf("exception exit should have the thrown value on the stack, got %v", exit)
	}
	if len(exit.Frame.Locals) != 0 {
		t.Errorf("locals should be discarded at the exception exit, got %v", exit.Frame.Locals)
	}
	if len(reached.StatesAt(f.cfa.FunctionReturnExitNode(sig).ID)) != 0 {
		t.Errorf("return exit should not be reachable")
	}
}

func TestUnsupportedInstruction(t *testing.T) {
	f := load(t)
	sig := tSig("legacy", "()V")
	transfer := jvm.NewTransferRelation[tval](f.cfa, tsem{}, nil)
	_, err := transfer.Successors(f.entry(t, sig, heap.TreeModel), cpa.StaticPrecision{})
	if err == nil || !strings.Contains(err.Error(), "unsupported instruction jsr") {
		t.Errorf("expected unsupported instruction error, got %v", err)
	}
}

func TestUnknownInvocation(t *testing.T) {
	pool, err := bytecode.LoadProgram([]byte(`
classes:
  - name: U
    methods:
      - name: m
        descriptor: (Ljava/lang/Object;J)V
        static: true
        code: |
          aload_0
          lload_1
          invokestatic lib/L.f(Ljava/lang/Object;J)Ljava/lang/Object;
          pop
          return
`))
	if err != nil {
		t.Fatal(err)
	}
	c, err := cfa.Build(pool, callgraph.Build(pool))
	if err != nil {
		t.Fatal(err)
	}
	sig := bytecode.MethodSignature{Class: "U", Name: "m", Descriptor: "(Ljava/lang/Object;J)V"}
	entry, _ := c.FunctionEntryNode(sig)
	s := jvm.NewEntryState[tval](pool.Method(sig), entry.ID, heap.NewTreeHeap(valueOf), tsem{})
	if diff := cmp.Diff([]int{0, 1, 2}, sortedLocals(s)); diff != "" {
		t.Errorf("unexpected entry locals (-want +got):\n%s", diff)
	}
	if !s.Local(1).Equal(s.Local(2)) {
		t.Errorf("both slots of a long should hold the same value")
	}
	s.Frame.Stack = []tval{s.Local(0), {labels: 2}, {labels: 2}}
	call, _ := c.FunctionNode(sig, 2)
	var edge *cfa.InstructionEdge
	for _, e := range call.LeavingIntraproceduralEdges() {
		if c.Node(e.Target()).Kind == cfa.InstructionNode {
			edge = e.(*cfa.InstructionEdge)
		}
	}
	site := jvm.NewCallSite(c, edge)
	want := []bytecode.MethodSignature{{Class: "lib/L", Name: "f", Descriptor: "(Ljava/lang/Object;J)Ljava/lang/Object;"}}
	if diff := cmp.Diff(want, site.Targets); diff != "" {
		t.Errorf("unexpected targets (-want +got):\n%s", diff)
	}
	succ, err := jvm.InvokeUnknown[tval](s, site, tsem{})
	if err != nil {
		t.Fatal(err)
	}
	if s.StackSize() != 3 {
		t.Errorf("the state before the call was modified")
	}
	if succ.StackSize() != 1 {
		t.Fatalf("expected the returned value only, got %v", succ)
	}
	ret, _ := succ.Peek(0)
	wantRefs := heap.NewReferenceSet(heap.Reference{Site: call.ID, Origin: heap.Origin{Kind: heap.Return}})
	if ret.labels != 2 || !ret.refs.Equal(wantRefs) {
		t.Errorf("unexpected returned value %v", ret)
	}
}

func sortedLocals(s *jvm.State[tval]) []int {
	var res []int
	for i := 0; i < 16; i++ {
		if _, ok := s.Frame.Locals[i]; ok {
			res = append(res, i)
		}
	}
	return res
}

func TestPopArguments(t *testing.T) {
	s := jvm.NewState[tval](1, heap.NewTreeHeap(valueOf), tsem{})
	s.Frame.Stack = []tval{{labels: 8}, {labels: 1}, {labels: 2}, {labels: 2}, {labels: 4}}
	ins := bytecode.Instruction{
		Opcode: bytecode.Invokevirtual,
		Method: &bytecode.MethodRef{Class: "A", Name: "f", Descriptor: "(JI)V"},
	}
	args, err := s.PopArguments(ins)
	if err != nil {
		t.Fatal(err)
	}
	labels := func(vs []tval) []uint {
		res := make([]uint, len(vs))
		for i, v := range vs {
			res[i] = v.labels
		}
		return res
	}
	if diff := cmp.Diff([]uint{1, 2, 4}, labels(args)); diff != "" {
		t.Errorf("unexpected arguments (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint{8}, labels(s.Frame.Stack)); diff != "" {
		t.Errorf("unexpected stack (-want +got):\n%s", diff)
	}
	if _, err := s.PopArguments(ins); err == nil {
		t.Errorf("expected stack underflow")
	}
}

func TestArgumentLayout(t *testing.T) {
	ins := bytecode.Instruction{
		Opcode: bytecode.Invokevirtual,
		Method: &bytecode.MethodRef{Class: "A", Name: "f", Descriptor: "(JI)V"},
	}
	if diff := cmp.Diff([]jvm.StackLocation{{Index: 3}, {Index: 1}, {Index: 0}}, jvm.ArgumentLocations(ins)); diff != "" {
		t.Errorf("unexpected argument locations (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 3}, jvm.ArgumentSlots(ins)); diff != "" {
		t.Errorf("unexpected argument slots (-want +got):\n%s", diff)
	}
	for local, want := range map[int]int{0: 0, 1: 1, 2: 1, 3: 2, 4: -1} {
		got, ok := jvm.ArgumentOfSlot(ins, local)
		if !ok {
			got = -1
		}
		if got != want {
			t.Errorf("argument of local %d: expected %d, got %d", local, want, got)
		}
	}
	static := bytecode.Instruction{
		Opcode: bytecode.Invokestatic,
		Method: &bytecode.MethodRef{Class: "A", Name: "g", Descriptor: "(Ljava/lang/String;D)V"},
	}
	if diff := cmp.Diff([]jvm.StackLocation{{Index: 2}, {Index: 0}}, jvm.ArgumentLocations(static)); diff != "" {
		t.Errorf("unexpected argument locations (-want +got):\n%s", diff)
	}
}

func TestValueAt(t *testing.T) {
	h := heap.NewTreeHeap(valueOf)
	s := jvm.NewState[tval](1, h, tsem{})
	obj := h.NewObject(7)
	h.SetField(obj, "f", tval{labels: 4})
	s.Frame.Stack = []tval{{labels: 1}, obj}
	s.Frame.Locals[3] = tval{labels: 2}
	s.Statics["A.g"] = tval{labels: 8}
	for _, test := range []struct {
		loc  jvm.MemoryLocation
		want tval
		key  string
	}{
		{jvm.StackLocation{Index: 1}, tval{labels: 1}, "stack:1"},
		{jvm.StackLocation{Index: 0}, obj, "stack:0"},
		{jvm.LocalLocation{Index: 3}, tval{labels: 2}, "local:3"},
		{jvm.LocalLocation{Index: 4}, tval{}, "local:4"},
		{jvm.StaticLocation{FQN: "A.g"}, tval{labels: 8}, "static:A.g"},
		{jvm.HeapLocation{Refs: obj.refs, Field: "f"}, tval{labels: 4}, "heap:{new@7}.f"},
	} {
		got, err := jvm.ValueAt(s, test.loc)
		if err != nil {
			t.Errorf("%v: %v", test.loc, err)
			continue
		}
		if !got.Equal(test.want) {
			t.Errorf("%v: got %v, expected %v", test.loc, got, test.want)
		}
		if test.loc.Key() != test.key {
			t.Errorf("%v: key %q, expected %q", test.loc, test.loc.Key(), test.key)
		}
	}
	if _, err := jvm.ValueAt(s, jvm.StackLocation{Index: 2}); err == nil {
		t.Errorf("expected an error for a stack index out of bounds")
	}
}

func TestStateLattice(t *testing.T) {
	mk := func(local uint, static *tval, stack ...tval) *jvm.State[tval] {
		s := jvm.NewState[tval](1, heap.NewTreeHeap(valueOf), tsem{})
		s.Frame.Locals[0] = tval{labels: local}
		if static != nil {
			s.Statics["A.g"] = *static
		}
		s.Frame.Stack = stack
		return s
	}
	a := mk(1, nil, tval{labels: 1})
	b := mk(2, &tval{labels: 4}, tval{labels: 2})
	j := a.Join(b).(*jvm.State[tval])
	if !j.Local(0).Equal(tval{labels: 3}) {
		t.Errorf("unexpected local %v", j.Local(0))
	}
	if top, _ := j.Peek(0); !top.Equal(tval{labels: 3}) {
		t.Errorf("unexpected stack %v", top)
	}
	// the initial object of A.g is kept in the join
	if g := j.Static("A.g"); g.labels != 4 || g.refs.Len() != 1 {
		t.Errorf("unexpected static %v", g)
	}
	if !a.IsLessOrEqual(j) || !b.IsLessOrEqual(j) || j.IsLessOrEqual(a) {
		t.Errorf("join should be an upper bound")
	}
	if !j.Equal(b.Join(a)) {
		t.Errorf("join should be commutative")
	}
	if !a.Equal(a.Copy()) {
		t.Errorf("copy should be equal")
	}
	c := a.Copy().(*jvm.State[tval])
	c.Frame.Locals[0] = tval{labels: 8}
	c.Frame.Stack[0] = tval{labels: 8}
	if !a.Local(0).Equal(tval{labels: 1}) {
		t.Errorf("copy should not share the frame")
	}
	if top, _ := a.Peek(0); !top.Equal(tval{labels: 1}) {
		t.Errorf("copy should not share the stack")
	}
	if a.IsLessOrEqual(mk(1, nil)) {
		t.Errorf("states with different stack sizes are not comparable")
	}
	defer func() {
		if recover() == nil {
			t.Errorf("expected join of different stack sizes to panic")
		}
	}()
	a.Join(mk(1, nil))
}
