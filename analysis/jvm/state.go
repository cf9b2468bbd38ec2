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

package jvm

import (
	"fmt"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/cpa"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"golang.org/x/exp/maps"
)

// A Frame contains the local variables and the operand stack of a method. Long and double values occupy two local
// variables and two stack entries, which both hold the value.
type Frame[V Value[V]] struct {
	// Locals maps local variable indices to values. Missing locals hold the bottom value.
	Locals map[int]V
	// Stack is the operand stack, the top of the stack is the last element
	Stack []V
}

// State is the abstract state of the JVM at a node of the CFA
type State[V Value[V]] struct {
	Node  cfa.NodeID
	Frame Frame[V]
	Heap  heap.State[V]
	// Statics maps fully qualified field names to values. Static fields that are not in the map hold the value of
	// a reference to the object they contained when the analysis started.
	Statics map[string]V

	sem Semantics[V]
}

// NewState returns a state at node with an empty frame, the heap and no static field
func NewState[V Value[V]](node cfa.NodeID, h heap.State[V], sem Semantics[V]) *State[V] {
	return &State[V]{
		Node:    node,
		Frame:   Frame[V]{Locals: map[int]V{}},
		Heap:    h,
		Statics: map[string]V{},
		sem:     sem,
	}
}

// NewEntryState returns the state at the entry of the method. The arguments are in the first local variables;
// references passed as arguments are parameter references created at the entry node.
func NewEntryState[V Value[V]](m *bytecode.Method, entry cfa.NodeID, h heap.State[V], sem Semantics[V]) *State[V] {
	s := NewState(entry, h, sem)
	slot := 0
	param := func(t bytecode.FieldType) {
		v := sem.Default()
		if t.IsReference() {
			v = v.WithReferences(heap.NewReferenceSet(heap.Reference{
				Site:   entry,
				Origin: heap.Origin{Kind: heap.Parameter, Slot: slot},
			}))
		}
		for i := 0; i < t.Size(); i++ {
			s.Frame.Locals[slot] = v
			slot++
		}
	}
	if !m.IsStatic() {
		param(bytecode.FieldType("L" + m.Signature.Class + ";"))
	}
	for _, t := range m.Signature.ParsedDescriptor().Params {
		param(t)
	}
	return s
}

// Semantics returns the semantics of the values of the state
func (s *State[V]) Semantics() Semantics[V] {
	return s.sem
}

// Local returns the value of the local variable
func (s *State[V]) Local(k int) V {
	if v, ok := s.Frame.Locals[k]; ok {
		return v
	}
	return s.sem.Default()
}

// Static returns the value of the static field
func (s *State[V]) Static(fqn string) V {
	if v, ok := s.Statics[fqn]; ok {
		return v
	}
	return s.lazyStatic(fqn)
}

func (s *State[V]) lazyStatic(fqn string) V {
	return s.sem.Default().WithReferences(heap.NewReferenceSet(heap.Reference{
		Site:   cfa.UnknownNodeID,
		Origin: heap.Origin{Kind: heap.Static, Field: fqn},
	}))
}

// StackSize returns the number of entries in the operand stack
func (s *State[V]) StackSize() int {
	return len(s.Frame.Stack)
}

// Peek returns the stack entry at index i from the top
func (s *State[V]) Peek(i int) (V, error) {
	n := len(s.Frame.Stack)
	if i < 0 || i >= n {
		var zero V
		return zero, fmt.Errorf("stack index %d out of bounds in stack of size %d", i, n)
	}
	return s.Frame.Stack[n-1-i], nil
}

// Push pushes a value on the stack
func (s *State[V]) Push(v V) {
	s.Frame.Stack = append(s.Frame.Stack, v)
}

// PushN pushes the value n times
func (s *State[V]) PushN(v V, n int) {
	for i := 0; i < n; i++ {
		s.Push(v)
	}
}

// Pop removes n entries from the stack
func (s *State[V]) Pop(n int) error {
	if n > len(s.Frame.Stack) {
		return fmt.Errorf("cannot pop %d entries from stack of size %d", n, len(s.Frame.Stack))
	}
	s.Frame.Stack = s.Frame.Stack[:len(s.Frame.Stack)-n]
	return nil
}

// PopArguments pops the arguments of the invocation and returns them in order, the receiver first. Each argument
// is one value, regardless of its size.
func (s *State[V]) PopArguments(ins bytecode.Instruction) ([]V, error) {
	params := argumentTypes(ins)
	args := make([]V, len(params))
	depth := 0
	for i := len(params) - 1; i >= 0; i-- {
		v, err := s.Peek(depth)
		if err != nil {
			return nil, fmt.Errorf("missing arguments for %s: %w", ins, err)
		}
		args[i] = v
		depth += params[i].Size()
	}
	return args, s.Pop(depth)
}

// Location returns the node of the state
func (s *State[V]) Location() any {
	return s.Node
}

// Copy returns a deep copy of the frame and statics, with a copy of the heap
func (s *State[V]) Copy() cpa.AbstractState {
	return &State[V]{
		Node: s.Node,
		Frame: Frame[V]{
			Locals: maps.Clone(s.Frame.Locals),
			Stack:  append([]V(nil), s.Frame.Stack...),
		},
		Heap:    s.Heap.Copy(),
		Statics: maps.Clone(s.Statics),
		sem:     s.sem,
	}
}

// Join returns the join of two states at the same node. Their stacks must have the same size.
func (s *State[V]) Join(other cpa.AbstractState) cpa.AbstractState {
	o := other.(*State[V])
	if len(s.Frame.Stack) != len(o.Frame.Stack) {
		panic(fmt.Sprintf("cannot join states at %d with stacks of size %d and %d",
			s.Node, len(s.Frame.Stack), len(o.Frame.Stack)))
	}
	res := &State[V]{
		Node:    s.Node,
		Frame:   Frame[V]{Locals: map[int]V{}, Stack: make([]V, len(s.Frame.Stack))},
		Heap:    s.Heap.Join(o.Heap),
		Statics: map[string]V{},
		sem:     s.sem,
	}
	for i, v := range s.Frame.Stack {
		res.Frame.Stack[i] = v.Join(o.Frame.Stack[i])
	}
	for k := range unionKeys(s.Frame.Locals, o.Frame.Locals) {
		res.Frame.Locals[k] = s.Local(k).Join(o.Local(k))
	}
	for f := range unionKeys(s.Statics, o.Statics) {
		res.Statics[f] = s.Static(f).Join(o.Static(f))
	}
	return res
}

// IsLessOrEqual returns true if every component of s is less or equal than the same component of other
func (s *State[V]) IsLessOrEqual(other cpa.AbstractState) bool {
	o := other.(*State[V])
	if s.Node != o.Node || len(s.Frame.Stack) != len(o.Frame.Stack) {
		return false
	}
	for i, v := range s.Frame.Stack {
		if !v.IsLessOrEqual(o.Frame.Stack[i]) {
			return false
		}
	}
	for k := range unionKeys(s.Frame.Locals, o.Frame.Locals) {
		if !s.Local(k).IsLessOrEqual(o.Local(k)) {
			return false
		}
	}
	for f := range unionKeys(s.Statics, o.Statics) {
		if !s.Static(f).IsLessOrEqual(o.Static(f)) {
			return false
		}
	}
	return s.Heap.IsLessOrEqual(o.Heap)
}

// Equal returns true if the states are at the same node and have equal components
func (s *State[V]) Equal(other cpa.AbstractState) bool {
	return s.IsLessOrEqual(other) && other.IsLessOrEqual(s)
}

func (s *State[V]) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "@%d locals: {", s.Node)
	for i, k := range funcutil.SortedKeys(s.Frame.Locals) {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d: %v", k, s.Frame.Locals[k])
	}
	b.WriteString("} stack: [")
	for i, v := range s.Frame.Stack {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v", v)
	}
	fmt.Fprintf(&b, "] heap: %v", s.Heap)
	return b.String()
}

func unionKeys[K comparable, A any](a, b map[K]A) map[K]bool {
	res := make(map[K]bool, len(a)+len(b))
	for k := range a {
		res[k] = true
	}
	for k := range b {
		res[k] = true
	}
	return res
}
