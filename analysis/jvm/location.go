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

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
)

// A MemoryLocation is a place of a JVM state that holds a value. It is one of StackLocation, LocalLocation,
// StaticLocation or HeapLocation.
type MemoryLocation interface {
	// Key uniquely identifies the location among all memory locations
	Key() string
	String() string
	isMemoryLocation()
}

// StackLocation is an operand stack entry. Index 0 is the top of the stack.
type StackLocation struct {
	Index int
}

// LocalLocation is a local variable
type LocalLocation struct {
	Index int
}

// StaticLocation is a static field
type StaticLocation struct {
	FQN string
}

// HeapLocation is the field of the objects referenced by Refs. Field may be heap.ArrayField for array elements.
type HeapLocation struct {
	Refs  heap.ReferenceSet
	Field string
}

func (StackLocation) isMemoryLocation()  {}
func (LocalLocation) isMemoryLocation()  {}
func (StaticLocation) isMemoryLocation() {}
func (HeapLocation) isMemoryLocation()   {}

func (l StackLocation) Key() string  { return fmt.Sprintf("stack:%d", l.Index) }
func (l LocalLocation) Key() string  { return fmt.Sprintf("local:%d", l.Index) }
func (l StaticLocation) Key() string { return "static:" + l.FQN }
func (l HeapLocation) Key() string   { return fmt.Sprintf("heap:%s.%s", l.Refs, l.Field) }

func (l StackLocation) String() string  { return fmt.Sprintf("Stack%d", l.Index) }
func (l LocalLocation) String() string  { return fmt.Sprintf("Local%d", l.Index) }
func (l StaticLocation) String() string { return l.FQN }
func (l HeapLocation) String() string   { return fmt.Sprintf("%s.%s", l.Refs, l.Field) }

// ValueAt returns the value held at the location in the state
func ValueAt[V Value[V]](state *State[V], loc MemoryLocation) (V, error) {
	switch l := loc.(type) {
	case StackLocation:
		return state.Peek(l.Index)
	case LocalLocation:
		return state.Local(l.Index), nil
	case StaticLocation:
		return state.Static(l.FQN), nil
	case HeapLocation:
		return state.Heap.GetField(state.sem.Default().WithReferences(l.Refs), l.Field), nil
	}
	var zero V
	return zero, fmt.Errorf("unexpected memory location %v", loc)
}

// argumentTypes returns the types of the arguments of the invocation, the receiver first
func argumentTypes(ins bytecode.Instruction) []bytecode.FieldType {
	params := bytecode.MethodSignature{Descriptor: ins.Method.Descriptor}.ParsedDescriptor().Params
	if ins.Opcode.IsStatic() {
		return params
	}
	return append([]bytecode.FieldType{"L" + bytecode.FieldType(ins.Method.Class) + ";"}, params...)
}

// ArgumentLocations returns the stack locations of the arguments of the invocation in the state before it, the
// receiver first
func ArgumentLocations(ins bytecode.Instruction) []StackLocation {
	types := argumentTypes(ins)
	locs := make([]StackLocation, len(types))
	depth := 0
	for i := len(types) - 1; i >= 0; i-- {
		locs[i] = StackLocation{Index: depth}
		depth += types[i].Size()
	}
	return locs
}

// ArgumentSlots returns the local variables holding the arguments of the invocation at the entry of the callee, the
// receiver first
func ArgumentSlots(ins bytecode.Instruction) []int {
	types := argumentTypes(ins)
	slots := make([]int, len(types))
	slot := 0
	for i, t := range types {
		slots[i] = slot
		slot += t.Size()
	}
	return slots
}

// ArgumentOfSlot returns the index of the argument of the invocation that the callee receives in the local variable,
// the receiver first. It returns false if the local variable does not hold an argument at the entry of the callee.
func ArgumentOfSlot(ins bytecode.Instruction, local int) (int, bool) {
	slot := 0
	for i, t := range argumentTypes(ins) {
		if slot <= local && local < slot+t.Size() {
			return i, true
		}
		slot += t.Size()
	}
	return 0, false
}
