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

// Package heap implements abstractions of the JVM heap for abstract states that model memory. The heap is accessed
// through values that carry the set of references they may point to.
//
// Two models are provided: the ForgetfulHeap does not track anything, and the TreeHeap maps every reference to a
// HeapNode that holds the abstract values of the fields of the objects it denotes.
package heap

import (
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/cpa"
)

// ObjectField is the pseudo-field that holds the abstract content of a whole object, for example the taint of an
// object passed to a method that taints its argument. Reading any field of an object also reads its ObjectField.
const ObjectField = "<object>"

// ArrayField is the field of the array elements. Array indices are not tracked.
const ArrayField = "[]"

// Value is the constraint on the abstract values stored in the heap
type Value[V any] interface {
	cpa.Lattice[V]
	// References returns the references the value may point to
	References() ReferenceSet
}

// State is an abstract heap. Reads never modify the heap; writes modify the receiver, which callers must have copied
// beforehand.
type State[V Value[V]] interface {
	// NewObject returns the value of a new object created at site
	NewObject(site cfa.NodeID) V
	// NewArray returns the value of a new array created at site
	NewArray(site cfa.NodeID) V
	// GetField returns the value of the field of the objects ref may point to
	GetField(ref V, field string) V
	// SetField writes value in the field of the objects ref may point to
	SetField(ref V, field string, value V)
	// GetArrayElementOrDefault returns the value of the elements of the arrays array may point to, or def if no
	// element is known
	GetArrayElementOrDefault(array V, def V) V
	// SetArrayElement writes value in the elements of the arrays array may point to
	SetArrayElement(array V, value V)

	Join(other State[V]) State[V]
	IsLessOrEqual(other State[V]) bool
	Equal(other State[V]) bool
	Copy() State[V]
}

// Model is the name of a heap model
type Model string

const (
	// TreeModel tracks the fields of objects in a TreeHeap
	TreeModel Model = "tree"
	// ForgetfulModel does not track the heap
	ForgetfulModel Model = "forgetful"
)

// NewState returns an empty heap of the given model. valueOf returns the value of a set of references; it is used to
// build the values of new objects and the values of the fields that are read before being written. def is the value
// read from the heap by the forgetful model.
func NewState[V Value[V]](model Model, valueOf func(ReferenceSet) V, def V) State[V] {
	if model == ForgetfulModel {
		return NewForgetfulHeap(valueOf, def)
	}
	return NewTreeHeap(valueOf)
}

// ForgetfulHeap is the heap that does not remember anything: reads return a fixed default value and writes have no
// effect. Its lattice has a single element.
type ForgetfulHeap[V Value[V]] struct {
	valueOf func(ReferenceSet) V
	def     V
}

// NewForgetfulHeap returns a forgetful heap reading def
func NewForgetfulHeap[V Value[V]](valueOf func(ReferenceSet) V, def V) *ForgetfulHeap[V] {
	return &ForgetfulHeap[V]{valueOf: valueOf, def: def}
}

func (h *ForgetfulHeap[V]) NewObject(site cfa.NodeID) V {
	return h.valueOf(NewReferenceSet(Reference{Site: site}))
}

func (h *ForgetfulHeap[V]) NewArray(site cfa.NodeID) V {
	return h.valueOf(NewReferenceSet(Reference{Site: site}))
}

func (h *ForgetfulHeap[V]) GetField(V, string) V { return h.def }

func (h *ForgetfulHeap[V]) SetField(V, string, V) {}

func (h *ForgetfulHeap[V]) GetArrayElementOrDefault(V, V) V { return h.def }

func (h *ForgetfulHeap[V]) SetArrayElement(V, V) {}

func (h *ForgetfulHeap[V]) Join(State[V]) State[V] { return h }

func (h *ForgetfulHeap[V]) IsLessOrEqual(State[V]) bool { return true }

func (h *ForgetfulHeap[V]) Equal(State[V]) bool { return true }

func (h *ForgetfulHeap[V]) Copy() State[V] { return h }
