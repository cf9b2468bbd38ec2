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

// Package jvm implements the abstract states of the JVM: a frame of local variables and operand stack entries, a
// heap abstraction and the static fields. The transfer relation steps over the intraprocedural edges of a CFA and is
// parametrized by the semantics of the abstract values and by an Invoker that computes the effect of calls.
package jvm

import (
	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
)

// Value is the constraint on the abstract values of JVM states
type Value[V any] interface {
	heap.Value[V]
	// WithReferences returns the value with its references replaced by refs
	WithReferences(refs heap.ReferenceSet) V
}

// Semantics defines the abstract values of an analysis
type Semantics[V Value[V]] interface {
	// Default returns the value of constants, and the bottom element of the values
	Default() V
	// Compute returns the result of the instruction, given its operands in the order they were pushed
	Compute(ins bytecode.Instruction, operands []V) V
	// InvokeMethod applies the effect of a call whose code is not analyzed to state and returns the value returned
	// by the call. The arguments, receiver first, have been popped from state.
	InvokeMethod(state *State[V], site CallSite, args []V) (V, error)
}

// A CallSite is an invocation instruction
type CallSite struct {
	Node        cfa.NodeID
	Instruction bytecode.Instruction
	// Targets are the signatures of the methods that may be called, or the referenced method when the call graph
	// has no call for the invocation
	Targets []bytecode.MethodSignature
}

// NewCallSite returns the call site of the invocation edge
func NewCallSite(c *cfa.CFA, edge *cfa.InstructionEdge) CallSite {
	ins := edge.Instruction()
	site := CallSite{Node: edge.Source(), Instruction: ins}
	for _, call := range c.Node(edge.Source()).LeavingInterproceduralEdges() {
		site.Targets = append(site.Targets, call.Call.Target)
	}
	if len(site.Targets) == 0 && ins.Method != nil {
		site.Targets = []bytecode.MethodSignature{ins.Method.Signature()}
	}
	return site
}

// An Invoker computes the state after an invocation
type Invoker[V Value[V]] interface {
	// Invoke returns the state after the invocation of edge, from the state before it. The state must not be
	// modified. A nil state means the invocation has no normal successor.
	Invoke(state *State[V], edge *cfa.InstructionEdge) (*State[V], error)
}

// UnknownInvoker gives to every call the semantics of a call whose code is not analyzed
type UnknownInvoker[V Value[V]] struct {
	CFA       *cfa.CFA
	Semantics Semantics[V]
}

// Invoke pops the arguments and pushes the value returned by Semantics.InvokeMethod
func (u UnknownInvoker[V]) Invoke(state *State[V], edge *cfa.InstructionEdge) (*State[V], error) {
	return InvokeUnknown(state, NewCallSite(u.CFA, edge), u.Semantics)
}

// InvokeUnknown returns the state after a call whose code is not analyzed. References returned by the call are
// represented by a single reference created at the call site.
func InvokeUnknown[V Value[V]](state *State[V], site CallSite, sem Semantics[V]) (*State[V], error) {
	succ := state.Copy().(*State[V])
	args, err := succ.PopArguments(site.Instruction)
	if err != nil {
		return nil, err
	}
	ret, err := sem.InvokeMethod(succ, site, args)
	if err != nil {
		return nil, err
	}
	rt := site.Instruction.ReturnType()
	if rt == bytecode.Void {
		return succ, nil
	}
	if rt.IsReference() {
		ret = ret.WithReferences(heap.NewReferenceSet(
			heap.Reference{Site: site.Node, Origin: heap.Origin{Kind: heap.Return}}))
	} else {
		ret = ret.WithReferences(heap.ReferenceSet{})
	}
	succ.PushN(ret, rt.Size())
	return succ, nil
}
