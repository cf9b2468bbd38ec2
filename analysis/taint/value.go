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

package taint

import (
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
	"github.com/awslabs/ar-jvm-tools/analysis/jvm"
)

// Value is the abstract value of the taint analysis: the taint of the value, and the references it may point to
type Value struct {
	Taint TaintAbstractState
	Refs  heap.ReferenceSet
}

// ValueOf returns the untainted value pointing to refs
func ValueOf(refs heap.ReferenceSet) Value {
	return Value{Refs: refs}
}

// Tainted returns the value tainted by t that does not point to any object
func Tainted(t TaintAbstractState) Value {
	return Value{Taint: t}
}

func (v Value) Join(other Value) Value {
	return Value{Taint: v.Taint.Join(other.Taint), Refs: v.Refs.Join(other.Refs)}
}

func (v Value) IsLessOrEqual(other Value) bool {
	return v.Taint.IsLessOrEqual(other.Taint) && v.Refs.IsLessOrEqual(other.Refs)
}

func (v Value) Equal(other Value) bool {
	return v.Taint.Equal(other.Taint) && v.Refs.Equal(other.Refs)
}

func (v Value) References() heap.ReferenceSet {
	return v.Refs
}

func (v Value) WithReferences(refs heap.ReferenceSet) Value {
	return Value{Taint: v.Taint, Refs: refs}
}

func (v Value) String() string {
	if v.Refs.IsEmpty() {
		return v.Taint.String()
	}
	return fmt.Sprintf("%s->%s", v.Taint, v.Refs)
}

// State is the JVM state of the taint analysis
type State = jvm.State[Value]

// Semantics is the semantics of taint values for a problem. Calls to sources taint their outputs, and any other call
// that is not analyzed taints its returned value with the taint of its arguments and of their content.
type Semantics struct {
	Problem *Problem
}

// Default returns the untainted value
func (Semantics) Default() Value {
	return Value{}
}

// Compute joins the taint of the operands. Only checkcast returns a reference, the one of its operand.
func (Semantics) Compute(ins bytecode.Instruction, operands []Value) Value {
	res := Value{}
	for _, o := range operands {
		res.Taint = res.Taint.Join(o.Taint)
	}
	if ins.Opcode == bytecode.Checkcast && len(operands) == 1 {
		res.Refs = operands[0].Refs
	}
	return res
}

// InvokeMethod applies the effect of a call to sources on state and returns the value returned by the call
func (s Semantics) InvokeMethod(state *State, site jvm.CallSite, args []Value) (Value, error) {
	ret := Value{}
	hasReceiver := !site.Instruction.Opcode.IsStatic()
	unknown := false
	for _, target := range site.Targets {
		sources := s.Problem.MatchingSources(target)
		if len(sources) == 0 {
			unknown = true
			continue
		}
		for _, src := range sources {
			t := Tainted(NewTaintAbstractState(src.ID))
			if src.TaintsReturn {
				ret = ret.Join(t)
			}
			if src.TaintsThis && hasReceiver {
				taintContent(state, args[0], t)
			}
			for _, k := range src.TaintsArgs {
				i := k - 1
				if hasReceiver {
					i++
				}
				if i >= len(args) {
					return ret, fmt.Errorf("source %s taints argument %d of %s, which has %d arguments",
						src, k, target, len(args))
				}
				taintContent(state, args[i], t)
			}
			for _, g := range src.TaintsGlobals {
				state.Statics[g] = state.Static(g).Join(t)
			}
		}
	}
	if unknown {
		for _, a := range args {
			ret.Taint = ret.Taint.Join(a.Taint).Join(state.Heap.GetField(a, heap.ObjectField).Taint)
		}
	}
	return ret, nil
}

// taintContent joins the taint in the content of the objects ref points to
func taintContent(state *State, ref Value, t Value) {
	if ref.Refs.IsEmpty() {
		return
	}
	old := state.Heap.GetField(ref, heap.ObjectField)
	state.Heap.SetField(ref, heap.ObjectField, old.Join(t))
}

// NewHeap returns an empty heap of the model for taint values
func NewHeap(model heap.Model) heap.State[Value] {
	return heap.NewState(model, ValueOf, Value{})
}
