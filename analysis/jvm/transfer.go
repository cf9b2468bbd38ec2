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
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/cpa"
)

// TransferRelation computes the successors of JVM states along the intraprocedural edges of a CFA
type TransferRelation[V Value[V]] struct {
	CFA       *cfa.CFA
	Semantics Semantics[V]
	Invoker   Invoker[V]
}

// NewTransferRelation returns the transfer relation of the CFA. Calls are handled by invoker, or by an
// UnknownInvoker if invoker is nil.
func NewTransferRelation[V Value[V]](c *cfa.CFA, sem Semantics[V], invoker Invoker[V]) *TransferRelation[V] {
	if invoker == nil {
		invoker = UnknownInvoker[V]{CFA: c, Semantics: sem}
	}
	return &TransferRelation[V]{CFA: c, Semantics: sem, Invoker: invoker}
}

// Successors returns the states after each intraprocedural edge leaving the node of the state
func (t *TransferRelation[V]) Successors(state cpa.AbstractState, _ cpa.Precision) ([]cpa.AbstractState, error) {
	s := state.(*State[V])
	var res []cpa.AbstractState
	for _, e := range t.CFA.Node(s.Node).LeavingIntraproceduralEdges() {
		succ, err := t.Step(s, e)
		if err != nil {
			return nil, err
		}
		if succ != nil {
			res = append(res, succ)
		}
	}
	return res, nil
}

// Step returns the state after the edge, or nil if the edge cannot be taken. The state is not modified.
func (t *TransferRelation[V]) Step(state *State[V], e cfa.Edge) (*State[V], error) {
	switch edge := e.(type) {
	case *cfa.InstructionEdge:
		target := t.CFA.Node(edge.Target())
		if target.Kind == cfa.CatchNode || target.Kind == cfa.ExceptionExitNode {
			return t.throw(state, edge, target)
		}
		succ, err := t.instruction(state, edge)
		if err != nil || succ == nil {
			return nil, err
		}
		succ.Node = edge.Target()
		return succ, nil
	case *cfa.AssumeCaseEdge, *cfa.AssumeDefaultEdge:
		succ := state.Copy().(*State[V])
		if err := succ.Pop(1); err != nil {
			return nil, fmt.Errorf("at %v: %w", edge, err)
		}
		succ.Node = e.Target()
		return succ, nil
	case *cfa.AssumeExceptionEdge:
		succ := state.Copy().(*State[V])
		succ.Node = e.Target()
		return succ, nil
	case *cfa.CallEdge:
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected edge %v", e)
}

// throw returns the state after an exception is thrown by the instruction of the edge. The stack only contains the
// exception; at the exception exit of the method the local variables are discarded too.
func (t *TransferRelation[V]) throw(state *State[V], edge *cfa.InstructionEdge, target *cfa.Node) (*State[V], error) {
	thrown := t.Semantics.Default()
	if edge.Instruction().Kind() == bytecode.KindThrow {
		v, err := state.Peek(0)
		if err != nil {
			return nil, fmt.Errorf("at %v: %w", edge, err)
		}
		thrown = v
	}
	succ := state.Copy().(*State[V])
	succ.Node = target.ID
	succ.Frame.Stack = []V{thrown}
	if target.Kind == cfa.ExceptionExitNode {
		succ.Frame.Locals = map[int]V{}
	}
	return succ, nil
}

func (t *TransferRelation[V]) instruction(state *State[V], edge *cfa.InstructionEdge) (*State[V], error) {
	ins := edge.Instruction()
	if ins.Kind() == bytecode.KindInvoke {
		return t.Invoker.Invoke(state, edge)
	}
	succ := state.Copy().(*State[V])
	if err := t.apply(succ, edge.Source(), ins); err != nil {
		return nil, fmt.Errorf("at %v: %w", edge, err)
	}
	return succ, nil
}

// apply modifies s with the effect of the instruction at node
func (t *TransferRelation[V]) apply(s *State[V], node cfa.NodeID, ins bytecode.Instruction) error {
	pops, pushes := ins.StackEffect()
	switch ins.Kind() {
	case bytecode.KindNop, bytecode.KindGoto:
		return nil
	case bytecode.KindConst:
		s.PushN(t.Semantics.Default(), pushes)
	case bytecode.KindLoad:
		s.PushN(s.Local(ins.Local), pushes)
	case bytecode.KindStore:
		v, err := s.Peek(0)
		if err != nil {
			return err
		}
		for i := 0; i < pops; i++ {
			s.Frame.Locals[ins.Local+i] = v
		}
		return s.Pop(pops)
	case bytecode.KindIinc:
		s.Frame.Locals[ins.Local] = t.Semantics.Compute(ins, []V{s.Local(ins.Local)})
	case bytecode.KindCompute:
		operands := make([]V, pops)
		for i := 0; i < pops; i++ {
			v, err := s.Peek(pops - 1 - i)
			if err != nil {
				return err
			}
			operands[i] = v
		}
		if err := s.Pop(pops); err != nil {
			return err
		}
		s.PushN(t.Semantics.Compute(ins, operands), pushes)
	case bytecode.KindBranch, bytecode.KindMonitor, bytecode.KindSwitch:
		return s.Pop(pops)
	case bytecode.KindReturn:
		if pops > s.StackSize() {
			return fmt.Errorf("cannot return %d entries from stack of size %d", pops, s.StackSize())
		}
		s.Frame.Stack = append([]V(nil), s.Frame.Stack[s.StackSize()-pops:]...)
		s.Frame.Locals = map[int]V{}
	case bytecode.KindGetStatic:
		s.PushN(s.Static(ins.Field.FQN()), pushes)
	case bytecode.KindPutStatic:
		v, err := s.Peek(0)
		if err != nil {
			return err
		}
		s.Statics[ins.Field.FQN()] = v
		return s.Pop(pops)
	case bytecode.KindGetField:
		ref, err := s.Peek(0)
		if err != nil {
			return err
		}
		if err := s.Pop(pops); err != nil {
			return err
		}
		s.PushN(s.Heap.GetField(ref, ins.Field.Name), pushes)
	case bytecode.KindPutField:
		v, err := s.Peek(0)
		if err != nil {
			return err
		}
		ref, err := s.Peek(pops - 1)
		if err != nil {
			return err
		}
		s.Heap.SetField(ref, ins.Field.Name, v)
		return s.Pop(pops)
	case bytecode.KindArrayLoad:
		arr, err := s.Peek(1)
		if err != nil {
			return err
		}
		if err := s.Pop(pops); err != nil {
			return err
		}
		s.PushN(s.Heap.GetArrayElementOrDefault(arr, t.Semantics.Default()), pushes)
	case bytecode.KindArrayStore:
		v, err := s.Peek(0)
		if err != nil {
			return err
		}
		arr, err := s.Peek(pops - 1)
		if err != nil {
			return err
		}
		s.Heap.SetArrayElement(arr, v)
		return s.Pop(pops)
	case bytecode.KindNew:
		s.Push(s.Heap.NewObject(node))
	case bytecode.KindNewArray:
		if err := s.Pop(pops); err != nil {
			return err
		}
		s.Push(s.Heap.NewArray(node))
	case bytecode.KindStack:
		perm, _ := bytecode.StackPermutation(ins.Opcode)
		n := ins.Opcode.Info().Pops
		old := make([]V, n)
		for i := range old {
			v, err := s.Peek(i)
			if err != nil {
				return err
			}
			old[i] = v
		}
		if err := s.Pop(n); err != nil {
			return err
		}
		for i := len(perm) - 1; i >= 0; i-- {
			s.Push(old[perm[i]])
		}
	case bytecode.KindThrow:
		return fmt.Errorf("%s has no normal successor", ins)
	default:
		return fmt.Errorf("unsupported instruction %s", ins)
	}
	return nil
}
