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

package witness

import (
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/bam"
	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/cpa"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
	"github.com/awslabs/ar-jvm-tools/analysis/jvm"
	"github.com/awslabs/ar-jvm-tools/analysis/taint"
	"golang.org/x/exp/slices"
)

// transfer is the backward transfer relation of the witness analysis of one finding. The predecessors of a state
// are the locations that hold the tainted data in the states before the edges entering its node. A predecessor is
// only followed if the value of the forward analysis at that location carries some taint of the finding that is not
// below the threshold.
type transfer struct {
	analyzer  *bam.Analyzer[taint.Value]
	cfa       *cfa.CFA
	problem   *taint.Problem
	taint     taint.TaintAbstractState
	threshold taint.TaintAbstractState
}

func (t *transfer) Successors(state cpa.AbstractState, _ cpa.Precision) ([]cpa.AbstractState, error) {
	s := state.(*State)
	if s.IsMarker() {
		return nil, nil
	}
	var res []cpa.AbstractState
	add := func(next *State) {
		res = append(res, next)
	}
	node := t.cfa.Node(s.Node)
	for _, e := range node.EnteringIntraproceduralEdges() {
		for _, pre := range s.Block.StatesAt(e.Source()) {
			if err := t.backward(s, e, pre, add); err != nil {
				return nil, fmt.Errorf("at %v: %w", e, err)
			}
		}
	}
	if node.IsEntry() {
		if err := t.returnToCallers(s, add); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// follows returns true if the location of the forward state carries relevant taint
func (t *transfer) follows(pre *taint.State, loc jvm.MemoryLocation) (bool, error) {
	v, err := jvm.ValueAt(pre, loc)
	if err != nil {
		return false, err
	}
	relevant := v.Taint.Filter(t.taint.Contains)
	return !relevant.IsLessOrEqual(t.threshold), nil
}

func (t *transfer) relevantSource(src *taint.TaintSource) bool {
	return t.taint.Contains(src.ID) && !t.threshold.Contains(src.ID)
}

// backward adds the predecessors of s along the edge, in the block of s
func (t *transfer) backward(s *State, e cfa.Edge, pre *taint.State, add func(*State)) error {
	var locs []jvm.MemoryLocation
	var err error
	switch edge := e.(type) {
	case *cfa.InstructionEdge:
		ins := edge.Instruction()
		target := t.cfa.Node(edge.Target())
		switch {
		case target.Kind == cfa.CatchNode || target.Kind == cfa.ExceptionExitNode:
			locs = thrownFrom(ins, target, s.Memory)
		case ins.Kind() == bytecode.KindInvoke:
			return t.invoke(s, edge, ins, pre, add)
		default:
			locs, err = instructionPredecessors(ins, pre, s.Memory)
		}
	case *cfa.AssumeCaseEdge, *cfa.AssumeDefaultEdge:
		locs = []jvm.MemoryLocation{below(s.Memory, 0, 1)}
	case *cfa.AssumeExceptionEdge:
		locs = []jvm.MemoryLocation{s.Memory}
	default:
		return fmt.Errorf("unexpected edge %v", e)
	}
	if err != nil {
		return err
	}
	return t.addFollowed(s, s.Block, e.Source(), pre, locs, s.frames, add)
}

func (t *transfer) addFollowed(s *State, b *block, node cfa.NodeID, pre *taint.State, locs []jvm.MemoryLocation,
	frames []frame, add func(*State)) error {
	for _, loc := range locs {
		ok, err := t.follows(pre, loc)
		if err != nil {
			return err
		}
		if ok {
			add(s.next(b, node, loc, frames))
		}
	}
	return nil
}

// below maps a location after an instruction that pops pops entries and pushes pushes entries to the location
// before the instruction, for locations that are not written by the instruction.
func below(loc jvm.MemoryLocation, pushes int, pops int) jvm.MemoryLocation {
	if l, ok := loc.(jvm.StackLocation); ok {
		return jvm.StackLocation{Index: l.Index - pushes + pops}
	}
	return loc
}

// thrownFrom returns the locations before the instruction that throws to the catch node or exception exit target.
// Only athrow passes a value of its state as exception.
func thrownFrom(ins bytecode.Instruction, target *cfa.Node, loc jvm.MemoryLocation) []jvm.MemoryLocation {
	switch l := loc.(type) {
	case jvm.StackLocation:
		if l.Index == 0 && ins.Kind() == bytecode.KindThrow {
			return []jvm.MemoryLocation{l}
		}
		return nil
	case jvm.LocalLocation:
		if target.Kind == cfa.ExceptionExitNode {
			return nil
		}
	}
	return []jvm.MemoryLocation{loc}
}

// instructionPredecessors returns the locations before the instruction that the location after it may come from.
// The instruction is neither an invocation nor a throw.
func instructionPredecessors(ins bytecode.Instruction, pre *taint.State, loc jvm.MemoryLocation) (
	[]jvm.MemoryLocation, error) {
	pops, pushes := ins.StackEffect()
	kind := ins.Kind()
	if kind == bytecode.KindReturn {
		// the returned entries stay on top of the stack, everything else is discarded
		if _, ok := loc.(jvm.LocalLocation); ok {
			return nil, nil
		}
		return []jvm.MemoryLocation{loc}, nil
	}
	switch l := loc.(type) {
	case jvm.StackLocation:
		if l.Index >= pushes {
			return []jvm.MemoryLocation{below(l, pushes, pops)}, nil
		}
		return pushedFrom(ins, pre, l.Index)
	case jvm.LocalLocation:
		if kind == bytecode.KindStore && ins.Local <= l.Index && l.Index < ins.Local+pops {
			return []jvm.MemoryLocation{jvm.StackLocation{Index: 0}}, nil
		}
		return []jvm.MemoryLocation{l}, nil
	case jvm.StaticLocation:
		if kind == bytecode.KindPutStatic && ins.Field.FQN() == l.FQN {
			return []jvm.MemoryLocation{jvm.StackLocation{Index: 0}}, nil
		}
		return []jvm.MemoryLocation{l}, nil
	case jvm.HeapLocation:
		written := (kind == bytecode.KindPutField && ins.Field.Name == l.Field) ||
			(kind == bytecode.KindArrayStore && l.Field == heap.ArrayField)
		if !written {
			return []jvm.MemoryLocation{l}, nil
		}
		obj, err := pre.Peek(pops - 1)
		if err != nil {
			return nil, err
		}
		if !obj.Refs.Intersects(l.Refs) {
			return []jvm.MemoryLocation{l}, nil
		}
		// weak updates keep the old content
		return []jvm.MemoryLocation{jvm.StackLocation{Index: 0}, l}, nil
	}
	return nil, fmt.Errorf("unexpected memory location %v", loc)
}

// pushedFrom returns the locations before the instruction of the values it pushes at stack index i
func pushedFrom(ins bytecode.Instruction, pre *taint.State, i int) ([]jvm.MemoryLocation, error) {
	pops, _ := ins.StackEffect()
	switch ins.Kind() {
	case bytecode.KindLoad:
		return []jvm.MemoryLocation{jvm.LocalLocation{Index: ins.Local}}, nil
	case bytecode.KindCompute:
		locs := make([]jvm.MemoryLocation, pops)
		for k := range locs {
			locs[k] = jvm.StackLocation{Index: k}
		}
		return locs, nil
	case bytecode.KindGetStatic:
		return []jvm.MemoryLocation{jvm.StaticLocation{FQN: ins.Field.FQN()}}, nil
	case bytecode.KindGetField:
		obj, err := pre.Peek(0)
		if err != nil || obj.Refs.IsEmpty() {
			return nil, err
		}
		return []jvm.MemoryLocation{
			jvm.HeapLocation{Refs: obj.Refs, Field: ins.Field.Name},
			jvm.HeapLocation{Refs: obj.Refs, Field: heap.ObjectField},
		}, nil
	case bytecode.KindArrayLoad:
		arr, err := pre.Peek(1)
		if err != nil || arr.Refs.IsEmpty() {
			return nil, err
		}
		return []jvm.MemoryLocation{jvm.HeapLocation{Refs: arr.Refs, Field: heap.ArrayField}}, nil
	case bytecode.KindStack:
		perm, _ := bytecode.StackPermutation(ins.Opcode)
		return []jvm.MemoryLocation{jvm.StackLocation{Index: perm[i]}}, nil
	}
	// constants and new objects
	return nil, nil
}

// invoke adds the predecessors of s along an invocation edge. The tainted data may come from a source called there,
// from the return exit of the blocks of the callees, or from the arguments of the callees that are not expanded.
func (t *transfer) invoke(s *State, edge *cfa.InstructionEdge, ins bytecode.Instruction, pre *taint.State,
	add func(*State)) error {
	pops, pushes := ins.StackEffect()
	site := jvm.NewCallSite(t.cfa, edge)
	args := jvm.ArgumentLocations(ins)
	callees := s.Block.Calls[site.Node]
	isReturned := false
	if l, ok := s.Memory.(jvm.StackLocation); ok {
		if l.Index >= pushes {
			// below the arguments: calls do not modify the stack of the caller
			return t.addFollowed(s, s.Block, site.Node, pre, []jvm.MemoryLocation{below(l, pushes, pops)}, s.frames, add)
		}
		isReturned = true
	}
	if _, ok := s.Memory.(jvm.LocalLocation); ok {
		return t.addFollowed(s, s.Block, site.Node, pre, []jvm.MemoryLocation{s.Memory}, s.frames, add)
	}

	unknown := len(callees) == 0
	for _, target := range site.Targets {
		if slices.IndexFunc(callees, func(b *block) bool { return b.Signature == target }) < 0 {
			unknown = true
		}
	}
	if unknown {
		for _, target := range site.Targets {
			sources := t.problem.MatchingSources(target)
			if len(sources) == 0 && isReturned {
				if err := t.addFollowed(s, s.Block, site.Node, pre, argumentInputs(args, pre), s.frames,
					add); err != nil {
					return err
				}
			}
			for _, src := range sources {
				taints, err := sourceTaints(src, ins, pre, args, s.Memory)
				if err != nil {
					return err
				}
				if taints && t.relevantSource(src) {
					add(s.marker(site.Node, src))
				}
			}
		}
		if !isReturned {
			if err := t.addFollowed(s, s.Block, site.Node, pre, []jvm.MemoryLocation{s.Memory}, s.frames,
				add); err != nil {
				return err
			}
		}
	}

	frames := push(s.frames, frame{block: s.Block, node: site.Node})
	for _, callee := range callees {
		exit, ok := t.cfa.ExitNode(callee.Signature)
		if !ok {
			continue
		}
		for _, ret := range callee.StatesAt(exit.ID) {
			if err := t.addFollowed(s, callee, exit.ID, ret, []jvm.MemoryLocation{s.Memory}, frames, add); err != nil {
				return err
			}
		}
	}
	return nil
}

// argumentInputs returns the arguments of an unknown call and the content of the objects they point to
func argumentInputs(args []jvm.StackLocation, pre *taint.State) []jvm.MemoryLocation {
	var locs []jvm.MemoryLocation
	for _, a := range args {
		locs = append(locs, a)
		if v, err := pre.Peek(a.Index); err == nil && !v.Refs.IsEmpty() {
			locs = append(locs, jvm.HeapLocation{Refs: v.Refs, Field: heap.ObjectField})
		}
	}
	return locs
}

// sourceTaints returns true if the call to the source puts its taint in the location after the call
func sourceTaints(src *taint.TaintSource, ins bytecode.Instruction, pre *taint.State, args []jvm.StackLocation,
	loc jvm.MemoryLocation) (bool, error) {
	switch l := loc.(type) {
	case jvm.StackLocation:
		return src.TaintsReturn, nil
	case jvm.StaticLocation:
		return slices.Contains(src.TaintsGlobals, l.FQN), nil
	case jvm.HeapLocation:
		if l.Field != heap.ObjectField {
			return false, nil
		}
		var positions []int
		first := 0
		if !ins.Opcode.IsStatic() {
			first = 1
			if src.TaintsThis {
				positions = append(positions, 0)
			}
		}
		for _, k := range src.TaintsArgs {
			positions = append(positions, first+k-1)
		}
		for _, p := range positions {
			if p >= len(args) {
				continue
			}
			v, err := pre.Peek(args[p].Index)
			if err != nil {
				return false, err
			}
			if v.Refs.Intersects(l.Refs) {
				return true, nil
			}
		}
	}
	return false, nil
}

// returnToCallers adds the predecessors of a state at the entry of a method: the arguments of the invocations of its
// block. States entered from a return exit go back to the invocation they come from, other states to every
// invocation where the block is expanded.
func (t *transfer) returnToCallers(s *State, add func(*State)) error {
	if len(s.frames) > 0 {
		top := s.frames[len(s.frames)-1]
		return t.toCaller(s, top.block, top.node, s.frames[:len(s.frames)-1], add)
	}
	for _, caller := range t.analyzer.Callers(s.Block) {
		if err := t.toCaller(s, caller.Block, caller.Node, nil, add); err != nil {
			return err
		}
	}
	return nil
}

func (t *transfer) toCaller(s *State, b *block, node cfa.NodeID, frames []frame, add func(*State)) error {
	ins, ok := t.cfa.Instruction(node)
	if !ok || ins.Kind() != bytecode.KindInvoke {
		return fmt.Errorf("call site %d of %s is not an invocation", node, s.Block)
	}
	loc := s.Memory
	switch l := loc.(type) {
	case jvm.StackLocation:
		// the stack of a method is empty at its entry
		return nil
	case jvm.LocalLocation:
		i, isArg := jvm.ArgumentOfSlot(ins, l.Index)
		if !isArg {
			return nil
		}
		loc = jvm.ArgumentLocations(ins)[i]
	}
	for _, pre := range b.StatesAt(node) {
		if err := t.addFollowed(s, b, node, pre, []jvm.MemoryLocation{loc}, frames, add); err != nil {
			return err
		}
	}
	return nil
}
