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
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
	"github.com/awslabs/ar-jvm-tools/analysis/jvm"
)

// A Finding is a sensitive input of a sink invocation that is tainted by sources valid for the sink
type Finding struct {
	Sink   *TaintSink
	Target bytecode.MethodSignature
	// Node is the invocation of the sink
	Node cfa.NodeID
	// Location holds the tainted value in the state before the invocation
	Location jvm.MemoryLocation
	// Taint contains the sources valid for the sink only
	Taint TaintAbstractState
}

func (f Finding) String() string {
	return fmt.Sprintf("%s at %d: %s tainted by %s", f.Target, f.Node, f.Location, f.Taint)
}

// CheckSinks returns the findings of the state, which must be the state before an instruction of c. Only invocations
// of sinks have findings.
func CheckSinks(p *Problem, c *cfa.CFA, state *State) ([]Finding, error) {
	ins, ok := c.Instruction(state.Node)
	if !ok || ins.Kind() != bytecode.KindInvoke {
		return nil, nil
	}
	var findings []Finding
	for _, target := range callTargets(c, state.Node, ins) {
		for _, sink := range p.MatchingSinks(target) {
			locations, err := sensitiveLocations(sink, ins, state)
			if err != nil {
				return nil, fmt.Errorf("while checking sink %s at %d: %w", sink, state.Node, err)
			}
			for _, loc := range locations {
				v, err := jvm.ValueAt(state, loc)
				if err != nil {
					return nil, err
				}
				t := v.Taint.Filter(func(id int) bool { return sink.ValidFor(p.Source(id)) })
				if t.IsBottom() {
					continue
				}
				findings = append(findings, Finding{
					Sink:     sink,
					Target:   target,
					Node:     state.Node,
					Location: loc,
					Taint:    t,
				})
			}
		}
	}
	return findings, nil
}

func callTargets(c *cfa.CFA, node cfa.NodeID, ins bytecode.Instruction) []bytecode.MethodSignature {
	var targets []bytecode.MethodSignature
	for _, call := range c.Node(node).LeavingInterproceduralEdges() {
		targets = append(targets, call.Call.Target)
	}
	if len(targets) == 0 {
		targets = append(targets, ins.Method.Signature())
	}
	return targets
}

// sensitiveLocations returns the locations of the sensitive inputs of the sink invoked by ins. For the receiver and
// the arguments, the content of the objects they point to is sensitive too.
func sensitiveLocations(sink *TaintSink, ins bytecode.Instruction, state *State) ([]jvm.MemoryLocation, error) {
	args := jvm.ArgumentLocations(ins)
	first := 0
	if !ins.Opcode.IsStatic() {
		first = 1
	}
	var locs []jvm.MemoryLocation
	stack := func(loc jvm.StackLocation) error {
		v, err := state.Peek(loc.Index)
		if err != nil {
			return err
		}
		locs = append(locs, loc)
		if !v.Refs.IsEmpty() {
			locs = append(locs, jvm.HeapLocation{Refs: v.Refs, Field: heap.ObjectField})
		}
		return nil
	}
	if sink.TakesInstance && first == 1 {
		if err := stack(args[0]); err != nil {
			return nil, err
		}
	}
	for _, k := range sink.TakesArgs {
		if first+k-1 >= len(args) {
			return nil, fmt.Errorf("argument %d of %s does not exist", k, ins.Method.Signature())
		}
		if err := stack(args[first+k-1]); err != nil {
			return nil, err
		}
	}
	for _, g := range sink.TakesGlobals {
		locs = append(locs, jvm.StaticLocation{FQN: g})
	}
	return locs, nil
}
