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

// Package cfa implements the control-flow automaton of JVM programs: a graph whose nodes are the program points of
// the methods and whose edges are instructions, calls and assumptions on the outcome of switches and exceptions.
//
// Nodes live in an arena and are referred to by their NodeID. Each CFA has its own unknown node, with id
// UnknownNodeID, that is the target of calls to methods whose code is not available.
package cfa

import (
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/callgraph"
	"github.com/awslabs/ar-jvm-tools/internal/graphutil"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// CFA is a control-flow automaton. A CFA is built once and can be read concurrently afterwards, through the methods
// that do not add nodes or edges. Build creates the exit nodes of every method, so ExitNode and ExceptionExit never
// need to create them.
type CFA struct {
	nodes   []*Node
	edges   []Edge
	index   map[nodeKey]NodeID
	methods map[bytecode.MethodSignature][]NodeID
}

// New returns a CFA that contains only its unknown node
func New() *CFA {
	c := &CFA{}
	c.Clear()
	return c
}

// Clear removes all the nodes and edges of the CFA. The unknown node is reset and has no entering edges.
func (c *CFA) Clear() {
	c.nodes = []*Node{{ID: UnknownNodeID, Kind: UnknownNode}}
	c.edges = nil
	c.index = map[nodeKey]NodeID{}
	c.methods = map[bytecode.MethodSignature][]NodeID{}
}

// Node returns the node with the given id
func (c *CFA) Node(id NodeID) *Node {
	return c.nodes[id]
}

// Instruction returns the instruction of an instruction node, decoded from one of its leaving edges
func (c *CFA) Instruction(id NodeID) (bytecode.Instruction, bool) {
	for _, e := range c.nodes[id].leaving {
		switch edge := e.(type) {
		case *InstructionEdge:
			return edge.Instruction(), true
		case *AssumeCaseEdge:
			return edge.Instruction(), true
		case *AssumeDefaultEdge:
			return edge.Instruction(), true
		}
	}
	return bytecode.Instruction{}, false
}

// Unknown returns the unknown node of the CFA
func (c *CFA) Unknown() *Node {
	return c.nodes[UnknownNodeID]
}

// NumNodes returns the number of nodes of the CFA, including the unknown node
func (c *CFA) NumNodes() int {
	return len(c.nodes)
}

// NumEdges returns the number of edges of the CFA
func (c *CFA) NumEdges() int {
	return len(c.edges)
}

// Methods returns the signatures of the methods that have nodes in the CFA, ordered
func (c *CFA) Methods() []bytecode.MethodSignature {
	sigs := maps.Keys(c.methods)
	slices.SortFunc(sigs, bytecode.MethodSignature.Less)
	return sigs
}

// Nodes returns the nodes of the method in the order they were created
func (c *CFA) Nodes(sig bytecode.MethodSignature) []*Node {
	ids := c.methods[sig]
	nodes := make([]*Node, len(ids))
	for i, id := range ids {
		nodes[i] = c.nodes[id]
	}
	return nodes
}

func (c *CFA) nodeIfAbsent(key nodeKey, catchClass string) *Node {
	if id, ok := c.index[key]; ok {
		return c.nodes[id]
	}
	n := &Node{
		ID:         NodeID(len(c.nodes)),
		Kind:       key.kind,
		Signature:  key.signature,
		Offset:     key.offset,
		CatchType:  key.catchType,
		CatchClass: catchClass,
	}
	c.nodes = append(c.nodes, n)
	c.index[key] = n.ID
	c.methods[key.signature] = append(c.methods[key.signature], n.ID)
	return n
}

// AddNodeIfAbsent returns the instruction node of the method at the offset, creating it if needed
func (c *CFA) AddNodeIfAbsent(sig bytecode.MethodSignature, offset int) *Node {
	return c.nodeIfAbsent(nodeKey{signature: sig, offset: offset, kind: InstructionNode}, "")
}

// AddCatchNodeIfAbsent returns the catch node of the handler at offset for the catch type, creating it if needed
func (c *CFA) AddCatchNodeIfAbsent(sig bytecode.MethodSignature, offset int, catchType int,
	catchClass string) *Node {
	return c.nodeIfAbsent(nodeKey{signature: sig, offset: offset, kind: CatchNode, catchType: catchType}, catchClass)
}

// FunctionNode returns the instruction node of the method at the offset, if it exists
func (c *CFA) FunctionNode(sig bytecode.MethodSignature, offset int) (*Node, bool) {
	id, ok := c.index[nodeKey{signature: sig, offset: offset, kind: InstructionNode}]
	if !ok {
		return nil, false
	}
	return c.nodes[id], true
}

// CatchNode returns the catch node of the method at the offset for the catch type, if it exists
func (c *CFA) CatchNode(sig bytecode.MethodSignature, offset int, catchType int) (*Node, bool) {
	id, ok := c.index[nodeKey{signature: sig, offset: offset, kind: CatchNode, catchType: catchType}]
	if !ok {
		return nil, false
	}
	return c.nodes[id], true
}

// FunctionEntryNode returns the entry node of the method, which exists only if the method's code is in the CFA
func (c *CFA) FunctionEntryNode(sig bytecode.MethodSignature) (*Node, bool) {
	return c.FunctionNode(sig, 0)
}

// ExitNode returns the return exit of the method, if it exists. It never creates the node.
func (c *CFA) ExitNode(sig bytecode.MethodSignature) (*Node, bool) {
	return c.lookup(nodeKey{signature: sig, offset: ReturnExitOffset, kind: ReturnExitNode})
}

// ExceptionExit returns the exception exit of the method, if it exists. It never creates the node.
func (c *CFA) ExceptionExit(sig bytecode.MethodSignature) (*Node, bool) {
	return c.lookup(nodeKey{signature: sig, offset: ExceptionExitOffset, kind: ExceptionExitNode})
}

func (c *CFA) lookup(key nodeKey) (*Node, bool) {
	id, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.nodes[id], true
}

// FunctionReturnExitNode returns the return exit of the method. It is created on the first call.
func (c *CFA) FunctionReturnExitNode(sig bytecode.MethodSignature) *Node {
	return c.nodeIfAbsent(nodeKey{signature: sig, offset: ReturnExitOffset, kind: ReturnExitNode}, "")
}

// FunctionExceptionExitNode returns the exception exit of the method. It is created on the first call.
func (c *CFA) FunctionExceptionExitNode(sig bytecode.MethodSignature) *Node {
	return c.nodeIfAbsent(nodeKey{signature: sig, offset: ExceptionExitOffset, kind: ExceptionExitNode}, "")
}

func (c *CFA) addEdge(e Edge) {
	c.edges = append(c.edges, e)
	src, tgt := c.nodes[e.Source()], c.nodes[e.Target()]
	src.leaving = append(src.leaving, e)
	tgt.entering = append(tgt.entering, e)
}

func (c *CFA) base(source, target NodeID) edge {
	return edge{id: len(c.edges), source: source, target: target}
}

// AddInstructionEdge adds an edge for the instruction at offset in code
func (c *CFA) AddInstructionEdge(source, target NodeID, code *bytecode.Code, offset int) *InstructionEdge {
	e := &InstructionEdge{edge: c.base(source, target), Code: code, Offset: offset}
	c.addEdge(e)
	return e
}

// AddAssumeCaseEdge adds an edge taken by the switch at offset when its key is key
func (c *CFA) AddAssumeCaseEdge(source, target NodeID, code *bytecode.Code, offset int, key int32) *AssumeCaseEdge {
	e := &AssumeCaseEdge{edge: c.base(source, target), Code: code, Offset: offset, Case: key}
	c.addEdge(e)
	return e
}

// AddAssumeDefaultEdge adds an edge taken by the switch at offset when no case matches its key
func (c *CFA) AddAssumeDefaultEdge(source, target NodeID, code *bytecode.Code, offset int) *AssumeDefaultEdge {
	e := &AssumeDefaultEdge{edge: c.base(source, target), Code: code, Offset: offset}
	c.addEdge(e)
	return e
}

// AddAssumeExceptionEdge adds an edge leaving the catch node source
func (c *CFA) AddAssumeExceptionEdge(source, target NodeID, caught bool) *AssumeExceptionEdge {
	n := c.nodes[source]
	e := &AssumeExceptionEdge{
		edge:       c.base(source, target),
		Caught:     caught,
		CatchType:  n.CatchType,
		CatchClass: n.CatchClass,
	}
	c.addEdge(e)
	return e
}

// AddInterproceduralEdge adds a call edge from the node of the call's invocation to the entry node of the callee,
// or to the unknown node if the callee has no entry node in the CFA.
func (c *CFA) AddInterproceduralEdge(call *callgraph.Call) (*CallEdge, error) {
	if entry, ok := c.FunctionEntryNode(call.Target); ok {
		return c.addCallEdge(call, entry.ID)
	}
	return c.AddUnknownTargetInterproceduralEdge(call)
}

// AddUnknownTargetInterproceduralEdge adds a call edge from the node of the call's invocation to the unknown node
func (c *CFA) AddUnknownTargetInterproceduralEdge(call *callgraph.Call) (*CallEdge, error) {
	return c.addCallEdge(call, UnknownNodeID)
}

func (c *CFA) addCallEdge(call *callgraph.Call, target NodeID) (*CallEdge, error) {
	src, ok := c.FunctionNode(call.Caller.Signature, call.Caller.Offset)
	if !ok {
		return nil, fmt.Errorf("no node for the invocation of call %s", call)
	}
	e := &CallEdge{edge: c.base(src.ID, target), Call: call}
	c.addEdge(e)
	return e, nil
}

// Priorities returns a priority for each node of the method, such that a node has a lower priority than the nodes
// it reaches through intraprocedural edges, unless they are in the same loop.
func (c *CFA) Priorities(sig bytecode.MethodSignature) map[NodeID]int {
	ids := c.methods[sig]
	local := make(map[NodeID]int, len(ids))
	for i, id := range ids {
		local[id] = i
	}
	g := graphutil.NewDigraph(len(ids))
	for i, id := range ids {
		for _, e := range c.nodes[id].LeavingIntraproceduralEdges() {
			if j, ok := local[e.Target()]; ok {
				g.AddEdge(i, j)
			}
		}
	}
	rank := g.TopologicalRank()
	res := make(map[NodeID]int, len(ids))
	for i, id := range ids {
		res[id] = rank[i]
	}
	return res
}
