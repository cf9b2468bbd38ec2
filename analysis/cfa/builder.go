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

package cfa

import (
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/callgraph"
	"golang.org/x/exp/slices"
)

// Build returns the CFA of all the methods of the pool that have code. The call edges of invocations are added from
// the call graph; an invocation without calls in the call graph has no call edge.
//
// Only athrow and invocations have exceptional successors: an exceptional edge leads from the instruction to the
// catch node of the first handler covering it, or to the exception exit of the method. Catch nodes are chained in the
// order of the exception table by not-caught edges.
func Build(pool *bytecode.ClassPool, cg *callgraph.CallGraph) (*CFA, error) {
	c := New()
	var methods []*bytecode.Method
	for _, m := range pool.Methods() {
		if m.HasCode() {
			methods = append(methods, m)
		}
	}
	// all nodes first, so that call edges can link to the entries of callees
	for _, m := range methods {
		c.addMethodNodes(m)
	}
	for _, m := range methods {
		if err := c.addMethodEdges(m, cg); err != nil {
			return nil, fmt.Errorf("while building cfa of %s: %w", m.Signature, err)
		}
	}
	return c, nil
}

func (c *CFA) addMethodNodes(m *bytecode.Method) {
	for _, ins := range m.Code.Instructions {
		c.AddNodeIfAbsent(m.Signature, ins.Offset)
	}
	for _, h := range m.Code.ExceptionTable {
		c.AddCatchNodeIfAbsent(m.Signature, h.HandlerPC, h.CatchType, h.CatchClass)
	}
	// exits exist even when nothing reaches them, so that readers never add nodes
	c.FunctionReturnExitNode(m.Signature)
	c.FunctionExceptionExitNode(m.Signature)
}

func (c *CFA) addMethodEdges(m *bytecode.Method, cg *callgraph.CallGraph) error {
	sig, code := m.Signature, m.Code
	nodeAt := func(offset int) (NodeID, error) {
		n, ok := c.FunctionNode(sig, offset)
		if !ok {
			return 0, fmt.Errorf("no instruction at offset %d", offset)
		}
		return n.ID, nil
	}
	for _, ins := range code.Instructions {
		src, _ := nodeAt(ins.Offset)
		switch ins.Kind() {
		case bytecode.KindGoto:
			tgt, err := nodeAt(ins.Target)
			if err != nil {
				return err
			}
			c.AddInstructionEdge(src, tgt, code, ins.Offset)
		case bytecode.KindBranch:
			tgt, err := nodeAt(ins.Target)
			if err != nil {
				return err
			}
			next, err := nodeAt(ins.Next())
			if err != nil {
				return fmt.Errorf("%s at %d falls off the end of the code", ins, ins.Offset)
			}
			c.AddInstructionEdge(src, tgt, code, ins.Offset)
			if next != tgt {
				c.AddInstructionEdge(src, next, code, ins.Offset)
			}
		case bytecode.KindSwitch:
			for _, sc := range ins.Switch.Cases {
				tgt, err := nodeAt(sc.Target)
				if err != nil {
					return err
				}
				c.AddAssumeCaseEdge(src, tgt, code, ins.Offset, sc.Key)
			}
			def, err := nodeAt(ins.Switch.Default)
			if err != nil {
				return err
			}
			c.AddAssumeDefaultEdge(src, def, code, ins.Offset)
		case bytecode.KindReturn:
			c.AddInstructionEdge(src, c.FunctionReturnExitNode(sig).ID, code, ins.Offset)
		case bytecode.KindThrow:
			c.AddInstructionEdge(src, c.exceptionTarget(m, ins.Offset), code, ins.Offset)
		case bytecode.KindInvoke:
			next, err := nodeAt(ins.Next())
			if err != nil {
				return fmt.Errorf("%s at %d falls off the end of the code", ins, ins.Offset)
			}
			c.AddInstructionEdge(src, next, code, ins.Offset)
			c.AddInstructionEdge(src, c.exceptionTarget(m, ins.Offset), code, ins.Offset)
			for _, call := range cg.CallsAt(callgraph.CodeLocation{Signature: sig, Offset: ins.Offset}) {
				if _, err := c.AddInterproceduralEdge(call); err != nil {
					return err
				}
			}
		case bytecode.KindUnsupported:
			// the edge is kept so that the transfer relation reports the instruction
			tgt, err := nodeAt(ins.Next())
			if err != nil {
				tgt = c.FunctionReturnExitNode(sig).ID
			}
			c.AddInstructionEdge(src, tgt, code, ins.Offset)
		default:
			next, err := nodeAt(ins.Next())
			if err != nil {
				return fmt.Errorf("%s at %d falls off the end of the code", ins, ins.Offset)
			}
			c.AddInstructionEdge(src, next, code, ins.Offset)
		}
	}
	c.addCatchEdges(m)
	return nil
}

// exceptionTarget returns the node reached by an exception thrown at offset: the catch node of the first handler
// covering the offset, or the exception exit.
func (c *CFA) exceptionTarget(m *bytecode.Method, offset int) NodeID {
	handlers := m.Code.CoveringHandlers(offset)
	if len(handlers) == 0 {
		return c.FunctionExceptionExitNode(m.Signature).ID
	}
	h := m.Code.ExceptionTable[handlers[0]]
	n, _ := c.CatchNode(m.Signature, h.HandlerPC, h.CatchType)
	return n.ID
}

// addCatchEdges adds the caught and not-caught edges of the catch nodes of the method. An exception that is not
// caught by a handler is matched against the next handler of the table that covers the instruction throwing it, so
// a catch node has a not-caught edge for each next handler of the instructions whose first handlers lead to it.
// Finally handlers catch everything and have no not-caught edge.
func (c *CFA) addCatchEdges(m *bytecode.Method) {
	table := m.Code.ExceptionTable
	catchNode := func(i int) NodeID {
		n, _ := c.CatchNode(m.Signature, table[i].HandlerPC, table[i].CatchType)
		return n.ID
	}
	exit := c.FunctionExceptionExitNode(m.Signature).ID

	var nodes []NodeID
	notCaught := map[NodeID][]NodeID{}
	for i, h := range table {
		n := catchNode(i)
		if _, ok := notCaught[n]; ok {
			continue
		}
		notCaught[n] = nil
		nodes = append(nodes, n)
		handler, _ := c.FunctionNode(m.Signature, h.HandlerPC)
		c.AddAssumeExceptionEdge(n, handler.ID, true)
	}

	addNext := func(n NodeID, next NodeID) {
		if !slices.Contains(notCaught[n], next) {
			notCaught[n] = append(notCaught[n], next)
		}
	}
	for _, ins := range m.Code.Instructions {
		if ins.Kind() != bytecode.KindThrow && ins.Kind() != bytecode.KindInvoke {
			continue
		}
		chain := m.Code.CoveringHandlers(ins.Offset)
		for k, i := range chain {
			if table[i].CatchType == bytecode.AnyCatchType {
				break
			}
			next := exit
			for _, j := range chain[k+1:] {
				if o := catchNode(j); o != catchNode(i) {
					next = o
					break
				}
			}
			addNext(catchNode(i), next)
		}
	}

	for _, n := range nodes {
		if c.nodes[n].CatchType == bytecode.AnyCatchType {
			continue
		}
		targets := notCaught[n]
		if len(targets) == 0 {
			// no instruction of the handler's range throws: the catch node is unreachable
			targets = []NodeID{exit}
		}
		for _, next := range targets {
			c.AddAssumeExceptionEdge(n, next, false)
		}
	}
}
