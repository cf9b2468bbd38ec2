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
)

// NodeID identifies a node in the arena of a CFA
type NodeID int

// UnknownNodeID is the id of the unknown node of every CFA. Calls to methods whose code is not available lead to the
// unknown node, which never has leaving edges.
const UnknownNodeID NodeID = 0

// Offsets of the exit nodes of a method. They cannot collide with instruction offsets, which are non-negative.
const (
	ReturnExitOffset    = -1
	ExceptionExitOffset = -2
)

// NodeKind is the kind of a CFA node
type NodeKind int

const (
	// InstructionNode is the program point before the instruction at the node's offset
	InstructionNode NodeKind = iota
	// CatchNode is the entry of an exception handler, before the exception is matched against the catch type
	CatchNode
	// ReturnExitNode is the unique point reached by the normal returns of a method
	ReturnExitNode
	// ExceptionExitNode is the unique point reached by exceptions that are not caught in the method
	ExceptionExitNode
	// UnknownNode is the target of calls to methods without code
	UnknownNode
)

func (k NodeKind) String() string {
	switch k {
	case InstructionNode:
		return "instruction"
	case CatchNode:
		return "catch"
	case ReturnExitNode:
		return "return-exit"
	case ExceptionExitNode:
		return "exception-exit"
	case UnknownNode:
		return "unknown"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// A Node is a program point of a CFA. Nodes are identified by their method signature, offset and kind, and by their
// catch type for catch nodes.
type Node struct {
	ID        NodeID
	Kind      NodeKind
	Signature bytecode.MethodSignature
	Offset    int
	// CatchType is the catch type of catch nodes; bytecode.AnyCatchType for finally handlers
	CatchType int
	// CatchClass is the name of the exception class caught by catch nodes, empty for finally handlers
	CatchClass string

	entering []Edge
	leaving  []Edge
}

// Class returns the name of the class that declares the node's method
func (n *Node) Class() string {
	return n.Signature.Class
}

// IsExit returns true for the return-exit and exception-exit nodes
func (n *Node) IsExit() bool {
	return n.Kind == ReturnExitNode || n.Kind == ExceptionExitNode
}

// IsEntry returns true if the node is the entry of its method
func (n *Node) IsEntry() bool {
	return n.Kind == InstructionNode && n.Offset == 0
}

// EnteringEdges returns all the edges whose target is the node
func (n *Node) EnteringEdges() []Edge {
	return n.entering
}

// LeavingEdges returns all the edges whose source is the node
func (n *Node) LeavingEdges() []Edge {
	return n.leaving
}

// LeavingIntraproceduralEdges returns the leaving edges that stay in the node's method
func (n *Node) LeavingIntraproceduralEdges() []Edge {
	return intraprocedural(n.leaving)
}

// LeavingInterproceduralEdges returns the call edges leaving the node
func (n *Node) LeavingInterproceduralEdges() []*CallEdge {
	return interprocedural(n.leaving)
}

// EnteringIntraproceduralEdges returns the entering edges whose source is in the node's method
func (n *Node) EnteringIntraproceduralEdges() []Edge {
	return intraprocedural(n.entering)
}

// EnteringInterproceduralEdges returns the call edges entering the node
func (n *Node) EnteringInterproceduralEdges() []*CallEdge {
	return interprocedural(n.entering)
}

func intraprocedural(edges []Edge) []Edge {
	var res []Edge
	for _, e := range edges {
		if _, isCall := e.(*CallEdge); !isCall {
			res = append(res, e)
		}
	}
	return res
}

func interprocedural(edges []Edge) []*CallEdge {
	var res []*CallEdge
	for _, e := range edges {
		if c, isCall := e.(*CallEdge); isCall {
			res = append(res, c)
		}
	}
	return res
}

func (n *Node) String() string {
	switch n.Kind {
	case UnknownNode:
		return "<unknown>"
	case InstructionNode:
		return fmt.Sprintf("%s@%d", n.Signature, n.Offset)
	case CatchNode:
		if n.CatchType == bytecode.AnyCatchType {
			return fmt.Sprintf("%s@%d[finally]", n.Signature, n.Offset)
		}
		return fmt.Sprintf("%s@%d[catch %s]", n.Signature, n.Offset, n.CatchClass)
	default:
		return fmt.Sprintf("%s@%s", n.Signature, n.Kind)
	}
}

type nodeKey struct {
	signature bytecode.MethodSignature
	offset    int
	kind      NodeKind
	catchType int
}
