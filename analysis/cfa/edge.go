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
)

// An Edge is a step between two nodes of a CFA. The set of edge types is closed: *InstructionEdge, *CallEdge,
// *AssumeCaseEdge, *AssumeDefaultEdge and *AssumeExceptionEdge. Edges are immutable once created.
type Edge interface {
	ID() int
	Source() NodeID
	Target() NodeID
	isEdge()
}

type edge struct {
	id     int
	source NodeID
	target NodeID
}

func (e *edge) ID() int { return e.id }

func (e *edge) Source() NodeID { return e.source }

func (e *edge) Target() NodeID { return e.target }

func (e *edge) isEdge() {}

// An InstructionEdge steps over the instruction at Offset in Code. The instruction is decoded when needed.
type InstructionEdge struct {
	edge
	Code   *bytecode.Code
	Offset int
}

// Instruction returns the instruction of the edge
func (e *InstructionEdge) Instruction() bytecode.Instruction {
	ins, _ := e.Code.InstructionAt(e.Offset)
	return ins
}

func (e *InstructionEdge) String() string {
	return fmt.Sprintf("%d -[%s]-> %d", e.source, e.Instruction(), e.target)
}

// A CallEdge links an invocation to the entry of a callee, or to the unknown node when the callee's code is not
// available.
type CallEdge struct {
	edge
	Call *callgraph.Call
}

func (e *CallEdge) String() string {
	return fmt.Sprintf("%d -[call %s]-> %d", e.source, e.Call.Target, e.target)
}

// An AssumeCaseEdge is taken by a switch instruction when its key equals Case
type AssumeCaseEdge struct {
	edge
	Code   *bytecode.Code
	Offset int
	Case   int32
}

// Instruction returns the switch instruction of the edge
func (e *AssumeCaseEdge) Instruction() bytecode.Instruction {
	ins, _ := e.Code.InstructionAt(e.Offset)
	return ins
}

func (e *AssumeCaseEdge) String() string {
	return fmt.Sprintf("%d -[case %d]-> %d", e.source, e.Case, e.target)
}

// An AssumeDefaultEdge is taken by a switch instruction when its key matches none of the cases
type AssumeDefaultEdge struct {
	edge
	Code   *bytecode.Code
	Offset int
}

// Instruction returns the switch instruction of the edge
func (e *AssumeDefaultEdge) Instruction() bytecode.Instruction {
	ins, _ := e.Code.InstructionAt(e.Offset)
	return ins
}

func (e *AssumeDefaultEdge) String() string {
	return fmt.Sprintf("%d -[default]-> %d", e.source, e.target)
}

// An AssumeExceptionEdge leaves a catch node: either the exception is caught by the handler, or it propagates to the
// next handler or to the exception exit of the method.
type AssumeExceptionEdge struct {
	edge
	Caught     bool
	CatchType  int
	CatchClass string
}

func (e *AssumeExceptionEdge) String() string {
	if e.Caught {
		return fmt.Sprintf("%d -[caught %d]-> %d", e.source, e.CatchType, e.target)
	}
	return fmt.Sprintf("%d -[not caught %d]-> %d", e.source, e.CatchType, e.target)
}

// IsInterprocedural returns true for call edges
func IsInterprocedural(e Edge) bool {
	_, ok := e.(*CallEdge)
	return ok
}
