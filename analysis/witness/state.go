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
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/cpa"
	"github.com/awslabs/ar-jvm-tools/analysis/jvm"
	"github.com/awslabs/ar-jvm-tools/analysis/taint"
	"github.com/awslabs/ar-jvm-tools/internal/graphutil"
)

type block = bam.Block[taint.Value]

// frame is an invocation whose callee was entered from its return exit. The backward analysis goes back to the
// invocation when it reaches the entry of the callee.
type frame struct {
	block *block
	node  cfa.NodeID
}

// location is the program location of the states of the backward analysis
type location struct {
	block int
	node  cfa.NodeID
}

// State is a state of the backward analysis: a memory location holding tainted data in the state before a node of a
// block. Marker states, with a source, mean that the source called at their node put the tainted data in their
// memory location, at the end of their path.
type State struct {
	Block  *block
	Node   cfa.NodeID
	Memory jvm.MemoryLocation
	Source *taint.TaintSource

	frames []frame
	// path goes from the location of the alarm to the location of the state
	path *graphutil.Tree[TraceElement]
}

// IsMarker returns true if the state marks the source of the data at the end of its path
func (s *State) IsMarker() bool {
	return s.Source != nil
}

// Location returns the block and node of the state
func (s *State) Location() any {
	return location{block: s.Block.ID, node: s.Node}
}

// IsLessOrEqual returns true if the states are equal: the lattice of locations is flat.
func (s *State) IsLessOrEqual(other cpa.AbstractState) bool {
	o := other.(*State)
	if s.Block != o.Block || s.Node != o.Node || s.Source != o.Source || len(s.frames) != len(o.frames) {
		return false
	}
	if s.Memory.Key() != o.Memory.Key() {
		return false
	}
	for i, f := range s.frames {
		if f != o.frames[i] {
			return false
		}
	}
	return true
}

func (s *State) Equal(other cpa.AbstractState) bool {
	return s.IsLessOrEqual(other)
}

// Join returns one of the states when they are comparable. The backward analysis never merges states, and the join
// of different locations is not defined.
func (s *State) Join(other cpa.AbstractState) cpa.AbstractState {
	if !s.IsLessOrEqual(other) {
		panic(fmt.Sprintf("cannot join witness states %v and %v", s, other))
	}
	return s
}

// Copy returns the state itself: states of the backward analysis are never modified
func (s *State) Copy() cpa.AbstractState {
	return s
}

func (s *State) String() string {
	if s.IsMarker() {
		return fmt.Sprintf("source %s at %d", s.Source, s.Node)
	}
	return fmt.Sprintf("%s at %d in block %d", s.Memory, s.Node, s.Block.ID)
}

func (s *State) next(b *block, node cfa.NodeID, loc jvm.MemoryLocation, frames []frame) *State {
	return &State{
		Block:  b,
		Node:   node,
		Memory: loc,
		frames: frames,
		path:   s.path.AddChild(TraceElement{Node: node, Location: loc}),
	}
}

func (s *State) marker(node cfa.NodeID, src *taint.TaintSource) *State {
	return &State{Block: s.Block, Node: node, Memory: s.Memory, Source: src, frames: s.frames, path: s.path}
}

// push returns the frames with f on top, without modifying frames
func push(frames []frame, f frame) []frame {
	res := make([]frame, len(frames), len(frames)+1)
	copy(res, frames)
	return append(res, f)
}
