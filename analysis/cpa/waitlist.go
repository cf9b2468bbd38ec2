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

package cpa

import (
	"container/heap"

	"golang.org/x/exp/slices"
)

// A Waitlist contains the states that remain to be processed by the algorithm. Each implementation defines the
// order in which states are popped.
type Waitlist interface {
	Add(state AbstractState)
	// Pop removes and returns the next state. It must not be called on an empty waitlist.
	Pop() AbstractState
	// Remove removes the state, compared by identity, if it is in the waitlist
	Remove(state AbstractState)
	Contains(state AbstractState) bool
	IsEmpty() bool
	Size() int
	Clear()
}

// BreadthFirstWaitlist pops states in the order they were added (FIFO)
type BreadthFirstWaitlist struct {
	states []AbstractState
}

// NewBreadthFirstWaitlist returns an empty FIFO waitlist
func NewBreadthFirstWaitlist() *BreadthFirstWaitlist {
	return &BreadthFirstWaitlist{}
}

func (w *BreadthFirstWaitlist) Add(state AbstractState) { w.states = append(w.states, state) }

func (w *BreadthFirstWaitlist) Pop() AbstractState {
	s := w.states[0]
	w.states[0] = nil
	w.states = w.states[1:]
	return s
}

func (w *BreadthFirstWaitlist) Remove(state AbstractState) {
	w.states = removeState(w.states, state)
}

func (w *BreadthFirstWaitlist) Contains(state AbstractState) bool {
	return indexOf(w.states, state) >= 0
}

func (w *BreadthFirstWaitlist) IsEmpty() bool { return len(w.states) == 0 }

func (w *BreadthFirstWaitlist) Size() int { return len(w.states) }

func (w *BreadthFirstWaitlist) Clear() { w.states = nil }

// DepthFirstWaitlist pops the state added last first (LIFO)
type DepthFirstWaitlist struct {
	states []AbstractState
}

// NewDepthFirstWaitlist returns an empty LIFO waitlist
func NewDepthFirstWaitlist() *DepthFirstWaitlist {
	return &DepthFirstWaitlist{}
}

func (w *DepthFirstWaitlist) Add(state AbstractState) { w.states = append(w.states, state) }

func (w *DepthFirstWaitlist) Pop() AbstractState {
	n := len(w.states) - 1
	s := w.states[n]
	w.states[n] = nil
	w.states = w.states[:n]
	return s
}

func (w *DepthFirstWaitlist) Remove(state AbstractState) {
	w.states = removeState(w.states, state)
}

func (w *DepthFirstWaitlist) Contains(state AbstractState) bool {
	return indexOf(w.states, state) >= 0
}

func (w *DepthFirstWaitlist) IsEmpty() bool { return len(w.states) == 0 }

func (w *DepthFirstWaitlist) Size() int { return len(w.states) }

func (w *DepthFirstWaitlist) Clear() { w.states = nil }

func indexOf(states []AbstractState, state AbstractState) int {
	return slices.IndexFunc(states, func(s AbstractState) bool { return s == state })
}

func removeState(states []AbstractState, state AbstractState) []AbstractState {
	if i := indexOf(states, state); i >= 0 {
		return slices.Delete(states, i, i+1)
	}
	return states
}

// PriorityWaitlist pops the state with the lowest priority first. States with the same priority are popped in the
// order they were added.
type PriorityWaitlist struct {
	priority func(AbstractState) int
	items    priorityQueue
	seq      uint64
}

// NewPriorityWaitlist returns an empty waitlist ordered by the priority function
func NewPriorityWaitlist(priority func(AbstractState) int) *PriorityWaitlist {
	return &PriorityWaitlist{priority: priority}
}

func (w *PriorityWaitlist) Add(state AbstractState) {
	w.seq++
	heap.Push(&w.items, &priorityItem{state: state, priority: w.priority(state), seq: w.seq})
}

func (w *PriorityWaitlist) Pop() AbstractState {
	return heap.Pop(&w.items).(*priorityItem).state
}

func (w *PriorityWaitlist) Remove(state AbstractState) {
	for i, item := range w.items {
		if item.state == state {
			heap.Remove(&w.items, i)
			return
		}
	}
}

func (w *PriorityWaitlist) Contains(state AbstractState) bool {
	return slices.IndexFunc(w.items, func(item *priorityItem) bool { return item.state == state }) >= 0
}

func (w *PriorityWaitlist) IsEmpty() bool { return len(w.items) == 0 }

func (w *PriorityWaitlist) Size() int { return len(w.items) }

func (w *PriorityWaitlist) Clear() { w.items = nil }

type priorityItem struct {
	state    AbstractState
	priority int
	seq      uint64
}

// priorityQueue implements heap.Interface
type priorityQueue []*priorityItem

func (q priorityQueue) Len() int { return len(q) }

func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *priorityQueue) Push(x any) { *q = append(*q, x.(*priorityItem)) }

func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
