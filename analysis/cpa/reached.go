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
	"golang.org/x/exp/slices"
)

type reachedEntry struct {
	precision Precision
	seq       uint64
}

// A ReachedSet contains the states discovered by the algorithm and their precision, partitioned by program location.
// States are identified by identity.
type ReachedSet struct {
	entries    map[AbstractState]*reachedEntry
	byLocation map[any][]AbstractState
	seq        uint64
}

// NewReachedSet returns an empty reached set
func NewReachedSet() *ReachedSet {
	return &ReachedSet{
		entries:    map[AbstractState]*reachedEntry{},
		byLocation: map[any][]AbstractState{},
	}
}

// Add adds the state with its precision. If the state is already in the set, its precision is updated.
func (r *ReachedSet) Add(state AbstractState, precision Precision) {
	if e, ok := r.entries[state]; ok {
		e.precision = precision
		return
	}
	r.seq++
	r.entries[state] = &reachedEntry{precision: precision, seq: r.seq}
	loc := state.Location()
	r.byLocation[loc] = append(r.byLocation[loc], state)
}

// Remove removes the state from the set. It does nothing if the state is not in the set.
func (r *ReachedSet) Remove(state AbstractState) {
	if _, ok := r.entries[state]; !ok {
		return
	}
	delete(r.entries, state)
	loc := state.Location()
	states := r.byLocation[loc]
	if i := slices.IndexFunc(states, func(s AbstractState) bool { return s == state }); i >= 0 {
		states = slices.Delete(states, i, i+1)
	}
	if len(states) == 0 {
		delete(r.byLocation, loc)
	} else {
		r.byLocation[loc] = states
	}
}

// Contains returns true if the state is in the set
func (r *ReachedSet) Contains(state AbstractState) bool {
	_, ok := r.entries[state]
	return ok
}

// Precision returns the precision of the state, or nil if the state is not in the set
func (r *ReachedSet) Precision(state AbstractState) Precision {
	if e, ok := r.entries[state]; ok {
		return e.precision
	}
	return nil
}

// Reached returns the states at the location of state, in insertion order.
func (r *ReachedSet) Reached(state AbstractState) []AbstractState {
	return r.StatesAt(state.Location())
}

// StatesAt returns the states at the location, in insertion order. The returned slice can be modified by the caller.
func (r *ReachedSet) StatesAt(location any) []AbstractState {
	return slices.Clone(r.byLocation[location])
}

// States returns all the states of the set, in insertion order.
func (r *ReachedSet) States() []AbstractState {
	states := make([]AbstractState, 0, len(r.entries))
	for s := range r.entries {
		states = append(states, s)
	}
	slices.SortFunc(states, func(a, b AbstractState) bool { return r.entries[a].seq < r.entries[b].seq })
	return states
}

// Locations returns the number of distinct locations of the states in the set
func (r *ReachedSet) Locations() int {
	return len(r.byLocation)
}

// Size returns the number of states in the set
func (r *ReachedSet) Size() int {
	return len(r.entries)
}

// IsEmpty returns true if the set contains no state
func (r *ReachedSet) IsEmpty() bool {
	return len(r.entries) == 0
}

// Clear removes all the states of the set
func (r *ReachedSet) Clear() {
	r.entries = map[AbstractState]*reachedEntry{}
	r.byLocation = map[any][]AbstractState{}
}
