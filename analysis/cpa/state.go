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

// An AbstractState is an element of the abstract domain of an analysis.
type AbstractState interface {
	// Location returns the program location of the state. Locations are used as keys in the reached set and must be
	// comparable.
	Location() any

	// Join returns the least upper bound of the state and other. The receiver and other must not be modified.
	Join(other AbstractState) AbstractState

	// IsLessOrEqual returns true if the state is covered by other in the lattice order
	IsLessOrEqual(other AbstractState) bool

	// Equal returns true if the state and other denote the same lattice element
	Equal(other AbstractState) bool

	// Copy returns a state equal to the receiver that can be modified without affecting the receiver
	Copy() AbstractState
}

// Lattice is the constraint satisfied by the values of a lattice of type T. Components of abstract states (values,
// heaps, taint sets) implement it.
type Lattice[T any] interface {
	Join(other T) T
	IsLessOrEqual(other T) bool
	Equal(other T) bool
}

// A Precision tunes how abstract successors are computed from a state. Most analyses use the StaticPrecision.
type Precision interface{}

// StaticPrecision is the precision of analyses that do not refine their precision
type StaticPrecision struct{}
