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
	"golang.org/x/tools/container/intsets"
)

// TaintAbstractState is the set of the sources that may taint a value. The join is the union of the sets and the
// bottom element, the empty set, is the zero value. Taint states are immutable.
type TaintAbstractState struct {
	set *intsets.Sparse
}

// NewTaintAbstractState returns the state containing the source ids
func NewTaintAbstractState(ids ...int) TaintAbstractState {
	if len(ids) == 0 {
		return TaintAbstractState{}
	}
	set := &intsets.Sparse{}
	for _, id := range ids {
		set.Insert(id)
	}
	return TaintAbstractState{set: set}
}

// IsBottom returns true if no source taints the value
func (t TaintAbstractState) IsBottom() bool {
	return t.set == nil || t.set.IsEmpty()
}

// Contains returns true if the source id is in the state
func (t TaintAbstractState) Contains(id int) bool {
	return t.set != nil && t.set.Has(id)
}

// Sources returns the ids of the sources, in increasing order
func (t TaintAbstractState) Sources() []int {
	if t.set == nil {
		return nil
	}
	return t.set.AppendTo(nil)
}

// Join returns the union of the states. One of the operands is returned when it contains the other.
func (t TaintAbstractState) Join(other TaintAbstractState) TaintAbstractState {
	if other.IsLessOrEqual(t) {
		return t
	}
	if t.IsLessOrEqual(other) {
		return other
	}
	set := &intsets.Sparse{}
	set.Union(t.set, other.set)
	return TaintAbstractState{set: set}
}

// IsLessOrEqual returns true if t is a subset of other
func (t TaintAbstractState) IsLessOrEqual(other TaintAbstractState) bool {
	if t.IsBottom() {
		return true
	}
	if other.IsBottom() {
		return false
	}
	return t.set.SubsetOf(other.set)
}

// Equal returns true if the states contain the same sources
func (t TaintAbstractState) Equal(other TaintAbstractState) bool {
	if t.IsBottom() || other.IsBottom() {
		return t.IsBottom() == other.IsBottom()
	}
	return t.set.Equals(other.set)
}

// Filter returns the state with only the sources for which keep is true
func (t TaintAbstractState) Filter(keep func(id int) bool) TaintAbstractState {
	var ids []int
	for _, id := range t.Sources() {
		if keep(id) {
			ids = append(ids, id)
		}
	}
	return NewTaintAbstractState(ids...)
}

func (t TaintAbstractState) String() string {
	if t.set == nil {
		return "{}"
	}
	return t.set.String()
}
