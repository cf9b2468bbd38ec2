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

package heap

import (
	"fmt"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// OriginKind describes where the object denoted by a reference comes from
type OriginKind int

const (
	// Allocation references are created by new and the array creation instructions
	Allocation OriginKind = iota
	// Parameter references denote objects passed as arguments to the analyzed entry method
	Parameter
	// Return references denote objects returned by calls whose code is not analyzed
	Return
	// Static references denote objects stored in static fields before the analysis starts
	Static
	// Heap references denote objects stored in the field of another object before the analysis starts
	Heap
)

// Origin is the location a reference was created from
type Origin struct {
	Kind OriginKind
	// Slot is the local variable of parameter references, and the slot of the parent reference for heap references
	Slot int
	// Field is the field of heap references, or the fully qualified name of static references
	Field string
}

// A Reference is an abstract pointer. References are values: two references are equal when they have the same
// creation site and the same origin.
type Reference struct {
	// Site is the node of the CFA where the reference is created
	Site   cfa.NodeID
	Origin Origin
}

// Child returns the reference synthesized for the objects stored in field of the objects of r before the analysis
// started. Children of heap references are heap references of the same site and slot, so that only finitely many
// references are synthesized.
func (r Reference) Child(field string) Reference {
	return Reference{Site: r.Site, Origin: Origin{Kind: Heap, Slot: r.Origin.Slot, Field: field}}
}

func (r Reference) String() string {
	switch r.Origin.Kind {
	case Allocation:
		return fmt.Sprintf("new@%d", r.Site)
	case Parameter:
		return fmt.Sprintf("param%d@%d", r.Origin.Slot, r.Site)
	case Return:
		return fmt.Sprintf("ret@%d", r.Site)
	case Static:
		return fmt.Sprintf("static(%s)", r.Origin.Field)
	default:
		return fmt.Sprintf("heap%d@%d.%s", r.Origin.Slot, r.Site, r.Origin.Field)
	}
}

func (r Reference) less(o Reference) bool {
	if r.Site != o.Site {
		return r.Site < o.Site
	}
	if r.Origin.Kind != o.Origin.Kind {
		return r.Origin.Kind < o.Origin.Kind
	}
	if r.Origin.Slot != o.Origin.Slot {
		return r.Origin.Slot < o.Origin.Slot
	}
	return r.Origin.Field < o.Origin.Field
}

// A ReferenceSet is an immutable set of references: the objects a value may point to. The zero value is the empty
// set.
type ReferenceSet struct {
	refs map[Reference]struct{}
}

// NewReferenceSet returns the set of the references given
func NewReferenceSet(refs ...Reference) ReferenceSet {
	if len(refs) == 0 {
		return ReferenceSet{}
	}
	m := make(map[Reference]struct{}, len(refs))
	for _, r := range refs {
		m[r] = struct{}{}
	}
	return ReferenceSet{refs: m}
}

// Len returns the number of references in the set
func (s ReferenceSet) Len() int {
	return len(s.refs)
}

// IsEmpty returns true if the set has no reference
func (s ReferenceSet) IsEmpty() bool {
	return len(s.refs) == 0
}

// Contains returns true if r is in the set
func (s ReferenceSet) Contains(r Reference) bool {
	_, ok := s.refs[r]
	return ok
}

// Join returns the union of the sets. It returns the receiver when other is a subset of it.
func (s ReferenceSet) Join(other ReferenceSet) ReferenceSet {
	if other.IsLessOrEqual(s) {
		return s
	}
	if s.IsLessOrEqual(other) {
		return other
	}
	m := make(map[Reference]struct{}, len(s.refs)+len(other.refs))
	maps.Copy(m, s.refs)
	maps.Copy(m, other.refs)
	return ReferenceSet{refs: m}
}

// IsLessOrEqual returns true if s is a subset of other
func (s ReferenceSet) IsLessOrEqual(other ReferenceSet) bool {
	if len(s.refs) > len(other.refs) {
		return false
	}
	for r := range s.refs {
		if _, ok := other.refs[r]; !ok {
			return false
		}
	}
	return true
}

// Equal returns true if the sets have the same references
func (s ReferenceSet) Equal(other ReferenceSet) bool {
	return len(s.refs) == len(other.refs) && s.IsLessOrEqual(other)
}

// Intersects returns true if the sets have a reference in common
func (s ReferenceSet) Intersects(other ReferenceSet) bool {
	small, large := s, other
	if small.Len() > large.Len() {
		small, large = large, small
	}
	for r := range small.refs {
		if large.Contains(r) {
			return true
		}
	}
	return false
}

// Slice returns the references of the set in a deterministic order
func (s ReferenceSet) Slice() []Reference {
	refs := maps.Keys(s.refs)
	slices.SortFunc(refs, Reference.less)
	return refs
}

func (s ReferenceSet) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, r := range s.Slice() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteString("}")
	return b.String()
}
