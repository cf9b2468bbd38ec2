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

package heap_test

import (
	"fmt"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
	"github.com/google/go-cmp/cmp"
)

// val is a value made of a reference set and a set of labels
type val struct {
	refs   heap.ReferenceSet
	labels uint
}

func (v val) Join(o val) val { return val{refs: v.refs.Join(o.refs), labels: v.labels | o.labels} }

func (v val) IsLessOrEqual(o val) bool {
	return v.refs.IsLessOrEqual(o.refs) && v.labels&^o.labels == 0
}

func (v val) Equal(o val) bool { return v.refs.Equal(o.refs) && v.labels == o.labels }

func (v val) References() heap.ReferenceSet { return v.refs }

func (v val) String() string { return fmt.Sprintf("%s/%b", v.refs, v.labels) }

func valueOf(refs heap.ReferenceSet) val { return val{refs: refs} }

func label(l uint) val { return val{labels: l} }

func param(slot int) heap.Reference {
	return heap.Reference{Site: 1, Origin: heap.Origin{Kind: heap.Parameter, Slot: slot}}
}

func TestReferenceSet(t *testing.T) {
	a := heap.Reference{Site: 2}
	b := param(0)
	c := heap.Reference{Site: 3, Origin: heap.Origin{Kind: heap.Static, Field: "A.f"}}
	ab := heap.NewReferenceSet(a, b)
	bc := heap.NewReferenceSet(b, c)
	abc := ab.Join(bc)
	if abc.Len() != 3 || !ab.IsLessOrEqual(abc) || !bc.IsLessOrEqual(abc) {
		t.Errorf("join should be the union, got %s", abc)
	}
	if !ab.Intersects(bc) || heap.NewReferenceSet(a).Intersects(heap.NewReferenceSet(c)) {
		t.Errorf("wrong intersection test")
	}
	if diff := cmp.Diff("{param0@1, new@2, static(A.f)}", abc.String()); diff != "" {
		t.Errorf("unexpected string (-want +got):\n%s", diff)
	}
	if !abc.Join(ab).Equal(abc) || !(heap.ReferenceSet{}).IsEmpty() {
		t.Errorf("wrong join with subset or empty set")
	}
	if b.Child("f").Child("f") != b.Child("f") {
		t.Errorf("children of synthesized references should not grow")
	}
}

func TestHeapNodeLatticeLaws(t *testing.T) {
	nodes := []heap.HeapNode[val]{
		heap.NewHeapNode[val](nil),
		heap.NewHeapNode(map[string]val{"f": label(1)}),
		heap.NewHeapNode(map[string]val{"f": label(2), "g": label(1)}),
		heap.NewHeapNode(map[string]val{"g": {refs: heap.NewReferenceSet(param(0))}}),
	}
	for i, a := range nodes {
		for j, b := range nodes {
			ab, ba := a.Join(b), b.Join(a)
			if !ab.Equal(ba) {
				t.Errorf("join of %d and %d is not commutative", i, j)
			}
			if !a.IsLessOrEqual(ab) || !b.IsLessOrEqual(ab) {
				t.Errorf("join of %d and %d is not an upper bound", i, j)
			}
			if a.IsLessOrEqual(b) && b.IsLessOrEqual(a) && !a.Equal(b) {
				t.Errorf("order is not antisymmetric for %d and %d", i, j)
			}
			for k, c := range nodes {
				if !a.Join(b).Join(c).Equal(a.Join(b.Join(c))) {
					t.Errorf("join of %d, %d and %d is not associative", i, j, k)
				}
			}
		}
		if !a.Join(a).Equal(a) {
			t.Errorf("join of %d is not idempotent", i)
		}
	}
}

// sampleHeaps returns tree heaps with different contents
func sampleHeaps() []heap.State[val] {
	p0 := valueOf(heap.NewReferenceSet(param(0)))
	p1 := valueOf(heap.NewReferenceSet(param(1)))

	empty := heap.NewTreeHeap(valueOf)

	h1 := heap.NewTreeHeap(valueOf)
	h1.SetField(p0, "f", label(1))

	h2 := heap.NewTreeHeap(valueOf)
	h2.SetField(p0, "f", label(2))
	h2.SetField(p1, "g", p0)

	h3 := heap.NewTreeHeap(valueOf)
	o := h3.NewObject(7)
	h3.SetField(o, "f", label(4))
	h3.SetArrayElement(o, label(1))
	h3.SetField(p0.Join(p1), heap.ObjectField, label(8))

	return []heap.State[val]{empty, h1, h2, h3}
}

func TestTreeHeapLatticeLaws(t *testing.T) {
	heaps := sampleHeaps()
	for i, a := range heaps {
		for j, b := range heaps {
			ab, ba := a.Join(b), b.Join(a)
			if !ab.Equal(ba) {
				t.Errorf("join of %d and %d is not commutative: %v vs %v", i, j, ab, ba)
			}
			if !a.IsLessOrEqual(ab) || !b.IsLessOrEqual(ab) {
				t.Errorf("join of %d and %d is not an upper bound", i, j)
			}
			if a.IsLessOrEqual(b) && b.IsLessOrEqual(a) && !a.Equal(b) {
				t.Errorf("order is not antisymmetric for %d and %d", i, j)
			}
			for k, c := range heaps {
				if !a.Join(b).Join(c).Equal(a.Join(b.Join(c))) {
					t.Errorf("join of %d, %d and %d is not associative", i, j, k)
				}
			}
		}
		if !a.Join(a).Equal(a) {
			t.Errorf("join of %d is not idempotent", i)
		}
		if a.Join(a.Copy()) != a {
			t.Errorf("join should return its receiver when nothing changes")
		}
	}
}

func TestForgetfulHeap(t *testing.T) {
	def := label(1)
	h := heap.NewState[val](heap.ForgetfulModel, valueOf, def)
	o := h.NewObject(3)
	if !o.References().Contains(heap.Reference{Site: 3}) {
		t.Errorf("new objects should point to their allocation site")
	}
	h.SetField(o, "f", label(2))
	if got := h.GetField(o, "f"); !got.Equal(def) {
		t.Errorf("forgetful heap should read the default, got %v", got)
	}
	h.SetArrayElement(o, label(2))
	if got := h.GetArrayElementOrDefault(o, label(4)); !got.Equal(def) {
		t.Errorf("forgetful heap should read the default, got %v", got)
	}
	other := heap.NewForgetfulHeap(valueOf, def)
	if h.Join(other) != h || !h.IsLessOrEqual(other) || !other.Equal(h) || h.Copy() != h {
		t.Errorf("forgetful heaps form a single element lattice")
	}
}

// Writing through an ambiguous reference set joins the new value with the previous one, while writing through a
// single reference overwrites it.
func TestTreeHeapWeakAndStrongUpdates(t *testing.T) {
	h := heap.NewTreeHeap(valueOf)
	r1 := h.NewObject(1)
	r2 := h.NewObject(2)
	h.SetField(r1, "f", label(1))
	h.SetField(r2, "f", label(2))

	h.SetField(r1.Join(r2), "f", label(4))
	if got := h.GetField(r1, "f"); got.labels != 1|4 {
		t.Errorf("weak update should join with the old value of r1, got %b", got.labels)
	}
	if got := h.GetField(r2, "f"); got.labels != 2|4 {
		t.Errorf("weak update should join with the old value of r2, got %b", got.labels)
	}
	if got := h.GetField(r1.Join(r2), "f"); got.labels != 1|2|4 {
		t.Errorf("reading through both references should join their fields, got %b", got.labels)
	}

	h.SetField(r1, "f", label(8))
	if got := h.GetField(r1, "f"); got.labels != 8 {
		t.Errorf("strong update should overwrite the field, got %b", got.labels)
	}
	if got := h.GetField(r2, "f"); got.labels != 2|4 {
		t.Errorf("strong update of r1 should not change r2, got %b", got.labels)
	}
}

func TestTreeHeapLazyReads(t *testing.T) {
	h := heap.NewTreeHeap(valueOf)
	p := param(0)
	pv := valueOf(heap.NewReferenceSet(p))

	f := h.GetField(pv, "f")
	if diff := cmp.Diff([]heap.Reference{p.Child("f")}, f.References().Slice()); diff != "" {
		t.Errorf("unset fields of parameters should point to a synthesized reference (-want +got):\n%s", diff)
	}
	if !h.GetField(f, "f").Equal(f) {
		t.Errorf("reading through synthesized references should reuse them")
	}
	o := h.NewObject(4)
	if got := h.GetField(o, "f"); !got.Equal(val{}) {
		t.Errorf("unset fields of new objects should be empty, got %v", got)
	}
	if got := h.GetField(val{}, "f"); !got.Equal(val{}) {
		t.Errorf("reading through no reference should be empty, got %v", got)
	}
	if len(h.References()) != 0 {
		t.Errorf("reads should not modify the heap")
	}
}

func TestTreeHeapObjectContent(t *testing.T) {
	h := heap.NewTreeHeap(valueOf)
	o := h.NewObject(4)
	h.SetField(o, "g", label(1))
	h.SetField(o, heap.ObjectField, label(2))
	if got := h.GetField(o, "g"); got.labels != 3 {
		t.Errorf("fields should include the object content, got %b", got.labels)
	}
	if got := h.GetField(o, heap.ObjectField); got.labels != 2 {
		t.Errorf("object content should be read alone, got %b", got.labels)
	}
}

func TestTreeHeapArrays(t *testing.T) {
	h := heap.NewTreeHeap(valueOf)
	a := h.NewArray(cfa.NodeID(5))
	def := label(16)
	if got := h.GetArrayElementOrDefault(a, def); !got.Equal(def) {
		t.Errorf("elements of new arrays should read the default, got %v", got)
	}
	h.SetArrayElement(a, label(1))
	h.SetArrayElement(a, label(2))
	if got := h.GetArrayElementOrDefault(a, def); got.labels != 3 {
		t.Errorf("array writes should be weak, got %b", got.labels)
	}
	b := h.NewArray(6)
	if got := h.GetArrayElementOrDefault(a.Join(b), def); got.labels != 3|16 {
		t.Errorf("arrays without elements should contribute the default, got %b", got.labels)
	}
}

func TestTreeHeapCopy(t *testing.T) {
	h := heap.NewTreeHeap(valueOf)
	o := h.NewObject(1)
	h.SetField(o, "f", label(1))
	c := h.Copy()
	c.SetField(o, "f", label(2))
	if got := h.GetField(o, "f"); got.labels != 1 {
		t.Errorf("writing a copy should not modify the original, got %b", got.labels)
	}
	if h.Equal(c) {
		t.Errorf("copy should have diverged")
	}
	if got := h.Join(c).(*heap.TreeHeap[val]).GetField(o, "f"); got.labels != 3 {
		t.Errorf("join should join the field values, got %b", got.labels)
	}
}
