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

// A HeapNode is the abstraction of the objects denoted by one reference: a map from field names to values. Heap
// nodes are immutable; writes return a new node.
type HeapNode[V Value[V]] struct {
	fields map[string]V
}

// NewHeapNode returns a node with the given fields
func NewHeapNode[V Value[V]](fields map[string]V) HeapNode[V] {
	return HeapNode[V]{fields: maps.Clone(fields)}
}

// Field returns the value of the field, if the node has one
func (n HeapNode[V]) Field(name string) (V, bool) {
	v, ok := n.fields[name]
	return v, ok
}

// Fields returns the names of the fields of the node, ordered
func (n HeapNode[V]) Fields() []string {
	names := maps.Keys(n.fields)
	slices.Sort(names)
	return names
}

func (n HeapNode[V]) with(field string, value V) HeapNode[V] {
	fields := make(map[string]V, len(n.fields)+1)
	maps.Copy(fields, n.fields)
	fields[field] = value
	return HeapNode[V]{fields: fields}
}

// Join returns the field-wise join of the nodes. A field that is missing in one node takes the value of the other.
func (n HeapNode[V]) Join(other HeapNode[V]) HeapNode[V] {
	j, _ := n.joinWith(other, nil)
	return j
}

// joinWith joins the nodes; a field missing in one node is joined with missing(field) if missing is not nil.
// The receiver is returned, with false, when the join does not change it.
func (n HeapNode[V]) joinWith(other HeapNode[V], missing func(string) V) (HeapNode[V], bool) {
	var fields map[string]V
	set := func(f string, v V) {
		if fields == nil {
			fields = make(map[string]V, len(n.fields)+len(other.fields))
			maps.Copy(fields, n.fields)
		}
		fields[f] = v
	}
	for f, ov := range other.fields {
		nv, ok := n.fields[f]
		switch {
		case ok:
			if j := nv.Join(ov); !j.Equal(nv) {
				set(f, j)
			}
		case missing != nil:
			lazy := missing(f)
			if j := lazy.Join(ov); !j.Equal(lazy) {
				set(f, j)
			}
		default:
			set(f, ov)
		}
	}
	if missing != nil {
		for f, nv := range n.fields {
			if _, ok := other.fields[f]; !ok {
				if j := nv.Join(missing(f)); !j.Equal(nv) {
					set(f, j)
				}
			}
		}
	}
	if fields == nil {
		return n, false
	}
	return HeapNode[V]{fields: fields}, true
}

// IsLessOrEqual returns true if every field of n is less or equal than the same field in other
func (n HeapNode[V]) IsLessOrEqual(other HeapNode[V]) bool {
	for f, v := range n.fields {
		ov, ok := other.fields[f]
		if !ok || !v.IsLessOrEqual(ov) {
			return false
		}
	}
	return true
}

// Equal returns true if the nodes have the same fields with equal values
func (n HeapNode[V]) Equal(other HeapNode[V]) bool {
	return maps.EqualFunc(n.fields, other.fields, func(a, b V) bool { return a.Equal(b) })
}

// TreeHeap maps references to heap nodes. Writes through a single reference are strong updates; writes through
// several references are weak updates that join the new value with the previous one. Array elements are always
// weakly updated.
//
// Reading a field that was never written returns the value of a reference synthesized for the object already in
// the heap when the analysis started. For objects allocated during the analysis, such reads return the value of the
// empty reference set.
type TreeHeap[V Value[V]] struct {
	nodes   map[Reference]HeapNode[V]
	valueOf func(ReferenceSet) V
}

// NewTreeHeap returns an empty tree heap. valueOf returns the abstract value of a set of references.
func NewTreeHeap[V Value[V]](valueOf func(ReferenceSet) V) *TreeHeap[V] {
	return &TreeHeap[V]{nodes: map[Reference]HeapNode[V]{}, valueOf: valueOf}
}

// Node returns the heap node of the reference, if the heap has one
func (h *TreeHeap[V]) Node(r Reference) (HeapNode[V], bool) {
	n, ok := h.nodes[r]
	return n, ok
}

// References returns the references that have a heap node, ordered
func (h *TreeHeap[V]) References() []Reference {
	return NewReferenceSet(maps.Keys(h.nodes)...).Slice()
}

func (h *TreeHeap[V]) NewObject(site cfa.NodeID) V {
	return h.valueOf(NewReferenceSet(Reference{Site: site, Origin: Origin{Kind: Allocation}}))
}

func (h *TreeHeap[V]) NewArray(site cfa.NodeID) V {
	return h.NewObject(site)
}

// lazy returns the value of a field of r that was never written
func (h *TreeHeap[V]) lazy(r Reference, field string) V {
	if r.Origin.Kind == Allocation || field == ObjectField || field == ArrayField {
		return h.valueOf(ReferenceSet{})
	}
	return h.valueOf(NewReferenceSet(r.Child(field)))
}

func (h *TreeHeap[V]) read(r Reference, field string) V {
	if v, ok := h.nodes[r].fields[field]; ok {
		return v
	}
	return h.lazy(r, field)
}

func (h *TreeHeap[V]) GetField(ref V, field string) V {
	res := h.valueOf(ReferenceSet{})
	for _, r := range ref.References().Slice() {
		res = res.Join(h.read(r, field))
		if field != ObjectField {
			if content, ok := h.nodes[r].fields[ObjectField]; ok {
				res = res.Join(content)
			}
		}
	}
	return res
}

func (h *TreeHeap[V]) SetField(ref V, field string, value V) {
	refs := ref.References()
	switch refs.Len() {
	case 0:
		return
	case 1:
		r := refs.Slice()[0]
		h.nodes[r] = h.nodes[r].with(field, value)
	default:
		for _, r := range refs.Slice() {
			h.nodes[r] = h.nodes[r].with(field, h.read(r, field).Join(value))
		}
	}
}

func (h *TreeHeap[V]) GetArrayElementOrDefault(array V, def V) V {
	var res V
	found := false
	for _, r := range array.References().Slice() {
		v, ok := h.nodes[r].fields[ArrayField]
		if !ok {
			v = def
		}
		if !found {
			res, found = v, true
		} else {
			res = res.Join(v)
		}
	}
	if !found {
		return def
	}
	return res
}

func (h *TreeHeap[V]) SetArrayElement(array V, value V) {
	for _, r := range array.References().Slice() {
		v := value
		if old, ok := h.nodes[r].fields[ArrayField]; ok {
			v = old.Join(value)
		}
		h.nodes[r] = h.nodes[r].with(ArrayField, v)
	}
}

// Join returns the reference-wise join of the heaps. A field missing in one heap is joined as the value it would be
// read as. The receiver is returned when the join does not change it.
func (h *TreeHeap[V]) Join(other State[V]) State[V] {
	o := other.(*TreeHeap[V])
	var nodes map[Reference]HeapNode[V]
	update := func(r Reference, n HeapNode[V]) {
		if nodes == nil {
			nodes = maps.Clone(h.nodes)
		}
		nodes[r] = n
	}
	for r, on := range o.nodes {
		if j, changed := h.nodes[r].joinWith(on, func(f string) V { return h.lazy(r, f) }); changed {
			update(r, j)
		}
	}
	for r, n := range h.nodes {
		if _, ok := o.nodes[r]; ok {
			continue
		}
		if j, changed := n.joinWith(HeapNode[V]{}, func(f string) V { return o.lazy(r, f) }); changed {
			update(r, j)
		}
	}
	if nodes == nil {
		return h
	}
	return &TreeHeap[V]{nodes: nodes, valueOf: h.valueOf}
}

// IsLessOrEqual returns true if every field of every reference is less or equal in h than in other, where fields
// that were never written have their lazy value.
func (h *TreeHeap[V]) IsLessOrEqual(other State[V]) bool {
	o := other.(*TreeHeap[V])
	for r, n := range h.nodes {
		for f, v := range n.fields {
			if !v.IsLessOrEqual(o.read(r, f)) {
				return false
			}
		}
	}
	for r, on := range o.nodes {
		for f, ov := range on.fields {
			if _, ok := h.nodes[r].fields[f]; !ok && !h.lazy(r, f).IsLessOrEqual(ov) {
				return false
			}
		}
	}
	return true
}

// Equal returns true if the heaps read the same values in all fields
func (h *TreeHeap[V]) Equal(other State[V]) bool {
	return h.IsLessOrEqual(other) && other.IsLessOrEqual(h)
}

// Copy returns a heap that can be written without modifying h
func (h *TreeHeap[V]) Copy() State[V] {
	return &TreeHeap[V]{nodes: maps.Clone(h.nodes), valueOf: h.valueOf}
}

func (h *TreeHeap[V]) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, r := range h.References() {
		if i > 0 {
			b.WriteString(", ")
		}
		n := h.nodes[r]
		fmt.Fprintf(&b, "%s: {", r)
		for j, f := range n.Fields() {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %v", f, n.fields[f])
		}
		b.WriteString("}")
	}
	b.WriteString("}")
	return b.String()
}
