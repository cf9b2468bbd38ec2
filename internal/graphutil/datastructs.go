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

package graphutil

// Tree is a simple generic implementation of a tree. Trees are built from the root by adding children, and
// read from a leaf towards the root.
type Tree[T any] struct {
	Parent   *Tree[T]
	Children []*Tree[T]
	Label    T
}

// NewTree returns a new tree with the labels of the type provided
func NewTree[T any](rootLabel T) *Tree[T] {
	return &Tree[T]{
		Parent:   nil,
		Children: nil,
		Label:    rootLabel,
	}
}

// AddChild adds a new child with the given label and returns it
func (t *Tree[T]) AddChild(label T) *Tree[T] {
	newChild := &Tree[T]{
		Parent:   t,
		Children: nil,
		Label:    label,
	}
	if t.Children == nil {
		t.Children = []*Tree[T]{newChild}
	} else {
		t.Children = append(t.Children, newChild)
	}
	return newChild
}

// Depth returns the number of edges between t and the root of its tree
func (t *Tree[T]) Depth() int {
	d := 0
	for cur := t.Parent; cur != nil; cur = cur.Parent {
		d++
	}
	return d
}

// PathLabels returns the labels from the root of the tree to t, in that order.
func (t *Tree[T]) PathLabels() []T {
	labels := make([]T, t.Depth()+1)
	for cur, i := t, len(labels)-1; cur != nil; cur, i = cur.Parent, i-1 {
		labels[i] = cur.Label
	}
	return labels
}
