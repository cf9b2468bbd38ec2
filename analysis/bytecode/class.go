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

package bytecode

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// AnyCatchType is the catch type of exception handlers that catch any exception, e.g. finally blocks
const AnyCatchType = 0

// An ExceptionHandler is an entry of the exception table of a method's code. The handler covers the instructions at
// offsets StartPC <= offset < EndPC.
type ExceptionHandler struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	// CatchType is the index of the caught class in the constant pool, or AnyCatchType
	CatchType int
	// CatchClass is the name of the caught class, empty when CatchType is AnyCatchType
	CatchClass string
}

// Covers returns true if the instruction at offset is protected by the handler
func (h ExceptionHandler) Covers(offset int) bool {
	return h.StartPC <= offset && offset < h.EndPC
}

// Code is the code attribute of a method: its instructions ordered by offset and its exception table.
type Code struct {
	MaxLocals      int
	Instructions   []Instruction
	ExceptionTable []ExceptionHandler
	index          map[int]int
}

// NewCode returns the code with the given instructions, which must be ordered by offset.
func NewCode(maxLocals int, instructions []Instruction, handlers []ExceptionHandler) (*Code, error) {
	c := &Code{
		MaxLocals:      maxLocals,
		Instructions:   instructions,
		ExceptionTable: handlers,
		index:          make(map[int]int, len(instructions)),
	}
	prev := -1
	for i, ins := range instructions {
		if ins.Offset <= prev {
			return nil, fmt.Errorf("instruction %s at offset %d is not in order", ins, ins.Offset)
		}
		c.index[ins.Offset] = i
		prev = ins.Offset
	}
	for _, ins := range instructions {
		for _, target := range ins.BranchTargets() {
			if _, ok := c.index[target]; !ok {
				return nil, fmt.Errorf("%s at offset %d jumps to %d, which is not an instruction", ins, ins.Offset, target)
			}
		}
	}
	for _, h := range handlers {
		if _, ok := c.index[h.HandlerPC]; !ok {
			return nil, fmt.Errorf("exception handler at %d is not an instruction", h.HandlerPC)
		}
	}
	return c, nil
}

// InstructionAt returns the instruction at the given offset
func (c *Code) InstructionAt(offset int) (Instruction, bool) {
	i, ok := c.index[offset]
	if !ok {
		return Instruction{}, false
	}
	return c.Instructions[i], true
}

// CoveringHandlers returns the indices, in table order, of the exception handlers covering the offset
func (c *Code) CoveringHandlers(offset int) []int {
	var res []int
	for i, h := range c.ExceptionTable {
		if h.Covers(offset) {
			res = append(res, i)
		}
	}
	return res
}

// AccessFlags of a method
type AccessFlags uint16

const (
	AccStatic   AccessFlags = 0x0008
	AccNative   AccessFlags = 0x0100
	AccAbstract AccessFlags = 0x0400
)

// A Method of a class. Methods without code (native, abstract, or library methods that are not loaded) have a nil
// Code.
type Method struct {
	Signature MethodSignature
	Access    AccessFlags
	Code      *Code
}

// IsStatic returns true for static methods
func (m *Method) IsStatic() bool {
	return m.Access&AccStatic != 0
}

// HasCode returns true if the code of the method is available
func (m *Method) HasCode() bool {
	return m.Code != nil
}

// ArgumentSize returns the number of stack entries taken by the arguments of the method, including the receiver
func (m *Method) ArgumentSize() int {
	n := m.Signature.ParsedDescriptor().ParamSize()
	if !m.IsStatic() {
		n++
	}
	return n
}

// A Class is a named set of methods with a superclass and interfaces
type Class struct {
	Name        string
	Super       string
	Interfaces  []string
	IsInterface bool
	methods     map[string]*Method
}

// NewClass returns a class without methods
func NewClass(name string, super string, interfaces []string, isInterface bool) *Class {
	return &Class{
		Name:        name,
		Super:       super,
		Interfaces:  interfaces,
		IsInterface: isInterface,
		methods:     map[string]*Method{},
	}
}

// AddMethod adds a method to the class. The method's signature class is set to the class name.
func (c *Class) AddMethod(name string, descriptor string, access AccessFlags, code *Code) (*Method, error) {
	if _, err := ParseMethodDescriptor(descriptor); err != nil {
		return nil, err
	}
	key := name + descriptor
	if _, ok := c.methods[key]; ok {
		return nil, fmt.Errorf("duplicate method %s in class %s", key, c.Name)
	}
	m := &Method{
		Signature: MethodSignature{Class: c.Name, Name: name, Descriptor: descriptor},
		Access:    access,
		Code:      code,
	}
	c.methods[key] = m
	return m, nil
}

// Method returns the method declared in the class with that name and descriptor, or nil
func (c *Class) Method(name string, descriptor string) *Method {
	return c.methods[name+descriptor]
}

// Methods returns the methods declared in the class, ordered by signature
func (c *Class) Methods() []*Method {
	ms := maps.Values(c.methods)
	slices.SortFunc(ms, func(a, b *Method) bool { return a.Signature.Less(b.Signature) })
	return ms
}

// A ClassPool is the set of classes of the analyzed program
type ClassPool struct {
	classes map[string]*Class
}

// NewClassPool returns an empty class pool
func NewClassPool() *ClassPool {
	return &ClassPool{classes: map[string]*Class{}}
}

// AddClass adds a class to the pool. Class names must be unique.
func (p *ClassPool) AddClass(c *Class) error {
	if _, ok := p.classes[c.Name]; ok {
		return fmt.Errorf("duplicate class %s", c.Name)
	}
	p.classes[c.Name] = c
	return nil
}

// Class returns the class with that name, or nil
func (p *ClassPool) Class(name string) *Class {
	return p.classes[name]
}

// Classes returns the classes of the pool ordered by name
func (p *ClassPool) Classes() []*Class {
	cs := maps.Values(p.classes)
	slices.SortFunc(cs, func(a, b *Class) bool { return a.Name < b.Name })
	return cs
}

// Methods returns all the methods of the pool ordered by signature
func (p *ClassPool) Methods() []*Method {
	var ms []*Method
	for _, c := range p.Classes() {
		ms = append(ms, c.Methods()...)
	}
	return ms
}

// Method returns the method with exactly that signature, or nil
func (p *ClassPool) Method(sig MethodSignature) *Method {
	c := p.classes[sig.Class]
	if c == nil {
		return nil
	}
	return c.Method(sig.Name, sig.Descriptor)
}

// ResolveMethod looks up the method declared in class or its superclasses, and then in its superinterfaces. It
// returns nil if the method cannot be found in the classes of the pool.
func (p *ClassPool) ResolveMethod(class string, name string, descriptor string) *Method {
	for c := p.classes[class]; c != nil; c = p.classes[c.Super] {
		if m := c.Method(name, descriptor); m != nil {
			return m
		}
	}
	visited := map[string]bool{}
	var inInterfaces func(string) *Method
	inInterfaces = func(cname string) *Method {
		c := p.classes[cname]
		if c == nil || visited[cname] {
			return nil
		}
		visited[cname] = true
		if c.IsInterface {
			if m := c.Method(name, descriptor); m != nil {
				return m
			}
		}
		for _, itf := range c.Interfaces {
			if m := inInterfaces(itf); m != nil {
				return m
			}
		}
		return inInterfaces(c.Super)
	}
	return inInterfaces(class)
}

// IsSubtype returns true if the class sub is the class sup, or extends or implements it, directly or not.
func (p *ClassPool) IsSubtype(sub string, sup string) bool {
	visited := map[string]bool{}
	var visit func(string) bool
	visit = func(name string) bool {
		if name == sup {
			return true
		}
		if visited[name] {
			return false
		}
		visited[name] = true
		c := p.classes[name]
		if c == nil {
			return false
		}
		if c.Super != "" && visit(c.Super) {
			return true
		}
		for _, itf := range c.Interfaces {
			if visit(itf) {
				return true
			}
		}
		return false
	}
	return visit(sub)
}

// Subtypes returns the names of the classes of the pool that are subtypes of the class, including the class
// itself if it is in the pool, ordered by name.
func (p *ClassPool) Subtypes(name string) []string {
	var res []string
	for _, c := range p.Classes() {
		if p.IsSubtype(c.Name, name) {
			res = append(res, c.Name)
		}
	}
	return res
}
