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

// Package callgraph resolves the invocation instructions of a class pool into a call graph. Static, special and
// interface or virtual calls are resolved by class hierarchy analysis over the classes of the pool. Calls to methods
// whose class is not in the pool are kept as unresolved calls, and invokedynamic call sites have no call.
package callgraph

import (
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"github.com/awslabs/ar-jvm-tools/internal/graphutil"
	"golang.org/x/exp/slices"
)

// A CodeLocation is an instruction offset in the code of a method
type CodeLocation struct {
	Signature bytecode.MethodSignature
	Offset    int
}

func (l CodeLocation) String() string {
	return fmt.Sprintf("%s@%d", l.Signature, l.Offset)
}

// A Call is a possible target of an invocation instruction
type Call struct {
	Caller CodeLocation
	// Target is the signature of the method called
	Target bytecode.MethodSignature
	// TargetClass is the class declaring the target, or nil if the target could not be resolved in the class pool
	TargetClass *bytecode.Class
	// Invocation is the opcode of the invocation instruction
	Invocation bytecode.Opcode
}

// IsResolved returns true if the target of the call is declared in the class pool
func (c *Call) IsResolved() bool {
	return c.TargetClass != nil
}

func (c *Call) String() string {
	return fmt.Sprintf("%s -(%s)-> %s", c.Caller, c.Invocation, c.Target)
}

// CallGraph maps the invocation instructions of a program to their calls
type CallGraph struct {
	pool    *bytecode.ClassPool
	bySite  map[CodeLocation][]*Call
	callers map[bytecode.MethodSignature][]*Call
	callees map[bytecode.MethodSignature][]*Call
}

// Build resolves all the invocations in the code of the methods of the pool
func Build(pool *bytecode.ClassPool) *CallGraph {
	cg := &CallGraph{
		pool:    pool,
		bySite:  map[CodeLocation][]*Call{},
		callers: map[bytecode.MethodSignature][]*Call{},
		callees: map[bytecode.MethodSignature][]*Call{},
	}
	for _, m := range pool.Methods() {
		if !m.HasCode() {
			continue
		}
		for _, ins := range m.Code.Instructions {
			if ins.Kind() != bytecode.KindInvoke || ins.Opcode == bytecode.Invokedynamic {
				continue
			}
			loc := CodeLocation{Signature: m.Signature, Offset: ins.Offset}
			for _, call := range cg.resolve(loc, ins) {
				cg.addCall(call)
			}
		}
	}
	return cg
}

func (cg *CallGraph) addCall(call *Call) {
	cg.bySite[call.Caller] = append(cg.bySite[call.Caller], call)
	cg.callees[call.Caller.Signature] = append(cg.callees[call.Caller.Signature], call)
	cg.callers[call.Target] = append(cg.callers[call.Target], call)
}

// resolve returns the calls of the invocation instruction at loc
func (cg *CallGraph) resolve(loc CodeLocation, ins bytecode.Instruction) []*Call {
	ref := ins.Method
	unresolved := []*Call{{Caller: loc, Target: ref.Signature(), Invocation: ins.Opcode}}
	declared := cg.pool.ResolveMethod(ref.Class, ref.Name, ref.Descriptor)

	switch ins.Opcode {
	case bytecode.Invokestatic, bytecode.Invokespecial:
		if declared == nil {
			return unresolved
		}
		return []*Call{cg.callTo(loc, declared, ins.Opcode)}
	default:
		// virtual dispatch: the method declared for the static type, and every override in a subtype
		var calls []*Call
		seen := map[bytecode.MethodSignature]bool{}
		if declared != nil && declared.Access&bytecode.AccAbstract == 0 {
			calls = append(calls, cg.callTo(loc, declared, ins.Opcode))
		}
		if declared != nil {
			seen[declared.Signature] = true
		}
		for _, sub := range cg.pool.Subtypes(ref.Class) {
			c := cg.pool.Class(sub)
			if c.IsInterface {
				continue
			}
			m := cg.pool.ResolveMethod(sub, ref.Name, ref.Descriptor)
			if m != nil && !seen[m.Signature] {
				seen[m.Signature] = true
				calls = append(calls, cg.callTo(loc, m, ins.Opcode))
			}
		}
		if len(calls) == 0 && declared != nil {
			// only an abstract method, without implementation in the pool
			return []*Call{cg.callTo(loc, declared, ins.Opcode)}
		}
		if len(calls) == 0 {
			return unresolved
		}
		return calls
	}
}

func (cg *CallGraph) callTo(loc CodeLocation, m *bytecode.Method, op bytecode.Opcode) *Call {
	return &Call{
		Caller:      loc,
		Target:      m.Signature,
		TargetClass: cg.pool.Class(m.Signature.Class),
		Invocation:  op,
	}
}

// CallsAt returns the calls of the invocation instruction at loc
func (cg *CallGraph) CallsAt(loc CodeLocation) []*Call {
	return cg.bySite[loc]
}

// CallsFrom returns the calls made by the method
func (cg *CallGraph) CallsFrom(sig bytecode.MethodSignature) []*Call {
	return cg.callees[sig]
}

// CallersOf returns the calls whose target is the method
func (cg *CallGraph) CallersOf(sig bytecode.MethodSignature) []*Call {
	return cg.callers[sig]
}

// Targets returns the signatures of all the targets of calls in the call graph, ordered.
func (cg *CallGraph) Targets() []bytecode.MethodSignature {
	targets := make([]bytecode.MethodSignature, 0, len(cg.callers))
	for sig := range cg.callers {
		targets = append(targets, sig)
	}
	slices.SortFunc(targets, bytecode.MethodSignature.Less)
	return targets
}

// methods returns all the methods that are callers or callees, ordered
func (cg *CallGraph) methods() []bytecode.MethodSignature {
	set := map[bytecode.MethodSignature]bool{}
	for sig := range cg.callers {
		set[sig] = true
	}
	for sig := range cg.callees {
		set[sig] = true
	}
	res := make([]bytecode.MethodSignature, 0, len(set))
	for sig := range set {
		res = append(res, sig)
	}
	slices.SortFunc(res, bytecode.MethodSignature.Less)
	return res
}

func (cg *CallGraph) successors(sig bytecode.MethodSignature) []bytecode.MethodSignature {
	return funcutil.Map(cg.callees[sig], func(c *Call) bytecode.MethodSignature { return c.Target })
}

// digraph returns the call graph over the methods, with the entries added, and the vertex of each method
func (cg *CallGraph) digraph(entries []bytecode.MethodSignature) ([]bytecode.MethodSignature, *graphutil.Digraph,
	map[bytecode.MethodSignature]int) {
	methods := cg.methods()
	for _, e := range entries {
		if !slices.Contains(methods, e) {
			methods = append(methods, e)
		}
	}
	index := make(map[bytecode.MethodSignature]int, len(methods))
	for i, m := range methods {
		index[m] = i
	}
	g := graphutil.NewDigraph(len(methods))
	for _, m := range methods {
		for _, succ := range cg.successors(m) {
			g.AddEdge(index[m], index[succ])
		}
	}
	return methods, g, index
}

// ReachableMethods returns the methods that are entries or that may be called, directly or not, from an entry,
// ordered.
func (cg *CallGraph) ReachableMethods(entries []bytecode.MethodSignature) []bytecode.MethodSignature {
	methods, g, index := cg.digraph(entries)
	reached := map[bytecode.MethodSignature]bool{}
	for _, e := range entries {
		for _, v := range g.ReachableFrom(index[e]) {
			reached[methods[v]] = true
		}
	}
	res := make([]bytecode.MethodSignature, 0, len(reached))
	for m := range reached {
		res = append(res, m)
	}
	slices.SortFunc(res, bytecode.MethodSignature.Less)
	return res
}

// RecursiveMethods returns the set of methods that may (indirectly) call themselves
func (cg *CallGraph) RecursiveMethods() map[bytecode.MethodSignature]bool {
	res := map[bytecode.MethodSignature]bool{}
	for _, scc := range graphutil.RecursiveComponents(cg.methods(), cg.successors) {
		for _, sig := range scc {
			res[sig] = true
		}
	}
	return res
}

// Cycles returns the elementary cycles of the call graph. Each cycle starts and ends with the same method.
func (cg *CallGraph) Cycles() [][]bytecode.MethodSignature {
	methods, g, _ := cg.digraph(nil)
	return funcutil.Map(graphutil.FindAllElementaryCycles(g), func(cycle []int) []bytecode.MethodSignature {
		return funcutil.Map(cycle, func(i int) bytecode.MethodSignature { return methods[i] })
	})
}
