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

// Package bam implements block abstraction memoization: the interprocedural analysis of a program by analyzing
// each method separately, in blocks. A block is the analysis of a method from an entry state; the abstract state
// after a call is computed by analyzing the callee in the block of the reduced state of the caller, and by
// expanding the return state of the block into the caller's state.
//
// Blocks are memoized by method and entry state, and the depth of the stack of blocks being analyzed is bounded.
// Calls that are not expanded, because the depth bound is reached, the callee is recursive, its code is not
// available or it is excluded, have the semantics of unknown calls.
package bam

import (
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/cpa"
	"github.com/awslabs/ar-jvm-tools/analysis/jvm"
	"golang.org/x/exp/slices"
)

// A Block is the analysis of a method from an entry state
type Block[V jvm.Value[V]] struct {
	ID        int
	Signature bytecode.MethodSignature
	Entry     *jvm.State[V]
	// Budget is the number of nested blocks the block could expand when it was analyzed, or -1 if unbounded
	Budget  int
	Reached *cpa.ReachedSet
	Result  cpa.Result
	// Calls maps the invocation nodes of the method to the blocks of the callees expanded there
	Calls map[cfa.NodeID][]*Block[V]
}

// ReturnStates returns the states reached at the return exit of the method
func (b *Block[V]) ReturnStates(c *cfa.CFA) []*jvm.State[V] {
	exit, ok := c.ExitNode(b.Signature)
	if !ok {
		return nil
	}
	return statesAt[V](b.Reached, exit.ID)
}

// StatesAt returns the states of the block at the node
func (b *Block[V]) StatesAt(node cfa.NodeID) []*jvm.State[V] {
	return statesAt[V](b.Reached, node)
}

func (b *Block[V]) String() string {
	return fmt.Sprintf("block %d of %s", b.ID, b.Signature)
}

func statesAt[V jvm.Value[V]](reached *cpa.ReachedSet, node cfa.NodeID) []*jvm.State[V] {
	var res []*jvm.State[V]
	for _, s := range reached.StatesAt(node) {
		res = append(res, s.(*jvm.State[V]))
	}
	return res
}

// Options of the analyzer
type Options struct {
	// MaxCallStackDepth bounds the number of blocks being analyzed at once. 0 means that no call is expanded, and a
	// negative value means that the depth is not bounded.
	MaxCallStackDepth int
	// NewWaitlist returns the waitlist of the analysis of a block. Defaults to breadth first.
	NewWaitlist func(c *cfa.CFA, sig bytecode.MethodSignature) cpa.Waitlist
	// Abort stops the analysis of blocks. Defaults to never.
	Abort cpa.AbortOperator
	// Excluded methods are never expanded
	Excluded func(bytecode.MethodSignature) bool
	// Recursive contains the methods that may call themselves. When it is set, the stack of blocks is only
	// searched for calls to these methods.
	Recursive map[bytecode.MethodSignature]bool
}

// Analyzer runs the block analysis of the methods of a CFA
type Analyzer[V jvm.Value[V]] struct {
	cfa      *cfa.CFA
	pool     *bytecode.ClassPool
	sem      jvm.Semantics[V]
	options  Options
	logger   *config.LogGroup
	transfer *jvm.TransferRelation[V]
	blocks   []*Block[V]
	cache    map[bytecode.MethodSignature][]*Block[V]
	stack    []*Block[V]
}

// NewAnalyzer returns an analyzer with an empty block cache
func NewAnalyzer[V jvm.Value[V]](c *cfa.CFA, pool *bytecode.ClassPool, sem jvm.Semantics[V], options Options,
	logger *config.LogGroup) *Analyzer[V] {
	if options.NewWaitlist == nil {
		options.NewWaitlist = func(*cfa.CFA, bytecode.MethodSignature) cpa.Waitlist {
			return cpa.NewBreadthFirstWaitlist()
		}
	}
	if options.Abort == nil {
		options.Abort = cpa.NeverAbortOperator{}
	}
	if options.Excluded == nil {
		options.Excluded = func(bytecode.MethodSignature) bool { return false }
	}
	if logger == nil {
		logger = config.NewDiscardLogGroup()
	}
	a := &Analyzer[V]{
		cfa:     c,
		pool:    pool,
		sem:     sem,
		options: options,
		logger:  logger,
		cache:   map[bytecode.MethodSignature][]*Block[V]{},
	}
	a.transfer = jvm.NewTransferRelation[V](c, sem, a)
	return a
}

// Blocks returns all the blocks analyzed, in creation order
func (a *Analyzer[V]) Blocks() []*Block[V] {
	return a.blocks
}

// CFA returns the CFA of the analyzer
func (a *Analyzer[V]) CFA() *cfa.CFA {
	return a.cfa
}

// Callers returns the blocks and invocation nodes where the block is expanded
func (a *Analyzer[V]) Callers(b *Block[V]) []CallSite[V] {
	var res []CallSite[V]
	for _, caller := range a.blocks {
		for node, callees := range caller.Calls {
			if slices.Contains(callees, b) {
				res = append(res, CallSite[V]{Block: caller, Node: node})
			}
		}
	}
	slices.SortFunc(res, func(x, y CallSite[V]) bool {
		if x.Block.ID != y.Block.ID {
			return x.Block.ID < y.Block.ID
		}
		return x.Node < y.Node
	})
	return res
}

// A CallSite is an invocation node in a block
type CallSite[V jvm.Value[V]] struct {
	Block *Block[V]
	Node  cfa.NodeID
}

// Run analyzes the method from the initial state, which must be at the entry of the method, and returns its block.
// The error is not nil when the analysis of the block or of one of its callees was aborted.
func (a *Analyzer[V]) Run(sig bytecode.MethodSignature, init *jvm.State[V]) (*Block[V], error) {
	b := a.block(sig, init)
	if !b.Result.IsCompleted() {
		return b, fmt.Errorf("analysis of %s aborted: %w", sig, b.Result.Reason)
	}
	return b, nil
}

// budget returns the number of nested blocks a new block at the top of the stack may expand, or -1 if unbounded
func (a *Analyzer[V]) budget() int {
	if a.options.MaxCallStackDepth < 0 {
		return -1
	}
	return a.options.MaxCallStackDepth - len(a.stack)
}

// covers returns true if a block analyzed with the budget have expanded every call that a block with the budget
// need would expand
func covers(have int, need int) bool {
	return have < 0 || (need >= 0 && have >= need)
}

// block returns the block of the method from the entry state, analyzing it if the cache has no block for that
// entry state analyzed with at least the current depth budget
func (a *Analyzer[V]) block(sig bytecode.MethodSignature, entry *jvm.State[V]) *Block[V] {
	budget := a.budget()
	for _, b := range a.cache[sig] {
		if covers(b.Budget, budget) && b.Entry.Equal(entry) {
			a.logger.Tracef("reusing %s\n", b)
			return b
		}
	}
	b := &Block[V]{
		ID:        len(a.blocks),
		Signature: sig,
		Entry:     entry,
		Budget:    budget,
		Reached:   cpa.NewReachedSet(),
		Calls:     map[cfa.NodeID][]*Block[V]{},
	}
	a.blocks = append(a.blocks, b)
	a.cache[sig] = append(a.cache[sig], b)
	a.logger.Debugf("analyzing %s at depth %d\n", b, len(a.stack))

	a.stack = append(a.stack, b)
	defer func() { a.stack = a.stack[:len(a.stack)-1] }()

	alg := cpa.NewAlgorithm(cpa.ConfigurableProgramAnalysis{
		Transfer: a.transfer,
		Merge:    cpa.MergeJoinOperator{},
		Stop:     cpa.StopJoinOperator{},
		Abort:    a.options.Abort,
	}, a.logger)
	waitlist := a.options.NewWaitlist(a.cfa, sig)
	b.Reached.Add(entry, cpa.StaticPrecision{})
	waitlist.Add(entry)
	b.Result = alg.Run(b.Reached, waitlist)
	return b
}

// canExpand returns true if a call to the method can be analyzed in a new block
func (a *Analyzer[V]) canExpand(sig bytecode.MethodSignature) bool {
	if a.options.MaxCallStackDepth >= 0 && len(a.stack) > a.options.MaxCallStackDepth {
		return false
	}
	if a.options.Excluded(sig) {
		return false
	}
	if _, ok := a.cfa.FunctionEntryNode(sig); !ok {
		return false
	}
	if a.options.Recursive != nil && !a.options.Recursive[sig] {
		return true
	}
	for _, b := range a.stack {
		if b.Signature == sig {
			a.logger.Tracef("not expanding recursive call to %s\n", sig)
			return false
		}
	}
	return true
}

// Invoke returns the join of the states after the expanded calls of the invocation and, if some target is not
// expanded, of the state after an unknown call. An error is returned when the analysis of a callee is aborted.
func (a *Analyzer[V]) Invoke(state *jvm.State[V], edge *cfa.InstructionEdge) (*jvm.State[V], error) {
	site := jvm.NewCallSite(a.cfa, edge)
	calls := a.cfa.Node(edge.Source()).LeavingInterproceduralEdges()
	var results []*jvm.State[V]
	unknown := len(calls) == 0
	for _, call := range calls {
		target := call.Call.Target
		if !a.canExpand(target) {
			unknown = true
			continue
		}
		succ, err := a.expand(state, site, target)
		if err != nil {
			return nil, err
		}
		if succ != nil {
			results = append(results, succ)
		}
	}
	if unknown {
		succ, err := jvm.InvokeUnknown(state, site, a.sem)
		if err != nil {
			return nil, err
		}
		results = append(results, succ)
	}
	if len(results) == 0 {
		return nil, nil
	}
	res := results[0]
	for _, r := range results[1:] {
		res = res.Join(r).(*jvm.State[V])
	}
	return res, nil
}

// expand analyzes the call to target in its block and returns the state of the caller after the call, or nil if
// the callee never returns normally
func (a *Analyzer[V]) expand(state *jvm.State[V], site jvm.CallSite, target bytecode.MethodSignature) (
	*jvm.State[V], error) {
	caller := a.stack[len(a.stack)-1]
	succ := state.Copy().(*jvm.State[V])
	args, err := succ.PopArguments(site.Instruction)
	if err != nil {
		return nil, err
	}
	entry, err := a.reduce(succ, target, args)
	if err != nil {
		return nil, err
	}
	b := a.block(target, entry)
	if !slices.Contains(caller.Calls[site.Node], b) {
		caller.Calls[site.Node] = append(caller.Calls[site.Node], b)
	}
	if !b.Result.IsCompleted() {
		return nil, fmt.Errorf("analysis of %s aborted: %w", target, b.Result.Reason)
	}
	return a.expandReturn(succ, b)
}

// reduce returns the entry state of the callee: the arguments are in its local variables, and the heap and static
// fields are those of the caller
func (a *Analyzer[V]) reduce(caller *jvm.State[V], target bytecode.MethodSignature, args []V) (*jvm.State[V], error) {
	m := a.pool.Method(target)
	if m == nil {
		return nil, fmt.Errorf("method %s is not in the class pool", target)
	}
	n, _ := a.cfa.FunctionEntryNode(target)
	entry := jvm.NewState(n.ID, caller.Heap.Copy(), a.sem)
	params := target.ParsedDescriptor().Params
	sizes := make([]int, 0, len(params)+1)
	if !m.IsStatic() {
		sizes = append(sizes, 1)
	}
	for _, p := range params {
		sizes = append(sizes, p.Size())
	}
	if len(sizes) != len(args) {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", target, len(sizes), len(args))
	}
	slot := 0
	for i, size := range sizes {
		for j := 0; j < size; j++ {
			entry.Frame.Locals[slot] = args[i]
			slot++
		}
	}
	for f, v := range caller.Statics {
		entry.Statics[f] = v
	}
	return entry, nil
}

// expandReturn returns the caller state after the call: the returned value is pushed on its stack, and the heap and
// static fields are those at the return exit of the block
func (a *Analyzer[V]) expandReturn(caller *jvm.State[V], b *Block[V]) (*jvm.State[V], error) {
	returns := b.ReturnStates(a.cfa)
	if len(returns) == 0 {
		return nil, nil
	}
	exit := returns[0]
	for _, r := range returns[1:] {
		exit = exit.Join(r).(*jvm.State[V])
	}
	caller.Heap = exit.Heap.Copy()
	caller.Statics = make(map[string]V, len(exit.Statics))
	for f, v := range exit.Statics {
		caller.Statics[f] = v
	}
	for _, v := range exit.Frame.Stack {
		caller.Push(v)
	}
	return caller, nil
}
