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

// Package analysis runs the taint analyses of a program. The control flow automaton of the program is built once,
// then each entry point is analyzed for each taint tracking problem of the configuration, and the witness traces of
// the findings are extracted from the blocks of the analysis.
package analysis

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/awslabs/ar-jvm-tools/analysis/bam"
	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/callgraph"
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/cpa"
	"github.com/awslabs/ar-jvm-tools/analysis/heap"
	"github.com/awslabs/ar-jvm-tools/analysis/jvm"
	"github.com/awslabs/ar-jvm-tools/analysis/taint"
	"github.com/awslabs/ar-jvm-tools/analysis/witness"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// A Flow is a witness trace found by the analysis of an entry point for a taint tracking problem
type Flow struct {
	// Problem is the index of the taint tracking problem in the config
	Problem int
	// Entry is the entry point whose analysis found the flow
	Entry bytecode.MethodSignature
	witness.Trace
}

// TaintResult contains the results of the taint analyses of a program
type TaintResult struct {
	// CFA is the control flow automaton of the program
	CFA *cfa.CFA

	// Alarms is the number of sink inputs found tainted, over all problems and entry points
	Alarms int

	// Flows contains the witness traces found, without duplicates, ordered by problem and trace
	Flows []Flow
}

// job is the analysis of one entry point for one problem
type job struct {
	index   int
	problem *taint.Problem
	entry   *bytecode.Method
}

// jobResult is written by a single job
type jobResult struct {
	alarms int
	flows  []Flow
}

// RunTaintAnalysis runs the taint tracking problems of cfg from every entry point of cfg found in the pool.
//
// Configuration errors are returned before any analysis is started. The analyses of the entry points run
// concurrently; the first analysis that fails stops the others, and its error is returned with the flows found by
// the analyses that completed.
func RunTaintAnalysis(ctx context.Context, cfg *config.Config, logger *config.LogGroup,
	pool *bytecode.ClassPool) (*TaintResult, error) {
	if logger == nil {
		logger = config.NewLogGroup(cfg)
	}
	problems := make([]*taint.Problem, len(cfg.TaintTrackingProblems))
	for i, spec := range cfg.TaintTrackingProblems {
		p, err := taint.NewProblem(spec)
		if err != nil {
			return nil, fmt.Errorf("taint tracking problem %d: %w", i, err)
		}
		problems[i] = p
	}
	entries := EntryPoints(cfg, pool)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no method of the program matches the entry points of the config")
	}

	start := time.Now()
	cg := callgraph.Build(pool)
	c, err := cfa.Build(pool, cg)
	if err != nil {
		return nil, err
	}
	logger.Infof("Built CFA with %d nodes and %d edges (%.2f s).\n", c.NumNodes(), c.NumEdges(),
		time.Since(start).Seconds())
	reachable := cg.ReachableMethods(funcutil.Map(entries,
		func(m *bytecode.Method) bytecode.MethodSignature { return m.Signature }))
	logger.Debugf("%d methods are reachable from %d entry points\n", len(reachable), len(entries))
	recursive := cg.RecursiveMethods()
	if logger.Level() >= config.DebugLevel {
		for _, cycle := range cg.Cycles() {
			logger.Debugf("Recursive calls: %s\n", strings.Join(funcutil.Map(cycle, bytecode.MethodSignature.String),
				" -> "))
		}
	}
	for i, p := range problems {
		isSink := func(s bytecode.MethodSignature) bool { return len(p.MatchingSinks(s)) > 0 }
		if slices.IndexFunc(reachable, isSink) < 0 {
			logger.Warnf("No sink of taint tracking problem %d is called from the entry points.\n", i)
		}
	}

	var jobs []job
	for i, p := range problems {
		for _, m := range entries {
			jobs = append(jobs, job{index: i, problem: p, entry: m})
		}
	}
	results := make([]jobResult, len(jobs))

	numRoutines := runtime.NumCPU() - 1
	if numRoutines <= 0 {
		numRoutines = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numRoutines)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			res, err := runJob(gctx, cfg, logger, pool, c, recursive, j)
			results[i] = res
			return err
		})
	}
	err = g.Wait()

	result := &TaintResult{CFA: c}
	seen := map[string]bool{}
	for _, res := range results {
		result.Alarms += res.alarms
		for _, flow := range res.flows {
			key := fmt.Sprintf("%d:%s", flow.Problem, flow.Key())
			if !seen[key] {
				seen[key] = true
				result.Flows = append(result.Flows, flow)
			}
		}
	}
	slices.SortFunc(result.Flows, func(a, b Flow) bool {
		if a.Problem != b.Problem {
			return a.Problem < b.Problem
		}
		return a.Key() < b.Key()
	})
	if cfg.MaxAlarms > 0 && len(result.Flows) > cfg.MaxAlarms {
		logger.Warnf("Found %d flows, only %d are reported.\n", len(result.Flows), cfg.MaxAlarms)
		result.Flows = result.Flows[:cfg.MaxAlarms]
	}
	logger.Infof("Taint analysis done (%.2f s): %d alarms, %d flows.\n", time.Since(start).Seconds(),
		result.Alarms, len(result.Flows))
	return result, err
}

// EntryPoints returns the methods with code of the pool that match the entry points of the config
func EntryPoints(cfg *config.Config, pool *bytecode.ClassPool) []*bytecode.Method {
	var res []*bytecode.Method
	for _, m := range pool.Methods() {
		s := m.Signature
		if m.HasCode() && cfg.IsEntryPoint(s.Class, s.Name, s.Descriptor) {
			res = append(res, m)
		}
	}
	return res
}

// NewWaitlist returns the waitlist factory of the block analyses for the waitlist option of the config
func NewWaitlist(kind string) func(*cfa.CFA, bytecode.MethodSignature) cpa.Waitlist {
	switch kind {
	case config.WaitlistDepthFirst:
		return func(*cfa.CFA, bytecode.MethodSignature) cpa.Waitlist { return cpa.NewDepthFirstWaitlist() }
	case config.WaitlistPriority:
		return func(c *cfa.CFA, sig bytecode.MethodSignature) cpa.Waitlist {
			priorities := c.Priorities(sig)
			return cpa.NewPriorityWaitlist(func(s cpa.AbstractState) int {
				return priorities[s.Location().(cfa.NodeID)]
			})
		}
	default:
		return func(*cfa.CFA, bytecode.MethodSignature) cpa.Waitlist { return cpa.NewBreadthFirstWaitlist() }
	}
}

func runJob(ctx context.Context, cfg *config.Config, logger *config.LogGroup, pool *bytecode.ClassPool, c *cfa.CFA,
	recursive map[bytecode.MethodSignature]bool, j job) (jobResult, error) {
	sig := j.entry.Signature
	logger.Debugf("Analyzing %s for problem %d\n", sig, j.index)
	start := time.Now()

	abort := cpa.ContextAbortOperator{Ctx: ctx}
	sem := taint.Semantics{Problem: j.problem}
	analyzer := bam.NewAnalyzer[taint.Value](c, pool, sem, bam.Options{
		MaxCallStackDepth: cfg.MaxCallStackDepth,
		NewWaitlist:       NewWaitlist(cfg.Waitlist),
		Abort:             abort,
		Excluded:          j.problem.IsSourceOrSink,
		Recursive:         recursive,
	}, logger)
	entry, ok := c.FunctionEntryNode(sig)
	if !ok {
		return jobResult{}, fmt.Errorf("entry point %s has no entry node", sig)
	}
	init := jvm.NewEntryState[taint.Value](j.entry, entry.ID, taint.NewHeap(heap.Model(cfg.HeapModel)), sem)
	if _, err := analyzer.Run(sig, init); err != nil {
		return jobResult{}, err
	}
	logger.Debugf("Analyzed %s in %d blocks (%.2f s)\n", sig, len(analyzer.Blocks()), time.Since(start).Seconds())

	extractor := witness.NewExtractor(analyzer, j.problem, witness.Options{
		Threshold: j.problem.Threshold,
		Abort:     abort,
	}, logger)
	alarms, err := extractor.Alarms()
	if err != nil {
		return jobResult{}, err
	}
	for _, alarm := range alarms {
		logger.Debugf("Alarm: %s\n", alarm)
	}
	traces, err := extractor.Traces(alarms)
	res := jobResult{alarms: len(alarms)}
	for _, t := range traces {
		res.flows = append(res.flows, Flow{Problem: j.index, Entry: sig, Trace: t})
	}
	return res, err
}
