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

// Package witness extracts the witness traces of taint findings. A witness trace is a sequence of memory locations
// that the tainted data goes through, from the call of a source to the input of a sink.
//
// Traces are found by a backward analysis over the blocks of a forward taint analysis: starting from the location
// of a finding, it follows the locations the tainted data comes from along the edges entering each node, into the
// blocks of callees at their return exits, and back to callers at method entries. The forward states are used to
// prune the locations that do not carry the taint of the finding.
package witness

import (
	"fmt"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/bam"
	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/cpa"
	"github.com/awslabs/ar-jvm-tools/analysis/jvm"
	"github.com/awslabs/ar-jvm-tools/analysis/taint"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"github.com/awslabs/ar-jvm-tools/internal/graphutil"
	"golang.org/x/exp/slices"
)

// A TraceElement is a memory location holding tainted data in the state before a node
type TraceElement struct {
	Node     cfa.NodeID
	Location jvm.MemoryLocation
}

func (e TraceElement) String() string {
	return fmt.Sprintf("%s@%d", e.Location, e.Node)
}

// A Trace is the flow of tainted data from a source to a sink
type Trace struct {
	Source *taint.TaintSource
	Sink   *taint.TaintSink
	// Target is the sink method called
	Target bytecode.MethodSignature
	// Elements are ordered from the location written by the source to the input of the sink
	Elements []TraceElement
}

// Key identifies the trace among traces with the same elements, source and sink
func (t Trace) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d->%s:", t.Source.ID, t.Target)
	for _, e := range t.Elements {
		fmt.Fprintf(&b, " %s@%d", e.Location.Key(), e.Node)
	}
	return b.String()
}

func (t Trace) String() string {
	elements := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		elements[i] = e.String()
	}
	return fmt.Sprintf("%s -> %s: %s", t.Source.Name, t.Target, strings.Join(elements, " -> "))
}

// An Alarm is a finding of the taint analysis in a block
type Alarm struct {
	Block *bam.Block[taint.Value]
	taint.Finding
}

func (a Alarm) String() string {
	return fmt.Sprintf("%s in %s", a.Finding, a.Block)
}

// Options of the extractor
type Options struct {
	// Threshold contains the sources whose flows are not followed
	Threshold taint.TaintAbstractState
	// Abort stops the backward analyses. Defaults to never.
	Abort cpa.AbortOperator
}

// Extractor finds the alarms and witness traces of the blocks of an analyzer
type Extractor struct {
	analyzer *bam.Analyzer[taint.Value]
	problem  *taint.Problem
	options  Options
	logger   *config.LogGroup
}

// NewExtractor returns the extractor of the blocks analyzed by analyzer, with the semantics of problem.
func NewExtractor(analyzer *bam.Analyzer[taint.Value], problem *taint.Problem, options Options,
	logger *config.LogGroup) *Extractor {
	if options.Abort == nil {
		options.Abort = cpa.NeverAbortOperator{}
	}
	if logger == nil {
		logger = config.NewDiscardLogGroup()
	}
	return &Extractor{analyzer: analyzer, problem: problem, options: options, logger: logger}
}

// Alarms returns the findings of every state of the blocks, ordered by block, node and location.
func (x *Extractor) Alarms() ([]Alarm, error) {
	var alarms []Alarm
	for _, b := range x.analyzer.Blocks() {
		for _, s := range b.Reached.States() {
			findings, err := taint.CheckSinks(x.problem, x.analyzer.CFA(), s.(*taint.State))
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", b, err)
			}
			for _, f := range findings {
				alarms = append(alarms, Alarm{Block: b, Finding: f})
			}
		}
	}
	slices.SortFunc(alarms, func(a, b Alarm) bool {
		if a.Block.ID != b.Block.ID {
			return a.Block.ID < b.Block.ID
		}
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		if a.Location.Key() != b.Location.Key() {
			return a.Location.Key() < b.Location.Key()
		}
		return a.Sink.String() < b.Sink.String()
	})
	return alarms, nil
}

// Traces returns the witness traces of the alarms, without duplicates, ordered by key. The traces found before an
// error are returned with it.
func (x *Extractor) Traces(alarms []Alarm) ([]Trace, error) {
	seen := map[string]bool{}
	var traces []Trace
	for _, alarm := range alarms {
		found, err := x.tracesOf(alarm)
		for _, t := range found {
			if k := t.Key(); !seen[k] {
				seen[k] = true
				traces = append(traces, t)
			}
		}
		if err != nil {
			return traces, err
		}
	}
	slices.SortFunc(traces, func(a, b Trace) bool { return a.Key() < b.Key() })
	return traces, nil
}

// tracesOf runs the backward analysis from the location of the alarm
func (x *Extractor) tracesOf(alarm Alarm) ([]Trace, error) {
	t := &transfer{
		analyzer:  x.analyzer,
		cfa:       x.analyzer.CFA(),
		problem:   x.problem,
		taint:     alarm.Taint,
		threshold: x.options.Threshold,
	}
	init := &State{
		Block:  alarm.Block,
		Node:   alarm.Node,
		Memory: alarm.Location,
		path:   graphutil.NewTree(TraceElement{Node: alarm.Node, Location: alarm.Location}),
	}
	alg := cpa.NewAlgorithm(cpa.ConfigurableProgramAnalysis{
		Transfer: t,
		Merge:    cpa.MergeSepOperator{},
		Stop:     cpa.StopSepOperator{},
		Abort:    x.options.Abort,
	}, x.logger)
	reached := cpa.NewReachedSet()
	waitlist := cpa.NewBreadthFirstWaitlist()
	reached.Add(init, cpa.StaticPrecision{})
	waitlist.Add(init)
	res := alg.Run(reached, waitlist)
	x.logger.Tracef("backward analysis of %s: %d states, %d iterations\n", alarm, reached.Size(), res.Iterations)

	var traces []Trace
	for _, s := range reached.States() {
		m := s.(*State)
		if !m.IsMarker() {
			continue
		}
		elements := m.path.PathLabels()
		funcutil.Reverse(elements)
		traces = append(traces, Trace{Source: m.Source, Sink: alarm.Sink, Target: alarm.Target, Elements: elements})
	}
	if !res.IsCompleted() {
		return traces, fmt.Errorf("witness extraction of %s aborted: %w", alarm, res.Reason)
	}
	return traces, nil
}
