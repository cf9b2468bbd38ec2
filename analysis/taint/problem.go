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
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
)

// A Problem is a taint tracking problem: its sources, sinks, and the threshold under which tainted values are not
// followed by witness traces.
type Problem struct {
	Sources   []*TaintSource
	Sinks     []*TaintSink
	Threshold TaintAbstractState
}

// NewProblem builds the problem of a taint specification. Configuration errors are reported here, before any
// analysis starts.
func NewProblem(spec config.TaintSpec) (*Problem, error) {
	p := &Problem{}
	byName := map[string]*TaintSource{}
	for _, ss := range spec.Sources {
		src, err := NewTaintSource(ss.Name, ss.CodeIdentifier, ss.TaintsThis, ss.TaintsReturn, ss.TaintsArgs,
			ss.TaintsGlobals)
		if err != nil {
			return nil, err
		}
		if _, ok := byName[src.Name]; ok {
			return nil, fmt.Errorf("duplicate source name %q", src.Name)
		}
		src.ID = len(p.Sources)
		byName[src.Name] = src
		p.Sources = append(p.Sources, src)
	}
	for _, sk := range spec.Sinks {
		var valid func(*TaintSource) bool
		if len(sk.ValidSources) > 0 {
			names := map[string]bool{}
			for _, name := range sk.ValidSources {
				if _, ok := byName[name]; !ok {
					return nil, fmt.Errorf("sink %s: unknown valid source %q", sk.CodeIdentifier, name)
				}
				names[name] = true
			}
			valid = func(src *TaintSource) bool { return names[src.Name] }
		}
		sink, err := NewTaintSink(sk.CodeIdentifier, sk.TakesInstance, sk.TakesArgs, sk.TakesGlobals, valid)
		if err != nil {
			return nil, err
		}
		p.Sinks = append(p.Sinks, sink)
	}
	var threshold []int
	for _, name := range spec.TraceThreshold {
		src, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q in trace threshold", name)
		}
		threshold = append(threshold, src.ID)
	}
	p.Threshold = NewTaintAbstractState(threshold...)
	return p, nil
}

// Source returns the source with the id
func (p *Problem) Source(id int) *TaintSource {
	return p.Sources[id]
}

// SourcesOf returns the sources of the ids in the taint state
func (p *Problem) SourcesOf(t TaintAbstractState) []*TaintSource {
	return funcutil.Map(t.Sources(), p.Source)
}

// MatchingSources returns the sources that identify the method
func (p *Problem) MatchingSources(sig bytecode.MethodSignature) []*TaintSource {
	return funcutil.Filter(p.Sources, func(s *TaintSource) bool { return s.MatchesMethod(sig) })
}

// MatchingSinks returns the sinks that identify the method
func (p *Problem) MatchingSinks(sig bytecode.MethodSignature) []*TaintSink {
	return funcutil.Filter(p.Sinks, func(s *TaintSink) bool { return s.MatchesMethod(sig) })
}

// IsSourceOrSink returns true if the method is a source or a sink. Calls to those methods are never analyzed.
func (p *Problem) IsSourceOrSink(sig bytecode.MethodSignature) bool {
	return len(p.MatchingSources(sig)) > 0 || len(p.MatchingSinks(sig)) > 0
}
