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
	"golang.org/x/exp/slices"
)

// A TaintSource is a method whose calls taint values
type TaintSource struct {
	// ID is the index of the source in its problem. Taint states are sets of source ids.
	ID   int
	Name string
	config.CodeIdentifier
	TaintsThis   bool
	TaintsReturn bool
	// TaintsArgs are the positions of the arguments whose content is tainted, starting at 1
	TaintsArgs    []int
	TaintsGlobals []string
}

// NewTaintSource returns a source, or an error if the source taints nothing
func NewTaintSource(name string, cid config.CodeIdentifier, taintsThis bool, taintsReturn bool, taintsArgs []int,
	taintsGlobals []string) (*TaintSource, error) {
	if !taintsThis && !taintsReturn && len(taintsArgs) == 0 && len(taintsGlobals) == 0 {
		return nil, fmt.Errorf("source %s taints nothing", cid)
	}
	if err := checkPositions(taintsArgs); err != nil {
		return nil, fmt.Errorf("source %s: %w", cid, err)
	}
	if name == "" {
		name = cid.Class + "." + cid.Method
	}
	return &TaintSource{
		Name:           name,
		CodeIdentifier: cid,
		TaintsThis:     taintsThis,
		TaintsReturn:   taintsReturn,
		TaintsArgs:     slices.Clone(taintsArgs),
		TaintsGlobals:  slices.Clone(taintsGlobals),
	}, nil
}

// MatchesMethod returns true if the source identifies the method
func (s *TaintSource) MatchesMethod(sig bytecode.MethodSignature) bool {
	return s.Matches(sig.Class, sig.Name, sig.Descriptor)
}

func (s *TaintSource) String() string {
	return s.Name
}

// A TaintSink is a method whose inputs are sensitive
type TaintSink struct {
	config.CodeIdentifier
	TakesInstance bool
	// TakesArgs are the positions of the sensitive arguments, starting at 1
	TakesArgs    []int
	TakesGlobals []string

	// IsValidForSource, if not nil, restricts the sources whose taint is reported at the sink
	IsValidForSource func(*TaintSource) bool
}

// NewTaintSink returns a sink, or an error if the sink has no sensitive input
func NewTaintSink(cid config.CodeIdentifier, takesInstance bool, takesArgs []int, takesGlobals []string,
	isValidForSource func(*TaintSource) bool) (*TaintSink, error) {
	if !takesInstance && len(takesArgs) == 0 && len(takesGlobals) == 0 {
		return nil, fmt.Errorf("sink %s has no sensitive position", cid)
	}
	if err := checkPositions(takesArgs); err != nil {
		return nil, fmt.Errorf("sink %s: %w", cid, err)
	}
	return &TaintSink{
		CodeIdentifier:   cid,
		TakesInstance:    takesInstance,
		TakesArgs:        slices.Clone(takesArgs),
		TakesGlobals:     slices.Clone(takesGlobals),
		IsValidForSource: isValidForSource,
	}, nil
}

// MatchesMethod returns true if the sink identifies the method
func (s *TaintSink) MatchesMethod(sig bytecode.MethodSignature) bool {
	return s.Matches(sig.Class, sig.Name, sig.Descriptor)
}

// ValidFor returns true if taint from the source is reported at the sink
func (s *TaintSink) ValidFor(src *TaintSource) bool {
	return s.IsValidForSource == nil || s.IsValidForSource(src)
}

func (s *TaintSink) String() string {
	return s.Class + "." + s.Method
}

func checkPositions(positions []int) error {
	for _, p := range positions {
		if p < 1 {
			return fmt.Errorf("argument positions start at 1, got %d", p)
		}
	}
	return nil
}
