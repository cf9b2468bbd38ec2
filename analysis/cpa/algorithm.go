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

package cpa

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/awslabs/ar-jvm-tools/analysis/config"
)

// Status is the outcome of an algorithm run
type Status int

const (
	// Completed means the waitlist was emptied: the reached set is a fixpoint
	Completed Status = iota
	// Aborted means the run stopped early, and the reached set is partial
	Aborted
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ErrAbortOperator is the reason of runs aborted by the abort operator of the analysis
var ErrAbortOperator = errors.New("analysis stopped by the abort operator")

// Result is the result of a run of the algorithm. The reached set passed to Run contains the states found, and is
// partial when the run was aborted.
type Result struct {
	Status Status
	// Reason is nil for completed runs, and the cause of the abort otherwise
	Reason error
	// Iterations is the number of states popped from the waitlist
	Iterations int
}

// IsCompleted returns true if the run reached a fixpoint
func (r Result) IsCompleted() bool {
	return r.Status == Completed
}

// Algorithm is the worklist algorithm of a configurable program analysis
type Algorithm struct {
	cpa    ConfigurableProgramAnalysis
	logger *config.LogGroup
}

// NewAlgorithm returns the algorithm of the cpa. Missing operators are replaced by a static precision adjustment
// and an abort operator that never aborts.
func NewAlgorithm(cpa ConfigurableProgramAnalysis, logger *config.LogGroup) *Algorithm {
	if cpa.PrecisionAdjustment == nil {
		cpa.PrecisionAdjustment = StaticPrecisionAdjustment{}
	}
	if cpa.Abort == nil {
		cpa.Abort = NeverAbortOperator{}
	}
	if logger == nil {
		logger = config.NewDiscardLogGroup()
	}
	return &Algorithm{cpa: cpa, logger: logger}
}

// Run pops states from the waitlist until it is empty or the analysis aborts, adding the states discovered to the
// reached set and the waitlist. The states initially in the waitlist must also be in the reached set.
//
// Any error or panic raised while processing a state aborts the whole run: the error is logged and the waitlist is
// cleared, but the reached set keeps the states found so far.
func (a *Algorithm) Run(reached *ReachedSet, waitlist Waitlist) Result {
	iterations := 0
	for !waitlist.IsEmpty() {
		state := waitlist.Pop()
		iterations++
		if a.cpa.Abort.Abort(state) {
			a.logger.Debugf("analysis aborted after %d iterations, dropping %d waiting states\n",
				iterations, waitlist.Size())
			waitlist.Clear()
			return Result{Status: Aborted, Reason: ErrAbortOperator, Iterations: iterations}
		}
		if err := a.process(state, reached, waitlist); err != nil {
			a.logger.Errorf("analysis failed at %v: %v\n", state.Location(), err)
			waitlist.Clear()
			return Result{Status: Aborted, Reason: err, Iterations: iterations}
		}
	}
	return Result{Status: Completed, Iterations: iterations}
}

// process computes the successors of the state, merges them into the reached set and adds the ones that are not
// covered by the reached set.
func (a *Algorithm) process(state AbstractState, reached *ReachedSet, waitlist Waitlist) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Tracef("%s\n", debug.Stack())
			err = fmt.Errorf("panic while processing state: %v", r)
		}
	}()

	precision := reached.Precision(state)
	state, precision = a.cpa.PrecisionAdjustment.Adjust(state, precision, reached)

	successors, err := a.cpa.Transfer.Successors(state, precision)
	if err != nil {
		return fmt.Errorf("transfer relation failed: %w", err)
	}

	for _, successor := range successors {
		states := reached.Reached(successor)
		for _, r := range states {
			merged := a.cpa.Merge.Merge(successor, r, reached.Precision(r))
			if merged == r {
				continue
			}
			// kill r, gen merged
			p := reached.Precision(r)
			waitlist.Remove(r)
			reached.Remove(r)
			reached.Add(merged, p)
			waitlist.Add(merged)
		}
		if !a.cpa.Stop.Stop(successor, reached.Reached(successor), precision) {
			reached.Add(successor, precision)
			waitlist.Add(successor)
		}
	}
	return nil
}
