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
	"context"
)

// A TransferRelation computes the abstract successors of a state
type TransferRelation interface {
	// Successors returns the abstract successors of state under the precision. The state must not be modified.
	// An error aborts the whole analysis.
	Successors(state AbstractState, precision Precision) ([]AbstractState, error)
}

// A MergeOperator combines a new state with a state already reached at the same location.
type MergeOperator interface {
	// Merge returns the state that should replace reached in the reached set. Returning reached itself means that
	// the reached set is left unchanged.
	Merge(state AbstractState, reached AbstractState, precision Precision) AbstractState
}

// A StopOperator decides whether a state is covered by the states already reached at its location
type StopOperator interface {
	Stop(state AbstractState, reached []AbstractState, precision Precision) bool
}

// A PrecisionAdjustment adjusts a state and its precision before its successors are computed.
type PrecisionAdjustment interface {
	Adjust(state AbstractState, precision Precision, reached *ReachedSet) (AbstractState, Precision)
}

// An AbortOperator is consulted once for every state popped from the waitlist
type AbortOperator interface {
	// Abort returns true if the analysis must stop before processing the state
	Abort(state AbstractState) bool
}

// MergeSepOperator never merges states: every new state is kept separately.
type MergeSepOperator struct{}

// Merge returns reached
func (MergeSepOperator) Merge(_ AbstractState, reached AbstractState, _ Precision) AbstractState {
	return reached
}

// MergeJoinOperator replaces the reached state by its join with the new state.
type MergeJoinOperator struct{}

// Merge returns the join of state and reached, or reached itself if the join does not add anything to it.
func (MergeJoinOperator) Merge(state AbstractState, reached AbstractState, _ Precision) AbstractState {
	joined := reached.Join(state)
	if joined.Equal(reached) {
		return reached
	}
	return joined
}

// StopSepOperator stops a state that is less or equal than one of the reached states
type StopSepOperator struct{}

// Stop returns true if state is covered by a single reached state
func (StopSepOperator) Stop(state AbstractState, reached []AbstractState, _ Precision) bool {
	for _, r := range reached {
		if state.IsLessOrEqual(r) {
			return true
		}
	}
	return false
}

// StopJoinOperator stops a state that is less or equal than the join of all the reached states.
type StopJoinOperator struct{}

// Stop returns true if state is covered by the join of the reached states
func (StopJoinOperator) Stop(state AbstractState, reached []AbstractState, _ Precision) bool {
	if len(reached) == 0 {
		return false
	}
	joined := reached[0]
	for _, r := range reached[1:] {
		joined = joined.Join(r)
	}
	return state.IsLessOrEqual(joined)
}

// StopNeverOperator never stops: every state is explored.
type StopNeverOperator struct{}

// Stop returns false
func (StopNeverOperator) Stop(AbstractState, []AbstractState, Precision) bool {
	return false
}

// StaticPrecisionAdjustment leaves states and precisions unchanged
type StaticPrecisionAdjustment struct{}

// Adjust returns state and precision
func (StaticPrecisionAdjustment) Adjust(state AbstractState, precision Precision, _ *ReachedSet) (AbstractState,
	Precision) {
	return state, precision
}

// NeverAbortOperator never aborts the analysis
type NeverAbortOperator struct{}

// Abort returns false
func (NeverAbortOperator) Abort(AbstractState) bool {
	return false
}

// ContextAbortOperator aborts the analysis when its context is done
type ContextAbortOperator struct {
	Ctx context.Context
}

// Abort returns true if the context has been cancelled or its deadline has passed
func (op ContextAbortOperator) Abort(AbstractState) bool {
	return op.Ctx.Err() != nil
}

// ConfigurableProgramAnalysis bundles the operators of an analysis. The abstract domain is the set of states the
// transfer relation produces.
type ConfigurableProgramAnalysis struct {
	Transfer            TransferRelation
	Merge               MergeOperator
	Stop                StopOperator
	PrecisionAdjustment PrecisionAdjustment
	Abort               AbortOperator
}

// NewConfigurableProgramAnalysis returns an analysis with the transfer relation, merge and stop operators, a static
// precision adjustment and no abort operator.
func NewConfigurableProgramAnalysis(transfer TransferRelation, merge MergeOperator,
	stop StopOperator) ConfigurableProgramAnalysis {
	return ConfigurableProgramAnalysis{
		Transfer:            transfer,
		Merge:               merge,
		Stop:                stop,
		PrecisionAdjustment: StaticPrecisionAdjustment{},
		Abort:               NeverAbortOperator{},
	}
}
