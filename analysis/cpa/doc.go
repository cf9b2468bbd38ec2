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

// Package cpa implements a configurable program analysis: a worklist fixpoint algorithm parametrized by an abstract
// domain, a transfer relation, merge and stop operators, a precision adjustment and an abort operator.
//
// The abstract states of an analysis form a join-semilattice. The algorithm pops states from a Waitlist, computes
// their successors with the TransferRelation, merges every successor with the states already reached at its
// location, and adds the successors that are not covered by the reached states according to the StopOperator. It
// terminates when the waitlist is empty, or when the abort operator signals that the analysis must stop.
//
// Analyses in this package never mutate the states they are given: transfer relations copy states before stepping
// and merge operators return new states. States are compared by identity in the ReachedSet and the Waitlist, and
// should therefore be pointers.
package cpa
