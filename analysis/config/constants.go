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

package config

const (
	// DefaultMaxCallStackDepth is the default maximum call stack depth considered by the interprocedural analysis.
	// -1 means that the depth limit is ignored
	DefaultMaxCallStackDepth = -1

	// HeapModelTree selects the tree heap model, which tracks references and their fields
	HeapModelTree = "tree"
	// HeapModelForgetful selects the forgetful heap model, which does not track memory
	HeapModelForgetful = "forgetful"

	// WaitlistBreadthFirst processes states in FIFO order
	WaitlistBreadthFirst = "bfs"
	// WaitlistDepthFirst processes states in LIFO order
	WaitlistDepthFirst = "dfs"
	// WaitlistPriority processes states in the topological order of their program locations
	WaitlistPriority = "priority"
)
