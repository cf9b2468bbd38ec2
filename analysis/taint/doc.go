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

// Package taint implements the taint domain of the JVM analysis.
//
// A taint tracking problem is a set of sources and sinks. Sources are methods whose calls taint some values: the
// returned value, the content of the receiver or of the arguments, or static fields. Sinks are methods whose
// receiver, arguments or static fields are sensitive. The taint of a value is the set of sources it may come from,
// a TaintAbstractState; a Finding is a sensitive input of a sink invocation whose taint comes from some source
// valid for that sink.
//
// The abstract values of the JVM states are Values, pairs of a taint and the references the value may point to,
// and Semantics gives the effect of the instructions and of the calls that are not analyzed on them.
package taint
