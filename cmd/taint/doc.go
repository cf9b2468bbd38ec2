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

/*
The taint tool runs the taint analysis of a JVM program, given as a yaml description of its classes and the
bytecode of their methods (see bytecode.Program), and prints the witness traces of the flows from sources to sinks.

Usage:

	taint [flags] -config config.yaml program.yaml

The flags are:

	-config path      a path to the configuration file containing the entry points, sources and sinks

	-verbose=false    setting verbose mode, overrides config file options if set

	-nocolor=false    print the results without colors
*/
package main
