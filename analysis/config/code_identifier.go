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

import (
	"fmt"
	"regexp"
)

// A CodeIdentifier identifies a method that is an entry point, a source, a sink, etc.
// A method is identified by its class (internal name, e.g. java/lang/String), its name and its descriptor, or any
// combination of those. Empty fields match anything.
type CodeIdentifier struct {
	Class      string `yaml:"class"`
	Method     string `yaml:"method"`
	Descriptor string `yaml:"descriptor"`

	// This will not be part of the yaml config
	computedRegexs *codeIdentifierRegex
}

type codeIdentifierRegex struct {
	classRegex      *regexp.Regexp
	methodRegex     *regexp.Regexp
	descriptorRegex *regexp.Regexp
}

// compileRegexes compiles the strings in the code identifier into regexes. It compiles all identifiers into regexes
// or none.
func compileRegexes(cid CodeIdentifier) CodeIdentifier {
	classRegex, err := regexp.Compile(cid.Class)
	if err != nil {
		return cid
	}
	methodRegex, err := regexp.Compile(cid.Method)
	if err != nil {
		return cid
	}
	descriptorRegex, err := regexp.Compile(cid.Descriptor)
	if err != nil {
		return cid
	}
	cid.computedRegexs = &codeIdentifierRegex{classRegex, methodRegex, descriptorRegex}
	return cid
}

// NewCodeIdentifier returns a code identifier whose fields are compiled to regexes when possible.
func NewCodeIdentifier(class, method, descriptor string) CodeIdentifier {
	return compileRegexes(CodeIdentifier{Class: class, Method: method, Descriptor: descriptor})
}

// Matches returns true if the method (class, name, descriptor) matches each non-empty field of the code identifier.
func (cid CodeIdentifier) Matches(class, method, descriptor string) bool {
	if cid.computedRegexs != nil {
		return (cid.Class == "" || cid.computedRegexs.classRegex.MatchString(class)) &&
			(cid.Method == "" || cid.computedRegexs.methodRegex.MatchString(method)) &&
			(cid.Descriptor == "" || cid.computedRegexs.descriptorRegex.MatchString(descriptor))
	}
	return (cid.Class == "" || cid.Class == class) &&
		(cid.Method == "" || cid.Method == method) &&
		(cid.Descriptor == "" || cid.Descriptor == descriptor)
}

func (cid CodeIdentifier) String() string {
	return fmt.Sprintf("{class: %q, method: %q, descriptor: %q}", cid.Class, cid.Method, cid.Descriptor)
}

// ExistsCid is true if there is some x in a such that f(x) is true.
func ExistsCid(a []CodeIdentifier, f func(identifier CodeIdentifier) bool) bool {
	for _, x := range a {
		if f(x) {
			return true
		}
	}
	return false
}
