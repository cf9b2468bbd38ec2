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

package bytecode

import (
	"fmt"
	"strings"
)

// A FieldType is a field descriptor, such as I, J, Ljava/lang/String; or [I.
// The void type V is only valid as a return type.
type FieldType string

// Void is the return type of methods that do not return a value
const Void FieldType = "V"

// Size returns the number of stack entries (or local variable slots) taken by a value of that type
func (t FieldType) Size() int {
	switch t {
	case Void:
		return 0
	case "J", "D":
		return 2
	default:
		return 1
	}
}

// IsReference returns true for object and array types
func (t FieldType) IsReference() bool {
	return strings.HasPrefix(string(t), "L") || strings.HasPrefix(string(t), "[")
}

// MethodDescriptor is a parsed method descriptor
type MethodDescriptor struct {
	Params []FieldType
	Return FieldType
}

// ParamSize returns the number of stack entries taken by the parameters, not including the receiver
func (d MethodDescriptor) ParamSize() int {
	n := 0
	for _, p := range d.Params {
		n += p.Size()
	}
	return n
}

func (d MethodDescriptor) String() string {
	var b strings.Builder
	b.WriteString("(")
	for _, p := range d.Params {
		b.WriteString(string(p))
	}
	b.WriteString(")")
	b.WriteString(string(d.Return))
	return b.String()
}

// ParseMethodDescriptor parses a descriptor such as (ILjava/lang/String;)V
func ParseMethodDescriptor(desc string) (MethodDescriptor, error) {
	if !strings.HasPrefix(desc, "(") {
		return MethodDescriptor{}, fmt.Errorf("method descriptor %q does not start with '('", desc)
	}
	var md MethodDescriptor
	i := 1
	for i < len(desc) && desc[i] != ')' {
		t, n, err := parseFieldType(desc[i:])
		if err != nil {
			return MethodDescriptor{}, fmt.Errorf("in method descriptor %q: %w", desc, err)
		}
		if t == Void {
			return MethodDescriptor{}, fmt.Errorf("in method descriptor %q: void parameter", desc)
		}
		md.Params = append(md.Params, t)
		i += n
	}
	if i >= len(desc) {
		return MethodDescriptor{}, fmt.Errorf("method descriptor %q has no ')'", desc)
	}
	ret, n, err := parseFieldType(desc[i+1:])
	if err != nil {
		return MethodDescriptor{}, fmt.Errorf("in return type of %q: %w", desc, err)
	}
	if i+1+n != len(desc) {
		return MethodDescriptor{}, fmt.Errorf("trailing characters in method descriptor %q", desc)
	}
	md.Return = ret
	return md, nil
}

// ParseFieldType parses a complete field descriptor
func ParseFieldType(desc string) (FieldType, error) {
	t, n, err := parseFieldType(desc)
	if err != nil {
		return "", err
	}
	if n != len(desc) || t == Void {
		return "", fmt.Errorf("invalid field descriptor %q", desc)
	}
	return t, nil
}

// parseFieldType parses the field type at the start of s and returns it with its length
func parseFieldType(s string) (FieldType, int, error) {
	if s == "" {
		return "", 0, fmt.Errorf("empty type")
	}
	switch s[0] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 'V':
		return FieldType(s[:1]), 1, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 2 {
			return "", 0, fmt.Errorf("unterminated class type in %q", s)
		}
		return FieldType(s[:end+1]), end + 1, nil
	case '[':
		elem, n, err := parseFieldType(s[1:])
		if err != nil {
			return "", 0, err
		}
		if elem == Void {
			return "", 0, fmt.Errorf("array of void in %q", s)
		}
		return FieldType(s[:n+1]), n + 1, nil
	default:
		return "", 0, fmt.Errorf("unexpected character %q in type %q", s[0], s)
	}
}

// MethodSignature identifies a method by its class, name and descriptor
type MethodSignature struct {
	Class      string
	Name       string
	Descriptor string
}

// String returns the signature in the form Class.name(params)return
func (s MethodSignature) String() string {
	return s.Class + "." + s.Name + s.Descriptor
}

// ParseMethodSignature parses a signature printed by MethodSignature.String
func ParseMethodSignature(s string) (MethodSignature, error) {
	paren := strings.IndexByte(s, '(')
	if paren < 0 {
		return MethodSignature{}, fmt.Errorf("method signature %q has no descriptor", s)
	}
	dot := strings.LastIndexByte(s[:paren], '.')
	if dot <= 0 || dot == paren-1 {
		return MethodSignature{}, fmt.Errorf("method signature %q should be of the form Class.name(...)", s)
	}
	sig := MethodSignature{Class: s[:dot], Name: s[dot+1 : paren], Descriptor: s[paren:]}
	if _, err := ParseMethodDescriptor(sig.Descriptor); err != nil {
		return MethodSignature{}, err
	}
	return sig, nil
}

// ParsedDescriptor returns the parsed descriptor of the signature. The descriptor of a signature built by the
// assembler or the program loader is always valid, so an invalid descriptor is reported as having no parameters
// and a void return type.
func (s MethodSignature) ParsedDescriptor() MethodDescriptor {
	md, err := ParseMethodDescriptor(s.Descriptor)
	if err != nil {
		return MethodDescriptor{Return: Void}
	}
	return md
}

// Less orders signatures by class, name and descriptor
func (s MethodSignature) Less(o MethodSignature) bool {
	if s.Class != o.Class {
		return s.Class < o.Class
	}
	if s.Name != o.Name {
		return s.Name < o.Name
	}
	return s.Descriptor < o.Descriptor
}
