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
	"os"

	"gopkg.in/yaml.v3"
)

// Program is the yaml representation of a set of classes. The code of each method is written in the syntax of
// Assemble. Methods without code are native, abstract, or library methods whose code is not available.
//
//	classes:
//	  - name: A
//	    methods:
//	      - name: source
//	        descriptor: ()Ljava/lang/String;
//	        static: true
//	      - name: main
//	        descriptor: ()V
//	        static: true
//	        code: |
//	          invokestatic A.source()Ljava/lang/String;
//	          astore_0
//	          return
type Program struct {
	Classes []ClassSpec `yaml:"classes"`
}

// ClassSpec is the yaml representation of a class
type ClassSpec struct {
	Name       string       `yaml:"name"`
	Super      string       `yaml:"super"`
	Interfaces []string     `yaml:"interfaces"`
	Interface  bool         `yaml:"interface"`
	Methods    []MethodSpec `yaml:"methods"`
}

// MethodSpec is the yaml representation of a method
type MethodSpec struct {
	Name       string `yaml:"name"`
	Descriptor string `yaml:"descriptor"`
	Static     bool   `yaml:"static"`
	Native     bool   `yaml:"native"`
	Abstract   bool   `yaml:"abstract"`
	Code       string `yaml:"code"`
}

// DefaultSuperclass is the superclass of classes that do not declare one
const DefaultSuperclass = "java/lang/Object"

// LoadProgramFile reads a program from a yaml file
func LoadProgramFile(filename string) (*ClassPool, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read program file: %w", err)
	}
	pool, err := LoadProgram(b)
	if err != nil {
		return nil, fmt.Errorf("in program file %s: %w", filename, err)
	}
	return pool, nil
}

// LoadProgram builds the class pool of a program given in yaml
func LoadProgram(content []byte) (*ClassPool, error) {
	var prog Program
	if err := yaml.Unmarshal(content, &prog); err != nil {
		return nil, fmt.Errorf("could not unmarshal program: %w", err)
	}
	pool := NewClassPool()
	for _, cs := range prog.Classes {
		if cs.Name == "" {
			return nil, fmt.Errorf("class without name")
		}
		super := cs.Super
		if super == "" && cs.Name != DefaultSuperclass {
			super = DefaultSuperclass
		}
		c := NewClass(cs.Name, super, cs.Interfaces, cs.Interface)
		for _, ms := range cs.Methods {
			if err := addMethod(c, ms); err != nil {
				return nil, fmt.Errorf("in class %s: %w", cs.Name, err)
			}
		}
		if err := pool.AddClass(c); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

func addMethod(c *Class, ms MethodSpec) error {
	var access AccessFlags
	if ms.Static {
		access |= AccStatic
	}
	if ms.Native {
		access |= AccNative
	}
	if ms.Abstract {
		access |= AccAbstract
	}
	var code *Code
	if ms.Code != "" {
		if ms.Native || ms.Abstract {
			return fmt.Errorf("method %s%s is native or abstract but has code", ms.Name, ms.Descriptor)
		}
		var err error
		code, err = Assemble(ms.Code)
		if err != nil {
			return fmt.Errorf("in code of %s%s: %w", ms.Name, ms.Descriptor, err)
		}
	}
	m, err := c.AddMethod(ms.Name, ms.Descriptor, access, code)
	if err != nil {
		return err
	}
	if code != nil && code.MaxLocals < m.ArgumentSize() {
		code.MaxLocals = m.ArgumentSize()
	}
	return nil
}
