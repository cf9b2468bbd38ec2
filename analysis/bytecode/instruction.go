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
	"strconv"
	"strings"
)

// FieldRef is a symbolic reference to a field
type FieldRef struct {
	Class      string
	Name       string
	Descriptor FieldType
}

// FQN returns the fully qualified name of the field, e.g. A.f
func (f FieldRef) FQN() string {
	return f.Class + "." + f.Name
}

// MethodRef is a symbolic reference to a method, as it appears in an invocation instruction
type MethodRef struct {
	Class      string
	Name       string
	Descriptor string
	// Interface is true for references to interface methods
	Interface bool
}

// Signature returns the signature of the referenced method
func (m MethodRef) Signature() MethodSignature {
	return MethodSignature{Class: m.Class, Name: m.Name, Descriptor: m.Descriptor}
}

// SwitchCase is one entry of a switch table
type SwitchCase struct {
	Key    int32
	Target int
}

// SwitchTable contains the jump table of tableswitch and lookupswitch
type SwitchTable struct {
	Cases   []SwitchCase
	Default int
}

// Keys returns the keys of the cases, in order
func (t *SwitchTable) Keys() []int32 {
	keys := make([]int32, len(t.Cases))
	for i, c := range t.Cases {
		keys[i] = c.Key
	}
	return keys
}

// An Instruction is a decoded instruction at some offset in the code of a method.
type Instruction struct {
	Opcode Opcode
	Offset int
	// Length is the size of the encoded instruction in bytes
	Length int

	// Local is the local variable index of load, store, iinc and ret instructions
	Local int
	// Increment is the constant added by iinc
	Increment int
	// Constant is the value pushed by constant instructions: nil, int64, float64 or string
	Constant any
	// Target is the offset of the jump target of branch, goto and jsr instructions
	Target int
	// Switch is the jump table of switch instructions
	Switch *SwitchTable
	// Field is the field operand of field instructions
	Field *FieldRef
	// Method is the method operand of invocation instructions
	Method *MethodRef
	// Class is the class operand of new, anewarray, checkcast, instanceof and multianewarray
	Class string
	// Dimensions is the number of dimensions of multianewarray
	Dimensions int
	// ArrayType is the element type code of newarray (4 = boolean ... 11 = long)
	ArrayType int
}

// Next returns the offset of the instruction that follows this one in the code
func (ins Instruction) Next() int {
	return ins.Offset + ins.Length
}

// Kind returns the effect kind of the instruction's opcode
func (ins Instruction) Kind() Kind {
	return ins.Opcode.Kind()
}

// StackEffect returns the number of stack entries popped and pushed by the instruction.
func (ins Instruction) StackEffect() (pops int, pushes int) {
	info := ins.Opcode.Info()
	switch info.Kind {
	case KindGetStatic:
		return 0, ins.Field.Descriptor.Size()
	case KindPutStatic:
		return ins.Field.Descriptor.Size(), 0
	case KindGetField:
		return 1, ins.Field.Descriptor.Size()
	case KindPutField:
		return 1 + ins.Field.Descriptor.Size(), 0
	case KindInvoke:
		md := MethodSignature{Descriptor: ins.Method.Descriptor}.ParsedDescriptor()
		pops = md.ParamSize()
		if !ins.Opcode.IsStatic() {
			pops++
		}
		return pops, md.Return.Size()
	}
	if ins.Opcode == Multianewarray {
		return ins.Dimensions, 1
	}
	return info.Pops, info.Pushes
}

// ReturnType returns the type of the value returned by an invocation, or Void
func (ins Instruction) ReturnType() FieldType {
	if ins.Method == nil {
		return Void
	}
	return MethodSignature{Descriptor: ins.Method.Descriptor}.ParsedDescriptor().Return
}

// BranchTargets returns the offsets the instruction may jump to, excluding the fall-through offset.
func (ins Instruction) BranchTargets() []int {
	switch ins.Kind() {
	case KindBranch, KindGoto:
		return []int{ins.Target}
	case KindSwitch:
		targets := make([]int, 0, len(ins.Switch.Cases)+1)
		for _, c := range ins.Switch.Cases {
			targets = append(targets, c.Target)
		}
		return append(targets, ins.Switch.Default)
	}
	return nil
}

// FallsThrough returns true if control may flow from the instruction to the next instruction in the code
func (ins Instruction) FallsThrough() bool {
	switch ins.Kind() {
	case KindGoto, KindSwitch, KindReturn, KindThrow:
		return false
	case KindUnsupported:
		return ins.Opcode != Ret
	}
	return true
}

func (ins Instruction) String() string {
	var b strings.Builder
	b.WriteString(ins.Opcode.String())
	arg := func(s string) {
		b.WriteString(" ")
		b.WriteString(s)
	}
	switch ins.Kind() {
	case KindLoad, KindStore:
		if ins.Opcode.Info().Length > 1 {
			arg(strconv.Itoa(ins.Local))
		}
	case KindIinc:
		arg(strconv.Itoa(ins.Local))
		arg(strconv.Itoa(ins.Increment))
	case KindConst:
		switch c := ins.Constant.(type) {
		case string:
			arg(strconv.Quote(c))
		case nil:
		default:
			if ins.Opcode.Info().Length > 1 {
				arg(fmt.Sprint(c))
			}
		}
	case KindBranch, KindGoto:
		arg(strconv.Itoa(ins.Target))
	case KindSwitch:
		for _, c := range ins.Switch.Cases {
			arg(fmt.Sprintf("%d:%d", c.Key, c.Target))
		}
		arg(fmt.Sprintf("default:%d", ins.Switch.Default))
	case KindGetStatic, KindPutStatic, KindGetField, KindPutField:
		arg(ins.Field.FQN())
		arg(string(ins.Field.Descriptor))
	case KindInvoke:
		arg(ins.Method.Signature().String())
	case KindNew:
		arg(ins.Class)
	case KindNewArray:
		switch ins.Opcode {
		case Newarray:
			arg(arrayTypeNames[ins.ArrayType])
		case Anewarray:
			arg(ins.Class)
		default:
			arg(ins.Class)
			arg(strconv.Itoa(ins.Dimensions))
		}
	case KindCompute:
		if ins.Class != "" {
			arg(ins.Class)
		}
	case KindUnsupported:
		if ins.Opcode == Ret {
			arg(strconv.Itoa(ins.Local))
		} else if ins.Opcode == Jsr || ins.Opcode == JsrW {
			arg(strconv.Itoa(ins.Target))
		}
	}
	return b.String()
}

var arrayTypeNames = map[int]string{
	4: "boolean", 5: "char", 6: "float", 7: "double", 8: "byte", 9: "short", 10: "int", 11: "long",
}

// implicitLocal returns the local index encoded in the opcode of the xload_n and xstore_n instructions
func implicitLocal(op Opcode) (int, bool) {
	switch {
	case op >= Iload0 && op <= Aload3:
		return int(op-Iload0) % 4, true
	case op >= Istore0 && op <= Astore3:
		return int(op-Istore0) % 4, true
	}
	return 0, false
}

// implicitConstant returns the constant pushed by the constant instructions without operands
func implicitConstant(op Opcode) (any, bool) {
	switch {
	case op == AconstNull:
		return nil, true
	case op >= IconstM1 && op <= Iconst5:
		return int64(op) - int64(Iconst0), true
	case op == Lconst0 || op == Lconst1:
		return int64(op - Lconst0), true
	case op >= Fconst0 && op <= Fconst2:
		return float64(op - Fconst0), true
	case op == Dconst0 || op == Dconst1:
		return float64(op - Dconst0), true
	}
	return nil, false
}
