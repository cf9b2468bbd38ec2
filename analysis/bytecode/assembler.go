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

// Assemble builds the code of a method from its textual representation. Each line contains an instruction, a
// label, or a directive:
//
//	# comment
//	.locals 2
//	.catch java/lang/Exception start end handler   (use "any" for finally handlers)
//	start:
//	    invokestatic A.source()Ljava/lang/String;
//	    astore_0
//	    ifnull end
//	    getstatic A.f Ljava/lang/String;
//	    tableswitch 0:l0 1:l1 default:l2
//	end:
//	    return
//
// Offsets are computed from the encoded length of the instructions, so that they match the offsets of the
// corresponding class file.
func Assemble(src string) (*Code, error) {
	a := &assembler{labels: map[string]int{}, maxLocals: -1}
	for i, line := range strings.Split(src, "\n") {
		if err := a.line(stripComment(line)); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return a.finish()
}

type pendingInstruction struct {
	ins          Instruction
	target       string
	caseLabels   []string
	defaultLabel string
}

type pendingHandler struct {
	class                  string
	start, end, handlerPos string
}

type assembler struct {
	pending   []pendingInstruction
	handlers  []pendingHandler
	labels    map[string]int
	offset    int
	maxLocals int
	usedLocal int
}

func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if inString {
				i++
			}
		case '"':
			inString = !inString
		case '#':
			if !inString {
				return line[:i]
			}
		}
	}
	return line
}

func (a *assembler) line(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	// a label, possibly followed by an instruction
	if first := strings.Fields(line)[0]; strings.HasSuffix(first, ":") && !strings.HasPrefix(first, ".") {
		label := strings.TrimSuffix(first, ":")
		if _, ok := a.labels[label]; ok {
			return fmt.Errorf("duplicate label %q", label)
		}
		a.labels[label] = a.offset
		return a.line(strings.TrimPrefix(line, first))
	}
	if strings.HasPrefix(line, ".") {
		return a.directive(strings.Fields(line))
	}
	mnemonic, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	op, ok := ParseOpcode(mnemonic)
	if !ok {
		return fmt.Errorf("unknown opcode %q", mnemonic)
	}
	p, err := a.instruction(op, rest)
	if err != nil {
		return fmt.Errorf("%s: %w", mnemonic, err)
	}
	p.ins.Offset = a.offset
	p.ins.Length = instructionLength(p.ins)
	a.offset += p.ins.Length
	a.pending = append(a.pending, p)
	return nil
}

func (a *assembler) directive(fields []string) error {
	switch fields[0] {
	case ".locals":
		if len(fields) != 2 {
			return fmt.Errorf(".locals expects one operand")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid number of locals %q", fields[1])
		}
		a.maxLocals = n
	case ".catch":
		if len(fields) != 5 {
			return fmt.Errorf(".catch expects a class and three labels")
		}
		a.handlers = append(a.handlers, pendingHandler{fields[1], fields[2], fields[3], fields[4]})
	default:
		return fmt.Errorf("unknown directive %s", fields[0])
	}
	return nil
}

//gocyclo:ignore
func (a *assembler) instruction(op Opcode, operands string) (pendingInstruction, error) {
	p := pendingInstruction{ins: Instruction{Opcode: op}}
	fields := strings.Fields(operands)
	expect := func(n int) error {
		if len(fields) != n {
			return fmt.Errorf("expected %d operands, got %d", n, len(fields))
		}
		return nil
	}
	info := op.Info()
	switch info.Kind {
	case KindNop, KindArrayLoad, KindArrayStore, KindStack, KindReturn, KindThrow, KindMonitor:
		return p, expect(0)
	case KindLoad, KindStore:
		if k, ok := implicitLocal(op); ok {
			p.ins.Local = k
			a.useLocal(k, info.Pushes+info.Pops)
			return p, expect(0)
		}
		if err := expect(1); err != nil {
			return p, err
		}
		k, err := strconv.Atoi(fields[0])
		if err != nil || k < 0 {
			return p, fmt.Errorf("invalid local index %q", fields[0])
		}
		p.ins.Local = k
		a.useLocal(k, info.Pushes+info.Pops)
	case KindIinc:
		if err := expect(2); err != nil {
			return p, err
		}
		k, err1 := strconv.Atoi(fields[0])
		inc, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil || k < 0 {
			return p, fmt.Errorf("invalid operands %q", operands)
		}
		p.ins.Local, p.ins.Increment = k, inc
		a.useLocal(k, 1)
	case KindConst:
		if c, ok := implicitConstant(op); ok {
			p.ins.Constant = c
			return p, expect(0)
		}
		c, err := parseConstant(op, operands)
		if err != nil {
			return p, err
		}
		p.ins.Constant = c
	case KindBranch, KindGoto:
		if err := expect(1); err != nil {
			return p, err
		}
		p.target = fields[0]
	case KindSwitch:
		p.ins.Switch = &SwitchTable{}
		for _, f := range fields {
			key, label, ok := strings.Cut(f, ":")
			if !ok || label == "" {
				return p, fmt.Errorf("switch entry %q should be key:label", f)
			}
			if key == "default" {
				p.defaultLabel = label
				continue
			}
			k, err := strconv.ParseInt(key, 10, 32)
			if err != nil {
				return p, fmt.Errorf("invalid switch key %q", key)
			}
			p.ins.Switch.Cases = append(p.ins.Switch.Cases, SwitchCase{Key: int32(k)})
			p.caseLabels = append(p.caseLabels, label)
		}
		if p.defaultLabel == "" {
			return p, fmt.Errorf("switch without default")
		}
		if op == Tableswitch {
			for i, c := range p.ins.Switch.Cases {
				if i > 0 && c.Key != p.ins.Switch.Cases[i-1].Key+1 {
					return p, fmt.Errorf("tableswitch keys must be consecutive")
				}
			}
		}
	case KindGetStatic, KindPutStatic, KindGetField, KindPutField:
		if err := expect(2); err != nil {
			return p, err
		}
		dot := strings.LastIndexByte(fields[0], '.')
		if dot <= 0 || dot == len(fields[0])-1 {
			return p, fmt.Errorf("field %q should be of the form Class.name", fields[0])
		}
		t, err := ParseFieldType(fields[1])
		if err != nil {
			return p, err
		}
		p.ins.Field = &FieldRef{Class: fields[0][:dot], Name: fields[0][dot+1:], Descriptor: t}
	case KindInvoke:
		if err := expect(1); err != nil {
			return p, err
		}
		if op == Invokedynamic {
			paren := strings.IndexByte(fields[0], '(')
			if paren <= 0 {
				return p, fmt.Errorf("invokedynamic operand %q should be of the form name(params)return", fields[0])
			}
			if _, err := ParseMethodDescriptor(fields[0][paren:]); err != nil {
				return p, err
			}
			p.ins.Method = &MethodRef{Name: fields[0][:paren], Descriptor: fields[0][paren:]}
			return p, nil
		}
		sig, err := ParseMethodSignature(fields[0])
		if err != nil {
			return p, err
		}
		p.ins.Method = &MethodRef{
			Class:      sig.Class,
			Name:       sig.Name,
			Descriptor: sig.Descriptor,
			Interface:  op == Invokeinterface,
		}
	case KindNew:
		if err := expect(1); err != nil {
			return p, err
		}
		p.ins.Class = fields[0]
	case KindNewArray:
		switch op {
		case Newarray:
			if err := expect(1); err != nil {
				return p, err
			}
			for code, name := range arrayTypeNames {
				if name == fields[0] {
					p.ins.ArrayType = code
				}
			}
			if p.ins.ArrayType == 0 {
				return p, fmt.Errorf("unknown array type %q", fields[0])
			}
		case Anewarray:
			if err := expect(1); err != nil {
				return p, err
			}
			p.ins.Class = fields[0]
		default:
			if err := expect(2); err != nil {
				return p, err
			}
			dims, err := strconv.Atoi(fields[1])
			if err != nil || dims < 1 {
				return p, fmt.Errorf("invalid dimensions %q", fields[1])
			}
			p.ins.Class, p.ins.Dimensions = fields[0], dims
		}
	case KindCompute:
		if op == Checkcast || op == Instanceof {
			if err := expect(1); err != nil {
				return p, err
			}
			p.ins.Class = fields[0]
			return p, nil
		}
		return p, expect(0)
	case KindUnsupported:
		switch op {
		case Jsr, JsrW:
			if err := expect(1); err != nil {
				return p, err
			}
			p.target = fields[0]
		case Ret:
			if err := expect(1); err != nil {
				return p, err
			}
			k, err := strconv.Atoi(fields[0])
			if err != nil {
				return p, fmt.Errorf("invalid local index %q", fields[0])
			}
			p.ins.Local = k
		default:
			return p, fmt.Errorf("%s cannot be assembled", op)
		}
	}
	return p, nil
}

func parseConstant(op Opcode, operand string) (any, error) {
	if operand == "" {
		return nil, fmt.Errorf("missing constant")
	}
	if strings.HasPrefix(operand, "\"") {
		if op != Ldc && op != LdcW {
			return nil, fmt.Errorf("string constants can only be loaded by ldc")
		}
		s, err := strconv.Unquote(operand)
		if err != nil {
			return nil, fmt.Errorf("invalid string constant %s", operand)
		}
		return s, nil
	}
	if i, err := strconv.ParseInt(operand, 10, 64); err == nil {
		switch {
		case op == Bipush && (i < -128 || i > 127):
			return nil, fmt.Errorf("constant %d does not fit in a byte", i)
		case op == Sipush && (i < -32768 || i > 32767):
			return nil, fmt.Errorf("constant %d does not fit in a short", i)
		}
		return i, nil
	}
	if op == Bipush || op == Sipush {
		return nil, fmt.Errorf("invalid integer constant %q", operand)
	}
	f, err := strconv.ParseFloat(operand, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid constant %q", operand)
	}
	return f, nil
}

func (a *assembler) useLocal(k int, size int) {
	if size < 1 {
		size = 1
	}
	if k+size > a.usedLocal {
		a.usedLocal = k + size
	}
}

// instructionLength returns the encoded length of the instruction at its offset
func instructionLength(ins Instruction) int {
	info := ins.Opcode.Info()
	switch info.Kind {
	case KindSwitch:
		pad := (4 - (ins.Offset+1)%4) % 4
		if ins.Opcode == Tableswitch {
			return 1 + pad + 12 + 4*len(ins.Switch.Cases)
		}
		return 1 + pad + 8 + 8*len(ins.Switch.Cases)
	case KindLoad, KindStore:
		if info.Length > 1 && ins.Local > 255 {
			return 4
		}
	case KindIinc:
		if ins.Local > 255 || ins.Increment < -128 || ins.Increment > 127 {
			return 6
		}
	}
	return info.Length
}

func (a *assembler) resolve(label string) (int, error) {
	off, ok := a.labels[label]
	if !ok {
		return 0, fmt.Errorf("undefined label %q", label)
	}
	if off == a.offset {
		return 0, fmt.Errorf("label %q does not precede an instruction", label)
	}
	return off, nil
}

func (a *assembler) finish() (*Code, error) {
	instructions := make([]Instruction, len(a.pending))
	var err error
	for i, p := range a.pending {
		ins := p.ins
		if p.target != "" {
			if ins.Target, err = a.resolve(p.target); err != nil {
				return nil, fmt.Errorf("%s at %d: %w", ins.Opcode, ins.Offset, err)
			}
		}
		if ins.Switch != nil {
			for j, label := range p.caseLabels {
				if ins.Switch.Cases[j].Target, err = a.resolve(label); err != nil {
					return nil, fmt.Errorf("%s at %d: %w", ins.Opcode, ins.Offset, err)
				}
			}
			if ins.Switch.Default, err = a.resolve(p.defaultLabel); err != nil {
				return nil, fmt.Errorf("%s at %d: %w", ins.Opcode, ins.Offset, err)
			}
		}
		instructions[i] = ins
	}

	catchTypes := map[string]int{}
	handlers := make([]ExceptionHandler, len(a.handlers))
	for i, h := range a.handlers {
		start, ok1 := a.labels[h.start]
		end, ok2 := a.labels[h.end]
		handler, err := a.resolve(h.handlerPos)
		if !ok1 || !ok2 || err != nil || start >= end {
			return nil, fmt.Errorf("invalid exception handler %s %s %s %s", h.class, h.start, h.end, h.handlerPos)
		}
		eh := ExceptionHandler{StartPC: start, EndPC: end, HandlerPC: handler, CatchType: AnyCatchType}
		if h.class != "any" {
			if _, ok := catchTypes[h.class]; !ok {
				catchTypes[h.class] = len(catchTypes) + 1
			}
			eh.CatchType = catchTypes[h.class]
			eh.CatchClass = h.class
		}
		handlers[i] = eh
	}

	maxLocals := a.maxLocals
	if maxLocals < 0 {
		maxLocals = a.usedLocal
	}
	return NewCode(maxLocals, instructions, handlers)
}
