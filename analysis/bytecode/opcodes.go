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

import "fmt"

// An Opcode is a JVM instruction opcode
type Opcode uint8

// Opcodes of the JVM instruction set
const (
	Nop             Opcode = 0x00
	AconstNull      Opcode = 0x01
	IconstM1        Opcode = 0x02
	Iconst0         Opcode = 0x03
	Iconst1         Opcode = 0x04
	Iconst2         Opcode = 0x05
	Iconst3         Opcode = 0x06
	Iconst4         Opcode = 0x07
	Iconst5         Opcode = 0x08
	Lconst0         Opcode = 0x09
	Lconst1         Opcode = 0x0a
	Fconst0         Opcode = 0x0b
	Fconst1         Opcode = 0x0c
	Fconst2         Opcode = 0x0d
	Dconst0         Opcode = 0x0e
	Dconst1         Opcode = 0x0f
	Bipush          Opcode = 0x10
	Sipush          Opcode = 0x11
	Ldc             Opcode = 0x12
	LdcW            Opcode = 0x13
	Ldc2W           Opcode = 0x14
	Iload           Opcode = 0x15
	Lload           Opcode = 0x16
	Fload           Opcode = 0x17
	Dload           Opcode = 0x18
	Aload           Opcode = 0x19
	Iload0          Opcode = 0x1a
	Iload1          Opcode = 0x1b
	Iload2          Opcode = 0x1c
	Iload3          Opcode = 0x1d
	Lload0          Opcode = 0x1e
	Lload1          Opcode = 0x1f
	Lload2          Opcode = 0x20
	Lload3          Opcode = 0x21
	Fload0          Opcode = 0x22
	Fload1          Opcode = 0x23
	Fload2          Opcode = 0x24
	Fload3          Opcode = 0x25
	Dload0          Opcode = 0x26
	Dload1          Opcode = 0x27
	Dload2          Opcode = 0x28
	Dload3          Opcode = 0x29
	Aload0          Opcode = 0x2a
	Aload1          Opcode = 0x2b
	Aload2          Opcode = 0x2c
	Aload3          Opcode = 0x2d
	Iaload          Opcode = 0x2e
	Laload          Opcode = 0x2f
	Faload          Opcode = 0x30
	Daload          Opcode = 0x31
	Aaload          Opcode = 0x32
	Baload          Opcode = 0x33
	Caload          Opcode = 0x34
	Saload          Opcode = 0x35
	Istore          Opcode = 0x36
	Lstore          Opcode = 0x37
	Fstore          Opcode = 0x38
	Dstore          Opcode = 0x39
	Astore          Opcode = 0x3a
	Istore0         Opcode = 0x3b
	Istore1         Opcode = 0x3c
	Istore2         Opcode = 0x3d
	Istore3         Opcode = 0x3e
	Lstore0         Opcode = 0x3f
	Lstore1         Opcode = 0x40
	Lstore2         Opcode = 0x41
	Lstore3         Opcode = 0x42
	Fstore0         Opcode = 0x43
	Fstore1         Opcode = 0x44
	Fstore2         Opcode = 0x45
	Fstore3         Opcode = 0x46
	Dstore0         Opcode = 0x47
	Dstore1         Opcode = 0x48
	Dstore2         Opcode = 0x49
	Dstore3         Opcode = 0x4a
	Astore0         Opcode = 0x4b
	Astore1         Opcode = 0x4c
	Astore2         Opcode = 0x4d
	Astore3         Opcode = 0x4e
	Iastore         Opcode = 0x4f
	Lastore         Opcode = 0x50
	Fastore         Opcode = 0x51
	Dastore         Opcode = 0x52
	Aastore         Opcode = 0x53
	Bastore         Opcode = 0x54
	Castore         Opcode = 0x55
	Sastore         Opcode = 0x56
	Pop             Opcode = 0x57
	Pop2            Opcode = 0x58
	Dup             Opcode = 0x59
	DupX1           Opcode = 0x5a
	DupX2           Opcode = 0x5b
	Dup2            Opcode = 0x5c
	Dup2X1          Opcode = 0x5d
	Dup2X2          Opcode = 0x5e
	Swap            Opcode = 0x5f
	Iadd            Opcode = 0x60
	Ladd            Opcode = 0x61
	Fadd            Opcode = 0x62
	Dadd            Opcode = 0x63
	Isub            Opcode = 0x64
	Lsub            Opcode = 0x65
	Fsub            Opcode = 0x66
	Dsub            Opcode = 0x67
	Imul            Opcode = 0x68
	Lmul            Opcode = 0x69
	Fmul            Opcode = 0x6a
	Dmul            Opcode = 0x6b
	Idiv            Opcode = 0x6c
	Ldiv            Opcode = 0x6d
	Fdiv            Opcode = 0x6e
	Ddiv            Opcode = 0x6f
	Irem            Opcode = 0x70
	Lrem            Opcode = 0x71
	Frem            Opcode = 0x72
	Drem            Opcode = 0x73
	Ineg            Opcode = 0x74
	Lneg            Opcode = 0x75
	Fneg            Opcode = 0x76
	Dneg            Opcode = 0x77
	Ishl            Opcode = 0x78
	Lshl            Opcode = 0x79
	Ishr            Opcode = 0x7a
	Lshr            Opcode = 0x7b
	Iushr           Opcode = 0x7c
	Lushr           Opcode = 0x7d
	Iand            Opcode = 0x7e
	Land            Opcode = 0x7f
	Ior             Opcode = 0x80
	Lor             Opcode = 0x81
	Ixor            Opcode = 0x82
	Lxor            Opcode = 0x83
	Iinc            Opcode = 0x84
	I2l             Opcode = 0x85
	I2f             Opcode = 0x86
	I2d             Opcode = 0x87
	L2i             Opcode = 0x88
	L2f             Opcode = 0x89
	L2d             Opcode = 0x8a
	F2i             Opcode = 0x8b
	F2l             Opcode = 0x8c
	F2d             Opcode = 0x8d
	D2i             Opcode = 0x8e
	D2l             Opcode = 0x8f
	D2f             Opcode = 0x90
	I2b             Opcode = 0x91
	I2c             Opcode = 0x92
	I2s             Opcode = 0x93
	Lcmp            Opcode = 0x94
	Fcmpl           Opcode = 0x95
	Fcmpg           Opcode = 0x96
	Dcmpl           Opcode = 0x97
	Dcmpg           Opcode = 0x98
	Ifeq            Opcode = 0x99
	Ifne            Opcode = 0x9a
	Iflt            Opcode = 0x9b
	Ifge            Opcode = 0x9c
	Ifgt            Opcode = 0x9d
	Ifle            Opcode = 0x9e
	IfIcmpeq        Opcode = 0x9f
	IfIcmpne        Opcode = 0xa0
	IfIcmplt        Opcode = 0xa1
	IfIcmpge        Opcode = 0xa2
	IfIcmpgt        Opcode = 0xa3
	IfIcmple        Opcode = 0xa4
	IfAcmpeq        Opcode = 0xa5
	IfAcmpne        Opcode = 0xa6
	Goto            Opcode = 0xa7
	Jsr             Opcode = 0xa8
	Ret             Opcode = 0xa9
	Tableswitch     Opcode = 0xaa
	Lookupswitch    Opcode = 0xab
	Ireturn         Opcode = 0xac
	Lreturn         Opcode = 0xad
	Freturn         Opcode = 0xae
	Dreturn         Opcode = 0xaf
	Areturn         Opcode = 0xb0
	Return          Opcode = 0xb1
	Getstatic       Opcode = 0xb2
	Putstatic       Opcode = 0xb3
	Getfield        Opcode = 0xb4
	Putfield        Opcode = 0xb5
	Invokevirtual   Opcode = 0xb6
	Invokespecial   Opcode = 0xb7
	Invokestatic    Opcode = 0xb8
	Invokeinterface Opcode = 0xb9
	Invokedynamic   Opcode = 0xba
	New             Opcode = 0xbb
	Newarray        Opcode = 0xbc
	Anewarray       Opcode = 0xbd
	Arraylength     Opcode = 0xbe
	Athrow          Opcode = 0xbf
	Checkcast       Opcode = 0xc0
	Instanceof      Opcode = 0xc1
	Monitorenter    Opcode = 0xc2
	Monitorexit     Opcode = 0xc3
	Wide            Opcode = 0xc4
	Multianewarray  Opcode = 0xc5
	Ifnull          Opcode = 0xc6
	Ifnonnull       Opcode = 0xc7
	GotoW           Opcode = 0xc8
	JsrW            Opcode = 0xc9
)

// Kind classifies opcodes by their effect on the abstract state
type Kind int

const (
	KindNop Kind = iota
	// KindConst pushes a constant
	KindConst
	// KindLoad pushes the value of a local variable
	KindLoad
	// KindStore pops a value into a local variable
	KindStore
	// KindArrayLoad pops an array reference and an index, and pushes the array element
	KindArrayLoad
	// KindArrayStore pops an array reference, an index and a value
	KindArrayStore
	// KindStack rearranges the top entries of the stack (pop, dup and swap families)
	KindStack
	// KindCompute pops operands and pushes a result computed from them
	KindCompute
	KindIinc
	// KindBranch pops its operands and jumps conditionally
	KindBranch
	KindGoto
	KindSwitch
	KindReturn
	KindGetStatic
	KindPutStatic
	KindGetField
	KindPutField
	KindInvoke
	KindNew
	KindNewArray
	KindThrow
	KindMonitor
	// KindUnsupported opcodes (jsr, ret, wide) are rejected by the analyses
	KindUnsupported
)

// OpcodeInfo describes the static properties of an opcode. Stack effects are counted in stack entries: long and
// double values occupy two entries. A negative effect means the effect depends on the operands of the instruction.
type OpcodeInfo struct {
	Name   string
	Kind   Kind
	Pops   int
	Pushes int
	// Length is the size of the encoded instruction in bytes, 0 for the variable-length switches
	Length int
}

var opcodeInfos = [...]OpcodeInfo{
	Nop:             {"nop", KindNop, 0, 0, 1},
	AconstNull:      {"aconst_null", KindConst, 0, 1, 1},
	IconstM1:        {"iconst_m1", KindConst, 0, 1, 1},
	Iconst0:         {"iconst_0", KindConst, 0, 1, 1},
	Iconst1:         {"iconst_1", KindConst, 0, 1, 1},
	Iconst2:         {"iconst_2", KindConst, 0, 1, 1},
	Iconst3:         {"iconst_3", KindConst, 0, 1, 1},
	Iconst4:         {"iconst_4", KindConst, 0, 1, 1},
	Iconst5:         {"iconst_5", KindConst, 0, 1, 1},
	Lconst0:         {"lconst_0", KindConst, 0, 2, 1},
	Lconst1:         {"lconst_1", KindConst, 0, 2, 1},
	Fconst0:         {"fconst_0", KindConst, 0, 1, 1},
	Fconst1:         {"fconst_1", KindConst, 0, 1, 1},
	Fconst2:         {"fconst_2", KindConst, 0, 1, 1},
	Dconst0:         {"dconst_0", KindConst, 0, 2, 1},
	Dconst1:         {"dconst_1", KindConst, 0, 2, 1},
	Bipush:          {"bipush", KindConst, 0, 1, 2},
	Sipush:          {"sipush", KindConst, 0, 1, 3},
	Ldc:             {"ldc", KindConst, 0, 1, 2},
	LdcW:            {"ldc_w", KindConst, 0, 1, 3},
	Ldc2W:           {"ldc2_w", KindConst, 0, 2, 3},
	Iload:           {"iload", KindLoad, 0, 1, 2},
	Lload:           {"lload", KindLoad, 0, 2, 2},
	Fload:           {"fload", KindLoad, 0, 1, 2},
	Dload:           {"dload", KindLoad, 0, 2, 2},
	Aload:           {"aload", KindLoad, 0, 1, 2},
	Iload0:          {"iload_0", KindLoad, 0, 1, 1},
	Iload1:          {"iload_1", KindLoad, 0, 1, 1},
	Iload2:          {"iload_2", KindLoad, 0, 1, 1},
	Iload3:          {"iload_3", KindLoad, 0, 1, 1},
	Lload0:          {"lload_0", KindLoad, 0, 2, 1},
	Lload1:          {"lload_1", KindLoad, 0, 2, 1},
	Lload2:          {"lload_2", KindLoad, 0, 2, 1},
	Lload3:          {"lload_3", KindLoad, 0, 2, 1},
	Fload0:          {"fload_0", KindLoad, 0, 1, 1},
	Fload1:          {"fload_1", KindLoad, 0, 1, 1},
	Fload2:          {"fload_2", KindLoad, 0, 1, 1},
	Fload3:          {"fload_3", KindLoad, 0, 1, 1},
	Dload0:          {"dload_0", KindLoad, 0, 2, 1},
	Dload1:          {"dload_1", KindLoad, 0, 2, 1},
	Dload2:          {"dload_2", KindLoad, 0, 2, 1},
	Dload3:          {"dload_3", KindLoad, 0, 2, 1},
	Aload0:          {"aload_0", KindLoad, 0, 1, 1},
	Aload1:          {"aload_1", KindLoad, 0, 1, 1},
	Aload2:          {"aload_2", KindLoad, 0, 1, 1},
	Aload3:          {"aload_3", KindLoad, 0, 1, 1},
	Iaload:          {"iaload", KindArrayLoad, 2, 1, 1},
	Laload:          {"laload", KindArrayLoad, 2, 2, 1},
	Faload:          {"faload", KindArrayLoad, 2, 1, 1},
	Daload:          {"daload", KindArrayLoad, 2, 2, 1},
	Aaload:          {"aaload", KindArrayLoad, 2, 1, 1},
	Baload:          {"baload", KindArrayLoad, 2, 1, 1},
	Caload:          {"caload", KindArrayLoad, 2, 1, 1},
	Saload:          {"saload", KindArrayLoad, 2, 1, 1},
	Istore:          {"istore", KindStore, 1, 0, 2},
	Lstore:          {"lstore", KindStore, 2, 0, 2},
	Fstore:          {"fstore", KindStore, 1, 0, 2},
	Dstore:          {"dstore", KindStore, 2, 0, 2},
	Astore:          {"astore", KindStore, 1, 0, 2},
	Istore0:         {"istore_0", KindStore, 1, 0, 1},
	Istore1:         {"istore_1", KindStore, 1, 0, 1},
	Istore2:         {"istore_2", KindStore, 1, 0, 1},
	Istore3:         {"istore_3", KindStore, 1, 0, 1},
	Lstore0:         {"lstore_0", KindStore, 2, 0, 1},
	Lstore1:         {"lstore_1", KindStore, 2, 0, 1},
	Lstore2:         {"lstore_2", KindStore, 2, 0, 1},
	Lstore3:         {"lstore_3", KindStore, 2, 0, 1},
	Fstore0:         {"fstore_0", KindStore, 1, 0, 1},
	Fstore1:         {"fstore_1", KindStore, 1, 0, 1},
	Fstore2:         {"fstore_2", KindStore, 1, 0, 1},
	Fstore3:         {"fstore_3", KindStore, 1, 0, 1},
	Dstore0:         {"dstore_0", KindStore, 2, 0, 1},
	Dstore1:         {"dstore_1", KindStore, 2, 0, 1},
	Dstore2:         {"dstore_2", KindStore, 2, 0, 1},
	Dstore3:         {"dstore_3", KindStore, 2, 0, 1},
	Astore0:         {"astore_0", KindStore, 1, 0, 1},
	Astore1:         {"astore_1", KindStore, 1, 0, 1},
	Astore2:         {"astore_2", KindStore, 1, 0, 1},
	Astore3:         {"astore_3", KindStore, 1, 0, 1},
	Iastore:         {"iastore", KindArrayStore, 3, 0, 1},
	Lastore:         {"lastore", KindArrayStore, 4, 0, 1},
	Fastore:         {"fastore", KindArrayStore, 3, 0, 1},
	Dastore:         {"dastore", KindArrayStore, 4, 0, 1},
	Aastore:         {"aastore", KindArrayStore, 3, 0, 1},
	Bastore:         {"bastore", KindArrayStore, 3, 0, 1},
	Castore:         {"castore", KindArrayStore, 3, 0, 1},
	Sastore:         {"sastore", KindArrayStore, 3, 0, 1},
	Pop:             {"pop", KindStack, 1, 0, 1},
	Pop2:            {"pop2", KindStack, 2, 0, 1},
	Dup:             {"dup", KindStack, 1, 2, 1},
	DupX1:           {"dup_x1", KindStack, 2, 3, 1},
	DupX2:           {"dup_x2", KindStack, 3, 4, 1},
	Dup2:            {"dup2", KindStack, 2, 4, 1},
	Dup2X1:          {"dup2_x1", KindStack, 3, 5, 1},
	Dup2X2:          {"dup2_x2", KindStack, 4, 6, 1},
	Swap:            {"swap", KindStack, 2, 2, 1},
	Iadd:            {"iadd", KindCompute, 2, 1, 1},
	Ladd:            {"ladd", KindCompute, 4, 2, 1},
	Fadd:            {"fadd", KindCompute, 2, 1, 1},
	Dadd:            {"dadd", KindCompute, 4, 2, 1},
	Isub:            {"isub", KindCompute, 2, 1, 1},
	Lsub:            {"lsub", KindCompute, 4, 2, 1},
	Fsub:            {"fsub", KindCompute, 2, 1, 1},
	Dsub:            {"dsub", KindCompute, 4, 2, 1},
	Imul:            {"imul", KindCompute, 2, 1, 1},
	Lmul:            {"lmul", KindCompute, 4, 2, 1},
	Fmul:            {"fmul", KindCompute, 2, 1, 1},
	Dmul:            {"dmul", KindCompute, 4, 2, 1},
	Idiv:            {"idiv", KindCompute, 2, 1, 1},
	Ldiv:            {"ldiv", KindCompute, 4, 2, 1},
	Fdiv:            {"fdiv", KindCompute, 2, 1, 1},
	Ddiv:            {"ddiv", KindCompute, 4, 2, 1},
	Irem:            {"irem", KindCompute, 2, 1, 1},
	Lrem:            {"lrem", KindCompute, 4, 2, 1},
	Frem:            {"frem", KindCompute, 2, 1, 1},
	Drem:            {"drem", KindCompute, 4, 2, 1},
	Ineg:            {"ineg", KindCompute, 1, 1, 1},
	Lneg:            {"lneg", KindCompute, 2, 2, 1},
	Fneg:            {"fneg", KindCompute, 1, 1, 1},
	Dneg:            {"dneg", KindCompute, 2, 2, 1},
	Ishl:            {"ishl", KindCompute, 2, 1, 1},
	Lshl:            {"lshl", KindCompute, 3, 2, 1},
	Ishr:            {"ishr", KindCompute, 2, 1, 1},
	Lshr:            {"lshr", KindCompute, 3, 2, 1},
	Iushr:           {"iushr", KindCompute, 2, 1, 1},
	Lushr:           {"lushr", KindCompute, 3, 2, 1},
	Iand:            {"iand", KindCompute, 2, 1, 1},
	Land:            {"land", KindCompute, 4, 2, 1},
	Ior:             {"ior", KindCompute, 2, 1, 1},
	Lor:             {"lor", KindCompute, 4, 2, 1},
	Ixor:            {"ixor", KindCompute, 2, 1, 1},
	Lxor:            {"lxor", KindCompute, 4, 2, 1},
	Iinc:            {"iinc", KindIinc, 0, 0, 3},
	I2l:             {"i2l", KindCompute, 1, 2, 1},
	I2f:             {"i2f", KindCompute, 1, 1, 1},
	I2d:             {"i2d", KindCompute, 1, 2, 1},
	L2i:             {"l2i", KindCompute, 2, 1, 1},
	L2f:             {"l2f", KindCompute, 2, 1, 1},
	L2d:             {"l2d", KindCompute, 2, 2, 1},
	F2i:             {"f2i", KindCompute, 1, 1, 1},
	F2l:             {"f2l", KindCompute, 1, 2, 1},
	F2d:             {"f2d", KindCompute, 1, 2, 1},
	D2i:             {"d2i", KindCompute, 2, 1, 1},
	D2l:             {"d2l", KindCompute, 2, 2, 1},
	D2f:             {"d2f", KindCompute, 2, 1, 1},
	I2b:             {"i2b", KindCompute, 1, 1, 1},
	I2c:             {"i2c", KindCompute, 1, 1, 1},
	I2s:             {"i2s", KindCompute, 1, 1, 1},
	Lcmp:            {"lcmp", KindCompute, 4, 1, 1},
	Fcmpl:           {"fcmpl", KindCompute, 2, 1, 1},
	Fcmpg:           {"fcmpg", KindCompute, 2, 1, 1},
	Dcmpl:           {"dcmpl", KindCompute, 4, 1, 1},
	Dcmpg:           {"dcmpg", KindCompute, 4, 1, 1},
	Ifeq:            {"ifeq", KindBranch, 1, 0, 3},
	Ifne:            {"ifne", KindBranch, 1, 0, 3},
	Iflt:            {"iflt", KindBranch, 1, 0, 3},
	Ifge:            {"ifge", KindBranch, 1, 0, 3},
	Ifgt:            {"ifgt", KindBranch, 1, 0, 3},
	Ifle:            {"ifle", KindBranch, 1, 0, 3},
	IfIcmpeq:        {"if_icmpeq", KindBranch, 2, 0, 3},
	IfIcmpne:        {"if_icmpne", KindBranch, 2, 0, 3},
	IfIcmplt:        {"if_icmplt", KindBranch, 2, 0, 3},
	IfIcmpge:        {"if_icmpge", KindBranch, 2, 0, 3},
	IfIcmpgt:        {"if_icmpgt", KindBranch, 2, 0, 3},
	IfIcmple:        {"if_icmple", KindBranch, 2, 0, 3},
	IfAcmpeq:        {"if_acmpeq", KindBranch, 2, 0, 3},
	IfAcmpne:        {"if_acmpne", KindBranch, 2, 0, 3},
	Goto:            {"goto", KindGoto, 0, 0, 3},
	Jsr:             {"jsr", KindUnsupported, 0, 1, 3},
	Ret:             {"ret", KindUnsupported, 0, 0, 2},
	Tableswitch:     {"tableswitch", KindSwitch, 1, 0, 0},
	Lookupswitch:    {"lookupswitch", KindSwitch, 1, 0, 0},
	Ireturn:         {"ireturn", KindReturn, 1, 0, 1},
	Lreturn:         {"lreturn", KindReturn, 2, 0, 1},
	Freturn:         {"freturn", KindReturn, 1, 0, 1},
	Dreturn:         {"dreturn", KindReturn, 2, 0, 1},
	Areturn:         {"areturn", KindReturn, 1, 0, 1},
	Return:          {"return", KindReturn, 0, 0, 1},
	Getstatic:       {"getstatic", KindGetStatic, -1, -1, 3},
	Putstatic:       {"putstatic", KindPutStatic, -1, -1, 3},
	Getfield:        {"getfield", KindGetField, -1, -1, 3},
	Putfield:        {"putfield", KindPutField, -1, -1, 3},
	Invokevirtual:   {"invokevirtual", KindInvoke, -1, -1, 3},
	Invokespecial:   {"invokespecial", KindInvoke, -1, -1, 3},
	Invokestatic:    {"invokestatic", KindInvoke, -1, -1, 3},
	Invokeinterface: {"invokeinterface", KindInvoke, -1, -1, 5},
	Invokedynamic:   {"invokedynamic", KindInvoke, -1, -1, 5},
	New:             {"new", KindNew, 0, 1, 3},
	Newarray:        {"newarray", KindNewArray, 1, 1, 2},
	Anewarray:       {"anewarray", KindNewArray, 1, 1, 3},
	Arraylength:     {"arraylength", KindCompute, 1, 1, 1},
	Athrow:          {"athrow", KindThrow, 1, 0, 1},
	Checkcast:       {"checkcast", KindCompute, 1, 1, 3},
	Instanceof:      {"instanceof", KindCompute, 1, 1, 3},
	Monitorenter:    {"monitorenter", KindMonitor, 1, 0, 1},
	Monitorexit:     {"monitorexit", KindMonitor, 1, 0, 1},
	Wide:            {"wide", KindUnsupported, 0, 0, 1},
	Multianewarray:  {"multianewarray", KindNewArray, -1, 1, 4},
	Ifnull:          {"ifnull", KindBranch, 1, 0, 3},
	Ifnonnull:       {"ifnonnull", KindBranch, 1, 0, 3},
	GotoW:           {"goto_w", KindGoto, 0, 0, 5},
	JsrW:            {"jsr_w", KindUnsupported, 0, 1, 5},
}

var opcodesByName map[string]Opcode

func init() {
	opcodesByName = make(map[string]Opcode, len(opcodeInfos))
	for i, info := range opcodeInfos {
		opcodesByName[info.Name] = Opcode(i)
	}
}

// IsValid returns true if the opcode is defined by the JVM specification
func (op Opcode) IsValid() bool {
	return int(op) < len(opcodeInfos)
}

// Info returns the static properties of the opcode. It panics if the opcode is not valid.
func (op Opcode) Info() OpcodeInfo {
	return opcodeInfos[op]
}

// Kind returns the kind of the opcode, or KindUnsupported for an invalid opcode
func (op Opcode) Kind() Kind {
	if !op.IsValid() {
		return KindUnsupported
	}
	return opcodeInfos[op].Kind
}

func (op Opcode) String() string {
	if !op.IsValid() {
		return fmt.Sprintf("opcode(0x%02x)", uint8(op))
	}
	return opcodeInfos[op].Name
}

// ParseOpcode returns the opcode with the given mnemonic
func ParseOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// IsInvoke returns true for the invocation opcodes
func (op Opcode) IsInvoke() bool {
	return op.Kind() == KindInvoke
}

// IsStatic returns true for the opcodes without a receiver object
func (op Opcode) IsStatic() bool {
	return op == Invokestatic || op == Invokedynamic || op == Getstatic || op == Putstatic
}

// permutations describes the effect of the stack opcodes: after the instruction, the stack entry at index i from
// the top holds the value of the entry at index perm[i] before the instruction.
var permutations = map[Opcode][]int{
	Pop:    {},
	Pop2:   {},
	Dup:    {0, 0},
	DupX1:  {0, 1, 0},
	DupX2:  {0, 1, 2, 0},
	Dup2:   {0, 1, 0, 1},
	Dup2X1: {0, 1, 2, 0, 1},
	Dup2X2: {0, 1, 2, 3, 0, 1},
	Swap:   {1, 0},
}

// StackPermutation returns the permutation of a KindStack opcode. See permutations.
func StackPermutation(op Opcode) ([]int, bool) {
	p, ok := permutations[op]
	return p, ok
}
