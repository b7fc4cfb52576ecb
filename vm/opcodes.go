// Copyright 2025 wolfasm Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vm

// Op is a base operation of the Wolf machine. The 12-bit opcode field of an
// encoded instruction combines a base operation with the layout its operands
// were packed in: opcode = op<<4 | layout.
type Op uint8

const (
	OpNop Op = iota
	OpMov

	OpAdd
	OpSub
	OpMul
	OpMull
	OpMulu
	OpMullu
	OpDiv
	OpDivr
	OpDivu
	OpDivru
	OpRem
	OpRemu

	OpCmp
	OpTest

	OpLoad1
	OpLoad2
	OpLoad4
	OpLoad8
	OpLoadu1
	OpLoadu2
	OpLoadu4
	OpStore1
	OpStore2
	OpStore4
	OpStore8
	OpPush
	OpPop

	OpJmp
	OpJe
	OpJne
	OpJg
	OpJge
	OpJl
	OpJle
	OpJa
	OpJae
	OpJb
	OpJbe
	OpJo
	OpJno
	OpJs
	OpJns
	OpCall
	OpRet

	OpSyscall

	opMax
)

// Layout identifies one of the 11 documented operand encodings. LayoutNone is
// used by zero-operand instructions, whose operand area is all zero.
type Layout uint8

const (
	LayoutNone Layout = iota
	Layout1           // reg, reg
	Layout2           // reg, imm46
	Layout3           // imm46, reg
	Layout4           // [reg+off16], reg
	Layout5           // [reg+off16], imm30
	Layout6           // imm26, imm26
	Layout7           // reg, reg, reg
	Layout8           // reg, reg, imm40
	Layout9           // reg
	Layout10          // imm52
	Layout11          // [reg+off16]
)

// Register aliases. $sp and $fp are lexical aliases only; the encoder treats
// them as plain 6-bit register codes.
const (
	RegFP = 62
	RegSP = 63

	NumRegisters = 64
)

// opInfo describes one base operation: its canonical mnemonic and the layouts
// its operands may be packed in.
type opInfo struct {
	name    string
	layouts []Layout
}

var aluLayouts = []Layout{Layout1, Layout2}
var wideLayouts = []Layout{Layout7, Layout8}
var cmpLayouts = []Layout{Layout1, Layout2, Layout3, Layout6}
var loadLayouts = []Layout{Layout1, Layout2, Layout4}
var storeLayouts = []Layout{Layout1, Layout3, Layout4, Layout5}
var braLayouts = []Layout{Layout9, Layout10, Layout11}
var ccLayouts = []Layout{Layout10}

var opTable = [opMax]opInfo{
	OpNop: {name: "nop"},
	OpMov: {name: "mov", layouts: aluLayouts},

	OpAdd:   {name: "add", layouts: aluLayouts},
	OpSub:   {name: "sub", layouts: aluLayouts},
	OpMul:   {name: "mul", layouts: aluLayouts},
	OpMull:  {name: "mull", layouts: wideLayouts},
	OpMulu:  {name: "mulu", layouts: aluLayouts},
	OpMullu: {name: "mullu", layouts: wideLayouts},
	OpDiv:   {name: "div", layouts: aluLayouts},
	OpDivr:  {name: "divr", layouts: wideLayouts},
	OpDivu:  {name: "divu", layouts: aluLayouts},
	OpDivru: {name: "divru", layouts: wideLayouts},
	OpRem:   {name: "rem", layouts: aluLayouts},
	OpRemu:  {name: "remu", layouts: aluLayouts},

	OpCmp:  {name: "cmp", layouts: cmpLayouts},
	OpTest: {name: "test", layouts: cmpLayouts},

	OpLoad1:  {name: "load1", layouts: loadLayouts},
	OpLoad2:  {name: "load2", layouts: loadLayouts},
	OpLoad4:  {name: "load4", layouts: loadLayouts},
	OpLoad8:  {name: "load8", layouts: loadLayouts},
	OpLoadu1: {name: "loadu1", layouts: loadLayouts},
	OpLoadu2: {name: "loadu2", layouts: loadLayouts},
	OpLoadu4: {name: "loadu4", layouts: loadLayouts},
	OpStore1: {name: "store1", layouts: storeLayouts},
	OpStore2: {name: "store2", layouts: storeLayouts},
	OpStore4: {name: "store4", layouts: storeLayouts},
	OpStore8: {name: "store8", layouts: storeLayouts},
	OpPush:   {name: "push", layouts: []Layout{Layout9, Layout10}},
	OpPop:    {name: "pop", layouts: []Layout{Layout9}},

	OpJmp: {name: "jmp", layouts: braLayouts},
	OpJe:  {name: "je", layouts: ccLayouts},
	OpJne: {name: "jne", layouts: ccLayouts},
	OpJg:  {name: "jg", layouts: ccLayouts},
	OpJge: {name: "jge", layouts: ccLayouts},
	OpJl:  {name: "jl", layouts: ccLayouts},
	OpJle: {name: "jle", layouts: ccLayouts},
	OpJa:  {name: "ja", layouts: ccLayouts},
	OpJae: {name: "jae", layouts: ccLayouts},
	OpJb:  {name: "jb", layouts: ccLayouts},
	OpJbe: {name: "jbe", layouts: ccLayouts},
	OpJo:  {name: "jo", layouts: ccLayouts},
	OpJno: {name: "jno", layouts: ccLayouts},
	OpJs:  {name: "js", layouts: ccLayouts},
	OpJns: {name: "jns", layouts: ccLayouts},

	OpCall: {name: "call", layouts: braLayouts},
	OpRet:  {name: "ret"},

	OpSyscall: {name: "syscall"},
}

// Mnemonics maps lower-case mnemonics to base operations, including the
// aliases the surface syntax accepts (jz/jnz, loadu8).
var Mnemonics map[string]Op

func init() {
	Mnemonics = make(map[string]Op, int(opMax)+3)
	for op := Op(0); op < opMax; op++ {
		Mnemonics[opTable[op].name] = op
	}
	Mnemonics["jz"] = OpJe
	Mnemonics["jnz"] = OpJne
	// an 8-byte load has no bits left to extend, so loadu8 is load8
	Mnemonics["loadu8"] = OpLoad8
}

// String returns the canonical mnemonic.
func (op Op) String() string {
	if op >= opMax {
		return "?unknown?"
	}
	return opTable[op].name
}

// Layouts returns the operand layouts the operation admits. Zero-operand
// operations return nil.
func (op Op) Layouts() []Layout {
	if op >= opMax {
		return nil
	}
	return opTable[op].layouts
}

// Admits reports whether the operation may be encoded with the given layout.
func (op Op) Admits(l Layout) bool {
	if op >= opMax {
		return false
	}
	if l == LayoutNone {
		return len(opTable[op].layouts) == 0
	}
	for _, al := range opTable[op].layouts {
		if al == l {
			return true
		}
	}
	return false
}

// AccessSize returns the memory access width in bytes for load/store
// operations and 0 for everything else.
func (op Op) AccessSize() int {
	switch op {
	case OpLoad1, OpLoadu1, OpStore1:
		return 1
	case OpLoad2, OpLoadu2, OpStore2:
		return 2
	case OpLoad4, OpLoadu4, OpStore4:
		return 4
	case OpLoad8, OpStore8:
		return 8
	}
	return 0
}

// IsLoad reports whether the operation reads memory into a register.
func (op Op) IsLoad() bool {
	return op >= OpLoad1 && op <= OpLoadu4
}

// IsStore reports whether the operation writes register bytes to memory.
func (op Op) IsStore() bool {
	return op >= OpStore1 && op <= OpStore8
}

// IsCondJump reports whether the operation is a flag-conditional branch.
func (op Op) IsCondJump() bool {
	return op >= OpJe && op <= OpJns
}

// ZeroExtends reports whether a load of this operation zero-extends rather
// than sign-extends. load8 fills the whole register either way.
func (op Op) ZeroExtends() bool {
	return op == OpLoadu1 || op == OpLoadu2 || op == OpLoadu4 || op == OpLoad8
}
