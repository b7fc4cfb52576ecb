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

import "math/bits"

// srcVal resolves the second operand of a two-operand instruction: a register
// in layout 1, a sign-extended immediate in layout 2.
func (i *Instance) srcVal(in Inst) uint64 {
	if in.Layout == Layout1 {
		return i.R[in.RB]
	}
	return uint64(in.Imm)
}

// wideSrc resolves the third operand of the mull/divr families.
func (i *Instance) wideSrc(in Inst) uint64 {
	if in.Layout == Layout7 {
		return i.R[in.RC]
	}
	return uint64(in.Imm)
}

// cmpOperands resolves both operands of cmp/test across its four layouts.
func (i *Instance) cmpOperands(in Inst) (a, b uint64) {
	switch in.Layout {
	case Layout1:
		return i.R[in.RA], i.R[in.RB]
	case Layout2:
		return i.R[in.RA], uint64(in.Imm)
	case Layout3:
		return uint64(in.Imm), i.R[in.RB]
	default: // layout 6
		return uint64(in.Imm), uint64(in.Imm2)
	}
}

// loadOperands resolves the loc operand of a load: register, literal
// address, or base+offset. It also returns the destination register.
func (i *Instance) loadOperands(in Inst) (dest uint8, addr uint64) {
	switch in.Layout {
	case Layout1:
		return in.RA, i.R[in.RB]
	case Layout2:
		return in.RA, in.UImm
	default: // layout 4
		return in.RB, i.R[in.RA] + uint64(int64(in.Off))
	}
}

// storeOperands resolves the loc and source value of a store.
func (i *Instance) storeOperands(in Inst) (addr, src uint64) {
	switch in.Layout {
	case Layout1:
		return i.R[in.RA], i.R[in.RB]
	case Layout3:
		return in.UImm, i.R[in.RB]
	case Layout4:
		return i.R[in.RA] + uint64(int64(in.Off)), i.R[in.RB]
	default: // layout 5
		return i.R[in.RA] + uint64(int64(in.Off)), uint64(in.Imm)
	}
}

// branchTarget resolves a jmp/call target: register, literal, or base+offset.
func (i *Instance) branchTarget(in Inst) uint64 {
	switch in.Layout {
	case Layout9:
		return i.R[in.RA]
	case Layout10:
		return in.UImm
	default: // layout 11
		return i.R[in.RA] + uint64(int64(in.Off))
	}
}

func (i *Instance) condition(op Op) bool {
	zf, sf, cf, of := i.flag(FlagZF), i.flag(FlagSF), i.flag(FlagCF), i.flag(FlagOF)
	switch op {
	case OpJe:
		return zf
	case OpJne:
		return !zf
	case OpJg:
		return !zf && sf == of
	case OpJge:
		return sf == of
	case OpJl:
		return sf != of
	case OpJle:
		return zf || sf != of
	case OpJa:
		return !cf && !zf
	case OpJae:
		return !cf
	case OpJb:
		return cf
	case OpJbe:
		return cf || zf
	case OpJo:
		return of
	case OpJno:
		return !of
	case OpJs:
		return sf
	case OpJns:
		return !sf
	}
	return false
}

// add computes a+b and sets all four arithmetic flags.
func (i *Instance) add(a, b uint64) uint64 {
	r := a + b
	i.setFlag(FlagCF, r < a)
	i.setFlag(FlagOF, ((a^r)&(b^r))>>63 != 0)
	i.setArith(r)
	return r
}

// sub computes a-b and sets all four arithmetic flags; cmp shares it.
func (i *Instance) sub(a, b uint64) uint64 {
	r := a - b
	i.setFlag(FlagCF, a < b)
	i.setFlag(FlagOF, ((a^b)&(a^r))>>63 != 0)
	i.setArith(r)
	return r
}

// mulParts returns the 128-bit product split into high and low words, plus
// whether the product overflows a 64-bit result under the given signedness.
func mulParts(a, b uint64, signed bool) (hi, lo uint64, overflow bool) {
	hi, lo = bits.Mul64(a, b)
	if !signed {
		return hi, lo, hi != 0
	}
	hi -= (uint64(int64(a)>>63) & b) + (uint64(int64(b)>>63) & a)
	return hi, lo, hi != uint64(int64(lo)>>63)
}

func (i *Instance) push(v uint64) error {
	sp := i.R[RegSP] - InstructionBytes
	if err := i.writeMem(sp, 8, v); err != nil {
		return err
	}
	i.R[RegSP] = sp
	return nil
}

func (i *Instance) pop() (uint64, error) {
	sp := i.R[RegSP]
	if sp == i.initialSP {
		return 0, i.fault(StackUnderflow, i.PC, "pop on empty stack")
	}
	v, err := i.readMem(sp, 8)
	if err != nil {
		return 0, err
	}
	i.R[RegSP] = sp + InstructionBytes
	return v, nil
}

// Step fetches, decodes and executes a single instruction. A clean program
// exit (ret with an empty stack) sets Halted; stepping a halted instance
// returns a Halted runtime error.
func (i *Instance) Step() error {
	if i.halted {
		return i.fault(Halted, i.PC, "program has exited")
	}
	pc := i.PC
	if pc < i.codeStart || pc+InstructionBytes > i.codeEnd || (pc-i.codeStart)%InstructionBytes != 0 {
		return i.fault(BadAddress, pc, "pc outside code segment")
	}
	var word uint64
	for n := 0; n < InstructionBytes; n++ {
		word |= uint64(i.mem[pc+uint64(n)]) << (8 * n)
	}
	in, err := Decode(word)
	if err != nil {
		return i.fault(UnknownOpcode, pc, "%v", err)
	}
	next := pc + InstructionBytes

	switch in.Op {
	case OpNop:

	case OpMov:
		i.R[in.RA] = i.srcVal(in)

	case OpAdd:
		i.R[in.RA] = i.add(i.R[in.RA], i.srcVal(in))
	case OpSub:
		i.R[in.RA] = i.sub(i.R[in.RA], i.srcVal(in))

	case OpMul, OpMulu:
		_, lo, overflow := mulParts(i.R[in.RA], i.srcVal(in), in.Op == OpMul)
		i.R[in.RA] = lo
		i.setFlag(FlagCF, overflow)
		i.setFlag(FlagOF, overflow)
		i.setArith(lo)
	case OpMull, OpMullu:
		hi, lo, overflow := mulParts(i.R[in.RB], i.wideSrc(in), in.Op == OpMull)
		i.R[in.RA] = hi
		i.R[in.RB] = lo
		i.setFlag(FlagCF, overflow)
		i.setFlag(FlagOF, overflow)
		i.setArith(lo)

	case OpDiv, OpRem:
		b := int64(i.srcVal(in))
		if b == 0 {
			return i.fault(DivByZero, pc, "%s", in)
		}
		a := int64(i.R[in.RA])
		if in.Op == OpDiv {
			i.R[in.RA] = uint64(a / b)
		} else {
			i.R[in.RA] = uint64(a % b)
		}
	case OpDivu, OpRemu:
		b := i.srcVal(in)
		if b == 0 {
			return i.fault(DivByZero, pc, "%s", in)
		}
		if in.Op == OpDivu {
			i.R[in.RA] /= b
		} else {
			i.R[in.RA] %= b
		}
	case OpDivr:
		b := int64(i.wideSrc(in))
		if b == 0 {
			return i.fault(DivByZero, pc, "%s", in)
		}
		a := int64(i.R[in.RB])
		i.R[in.RA] = uint64(a % b)
		i.R[in.RB] = uint64(a / b)
	case OpDivru:
		b := i.wideSrc(in)
		if b == 0 {
			return i.fault(DivByZero, pc, "%s", in)
		}
		a := i.R[in.RB]
		i.R[in.RA] = a % b
		i.R[in.RB] = a / b

	case OpCmp:
		a, b := i.cmpOperands(in)
		i.sub(a, b)
	case OpTest:
		a, b := i.cmpOperands(in)
		i.setArith(a & b)
		i.setFlag(FlagCF, false)
		i.setFlag(FlagOF, false)

	case OpLoad1, OpLoad2, OpLoad4, OpLoad8, OpLoadu1, OpLoadu2, OpLoadu4:
		dest, addr := i.loadOperands(in)
		size := in.Op.AccessSize()
		v, err := i.readMem(addr, size)
		if err != nil {
			return err
		}
		if !in.Op.ZeroExtends() {
			v = uint64(signExtend(v, uint(size)*8))
		}
		i.R[dest] = v
	case OpStore1, OpStore2, OpStore4, OpStore8:
		addr, src := i.storeOperands(in)
		if err := i.writeMem(addr, in.Op.AccessSize(), src); err != nil {
			return err
		}

	case OpPush:
		v := uint64(in.Imm)
		if in.Layout == Layout9 {
			v = i.R[in.RA]
		}
		if err := i.push(v); err != nil {
			return err
		}
	case OpPop:
		v, err := i.pop()
		if err != nil {
			return err
		}
		i.R[in.RA] = v

	case OpJmp:
		next = i.branchTarget(in)
	case OpJe, OpJne, OpJg, OpJge, OpJl, OpJle, OpJa, OpJae, OpJb, OpJbe, OpJo, OpJno, OpJs, OpJns:
		if i.condition(in.Op) {
			next = in.UImm
		}
	case OpCall:
		if err := i.push(next); err != nil {
			return err
		}
		next = i.branchTarget(in)
	case OpRet:
		if i.R[RegSP] == i.initialSP {
			i.halted = true
			i.insCount++
			return nil
		}
		v, err := i.pop()
		if err != nil {
			return err
		}
		next = v

	case OpSyscall:
		// reserved: no bindings are defined
		return i.fault(UnknownOpcode, pc, "syscall is reserved")
	}

	i.PC = next
	i.insCount++
	return nil
}

// Run executes instructions until the program exits or a fatal error occurs.
// It returns the number of instructions executed.
func (i *Instance) Run() (int64, error) {
	for !i.halted {
		if err := i.Step(); err != nil {
			return i.insCount, err
		}
	}
	return i.insCount, nil
}
