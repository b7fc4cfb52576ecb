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

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

// codeImage packs instructions into an image with no static section.
func codeImage(insts ...Inst) Image {
	data := make([]byte, 0, len(insts)*InstructionBytes)
	for _, in := range insts {
		var w [8]byte
		binary.LittleEndian.PutUint64(w[:], in.Encode())
		data = append(data, w[:]...)
	}
	return Image{Data: data}
}

func newTestVM(t *testing.T, insts ...Inst) *Instance {
	t.Helper()
	i, err := New(codeImage(insts...), Input(strings.NewReader("")), Output(&bytes.Buffer{}))
	if err != nil {
		t.Fatal(err)
	}
	return i
}

// steps runs n instructions, failing the test on any fault.
func steps(t *testing.T, i *Instance, n int) {
	t.Helper()
	for k := 0; k < n; k++ {
		if err := i.Step(); err != nil {
			t.Fatalf("step %d: %v", k, err)
		}
	}
}

func TestAddFlags(t *testing.T) {
	tests := []struct {
		name           string
		a, b           uint64
		want           uint64
		cf, zf, sf, of bool
	}{
		{"small", 2, 3, 5, false, false, false, false},
		{"zero", 0, 0, 0, false, true, false, false},
		{"unsigned carry", ^uint64(0), 1, 0, true, true, false, false},
		{"signed overflow", 1<<63 - 1, 1, 1 << 63, false, false, true, true},
		{"negative result", 0, ^uint64(0), ^uint64(0), false, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := newTestVM(t, Inst{Op: OpAdd, Layout: Layout1, RA: 1, RB: 2})
			i.R[1], i.R[2] = tt.a, tt.b
			steps(t, i, 1)
			if i.R[1] != tt.want {
				t.Errorf("result = %d, want %d", i.R[1], tt.want)
			}
			for _, f := range []struct {
				bit  uint16
				want bool
				name string
			}{{FlagCF, tt.cf, "CF"}, {FlagZF, tt.zf, "ZF"}, {FlagSF, tt.sf, "SF"}, {FlagOF, tt.of, "OF"}} {
				if got := i.flag(f.bit); got != f.want {
					t.Errorf("%s = %v, want %v", f.name, got, f.want)
				}
			}
		})
	}
}

func TestSubBorrow(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpSub, Layout: Layout2, RA: 1, Imm: 5})
	i.R[1] = 3
	steps(t, i, 1)
	if i.R[1] != ^uint64(0)-1 {
		t.Errorf("3-5 = %d, want %d", i.R[1], ^uint64(0)-1)
	}
	if !i.flag(FlagCF) {
		t.Error("CF not set on unsigned borrow")
	}
	if !i.flag(FlagSF) {
		t.Error("SF not set on negative result")
	}
}

func TestCmpDiscardsResult(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpCmp, Layout: Layout1, RA: 1, RB: 2})
	i.R[1], i.R[2] = 7, 7
	steps(t, i, 1)
	if i.R[1] != 7 {
		t.Errorf("cmp wrote its result: R1 = %d", i.R[1])
	}
	if !i.flag(FlagZF) {
		t.Error("ZF not set on equal operands")
	}
}

func TestTestClearsCarryOverflow(t *testing.T) {
	i := newTestVM(t,
		Inst{Op: OpCmp, Layout: Layout6, Imm: 1, Imm2: 2}, // sets CF (1 < 2)
		Inst{Op: OpTest, Layout: Layout2, RA: 1, Imm: 0xf0},
	)
	i.R[1] = 0x0f
	steps(t, i, 2)
	if i.flag(FlagCF) || i.flag(FlagOF) {
		t.Error("test did not clear CF/OF")
	}
	if !i.flag(FlagZF) {
		t.Error("ZF not set: 0x0f & 0xf0 == 0")
	}
}

func TestMulWide(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpMullu, Layout: Layout7, RA: 1, RB: 2, RC: 3})
	i.R[2] = 1 << 32
	i.R[3] = 1 << 33
	steps(t, i, 1)
	if i.R[1] != 2 {
		t.Errorf("high word = %d, want 2", i.R[1])
	}
	if i.R[2] != 0 {
		t.Errorf("low word = %d, want 0", i.R[2])
	}
	if !i.flag(FlagCF) || !i.flag(FlagOF) {
		t.Error("overflow flags not set for 2^65")
	}
}

func TestMulSignedHighWord(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpMull, Layout: Layout8, RA: 1, RB: 2, Imm: -2})
	i.R[2] = 3
	steps(t, i, 1)
	if int64(i.R[2]) != -6 {
		t.Errorf("low = %d, want -6", int64(i.R[2]))
	}
	if int64(i.R[1]) != -1 {
		t.Errorf("high = %d, want -1 (sign extension of -6)", int64(i.R[1]))
	}
	if i.flag(FlagCF) || i.flag(FlagOF) {
		t.Error("-6 fits 64 bits, overflow flags must be clear")
	}
}

func TestDivFamilies(t *testing.T) {
	i := newTestVM(t,
		Inst{Op: OpDivr, Layout: Layout8, RA: 1, RB: 2, Imm: 10},
	)
	i.R[2] = 1234
	steps(t, i, 1)
	if i.R[1] != 4 || i.R[2] != 123 {
		t.Errorf("divr 1234/10: rem=%d quot=%d, want 4, 123", i.R[1], i.R[2])
	}

	i = newTestVM(t, Inst{Op: OpDiv, Layout: Layout2, RA: 1, Imm: -4})
	i.R[1] = uint64(^int64(8) + 1) // -8
	steps(t, i, 1)
	if int64(i.R[1]) != 2 {
		t.Errorf("-8 / -4 = %d, want 2", int64(i.R[1]))
	}
}

func TestDivByZero(t *testing.T) {
	ops := []Inst{
		{Op: OpDiv, Layout: Layout2, RA: 1, Imm: 0},
		{Op: OpRemu, Layout: Layout1, RA: 1, RB: 2},
		{Op: OpDivru, Layout: Layout7, RA: 1, RB: 2, RC: 3},
	}
	for _, in := range ops {
		t.Run(in.Op.String(), func(t *testing.T) {
			i := newTestVM(t, in)
			i.R[1] = 42
			err := i.Step()
			re, ok := err.(*RuntimeError)
			if !ok || re.Kind != DivByZero {
				t.Fatalf("got %v, want DivByZero", err)
			}
			if re.PC != 0 {
				t.Errorf("fault PC = %d, want 0", re.PC)
			}
		})
	}
}

func TestPushPopLIFO(t *testing.T) {
	i := newTestVM(t,
		Inst{Op: OpPush, Layout: Layout10, Imm: 11},
		Inst{Op: OpPush, Layout: Layout9, RA: 1},
		Inst{Op: OpPop, Layout: Layout9, RA: 2},
		Inst{Op: OpPop, Layout: Layout9, RA: 3},
	)
	i.R[1] = 22
	sp0 := i.R[RegSP]
	steps(t, i, 2)
	if i.R[RegSP] != sp0-16 {
		t.Errorf("sp after two pushes = %d, want %d", i.R[RegSP], sp0-16)
	}
	steps(t, i, 2)
	if i.R[2] != 22 || i.R[3] != 11 {
		t.Errorf("popped %d, %d; want 22, 11", i.R[2], i.R[3])
	}
	if i.R[RegSP] != sp0 {
		t.Errorf("sp not restored: %d != %d", i.R[RegSP], sp0)
	}
}

func TestPopUnderflow(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpPop, Layout: Layout9, RA: 1})
	err := i.Step()
	re, ok := err.(*RuntimeError)
	if !ok || re.Kind != StackUnderflow {
		t.Fatalf("got %v, want StackUnderflow", err)
	}
}

func TestCallRet(t *testing.T) {
	// 0: call 24; 8: ret (exit); 16: unreachable; 24: ret (back to 8)
	i := newTestVM(t,
		Inst{Op: OpCall, Layout: Layout10, Imm: 24},
		Inst{Op: OpRet},
		Inst{Op: OpNop},
		Inst{Op: OpRet},
	)
	steps(t, i, 1)
	if i.PC != 24 {
		t.Fatalf("pc after call = %d, want 24", i.PC)
	}
	steps(t, i, 1)
	if i.PC != 8 {
		t.Fatalf("pc after ret = %d, want 8 (after the call)", i.PC)
	}
	steps(t, i, 1)
	if !i.Halted() {
		t.Error("ret with empty stack did not exit")
	}
}

func TestRetAtLastInstruction(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpNop}, Inst{Op: OpRet})
	if _, err := i.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := i.InstructionCount(); got != 2 {
		t.Errorf("instruction count = %d, want 2", got)
	}
}

func TestConditionalJumps(t *testing.T) {
	tests := []struct {
		op    Op
		flags uint16
		taken bool
	}{
		{OpJe, FlagZF, true},
		{OpJe, 0, false},
		{OpJne, 0, true},
		{OpJg, 0, true},
		{OpJg, FlagZF, false},
		{OpJg, FlagSF, false},
		{OpJge, FlagSF | FlagOF, true},
		{OpJl, FlagSF, true},
		{OpJl, FlagSF | FlagOF, false},
		{OpJle, FlagZF, true},
		{OpJa, 0, true},
		{OpJa, FlagCF, false},
		{OpJae, FlagZF, true},
		{OpJb, FlagCF, true},
		{OpJbe, FlagZF, true},
		{OpJbe, 0, false},
		{OpJo, FlagOF, true},
		{OpJno, FlagOF, false},
		{OpJs, FlagSF, true},
		{OpJns, FlagSF, false},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			i := newTestVM(t,
				Inst{Op: tt.op, Layout: Layout10, Imm: 16},
				Inst{Op: OpNop},
				Inst{Op: OpNop},
			)
			i.Flags = tt.flags
			steps(t, i, 1)
			want := uint64(8)
			if tt.taken {
				want = 16
			}
			if i.PC != want {
				t.Errorf("pc = %d, want %d (flags %04x)", i.PC, want, tt.flags)
			}
		})
	}
}

func TestJmpIndirect(t *testing.T) {
	i := newTestVM(t,
		Inst{Op: OpJmp, Layout: Layout11, RA: 1, Off: -8},
		Inst{Op: OpNop},
		Inst{Op: OpNop},
	)
	i.R[1] = 24
	steps(t, i, 1)
	if i.PC != 16 {
		t.Errorf("jmp -8($1) with $1=24: pc = %d, want 16", i.PC)
	}
}

func TestLoadStoreWidths(t *testing.T) {
	tests := []struct {
		name  string
		store Op
		load  Op
		value uint64
		want  uint64
	}{
		{"byte sign extends", OpStore1, OpLoad1, 0x80, 0xffffffffffffff80},
		{"byte zero extends", OpStore1, OpLoadu1, 0x80, 0x80},
		{"half sign extends", OpStore2, OpLoad2, 0x8000, 0xffffffffffff8000},
		{"half zero extends", OpStore2, OpLoadu2, 0x8000, 0x8000},
		{"word sign extends", OpStore4, OpLoad4, 0x8000_0000, 0xffffffff80000000},
		{"word zero extends", OpStore4, OpLoadu4, 0x8000_0000, 0x8000_0000},
		{"full width", OpStore8, OpLoad8, 0xdead_beef_dead_beef, 0xdead_beef_dead_beef},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// scratch memory sits right after the 2-instruction code section
			addr := int64(2 * InstructionBytes)
			i := newTestVM(t,
				Inst{Op: tt.store, Layout: Layout3, Imm: addr, RB: 1},
				Inst{Op: tt.load, Layout: Layout2, RA: 2, Imm: addr},
			)
			i.R[1] = tt.value
			steps(t, i, 2)
			if i.R[2] != tt.want {
				t.Errorf("loaded %#x, want %#x", i.R[2], tt.want)
			}
		})
	}
}

func TestStoreTruncates(t *testing.T) {
	addr := int64(2 * InstructionBytes)
	i := newTestVM(t,
		Inst{Op: OpStore1, Layout: Layout3, Imm: addr, RB: 1},
		Inst{Op: OpLoadu1, Layout: Layout2, RA: 2, Imm: addr},
	)
	i.R[1] = 0x1234
	steps(t, i, 2)
	if i.R[2] != 0x34 {
		t.Errorf("store1 kept high bytes: loaded %#x, want 0x34", i.R[2])
	}
}

func TestLoadRegOffset(t *testing.T) {
	addr := uint64(2 * InstructionBytes)
	i := newTestVM(t,
		Inst{Op: OpStore8, Layout: Layout4, RA: 1, Off: 8, RB: 2},
		Inst{Op: OpLoad8, Layout: Layout4, RA: 1, RB: 3, Off: 8},
	)
	i.R[1] = addr
	i.R[2] = 99
	steps(t, i, 2)
	if i.R[3] != 99 {
		t.Errorf("load8 8($1) = %d, want 99", i.R[3])
	}
}

func TestStoreImmediate(t *testing.T) {
	addr := uint64(InstructionBytes)
	i := newTestVM(t, Inst{Op: OpStore2, Layout: Layout5, RA: 1, Off: 0, Imm: -2})
	i.R[1] = addr + 8 // inside the zeroed area past the code
	steps(t, i, 1)
	// only the low 2 bytes of -2 are written
	if i.mem[addr+8] != 0xfe || i.mem[addr+9] != 0xff || i.mem[addr+10] != 0 {
		t.Errorf("memory = % x", i.mem[addr+8:addr+11])
	}
}

func TestBadAddress(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpLoad8, Layout: Layout2, RA: 1, Imm: 1 << 40})
	err := i.Step()
	re, ok := err.(*RuntimeError)
	if !ok || re.Kind != BadAddress {
		t.Fatalf("got %v, want BadAddress", err)
	}
}

func TestPCOutsideCodeSegment(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpJmp, Layout: Layout10, Imm: 4096})
	steps(t, i, 1)
	err := i.Step()
	re, ok := err.(*RuntimeError)
	if !ok || re.Kind != BadAddress {
		t.Fatalf("got %v, want BadAddress for pc outside code", err)
	}
}

func TestSyscallReserved(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpSyscall})
	err := i.Step()
	re, ok := err.(*RuntimeError)
	if !ok || re.Kind != UnknownOpcode {
		t.Fatalf("got %v, want UnknownOpcode", err)
	}
}

func TestStepAfterHalt(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpRet})
	steps(t, i, 1)
	err := i.Step()
	re, ok := err.(*RuntimeError)
	if !ok || re.Kind != Halted {
		t.Fatalf("got %v, want Halted", err)
	}
}

func TestMMIORoundTrip(t *testing.T) {
	var out bytes.Buffer
	img := codeImage(
		Inst{Op: OpLoad1, Layout: Layout2, RA: 1, Imm: int64(MMIOStdin)},
		Inst{Op: OpStore1, Layout: Layout3, Imm: int64(MMIOStdout), RB: 1},
		Inst{Op: OpRet},
	)
	i, err := New(img, Input(strings.NewReader("A")), Output(&out))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := i.Run(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "A" {
		t.Errorf("output = %q, want %q", out.String(), "A")
	}
}

func TestMMIOLoadAtEOF(t *testing.T) {
	for _, op := range []Op{OpLoad1, OpLoad2, OpLoad4, OpLoad8} {
		t.Run(op.String(), func(t *testing.T) {
			i := newTestVM(t, Inst{Op: op, Layout: Layout2, RA: 1, Imm: int64(MMIOStdin)})
			i.R[1] = 77
			steps(t, i, 1)
			if i.R[1] != 0 {
				t.Errorf("load at EOF = %d, want 0", i.R[1])
			}
		})
	}
}

func TestMMIOStoreWidths(t *testing.T) {
	// any store width delivers the low 32 bits as one codepoint
	var out bytes.Buffer
	img := codeImage(
		Inst{Op: OpStore8, Layout: Layout3, Imm: int64(MMIOStdout), RB: 1},
		Inst{Op: OpRet},
	)
	i, err := New(img, Input(strings.NewReader("")), Output(&out))
	if err != nil {
		t.Fatal(err)
	}
	i.R[1] = 0x1_0000_0000 + 'W' // high bits beyond 32 are dropped
	if _, err := i.Run(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "W" {
		t.Errorf("output = %q, want %q", out.String(), "W")
	}
}

func TestReset(t *testing.T) {
	i := newTestVM(t, Inst{Op: OpMov, Layout: Layout2, RA: 1, Imm: 9}, Inst{Op: OpRet})
	if _, err := i.Run(); err != nil {
		t.Fatal(err)
	}
	i.Reset()
	if i.Halted() || i.R[1] != 0 || i.PC != 0 {
		t.Errorf("reset left state: halted=%v R1=%d pc=%d", i.Halted(), i.R[1], i.PC)
	}
}
