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

// Package vm implements the Wolf machine: a 64-bit register machine with a
// flat byte-addressable memory, a downward-growing stack and two
// memory-mapped I/O addresses. It also owns the instruction-set contract
// (opcodes, operand layouts, word encoding) that the assembler targets.
package vm

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Flags register bits. The remaining bits are reserved and stay zero.
const (
	FlagCF uint16 = 1 << 0
	FlagZF uint16 = 1 << 6
	FlagSF uint16 = 1 << 7
	FlagOF uint16 = 1 << 11
)

// DefaultStackSize is the stack room reserved above the image when no
// explicit memory size is given.
const DefaultStackSize = 64 * 1024

// Option configures an Instance.
type Option func(*Instance) error

// Input sets the reader backing the stdin MMIO address.
func Input(r io.Reader) Option {
	return func(i *Instance) error { i.host.in = r; return nil }
}

// Output sets the writer backing the stdout MMIO address.
func Output(w io.Writer) Option {
	return func(i *Instance) error { i.host.out = w; return nil }
}

// MemSize sets the total memory buffer size in bytes. It must be large
// enough to hold the image.
func MemSize(n int) Option {
	return func(i *Instance) error {
		if n < len(i.img.Data) {
			return errors.Errorf("memory size %d smaller than image of %d bytes", n, len(i.img.Data))
		}
		i.memSize = n
		return nil
	}
}

// Instance is a single Wolf machine. It is not safe for concurrent use;
// execution is a synchronous fetch-decode-execute loop driven by Step or Run.
type Instance struct {
	R     [NumRegisters]uint64
	PC    uint64
	Flags uint16

	img       Image
	mem       []byte
	memSize   int
	codeStart uint64
	codeEnd   uint64
	initialSP uint64
	host      hostIO
	insCount  int64
	halted    bool
}

// New creates an instance with the image loaded at address 0, PC at the first
// code byte, and $sp/$fp at the top of the memory buffer.
func New(img Image, opts ...Option) (*Instance, error) {
	i := &Instance{
		img:  img,
		host: hostIO{in: os.Stdin, out: os.Stdout},
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	if i.memSize == 0 {
		i.memSize = len(img.Data) + DefaultStackSize
	}
	i.mem = make([]byte, i.memSize)
	copy(i.mem, img.Data)
	i.codeStart = uint64(img.CodeStart)
	i.codeEnd = uint64(len(img.Data))
	i.Reset()
	return i, nil
}

// Reset rewinds the machine to its initial state: registers, flags and PC are
// reinitialized, the image is copied back in and all memory past the image is
// zeroed.
func (i *Instance) Reset() {
	i.R = [NumRegisters]uint64{}
	i.R[RegSP] = uint64(i.memSize)
	i.R[RegFP] = uint64(i.memSize)
	i.initialSP = uint64(i.memSize)
	i.PC = i.codeStart
	i.Flags = 0
	i.insCount = 0
	i.halted = false
	copy(i.mem, i.img.Data)
	for n := len(i.img.Data); n < len(i.mem); n++ {
		i.mem[n] = 0
	}
}

// InstructionCount returns the number of instructions executed so far.
func (i *Instance) InstructionCount() int64 {
	return i.insCount
}

// Halted reports whether the program has exited.
func (i *Instance) Halted() bool {
	return i.halted
}

func (i *Instance) flag(f uint16) bool {
	return i.Flags&f != 0
}

func (i *Instance) setFlag(f uint16, on bool) {
	if on {
		i.Flags |= f
	} else {
		i.Flags &^= f
	}
}

// setArith records ZF and SF for a 64-bit result.
func (i *Instance) setArith(r uint64) {
	i.setFlag(FlagZF, r == 0)
	i.setFlag(FlagSF, r>>63 != 0)
}

// readMem loads size bytes little-endian. Loads from the stdin MMIO address
// short-circuit into the host adapter and never touch the buffer.
func (i *Instance) readMem(addr uint64, size int) (uint64, error) {
	if addr == MMIOStdin {
		return i.host.readInput(size), nil
	}
	if addr > uint64(len(i.mem)) || addr+uint64(size) > uint64(len(i.mem)) {
		return 0, i.fault(BadAddress, i.PC, "load of %d bytes at 0x%x", size, addr)
	}
	var v uint64
	for n := 0; n < size; n++ {
		v |= uint64(i.mem[addr+uint64(n)]) << (8 * n)
	}
	return v, nil
}

// writeMem stores the low size bytes of v little-endian. Stores to the
// stdout MMIO address deliver the low 32 bits to the host adapter.
func (i *Instance) writeMem(addr uint64, size int, v uint64) error {
	if addr == MMIOStdout {
		return i.host.writeScalar(uint32(v))
	}
	if addr > uint64(len(i.mem)) || addr+uint64(size) > uint64(len(i.mem)) {
		return i.fault(BadAddress, i.PC, "store of %d bytes at 0x%x", size, addr)
	}
	for n := 0; n < size; n++ {
		i.mem[addr+uint64(n)] = byte(v >> (8 * n))
	}
	return nil
}
