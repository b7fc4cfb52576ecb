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

package asm

import (
	"encoding/binary"

	"github.com/wolf-lang/wolfasm/vm"
)

// encoder emits the executable image: static bytes in declaration order,
// then the packed 64-bit little-endian instruction words.
type encoder struct {
	buf []byte
	ctx *context
}

func (e *encoder) error(kind EncodeErrorKind, pos Pos, msg string) {
	e.ctx.errs = append(e.ctx.errs, &EncodeError{Kind: kind, Pos: pos, Msg: msg})
}

// encodeImage runs after validation and layout; statements are structurally
// sound and all operands are literals.
func encodeImage(stmts []Statement, staticSize int, ctx *context) vm.Image {
	e := &encoder{buf: make([]byte, 0, staticSize), ctx: ctx}
	e.walk(stmts, secStatic)
	e.walk(stmts, secCode)
	return vm.Image{Data: e.buf, CodeStart: staticSize}
}

func (e *encoder) walk(stmts []Statement, want section) {
	cur := secNone
	for _, s := range stmts {
		if sec, ok := s.(*SectionStmt); ok {
			if sec.Name == "static" {
				cur = secStatic
			} else {
				cur = secCode
			}
			continue
		}
		if cur != want {
			continue
		}
		switch st := s.(type) {
		case *DirectiveStmt:
			e.emitDirective(st)
		case *InstrStmt:
			e.emitInstr(st)
		}
	}
}

func (e *encoder) emitDirective(st *DirectiveStmt) {
	switch st.Name {
	case "const":
		// compile-time only, no bytes
	case "b1", "b2", "b4", "b8":
		width := staticDirectives[st.Name]
		v := st.Args[0].Imm
		if !fitsBytes(v, width) {
			// label addresses substituted after validation can still overflow
			e.error(ImmTooWide, st.Args[0].Pos, st.Args[0].String())
			return
		}
		var w [8]byte
		binary.LittleEndian.PutUint64(w[:], uint64(v))
		e.buf = append(e.buf, w[:width]...)
	case "zero", "uninit":
		// .uninit only reserves address space, but the image payload carries
		// zeros for it all the same
		e.buf = append(e.buf, make([]byte, st.Args[0].Imm)...)
	case "bytes":
		e.buf = append(e.buf, st.Args[0].Str...)
	}
}

// emitInstr packs one instruction word. The layout is re-derived from the
// operand kinds (validation already proved the opcode admits it); what is
// left to check is that every immediate fits its field.
func (e *encoder) emitInstr(st *InstrStmt) {
	op := vm.Mnemonics[st.Mnemonic]
	layout, ok := layoutFor(st.Args)
	if !ok || !op.Admits(layout) {
		e.error(NoValidLayout, st.Pos, st.String())
		return
	}

	in := vm.Inst{Op: op, Layout: layout}
	fits := func(v int64, bits uint, o Operand) bool {
		if !vm.ImmFits(v, bits) {
			e.error(ImmTooWide, o.Pos, o.String())
			return false
		}
		return true
	}
	offFits := func(o Operand) bool {
		// offsets are signed 16-bit, with no unsigned reading
		if o.Imm < -(1<<15) || o.Imm >= 1<<15 {
			e.error(ImmTooWide, o.Pos, o.String())
			return false
		}
		in.Off = int16(o.Imm)
		return true
	}

	immBits := layout.ImmBits()
	switch layout {
	case vm.LayoutNone:
	case vm.Layout1:
		in.RA, in.RB = st.Args[0].Reg, st.Args[1].Reg
	case vm.Layout2:
		in.RA = st.Args[0].Reg
		if !fits(st.Args[1].Imm, immBits, st.Args[1]) {
			return
		}
		in.Imm = st.Args[1].Imm
	case vm.Layout3:
		if !fits(st.Args[0].Imm, immBits, st.Args[0]) {
			return
		}
		in.Imm = st.Args[0].Imm
		in.RB = st.Args[1].Reg
	case vm.Layout4:
		mem, reg := st.Args[0], st.Args[1]
		if mem.Kind != OpndRegOff {
			mem, reg = reg, mem
		}
		in.RA, in.RB = mem.Reg, reg.Reg
		if !offFits(mem) {
			return
		}
	case vm.Layout5:
		in.RA = st.Args[0].Reg
		if !offFits(st.Args[0]) || !fits(st.Args[1].Imm, immBits, st.Args[1]) {
			return
		}
		in.Imm = st.Args[1].Imm
	case vm.Layout6:
		if !fits(st.Args[0].Imm, immBits, st.Args[0]) || !fits(st.Args[1].Imm, immBits, st.Args[1]) {
			return
		}
		in.Imm, in.Imm2 = st.Args[0].Imm, st.Args[1].Imm
	case vm.Layout7:
		in.RA, in.RB, in.RC = st.Args[0].Reg, st.Args[1].Reg, st.Args[2].Reg
	case vm.Layout8:
		in.RA, in.RB = st.Args[0].Reg, st.Args[1].Reg
		if !fits(st.Args[2].Imm, immBits, st.Args[2]) {
			return
		}
		in.Imm = st.Args[2].Imm
	case vm.Layout9:
		in.RA = st.Args[0].Reg
	case vm.Layout10:
		if !fits(st.Args[0].Imm, immBits, st.Args[0]) {
			return
		}
		in.Imm = st.Args[0].Imm
	case vm.Layout11:
		in.RA = st.Args[0].Reg
		if !offFits(st.Args[0]) {
			return
		}
	}

	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], in.Encode())
	e.buf = append(e.buf, w[:]...)
}
