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
	"fmt"

	"github.com/samber/lo"

	"github.com/wolf-lang/wolfasm/vm"
)

// context is the state threaded through the passes: the constant and label
// tables plus the diagnostics sinks. The passes share nothing else.
type context struct {
	consts map[string]int64
	labels map[string]int64 // name -> image offset, filled by the layout pass
	errs   ErrorList
	warns  []Warning
}

func newContext() *context {
	return &context{
		consts: make(map[string]int64),
		labels: make(map[string]int64),
	}
}

func (c *context) valError(kind ValErrorKind, pos Pos, format string, args ...interface{}) {
	c.errs = append(c.errs, &ValError{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func (c *context) warn(pos Pos, format string, args ...interface{}) {
	c.warns = append(c.warns, Warning{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// section tracks which section the validation walk is inside.
type section int

const (
	secNone section = iota
	secStatic
	secCode
)

// staticDirectives are the data directives legal inside section .static,
// with the byte width each operand occupies (0 = width comes from the
// operand itself).
var staticDirectives = map[string]int{
	"b1": 1, "b2": 2, "b4": 4, "b8": 8,
	"zero": 0, "uninit": 0, "bytes": 0,
}

// collectNames is sweep 1: it gathers .const declarations and label names so
// sweep 2 can substitute and check collisions. Constants and labels share a
// namespace; a constant redefined with a different value warns and the last
// definition wins.
func collectNames(stmts []Statement, ctx *context) {
	labelDefs := make(map[string]Pos)
	constDefs := make(map[string]Pos)

	for _, s := range stmts {
		switch st := s.(type) {
		case *LabelStmt:
			if prev, ok := labelDefs[st.Name]; ok {
				ctx.valError(NameCollision, st.Pos, "label %s already defined at %s", st.Name, prev)
				continue
			}
			labelDefs[st.Name] = st.Pos
			ctx.labels[st.Name] = 0 // address assigned by the layout pass
		case *DirectiveStmt:
			if st.Name != "const" {
				continue
			}
			if len(st.Args) != 2 || st.Args[0].Kind != OpndIdent || st.Args[1].Kind != OpndImm {
				// shape errors are reported in sweep 2
				continue
			}
			name, val := st.Args[0].Name, st.Args[1].Imm
			if prev, ok := ctx.consts[name]; ok && prev != val {
				ctx.warn(st.Pos, "constant %s redefined: %d was %d", name, val, prev)
			}
			ctx.consts[name] = val
			constDefs[name] = st.Pos
		}
	}

	for name, pos := range constDefs {
		if lpos, ok := labelDefs[name]; ok {
			ctx.valError(NameCollision, pos, "%s is both a constant and a label (label at %s)", name, lpos)
		}
	}
}

// substitute rewrites identifier operands that name constants into literal
// immediates. Identifiers naming labels survive for the layout pass.
func substitute(args []Operand, ctx *context) {
	for i, a := range args {
		if a.Kind != OpndIdent {
			continue
		}
		if v, ok := ctx.consts[a.Name]; ok {
			args[i] = Operand{Kind: OpndImm, Imm: v, Pos: a.Pos}
		}
	}
}

// validate is sweep 2: it substitutes constants and enforces the structural
// rules — section shape, directive arity and operand kinds, instruction
// shapes against the opcode table.
func validate(stmts []Statement, ctx *context) {
	cur := secNone
	seenCode, seenStatic := false, false

	for _, s := range stmts {
		switch st := s.(type) {
		case *SectionStmt:
			switch st.Name {
			case "code":
				if seenCode {
					ctx.valError(DuplicateSection, st.Pos, "second section .code")
					continue
				}
				seenCode = true
				cur = secCode
			case "static":
				if seenStatic {
					ctx.valError(DuplicateSection, st.Pos, "second section .static")
					continue
				}
				if !seenCode {
					ctx.valError(WrongSectionOrder, st.Pos, "section .static must follow section .code")
				}
				seenStatic = true
				cur = secStatic
			}
		case *LabelStmt:
			if cur == secNone {
				ctx.valError(NoSection, st.Pos, "label %s before any section header", st.Name)
			}
		case *DirectiveStmt:
			if st.Name == "const" && len(st.Args) == 2 {
				// the name operand must survive as an identifier
				substitute(st.Args[1:], ctx)
			} else {
				substitute(st.Args, ctx)
			}
			validateDirective(st, cur, ctx)
		case *InstrStmt:
			substitute(st.Args, ctx)
			if cur == secNone {
				ctx.valError(NoSection, st.Pos, "instruction before any section header")
				continue
			}
			if cur != secCode {
				ctx.valError(WrongSectionOrder, st.Pos, "instruction %s outside section .code", st.Mnemonic)
				continue
			}
			validateInstr(st, ctx)
		}
	}

	if !seenCode {
		ctx.valError(NoSection, Pos{}, "program has no section .code")
	}
}

func validateDirective(st *DirectiveStmt, cur section, ctx *context) {
	if st.Name == "include" {
		ctx.valError(UnknownDirective, st.Pos, "internal error: .include survived expansion")
		return
	}
	if st.Name == "const" {
		if len(st.Args) != 2 {
			ctx.valError(BadDirectiveArity, st.Pos, ".const takes a name and a value, got %d operands", len(st.Args))
			return
		}
		if st.Args[0].Kind != OpndIdent {
			ctx.valError(BadOperandKind, st.Args[0].Pos, ".const name must be an identifier, got %s", st.Args[0].Kind)
		}
		if st.Args[1].Kind != OpndImm {
			ctx.valError(BadOperandKind, st.Args[1].Pos, ".const value must be an immediate, got %s", st.Args[1].Kind)
		}
		if cur == secNone {
			ctx.valError(NoSection, st.Pos, ".const before any section header")
		}
		return
	}

	width, ok := staticDirectives[st.Name]
	if !ok {
		ctx.valError(UnknownDirective, st.Pos, "."+st.Name)
		return
	}
	if cur == secNone {
		ctx.valError(NoSection, st.Pos, ".%s before any section header", st.Name)
		return
	}
	if cur != secStatic {
		ctx.valError(WrongSectionOrder, st.Pos, "data directive .%s outside section .static", st.Name)
		return
	}
	if len(st.Args) != 1 {
		ctx.valError(BadDirectiveArity, st.Pos, ".%s takes exactly one operand, got %d", st.Name, len(st.Args))
		return
	}
	arg := st.Args[0]
	switch st.Name {
	case "zero", "uninit":
		if arg.Kind != OpndImm {
			ctx.valError(BadOperandKind, arg.Pos, ".%s size must be an immediate, got %s", st.Name, arg.Kind)
			return
		}
		if arg.Imm < 0 {
			ctx.valError(NegativeSize, arg.Pos, ".%s %d", st.Name, arg.Imm)
		}
	case "bytes":
		if arg.Kind != OpndString {
			ctx.valError(BadOperandKind, arg.Pos, ".bytes takes a string literal, got %s", arg.Kind)
		}
	default: // .b1 .b2 .b4 .b8
		switch arg.Kind {
		case OpndImm:
			if !fitsBytes(arg.Imm, width) {
				ctx.valError(ValueTooWide, arg.Pos, "%d does not fit in %d byte(s)", arg.Imm, width)
			}
		case OpndIdent:
			// a label address, resolved by the layout pass
		default:
			ctx.valError(BadOperandKind, arg.Pos, ".%s value must be an immediate, got %s", st.Name, arg.Kind)
		}
	}
}

// fitsBytes reports whether v fits in n bytes, as either a two's-complement
// signed value or a plain unsigned one.
func fitsBytes(v int64, n int) bool {
	if n >= 8 {
		return true
	}
	bits := uint(n) * 8
	return v >= -(int64(1)<<(bits-1)) && v < int64(1)<<bits
}

// operandCount returns how many source operands a layout packs.
func operandCount(l vm.Layout) int {
	switch l {
	case vm.LayoutNone:
		return 0
	case vm.Layout7, vm.Layout8:
		return 3
	case vm.Layout9, vm.Layout10, vm.Layout11:
		return 1
	}
	return 2
}

// layoutFor derives the unique encoding layout implied by the operand kinds,
// with identifiers standing in for immediates. It reports false when the
// pattern matches none of the layouts.
func layoutFor(args []Operand) (vm.Layout, bool) {
	kind := func(i int) OperandKind {
		if args[i].Kind == OpndIdent {
			return OpndImm
		}
		return args[i].Kind
	}
	switch len(args) {
	case 0:
		return vm.LayoutNone, true
	case 1:
		switch kind(0) {
		case OpndReg:
			return vm.Layout9, true
		case OpndImm:
			return vm.Layout10, true
		case OpndRegOff:
			return vm.Layout11, true
		}
	case 2:
		switch {
		case kind(0) == OpndReg && kind(1) == OpndReg:
			return vm.Layout1, true
		case kind(0) == OpndReg && kind(1) == OpndImm:
			return vm.Layout2, true
		case kind(0) == OpndImm && kind(1) == OpndReg:
			return vm.Layout3, true
		case kind(0) == OpndRegOff && kind(1) == OpndReg,
			kind(0) == OpndReg && kind(1) == OpndRegOff:
			return vm.Layout4, true
		case kind(0) == OpndRegOff && kind(1) == OpndImm:
			return vm.Layout5, true
		case kind(0) == OpndImm && kind(1) == OpndImm:
			return vm.Layout6, true
		}
	case 3:
		if kind(0) == OpndReg && kind(1) == OpndReg && kind(2) == OpndReg {
			return vm.Layout7, true
		}
		if kind(0) == OpndReg && kind(1) == OpndReg && kind(2) == OpndImm {
			return vm.Layout8, true
		}
	}
	return 0, false
}

func validateInstr(st *InstrStmt, ctx *context) {
	op, ok := vm.Mnemonics[st.Mnemonic]
	if !ok {
		ctx.valError(UnknownOpcode, st.Pos, st.Mnemonic)
		return
	}
	arityOK := lo.SomeBy(op.Layouts(), func(l vm.Layout) bool {
		return operandCount(l) == len(st.Args)
	})
	if op.Layouts() == nil {
		arityOK = len(st.Args) == 0
	}
	if !arityOK {
		ctx.valError(BadOperandArity, st.Pos, "%s with %d operand(s)", st.Mnemonic, len(st.Args))
		return
	}
	layout, ok := layoutFor(st.Args)
	if !ok || !op.Admits(layout) {
		ctx.valError(BadOperandKind, st.Pos, "%s does not accept %s", st.Mnemonic, shapeString(st.Args))
	}
}

func shapeString(args []Operand) string {
	if len(args) == 0 {
		return "no operands"
	}
	kinds := lo.Map(args, func(a Operand, _ int) string { return a.Kind.String() })
	s := kinds[0]
	for _, k := range kinds[1:] {
		s += ", " + k
	}
	return "(" + s + ")"
}
