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
	"strings"
)

// OperandKind tags an operand value.
type OperandKind int

const (
	OpndImm OperandKind = iota
	OpndReg
	OpndRegOff
	OpndIdent
	OpndString
)

func (k OperandKind) String() string {
	switch k {
	case OpndImm:
		return "immediate"
	case OpndReg:
		return "register"
	case OpndRegOff:
		return "register+offset"
	case OpndIdent:
		return "identifier"
	case OpndString:
		return "string"
	}
	return "operand"
}

// Operand is a tagged operand value. For OpndRegOff, Reg is the base register
// and Imm the offset. Identifiers name labels or constants until the passes
// rewrite them to immediates.
type Operand struct {
	Kind OperandKind
	Imm  int64
	Reg  uint8
	Name string
	Str  string
	Pos  Pos
}

func (o Operand) String() string {
	switch o.Kind {
	case OpndImm:
		return fmt.Sprintf("%d", o.Imm)
	case OpndReg:
		return fmt.Sprintf("$%d", o.Reg)
	case OpndRegOff:
		return fmt.Sprintf("%d($%d)", o.Imm, o.Reg)
	case OpndIdent:
		return o.Name
	case OpndString:
		return fmt.Sprintf("%q", o.Str)
	}
	return "?"
}

// Statement is one parsed statement: a section header, a label definition, a
// directive invocation or an instruction. Every statement carries the span of
// its first token.
type Statement interface {
	Span() Pos
	String() string
}

// SectionStmt is a `section .code` or `section .static` header.
type SectionStmt struct {
	Name string // "code" or "static", lower-cased
	Pos  Pos
}

func (s *SectionStmt) Span() Pos      { return s.Pos }
func (s *SectionStmt) String() string { return "section ." + s.Name }

// LabelStmt is a label definition `name:`.
type LabelStmt struct {
	Name string
	Pos  Pos
}

func (s *LabelStmt) Span() Pos      { return s.Pos }
func (s *LabelStmt) String() string { return s.Name + ":" }

// DirectiveStmt is a `.name arg, ...` invocation.
type DirectiveStmt struct {
	Name string // lower-cased, without the dot
	Args []Operand
	Pos  Pos
}

func (s *DirectiveStmt) Span() Pos { return s.Pos }
func (s *DirectiveStmt) String() string {
	return "." + s.Name + operandList(s.Args)
}

// InstrStmt is an instruction: mnemonic plus operand list.
type InstrStmt struct {
	Mnemonic string // lower-cased
	Args     []Operand
	Pos      Pos
}

func (s *InstrStmt) Span() Pos { return s.Pos }
func (s *InstrStmt) String() string {
	return s.Mnemonic + operandList(s.Args)
}

func operandList(args []Operand) string {
	if len(args) == 0 {
		return ""
	}
	l := make([]string, len(args))
	for i, a := range args {
		l[i] = a.String()
	}
	return " " + strings.Join(l, ", ")
}
