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

import "github.com/wolf-lang/wolfasm/vm"

// assignAddresses is the layout pass. The image places static bytes before
// code bytes regardless of declaration order, so the walk runs twice over
// the document: first the .static statements from offset 0, then the .code
// statements from the end of the static area. Labels bind to the cursor of
// the walk they appear in, and every identifier operand is then rewritten to
// its label's absolute offset.
//
// It returns the size of the static area, which is also the offset of the
// first instruction.
func assignAddresses(stmts []Statement, ctx *context) int {
	staticSize := walkSection(stmts, secStatic, 0, ctx)
	walkSection(stmts, secCode, staticSize, ctx)

	for _, s := range stmts {
		switch st := s.(type) {
		case *DirectiveStmt:
			// .const is compile-time only; its name operand is not a label use
			if st.Name != "const" {
				resolveLabels(st.Args, ctx)
			}
		case *InstrStmt:
			resolveLabels(st.Args, ctx)
		}
	}
	return staticSize
}

// statementSize returns how many image bytes a statement occupies.
func statementSize(s Statement) int {
	switch st := s.(type) {
	case *InstrStmt:
		return vm.InstructionBytes
	case *DirectiveStmt:
		switch st.Name {
		case "b1":
			return 1
		case "b2":
			return 2
		case "b4":
			return 4
		case "b8":
			return 8
		case "zero", "uninit":
			if len(st.Args) == 1 && st.Args[0].Kind == OpndImm {
				return int(st.Args[0].Imm)
			}
		case "bytes":
			if len(st.Args) == 1 && st.Args[0].Kind == OpndString {
				return len(st.Args[0].Str)
			}
		}
	}
	return 0
}

// walkSection advances a byte cursor over the statements belonging to want,
// binding label definitions to the cursor as it goes.
func walkSection(stmts []Statement, want section, start int, ctx *context) int {
	cursor := start
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
		if lbl, ok := s.(*LabelStmt); ok {
			ctx.labels[lbl.Name] = int64(cursor)
			continue
		}
		cursor += statementSize(s)
	}
	return cursor
}

// resolveLabels rewrites surviving identifier operands to the absolute
// offsets recorded for their labels.
func resolveLabels(args []Operand, ctx *context) {
	for i, a := range args {
		if a.Kind != OpndIdent {
			continue
		}
		v, ok := ctx.labels[a.Name]
		if !ok {
			ctx.errs = append(ctx.errs, &ResolveError{Pos: a.Pos, Name: a.Name})
			continue
		}
		args[i] = Operand{Kind: OpndImm, Imm: v, Pos: a.Pos}
	}
}
