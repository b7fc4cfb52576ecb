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
	"os"
	"path/filepath"
)

// maxIncludeDepth bounds include nesting.
const maxIncludeDepth = 1000

// IncludeResolver opens an include target and returns its contents. The path
// has already been made relative to the including file's directory. The
// default resolver reads from the filesystem; tests and embedders may
// substitute their own.
type IncludeResolver func(path string) ([]byte, error)

// expander splices included files into the statement list in place of their
// .include directives. A stack of active files catches cycles; a depth
// counter catches runaway nesting.
type expander struct {
	resolve IncludeResolver
	active  []string
	errs    *ErrorList
}

func (x *expander) error(kind IncludeErrorKind, pos Pos, msg string) {
	*x.errs = append(*x.errs, &IncludeError{Kind: kind, Pos: pos, Msg: msg})
}

// onStack reports whether the file is currently being expanded.
func (x *expander) onStack(path string) bool {
	for _, f := range x.active {
		if f == path {
			return true
		}
	}
	return false
}

// expand walks the statements of file, replacing each .include with the
// parsed and recursively expanded statements of its target. Include paths
// resolve relative to the directory of the including file.
func (x *expander) expand(file string, stmts []Statement, depth int) []Statement {
	x.active = append(x.active, file)
	defer func() { x.active = x.active[:len(x.active)-1] }()

	out := make([]Statement, 0, len(stmts))
	for _, s := range stmts {
		d, ok := s.(*DirectiveStmt)
		if !ok || d.Name != "include" {
			out = append(out, s)
			continue
		}
		if len(d.Args) != 1 || d.Args[0].Kind != OpndString {
			*x.errs = append(*x.errs, &ValError{Kind: BadDirectiveArity, Pos: d.Pos,
				Msg: ".include takes exactly one string operand"})
			continue
		}
		if depth+1 > maxIncludeDepth {
			x.error(TooDeep, d.Pos, "more than 1000 nested includes")
			continue
		}
		target := filepath.Join(filepath.Dir(file), d.Args[0].Str)
		if x.onStack(target) {
			x.error(Cycle, d.Pos, target+" includes itself")
			continue
		}
		src, err := x.resolve(target)
		if err != nil {
			if os.IsNotExist(err) {
				x.error(NotFound, d.Pos, target)
			} else {
				x.error(Io, d.Pos, err.Error())
			}
			continue
		}
		toks := lexSource(target, src, x.errs)
		inner := parseTokens(toks, x.errs)
		out = append(out, x.expand(target, inner, depth+1)...)
	}
	return out
}
