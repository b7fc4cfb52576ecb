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

// Package asm assembles Wolf assembly (.wa) source into executable images
// for the Wolf machine.
//
// The pipeline is a sequence of passes over a statement vector: lexing,
// statement parsing, include expansion, constant substitution and
// validation, address layout and label resolution, and finally instruction
// encoding. Errors from each stage are collected and reported together
// rather than aborting at the first one.
package asm

import (
	"os"

	"github.com/wolf-lang/wolfasm/vm"
)

// Assembler drives the pipeline. The zero value resolves includes from the
// filesystem.
type Assembler struct {
	// Resolver opens include targets. Defaults to os.ReadFile.
	Resolver IncludeResolver
}

// Result is a successful assembly: the executable image plus the
// compile-time tables, kept for listings and diagnostics.
type Result struct {
	Image    vm.Image
	Labels   map[string]int64
	Warnings []Warning
}

// AssembleFile assembles the named .wa file.
func (a *Assembler) AssembleFile(path string) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.Assemble(path, src)
}

// Assemble runs the full pipeline over src. The name is used for positions
// in diagnostics and as the base for relative include paths. On failure the
// returned error is an ErrorList of every diagnostic collected.
func (a *Assembler) Assemble(name string, src []byte) (*Result, error) {
	ctx := newContext()

	toks := lexSource(name, src, &ctx.errs)
	stmts := parseTokens(toks, &ctx.errs)

	resolve := a.Resolver
	if resolve == nil {
		resolve = os.ReadFile
	}
	x := &expander{resolve: resolve, errs: &ctx.errs}
	stmts = x.expand(name, stmts, 0)

	collectNames(stmts, ctx)
	validate(stmts, ctx)
	if err := ctx.errs.err(); err != nil {
		return nil, err
	}

	staticSize := assignAddresses(stmts, ctx)
	if err := ctx.errs.err(); err != nil {
		return nil, err
	}

	img := encodeImage(stmts, staticSize, ctx)
	if err := ctx.errs.err(); err != nil {
		return nil, err
	}
	return &Result{Image: img, Labels: ctx.labels, Warnings: ctx.warns}, nil
}

// Assemble assembles src with a default Assembler.
func Assemble(name string, src []byte) (*Result, error) {
	var a Assembler
	return a.Assemble(name, src)
}
