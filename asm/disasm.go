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
	"io"

	"github.com/wolf-lang/wolfasm/vm"
)

// Disassemble writes a listing of the image's code section: one line per
// instruction word with its image offset, raw word and decoded source form.
// Words that decode to no known instruction are listed, not fatal.
func Disassemble(img vm.Image, w io.Writer) error {
	for off := img.CodeStart; off+vm.InstructionBytes <= len(img.Data); off += vm.InstructionBytes {
		word := img.Word(off)
		in, err := vm.Decode(word)
		var text string
		if err != nil {
			text = fmt.Sprintf("?\t// %v", err)
		} else {
			text = in.String()
		}
		if _, err := fmt.Fprintf(w, "%08x:\t%016x\t%s\n", off, word, text); err != nil {
			return err
		}
	}
	return nil
}
