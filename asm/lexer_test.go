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

import "testing"

func lexOK(t *testing.T, src string) []Token {
	t.Helper()
	var errs ErrorList
	toks := lexSource("test.wa", []byte(src), &errs)
	if len(errs) != 0 {
		t.Fatalf("lex %q: %v", src, errs)
	}
	return toks
}

func lexOneError(t *testing.T, src string) *LexError {
	t.Helper()
	var errs ErrorList
	lexSource("test.wa", []byte(src), &errs)
	if len(errs) == 0 {
		t.Fatalf("lex %q: expected an error", src)
	}
	le, ok := errs[0].(*LexError)
	if !ok {
		t.Fatalf("lex %q: got %T, want *LexError", src, errs[0])
	}
	return le
}

func TestLexNumbers(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"0", 0},
		{"42", 42},
		{"-42", -42},
		{"0x10", 16},
		{"0xffff_000c", 0xffff_000c},
		{"0b1010", 10},
		{"0b1010_0001", 0xa1},
		{"1_000_000", 1000000},
		{"9223372036854775807", 1<<63 - 1},
		{"-9223372036854775808", -(1 << 63)},
		{"0xffffffffffffffff", -1},
		{"-0x8000000000000000", -(1 << 63)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks := lexOK(t, tt.src)
			if toks[0].Kind != TokInt {
				t.Fatalf("kind = %v, want immediate", toks[0].Kind)
			}
			if toks[0].Val != tt.want {
				t.Errorf("value = %d, want %d", toks[0].Val, tt.want)
			}
		})
	}
}

func TestLexNumberOverflow(t *testing.T) {
	tests := []string{
		"9223372036854775808",
		"-9223372036854775809",
		"0x1_0000_0000_0000_0000",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			if le := lexOneError(t, src); le.Kind != ImmOverflow {
				t.Errorf("kind = %v, want ImmOverflow", le.Kind)
			}
		})
	}
}

func TestLexUnderscorePlacement(t *testing.T) {
	for _, src := range []string{"0x_10", "1__0"} {
		t.Run(src, func(t *testing.T) {
			if le := lexOneError(t, src); le.Kind != UnknownChar {
				t.Errorf("kind = %v, want UnknownChar", le.Kind)
			}
		})
	}
}

func TestLexRegisters(t *testing.T) {
	toks := lexOK(t, "$0 $63 $sp $fp $7")
	want := []uint8{0, 63, 63, 62, 7}
	for i, r := range want {
		if toks[i].Kind != TokReg {
			t.Fatalf("token %d: kind = %v, want register", i, toks[i].Kind)
		}
		if toks[i].Reg != r {
			t.Errorf("token %d: reg = %d, want %d", i, toks[i].Reg, r)
		}
	}
}

func TestLexRegisterOutOfRange(t *testing.T) {
	if le := lexOneError(t, "$64"); le.Kind != UnknownChar {
		t.Errorf("kind = %v, want UnknownChar", le.Kind)
	}
}

func TestLexStrings(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`''`, ""},
		{`'a\nb'`, "a\nb"},
		{`'\t\r\\'`, "\t\r\\"},
		{`"\""`, `"`},
		{`'\''`, "'"},
		{`'\x{41}'`, "A"},
		{`'\x{9}'`, "\t"},
		{`'\b{0100_0001}'`, "A"},
		{`'hello, world!\n'`, "hello, world!\n"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks := lexOK(t, tt.src)
			if toks[0].Kind != TokString {
				t.Fatalf("kind = %v, want string", toks[0].Kind)
			}
			if toks[0].Text != tt.want {
				t.Errorf("value = %q, want %q", toks[0].Text, tt.want)
			}
		})
	}
}

func TestLexBadEscapes(t *testing.T) {
	tests := []string{
		`'\q'`,
		`'\x41'`,
		`'\x{}'`,
		`'\x{123}'`,
		`'\b{0101}'`,
		`'\b{0101_0101_0}'`,
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			if le := lexOneError(t, src); le.Kind != BadEscape {
				t.Errorf("kind = %v, want BadEscape", le.Kind)
			}
		})
	}
}

func TestLexUnterminatedString(t *testing.T) {
	for _, src := range []string{`"abc`, "'abc\nrest"} {
		t.Run(src, func(t *testing.T) {
			if le := lexOneError(t, src); le.Kind != UnterminatedString {
				t.Errorf("kind = %v, want UnterminatedString", le.Kind)
			}
		})
	}
}

func TestLexCommentsAndNewlines(t *testing.T) {
	toks := lexOK(t, "nop # comment\nadd ; other comment\n")
	kinds := []TokenKind{TokIdent, TokNewline, TokIdent, TokNewline, TokEOF}
	for i, k := range kinds {
		if toks[i].Kind != k {
			t.Errorf("token %d: kind = %v, want %v", i, toks[i].Kind, k)
		}
	}
}

func TestLexPositions(t *testing.T) {
	toks := lexOK(t, "nop\n  add $1, $2\n")
	// "add" is line 2 column 3
	if toks[2].Pos.Line != 2 || toks[2].Pos.Col != 3 {
		t.Errorf("pos = %v, want 2:3", toks[2].Pos)
	}
	if toks[2].Pos.File != "test.wa" {
		t.Errorf("file = %q, want test.wa", toks[2].Pos.File)
	}
}

func TestLexDirectives(t *testing.T) {
	toks := lexOK(t, ".B8 .const .INCLUDE")
	want := []string{"b8", "const", "include"}
	for i, name := range want {
		if toks[i].Kind != TokDirective || toks[i].Text != name {
			t.Errorf("token %d = %v %q, want directive %q", i, toks[i].Kind, toks[i].Text, name)
		}
	}
}
