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
	"strconv"
	"strings"

	"github.com/wolf-lang/wolfasm/vm"
)

// lexer walks the source bytes once, producing tokens and accumulating
// diagnostics. Newlines are significant (statement terminators); comments
// run from '#' or ';' to end of line.
type lexer struct {
	src  []byte
	file string
	off  int
	line int
	col  int
	errs *ErrorList
}

// lexSource tokenizes one file. Errors are appended to errs; lexing continues
// past them so later problems are reported in the same run.
func lexSource(file string, src []byte, errs *ErrorList) []Token {
	l := &lexer{src: src, file: file, line: 1, col: 1, errs: errs}
	return l.run()
}

func (l *lexer) pos() Pos {
	return Pos{File: l.file, Line: l.line, Col: l.col}
}

func (l *lexer) eof() bool {
	return l.off >= len(l.src)
}

func (l *lexer) peek() byte {
	if l.eof() {
		return 0
	}
	return l.src[l.off]
}

func (l *lexer) peekAt(n int) byte {
	if l.off+n >= len(l.src) {
		return 0
	}
	return l.src[l.off+n]
}

func (l *lexer) next() byte {
	c := l.src[l.off]
	l.off++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) error(kind LexErrorKind, pos Pos, msg string) {
	*l.errs = append(*l.errs, &LexError{Kind: kind, Pos: pos, Msg: msg})
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentByte(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '_'
}

func digitInBase(c byte, base int) bool {
	switch base {
	case 2:
		return c == '0' || c == '1'
	case 16:
		return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
	}
	return isDigit(c)
}

func (l *lexer) run() []Token {
	var toks []Token
	for !l.eof() {
		pos := l.pos()
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			l.next()
		case c == '\n':
			l.next()
			toks = append(toks, Token{Kind: TokNewline, Pos: pos})
		case c == '#' || c == ';':
			for !l.eof() && l.peek() != '\n' {
				l.next()
			}
		case c == ',':
			l.next()
			toks = append(toks, Token{Kind: TokComma, Pos: pos})
		case c == ':':
			l.next()
			toks = append(toks, Token{Kind: TokColon, Pos: pos})
		case c == '(':
			l.next()
			toks = append(toks, Token{Kind: TokLParen, Pos: pos})
		case c == ')':
			l.next()
			toks = append(toks, Token{Kind: TokRParen, Pos: pos})
		case c == '"' || c == '\'':
			if tok, ok := l.lexString(); ok {
				toks = append(toks, tok)
			}
		case c == '$':
			if tok, ok := l.lexRegister(); ok {
				toks = append(toks, tok)
			}
		case c == '.':
			l.next()
			if !isLetter(l.peek()) {
				l.error(UnknownChar, pos, "expected directive name after '.'")
				break
			}
			start := l.off
			for !l.eof() && isIdentByte(l.peek()) {
				l.next()
			}
			name := strings.ToLower(string(l.src[start:l.off]))
			toks = append(toks, Token{Kind: TokDirective, Text: name, Pos: pos})
		case isLetter(c):
			start := l.off
			for !l.eof() && isIdentByte(l.peek()) {
				l.next()
			}
			toks = append(toks, Token{Kind: TokIdent, Text: string(l.src[start:l.off]), Pos: pos})
		case isDigit(c) || c == '-':
			if tok, ok := l.lexNumber(); ok {
				toks = append(toks, tok)
			}
		default:
			l.error(UnknownChar, pos, strconv.QuoteRune(rune(c)))
			l.next()
		}
	}
	toks = append(toks, Token{Kind: TokEOF, Pos: l.pos()})
	return toks
}

// lexNumber scans decimal, 0x hex or 0b binary immediates. Underscores are
// digit separators and may only appear between digits. Decimal values must
// fit the signed 64-bit range; hex and binary accept any 64-bit pattern.
func (l *lexer) lexNumber() (Token, bool) {
	pos := l.pos()
	neg := false
	if l.peek() == '-' {
		neg = true
		l.next()
		if !isDigit(l.peek()) {
			l.error(UnknownChar, pos, "'-' must start a number")
			return Token{}, false
		}
	}

	base := 10
	if l.peek() == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X') {
		base = 16
		l.next()
		l.next()
	} else if l.peek() == '0' && (l.peekAt(1) == 'b' || l.peekAt(1) == 'B') {
		base = 2
		l.next()
		l.next()
	}

	var digits strings.Builder
	lastWasDigit := false
	for !l.eof() {
		c := l.peek()
		if digitInBase(c, base) {
			digits.WriteByte(c)
			lastWasDigit = true
			l.next()
			continue
		}
		if c == '_' {
			if !lastWasDigit {
				l.error(UnknownChar, l.pos(), "'_' only allowed between digits")
				return Token{}, false
			}
			lastWasDigit = false
			l.next()
			continue
		}
		break
	}
	if digits.Len() == 0 || !lastWasDigit {
		l.error(UnknownChar, pos, "malformed number")
		return Token{}, false
	}

	var v int64
	if base == 10 {
		s := digits.String()
		if neg {
			s = "-" + s
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			l.error(ImmOverflow, pos, s)
			return Token{}, false
		}
		v = n
	} else {
		n, err := strconv.ParseUint(digits.String(), base, 64)
		if err != nil {
			l.error(ImmOverflow, pos, digits.String())
			return Token{}, false
		}
		v = int64(n)
		if neg {
			if n > 1<<63 {
				l.error(ImmOverflow, pos, "-"+digits.String())
				return Token{}, false
			}
			v = -int64(n)
		}
	}
	return Token{Kind: TokInt, Val: v, Pos: pos}, true
}

// lexRegister scans $N, $sp or $fp. $sp and $fp are aliases for $63 and $62.
func (l *lexer) lexRegister() (Token, bool) {
	pos := l.pos()
	l.next() // '$'
	if l.peek() == 's' && l.peekAt(1) == 'p' {
		l.next()
		l.next()
		return Token{Kind: TokReg, Reg: vm.RegSP, Pos: pos}, true
	}
	if l.peek() == 'f' && l.peekAt(1) == 'p' {
		l.next()
		l.next()
		return Token{Kind: TokReg, Reg: vm.RegFP, Pos: pos}, true
	}
	start := l.off
	for !l.eof() && isDigit(l.peek()) {
		l.next()
	}
	if l.off == start {
		l.error(UnknownChar, pos, "expected register number after '$'")
		return Token{}, false
	}
	n, err := strconv.Atoi(string(l.src[start:l.off]))
	if err != nil || n >= vm.NumRegisters {
		l.error(UnknownChar, pos, "register index out of range: $"+string(l.src[start:l.off]))
		return Token{}, false
	}
	return Token{Kind: TokReg, Reg: uint8(n), Pos: pos}, true
}

// lexString scans a single- or double-quoted ASCII literal, processing the
// escape forms \n \t \r \\ \' \" \x{H...} (1-2 hex digits) and \b{8 binary
// digits, underscores allowed}.
func (l *lexer) lexString() (Token, bool) {
	pos := l.pos()
	quote := l.next()
	var out []byte
	for {
		if l.eof() || l.peek() == '\n' {
			l.error(UnterminatedString, pos, "string never closed")
			return Token{}, false
		}
		c := l.next()
		if c == quote {
			return Token{Kind: TokString, Text: string(out), Pos: pos}, true
		}
		if c != '\\' {
			out = append(out, c)
			continue
		}

		escPos := l.pos()
		if l.eof() {
			l.error(UnterminatedString, pos, "string never closed")
			return Token{}, false
		}
		switch e := l.next(); e {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '\\':
			out = append(out, '\\')
		case '\'':
			out = append(out, '\'')
		case '"':
			out = append(out, '"')
		case 'x':
			b, ok := l.bracedDigits(escPos, 16, 1, 2)
			if !ok {
				return Token{}, false
			}
			out = append(out, b)
		case 'b':
			b, ok := l.bracedDigits(escPos, 2, 8, 8)
			if !ok {
				return Token{}, false
			}
			out = append(out, b)
		default:
			l.error(BadEscape, escPos, "\\"+string(e))
			return Token{}, false
		}
	}
}

// bracedDigits scans {digits} with between min and max digits of the given
// base, permitting underscore separators, and returns the byte value.
func (l *lexer) bracedDigits(pos Pos, base, min, max int) (byte, bool) {
	if l.eof() || l.peek() != '{' {
		l.error(BadEscape, pos, "expected '{'")
		return 0, false
	}
	l.next()
	var digits strings.Builder
	for !l.eof() && (digitInBase(l.peek(), base) || l.peek() == '_') {
		c := l.next()
		if c != '_' {
			digits.WriteByte(c)
		}
	}
	if l.eof() || l.peek() != '}' {
		l.error(BadEscape, pos, "expected '}'")
		return 0, false
	}
	l.next()
	if digits.Len() < min || digits.Len() > max {
		l.error(BadEscape, pos, "expected "+strconv.Itoa(min)+"-"+strconv.Itoa(max)+" digits")
		return 0, false
	}
	v, err := strconv.ParseUint(digits.String(), base, 8)
	if err != nil {
		l.error(BadEscape, pos, digits.String())
		return 0, false
	}
	return byte(v), true
}
