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

package vm

import (
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Memory-mapped I/O addresses. Accesses to them are routed to the host
// streams instead of the memory buffer.
const (
	MMIOStdin  uint64 = 0xffff_0004
	MMIOStdout uint64 = 0xffff_000c
)

// hostIO adapts the two borrowed host streams. The VM never closes them.
type hostIO struct {
	in  io.Reader
	out io.Writer
}

// readInput consumes size bytes from stdin and returns them little-endian.
// Bytes past EOF read as zero, so a load at EOF yields 0.
func (h *hostIO) readInput(size int) uint64 {
	buf := make([]byte, size)
	n, _ := io.ReadFull(h.in, buf)
	var v uint64
	for b := 0; b < n; b++ {
		v |= uint64(buf[b]) << (8 * b)
	}
	return v
}

// writeScalar emits the UTF-8 encoding of the given codepoint. Invalid
// scalar values (surrogates, values above U+10FFFF) are substituted with
// U+FFFD, which is what utf8.EncodeRune does on its own.
func (h *hostIO) writeScalar(v uint32) error {
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], rune(v))
	_, err := h.out.Write(buf[:n])
	return errors.Wrap(err, "mmio stdout")
}
