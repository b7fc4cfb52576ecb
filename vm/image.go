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
	"os"

	"github.com/pkg/errors"
)

// InstructionBytes is the fixed width of an encoded instruction.
const InstructionBytes = 8

// Image is an executable image: static bytes followed by packed 64-bit
// little-endian instruction words. The byte stream itself carries no header;
// CodeStart (the byte offset of the first instruction) travels alongside it.
type Image struct {
	Data      []byte
	CodeStart int
}

// CodeLen returns the length of the code section in bytes.
func (img Image) CodeLen() int {
	return len(img.Data) - img.CodeStart
}

// Word returns the instruction word at byte offset addr.
func (img Image) Word(addr int) uint64 {
	var w uint64
	for i := 0; i < InstructionBytes; i++ {
		w |= uint64(img.Data[addr+i]) << (8 * i)
	}
	return w
}

// ReadFile loads a raw image file. The stream has no header, so the code
// start offset is supplied by the caller; 0 means the image has no static
// section.
func ReadFile(path string, codeStart int) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, errors.Wrap(err, "read image")
	}
	if codeStart < 0 || codeStart > len(data) {
		return Image{}, errors.Errorf("code start %d outside image of %d bytes", codeStart, len(data))
	}
	if (len(data)-codeStart)%InstructionBytes != 0 {
		return Image{}, errors.Errorf("code section of %d bytes is not a whole number of instructions", len(data)-codeStart)
	}
	return Image{Data: data, CodeStart: codeStart}, nil
}

// WriteFile writes the raw image bytes.
func (img Image) WriteFile(path string) error {
	return errors.Wrap(os.WriteFile(path, img.Data, 0o644), "write image")
}
