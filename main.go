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

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/asmfmt"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/wolf-lang/wolfasm/asm"
	"github.com/wolf-lang/wolfasm/vm"
)

var verbose bool

func fatal(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func verbosef(format string, args ...interface{}) {
	if verbose {
		_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// assemble runs the pipeline on path and prints any warnings to stderr.
func assemble(path string) *asm.Result {
	var a asm.Assembler
	res, err := a.AssembleFile(path)
	if err != nil {
		fatal(err)
	}
	for _, w := range res.Warnings {
		_, _ = fmt.Fprintln(os.Stderr, w)
	}
	verbosef("assembled %s: %d static byte(s), %d instruction(s)",
		path, res.Image.CodeStart, res.Image.CodeLen()/vm.InstructionBytes)
	return res
}

func run(img vm.Image, memory int) {
	var opts []vm.Option
	if memory > 0 {
		opts = append(opts, vm.MemSize(memory))
	}
	m, err := vm.New(img, opts...)
	if err != nil {
		fatal(err)
	}
	count, err := m.Run()
	if err != nil {
		fatal(err)
	}
	verbosef("executed %d instruction(s)", count)
}

var command = &cobra.Command{
	Use:   "wolfasm",
	Short: "Assembler and virtual machine for the Wolf assembly language",
}

var asmCommand = &cobra.Command{
	Use:   "asm file.wa",
	Short: "Assemble a .wa source file into an executable image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = strings.TrimSuffix(args[0], ".wa") + ".img"
		}
		res := assemble(args[0])
		if err := res.Image.WriteFile(output); err != nil {
			fatal(err)
		}
		verbosef("wrote %s (code starts at offset %d)", output, res.Image.CodeStart)
	},
}

var runCommand = &cobra.Command{
	Use:   "run file.img",
	Short: "Execute an image (or a .wa source with --source)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		memory, _ := cmd.Flags().GetInt("memory")
		if source, _ := cmd.Flags().GetBool("source"); source {
			res := assemble(args[0])
			run(res.Image, memory)
			return
		}
		entry, _ := cmd.Flags().GetInt("entry")
		img, err := vm.ReadFile(args[0], entry)
		if err != nil {
			fatal(err)
		}
		run(img, memory)
	},
}

var dumpCommand = &cobra.Command{
	Use:   "dump file.img",
	Short: "Disassemble the code section of an image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		entry, _ := cmd.Flags().GetInt("entry")
		img, err := vm.ReadFile(args[0], entry)
		if err != nil {
			fatal(err)
		}
		var builder strings.Builder
		if err := asm.Disassemble(img, &builder); err != nil {
			fatal(err)
		}
		bytes, err := asmfmt.Format(strings.NewReader(builder.String()))
		if err != nil {
			fatal(errors.Wrap(err, "format listing"))
		}
		if _, err := os.Stdout.Write(bytes); err != nil {
			fatal(err)
		}
	},
}

func init() {
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "if set, increase verbosity level")
	asmCommand.Flags().StringP("output", "o", "", "output image path (default: source with .img extension)")
	runCommand.Flags().Int("memory", 0, "total memory buffer size in bytes")
	runCommand.Flags().Int("entry", 0, "byte offset of the first instruction in the image")
	runCommand.Flags().Bool("source", false, "treat the argument as .wa source and assemble it first")
	dumpCommand.Flags().Int("entry", 0, "byte offset of the first instruction in the image")
	command.AddCommand(asmCommand, runCommand, dumpCommand)
}

func main() {
	if err := command.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
