package main

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chrysante/scatha-sub006/opt"
)

// frontendOwnedFlag names an inspect flag whose data (AST, symbol
// table, codegen/isel dumps) only exists once a frontend has produced
// an ir.Module. spec.md §1 draws that boundary explicitly ("the
// lexer, parser, semantic analyzer... are out of scope and treated as
// external collaborators"), so these flags are real, registered CLI
// flags — spec.md's CLI surface names them — but return a clear error
// instead of silently doing nothing when nothing upstream of this
// repository has supplied the data they'd dump.
var frontendOwnedFlags = []string{"ast", "sym", "emit-ir", "codegen", "isel"}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <program.sprog>",
		Short: "Print a view of a compiled artifact or the optimizer pipeline spec",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range frontendOwnedFlags {
				if v, _ := cmd.Flags().GetBool(name); v {
					return invocationErrorf("inspect --%s requires a frontend-produced ir.Module, which this module does not build from the CLI (spec.md §1 treats the frontend as an external collaborator)", name)
				}
			}
			if spec, _ := cmd.Flags().GetString("pipeline"); spec != "" {
				return inspectPipeline(cmd, spec)
			}
			showAsm, _ := cmd.Flags().GetBool("asm")
			if showAsm {
				if len(args) != 1 {
					return invocationErrorf("inspect --asm requires a program.sprog argument")
				}
				return inspectAsm(cmd, args[0])
			}
			return invocationErrorf("inspect: specify --asm <program.sprog> or --pipeline <spec>")
		},
	}
	cmd.Flags().Bool("ast", false, "print the frontend-produced AST (not available without a frontend)")
	cmd.Flags().Bool("sym", false, "print the frontend symbol table (not available without a frontend)")
	cmd.Flags().Bool("emit-ir", false, "print the IR module (not available without a frontend)")
	cmd.Flags().Bool("codegen", false, "print MIR after instruction selection (not available without a frontend)")
	cmd.Flags().Bool("isel", false, "print the instruction-selection trace (not available without a frontend)")
	cmd.Flags().Bool("asm", false, "disassemble program.sprog's code section")
	cmd.Flags().String("pipeline", "", "comma-separated optimizer pass spec to validate and describe")
	return cmd
}

func inspectPipeline(cmd *cobra.Command, spec string) error {
	names := strings.Split(spec, ",")
	for i, n := range names {
		names[i] = strings.TrimSpace(n)
	}
	var unknown []string
	for _, n := range names {
		if n == "" {
			continue
		}
		if opt.Lookup(n) == nil {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return invocationErrorf("inspect --pipeline: unknown pass(es): %s (registered: %s)",
			strings.Join(unknown, ", "), strings.Join(opt.Names(), ", "))
	}
	for _, n := range names {
		if n == "" {
			continue
		}
		info := opt.Lookup(n)
		cmd.Printf("%-16s category=%v\n", n, info.Category)
	}
	return nil
}

func inspectAsm(cmd *cobra.Command, path string) error {
	prog, err := loadProgram(path)
	if err != nil {
		return err
	}
	byOffset := make(map[int]string, len(prog.Symbols))
	for name, off := range prog.Symbols {
		byOffset[off] = name
	}
	offsets := make([]int, 0, len(byOffset))
	for off := range byOffset {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)

	lines, err := disassemble(prog.Code)
	if err != nil {
		return invocationErrorf("disassembling %s: %w", path, err)
	}
	for _, l := range lines {
		if name, ok := byOffset[l.offset]; ok {
			cmd.Printf("%s:\n", name)
		}
		cmd.Printf("  %6d: %s\n", l.offset, l.text)
	}
	return nil
}
