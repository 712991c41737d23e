package main

import (
	"encoding/binary"
	"fmt"

	"github.com/chrysante/scatha-sub006/isa"
)

// disasmLine is one decoded instruction: its byte offset, a short
// textual rendering, and (for control-flow instructions) the absolute
// target offset a CFG builder needs.
type disasmLine struct {
	offset int
	text   string
	target int // valid iff isBranch
	call   int // valid iff isCall

	isBranch      bool // conditional or unconditional jump
	unconditional bool // OpJmp: never falls through
	isCall        bool
	isTerminator  bool // ret/terminate: no successor at all
}

// disassemble decodes code (header included) into one disasmLine per
// instruction, starting right after the isa.ProgramHeader. Unlike
// vm.step, this never executes anything; it only needs each
// instruction's size and, for control-flow opcodes, the relative
// displacement isa encodes.
func disassemble(code []byte) ([]disasmLine, error) {
	header, err := isa.DecodeProgramHeader(code)
	if err != nil {
		return nil, err
	}
	end := isa.HeaderSize + int(header.CodeSize)
	if end > len(code) {
		return nil, fmt.Errorf("disasm: code size %d exceeds buffer of %d bytes", header.CodeSize, len(code))
	}

	var lines []disasmLine
	for off := isa.HeaderSize; off < end; {
		op := isa.Opcode(code[off])
		size := isa.Size(op)
		line := disasmLine{offset: off, text: fmt.Sprintf("op(%d)", op)}

		switch op {
		case isa.OpJmp:
			rel := int32(binary.LittleEndian.Uint32(code[off+1:]))
			line.target = off + 1 + 4 + int(rel)
			line.isBranch = true
			line.unconditional = true
			line.text = fmt.Sprintf("jmp -> %d", line.target)
		case isa.OpJE, isa.OpJNE, isa.OpJL, isa.OpJLE, isa.OpJG, isa.OpJGE:
			rel := int32(binary.LittleEndian.Uint32(code[off+1:]))
			line.target = off + 1 + 4 + int(rel)
			line.isBranch = true
			line.text = fmt.Sprintf("jcc(%d) -> %d", op, line.target)
		case isa.OpCall:
			rel := int32(binary.LittleEndian.Uint32(code[off+1:]))
			line.call = off + 1 + 4 + int(rel)
			line.isCall = true
			line.text = fmt.Sprintf("call -> %d", line.call)
		case isa.OpRet:
			line.isTerminator = true
			line.text = "ret"
		case isa.OpTerminate:
			line.isTerminator = true
			line.text = "terminate"
		}

		lines = append(lines, line)
		off += size
	}
	return lines, nil
}
