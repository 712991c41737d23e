// Package isa is the instruction set shared by asm, link and vm: the
// opcode byte enumeration, per-opcode operand layout, and the binary
// program header. None of these three packages owns the encoding —
// they all depend on isa so a change to an operand layout only has
// one home.
//
// Grounded on original_source/lib/VM/OpCode.cc's byte-indexed operand
// reads (`i[0]` register index, `read<T>(i+1)` immediate) generalized
// to the width-parameterized opcode families spec.md §4.7 names
// (mov{8,16,32,64}, scmp/ucmp/fcmp at widths 8/16/32/64, arithmetic at
// widths 32/64) instead of the original's single 64-bit register file.
package isa

import "fmt"

// Opcode is the one-byte tag at the start of every instruction.
type Opcode uint8

const (
	OpAllocReg Opcode = iota
	OpSetBrk
	OpCall
	OpICallR
	OpICallM
	OpRet
	OpCFng
	OpCBltn
	OpTerminate

	OpMov64RR
	OpMov64RV
	OpMov8MR
	OpMov16MR
	OpMov32MR
	OpMov64MR
	OpMov8RM
	OpMov16RM
	OpMov32RM
	OpMov64RM
	OpLea
	OpLincSP

	OpCMovE
	OpCMovNE
	OpCMovL
	OpCMovLE
	OpCMovG
	OpCMovGE

	OpJmp
	OpJE
	OpJNE
	OpJL
	OpJLE
	OpJG
	OpJGE

	OpSCmp8
	OpSCmp16
	OpSCmp32
	OpSCmp64
	OpUCmp8
	OpUCmp16
	OpUCmp32
	OpUCmp64
	OpFCmp32
	OpFCmp64
	OpSTest8
	OpSTest16
	OpSTest32
	OpSTest64
	OpUTest8
	OpUTest16
	OpUTest32
	OpUTest64

	OpSetE
	OpSetNE
	OpSetL
	OpSetLE
	OpSetG
	OpSetGE

	OpLNot
	OpBNot
	OpNeg8
	OpNeg16
	OpNeg32
	OpNeg64

	OpAddRR32
	OpAddRV32
	OpAddRM32
	OpAddRR64
	OpAddRV64
	OpAddRM64
	OpSubRR32
	OpSubRV32
	OpSubRM32
	OpSubRR64
	OpSubRV64
	OpSubRM64
	OpMulRR32
	OpMulRV32
	OpMulRM32
	OpMulRR64
	OpMulRV64
	OpMulRM64
	OpSDivRR32
	OpSDivRV32
	OpSDivRM32
	OpSDivRR64
	OpSDivRV64
	OpSDivRM64
	OpUDivRR32
	OpUDivRV32
	OpUDivRM32
	OpUDivRR64
	OpUDivRV64
	OpUDivRM64
	OpSRemRR32
	OpSRemRV32
	OpSRemRM32
	OpSRemRR64
	OpSRemRV64
	OpSRemRM64
	OpURemRR32
	OpURemRV32
	OpURemRM32
	OpURemRR64
	OpURemRV64
	OpURemRM64

	OpFAddRR32
	OpFAddRV32
	OpFAddRM32
	OpFAddRR64
	OpFAddRV64
	OpFAddRM64
	OpFSubRR32
	OpFSubRV32
	OpFSubRM32
	OpFSubRR64
	OpFSubRV64
	OpFSubRM64
	OpFMulRR32
	OpFMulRV32
	OpFMulRM32
	OpFMulRR64
	OpFMulRV64
	OpFMulRM64
	OpFDivRR32
	OpFDivRV32
	OpFDivRM32
	OpFDivRR64
	OpFDivRV64
	OpFDivRM64

	OpAndRR32
	OpAndRR64
	OpOrRR32
	OpOrRR64
	OpXOrRR32
	OpXOrRR64
	OpLShLRR32
	OpLShLRR64
	OpLShRRR32
	OpLShRRR64
	OpAShLRR32
	OpAShLRR64
	OpAShRRR32
	OpAShRRR64

	OpSExt8
	OpSExt16
	OpSExt32
	OpFExt
	OpFTrunc
	OpS8ToF32
	OpS16ToF32
	OpS32ToF32
	OpS64ToF32
	OpU8ToF32
	OpU16ToF32
	OpU32ToF32
	OpU64ToF32
	OpS8ToF64
	OpS16ToF64
	OpS32ToF64
	OpS64ToF64
	OpU8ToF64
	OpU16ToF64
	OpU32ToF64
	OpU64ToF64
	OpF32ToS8
	OpF32ToS16
	OpF32ToS32
	OpF32ToS64
	OpF32ToU8
	OpF32ToU16
	OpF32ToU32
	OpF32ToU64
	OpF64ToS8
	OpF64ToS16
	OpF64ToS32
	OpF64ToS64
	OpF64ToU8
	OpF64ToU16
	OpF64ToU32
	OpF64ToU64

	opcodeCount
)

// operand encodes the byte-layout of an opcode's arguments, in the
// order they appear immediately after the opcode byte.
type operand int

const (
	opNone operand = iota
	opReg          // one register index byte
	opRegReg       // two register index bytes
	opRegImm8      // register index byte, 1-byte immediate
	opRegImm16     // register index byte, 2-byte immediate
	opRegImm32     // register index byte, 4-byte immediate
	opRegImm64     // register index byte, 8-byte immediate
	opRegMem       // register index byte, then a 4-byte Addr (base, offsetReg, offsetFactor, offsetTerm)
	opMemReg       // 4-byte Addr, then a register index byte
	opRel32        // 4-byte signed relative offset
	opImm32        // bare 4-byte immediate (lincsp)
	opRegIdx16     // register index byte (argument-frame pointer offset), then a 16-bit FFI/builtin table index
	opMem          // 4-byte Addr (base, offsetReg, offsetFactor, offsetTerm)
)

const addrSize = 4 // base(1) + offsetReg(1) + offsetFactor(1) + offsetTerm(1)

var layout = map[Opcode]operand{
	OpAllocReg: opImm32,
	OpSetBrk:   opImm32,
	OpCall:     opRel32,
	OpICallR:   opReg,
	OpICallM:   opMem,
	OpRet:      opNone,
	OpCFng:     opRegIdx16,
	OpCBltn:    opRegIdx16,
	OpTerminate: opNone,

	OpMov64RR: opRegReg,
	OpMov64RV: opRegImm64,
	OpMov8MR:  opMemReg,
	OpMov16MR: opMemReg,
	OpMov32MR: opMemReg,
	OpMov64MR: opMemReg,
	OpMov8RM:  opRegMem,
	OpMov16RM: opRegMem,
	OpMov32RM: opRegMem,
	OpMov64RM: opRegMem,
	OpLea:     opRegMem,
	OpLincSP:  opImm32,

	OpCMovE: opRegReg, OpCMovNE: opRegReg, OpCMovL: opRegReg,
	OpCMovLE: opRegReg, OpCMovG: opRegReg, OpCMovGE: opRegReg,

	OpJmp: opRel32, OpJE: opRel32, OpJNE: opRel32, OpJL: opRel32,
	OpJLE: opRel32, OpJG: opRel32, OpJGE: opRel32,

	OpSCmp8: opRegReg, OpSCmp16: opRegReg, OpSCmp32: opRegReg, OpSCmp64: opRegReg,
	OpUCmp8: opRegReg, OpUCmp16: opRegReg, OpUCmp32: opRegReg, OpUCmp64: opRegReg,
	OpFCmp32: opRegReg, OpFCmp64: opRegReg,
	OpSTest8: opReg, OpSTest16: opReg, OpSTest32: opReg, OpSTest64: opReg,
	OpUTest8: opReg, OpUTest16: opReg, OpUTest32: opReg, OpUTest64: opReg,

	OpSetE: opReg, OpSetNE: opReg, OpSetL: opReg, OpSetLE: opReg, OpSetG: opReg, OpSetGE: opReg,

	OpLNot: opReg, OpBNot: opReg,
	OpNeg8: opReg, OpNeg16: opReg, OpNeg32: opReg, OpNeg64: opReg,
}

func init() {
	for _, op := range []Opcode{
		OpAddRR32, OpSubRR32, OpMulRR32, OpSDivRR32, OpUDivRR32, OpSRemRR32, OpURemRR32,
		OpAddRR64, OpSubRR64, OpMulRR64, OpSDivRR64, OpUDivRR64, OpSRemRR64, OpURemRR64,
		OpFAddRR32, OpFSubRR32, OpFMulRR32, OpFDivRR32,
		OpFAddRR64, OpFSubRR64, OpFMulRR64, OpFDivRR64,
		OpAndRR32, OpAndRR64, OpOrRR32, OpOrRR64, OpXOrRR32, OpXOrRR64,
		OpLShLRR32, OpLShLRR64, OpLShRRR32, OpLShRRR64, OpAShLRR32, OpAShLRR64, OpAShRRR32, OpAShRRR64,
	} {
		layout[op] = opRegReg
	}
	for _, op := range []Opcode{
		OpAddRV32, OpSubRV32, OpMulRV32, OpSDivRV32, OpUDivRV32, OpSRemRV32, OpURemRV32,
		OpFAddRV32, OpFSubRV32, OpFMulRV32, OpFDivRV32,
	} {
		layout[op] = opRegImm32
	}
	for _, op := range []Opcode{
		OpAddRV64, OpSubRV64, OpMulRV64, OpSDivRV64, OpUDivRV64, OpSRemRV64, OpURemRV64,
		OpFAddRV64, OpFSubRV64, OpFMulRV64, OpFDivRV64,
	} {
		layout[op] = opRegImm64
	}
	for _, op := range []Opcode{
		OpAddRM32, OpSubRM32, OpMulRM32, OpSDivRM32, OpUDivRM32, OpSRemRM32, OpURemRM32,
		OpAddRM64, OpSubRM64, OpMulRM64, OpSDivRM64, OpUDivRM64, OpSRemRM64, OpURemRM64,
		OpFAddRM32, OpFSubRM32, OpFMulRM32, OpFDivRM32,
		OpFAddRM64, OpFSubRM64, OpFMulRM64, OpFDivRM64,
	} {
		layout[op] = opRegMem
	}
	for op := OpSExt8; op < opcodeCount; op++ {
		layout[op] = opReg
	}
}

// Size returns the total encoded size in bytes of an instruction with
// this opcode, including the opcode byte itself. Mirrors
// original_source's codeSize(OpCode) used by the dispatch loop to
// advance iptr.
func Size(op Opcode) int {
	switch layout[op] {
	case opNone:
		return 1
	case opReg:
		return 2
	case opRegReg:
		return 3
	case opRegImm8:
		return 3
	case opRegImm16:
		return 4
	case opRegImm32:
		return 6
	case opRegImm64:
		return 10
	case opRegMem:
		return 2 + addrSize
	case opMemReg:
		return 1 + addrSize + 1
	case opRel32:
		return 5
	case opImm32:
		return 5
	case opRegIdx16:
		return 4
	case opMem:
		return 1 + addrSize
	default:
		panic(fmt.Sprintf("isa: opcode %d has no registered operand layout", op))
	}
}

// IsRelativeJump reports whether op's sole 4-byte argument is an
// iptr-relative displacement patched by asm once block offsets are
// known (jmp/jcc and call, which spec.md §4.5 treats identically: both
// are "internal jump/call" targets needing a patch).
func IsRelativeJump(op Opcode) bool {
	return layout[op] == opRel32
}
