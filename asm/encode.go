package asm

import (
	"fmt"
	"math"

	"github.com/chrysante/scatha-sub006/ir"
	"github.com/chrysante/scatha-sub006/isa"
	"github.com/chrysante/scatha-sub006/mir"
)

// widthClass picks the 32- or 64-bit arithmetic family for a register
// narrower than a full word: spec.md §4.7 only names arithmetic at
// widths 32 and 64, so sub-word integers (i1/i8/i16) are computed in a
// 32-bit lane, matching how every register is a uniform slot in the
// register file regardless of the IR value's semantic width.
func widthClass(bytes int) int {
	if bytes > 4 {
		return 64
	}
	return 32
}

func setOpcode(c mir.Condition) isa.Opcode {
	switch c {
	case mir.CondLess:
		return isa.OpSetL
	case mir.CondLessEq:
		return isa.OpSetLE
	case mir.CondGreater:
		return isa.OpSetG
	case mir.CondGreaterEq:
		return isa.OpSetGE
	case mir.CondEqual:
		return isa.OpSetE
	case mir.CondNotEqual:
		return isa.OpSetNE
	}
	panic(fmt.Sprintf("asm: unhandled condition %v", c))
}

func cmovOpcode(c mir.Condition) isa.Opcode {
	switch c {
	case mir.CondLess:
		return isa.OpCMovL
	case mir.CondLessEq:
		return isa.OpCMovLE
	case mir.CondGreater:
		return isa.OpCMovG
	case mir.CondGreaterEq:
		return isa.OpCMovGE
	case mir.CondEqual:
		return isa.OpCMovE
	case mir.CondNotEqual:
		return isa.OpCMovNE
	}
	panic(fmt.Sprintf("asm: unhandled condition %v", c))
}

func jccOpcode(c mir.Condition) isa.Opcode {
	switch c {
	case mir.CondLess:
		return isa.OpJL
	case mir.CondLessEq:
		return isa.OpJLE
	case mir.CondGreater:
		return isa.OpJG
	case mir.CondGreaterEq:
		return isa.OpJGE
	case mir.CondEqual:
		return isa.OpJE
	case mir.CondNotEqual:
		return isa.OpJNE
	}
	panic(fmt.Sprintf("asm: unhandled condition %v", c))
}

func cmpOpcode(mode ir.CompareMode, width int) isa.Opcode {
	switch mode {
	case ir.CompareSigned:
		switch width {
		case 1:
			return isa.OpSCmp8
		case 2:
			return isa.OpSCmp16
		case 4:
			return isa.OpSCmp32
		default:
			return isa.OpSCmp64
		}
	case ir.CompareUnsigned:
		switch width {
		case 1:
			return isa.OpUCmp8
		case 2:
			return isa.OpUCmp16
		case 4:
			return isa.OpUCmp32
		default:
			return isa.OpUCmp64
		}
	case ir.CompareFloat:
		if width <= 4 {
			return isa.OpFCmp32
		}
		return isa.OpFCmp64
	}
	panic(fmt.Sprintf("asm: unhandled compare mode %v", mode))
}

func movRMOpcode(width int) isa.Opcode {
	switch width {
	case 1:
		return isa.OpMov8RM
	case 2:
		return isa.OpMov16RM
	case 4:
		return isa.OpMov32RM
	default:
		return isa.OpMov64RM
	}
}

func movMROpcode(width int) isa.Opcode {
	switch width {
	case 1:
		return isa.OpMov8MR
	case 2:
		return isa.OpMov16MR
	case 4:
		return isa.OpMov32MR
	default:
		return isa.OpMov64MR
	}
}

// arithOpcode maps a binary mir.ArithKind plus the operand width to
// the width-specific isa family; kind is one of the *RR/*RV/*RM
// variants depending on rhs's operand shape.
func arithOpcode(kind mir.ArithKind, width int, rhsIsImm, rhsIsMem bool) isa.Opcode {
	w64 := widthClass(width) == 64
	pick := func(rr32, rv32, rm32, rr64, rv64, rm64 isa.Opcode) isa.Opcode {
		switch {
		case w64 && rhsIsImm:
			return rv64
		case w64 && rhsIsMem:
			return rm64
		case w64:
			return rr64
		case rhsIsImm:
			return rv32
		case rhsIsMem:
			return rm32
		default:
			return rr32
		}
	}
	switch kind {
	case mir.ArithAdd:
		return pick(isa.OpAddRR32, isa.OpAddRV32, isa.OpAddRM32, isa.OpAddRR64, isa.OpAddRV64, isa.OpAddRM64)
	case mir.ArithSub:
		return pick(isa.OpSubRR32, isa.OpSubRV32, isa.OpSubRM32, isa.OpSubRR64, isa.OpSubRV64, isa.OpSubRM64)
	case mir.ArithMul:
		return pick(isa.OpMulRR32, isa.OpMulRV32, isa.OpMulRM32, isa.OpMulRR64, isa.OpMulRV64, isa.OpMulRM64)
	case mir.ArithSDiv:
		return pick(isa.OpSDivRR32, isa.OpSDivRV32, isa.OpSDivRM32, isa.OpSDivRR64, isa.OpSDivRV64, isa.OpSDivRM64)
	case mir.ArithUDiv:
		return pick(isa.OpUDivRR32, isa.OpUDivRV32, isa.OpUDivRM32, isa.OpUDivRR64, isa.OpUDivRV64, isa.OpUDivRM64)
	case mir.ArithSRem:
		return pick(isa.OpSRemRR32, isa.OpSRemRV32, isa.OpSRemRM32, isa.OpSRemRR64, isa.OpSRemRV64, isa.OpSRemRM64)
	case mir.ArithURem:
		return pick(isa.OpURemRR32, isa.OpURemRV32, isa.OpURemRM32, isa.OpURemRR64, isa.OpURemRV64, isa.OpURemRM64)
	case mir.ArithFAdd:
		return pick(isa.OpFAddRR32, isa.OpFAddRV32, isa.OpFAddRM32, isa.OpFAddRR64, isa.OpFAddRV64, isa.OpFAddRM64)
	case mir.ArithFSub:
		return pick(isa.OpFSubRR32, isa.OpFSubRV32, isa.OpFSubRM32, isa.OpFSubRR64, isa.OpFSubRV64, isa.OpFSubRM64)
	case mir.ArithFMul:
		return pick(isa.OpFMulRR32, isa.OpFMulRV32, isa.OpFMulRM32, isa.OpFMulRR64, isa.OpFMulRV64, isa.OpFMulRM64)
	case mir.ArithFDiv:
		return pick(isa.OpFDivRR32, isa.OpFDivRV32, isa.OpFDivRM32, isa.OpFDivRR64, isa.OpFDivRV64, isa.OpFDivRM64)
	case mir.ArithAnd:
		if w64 {
			return isa.OpAndRR64
		}
		return isa.OpAndRR32
	case mir.ArithOr:
		if w64 {
			return isa.OpOrRR64
		}
		return isa.OpOrRR32
	case mir.ArithXOr:
		if w64 {
			return isa.OpXOrRR64
		}
		return isa.OpXOrRR32
	case mir.ArithLShL:
		if w64 {
			return isa.OpLShLRR64
		}
		return isa.OpLShLRR32
	case mir.ArithLShR:
		if w64 {
			return isa.OpLShRRR64
		}
		return isa.OpLShRRR32
	case mir.ArithAShL:
		if w64 {
			return isa.OpAShLRR64
		}
		return isa.OpAShLRR32
	case mir.ArithAShR:
		if w64 {
			return isa.OpAShRRR64
		}
		return isa.OpAShRRR32
	}
	panic(fmt.Sprintf("asm: unhandled arith kind %v", kind))
}

func negOpcode(width int) isa.Opcode {
	switch width {
	case 1:
		return isa.OpNeg8
	case 2:
		return isa.OpNeg16
	case 4:
		return isa.OpNeg32
	default:
		return isa.OpNeg64
	}
}

func negativeOneBits(width int) uint64 {
	if width <= 4 {
		return uint64(math.Float32bits(-1))
	}
	return math.Float64bits(-1)
}

// sextOpcode picks the sign-extension opcode for widening src (whose
// width names the *source* bit count) up to the register's full
// width; widening from 64 to 64 needs no instruction.
func sextOpcode(srcWidth int) (isa.Opcode, bool) {
	switch srcWidth {
	case 1:
		return isa.OpSExt8, true
	case 2:
		return isa.OpSExt16, true
	case 4:
		return isa.OpSExt32, true
	default:
		return 0, false
	}
}

func intToFloatOpcode(srcWidth, dstWidth int) isa.Opcode {
	f64 := dstWidth > 4
	switch srcWidth {
	case 1:
		if f64 {
			return isa.OpS8ToF64
		}
		return isa.OpS8ToF32
	case 2:
		if f64 {
			return isa.OpS16ToF64
		}
		return isa.OpS16ToF32
	case 4:
		if f64 {
			return isa.OpS32ToF64
		}
		return isa.OpS32ToF32
	default:
		if f64 {
			return isa.OpS64ToF64
		}
		return isa.OpS64ToF32
	}
}

func floatToIntOpcode(srcWidth, dstWidth int) isa.Opcode {
	f64 := srcWidth > 4
	switch dstWidth {
	case 1:
		if f64 {
			return isa.OpF64ToS8
		}
		return isa.OpF32ToS8
	case 2:
		if f64 {
			return isa.OpF64ToS16
		}
		return isa.OpF32ToS16
	case 4:
		if f64 {
			return isa.OpF64ToS32
		}
		return isa.OpF32ToS32
	default:
		if f64 {
			return isa.OpF64ToS64
		}
		return isa.OpF32ToS64
	}
}
