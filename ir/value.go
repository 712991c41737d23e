package ir

import (
	"fmt"

	"github.com/chrysante/scatha-sub006/bignum"
)

// Op enumerates every Value variant: the Constant kinds, Parameter,
// every Instruction, and the three address-of-entity pseudo-values
// (BasicBlock/Function/GlobalVariable as branch/call targets).
type Op int

const (
	// Constants
	OpConstInt Op = iota
	OpConstFloat
	OpConstNullPointer
	OpConstUndef
	OpConstAggregate

	// Address-of-entity values
	OpParam
	OpBlockRef
	OpFunctionRef
	OpGlobalRef

	// Memory
	OpAlloca
	OpLoad
	OpStore
	OpGEP
	OpExtractValue
	OpInsertValue

	// Arithmetic
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpSRem
	OpURem
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpLShL
	OpLShR
	OpAShL
	OpAShR
	OpAnd
	OpOr
	OpXOr

	// Unary arithmetic
	OpBitwiseNot
	OpLogicalNot
	OpNegate

	// Comparison
	OpCompare

	// Conversion
	OpConversion

	// Control-flow-adjacent value ops
	OpPhi
	OpSelect
	OpCall
	OpForeignCall

	// Terminators
	OpGoto
	OpBranch
	OpReturn
)

var opNames = map[Op]string{
	OpConstInt: "const.int", OpConstFloat: "const.float",
	OpConstNullPointer: "const.null", OpConstUndef: "undef", OpConstAggregate: "const.agg",
	OpParam: "param", OpBlockRef: "blockref", OpFunctionRef: "funcref", OpGlobalRef: "globalref",
	OpAlloca: "alloca", OpLoad: "load", OpStore: "store", OpGEP: "gep",
	OpExtractValue: "extractvalue", OpInsertValue: "insertvalue",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpSDiv: "sdiv", OpUDiv: "udiv",
	OpSRem: "srem", OpURem: "urem", OpFAdd: "fadd", OpFSub: "fsub", OpFMul: "fmul", OpFDiv: "fdiv",
	OpLShL: "lshl", OpLShR: "lshr", OpAShL: "ashl", OpAShR: "ashr",
	OpAnd: "and", OpOr: "or", OpXOr: "xor",
	OpBitwiseNot: "bnot", OpLogicalNot: "lnot", OpNegate: "neg",
	OpCompare: "cmp", OpConversion: "conv",
	OpPhi: "phi", OpSelect: "select", OpCall: "call", OpForeignCall: "fcall",
	OpGoto: "goto", OpBranch: "branch", OpReturn: "return",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "<unknown op>"
}

// IsTerminator reports whether op ends a basic block.
func (op Op) IsTerminator() bool {
	return op == OpGoto || op == OpBranch || op == OpReturn
}

// CompareMode selects the operand interpretation for OpCompare.
type CompareMode int

const (
	CompareSigned CompareMode = iota
	CompareUnsigned
	CompareFloat
)

// CompareOp selects the relation tested by OpCompare.
type CompareOp int

const (
	CmpLess CompareOp = iota
	CmpLessEq
	CmpGreater
	CmpGreaterEq
	CmpEqual
	CmpNotEqual
)

// CompareSpec is the Sym payload of an OpCompare value.
type CompareSpec struct {
	Mode CompareMode
	Op   CompareOp
}

// ConversionKind enumerates the OpConversion variants.
type ConversionKind int

const (
	ConvSignExt ConversionKind = iota
	ConvZeroExt
	ConvTrunc
	ConvIntToFloat
	ConvFloatToInt
	ConvFloatExt
	ConvFloatTrunc
	ConvPointerReinterpret
)

// ConversionSpec is the Sym payload of an OpConversion value.
type ConversionSpec struct {
	Kind   ConversionKind
	Target *Type
}

// GEPSpec is the Sym payload of an OpGEP value: Args[0] is the base
// pointer, Args[1] (if present) is the dynamic array index, and
// MemberIndices walks nested aggregate members from there.
type GEPSpec struct {
	InBoundsType  *Type
	MemberIndices []int
}

// Value is the common representation for every SSA entity: constants,
// parameters, instructions, and the block/function/global reference
// pseudo-values used as branch/call targets. This mirrors falcon's
// compile/ssa.Value (Id/Op/Args/Sym/Block/Uses/UseBlock), widened with
// a Name (IR values are nameable, falcon's were not) and a Type drawn
// from this package's own type system instead of the frontend AST's.
type Value struct {
	ID       int
	Op       Op
	Type     *Type
	Name     string
	Args     []*Value
	Sym      any // Op-specific payload: bignum.Num, CompareSpec, GEPSpec, ...
	Block    *Block
	Uses     []*Value // values that use this value as an operand
	UseBlock []*Block // blocks that use this value as their terminator condition/target
}

func (v *Value) String() string {
	s := fmt.Sprintf("%%%s = %s", v.displayName(), v.Op)
	if v.Type != nil {
		s += fmt.Sprintf(" %v", v.Type)
	}
	for _, a := range v.Args {
		s += " " + a.refString()
	}
	if v.Sym != nil {
		s += fmt.Sprintf(" #%v", v.Sym)
	}
	return s
}

func (v *Value) displayName() string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("%d", v.ID)
}

func (v *Value) refString() string {
	switch v.Op {
	case OpConstInt:
		return v.Sym.(bignum.Num).String()
	default:
		return "%" + v.displayName()
	}
}

// AddArg appends args to v's operand list and registers v as a user of
// each. Mirrors falcon's Value.AddArg exactly.
func (v *Value) AddArg(args ...*Value) {
	for _, a := range args {
		v.Args = append(v.Args, a)
		a.Uses = append(a.Uses, v)
	}
}

// SetArg replaces the operand at index i, updating def-use on both the
// old and new definition. This is the single centralized mutation
// point §4.1 requires ("whenever an operand is set, the old
// definition's user-set must be decremented and the new definition's
// incremented").
func (v *Value) SetArg(i int, newArg *Value) {
	old := v.Args[i]
	old.RemoveUseOnce(v)
	v.Args[i] = newArg
	newArg.Uses = append(newArg.Uses, v)
}

// AddUseBlock marks block as using v as its terminator's control value
// (branch condition or goto/call target).
func (v *Value) AddUseBlock(block *Block) {
	v.UseBlock = append(v.UseBlock, block)
}

// RemoveUseBlock undoes AddUseBlock.
func (v *Value) RemoveUseBlock(block *Block) {
	for i, b := range v.UseBlock {
		if b == block {
			v.UseBlock = append(v.UseBlock[:i], v.UseBlock[i+1:]...)
			return
		}
	}
}

// RemoveUse removes one occurrence of user from v's use list.
func (v *Value) RemoveUse(user *Value) {
	for i := len(v.Uses) - 1; i >= 0; i-- {
		if v.Uses[i] == user {
			v.Uses = append(v.Uses[:i], v.Uses[i+1:]...)
			return
		}
	}
}

// RemoveUseOnce is RemoveUse with the falcon-original name kept for
// call sites ported directly from compile/ssa.
func (v *Value) RemoveUseOnce(user *Value) { v.RemoveUse(user) }

// ReplaceUses rewrites every user of v to refer to newVal instead,
// preserving phi predecessor mapping, and leaves v with no users. This
// is the "Value replacement" operation of §4.1.
func (v *Value) ReplaceUses(newVal *Value) {
	for _, user := range append([]*Value(nil), v.Uses...) {
		for i, a := range user.Args {
			if a == v {
				user.Args[i] = newVal
				newVal.Uses = append(newVal.Uses, user)
			}
		}
	}
	v.Uses = nil
	if len(v.UseBlock) > 0 {
		for _, b := range v.UseBlock {
			newVal.UseBlock = append(newVal.UseBlock, b)
			if b.Ctrl == v {
				b.Ctrl = newVal
			}
		}
		v.UseBlock = nil
	}
}

// IsConstant reports whether v is one of the Constant variants.
func (v *Value) IsConstant() bool {
	switch v.Op {
	case OpConstInt, OpConstFloat, OpConstNullPointer, OpConstUndef, OpConstAggregate:
		return true
	}
	return false
}

// HasSideEffects reports whether v must not be removed by dead code
// elimination even with zero uses: store, call to a non-pure function,
// and every terminator, per §4.2's DCE contract.
func (v *Value) HasSideEffects() bool {
	switch v.Op {
	case OpStore, OpCall, OpForeignCall:
		return true
	}
	return v.Op.IsTerminator()
}
