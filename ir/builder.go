package ir

import "github.com/chrysante/scatha-sub006/bignum"

// Builder provides falcon-style `block.NewValue(op, type, args...)`
// convenience constructors for the instruction variants spec.md §3.1
// names, so callers (opt passes, tests, the mir lowering pass) do not
// hand-assemble Sym payloads inline.
type Builder struct {
	Ctx *Context
}

// NewBuilder returns a Builder bound to m's interning context.
func NewBuilder(m *Module) *Builder { return &Builder{Ctx: m.Context} }

// ConstInt returns a constant integer value of type intN holding v.
func (bd *Builder) ConstInt(b *Block, width int, v bignum.Num) *Value {
	val := b.NewValue(OpConstInt, bd.Ctx.IntType(width))
	val.Sym = v
	return val
}

// ConstFloat returns a constant float value of type f32/f64 holding v.
func (bd *Builder) ConstFloat(b *Block, width int, v float64) *Value {
	val := b.NewValue(OpConstFloat, bd.Ctx.FloatType(width))
	val.Sym = v
	return val
}

// ConstNullPointer returns the null pointer constant.
func (bd *Builder) ConstNullPointer(b *Block) *Value {
	return b.NewValue(OpConstNullPointer, bd.Ctx.PointerType())
}

// Undef returns an undef value of type t.
func (bd *Builder) Undef(b *Block, t *Type) *Value {
	return b.NewValue(OpConstUndef, t)
}

// Alloca reserves stack storage for count contiguous elements of t;
// the result type is a pointer.
func (bd *Builder) Alloca(b *Block, t *Type, count int) *Value {
	val := b.NewValue(OpAlloca, bd.Ctx.PointerType())
	val.Sym = struct {
		Elem  *Type
		Count int
	}{t, count}
	return val
}

// Load reads a value of type t from addr.
func (bd *Builder) Load(b *Block, addr *Value, t *Type) *Value {
	return b.NewValue(OpLoad, t, addr)
}

// Store writes value to addr; the resulting Value has void type and is
// pinned (never dead-code-eliminated) per §4.2.
func (bd *Builder) Store(b *Block, addr, value *Value) *Value {
	return b.NewValue(OpStore, bd.Ctx.VoidType(), addr, value)
}

// Arithmetic builds a binary arithmetic instruction; lhs and rhs must
// share a type, which becomes the result type.
func (bd *Builder) Arithmetic(b *Block, op Op, lhs, rhs *Value) *Value {
	return b.NewValue(op, lhs.Type, lhs, rhs)
}

// UnaryArithmetic builds BitwiseNot/LogicalNot/Negate.
func (bd *Builder) UnaryArithmetic(b *Block, op Op, operand *Value) *Value {
	return b.NewValue(op, operand.Type, operand)
}

// Compare builds a Compare instruction; result type is always i1.
func (bd *Builder) Compare(b *Block, mode CompareMode, op CompareOp, lhs, rhs *Value) *Value {
	val := b.NewValue(OpCompare, bd.Ctx.IntType(1), lhs, rhs)
	val.Sym = CompareSpec{Mode: mode, Op: op}
	return val
}

// Conversion builds a sign/zero-extension, truncation, int<->float, or
// pointer-reinterpretation conversion of operand to target.
func (bd *Builder) Conversion(b *Block, kind ConversionKind, operand *Value, target *Type) *Value {
	val := b.NewValue(OpConversion, target, operand)
	val.Sym = ConversionSpec{Kind: kind, Target: target}
	return val
}

// Phi creates an empty phi node of type t; args must be appended later
// (one per predecessor, in predecessor order) as the CFG is built.
func (bd *Builder) Phi(b *Block, t *Type) *Value {
	return b.NewValue(OpPhi, t)
}

// Select builds a Select instruction.
func (bd *Builder) Select(b *Block, cond, then, els *Value) *Value {
	return b.NewValue(OpSelect, then.Type, cond, then, els)
}

// Call builds a direct call to callee with the given arguments; Args[0]
// is an OpFunctionRef whose Sym holds the callee *Function, which is
// where CallGraph finds it.
func (bd *Builder) Call(b *Block, callee *Function, args ...*Value) *Value {
	allArgs := append([]*Value{{Op: OpFunctionRef, Sym: callee}}, args...)
	val := b.NewValue(OpCall, callee.RetType, allArgs...)
	return val
}

// Goto terminates b with an unconditional jump to target.
func (bd *Builder) Goto(b *Block, target *Block) *Value {
	val := b.NewValue(OpGoto, bd.Ctx.VoidType())
	val.Sym = target
	val.AddUseBlock(b)
	b.WireTo(target)
	return val
}

// Branch terminates b with a conditional jump.
func (bd *Builder) Branch(b *Block, cond *Value, then, els *Block) *Value {
	val := b.NewValue(OpBranch, bd.Ctx.VoidType(), cond)
	val.Sym = BranchTargets{Then: then, Else: els}
	val.AddUseBlock(b)
	b.WireTo(then)
	b.WireTo(els)
	return val
}

// Return terminates b, optionally returning value (nil for void).
func (bd *Builder) Return(b *Block, value *Value) *Value {
	var val *Value
	if value != nil {
		val = b.NewValue(OpReturn, bd.Ctx.VoidType(), value)
	} else {
		val = b.NewValue(OpReturn, bd.Ctx.VoidType())
	}
	return val
}
