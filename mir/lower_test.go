package mir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/bignum"
	"github.com/chrysante/scatha-sub006/ir"
	"github.com/chrysante/scatha-sub006/mir"
)

func TestLowerArithmeticEmitsMovThenArith(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.IntType(64), ir.VisibilityInternal)
	b := fn.NewBlock("entry")

	lhs := bd.ConstInt(b, 64, bignum.FromInt64(3))
	rhs := bd.ConstInt(b, 64, bignum.FromInt64(4))
	sum := bd.Arithmetic(b, ir.OpAdd, lhs, rhs)
	bd.Return(b, sum)

	mfn := mir.Lower(fn)
	require.Len(t, mfn.Blocks, 1)

	var ops []mir.Op
	for _, in := range mfn.Blocks[0].Instructions {
		ops = append(ops, in.Op)
	}
	assert.Contains(t, ops, mir.OpMovRI)
	assert.Contains(t, ops, mir.OpArithRR)
	assert.Contains(t, ops, mir.OpReturn)
}

func TestLowerBranchEmitsTestAndCondJump(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.IntType(64), ir.VisibilityInternal)
	entry := fn.NewBlock("entry")
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")

	cond := bd.ConstInt(entry, 1, bignum.FromInt64(1))
	bd.Branch(entry, cond, thenB, elseB)
	ten := bd.ConstInt(thenB, 64, bignum.FromInt64(10))
	bd.Return(thenB, ten)
	twenty := bd.ConstInt(elseB, 64, bignum.FromInt64(20))
	bd.Return(elseB, twenty)

	mfn := mir.Lower(fn)
	entryMB := mfn.Blocks[0]
	last := entryMB.Instructions[len(entryMB.Instructions)-1]
	assert.Equal(t, mir.OpCondJump, last.Op)
	assert.Equal(t, mir.CondNotEqual, last.Sym)
	require.Len(t, last.Args, 2)
	assert.Same(t, mfn.Blocks[1], last.Args[0])
	assert.Same(t, mfn.Blocks[2], last.Args[1])
}

func TestLowerSelectEmitsCMov(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.IntType(64), ir.VisibilityInternal)
	b := fn.NewBlock("entry")

	cond := bd.ConstInt(b, 1, bignum.FromInt64(1))
	then := bd.ConstInt(b, 64, bignum.FromInt64(1))
	els := bd.ConstInt(b, 64, bignum.FromInt64(2))
	sel := bd.Select(b, cond, then, els)
	bd.Return(b, sel)

	mfn := mir.Lower(fn)
	var sawCMov bool
	for _, in := range mfn.Blocks[0].Instructions {
		if in.Op == mir.OpCMov {
			sawCMov = true
		}
	}
	assert.True(t, sawCMov)
}

func TestLowerCallPlacesArgsAfterCallee(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	callee := m.NewFunction("callee", m.Context.IntType(64), ir.VisibilityInternal)
	cb := callee.NewBlock("entry")
	p := callee.AddParam("x", m.Context.IntType(64))
	bd.Return(cb, p)

	fn := m.NewFunction("f", m.Context.IntType(64), ir.VisibilityInternal)
	b := fn.NewBlock("entry")
	arg := bd.ConstInt(b, 64, bignum.FromInt64(5))
	call := bd.Call(b, callee, arg)
	bd.Return(b, call)

	mfn := mir.Lower(fn)
	var callIn *mir.Instruction
	for _, in := range mfn.Blocks[0].Instructions {
		if in.Op == mir.OpCallInternal {
			callIn = in
		}
	}
	require.NotNil(t, callIn)
	require.Len(t, callIn.Args, 2)
	assert.Same(t, callee, callIn.Args[0])
}
