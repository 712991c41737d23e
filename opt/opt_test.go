package opt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/bignum"
	"github.com/chrysante/scatha-sub006/ir"
	"github.com/chrysante/scatha-sub006/opt"
)

func TestMem2RegPromotesSimpleLocal(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.IntType(64), ir.VisibilityInternal)
	b := fn.NewBlock("entry")

	slot := bd.Alloca(b, m.Context.IntType(64), 1)
	c := bd.ConstInt(b, 64, bignum.FromInt64(7))
	bd.Store(b, slot, c)
	loaded := bd.Load(b, slot, m.Context.IntType(64))
	bd.Return(b, loaded)

	changed := opt.Mem2Reg(fn)
	assert.True(t, changed)

	for _, v := range b.Values {
		assert.NotEqual(t, ir.OpAlloca, v.Op)
		assert.NotEqual(t, ir.OpLoad, v.Op)
		assert.NotEqual(t, ir.OpStore, v.Op)
	}
	require.NoError(t, ir.Verify(fn))
}

func TestMem2RegInsertsPhiAcrossBranch(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.IntType(64), ir.VisibilityInternal)
	entry := fn.NewBlock("entry")
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")
	join := fn.NewBlock("join")

	slot := bd.Alloca(entry, m.Context.IntType(64), 1)
	cond := bd.ConstInt(entry, 1, bignum.FromInt64(1))
	bd.Branch(entry, cond, thenB, elseB)

	ten := bd.ConstInt(thenB, 64, bignum.FromInt64(10))
	bd.Store(thenB, slot, ten)
	bd.Goto(thenB, join)

	twenty := bd.ConstInt(elseB, 64, bignum.FromInt64(20))
	bd.Store(elseB, slot, twenty)
	bd.Goto(elseB, join)

	loaded := bd.Load(join, slot, m.Context.IntType(64))
	bd.Return(join, loaded)

	opt.Mem2Reg(fn)
	require.NoError(t, ir.Verify(fn))

	var foundPhi bool
	for _, v := range join.Values {
		if v.Op == ir.OpPhi {
			foundPhi = true
			assert.Len(t, v.Args, 2)
		}
	}
	assert.True(t, foundPhi)
}

func TestConstFoldsArithmetic(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.IntType(64), ir.VisibilityInternal)
	b := fn.NewBlock("entry")

	a := bd.ConstInt(b, 64, bignum.FromInt64(3))
	c := bd.ConstInt(b, 64, bignum.FromInt64(4))
	sum := bd.Arithmetic(b, ir.OpAdd, a, c)
	bd.Return(b, sum)

	changed := opt.ConstFold(fn)
	assert.True(t, changed)

	term := b.Terminator()
	require.Equal(t, ir.OpConstInt, term.Args[0].Op)
	n := term.Args[0].Sym.(bignum.Num)
	assert.Equal(t, 0, bignum.Cmp(n, bignum.FromInt64(7)))
}

func TestSimplifyCFGFoldsConstBranch(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.VoidType(), ir.VisibilityInternal)
	a := fn.NewBlock("a")
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")

	cond := bd.ConstInt(a, 1, bignum.FromInt64(1))
	bd.Branch(a, cond, thenB, elseB)
	bd.Return(thenB, nil)
	bd.Return(elseB, nil)

	changed := opt.SimplifyCFG(fn)
	assert.True(t, changed)
	assert.Equal(t, ir.OpGoto, a.Terminator().Op)
	assert.Len(t, elseB.Preds, 0)
}

func TestDCERemovesDeadValue(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.VoidType(), ir.VisibilityInternal)
	b := fn.NewBlock("entry")
	bd.ConstInt(b, 64, bignum.FromInt64(1)) // dead, unused
	bd.Return(b, nil)

	changed := opt.DCE(fn)
	assert.True(t, changed)
	assert.Len(t, b.Values, 1)
}
