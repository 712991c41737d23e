package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/bignum"
	"github.com/chrysante/scatha-sub006/ir"
)

func buildDiamond(t *testing.T) *ir.Function {
	m := ir.NewModule("test")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("diamond", m.Context.IntType(64), ir.VisibilityInternal)
	entry := fn.NewBlock("entry")
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")
	join := fn.NewBlock("join")

	c1 := bd.ConstInt(entry, 64, bignum.FromInt64(1))
	cond := bd.Compare(entry, ir.CompareSigned, ir.CmpEqual, c1, c1)
	bd.Branch(entry, cond, thenB, elseB)

	v1 := bd.ConstInt(thenB, 64, bignum.FromInt64(10))
	bd.Goto(thenB, join)
	v2 := bd.ConstInt(elseB, 64, bignum.FromInt64(20))
	bd.Goto(elseB, join)

	phi := bd.Phi(join, m.Context.IntType(64))
	phi.AddArg(v1)
	phi.AddArg(v2)
	bd.Return(join, phi)

	require.Equal(t, 2, len(join.Preds))
	return fn
}

func TestVerifyWellFormed(t *testing.T) {
	fn := buildDiamond(t)
	err := ir.Verify(fn)
	assert.NoError(t, err)
}

func TestReplaceUsesLeavesNoUsers(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.VoidType(), ir.VisibilityInternal)
	b := fn.NewBlock("entry")
	a := bd.ConstInt(b, 32, bignum.FromInt64(1))
	c := bd.ConstInt(b, 32, bignum.FromInt64(2))
	add := bd.Arithmetic(b, ir.OpAdd, a, c)
	bd.Return(b, add)

	repl := bd.ConstInt(b, 32, bignum.FromInt64(99))
	add.ReplaceUses(repl)
	assert.Empty(t, add.Uses)
	assert.Contains(t, repl.Uses, b.Terminator())
}

func TestDomTree(t *testing.T) {
	fn := buildDiamond(t)
	dt := ir.BuildDomTree(fn)
	entry := fn.Blocks[0]
	join := fn.Blocks[3]
	assert.True(t, dt.Dominates(entry, join))
	assert.False(t, dt.Dominates(fn.Blocks[1], join))
}

func TestLoopDetection(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("loopfn", m.Context.VoidType(), ir.VisibilityInternal)
	entry := fn.NewBlock("entry")
	header := fn.NewBlock("header")
	body := fn.NewBlock("body")
	exit := fn.NewBlock("exit")

	bd.Goto(entry, header)
	c := bd.ConstInt(header, 1, bignum.FromInt64(1))
	bd.Branch(header, c, body, exit)
	bd.Goto(body, header)
	bd.Return(exit, nil)

	lt := ir.BuildLoopTree(fn)
	require.Len(t, lt.Loops, 1)
	assert.Equal(t, header, lt.Loops[0].Header)
	assert.Equal(t, body, lt.Loops[0].Tail)
}

func TestSplitCriticalEdge(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.VoidType(), ir.VisibilityInternal)
	a := fn.NewBlock("a")
	b := fn.NewBlock("b")
	c := fn.NewBlock("c")
	d := fn.NewBlock("d")

	cond := bd.ConstInt(a, 1, bignum.FromInt64(1))
	bd.Branch(a, cond, b, c)
	bd.Goto(b, d)
	bd.Goto(c, d)
	bd.Return(d, nil)

	nb := ir.SplitCriticalEdge(fn, a, d)
	assert.Nil(t, nb, "a->d is not an edge at all, nothing to split")

	nb2 := ir.SplitCriticalEdge(fn, b, d)
	assert.Nil(t, nb2, "d has only its own single predecessor slot from b; not critical since b has one successor")
}
