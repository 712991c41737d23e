package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/bignum"
	"github.com/chrysante/scatha-sub006/ir"
	"github.com/chrysante/scatha-sub006/mir"
	"github.com/chrysante/scatha-sub006/regalloc"
)

func TestAllocateAssignsDisjointRegisters(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.IntType(64), ir.VisibilityInternal)
	b := fn.NewBlock("entry")

	a := bd.ConstInt(b, 64, bignum.FromInt64(1))
	c := bd.ConstInt(b, 64, bignum.FromInt64(2))
	sum := bd.Arithmetic(b, ir.OpAdd, a, c)
	d := bd.ConstInt(b, 64, bignum.FromInt64(3))
	prod := bd.Arithmetic(b, ir.OpMul, sum, d)
	bd.Return(b, prod)

	mfn := mir.Lower(fn)
	regalloc.Allocate(mfn, regalloc.DefaultHardwareRegisters)

	assert.Greater(t, mfn.NumHWRegs, 0)
	for _, in := range mfn.Blocks[0].Instructions {
		if in.Dst != nil {
			assert.False(t, in.Dst.Virtual)
		}
		for _, arg := range in.Args {
			if r, ok := arg.(mir.Register); ok {
				assert.False(t, r.Virtual)
			}
		}
	}
}

func TestAllocateEliminatesPhis(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("f", m.Context.IntType(64), ir.VisibilityInternal)
	entry := fn.NewBlock("entry")
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")
	join := fn.NewBlock("join")

	cond := bd.ConstInt(entry, 1, bignum.FromInt64(1))
	bd.Branch(entry, cond, thenB, elseB)

	ten := bd.ConstInt(thenB, 64, bignum.FromInt64(10))
	bd.Goto(thenB, join)
	twenty := bd.ConstInt(elseB, 64, bignum.FromInt64(20))
	bd.Goto(elseB, join)

	phi := bd.Phi(join, m.Context.IntType(64))
	phi.AddArg(ten, twenty)
	bd.Return(join, phi)

	mfn := mir.Lower(fn)
	regalloc.Allocate(mfn, regalloc.DefaultHardwareRegisters)

	for _, b := range mfn.Blocks {
		for _, in := range b.Instructions {
			assert.NotEqual(t, mir.OpPhi, in.Op)
		}
	}
	require.Len(t, mfn.Blocks, 4)
}
