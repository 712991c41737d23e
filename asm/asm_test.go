package asm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/asm"
	"github.com/chrysante/scatha-sub006/bignum"
	"github.com/chrysante/scatha-sub006/ir"
	"github.com/chrysante/scatha-sub006/isa"
	"github.com/chrysante/scatha-sub006/mir"
	"github.com/chrysante/scatha-sub006/regalloc"
)

func buildAddFunction(m *ir.Module) *ir.Function {
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("add", m.Context.IntType(64), ir.VisibilityInternal)
	b := fn.NewBlock("entry")
	a := bd.ConstInt(b, 64, bignum.FromInt64(1))
	c := bd.ConstInt(b, 64, bignum.FromInt64(2))
	sum := bd.Arithmetic(b, ir.OpAdd, a, c)
	bd.Return(b, sum)
	return fn
}

func lowerAndAllocate(fn *ir.Function) *mir.Function {
	mfn := mir.Lower(fn)
	regalloc.Allocate(mfn, regalloc.DefaultHardwareRegisters)
	return mfn
}

func TestAssembleProducesHeaderAndSymbol(t *testing.T) {
	m := ir.NewModule("t")
	fn := buildAddFunction(m)
	mfn := lowerAndAllocate(fn)
	mod := &mir.Module{Functions: []*mir.Function{mfn}}

	prog, err := asm.Assemble(mod, "add")
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(prog.Code), isa.HeaderSize)
	header, err := isa.DecodeProgramHeader(prog.Code)
	require.NoError(t, err)
	assert.Equal(t, uint64(isa.HeaderSize), header.EntryPoint)
	assert.Equal(t, isa.HeaderSize, prog.Symbols["add"])
	assert.Empty(t, prog.Unresolved)
}

func TestAssembleCallInternalPatchesRelativeOffset(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)

	callee := m.NewFunction("callee", m.Context.IntType(64), ir.VisibilityInternal)
	cb := callee.NewBlock("entry")
	one := bd.ConstInt(cb, 64, bignum.FromInt64(1))
	bd.Return(cb, one)

	caller := m.NewFunction("caller", m.Context.IntType(64), ir.VisibilityInternal)
	cab := caller.NewBlock("entry")
	call := bd.Call(cab, callee)
	bd.Return(cab, call)

	mod := &mir.Module{
		Functions: []*mir.Function{lowerAndAllocate(callee), lowerAndAllocate(caller)},
	}

	prog, err := asm.Assemble(mod, "caller")
	require.NoError(t, err)
	assert.Contains(t, prog.Symbols, "callee")
	assert.Contains(t, prog.Symbols, "caller")
	assert.Empty(t, prog.Unresolved)
}

func TestAssembleForeignCallRecordsUnresolved(t *testing.T) {
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("main", m.Context.IntType(64), ir.VisibilityInternal)
	b := fn.NewBlock("entry")
	sym := &ir.Value{Op: ir.OpFunctionRef, Sym: "sqrt_f64"}
	b.NewValue(ir.OpForeignCall, m.Context.FloatType(64), sym)
	bd.Return(b, bd.ConstInt(b, 64, bignum.FromInt64(0)))

	mod := &mir.Module{Functions: []*mir.Function{lowerAndAllocate(fn)}}
	prog, err := asm.Assemble(mod, "main")
	require.NoError(t, err)
	require.Len(t, prog.Unresolved, 1)
	assert.Equal(t, "sqrt_f64", prog.Unresolved[0].Name)
}
