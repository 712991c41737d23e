package mir

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/chrysante/scatha-sub006/bignum"
	"github.com/chrysante/scatha-sub006/ir"
)

var log = logrus.WithField("stage", "mir")

// byteWidth reports the MIR register width an ir.Type occupies.
// Aggregates larger than a register (structs, arrays) are addressed
// by an 8-byte pointer-sized handle rather than split into per-member
// registers. Lowering never expands an aggregate into per-member
// moves: only the OpGEP case computes member offsets, and
// ExtractValue/InsertValue have no lowering case.
func byteWidth(t *ir.Type) int {
	switch t.Kind {
	case ir.KindInt:
		if t.IntWidth <= 8 {
			return 1
		}
		return t.IntWidth / 8
	case ir.KindFloat:
		return t.FloatWidth / 8
	default:
		return 8
	}
}

func arithKindOf(op ir.Op) (ArithKind, bool) {
	switch op {
	case ir.OpAdd:
		return ArithAdd, true
	case ir.OpSub:
		return ArithSub, true
	case ir.OpMul:
		return ArithMul, true
	case ir.OpSDiv:
		return ArithSDiv, true
	case ir.OpUDiv:
		return ArithUDiv, true
	case ir.OpSRem:
		return ArithSRem, true
	case ir.OpURem:
		return ArithURem, true
	case ir.OpFAdd:
		return ArithFAdd, true
	case ir.OpFSub:
		return ArithFSub, true
	case ir.OpFMul:
		return ArithFMul, true
	case ir.OpFDiv:
		return ArithFDiv, true
	case ir.OpLShL:
		return ArithLShL, true
	case ir.OpLShR:
		return ArithLShR, true
	case ir.OpAShL:
		return ArithAShL, true
	case ir.OpAShR:
		return ArithAShR, true
	case ir.OpAnd:
		return ArithAnd, true
	case ir.OpOr:
		return ArithOr, true
	case ir.OpXOr:
		return ArithXOr, true
	}
	return 0, false
}

func condOf(op ir.CompareOp) Condition {
	switch op {
	case ir.CmpLess:
		return CondLess
	case ir.CmpLessEq:
		return CondLessEq
	case ir.CmpGreater:
		return CondGreater
	case ir.CmpGreaterEq:
		return CondGreaterEq
	case ir.CmpEqual:
		return CondEqual
	case ir.CmpNotEqual:
		return CondNotEqual
	}
	return CondEqual
}

// lowerer carries the per-function state of one ir.Function -> MIR
// translation: the IR value -> virtual register map and the parallel
// IR block -> MIR block map, mirroring falcon's codegen one-pass
// "visit every HIR value, emit LIR" walk (lower_x86.go), generalized
// from falcon's fixed x86 LIROp table to this target's own Op set.
type lowerer struct {
	irFn   *ir.Function
	mfn    *Function
	blocks map[*ir.Block]*Block
	regs   map[*ir.Value]Register
	nextV  int
}

// LowerModule lowers every function in m and lays out m's global
// variables as a contiguous, 16-byte-aligned data section, returning
// the whole-module unit asm.Assemble consumes. Global initializers
// that are themselves a compile-time constant are not yet folded into
// the section's bytes — every global is zero-initialized and real
// initialization happens via the entry function's first instructions
// (the same approach falcon takes for `.bss`-like statics, since it
// never emits a `.data` section with nonzero content either).
func LowerModule(m *ir.Module) *Module {
	log.WithField("functions", len(m.Functions)).Debug("lowering module to mir")
	mod := &Module{}
	offset := 0
	for _, g := range m.Globals {
		size := byteWidth(g.Type)
		if size%16 != 0 {
			size += 16 - size%16
		}
		mod.Data = append(mod.Data, DataEntry{Offset: offset, Bytes: make([]byte, size)})
		offset += size
	}
	for _, fn := range m.Functions {
		mod.Functions = append(mod.Functions, Lower(fn))
	}
	return mod
}

// Lower translates fn into its MIR form: one block per ir.Block
// (same CFG shape), one or more MIR instructions per ir.Value.
func Lower(fn *ir.Function) *Function {
	log.WithField("func", fn.Name).Debug("lowering function to mir")
	lw := &lowerer{
		irFn:   fn,
		mfn:    &Function{Name: fn.Name, IRSource: fn},
		blocks: make(map[*ir.Block]*Block),
		regs:   make(map[*ir.Value]Register),
	}
	for _, b := range fn.Blocks {
		name := b.Name
		if name == "" {
			name = fmt.Sprintf("bb%d", b.ID)
		}
		mb := &Block{Name: name}
		lw.blocks[b] = mb
		lw.mfn.Blocks = append(lw.mfn.Blocks, mb)
	}
	lw.mfn.Entry = lw.blocks[fn.Entry]
	for _, b := range fn.Blocks {
		mb := lw.blocks[b]
		for _, s := range b.Succs {
			mb.Succs = append(mb.Succs, lw.blocks[s])
		}
		for _, p := range b.Preds {
			mb.Preds = append(mb.Preds, lw.blocks[p])
		}
	}

	// Calls place arguments contiguously starting at a register-index
	// offset determined by the caller's live-register count; the
	// callee's own parameters occupy registers starting right after
	// that offset, so params are allocated first, at index 0..n, and
	// ArgRegOffset marks where the callee's own temporaries may begin.
	for _, p := range fn.Params {
		r := lw.newReg(byteWidth(p.Type), p.Type.IsFloat())
		lw.regs[p] = r
		lw.mfn.Params = append(lw.mfn.Params, r)
	}
	lw.mfn.ArgRegOffset = len(fn.Params)

	for _, b := range fn.Blocks {
		lw.lowerBlock(b)
	}
	lw.mfn.NumVRegs = lw.nextV
	return lw.mfn
}

func (lw *lowerer) newReg(width int, float bool) Register {
	r := Register{Width: width, Index: lw.nextV, Virtual: true, Float: float}
	lw.nextV++
	return r
}

func (lw *lowerer) regOf(v *ir.Value) Register {
	if r, ok := lw.regs[v]; ok {
		return r
	}
	float := v.Type != nil && v.Type.IsFloat()
	r := lw.newReg(byteWidth(v.Type), float)
	lw.regs[v] = r
	return r
}

func (lw *lowerer) emit(mb *Block, in *Instruction) {
	mb.Instructions = append(mb.Instructions, in)
}

func (lw *lowerer) lowerBlock(b *ir.Block) {
	mb := lw.blocks[b]
	for _, v := range b.Values {
		lw.lowerValue(mb, v)
	}
}

func (lw *lowerer) lowerValue(mb *Block, v *ir.Value) {
	switch v.Op {
	case ir.OpConstInt:
		n := v.Sym.(bignum.Num)
		dst := lw.regOf(v)
		lw.emit(mb, &Instruction{Op: OpMovRI, Dst: &dst, Args: []Operand{Imm{Width: dst.Width, Value: n.Uint64()}}})

	case ir.OpConstFloat:
		f := v.Sym.(float64)
		dst := lw.regOf(v)
		lw.emit(mb, &Instruction{Op: OpMovRI, Dst: &dst, Args: []Operand{Imm{Width: dst.Width, Value: math.Float64bits(f)}}})

	case ir.OpConstNullPointer:
		dst := lw.regOf(v)
		lw.emit(mb, &Instruction{Op: OpMovRI, Dst: &dst, Args: []Operand{Imm{Width: 8, Value: 0}}})

	case ir.OpConstUndef:
		// no instruction emitted; the register is left uninitialized,
		// matching the IR-level semantics that undef may read as
		// anything.

	case ir.OpAlloca:
		// Stack slots are materialized by regalloc's spill-slot
		// allocator (§4.4), which owns the frame layout; lowering only
		// needs the destination register to exist so later Load/Store
		// lowering has somewhere to target.
		lw.regOf(v)

	case ir.OpLoad:
		dst := lw.regOf(v)
		addr := Addr{Base: lw.regOf(v.Args[0])}
		lw.emit(mb, &Instruction{Op: OpMovRM, Dst: &dst, Args: []Operand{addr}})

	case ir.OpStore:
		addr := Addr{Base: lw.regOf(v.Args[0])}
		lw.emit(mb, &Instruction{Op: OpMovMR, Args: []Operand{addr, lw.regOf(v.Args[1])}})

	case ir.OpGEP:
		dst := lw.regOf(v)
		spec := v.Sym.(ir.GEPSpec)
		disp := 0
		t := spec.InBoundsType
		for _, idx := range spec.MemberIndices {
			if t != nil && t.Kind == ir.KindStruct && idx < len(t.Members) {
				for _, m := range t.Members[:idx] {
					disp += byteWidth(m)
				}
				t = t.Members[idx]
			}
		}
		addr := Addr{Base: lw.regOf(v.Args[0]), OffsetTerm: uint8(disp)}
		if len(v.Args) > 1 {
			addr.HasOffsetReg = true
			addr.OffsetReg = lw.regOf(v.Args[1])
			if t != nil {
				addr.OffsetFactor = uint8(byteWidth(t))
			} else {
				addr.OffsetFactor = 1
			}
		}
		lw.emit(mb, &Instruction{Op: OpLea, Dst: &dst, Args: []Operand{addr}})

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpUDiv, ir.OpSRem, ir.OpURem,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv,
		ir.OpLShL, ir.OpLShR, ir.OpAShL, ir.OpAShR, ir.OpAnd, ir.OpOr, ir.OpXOr:
		kind, _ := arithKindOf(v.Op)
		dst := lw.regOf(v)
		lhs, rhs := lw.regOf(v.Args[0]), lw.regOf(v.Args[1])
		lw.emit(mb, &Instruction{Op: OpMovRR, Dst: &dst, Args: []Operand{lhs}})
		lw.emit(mb, &Instruction{Op: OpArithRR, Dst: &dst, Args: []Operand{dst, rhs}, Sym: kind})

	case ir.OpBitwiseNot, ir.OpLogicalNot, ir.OpNegate:
		dst := lw.regOf(v)
		operand := lw.regOf(v.Args[0])
		lw.emit(mb, &Instruction{Op: OpMovRR, Dst: &dst, Args: []Operand{operand}})
		lw.emit(mb, &Instruction{Op: OpArithRR, Dst: &dst, Args: []Operand{dst}, Sym: v.Op})

	case ir.OpCompare:
		spec := v.Sym.(ir.CompareSpec)
		dst := lw.regOf(v)
		lhs, rhs := lw.regOf(v.Args[0]), lw.regOf(v.Args[1])
		lw.emit(mb, &Instruction{Op: OpCompare, Args: []Operand{lhs, rhs}, Sym: spec.Mode})
		lw.emit(mb, &Instruction{Op: OpSet, Dst: &dst, Sym: condOf(spec.Op)})

	case ir.OpConversion:
		spec := v.Sym.(ir.ConversionSpec)
		dst := lw.regOf(v)
		src := lw.regOf(v.Args[0])
		lw.emit(mb, &Instruction{Op: OpConvert, Dst: &dst, Args: []Operand{src}, Sym: spec.Kind})

	case ir.OpPhi:
		dst := lw.regOf(v)
		in := &Instruction{Op: OpPhi, Dst: &dst}
		for _, a := range v.Args {
			in.Args = append(in.Args, lw.regOf(a))
		}
		lw.emit(mb, in)

	case ir.OpSelect:
		// Both arms are already-materialized SSA values (an arm that
		// reads memory was lowered to its own OpLoad earlier in this
		// same block and already occupies a register), so Select
		// always lowers to a plain conditional move: the
		// compare-and-branch fallback spec.md §4.3 describes only
		// matters for arms that are themselves memory operands, which
		// cannot occur once the IR is in SSA form.
		dst := lw.regOf(v)
		cond, then, els := v.Args[0], v.Args[1], v.Args[2]
		lw.emit(mb, &Instruction{Op: OpMovRR, Dst: &dst, Args: []Operand{lw.regOf(els)}})
		lw.emit(mb, &Instruction{Op: OpTest, Args: []Operand{lw.regOf(cond), lw.regOf(cond)}})
		lw.emit(mb, &Instruction{Op: OpCMov, Dst: &dst, Args: []Operand{lw.regOf(then)}, Sym: CondNotEqual})

	case ir.OpCall:
		lw.lowerCall(mb, v, OpCallInternal)

	case ir.OpForeignCall:
		lw.lowerCall(mb, v, OpCallForeign)

	case ir.OpGoto:
		target := v.Sym.(*ir.Block)
		lw.emit(mb, &Instruction{Op: OpJump, Sym: lw.blocks[target]})

	case ir.OpBranch:
		bt := v.Sym.(ir.BranchTargets)
		cond := lw.regOf(v.Args[0])
		lw.emit(mb, &Instruction{Op: OpTest, Args: []Operand{cond, cond}})
		lw.emit(mb, &Instruction{Op: OpCondJump, Args: []Operand{lw.blocks[bt.Then], lw.blocks[bt.Else]}, Sym: CondNotEqual})

	case ir.OpReturn:
		in := &Instruction{Op: OpReturn}
		if len(v.Args) > 0 {
			in.Args = append(in.Args, lw.regOf(v.Args[0]))
		}
		lw.emit(mb, in)
	}
}

// lowerCall emits a call instruction referencing the callee by the
// underlying ir.Function (for internal calls) or raw foreign symbol
// (for foreign calls); the reference stays symbolic here. asm resolves
// internal callees to relative call displacements once every function
// offset is known, and records foreign callees as UnresolvedCall
// entries that link patches; the module's Placeholders list is not
// filled.
func (lw *lowerer) lowerCall(mb *Block, v *ir.Value, op Op) {
	dst := lw.regOf(v)
	args := make([]Operand, 0, len(v.Args))
	if op == OpCallInternal {
		callee := v.Args[0].Sym.(*ir.Function)
		args = append(args, callee)
	} else {
		args = append(args, v.Args[0].Sym)
	}
	for _, a := range v.Args[1:] {
		args = append(args, lw.regOf(a))
	}
	in := &Instruction{Op: op, Args: args}
	if v.Type == nil || v.Type.Kind != ir.KindVoid {
		in.Dst = &dst
	}
	lw.emit(mb, in)
}
