// Package asm implements spec.md §4.5's assembler contract: consume
// an already register-allocated mir.Module and produce a contiguous
// byte buffer beginning with an isa.ProgramHeader, a table of
// (binary_offset, symbol) pairs for every call to a still-unresolved
// foreign symbol, and a symbol table mapping function names to binary
// offsets. Every internal jump/call target is patched in-place once
// every function's final offset is known.
//
// Grounded on falcon's compile/codegen/asm_x86.go (IOperand-to-text
// emission, per-instruction suffix dispatch, two-phase "compute
// operand, then emit" shape) generalized from an AT&T-syntax text
// buffer to the binary isa encoding, since this target has no
// assembler-as-a-separate-program step to hand text to.
package asm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ccoveille/go-safecast"
	"github.com/sirupsen/logrus"

	"github.com/chrysante/scatha-sub006/ir"
	"github.com/chrysante/scatha-sub006/isa"
	"github.com/chrysante/scatha-sub006/mir"
)

var log = logrus.WithField("stage", "asm")

// UnresolvedCall is one (binary_offset, symbol) pair spec.md §4.5(b)
// describes: the offset of the 2-byte FFI/builtin index field inside
// a cfng instruction, and the foreign symbol name link must resolve.
type UnresolvedCall struct {
	Offset int
	Name   string
}

// Program is the assembled output: the full byte buffer (header
// included), the unresolved-call table, and the function symbol
// table, ready for link.Link.
type Program struct {
	Code       []byte
	Unresolved []UnresolvedCall
	Symbols    map[string]int
}

// placeholderIndex is written into a cfng/cbltn instruction's 16-bit
// table-index field until link patches it, per spec.md §4.5 step 1
// ("patch the two placeholder bytes (0xFF 0xFF)").
const placeholderIndex = 0xFFFF

// Assemble lays out every function in mod back-to-back in the order
// given, preceded by mod's data section, and returns the assembled
// Program. entryName names the function the resulting ProgramHeader's
// EntryPoint field points at.
func Assemble(mod *mir.Module, entryName string) (*Program, error) {
	dataSize := 0
	for _, d := range mod.Data {
		if end := d.Offset + len(d.Bytes); end > dataSize {
			dataSize = end
		}
	}

	irToMIR := make(map[*ir.Function]*mir.Function, len(mod.Functions))
	for _, fn := range mod.Functions {
		if src, ok := fn.IRSource.(*ir.Function); ok {
			irToMIR[src] = fn
		}
	}

	// Pass 1: size every instruction to learn each block's and
	// function's final offset, without emitting any bytes yet — the
	// relative jump/call targets computed in pass 2 depend on offsets
	// that are not all known until pass 1 finishes.
	sizer := &pass{irToMIR: irToMIR}
	funcOffset := make(map[*mir.Function]int, len(mod.Functions))
	blockOffset := make(map[*mir.Block]int)
	offset := isa.HeaderSize + dataSize
	for _, fn := range mod.Functions {
		funcOffset[fn] = offset
		for bi, b := range fn.Blocks {
			blockOffset[b] = offset
			for ii, in := range b.Instructions {
				last := ii == len(b.Instructions)-1
				ops, _, err := sizer.translate(in, fallsThrough(fn, bi, last, in))
				if err != nil {
					return nil, err
				}
				for _, o := range ops {
					offset += isa.Size(o)
				}
			}
		}
	}

	entry, ok := int64(-1), false
	for _, fn := range mod.Functions {
		if fn.Name == entryName {
			entry, ok = int64(funcOffset[fn]), true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("asm: entry function %q not found", entryName)
	}

	buf := new(bytes.Buffer)
	buf.Write(make([]byte, isa.HeaderSize+dataSize))
	code := buf.Bytes()
	for _, d := range mod.Data {
		copy(code[isa.HeaderSize+d.Offset:], d.Bytes)
	}

	// Pass 2: re-walk in the same order, now emitting real bytes;
	// every offset referenced below was already fixed by pass 1.
	p := &Program{Symbols: make(map[string]int, len(mod.Functions))}
	emitter := &pass{irToMIR: irToMIR, funcOffset: funcOffset, blockOffset: blockOffset, out: buf}
	for _, fn := range mod.Functions {
		p.Symbols[fn.Name] = funcOffset[fn]
		for bi, b := range fn.Blocks {
			for ii, in := range b.Instructions {
				last := ii == len(b.Instructions)-1
				instrStart := buf.Len()
				_, unresolved, err := emitter.translate(in, fallsThrough(fn, bi, last, in))
				if err != nil {
					return nil, err
				}
				for _, u := range unresolved {
					u.Offset += instrStart
					p.Unresolved = append(p.Unresolved, u)
				}
			}
		}
	}

	p.Code = buf.Bytes()
	header := isa.NewProgramHeader(uint64(entry), uint64(len(p.Code)-isa.HeaderSize))
	copy(p.Code, header.Encode())
	log.WithFields(logrus.Fields{
		"entry":      entryName,
		"functions":  len(mod.Functions),
		"codeSize":   header.CodeSize,
		"unresolved": len(p.Unresolved),
	}).Debug("assembled module")
	return p, nil
}

// fallsThrough reports whether in (the last instruction of fn's bi'th
// block) is a conditional jump whose else-target is precisely the
// block laid out immediately afterward, letting translate skip
// emitting a redundant unconditional jump to it.
func fallsThrough(fn *mir.Function, bi int, last bool, in *mir.Instruction) bool {
	if !last || in.Op != mir.OpCondJump || bi+1 >= len(fn.Blocks) {
		return false
	}
	els := in.Args[1].(*mir.Block)
	return els == fn.Blocks[bi+1]
}

// pass implements one walk over every instruction: in sizing mode
// (out == nil) it returns only the chosen opcodes (so the caller can
// sum isa.Size); in emission mode it writes real bytes to out and
// returns the unresolved-call records produced, with offsets relative
// to the start of this instruction (the caller rebases them).
type pass struct {
	irToMIR     map[*ir.Function]*mir.Function
	funcOffset  map[*mir.Function]int
	blockOffset map[*mir.Block]int
	out         *bytes.Buffer
}

func (p *pass) emitting() bool { return p.out != nil }

func (p *pass) reg(r mir.Register) (byte, error) {
	if r.Virtual {
		return 0, fmt.Errorf("asm: register %v was never allocated", r)
	}
	b, err := safecast.ToUint8(r.Index)
	if err != nil {
		return 0, fmt.Errorf("asm: register index out of range: %w", err)
	}
	return b, nil
}

// addr encodes a mir.Addr as its four-byte wire form. a.Base may be
// the reserved regalloc.FrameRegisterIndex sentinel (spill slots are
// always addressed this way), encoded as isa.FrameBaseByte rather than
// run through the ordinary hardware-register bounds check.
func (p *pass) addr(a mir.Addr) ([]byte, error) {
	var base byte
	var err error
	if a.Base.Index == frameRegisterIndex && !a.Base.Virtual {
		base = isa.FrameBaseByte
	} else {
		base, err = p.reg(a.Base)
		if err != nil {
			return nil, err
		}
	}
	idx := isa.NoIndexByte
	if a.HasOffsetReg {
		idx, err = p.reg(a.OffsetReg)
		if err != nil {
			return nil, err
		}
	}
	return []byte{base, idx, a.OffsetFactor, a.OffsetTerm}, nil
}

// frameRegisterIndex mirrors regalloc.FrameRegisterIndex; duplicated
// as an untyped constant here rather than imported, since asm has no
// other reason to depend on regalloc and the two packages only need
// to agree on this one sentinel value.
const frameRegisterIndex = -1

// rel32 computes the displacement isa.IsRelativeJump opcodes encode,
// relative to the end of the 4-byte displacement field, i.e. the
// offset of the next instruction (called after the opcode byte has
// already been written, before the displacement itself is). vm's
// dispatch loop adds the displacement to that same position, so a
// taken branch always lands exactly on the target block's first
// instruction.
func (p *pass) rel32(target int) (int32, error) {
	fieldStart := p.out.Len()
	return int32(target - (fieldStart + 4)), nil
}

func (p *pass) u8(b byte)              { p.out.WriteByte(b) }
func (p *pass) bytes(b []byte)         { p.out.Write(b) }
func (p *pass) u16(v uint16)           { binary.Write(p.out, binary.LittleEndian, v) }
func (p *pass) u32(v uint32)           { binary.Write(p.out, binary.LittleEndian, v) }
func (p *pass) u64(v uint64)           { binary.Write(p.out, binary.LittleEndian, v) }
func (p *pass) i32(v int32)            { binary.Write(p.out, binary.LittleEndian, v) }

// translate handles one instruction, either just choosing opcodes
// (sizing) or choosing and emitting them (emission). fallsThrough is
// only meaningful for OpCondJump: true when the else-target block is
// laid out immediately after this instruction, letting translate skip
// the redundant unconditional jump.
func (p *pass) translate(in *mir.Instruction, fallsThrough bool) (ops []isa.Opcode, unresolved []UnresolvedCall, err error) {
	emit1op := func(op isa.Opcode, payload func() error) error {
		ops = append(ops, op)
		if !p.emitting() {
			return nil
		}
		p.u8(byte(op))
		if payload != nil {
			return payload()
		}
		return nil
	}

	switch in.Op {
	case mir.OpMovRI:
		imm := in.Args[0].(mir.Imm)
		return ops, nil, emit1op(isa.OpMov64RV, func() error {
			dst, err := p.reg(*in.Dst)
			if err != nil {
				return err
			}
			p.u8(dst)
			p.u64(imm.Value)
			return nil
		})

	case mir.OpMovRR:
		src, ok := in.Args[0].(mir.Register)
		if !ok {
			return nil, nil, fmt.Errorf("asm: mov.rr with non-register source")
		}
		if src.Index == in.Dst.Index && !src.Virtual && !in.Dst.Virtual {
			return ops, nil, nil // self-move, regalloc should have dropped this already
		}
		return ops, nil, emit1op(isa.OpMov64RR, func() error {
			dst, err := p.reg(*in.Dst)
			if err != nil {
				return err
			}
			srcB, err := p.reg(src)
			if err != nil {
				return err
			}
			p.u8(dst)
			p.u8(srcB)
			return nil
		})

	case mir.OpMovRM:
		addr := in.Args[0].(mir.Addr)
		return ops, nil, emit1op(movRMOpcode(in.Dst.Width), func() error {
			dst, err := p.reg(*in.Dst)
			if err != nil {
				return err
			}
			p.u8(dst)
			a, err := p.addr(addr)
			if err != nil {
				return err
			}
			p.bytes(a)
			return nil
		})

	case mir.OpMovMR:
		addr := in.Args[0].(mir.Addr)
		src := in.Args[1].(mir.Register)
		return ops, nil, emit1op(movMROpcode(src.Width), func() error {
			a, err := p.addr(addr)
			if err != nil {
				return err
			}
			p.bytes(a)
			srcB, err := p.reg(src)
			if err != nil {
				return err
			}
			p.u8(srcB)
			return nil
		})

	case mir.OpLea:
		addr := in.Args[0].(mir.Addr)
		return ops, nil, emit1op(isa.OpLea, func() error {
			dst, err := p.reg(*in.Dst)
			if err != nil {
				return err
			}
			p.u8(dst)
			a, err := p.addr(addr)
			if err != nil {
				return err
			}
			p.bytes(a)
			return nil
		})

	case mir.OpArithRR:
		if kind, ok := in.Sym.(mir.ArithKind); ok {
			rhs := in.Args[1].(mir.Register)
			op := arithOpcode(kind, in.Dst.Width, false, false)
			return ops, nil, emit1op(op, func() error {
				dst, err := p.reg(*in.Dst)
				if err != nil {
					return err
				}
				rhsB, err := p.reg(rhs)
				if err != nil {
					return err
				}
				p.u8(dst)
				p.u8(rhsB)
				return nil
			})
		}
		// Unary: Sym carries the originating ir.Op (bitwise-not,
		// logical-not, negate); see lower.go's OpBitwiseNot/
		// OpLogicalNot/OpNegate case.
		switch in.Sym.(ir.Op) {
		case ir.OpBitwiseNot:
			return ops, nil, emit1op(isa.OpBNot, func() error { return p.emit1reg(*in.Dst) })
		case ir.OpLogicalNot:
			return ops, nil, emit1op(isa.OpLNot, func() error { return p.emit1reg(*in.Dst) })
		case ir.OpNegate:
			if in.Dst.Float {
				op := isa.OpFMulRV32
				if in.Dst.Width > 4 {
					op = isa.OpFMulRV64
				}
				return ops, nil, emit1op(op, func() error {
					dst, err := p.reg(*in.Dst)
					if err != nil {
						return err
					}
					p.u8(dst)
					if in.Dst.Width > 4 {
						p.u64(negativeOneBits(in.Dst.Width))
					} else {
						p.u32(uint32(negativeOneBits(in.Dst.Width)))
					}
					return nil
				})
			}
			return ops, nil, emit1op(negOpcode(in.Dst.Width), func() error { return p.emit1reg(*in.Dst) })
		default:
			return nil, nil, fmt.Errorf("asm: unhandled unary op %v", in.Sym)
		}

	case mir.OpCompare:
		mode := in.Sym.(ir.CompareMode)
		lhs := in.Args[0].(mir.Register)
		rhs := in.Args[1].(mir.Register)
		return ops, nil, emit1op(cmpOpcode(mode, lhs.Width), func() error {
			l, err := p.reg(lhs)
			if err != nil {
				return err
			}
			r, err := p.reg(rhs)
			if err != nil {
				return err
			}
			p.u8(l)
			p.u8(r)
			return nil
		})

	case mir.OpTest:
		reg := in.Args[0].(mir.Register)
		width := reg.Width
		var op isa.Opcode
		switch width {
		case 1:
			op = isa.OpUTest8
		case 2:
			op = isa.OpUTest16
		case 4:
			op = isa.OpUTest32
		default:
			op = isa.OpUTest64
		}
		return ops, nil, emit1op(op, func() error { return p.emit1reg(reg) })

	case mir.OpSet:
		cond := in.Sym.(mir.Condition)
		return ops, nil, emit1op(setOpcode(cond), func() error { return p.emit1reg(*in.Dst) })

	case mir.OpCMov:
		cond := in.Sym.(mir.Condition)
		src := in.Args[0].(mir.Register)
		return ops, nil, emit1op(cmovOpcode(cond), func() error {
			dst, err := p.reg(*in.Dst)
			if err != nil {
				return err
			}
			s, err := p.reg(src)
			if err != nil {
				return err
			}
			p.u8(dst)
			p.u8(s)
			return nil
		})

	case mir.OpConvert:
		kind := in.Sym.(ir.ConversionSpec).Kind
		src := in.Args[0].(mir.Register)
		switch kind {
		case ir.ConvSignExt:
			op, needed := sextOpcode(src.Width)
			if !needed {
				return ops, nil, nil
			}
			return ops, nil, emit1op(op, func() error { return p.emit1reg(*in.Dst) })
		case ir.ConvZeroExt, ir.ConvTrunc, ir.ConvPointerReinterpret:
			// Every register is a uniform 8-byte slot; narrowing or
			// widening between two register-resident values needs no
			// instruction here (the width only matters again at the
			// next memory store, which already picks its own opcode).
			return ops, nil, nil
		case ir.ConvIntToFloat:
			return ops, nil, emit1op(intToFloatOpcode(src.Width, in.Dst.Width), func() error { return p.emit1reg(*in.Dst) })
		case ir.ConvFloatToInt:
			return ops, nil, emit1op(floatToIntOpcode(src.Width, in.Dst.Width), func() error { return p.emit1reg(*in.Dst) })
		case ir.ConvFloatExt:
			return ops, nil, emit1op(isa.OpFExt, func() error { return p.emit1reg(*in.Dst) })
		case ir.ConvFloatTrunc:
			return ops, nil, emit1op(isa.OpFTrunc, func() error { return p.emit1reg(*in.Dst) })
		}
		return nil, nil, fmt.Errorf("asm: unhandled conversion kind %v", kind)

	case mir.OpJump:
		target := in.Sym.(*mir.Block)
		ops = append(ops, isa.OpJmp)
		if !p.emitting() {
			return ops, nil, nil
		}
		p.u8(byte(isa.OpJmp))
		rel, err := p.rel32(p.blockOffset[target])
		if err != nil {
			return nil, nil, err
		}
		p.i32(rel)
		return ops, nil, nil

	case mir.OpCondJump:
		then := in.Args[0].(*mir.Block)
		els := in.Args[1].(*mir.Block)
		cond := in.Sym.(mir.Condition)
		jcc := jccOpcode(cond)
		ops = append(ops, jcc)
		if !fallsThrough {
			ops = append(ops, isa.OpJmp)
		}
		if !p.emitting() {
			return ops, nil, nil
		}
		p.u8(byte(jcc))
		rel, err := p.rel32(p.blockOffset[then])
		if err != nil {
			return nil, nil, err
		}
		p.i32(rel)
		if !fallsThrough {
			p.u8(byte(isa.OpJmp))
			rel, err := p.rel32(p.blockOffset[els])
			if err != nil {
				return nil, nil, err
			}
			p.i32(rel)
		}
		return ops, nil, nil

	case mir.OpCallInternal:
		callee := in.Args[0].(*ir.Function)
		ops = append(ops, isa.OpCall)
		if !p.emitting() {
			return ops, nil, nil
		}
		p.u8(byte(isa.OpCall))
		mfn, ok := p.irToMIR[callee]
		if !ok {
			return nil, nil, fmt.Errorf("asm: call to function %q never lowered", callee.Name)
		}
		rel, err := p.rel32(p.funcOffset[mfn])
		if err != nil {
			return nil, nil, err
		}
		p.i32(rel)
		return ops, nil, nil

	case mir.OpCallForeign:
		name := in.Args[0].(string)
		ops = append(ops, isa.OpCFng)
		if !p.emitting() {
			return ops, nil, nil
		}
		argReg := byte(0)
		if len(in.Args) > 1 {
			if r, ok := in.Args[1].(mir.Register); ok {
				var err error
				argReg, err = p.reg(r)
				if err != nil {
					return nil, nil, err
				}
			}
		}
		start := p.out.Len()
		p.u8(byte(isa.OpCFng))
		p.u8(argReg)
		idxOffset := p.out.Len() - start
		p.u16(placeholderIndex)
		return ops, []UnresolvedCall{{Offset: idxOffset, Name: name}}, nil

	case mir.OpCallRegister:
		reg := in.Args[0].(mir.Register)
		return ops, nil, emit1op(isa.OpICallR, func() error { return p.emit1reg(reg) })

	case mir.OpCallMemory:
		addr := in.Args[0].(mir.Addr)
		return ops, nil, emit1op(isa.OpICallM, func() error {
			a, err := p.addr(addr)
			if err != nil {
				return err
			}
			p.bytes(a)
			return nil
		})

	case mir.OpReturn:
		var moveFirst bool
		var retReg mir.Register
		if len(in.Args) > 0 {
			retReg = in.Args[0].(mir.Register)
			moveFirst = retReg.Index != 0
		}
		if moveFirst {
			ops = append(ops, isa.OpMov64RR)
		}
		ops = append(ops, isa.OpRet)
		if !p.emitting() {
			return ops, nil, nil
		}
		if moveFirst {
			p.u8(byte(isa.OpMov64RR))
			p.u8(0)
			r, err := p.reg(retReg)
			if err != nil {
				return nil, nil, err
			}
			p.u8(r)
		}
		p.u8(byte(isa.OpRet))
		return ops, nil, nil

	case mir.OpPhi:
		return nil, nil, fmt.Errorf("asm: phi survived register allocation")

	case mir.OpSelect:
		return nil, nil, fmt.Errorf("asm: select was not lowered away by mir.Lower")
	}
	return nil, nil, fmt.Errorf("asm: unhandled mir op %v", in.Op)
}

func (p *pass) emit1reg(r mir.Register) error {
	b, err := p.reg(r)
	if err != nil {
		return err
	}
	p.u8(b)
	return nil
}

// SortUnresolved orders a Program's unresolved-call table by binary
// offset descending, the walk direction spec.md §4.5 step 1 specifies
// ("reverse order, so earlier rewrites do not invalidate later
// positions").
func SortUnresolved(calls []UnresolvedCall) {
	sort.Slice(calls, func(i, j int) bool { return calls[i].Offset > calls[j].Offset })
}
