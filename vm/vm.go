// Package vm executes an assembled program: the binary isa instruction
// stream a link.Link call produced. It owns no knowledge of ir/mir/asm
// at all — it only trusts the byte layouts isa.Size and isa's operand
// tables describe, exactly the boundary original_source draws between
// its compiler and its svm runtime.
//
// Grounded on original_source/lib/VM/OpCode.cc's dispatch shape
// (getPointer/compareRR/arithmeticRR-style template lambdas, one case
// per opcode, advancing iptr by codeSize(op) every iteration) and the
// pack's other_examples/robertodauria-ebpf-vm vm.go for the overall
// fetch/decode/execute loop (switch over a fixed-size instruction,
// register file and stack as flat arrays).
package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/chrysante/scatha-sub006/isa"
	"github.com/chrysante/scatha-sub006/regalloc"
	"github.com/chrysante/scatha-sub006/vmem"
)

var log = logrus.WithField("stage", "vm")

// frameReservedWords is the number of linkage slots call reserves below
// every callee's register window: the caller's register-pointer base,
// its stack pointer, and the return address.
const frameReservedWords = 3

// frameStride is the fixed number of registers call advances RegPtr by.
// original_source's call instruction carries a regOffset byte so each
// call site can size the callee's window exactly to what it needs
// (consumed by an allocReg the callee emits first); this module's
// asm/mir/regalloc pipeline never emits OpAllocReg or OpLincSP (every
// OpCallInternal lowers to a bare [opcode, rel32], confirmed by reading
// asm.go's mir.OpCallInternal case), so every call here instead reserves
// a window wide enough for regalloc's largest possible allocation.
// That's safe because regalloc.Allocate never assigns more than
// regalloc.DefaultHardwareRegisters hardware registers to one function.
const frameStride = regalloc.DefaultHardwareRegisters + frameReservedWords

// frameStackSize is the fixed number of spill-stack bytes reserved per
// call frame, for the same reason frameStride is fixed: nothing in the
// current pipeline emits an instruction that would let the VM size a
// frame's spill area dynamically per callee.
const frameStackSize = 512

// VM is one instance of a running program.
type VM struct {
	Code         []byte
	ProgramBreak int

	Registers []uint64
	RegPtr    int

	Stack    []byte
	StackPtr int

	IPtr  int
	Flags Flags

	Memory *vmem.VirtualMemory

	Builtins []BuiltinFunc
	Foreign  []ForeignFunc

	Stdout io.Writer
	Stdin  io.Reader

	Exited   bool
	ExitCode int64

	interrupted atomic.Bool
}

// New decodes program's header and prepares a VM ready to Run from its
// entry point, with one call frame's worth of registers and stack
// already reserved for the root call.
func New(program []byte) (*VM, error) {
	header, err := isa.DecodeProgramHeader(program)
	if err != nil {
		return nil, err
	}
	vm := &VM{
		Code:         program,
		ProgramBreak: isa.HeaderSize + int(header.CodeSize),
		Registers:    make([]uint64, frameStride),
		Stack:        make([]byte, frameStackSize),
		IPtr:         int(header.EntryPoint),
		Memory:       vmem.New(0),
		Builtins:     DefaultBuiltins(),
		Stdout:       io.Discard,
		Stdin:        eofReader{},
	}
	return vm, nil
}

// eofReader is the default Stdin: every read reports immediate EOF, so
// a program that never has its Stdin overridden by the host sees
// getchar() return -1 rather than blocking.
type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// Run executes instructions until the program exits (via the exit
// builtin or a root-frame ret) or a fault occurs.
func (vm *VM) Run() error {
	log.WithField("entry", vm.IPtr).Debug("starting execution")
	for !vm.Exited && vm.IPtr < vm.ProgramBreak {
		faultIPtr := vm.IPtr
		if err := vm.step(); err != nil {
			exc := &RuntimeException{IPtr: faultIPtr, Wrapped: err}
			log.WithField("iptr", faultIPtr).Warn(exc)
			return exc
		}
	}
	log.WithField("exitCode", vm.ExitCode).Debug("execution finished")
	return nil
}

// Step executes exactly one instruction and advances IPtr, without the
// Run loop's exit/fault wrapping. debugexec drives single-instruction
// and single-line stepping through this rather than through Run, per
// spec.md §4.8's "instruction-level single-stepping with a post-step
// callback" model.
func (vm *VM) Step() error {
	faultIPtr := vm.IPtr
	if err := vm.step(); err != nil {
		return &RuntimeException{IPtr: faultIPtr, Wrapped: err}
	}
	return nil
}

// InterruptExecution requests that a RunInterruptible loop return at
// the next per-instruction check, without advancing IPtr past the
// instruction about to execute. Safe to call from any goroutine.
func (vm *VM) InterruptExecution() {
	vm.interrupted.Store(true)
}

// RunInterruptible is Run's cooperative-cancellation sibling: it
// checks the interrupt flag once per instruction (the only suspension
// point spec.md §5 grants the host) and returns ErrInterrupted, wrapped
// in a RuntimeException, as soon as InterruptExecution has been called.
// debugexec's Executor uses this instead of Run so StopExecution and
// ToggleExecution can preempt a RunningIndef program between
// instructions rather than only at completion.
func (vm *VM) RunInterruptible() error {
	vm.interrupted.Store(false)
	for !vm.Exited && vm.IPtr < vm.ProgramBreak {
		if vm.interrupted.Load() {
			return &RuntimeException{IPtr: vm.IPtr, Wrapped: ErrInterrupted}
		}
		faultIPtr := vm.IPtr
		if err := vm.step(); err != nil {
			exc := &RuntimeException{IPtr: faultIPtr, Wrapped: err}
			log.WithField("iptr", faultIPtr).Warn(exc)
			return exc
		}
	}
	return nil
}

func (vm *VM) reg(i int) uint64 {
	return vm.Registers[vm.RegPtr+i]
}

func (vm *VM) setReg(i int, v uint64) {
	vm.Registers[vm.RegPtr+i] = v
}

func (vm *VM) ensureRegisters(n int) {
	for len(vm.Registers) < n {
		vm.Registers = append(vm.Registers, make([]uint64, len(vm.Registers))...)
	}
}

func (vm *VM) ensureStack(n int) {
	for len(vm.Stack) < n {
		vm.Stack = append(vm.Stack, make([]byte, len(vm.Stack))...)
	}
}

// readAddr decodes the 4-byte Addr at code[off:] (base, offsetReg,
// offsetFactor, offsetTerm) into the effective byte slice it names,
// sized at least width bytes. isa.FrameBaseByte resolves against vm's
// flat spill stack at StackPtr+offsetTerm (regalloc always spills with
// no offset register, so offsetFactor/offsetReg are unused in that
// case); any real register index resolves through vm.Memory, treating
// the register's value as a packed vmem.VirtualPointer.
func (vm *VM) readAddr(off int, width int) ([]byte, error) {
	base := vm.Code[off]
	offsetRegByte := vm.Code[off+1]
	factor := vm.Code[off+2]
	term := vm.Code[off+3]

	if base == isa.FrameBaseByte {
		start := vm.StackPtr + int(term)
		vm.ensureStack(start + width)
		return vm.Stack[start : start+width], nil
	}

	baseVal := vm.reg(int(base))
	if offsetRegByte != isa.NoIndexByte {
		baseVal += vm.reg(int(offsetRegByte)) * uint64(factor)
	}
	baseVal += uint64(term)
	ptr := vmem.Unpack(baseVal)
	return vm.Memory.Dereference(ptr, width)
}

func (vm *VM) step() error {
	op := isa.Opcode(vm.Code[vm.IPtr])
	next := vm.IPtr + isa.Size(op)

	switch op {
	case isa.OpTerminate:
		vm.Exited = true
		return nil

	case isa.OpCall:
		rel := int32(binary.LittleEndian.Uint32(vm.Code[vm.IPtr+1:]))
		target := vm.IPtr + 1 + 4 + int(rel)
		return vm.doCall(target, next)

	case isa.OpICallR:
		r := int(vm.Code[vm.IPtr+1])
		target := int(vm.reg(r))
		return vm.doCall(target, next)

	case isa.OpICallM:
		buf, err := vm.readAddr(vm.IPtr+1, 8)
		if err != nil {
			return err
		}
		target := int(binary.LittleEndian.Uint64(buf))
		return vm.doCall(target, next)

	case isa.OpRet:
		return vm.doRet()

	case isa.OpCFng, isa.OpCBltn:
		argReg := int(vm.Code[vm.IPtr+1])
		idx := binary.LittleEndian.Uint16(vm.Code[vm.IPtr+2:])
		argBase := vm.RegPtr + argReg
		vm.IPtr = next
		if op == isa.OpCBltn {
			if int(idx) >= len(vm.Builtins) {
				return fmt.Errorf("vm: builtin index %d out of range", idx)
			}
			return vm.Builtins[idx](vm, argBase)
		}
		if int(idx) >= len(vm.Foreign) {
			return fmt.Errorf("vm: foreign function index %d not bound", idx)
		}
		return vm.Foreign[idx](vm, argBase)

	case isa.OpAllocReg:
		n := int(binary.LittleEndian.Uint32(vm.Code[vm.IPtr+1:]))
		vm.ensureRegisters(vm.RegPtr + n)

	case isa.OpSetBrk:
		// Reserved for a bump-pointer allocator original_source's setBrk
		// manipulated directly; this module routes all allocation through
		// vmem.VirtualMemory instead, so setBrk is accepted and ignored.

	case isa.OpLincSP:
		n := int32(binary.LittleEndian.Uint32(vm.Code[vm.IPtr+1:]))
		if n%8 != 0 {
			return ErrUnalignedStack
		}
		newSP := vm.StackPtr + int(n)
		if newSP < 0 {
			return fmt.Errorf("vm: stack pointer underflow")
		}
		vm.ensureStack(newSP)
		vm.StackPtr = newSP

	case isa.OpMov64RR:
		dst, src := int(vm.Code[vm.IPtr+1]), int(vm.Code[vm.IPtr+2])
		vm.setReg(dst, vm.reg(src))

	case isa.OpMov64RV:
		dst := int(vm.Code[vm.IPtr+1])
		vm.setReg(dst, binary.LittleEndian.Uint64(vm.Code[vm.IPtr+2:]))

	case isa.OpMov8RM, isa.OpMov16RM, isa.OpMov32RM, isa.OpMov64RM:
		width := movWidth(op, true)
		dst := int(vm.Code[vm.IPtr+1])
		buf, err := vm.readAddr(vm.IPtr+2, width)
		if err != nil {
			return err
		}
		vm.setReg(dst, loadWidth(buf, width))

	case isa.OpMov8MR, isa.OpMov16MR, isa.OpMov32MR, isa.OpMov64MR:
		width := movWidth(op, false)
		buf, err := vm.readAddr(vm.IPtr+1, width)
		if err != nil {
			return err
		}
		src := int(vm.Code[vm.IPtr+1+4])
		storeWidth(buf, width, vm.reg(src))

	case isa.OpLea:
		dst := int(vm.Code[vm.IPtr+1])
		base := vm.Code[vm.IPtr+2]
		offsetRegByte := vm.Code[vm.IPtr+3]
		factor := vm.Code[vm.IPtr+4]
		term := vm.Code[vm.IPtr+5]
		if base == isa.FrameBaseByte {
			return fmt.Errorf("vm: lea of a frame-relative address is not supported")
		}
		val := vm.reg(int(base))
		if offsetRegByte != isa.NoIndexByte {
			val += vm.reg(int(offsetRegByte)) * uint64(factor)
		}
		val += uint64(term)
		vm.setReg(dst, val)

	case isa.OpCMovE, isa.OpCMovNE, isa.OpCMovL, isa.OpCMovLE, isa.OpCMovG, isa.OpCMovGE:
		if vm.Flags.satisfies(cmovCondition(op)) {
			dst, src := int(vm.Code[vm.IPtr+1]), int(vm.Code[vm.IPtr+2])
			vm.setReg(dst, vm.reg(src))
		}

	case isa.OpJmp:
		rel := int32(binary.LittleEndian.Uint32(vm.Code[vm.IPtr+1:]))
		vm.IPtr = vm.IPtr + 1 + 4 + int(rel)
		return nil

	case isa.OpJE, isa.OpJNE, isa.OpJL, isa.OpJLE, isa.OpJG, isa.OpJGE:
		rel := int32(binary.LittleEndian.Uint32(vm.Code[vm.IPtr+1:]))
		if vm.Flags.satisfies(jccCondition(op)) {
			vm.IPtr = vm.IPtr + 1 + 4 + int(rel)
			return nil
		}

	case isa.OpSCmp8, isa.OpSCmp16, isa.OpSCmp32, isa.OpSCmp64:
		l, r := int(vm.Code[vm.IPtr+1]), int(vm.Code[vm.IPtr+2])
		lv, rv := signedAtWidth(vm.reg(l), cmpWidth(op)), signedAtWidth(vm.reg(r), cmpWidth(op))
		vm.Flags = Flags{Less: lv < rv, Equal: lv == rv}

	case isa.OpUCmp8, isa.OpUCmp16, isa.OpUCmp32, isa.OpUCmp64:
		l, r := int(vm.Code[vm.IPtr+1]), int(vm.Code[vm.IPtr+2])
		lv, rv := unsignedAtWidth(vm.reg(l), cmpWidth(op)), unsignedAtWidth(vm.reg(r), cmpWidth(op))
		vm.Flags = Flags{Less: lv < rv, Equal: lv == rv}

	case isa.OpFCmp32:
		l, r := int(vm.Code[vm.IPtr+1]), int(vm.Code[vm.IPtr+2])
		lv, rv := math.Float32frombits(uint32(vm.reg(l))), math.Float32frombits(uint32(vm.reg(r)))
		vm.Flags = Flags{Less: lv < rv, Equal: lv == rv}

	case isa.OpFCmp64:
		l, r := int(vm.Code[vm.IPtr+1]), int(vm.Code[vm.IPtr+2])
		lv, rv := math.Float64frombits(vm.reg(l)), math.Float64frombits(vm.reg(r))
		vm.Flags = Flags{Less: lv < rv, Equal: lv == rv}

	case isa.OpSTest8, isa.OpSTest16, isa.OpSTest32, isa.OpSTest64:
		r := int(vm.Code[vm.IPtr+1])
		v := signedAtWidth(vm.reg(r), cmpWidth(op))
		vm.Flags = Flags{Less: v < 0, Equal: v == 0}

	case isa.OpUTest8, isa.OpUTest16, isa.OpUTest32, isa.OpUTest64:
		r := int(vm.Code[vm.IPtr+1])
		v := unsignedAtWidth(vm.reg(r), cmpWidth(op))
		vm.Flags = Flags{Equal: v == 0}

	case isa.OpSetE, isa.OpSetNE, isa.OpSetL, isa.OpSetLE, isa.OpSetG, isa.OpSetGE:
		dst := int(vm.Code[vm.IPtr+1])
		if vm.Flags.satisfies(setCondition(op)) {
			vm.setReg(dst, 1)
		} else {
			vm.setReg(dst, 0)
		}

	case isa.OpLNot:
		dst := int(vm.Code[vm.IPtr+1])
		if vm.reg(dst) == 0 {
			vm.setReg(dst, 1)
		} else {
			vm.setReg(dst, 0)
		}

	case isa.OpBNot:
		dst := int(vm.Code[vm.IPtr+1])
		vm.setReg(dst, ^vm.reg(dst))

	case isa.OpNeg8:
		dst := int(vm.Code[vm.IPtr+1])
		vm.setReg(dst, uint64(uint8(-int8(vm.reg(dst)))))
	case isa.OpNeg16:
		dst := int(vm.Code[vm.IPtr+1])
		vm.setReg(dst, uint64(uint16(-int16(vm.reg(dst)))))
	case isa.OpNeg32:
		dst := int(vm.Code[vm.IPtr+1])
		vm.setReg(dst, uint64(uint32(-int32(vm.reg(dst)))))
	case isa.OpNeg64:
		dst := int(vm.Code[vm.IPtr+1])
		vm.setReg(dst, uint64(-int64(vm.reg(dst))))

	default:
		if err := vm.stepArithOrConvert(op); err != nil {
			return err
		}
	}

	vm.IPtr = next
	return nil
}

func (vm *VM) doCall(target, returnTo int) error {
	newRegPtr := vm.RegPtr + frameStride
	vm.ensureRegisters(newRegPtr + frameStride)
	vm.Registers[newRegPtr-3] = uint64(vm.RegPtr)
	vm.Registers[newRegPtr-2] = uint64(vm.StackPtr)
	vm.Registers[newRegPtr-1] = uint64(returnTo)
	vm.RegPtr = newRegPtr
	vm.StackPtr += frameStackSize
	vm.ensureStack(vm.StackPtr + frameStackSize)
	vm.IPtr = target
	return nil
}

func (vm *VM) doRet() error {
	if vm.RegPtr == 0 {
		vm.Exited = true
		return nil
	}
	callerRegPtr := int(vm.Registers[vm.RegPtr-3])
	callerStackPtr := int(vm.Registers[vm.RegPtr-2])
	returnTo := int(vm.Registers[vm.RegPtr-1])
	vm.RegPtr = callerRegPtr
	vm.StackPtr = callerStackPtr
	vm.IPtr = returnTo
	return nil
}

func movWidth(op isa.Opcode, loadFromMem bool) int {
	if loadFromMem {
		switch op {
		case isa.OpMov8RM:
			return 1
		case isa.OpMov16RM:
			return 2
		case isa.OpMov32RM:
			return 4
		default:
			return 8
		}
	}
	switch op {
	case isa.OpMov8MR:
		return 1
	case isa.OpMov16MR:
		return 2
	case isa.OpMov32MR:
		return 4
	default:
		return 8
	}
}

func loadWidth(buf []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	default:
		return binary.LittleEndian.Uint64(buf)
	}
}

func storeWidth(buf []byte, width int, v uint64) {
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	default:
		binary.LittleEndian.PutUint64(buf, v)
	}
}

func cmpWidth(op isa.Opcode) int {
	switch op {
	case isa.OpSCmp8, isa.OpUCmp8, isa.OpSTest8, isa.OpUTest8:
		return 1
	case isa.OpSCmp16, isa.OpUCmp16, isa.OpSTest16, isa.OpUTest16:
		return 2
	case isa.OpSCmp32, isa.OpUCmp32, isa.OpSTest32, isa.OpUTest32:
		return 4
	default:
		return 8
	}
}

func signedAtWidth(v uint64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

func unsignedAtWidth(v uint64, width int) uint64 {
	switch width {
	case 1:
		return uint64(uint8(v))
	case 2:
		return uint64(uint16(v))
	case 4:
		return uint64(uint32(v))
	default:
		return v
	}
}

func cmovCondition(op isa.Opcode) Condition { return jccCondition(opCMovToJ(op)) }

func opCMovToJ(op isa.Opcode) isa.Opcode {
	switch op {
	case isa.OpCMovE:
		return isa.OpJE
	case isa.OpCMovNE:
		return isa.OpJNE
	case isa.OpCMovL:
		return isa.OpJL
	case isa.OpCMovLE:
		return isa.OpJLE
	case isa.OpCMovG:
		return isa.OpJG
	default:
		return isa.OpJGE
	}
}

func jccCondition(op isa.Opcode) Condition {
	switch op {
	case isa.OpJE:
		return CondEqual
	case isa.OpJNE:
		return CondNotEqual
	case isa.OpJL:
		return CondLess
	case isa.OpJLE:
		return CondLessEq
	case isa.OpJG:
		return CondGreater
	default:
		return CondGreaterEq
	}
}

func setCondition(op isa.Opcode) Condition {
	switch op {
	case isa.OpSetE:
		return CondEqual
	case isa.OpSetNE:
		return CondNotEqual
	case isa.OpSetL:
		return CondLess
	case isa.OpSetLE:
		return CondLessEq
	case isa.OpSetG:
		return CondGreater
	default:
		return CondGreaterEq
	}
}
