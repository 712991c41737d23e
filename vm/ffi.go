package vm

import (
	"fmt"
	"math"

	"github.com/chrysante/scatha-sub006/link"
	"github.com/chrysante/scatha-sub006/vmem"
)

// ReturnAliasesArgSlotZero resolves spec.md §9's FFI open question:
// an FFI call's return value always replaces the argument occupying
// register slot 0 of the call, rather than writing to a separate
// return register, matching how OpReturn aliases the caller's slot 0.
const ReturnAliasesArgSlotZero = true

// BuiltinFunc implements one of link.BuiltinTable's entries: argBase
// is the register index the cfng/cbltn instruction's register-pointer
// offset names, i.e. the first argument's register within the current
// frame. The function reads its arguments starting there and, per
// ReturnAliasesArgSlotZero, writes its result back into argBase.
type BuiltinFunc func(vm *VM, argBase int) error

// DefaultBuiltins returns the builtin table in the exact order
// link.BuiltinTable enumerates its names, so a cbltn instruction's
// table index (assigned by link) indexes directly into this slice.
func DefaultBuiltins() []BuiltinFunc {
	return []BuiltinFunc{
		builtinSqrtF64,
		builtinSqrtF32,
		builtinPowF64,
		builtinAlloc,
		builtinDealloc,
		builtinExit,
		builtinPutchar,
		builtinGetchar,
		builtinPrintI64,
		builtinPrintF64,
	}
}

func init() {
	if len(DefaultBuiltins()) != len(link.BuiltinTable) {
		panic(fmt.Sprintf("vm: builtin table has %d entries, link.BuiltinTable has %d", len(DefaultBuiltins()), len(link.BuiltinTable)))
	}
}

func builtinSqrtF64(vm *VM, argBase int) error {
	x := math.Float64frombits(vm.reg(argBase))
	vm.setReg(argBase, math.Float64bits(math.Sqrt(x)))
	return nil
}

func builtinSqrtF32(vm *VM, argBase int) error {
	x := math.Float32frombits(uint32(vm.reg(argBase)))
	vm.setReg(argBase, uint64(math.Float32bits(float32(math.Sqrt(float64(x))))))
	return nil
}

func builtinPowF64(vm *VM, argBase int) error {
	x := math.Float64frombits(vm.reg(argBase))
	y := math.Float64frombits(vm.reg(argBase + 1))
	vm.setReg(argBase, math.Float64bits(math.Pow(x, y)))
	return nil
}

func builtinAlloc(vm *VM, argBase int) error {
	size := vm.reg(argBase)
	align := vm.reg(argBase + 1)
	ptr, err := vm.Memory.Allocate(int(size), int(align))
	if err != nil {
		return err
	}
	raw, err := ptr.Pack()
	if err != nil {
		return err
	}
	vm.setReg(argBase, raw)
	return nil
}

func builtinDealloc(vm *VM, argBase int) error {
	ptr := vmem.Unpack(vm.reg(argBase))
	size := vm.reg(argBase + 1)
	align := vm.reg(argBase + 2)
	return vm.Memory.Deallocate(ptr, int(size), int(align))
}

func builtinExit(vm *VM, argBase int) error {
	vm.ExitCode = int64(vm.reg(argBase))
	vm.Exited = true
	return nil
}

func builtinPutchar(vm *VM, argBase int) error {
	ch := byte(vm.reg(argBase))
	_, err := vm.Stdout.Write([]byte{ch})
	return err
}

func builtinGetchar(vm *VM, argBase int) error {
	var b [1]byte
	n, err := vm.Stdin.Read(b[:])
	if n == 0 || err != nil {
		vm.setReg(argBase, ^uint64(0)) // EOF: -1 sign-extended
		return nil
	}
	vm.setReg(argBase, uint64(b[0]))
	return nil
}

func builtinPrintI64(vm *VM, argBase int) error {
	_, err := fmt.Fprintf(vm.Stdout, "%d", int64(vm.reg(argBase)))
	return err
}

func builtinPrintF64(vm *VM, argBase int) error {
	_, err := fmt.Fprintf(vm.Stdout, "%g", math.Float64frombits(vm.reg(argBase)))
	return err
}

// ForeignFunc is the trampoline shape a resolved foreign symbol is
// invoked through once link has supplied its address; the host binds
// these explicitly (there is no dlopen step in this module, see
// link/resolve.go), so an unbound index is always a configuration
// error rather than a silent no-op.
type ForeignFunc func(vm *VM, argBase int) error
