// Package mir implements the Machine IR of spec.md §3.2/§4.3: a
// register-and-memory-addressed form translated one-to-one-or-more
// from ir.Function, bytewidth-typed rather than ir's structural
// types, consumed by regalloc (which replaces virtual registers with
// hardware indices) and then by asm.
//
// Grounded on falcon's compile/codegen/lir.go (Instruction/IOperand/
// Register/Addr/Imm shape, LIROp enumeration, three-operand-form
// comment), generalized from lir.go's fixed x86 LIRType byte-widths
// and getCondLirOp/getCondJumpLirOp mapping onto the spec's own
// register-file model (bytewidth registers, 4-tuple addressing,
// phi/select preserved into MIR) instead of x86 operands.
package mir

import "fmt"

// Op enumerates the MIR instruction variants of spec.md §3.2.
type Op int

const (
	OpMovRR Op = iota // reg <- reg
	OpMovRI           // reg <- immediate
	OpMovRM           // reg <- [mem]
	OpMovMR           // [mem] <- reg
	OpCMov            // conditional move
	OpLea             // reg <- address computation
	OpArithRR         // reg <- reg op reg
	OpArithRM         // reg <- reg op [mem]
	OpCompare         // flags <- reg cmp reg
	OpTest            // flags <- reg test reg
	OpSet             // reg <- flags satisfy condition
	OpConvert         // reg <- convert(reg)
	OpJump            // unconditional jump
	OpCondJump        // conditional jump on flags
	OpCallInternal    // call a Function by direct reference
	OpCallForeign     // call an unresolved/foreign symbol
	OpCallRegister    // call through a register-held address
	OpCallMemory      // call through a memory-indirect address
	OpReturn
	OpLISP // stack increment/decrement ("LISP" per spec.md §3.2)
	OpPhi
	OpSelect
)

func (op Op) String() string {
	switch op {
	case OpMovRR:
		return "mov.rr"
	case OpMovRI:
		return "mov.ri"
	case OpMovRM:
		return "mov.rm"
	case OpMovMR:
		return "mov.mr"
	case OpCMov:
		return "cmov"
	case OpLea:
		return "lea"
	case OpArithRR:
		return "arith.rr"
	case OpArithRM:
		return "arith.rm"
	case OpCompare:
		return "cmp"
	case OpTest:
		return "test"
	case OpSet:
		return "set"
	case OpConvert:
		return "conv"
	case OpJump:
		return "jmp"
	case OpCondJump:
		return "jcc"
	case OpCallInternal:
		return "call"
	case OpCallForeign:
		return "call.foreign"
	case OpCallRegister:
		return "call.reg"
	case OpCallMemory:
		return "call.mem"
	case OpReturn:
		return "ret"
	case OpLISP:
		return "lisp"
	case OpPhi:
		return "phi"
	case OpSelect:
		return "select"
	}
	return "<unknown mir op>"
}

// ArithKind names the arithmetic operator carried by an
// OpArithRR/OpArithRM instruction's Sym field.
type ArithKind int

const (
	ArithAdd ArithKind = iota
	ArithSub
	ArithMul
	ArithSDiv
	ArithUDiv
	ArithSRem
	ArithURem
	ArithFAdd
	ArithFSub
	ArithFMul
	ArithFDiv
	ArithLShL
	ArithLShR
	ArithAShL
	ArithAShR
	ArithAnd
	ArithOr
	ArithXOr
)

// Condition names the relation tested by OpSet/OpCMov/OpCondJump.
type Condition int

const (
	CondLess Condition = iota
	CondLessEq
	CondGreater
	CondGreaterEq
	CondEqual
	CondNotEqual
)

// Register is a bytewidth-sized virtual register before allocation, or
// a hardware register index after. Mirrors falcon's lir.go Register
// (Index/Virtual/Type), dropping the x86-only Name/Affinity/IsHigh
// fields this target has no use for.
type Register struct {
	Width   int // bytes: 1, 2, 4, or 8
	Index   int
	Virtual bool
	Float   bool
}

func (r Register) String() string {
	if r.Virtual {
		return fmt.Sprintf("v%d", r.Index)
	}
	return fmt.Sprintf("r%d", r.Index)
}

// Addr is the 4-tuple memory addressing model of spec.md §3.2:
// base + offset_reg*offset_factor + offset_term.
type Addr struct {
	Base         Register
	HasOffsetReg bool
	OffsetReg    Register
	OffsetFactor uint8
	OffsetTerm   uint8
}

// Imm is an immediate operand.
type Imm struct {
	Width int
	Value uint64
}

// Operand is satisfied by Register, Addr, Imm, *Block (jump/phi
// targets), *ir.Function (direct call targets), and string (foreign
// call symbol names).
type Operand interface{}

// Instruction is one MIR instruction: a destination register (absent
// for stores/jumps/returns), its operands, and an op-specific payload.
type Instruction struct {
	Op   Op
	Dst  *Register
	Args []Operand
	Sym  any
}

func (in *Instruction) String() string {
	s := in.Op.String()
	if in.Dst != nil {
		s += " " + in.Dst.String() + ","
	}
	for i, a := range in.Args {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%v", a)
	}
	return s
}

// Block is an ordered instruction sequence with CFG edges, mirroring
// ir.Block's shape one level down the pipeline.
type Block struct {
	Name         string
	Instructions []*Instruction
	Succs        []*Block
	Preds        []*Block
}

// Function owns an ordered block list, its virtual-register-typed
// parameters, and the register count regalloc must fit into hardware
// registers.
type Function struct {
	Name         string
	Blocks       []*Block
	Params       []Register
	Entry        *Block
	NumVRegs     int
	NumHWRegs    int // set by regalloc once allocation completes
	// IRSource identifies the ir.Function this was lowered from, as an
	// opaque key: asm uses it to resolve OpCallInternal's *ir.Function
	// callee reference against the right mir.Function once every
	// function in the module has been lowered.
	IRSource any
	ArgRegOffset int // register index the caller's arguments start at
}

// DataEntry is one statically-allocated blob in the module's data
// section, addressed by byte offset from the section's start.
type DataEntry struct {
	Offset int
	Bytes  []byte
}

// AddressPlaceholder records a binary offset that must be patched once
// fn's final code offset is known, per spec.md §3.2's "address-
// placeholder list of (binary_offset, function) pairs".
type AddressPlaceholder struct {
	BinaryOffset int
	Function     *Function
}

// Module owns the lowered functions, the data section, and the
// cross-reference patch list the assembler consumes.
type Module struct {
	Functions    []*Function
	Data         []DataEntry
	Placeholders []AddressPlaceholder
}
