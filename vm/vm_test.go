package vm_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/isa"
	"github.com/chrysante/scatha-sub006/link"
	"github.com/chrysante/scatha-sub006/vm"
)

// program is a tiny hand-assembled byte-buffer builder, standing in
// for asm.Assemble in tests that only need to drive the VM's decode
// loop directly rather than exercise the ir/mir/asm pipeline (already
// covered by asm's own tests).
type program struct {
	buf bytes.Buffer
}

func (p *program) op(op isa.Opcode)   { p.buf.WriteByte(byte(op)) }
func (p *program) u8(b byte)          { p.buf.WriteByte(b) }
func (p *program) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	p.buf.Write(b[:])
}
func (p *program) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	p.buf.Write(b[:])
}
func (p *program) i32(v int32) { p.u32(uint32(v)) }

func (p *program) build(entry uint64) []byte {
	code := p.buf.Bytes()
	header := isa.NewProgramHeader(entry, uint64(len(code)))
	return append(header.Encode(), code...)
}

func TestRunArithmeticProgram(t *testing.T) {
	var p program
	p.op(isa.OpMov64RV)
	p.u8(0)
	p.u64(5)
	p.op(isa.OpMov64RV)
	p.u8(1)
	p.u64(7)
	p.op(isa.OpAddRR64)
	p.u8(0)
	p.u8(1)
	p.op(isa.OpTerminate)

	code := p.build(uint64(isa.HeaderSize))
	m, err := vm.New(code)
	require.NoError(t, err)
	require.NoError(t, m.Run())

	assert.True(t, m.Exited)
	assert.Equal(t, uint64(12), m.Registers[0])
}

func TestRunDivisionByZeroRaisesRuntimeException(t *testing.T) {
	var p program
	p.op(isa.OpMov64RV)
	p.u8(0)
	p.u64(10)
	p.op(isa.OpMov64RV)
	p.u8(1)
	p.u64(0)
	p.op(isa.OpSDivRR64)
	p.u8(0)
	p.u8(1)
	p.op(isa.OpTerminate)

	code := p.build(uint64(isa.HeaderSize))
	m, err := vm.New(code)
	require.NoError(t, err)

	err = m.Run()
	require.Error(t, err)
	var rte *vm.RuntimeException
	require.ErrorAs(t, err, &rte)
	assert.ErrorIs(t, rte, vm.ErrDivisionByZero)
}

func TestRunConditionalJumpSkipsFalseBranch(t *testing.T) {
	var p program
	p.op(isa.OpMov64RV)
	p.u8(0)
	p.u64(1)
	p.op(isa.OpUTest64)
	p.u8(0)

	jneField := p.buf.Len() + 1
	p.op(isa.OpJNE)
	p.i32(0) // patched below

	p.op(isa.OpMov64RV) // skipped when the branch is taken
	p.u8(1)
	p.u64(111)
	p.op(isa.OpTerminate)

	target := p.buf.Len()
	p.op(isa.OpMov64RV)
	p.u8(1)
	p.u64(222)
	p.op(isa.OpTerminate)

	code := p.buf.Bytes()
	binary.LittleEndian.PutUint32(code[jneField:], uint32(int32(target-(jneField+4))))

	full := append(isa.NewProgramHeader(uint64(isa.HeaderSize), uint64(len(code))).Encode(), code...)
	m, err := vm.New(full)
	require.NoError(t, err)
	require.NoError(t, m.Run())

	assert.Equal(t, uint64(222), m.Registers[1])
}

func TestRunCallForeignBuiltinExit(t *testing.T) {
	var p program
	p.op(isa.OpMov64RV)
	p.u8(0)
	p.u64(42)
	idx, ok := link.LookupBuiltin("__builtin_exit")
	require.True(t, ok)
	p.op(isa.OpCBltn)
	p.u8(0)
	var idxBytes [2]byte
	binary.LittleEndian.PutUint16(idxBytes[:], idx)
	p.buf.Write(idxBytes[:])

	code := p.build(uint64(isa.HeaderSize))
	m, err := vm.New(code)
	require.NoError(t, err)
	require.NoError(t, m.Run())

	assert.True(t, m.Exited)
	assert.Equal(t, int64(42), m.ExitCode)
}

func TestRunCallInternalReturnsToCaller(t *testing.T) {
	var p program
	p.op(isa.OpCall)
	callField := p.buf.Len()
	p.i32(0) // patched below
	p.op(isa.OpTerminate)

	calleeStart := p.buf.Len()
	p.op(isa.OpMov64RV)
	p.u8(0)
	p.u64(99)
	p.op(isa.OpRet)

	code := p.buf.Bytes()
	binary.LittleEndian.PutUint32(code[callField:], uint32(int32(calleeStart-(callField+4))))

	full := append(isa.NewProgramHeader(uint64(isa.HeaderSize), uint64(len(code))).Encode(), code...)
	m, err := vm.New(full)
	require.NoError(t, err)
	require.NoError(t, m.Run())

	assert.True(t, m.Exited)
}
