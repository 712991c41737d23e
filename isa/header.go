package isa

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// headerMagic tags the start of every assembled program so vm/link can
// reject a file that is not one of ours before trusting its offsets.
var headerMagic = [4]byte{'s', 'c', 't', 'h'}

// FrameBaseByte is the reserved Addr.Base encoding meaning "relative
// to the current call frame", the binary-format counterpart of
// regalloc.FrameRegisterIndex. NoIndexByte marks an Addr with no
// offset register. Both sit above any real hardware register index
// DefaultHardwareRegisters can produce.
const (
	FrameBaseByte byte = 0xFE
	NoIndexByte   byte = 0xFF
)

// ProgramHeader is the fixed-size binary-format header spec.md §4.5
// describes the assembled buffer as "beginning with": a magic/version
// guard, the code section's size and entry offset, and the eventual
// total size once link appends the dynamic-link section (step 5).
type ProgramHeader struct {
	Magic      [4]byte
	Version    uint32
	EntryPoint uint64 // byte offset of the entry function's first instruction
	CodeSize   uint64 // size in bytes of everything asm emits after the header (code plus data section)
	TotalSize  uint64 // starts equal to CodeSize; link sets it to the full linked buffer length, header included
}

const HeaderSize = 4 + 4 + 8 + 8 + 8

const CurrentVersion = 1

// NewProgramHeader builds a header for a just-assembled buffer, before
// link has appended anything.
func NewProgramHeader(entryPoint, codeSize uint64) ProgramHeader {
	return ProgramHeader{
		Magic:      headerMagic,
		Version:    CurrentVersion,
		EntryPoint: entryPoint,
		CodeSize:   codeSize,
		TotalSize:  codeSize,
	}
}

// Encode writes h in little-endian binary form.
func (h ProgramHeader) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Write(h.Magic[:])
	binary.Write(buf, binary.LittleEndian, h.Version)
	binary.Write(buf, binary.LittleEndian, h.EntryPoint)
	binary.Write(buf, binary.LittleEndian, h.CodeSize)
	binary.Write(buf, binary.LittleEndian, h.TotalSize)
	return buf.Bytes()
}

// DecodeProgramHeader reads a header from the front of buf.
func DecodeProgramHeader(buf []byte) (ProgramHeader, error) {
	if len(buf) < HeaderSize {
		return ProgramHeader{}, fmt.Errorf("isa: buffer too small for a program header: %d bytes", len(buf))
	}
	var h ProgramHeader
	copy(h.Magic[:], buf[0:4])
	if h.Magic != headerMagic {
		return ProgramHeader{}, fmt.Errorf("isa: bad magic %q", h.Magic)
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	h.EntryPoint = binary.LittleEndian.Uint64(buf[8:16])
	h.CodeSize = binary.LittleEndian.Uint64(buf[16:24])
	h.TotalSize = binary.LittleEndian.Uint64(buf[24:32])
	return h, nil
}

// TypeKind is the one-byte tag of a recursive type descriptor used by
// the FFI argument/return encoding (spec.md §4.5 "Type descriptors").
type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypePointer
	TypeArray  // compound: u16 element count, then one recursive descriptor for the element type
	TypeStruct // compound: u16 member count, then one recursive descriptor per member
)

func (k TypeKind) IsCompound() bool {
	return k == TypeArray || k == TypeStruct
}

// TypeDescriptor is one node of the recursive FFI type tree.
type TypeDescriptor struct {
	Kind     TypeKind
	Elements []TypeDescriptor // populated only for compound kinds
}

// Encode serializes d depth-first: kind byte, then (for compound
// kinds) a u16 element count followed by each element's own encoding.
func (d TypeDescriptor) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(d.Kind))
	if d.Kind.IsCompound() {
		binary.Write(buf, binary.LittleEndian, uint16(len(d.Elements)))
		for _, e := range d.Elements {
			buf.Write(e.Encode())
		}
	}
	return buf.Bytes()
}

// DecodeTypeDescriptor reads one descriptor from the front of buf,
// returning it and the number of bytes consumed.
func DecodeTypeDescriptor(buf []byte) (TypeDescriptor, int, error) {
	if len(buf) < 1 {
		return TypeDescriptor{}, 0, fmt.Errorf("isa: empty type descriptor buffer")
	}
	kind := TypeKind(buf[0])
	if !kind.IsCompound() {
		return TypeDescriptor{Kind: kind}, 1, nil
	}
	if len(buf) < 3 {
		return TypeDescriptor{}, 0, fmt.Errorf("isa: truncated compound type descriptor")
	}
	count := binary.LittleEndian.Uint16(buf[1:3])
	n := 3
	d := TypeDescriptor{Kind: kind}
	for i := 0; i < int(count); i++ {
		elem, used, err := DecodeTypeDescriptor(buf[n:])
		if err != nil {
			return TypeDescriptor{}, 0, err
		}
		d.Elements = append(d.Elements, elem)
		n += used
	}
	return d, n, nil
}
