package link_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/asm"
	"github.com/chrysante/scatha-sub006/isa"
	"github.com/chrysante/scatha-sub006/link"
)

// buildProgram lays out a header followed by one cfng instruction
// (opcode, arg-frame-offset byte, 0xFFFF placeholder) and returns the
// program plus the absolute offset of the placeholder's two bytes.
func buildProgram(name string) (*asm.Program, int) {
	instrStart := isa.HeaderSize
	code := make([]byte, instrStart+4)
	header := isa.NewProgramHeader(uint64(instrStart), 4)
	copy(code, header.Encode())
	code[instrStart] = byte(isa.OpCFng)
	code[instrStart+1] = 0
	code[instrStart+2] = 0xFF
	code[instrStart+3] = 0xFF
	idxOffset := instrStart + 2
	return &asm.Program{
		Code:       code,
		Unresolved: []asm.UnresolvedCall{{Offset: idxOffset, Name: name}},
		Symbols:    map[string]int{"main": instrStart},
	}, idxOffset
}

func TestLinkAssignsBuiltinSlotAndRewritesOpcode(t *testing.T) {
	prog, idxOffset := buildProgram("__builtin_exit")

	out, err := link.Link(prog, link.Options{})
	require.NoError(t, err)

	assert.Equal(t, isa.OpCBltn, isa.Opcode(out[idxOffset-2]))
	idx, ok := link.LookupBuiltin("__builtin_exit")
	require.True(t, ok)
	assert.Equal(t, idx, binary.LittleEndian.Uint16(out[idxOffset:]))

	header, err := isa.DecodeProgramHeader(out)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(out)), header.TotalSize)
}

func TestLinkReturnsErrorForMissingForeignSymbol(t *testing.T) {
	prog, _ := buildProgram("sqrt_external")

	_, err := link.Link(prog, link.Options{})
	require.Error(t, err)
	var linkErr *link.LinkerError
	require.ErrorAs(t, err, &linkErr)
	assert.Contains(t, linkErr.Missing, "sqrt_external")
}

type fakeResolver struct {
	exports map[string]bool
}

func (f fakeResolver) Exports(string) (map[string]bool, error) {
	return f.exports, nil
}

func TestLinkAppendsDynamicSectionForResolvedLibrary(t *testing.T) {
	prog, idxOffset := buildProgram("sqrt_external")

	out, err := link.Link(prog, link.Options{
		Libraries: []string{"libm.so"},
		Resolver:  fakeResolver{exports: map[string]bool{"sqrt_external": true}},
		Signatures: link.Signatures{
			"sqrt_external": {Return: isa.TypeDescriptor{Kind: isa.TypeFloat64}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, isa.OpCFng, isa.Opcode(out[idxOffset-2]))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(out[idxOffset:]))

	header, err := isa.DecodeProgramHeader(out)
	require.NoError(t, err)
	assert.Greater(t, header.TotalSize, header.CodeSize+uint64(isa.HeaderSize))
}
