package main

import (
	"encoding/json"
	"os"

	"github.com/chrysante/scatha-sub006/asm"
)

// loadProgram reads an assembled-but-unlinked program from path. Every
// field of asm.Program is already JSON-safe (a byte slice, a slice of
// plain structs, a string-keyed map), so no bespoke wire format is
// needed the way §6's `.scir` serialized-IR format would require one
// (see DESIGN.md for why that format isn't built: nothing downstream
// of the frontend's AST/symbol table needs it without a frontend to
// produce it in the first place).
func loadProgram(path string) (*asm.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, invocationErrorf("opening %s: %w", path, err)
	}
	defer f.Close()
	var p asm.Program
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		return nil, invocationErrorf("decoding %s: %w", path, err)
	}
	return &p, nil
}

func saveProgram(path string, p *asm.Program) error {
	f, err := os.Create(path)
	if err != nil {
		return invocationErrorf("creating %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func loadBinary(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, invocationErrorf("opening %s: %w", path, err)
	}
	return b, nil
}

func saveBinary(path string, code []byte) error {
	if err := os.WriteFile(path, code, 0o644); err != nil {
		return invocationErrorf("writing %s: %w", path, err)
	}
	return nil
}
