// Package link implements the linker contract of spec.md §4.5: given
// an asm.Program's unresolved-symbol table, assign each symbol a
// builtin-slot or foreign-function index, patch the placeholder bytes
// asm left behind, append a dynamic-link section describing every
// still-foreign function, and update the program header's total size.
//
// Grounded on original_source/lib/Assembly/Linker.cc's
// FFIAddress/AddressFactory/Linker shapes: the builtin-vs-foreign
// split and the reverse-order patch walk are carried over directly;
// the actual foreign-library resolution step is reimplemented against
// debug/elf rather than utl::dynamic_library (see resolve.go).
package link

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chrysante/scatha-sub006/asm"
	"github.com/chrysante/scatha-sub006/isa"
)

var log = logrus.WithField("stage", "link")

// foreignSlot is the fixed FFIAddress slot every non-builtin symbol is
// assigned, mirroring the original's `static constexpr size_t FFSlot = 2`.
const foreignSlot = 2

// ForeignSignature supplies one foreign symbol's call shape. asm's
// UnresolvedCall only carries the bare symbol name, so link has no
// other source for the argument/return type descriptors the
// dynamic-link section must record.
type ForeignSignature struct {
	Args   []isa.TypeDescriptor
	Return isa.TypeDescriptor
}

// Signatures maps a foreign symbol name to its call shape. A symbol
// with no entry is recorded with zero arguments and a void return.
type Signatures map[string]ForeignSignature

// Options configures one Link call.
type Options struct {
	// Libraries is the ordered list of foreign-library paths searched
	// for each still-unresolved symbol, step 2 of the linker contract.
	Libraries []string
	// Signatures supplies call shapes for the dynamic-link section.
	Signatures Signatures
	// HostSearch enables step 3, searching the host process's own
	// dynamic symbols once every supplied library has been tried.
	HostSearch bool
	// Resolver overrides how a library's exports are discovered;
	// nil defaults to ELFResolver.
	Resolver LibraryResolver
}

// LinkerError is returned when any foreign function remains
// unresolved after every library (and, if enabled, the host) has been
// searched — step 6 of the linker contract.
type LinkerError struct {
	Missing []string
}

func (e *LinkerError) Error() string {
	names := make([]string, len(e.Missing))
	for i, n := range e.Missing {
		names[i] = fmt.Sprintf("undefined reference to %q", n)
	}
	return "link: " + strings.Join(names, "; ")
}

type foreignFunction struct {
	name  string
	sig   ForeignSignature
	index uint16
}

type libraryGroup struct {
	name      string
	functions []foreignFunction
}

// Link resolves prog's unresolved-symbol table against opts and
// returns the complete, self-contained binary: prog.Code with every
// placeholder patched and the dynamic-link section appended.
func Link(prog *asm.Program, opts Options) ([]byte, error) {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = ELFResolver{}
	}

	code := append([]byte(nil), prog.Code...)

	calls := append([]asm.UnresolvedCall(nil), prog.Unresolved...)
	asm.SortUnresolved(calls)

	var foreign []foreignFunction
	ffIndex := uint16(0)
	for _, u := range calls {
		if u.Offset < 2 || u.Offset+2 > len(code) {
			return nil, fmt.Errorf("link: unresolved call at offset %d out of range", u.Offset)
		}
		if idx, ok := LookupBuiltin(u.Name); ok {
			code[u.Offset-2] = byte(isa.OpCBltn)
			binary.LittleEndian.PutUint16(code[u.Offset:], idx)
			continue
		}
		binary.LittleEndian.PutUint16(code[u.Offset:], ffIndex)
		foreign = append(foreign, foreignFunction{
			name:  u.Name,
			sig:   opts.Signatures[u.Name],
			index: ffIndex,
		})
		ffIndex++
	}

	groups, missing, err := resolveLibraries(foreign, opts, resolver)
	if err != nil {
		return nil, errors.Wrap(err, "link")
	}
	if len(missing) > 0 {
		log.WithField("missing", missing).Warn("link failed: undefined symbols")
		return nil, &LinkerError{Missing: missing}
	}

	code = append(code, encodeLinkSection(groups)...)

	header, err := isa.DecodeProgramHeader(code)
	if err != nil {
		return nil, errors.Wrap(err, "link: re-reading header")
	}
	header.TotalSize = uint64(len(code))
	copy(code, header.Encode())
	log.WithFields(logrus.Fields{
		"builtins": len(calls) - len(foreign),
		"foreign":  len(foreign),
		"libs":     len(groups),
	}).Debug("link complete")
	return code, nil
}

func resolveLibraries(foreign []foreignFunction, opts Options, resolver LibraryResolver) ([]libraryGroup, []string, error) {
	remaining := make(map[string]foreignFunction, len(foreign))
	for _, f := range foreign {
		remaining[f.name] = f
	}

	var groups []libraryGroup
	for _, path := range opts.Libraries {
		exports, err := resolver.Exports(path)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "reading exports of %s", path)
		}
		g := libraryGroup{name: libraryBaseName(path)}
		for name, f := range remaining {
			if exports[name] {
				g.functions = append(g.functions, f)
				delete(remaining, name)
			}
		}
		if len(g.functions) > 0 {
			sort.Slice(g.functions, func(i, j int) bool { return g.functions[i].index < g.functions[j].index })
			groups = append(groups, g)
		}
	}

	if opts.HostSearch && len(remaining) > 0 {
		host := hostResolver{}
		exports, _ := host.Exports("")
		g := libraryGroup{name: ""}
		for name, f := range remaining {
			if exports[name] {
				g.functions = append(g.functions, f)
				delete(remaining, name)
			}
		}
		if len(g.functions) > 0 {
			sort.Slice(g.functions, func(i, j int) bool { return g.functions[i].index < g.functions[j].index })
			groups = append(groups, g)
		}
	}

	var missing []string
	for name := range remaining {
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return groups, missing, nil
}

func libraryBaseName(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".so")
	base = strings.TrimPrefix(base, "lib")
	return base
}

// encodeLinkSection serializes groups per the linker contract's step
// 4: library count; per library, null-terminated name, function
// count, then per function a null-terminated symbol name, its
// argument-type descriptors, its return-type descriptor, and its FFI
// (slot, index) address.
func encodeLinkSection(groups []libraryGroup) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(len(groups)))
	for _, g := range groups {
		buf.WriteString(g.name)
		buf.WriteByte(0)
		binary.Write(buf, binary.LittleEndian, uint32(len(g.functions)))
		for _, f := range g.functions {
			buf.WriteString(f.name)
			buf.WriteByte(0)
			buf.WriteByte(byte(len(f.sig.Args)))
			for _, a := range f.sig.Args {
				buf.Write(a.Encode())
			}
			buf.Write(f.sig.Return.Encode())
			binary.Write(buf, binary.LittleEndian, uint32(foreignSlot))
			binary.Write(buf, binary.LittleEndian, uint32(f.index))
		}
	}
	return buf.Bytes()
}
