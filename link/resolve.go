package link

import "debug/elf"

// LibraryResolver reports the set of function symbols a foreign
// library exports. The default ELFResolver answers this by reading the
// library's dynamic symbol table directly, the same information a
// runtime loader's symbol search would consult, without dlopen'ing the
// library — this module links to no C runtime, so actually loading and
// calling into the library is out of scope (spec.md's "dynamic
// bytecode linking into the host" Non-goal); only the build-time
// existence check in the linker contract's step 2 is implemented.
type LibraryResolver interface {
	Exports(path string) (map[string]bool, error)
}

type ELFResolver struct{}

func (ELFResolver) Exports(path string) (map[string]bool, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	syms, err := f.DynamicSymbols()
	if err != nil {
		return nil, err
	}
	exports := make(map[string]bool, len(syms))
	for _, s := range syms {
		if s.Name == "" || s.Section == elf.SHN_UNDEF {
			continue
		}
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		exports[s.Name] = true
	}
	return exports, nil
}

// hostResolver backs Options.HostSearch. Searching the running
// process's own dynamic symbols requires introspecting the host
// loader's link map, which this module does not attempt (same
// Non-goal as ELFResolver's doc comment) — it always reports no
// exports, so enabling HostSearch without any matching Library never
// resolves a symbol it wouldn't otherwise.
type hostResolver struct{}

func (hostResolver) Exports(string) (map[string]bool, error) {
	return nil, nil
}
