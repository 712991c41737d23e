package link

// BuiltinTable is the fixed, ordered table step 1 of the linker
// contract assigns `__builtin_`-prefixed symbols a stable slot index
// from. Grounded on original_source's svm-lib/OpCode.cc builtin
// dispatch naming; the retrieved original_source has no concrete
// Builtin.h enumeration, so this table's contents are supplied rather
// than transcribed: a small math/alloc/exit/console-I/O surface
// sufficient for the kind of programs the rest of this pipeline
// compiles.
var BuiltinTable = []string{
	"__builtin_sqrt_f64",
	"__builtin_sqrt_f32",
	"__builtin_pow_f64",
	"__builtin_alloc",
	"__builtin_dealloc",
	"__builtin_exit",
	"__builtin_putchar",
	"__builtin_getchar",
	"__builtin_print_i64",
	"__builtin_print_f64",
}

var builtinIndex = func() map[string]uint16 {
	m := make(map[string]uint16, len(BuiltinTable))
	for i, name := range BuiltinTable {
		m[name] = uint16(i)
	}
	return m
}()

// LookupBuiltin reports name's slot index in BuiltinTable, if any.
func LookupBuiltin(name string) (uint16, bool) {
	idx, ok := builtinIndex[name]
	return idx, ok
}
