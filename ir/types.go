// Package ir implements the SSA-form intermediate representation:
// values, basic blocks, functions and modules, their def-use graph, and
// the dominator/loop analyses built on top of the CFG.
//
// The value/block/def-use plumbing is a direct generalization of
// falcon's compile/ssa package (Value.AddArg/RemoveUse/ReplaceUses,
// Block.WireTo/RemoveSucc/RemovePred): same shape, widened from
// falcon's fixed little-language Op set to the full instruction
// vocabulary and type system this specification requires.
package ir

import "fmt"

// Kind enumerates the IR type variants interned per-module.
type Kind int

const (
	KindVoid Kind = iota
	KindPointer
	KindInt
	KindFloat
	KindArray
	KindStruct
	KindFunction
)

// Type is a structurally-interned IR type. Equal types are
// pointer-identical once obtained from the same Context.
type Type struct {
	Kind Kind

	// KindInt
	IntWidth int // one of 1, 8, 16, 32, 64

	// KindFloat
	FloatWidth int // 32 or 64

	// KindArray
	ElemType *Type
	Count    int

	// KindStruct
	Name    string // empty for anonymous structs
	Members []*Type

	// KindFunction
	ArgTypes []*Type
	RetType  *Type
}

func (t *Type) String() string {
	switch t.Kind {
	case KindVoid:
		return "void"
	case KindPointer:
		return "ptr"
	case KindInt:
		return fmt.Sprintf("i%d", t.IntWidth)
	case KindFloat:
		return fmt.Sprintf("f%d", t.FloatWidth)
	case KindArray:
		return fmt.Sprintf("[%d x %v]", t.Count, t.ElemType)
	case KindStruct:
		if t.Name != "" {
			return t.Name
		}
		s := "{"
		for i, m := range t.Members {
			if i > 0 {
				s += ", "
			}
			s += m.String()
		}
		return s + "}"
	case KindFunction:
		s := "("
		for i, a := range t.ArgTypes {
			if i > 0 {
				s += ", "
			}
			s += a.String()
		}
		return s + ") -> " + t.RetType.String()
	}
	return "<?type>"
}

// IsInt reports whether t is an integral type.
func (t *Type) IsInt() bool { return t.Kind == KindInt }

// IsBool reports whether t is i1, the result type of Compare/Branch.
func (t *Type) IsBool() bool { return t.Kind == KindInt && t.IntWidth == 1 }

// IsFloat reports whether t is a floating point type.
func (t *Type) IsFloat() bool { return t.Kind == KindFloat }

// IsPointer reports whether t is the opaque pointer type.
func (t *Type) IsPointer() bool { return t.Kind == KindPointer }

// structKey is the interning key for anonymous structs.
type structKey struct {
	name    string
	members string
}

// Context owns the type interner and constant pool for one module. Its
// lifetime equals the module's; equality of types and constants
// produced from the same Context is pointer equality.
type Context struct {
	voidTy  *Type
	ptrTy   *Type
	ints    map[int]*Type
	floats  map[int]*Type
	arrays  map[[2]any]*Type
	structs map[string]*Type
	fns     map[string]*Type
}

// NewContext returns a fresh, empty interning context.
func NewContext() *Context {
	return &Context{
		ints:    make(map[int]*Type),
		floats:  make(map[int]*Type),
		arrays:  make(map[[2]any]*Type),
		structs: make(map[string]*Type),
		fns:     make(map[string]*Type),
	}
}

// VoidType returns the interned void type.
func (c *Context) VoidType() *Type {
	if c.voidTy == nil {
		c.voidTy = &Type{Kind: KindVoid}
	}
	return c.voidTy
}

// PointerType returns the interned opaque pointer type.
func (c *Context) PointerType() *Type {
	if c.ptrTy == nil {
		c.ptrTy = &Type{Kind: KindPointer}
	}
	return c.ptrTy
}

// IntType returns the interned integral type of the given bit width
// (one of 1, 8, 16, 32, 64).
func (c *Context) IntType(width int) *Type {
	if t, ok := c.ints[width]; ok {
		return t
	}
	t := &Type{Kind: KindInt, IntWidth: width}
	c.ints[width] = t
	return t
}

// FloatType returns the interned float type of the given bit width (32
// or 64).
func (c *Context) FloatType(width int) *Type {
	if t, ok := c.floats[width]; ok {
		return t
	}
	t := &Type{Kind: KindFloat, FloatWidth: width}
	c.floats[width] = t
	return t
}

// ArrayType returns the interned array type of elem x count.
func (c *Context) ArrayType(elem *Type, count int) *Type {
	key := [2]any{elem, count}
	if t, ok := c.arrays[key]; ok {
		return t
	}
	t := &Type{Kind: KindArray, ElemType: elem, Count: count}
	c.arrays[key] = t
	return t
}

// StructType returns the interned struct type with the given name
// (empty for anonymous) and ordered member types.
func (c *Context) StructType(name string, members []*Type) *Type {
	key := name
	if name == "" {
		for _, m := range members {
			key += m.String() + ","
		}
	}
	if t, ok := c.structs[key]; ok {
		return t
	}
	t := &Type{Kind: KindStruct, Name: name, Members: members}
	c.structs[key] = t
	return t
}

// FunctionType returns the interned function type.
func (c *Context) FunctionType(args []*Type, ret *Type) *Type {
	key := ret.String() + "("
	for _, a := range args {
		key += a.String() + ","
	}
	key += ")"
	if t, ok := c.fns[key]; ok {
		return t
	}
	t := &Type{Kind: KindFunction, ArgTypes: args, RetType: ret}
	c.fns[key] = t
	return t
}
