package ir

// GlobalVariable is a module-level storage location addressable from
// any function in the module.
type GlobalVariable struct {
	Name       string
	Type       *Type // the pointee type; the value itself is always a pointer
	Visibility Visibility
	Init       *Value // optional constant initializer
}

// Module owns a set of globally unique functions, global variables,
// and constants, plus the type-interning Context whose lifetime
// matches the module's. Mirrors the role falcon's compile package
// plays ad hoc (one Func per top-level decl, no shared owner); this
// type is new because falcon never modeled a whole-module container.
type Module struct {
	Context   *Context
	Name      string
	Functions []*Function
	Globals   []*GlobalVariable

	fnByName     map[string]*Function
	globalByName map[string]*GlobalVariable
}

// NewModule returns an empty module with a fresh type-interning
// Context.
func NewModule(name string) *Module {
	return &Module{
		Context:      NewContext(),
		Name:         name,
		fnByName:     make(map[string]*Function),
		globalByName: make(map[string]*GlobalVariable),
	}
}

// NewFunction creates and registers a new function in m.
func (m *Module) NewFunction(name string, retType *Type, visibility Visibility) *Function {
	fn := NewFunction(m, name, retType)
	fn.Visibility = visibility
	m.Functions = append(m.Functions, fn)
	m.fnByName[name] = fn
	return fn
}

// FunctionByName looks up a function by its module-unique name.
func (m *Module) FunctionByName(name string) *Function {
	return m.fnByName[name]
}

// NewGlobal creates and registers a new global variable in m.
func (m *Module) NewGlobal(name string, t *Type, visibility Visibility) *GlobalVariable {
	g := &GlobalVariable{Name: name, Type: t, Visibility: visibility}
	m.Globals = append(m.Globals, g)
	m.globalByName[name] = g
	return g
}

// GlobalByName looks up a global variable by its module-unique name.
func (m *Module) GlobalByName(name string) *GlobalVariable {
	return m.globalByName[name]
}
