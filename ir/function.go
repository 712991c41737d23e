package ir

import "fmt"

// Visibility controls whether a Function/GlobalVariable is reachable
// from outside its module.
type Visibility int

const (
	VisibilityInternal Visibility = iota
	VisibilityExternal
)

// Function owns an ordered list of basic blocks (the first is the
// entry block), a list of parameter Values, a return type, a
// visibility, and a name unique within its module. Cached analyses are
// invalidated on any CFG edit via invalidateAnalyses.
//
// Mirrors falcon's compile/ssa.Func (globalValueId/globalBlockId
// counters, NewBlock/RemoveBlock), generalized with parameters, a
// return type, and a Context pointer for the type system §4.1
// requires.
type Function struct {
	Module     *Module
	Name       string
	Visibility Visibility
	RetType    *Type
	Params     []*Value // Op == OpParam
	Blocks     []*Block
	Entry      *Block

	nextVal   int
	nextBlk   int
	nameGen   map[string]int

	domTree *DomTree // lazily computed, see domtree.go
	lnf     *LoopTree
}

// NewFunction creates an empty function; call NewBlock to add the
// entry block.
func NewFunction(m *Module, name string, retType *Type) *Function {
	fn := &Function{
		Module:  m,
		Name:    name,
		RetType: retType,
		nameGen: make(map[string]int),
	}
	return fn
}

func (fn *Function) nextValueID() int {
	id := fn.nextVal
	fn.nextVal++
	return id
}

// NewValueID allocates and returns a fresh value ID unique within fn,
// for callers outside this package (e.g. opt's inliner) constructing
// Values directly instead of through Block.NewValue.
func (fn *Function) NewValueID() int { return fn.nextValueID() }

// UniqueName returns desired, suffixed with a disambiguating counter if
// it collides with a name already handed out in this function. Per
// §4.1/§9: "Name uniqueness is enforced by a per-function name
// factory; callers pass desired names and receive possibly-suffixed
// unique ones."
func (fn *Function) UniqueName(desired string) string {
	if desired == "" {
		desired = "v"
	}
	n, seen := fn.nameGen[desired]
	if !seen {
		fn.nameGen[desired] = 1
		return desired
	}
	for {
		candidate := fmt.Sprintf("%s.%d", desired, n)
		if _, taken := fn.nameGen[candidate]; !taken {
			fn.nameGen[desired] = n + 1
			fn.nameGen[candidate] = 1
			return candidate
		}
		n++
	}
}

// AddParam appends a new parameter value of type t.
func (fn *Function) AddParam(name string, t *Type) *Value {
	p := &Value{ID: fn.nextValueID(), Op: OpParam, Type: t, Name: fn.UniqueName(name)}
	fn.Params = append(fn.Params, p)
	return p
}

// NewBlock appends a fresh block to fn; the first block created
// becomes the entry block.
func (fn *Function) NewBlock(name string) *Block {
	b := &Block{Func: fn, ID: fn.nextBlk, Name: name}
	fn.nextBlk++
	fn.Blocks = append(fn.Blocks, b)
	if fn.Entry == nil {
		fn.Entry = b
	}
	fn.invalidateAnalyses()
	return b
}

// RemoveBlock detaches block from fn, clearing all of its values'
// operands first so def-use linkage stays correct.
func (fn *Function) RemoveBlock(block *Block) {
	for i, b := range fn.Blocks {
		if b == block {
			fn.Blocks = append(fn.Blocks[:i], fn.Blocks[i+1:]...)
			break
		}
	}
	for i := len(block.Values) - 1; i >= 0; i-- {
		block.RemoveValue(block.Values[i])
	}
	fn.invalidateAnalyses()
}

// InsertBlockAfter inserts newBlock into fn's block order immediately
// after after, without touching any CFG edges (callers wire edges
// separately). Used by critical-edge splitting and loop rotation.
func (fn *Function) InsertBlockAfter(after, newBlock *Block) {
	for i, b := range fn.Blocks {
		if b == after {
			fn.Blocks = append(fn.Blocks[:i+1], append([]*Block{newBlock}, fn.Blocks[i+1:]...)...)
			fn.invalidateAnalyses()
			return
		}
	}
	fn.Blocks = append(fn.Blocks, newBlock)
	fn.invalidateAnalyses()
}

// invalidateAnalyses drops the cached dominator tree and loop-nesting
// forest; called by every CFG-mutating API per §4.1/§9 "Lazy analyses
// with explicit invalidation".
func (fn *Function) invalidateAnalyses() {
	fn.domTree = nil
	fn.lnf = nil
	for _, b := range fn.Blocks {
		b.domCache = nil
	}
}

func (fn *Function) String() string {
	s := fmt.Sprintf("func %s(", fn.Name)
	for i, p := range fn.Params {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%%%s %v", p.Name, p.Type)
	}
	s += fmt.Sprintf(") -> %v {\n", fn.RetType)
	for _, b := range fn.Blocks {
		s += b.String()
	}
	return s + "}\n"
}
