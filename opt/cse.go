package opt

import (
	"fmt"

	"github.com/chrysante/scatha-sub006/bignum"
	"github.com/chrysante/scatha-sub006/ir"
)

func init() {
	Register("cse", CategorySimplification, CSE)
}

// pureValue reports whether v's identity is fully determined by its
// op/type/args/sym (no side effects, not control-flow-dependent), and
// so is a candidate for congruence-based value numbering.
func pureValue(v *ir.Value) bool {
	switch v.Op {
	case ir.OpConstInt, ir.OpConstFloat, ir.OpConstNullPointer, ir.OpConstUndef,
		ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpUDiv, ir.OpSRem, ir.OpURem,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv,
		ir.OpLShL, ir.OpLShR, ir.OpAShL, ir.OpAShR, ir.OpAnd, ir.OpOr, ir.OpXOr,
		ir.OpBitwiseNot, ir.OpLogicalNot, ir.OpNegate,
		ir.OpCompare, ir.OpConversion, ir.OpGEP:
		return true
	}
	return false
}

// congruenceKey produces a string key such that two pure values with
// the same key are guaranteed interchangeable: same op, same type,
// same operand identities (by value pointer, valid since a dominating
// definition is reused across all congruent uses), same Sym payload.
// Ported from falcon's compile/ssa/optimize.go local value-numbering
// hash(), generalized from a per-block table to a whole-function
// table walked in dominator-tree preorder so redundant computations
// are recognized across block boundaries, not just within one block.
func congruenceKey(v *ir.Value) string {
	key := fmt.Sprintf("%d|%v|", v.Op, v.Type)
	for _, a := range v.Args {
		key += fmt.Sprintf("%p,", a)
	}
	switch sym := v.Sym.(type) {
	case bignum.Num:
		key += sym.String()
	case ir.CompareSpec:
		key += fmt.Sprintf("%d:%d", sym.Mode, sym.Op)
	case ir.ConversionSpec:
		key += fmt.Sprintf("%d:%v", sym.Kind, sym.Target)
	case float64:
		key += fmt.Sprintf("%v", sym)
	}
	return key
}

// CSE eliminates redundant computations by walking the dominator tree
// in preorder and replacing every pure value congruent to one already
// seen on the path from the entry with that earlier value (this is
// the "available expressions" formulation of CSE/PRE restricted to
// expressions already computed on every path to the use, i.e. no
// code motion across unavailable paths per §4.2's CSE/PRE
// description). Grounded on falcon's local hash()-based value
// numbering in optimize.go, widened from a single block to the whole
// dominator tree.
func CSE(fn *ir.Function) bool {
	changed := false
	dt := ir.BuildDomTree(fn)
	seen := make(map[string]*ir.Value)

	var walk func(b *ir.Block)
	walk = func(b *ir.Block) {
		var pushed []string
		for _, v := range append([]*ir.Value(nil), b.Values...) {
			if !pureValue(v) {
				continue
			}
			key := congruenceKey(v)
			if existing, ok := seen[key]; ok {
				v.ReplaceUses(existing)
				b.RemoveValue(v)
				changed = true
				continue
			}
			seen[key] = v
			pushed = append(pushed, key)
		}
		for _, child := range fn.Blocks {
			if dt.IDom(child) == b {
				walk(child)
			}
		}
		for _, key := range pushed {
			delete(seen, key)
		}
	}
	walk(fn.Entry)
	return changed
}
