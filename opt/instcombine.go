package opt

import (
	"github.com/chrysante/scatha-sub006/bignum"
	"github.com/chrysante/scatha-sub006/ir"
)

func init() {
	Register("instcombine", CategorySimplification, InstCombine)
}

func constOf(v *ir.Value) (bignum.Num, bool) {
	if v.Op != ir.OpConstInt {
		return bignum.Zero, false
	}
	return v.Sym.(bignum.Num), true
}

// InstCombine applies a handful of local algebraic identities: x+0,
// x-0, x*1, x*0, and double negation. A local peephole pass
// complementing ConstFold's whole-constant evaluation; grounded on the
// shape of falcon's compile/ssa/optimize.go simplifyPhi/simplifyCFG
// (single-pattern-match, ReplaceUses, remove), generalized from phi/cfg
// patterns to arithmetic identities since falcon never combines
// instructions itself.
func InstCombine(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		for i := len(b.Values) - 1; i >= 0; i-- {
			v := b.Values[i]
			var repl *ir.Value
			switch v.Op {
			case ir.OpAdd:
				if n, ok := constOf(v.Args[1]); ok && n.IsZero() {
					repl = v.Args[0]
				} else if n, ok := constOf(v.Args[0]); ok && n.IsZero() {
					repl = v.Args[1]
				}
			case ir.OpSub:
				if n, ok := constOf(v.Args[1]); ok && n.IsZero() {
					repl = v.Args[0]
				}
			case ir.OpMul:
				if n, ok := constOf(v.Args[1]); ok {
					if n.IsZero() {
						repl = v.Args[1]
					} else if bignum.Cmp(n, bignum.FromInt64(1)) == 0 {
						repl = v.Args[0]
					}
				} else if n, ok := constOf(v.Args[0]); ok {
					if n.IsZero() {
						repl = v.Args[0]
					} else if bignum.Cmp(n, bignum.FromInt64(1)) == 0 {
						repl = v.Args[1]
					}
				}
			case ir.OpXOr, ir.OpOr:
				if n, ok := constOf(v.Args[1]); ok && n.IsZero() {
					repl = v.Args[0]
				}
			case ir.OpNegate:
				if v.Args[0].Op == ir.OpNegate {
					repl = v.Args[0].Args[0]
				}
			case ir.OpBitwiseNot:
				if v.Args[0].Op == ir.OpBitwiseNot {
					repl = v.Args[0].Args[0]
				}
			}
			if repl == nil {
				continue
			}
			v.ReplaceUses(repl)
			b.RemoveValue(v)
			changed = true
		}
	}
	return changed
}
