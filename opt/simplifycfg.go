package opt

import (
	"github.com/chrysante/scatha-sub006/bignum"
	"github.com/chrysante/scatha-sub006/ir"
)

func init() {
	Register("simplifycfg", CategorySimplification, SimplifyCFG)
	Register("simplifyphi", CategorySimplification, SimplifyPhi)
}

// SimplifyPhi replaces phi(x) and phi(x,x,...,x) with x, and
// phi(v,v,...,v,x,x,...,x) (self plus exactly one distinct other
// value) with x. Ported from falcon's compile/ssa/optimize.go
// simplifyPhi, generalized onto this package's ir.Value.
func SimplifyPhi(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		for i := len(b.Values) - 1; i >= 0; i-- {
			v := b.Values[i]
			if v.Op != ir.OpPhi {
				continue
			}
			if len(v.Args) == 0 {
				continue
			}
			if len(v.Args) == 1 {
				v.ReplaceUses(v.Args[0])
				b.RemoveValue(v)
				changed = true
				continue
			}
			same := true
			for _, a := range v.Args {
				if a != v.Args[0] {
					same = false
					break
				}
			}
			if same {
				v.ReplaceUses(v.Args[0])
				b.RemoveValue(v)
				changed = true
				continue
			}
			var distinct *ir.Value
			ok := true
			for _, a := range v.Args {
				if a == v {
					continue
				}
				if distinct == nil {
					distinct = a
				} else if distinct != a {
					ok = false
					break
				}
			}
			if ok && distinct != nil {
				v.ReplaceUses(distinct)
				b.RemoveValue(v)
				changed = true
			}
		}
	}
	return changed
}

func isConstBool(v *ir.Value) (bool, bool) {
	if v.Op != ir.OpConstInt || v.Type == nil || !v.Type.IsBool() {
		return false, false
	}
	n := v.Sym.(bignum.Num)
	return !n.IsZero(), true
}

// SimplifyCFG performs empty-block elision, unconditional-branch
// folding (a Branch on a constant condition becomes a Goto), and
// merges a Goto block that has exactly one predecessor and one
// successor into its predecessor. Ported from falcon's
// compile/ssa/optimize.go simplifyCFG.
func SimplifyCFG(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		term := b.Terminator()
		if term == nil || term.Op != ir.OpBranch {
			continue
		}
		bt := term.Sym.(ir.BranchTargets)
		cond := term.Args[0]
		val, isConst := isConstBool(cond)
		if !isConst {
			continue
		}
		taken, notTaken := bt.Then, bt.Else
		if !val {
			taken, notTaken = bt.Else, bt.Then
		}
		notTaken.RemovePredecessor(b)
		cond.RemoveUseBlock(b)
		for i, s := range b.Succs {
			if s == notTaken {
				b.Succs = append(b.Succs[:i], b.Succs[i+1:]...)
				break
			}
		}
		b.RemoveValue(term)
		gotoV := b.NewValue(ir.OpGoto, fn.Module.Context.VoidType())
		gotoV.Sym = taken
		gotoV.AddUseBlock(b)
		changed = true
	}

	for _, b := range append([]*ir.Block(nil), fn.Blocks...) {
		term := b.Terminator()
		if term == nil || term.Op != ir.OpGoto || len(b.Preds) != 1 || len(b.Values) != 1 {
			continue
		}
		pred := b.Preds[0]
		if len(pred.Succs) != 1 {
			continue
		}
		succ := term.Sym.(*ir.Block)
		if len(succ.Preds) != 1 {
			continue
		}
		// merge b into pred: pred now jumps straight to succ
		pred.Succs[0] = succ
		idx := succ.PredIndex(b)
		if idx >= 0 {
			succ.Preds[idx] = pred
		}
		ir.RetargetTerminator(pred.Terminator(), b, succ)
		fn.RemoveBlock(b)
		changed = true
	}
	return changed
}
