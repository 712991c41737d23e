package opt

import "github.com/chrysante/scatha-sub006/ir"

func init() {
	Register("mem2reg", CategoryCanonicalization, Mem2Reg)
}

// promotable reports whether every use of an Alloca is a plain Load or
// Store of the whole value (no GEP into it, no address taken by any
// other instruction), the standard mem2reg precondition.
func promotable(alloca *ir.Value) bool {
	for _, u := range alloca.Uses {
		switch u.Op {
		case ir.OpLoad:
			continue
		case ir.OpStore:
			if u.Args[0] != alloca {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Mem2Reg promotes Alloca slots that are only ever loaded and stored in
// their entirety into SSA values, inserting phis at the iterated
// dominance frontier of their defining stores (Cytron et al.), then
// renaming loads to the reaching definition via a dominator-tree
// walk. This is new relative to falcon, which never lowers through
// memory in the first place (falcon's AST->HIR lowering keeps locals
// as SSA values directly); mem2reg exists here because this
// specification's IR builder allows Alloca/Load/Store for arbitrary
// stack locals and optimization must undo that before registerizing.
func Mem2Reg(fn *ir.Function) bool {
	changed := false
	for _, b := range append([]*ir.Block(nil), fn.Blocks...) {
		for _, alloca := range append([]*ir.Value(nil), b.Values...) {
			if alloca.Op != ir.OpAlloca {
				continue
			}
			if !promotable(alloca) {
				continue
			}
			promoteOne(fn, alloca)
			changed = true
		}
	}
	return changed
}

func promoteOne(fn *ir.Function, alloca *ir.Value) {
	elemType := alloca.Sym.(struct {
		Elem  *ir.Type
		Count int
	}).Elem

	var defBlocks []*ir.Block
	for _, u := range alloca.Uses {
		if u.Op == ir.OpStore {
			defBlocks = append(defBlocks, u.Block)
		}
	}
	phiBlocks := ir.IteratedDominanceFrontier(fn, defBlocks)
	phiOf := make(map[*ir.Block]*ir.Value, len(phiBlocks))
	for _, b := range phiBlocks {
		phiOf[b] = b.NewValue(ir.OpPhi, elemType)
	}

	dt := ir.BuildDomTree(fn)

	var walk func(b *ir.Block, incoming *ir.Value)
	walk = func(b *ir.Block, incoming *ir.Value) {
		if phi, ok := phiOf[b]; ok {
			incoming = phi
		}
		for _, v := range append([]*ir.Value(nil), b.Values...) {
			switch {
			case v.Op == ir.OpLoad && v.Args[0] == alloca:
				if incoming == nil {
					incoming = v.Block.NewValue(ir.OpConstUndef, elemType)
				}
				v.ReplaceUses(incoming)
				v.Block.RemoveValue(v)
			case v.Op == ir.OpStore && v.Args[0] == alloca:
				incoming = v.Args[1]
				v.Block.RemoveValue(v)
			}
		}
		for _, succ := range b.Succs {
			if phi, ok := phiOf[succ]; ok {
				idx := succ.PredIndex(b)
				for len(phi.Args) <= idx {
					phi.Args = append(phi.Args, nil)
				}
				phi.Args[idx] = incoming
				if incoming != nil {
					incoming.Uses = append(incoming.Uses, phi)
				}
			}
		}
		for _, c := range fn.Blocks {
			if c != b && dt.IDom(c) == b {
				walk(c, incoming)
			}
		}
	}
	walk(fn.Entry, nil)
	alloca.Block.RemoveValue(alloca)
}
