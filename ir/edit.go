package ir

// BranchTargets is the Sym payload of an OpBranch terminator: Args[0]
// is the i1 condition, Then/Else are the two successor blocks.
type BranchTargets struct {
	Then, Else *Block
}

// RetargetTerminator rewrites a terminator's block-valued Sym payload
// (Goto's single target, Branch's BranchTargets) wherever it points at
// old, replacing it with new. Used by SplitCriticalEdge and by opt's
// simplifycfg block-merge and looprotate.
func RetargetTerminator(term *Value, old, new *Block) { retargetTerminator(term, old, new) }

func retargetTerminator(term *Value, old, new *Block) {
	if term == nil {
		return
	}
	switch term.Op {
	case OpGoto:
		if b, ok := term.Sym.(*Block); ok && b == old {
			term.Sym = new
		}
	case OpBranch:
		if bt, ok := term.Sym.(BranchTargets); ok {
			if bt.Then == old {
				bt.Then = new
			}
			if bt.Else == old {
				bt.Else = new
			}
			term.Sym = bt
		}
	}
}

// SplitCriticalEdge splits the edge u->v if it is critical
// (|succ(u)| > 1 and |pred(v)| > 1): a fresh block is inserted, u's
// terminator is redirected to it, and it unconditionally jumps to v;
// every phi in v keeps referencing the same predecessor slot, now
// filled by the new block. Per §4.1. Returns the new block, or nil if
// u->v is not an edge or is not critical.
func SplitCriticalEdge(fn *Function, u, v *Block) *Block {
	if v.predIndex(u) < 0 {
		return nil
	}
	if len(u.Succs) <= 1 || len(v.Preds) <= 1 {
		return nil
	}
	nb := fn.NewBlock(fn.UniqueName(u.displayName() + "." + v.displayName() + ".split"))
	fn.InsertBlockAfter(u, nb)

	for i, s := range u.Succs {
		if s == v {
			u.Succs[i] = nb
			break
		}
	}
	idx := v.predIndex(u)
	v.Preds[idx] = nb
	nb.Preds = append(nb.Preds, u)
	nb.Succs = append(nb.Succs, v)

	retargetTerminator(u.Terminator(), v, nb)

	ctrl := nb.NewValue(OpGoto, fn.Module.Context.VoidType())
	ctrl.Sym = v
	ctrl.AddUseBlock(nb)
	return nb
}

// Clone produces a structurally equivalent copy of fn in the same
// module: a fresh value-map rewrites intra-clone references while
// leaving cross-clone references (calls to other functions, global
// refs) untouched. Per §4.1 "Cloning".
func Clone(fn *Function, newName string) *Function {
	nf := fn.Module.NewFunction(newName, fn.RetType, fn.Visibility)
	valMap := make(map[*Value]*Value)
	blockMap := make(map[*Block]*Block)

	for _, p := range fn.Params {
		np := nf.AddParam(p.Name, p.Type)
		valMap[p] = np
	}
	for _, b := range fn.Blocks {
		blockMap[b] = nf.NewBlock(b.Name)
	}
	for _, b := range fn.Blocks {
		nb := blockMap[b]
		for _, s := range b.Succs {
			nb.WireTo(blockMap[s])
		}
	}
	for _, b := range fn.Blocks {
		nb := blockMap[b]
		for _, v := range b.Values {
			nv := &Value{ID: nf.nextValueID(), Op: v.Op, Type: v.Type, Name: v.Name, Block: nb}
			valMap[v] = nv
			nb.Values = append(nb.Values, nv)
		}
	}
	for _, b := range fn.Blocks {
		nb := blockMap[b]
		for _, v := range b.Values {
			nv := valMap[v]
			for _, a := range v.Args {
				if mapped, ok := valMap[a]; ok {
					nv.AddArg(mapped)
				} else {
					nv.AddArg(a) // cross-clone reference: left pointing at the original
				}
			}
			nv.Sym = v.Sym
			switch sym := v.Sym.(type) {
			case *Block:
				if mapped, ok := blockMap[sym]; ok {
					nv.Sym = mapped
				}
			case BranchTargets:
				bt := sym
				if mapped, ok := blockMap[bt.Then]; ok {
					bt.Then = mapped
				}
				if mapped, ok := blockMap[bt.Else]; ok {
					bt.Else = mapped
				}
				nv.Sym = bt
			}
		}
		if term := nb.Terminator(); term != nil {
			nb.Ctrl = term
		}
	}
	return nf
}
