package opt

import "github.com/chrysante/scatha-sub006/ir"

func init() {
	Register("inline", CategoryOther, Inline)
}

// InlineCostBudget bounds the callee body size (in instructions, summed
// across all its blocks) eligible for inlining.
const InlineCostBudget = 24

func calleeCost(callee *ir.Function) int {
	n := 0
	for _, b := range callee.Blocks {
		n += len(b.Values)
	}
	return n
}

// Inline splices cost-bounded direct calls in place: the call site's
// block is split at the call, the callee's blocks are cloned into the
// caller and spliced between the two halves, parameters are rewired to
// the actual arguments, and every Return in the clone becomes a Goto
// to the continuation block (merging return values through a phi when
// the callee has more than one return). New relative to falcon,
// which has no inliner; the CFG-splicing shape follows the same
// clone-then-rewire approach as ir.Clone (fresh value/block maps,
// cross-reference left alone, Sym block references remapped).
func Inline(fn *ir.Function) bool {
	changed := false
	for _, b := range append([]*ir.Block(nil), fn.Blocks...) {
		for _, v := range append([]*ir.Value(nil), b.Values...) {
			if v.Op != ir.OpCall {
				continue
			}
			callee, ok := v.Args[0].Sym.(*ir.Function)
			if !ok || callee == fn {
				continue
			}
			if calleeCost(callee) > InlineCostBudget {
				continue
			}
			if inlineCall(fn, v) {
				changed = true
			}
		}
	}
	return changed
}

func inlineCall(fn *ir.Function, call *ir.Value) bool {
	callee := call.Args[0].Sym.(*ir.Function)
	callArgs := call.Args[1:]
	if len(callArgs) != len(callee.Params) {
		return false
	}
	callBlock := call.Block

	cont := fn.NewBlock(fn.UniqueName(callBlock.Name + ".cont"))
	fn.InsertBlockAfter(callBlock, cont)

	// Move every instruction after the call into cont.
	idx := -1
	for i, x := range callBlock.Values {
		if x == call {
			idx = i
			break
		}
	}
	tail := append([]*ir.Value(nil), callBlock.Values[idx+1:]...)
	for _, a := range call.Args {
		a.RemoveUse(call)
	}
	callBlock.Values = callBlock.Values[:idx]
	for _, x := range tail {
		x.Block = cont
		cont.Values = append(cont.Values, x)
	}
	if t := cont.Terminator(); t != nil {
		cont.Ctrl = t
	}
	for _, succ := range callBlock.Succs {
		for i, p := range succ.Preds {
			if p == callBlock {
				succ.Preds[i] = cont
			}
		}
	}
	cont.Succs = callBlock.Succs
	callBlock.Succs = nil

	valMap := make(map[*ir.Value]*ir.Value)
	blockMap := make(map[*ir.Block]*ir.Block)
	for i, p := range callee.Params {
		valMap[p] = callArgs[i]
	}
	for _, cb := range callee.Blocks {
		nb := fn.NewBlock(fn.UniqueName(callBlock.Name + "." + cb.Name))
		fn.InsertBlockAfter(callBlock, nb)
		blockMap[cb] = nb
	}
	for _, cb := range callee.Blocks {
		nb := blockMap[cb]
		for _, s := range cb.Succs {
			nb.WireTo(blockMap[s])
		}
	}
	for _, cb := range callee.Blocks {
		nb := blockMap[cb]
		for _, v := range cb.Values {
			if v.Op.IsTerminator() {
				continue
			}
			nv := &ir.Value{ID: fn.NewValueID(), Op: v.Op, Type: v.Type, Block: nb}
			valMap[v] = nv
			nb.Values = append(nb.Values, nv)
		}
	}

	var retVals []*ir.Value
	var retBlocks []*ir.Block
	for _, cb := range callee.Blocks {
		nb := blockMap[cb]
		for _, v := range cb.Values {
			if v.Op.IsTerminator() {
				continue
			}
			nv := valMap[v]
			for _, a := range v.Args {
				if m, ok := valMap[a]; ok {
					nv.AddArg(m)
				} else {
					nv.AddArg(a)
				}
			}
			nv.Sym = v.Sym
		}
		term := cb.Terminator()
		switch term.Op {
		case ir.OpReturn:
			if len(term.Args) > 0 {
				rv := term.Args[0]
				if m, ok := valMap[rv]; ok {
					rv = m
				}
				retVals = append(retVals, rv)
			}
			retBlocks = append(retBlocks, nb)
			g := nb.NewValue(ir.OpGoto, fn.Module.Context.VoidType())
			g.Sym = cont
			g.AddUseBlock(nb)
			nb.WireTo(cont)
		case ir.OpGoto:
			nv := nb.NewValue(ir.OpGoto, fn.Module.Context.VoidType())
			nv.Sym = blockMap[term.Sym.(*ir.Block)]
			nv.AddUseBlock(nb)
		case ir.OpBranch:
			bt := term.Sym.(ir.BranchTargets)
			cond := term.Args[0]
			if m, ok := valMap[cond]; ok {
				cond = m
			}
			nv := nb.NewValue(ir.OpBranch, fn.Module.Context.VoidType(), cond)
			nv.Sym = ir.BranchTargets{Then: blockMap[bt.Then], Else: blockMap[bt.Else]}
			nv.AddUseBlock(nb)
		}
	}

	entryClone := blockMap[callee.Entry]
	gotoEntry := callBlock.NewValue(ir.OpGoto, fn.Module.Context.VoidType())
	gotoEntry.Sym = entryClone
	gotoEntry.AddUseBlock(callBlock)
	callBlock.WireTo(entryClone)

	if len(retVals) == 1 {
		call.ReplaceUses(retVals[0])
	} else if len(retVals) > 1 {
		// retBlocks and retVals were appended in lockstep above, and
		// each retBlock's Goto-to-cont wiring appended it to cont.Preds
		// in that same order, so the phi's argument order already lines
		// up with cont.Preds.
		merge := cont.NewValue(ir.OpPhi, call.Type)
		merge.AddArg(retVals...)
		call.ReplaceUses(merge)
		_ = retBlocks
	}
	return true
}
