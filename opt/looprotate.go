package opt

import "github.com/chrysante/scatha-sub006/ir"

func init() {
	Register("looprotate", CategoryCanonicalization, LoopRotate)
}

// LoopRotate turns single-latch while-loops into a rotated, do-while
// shaped form: a guard block (the original header) tests the
// condition once before entering, and a cloned footer repeats the
// test at the bottom of each iteration. This is new code: falcon's
// compile/ssa/optimize.go hardcodes EnableLoopOpts = false and ships
// no rotation pass to adapt, so the seven-step transform below follows
// the algorithm description directly rather than any teacher source.
//
// Multi-latch loops (more than one back edge into the header) are left
// untouched; they are rare from structured source and the rewrite
// below assumes a single latch throughout.
func LoopRotate(fn *ir.Function) bool {
	for _, rank := range rankOrder(ir.BuildLoopTree(fn)) {
		for _, loop := range rank {
			if rotateLoop(fn, loop) {
				// The CFG changed underneath the loop-nesting forest;
				// let the pipeline's fixed-point loop call us again
				// for the next rank rather than walking stale Loops.
				return true
			}
		}
	}
	return false
}

func rankOrder(lt *ir.LoopTree) [][]*ir.Loop {
	var ranks [][]*ir.Loop
	cur := lt.RootLoops()
	for len(cur) > 0 {
		ranks = append(ranks, cur)
		var next []*ir.Loop
		for _, l := range cur {
			next = append(next, l.Children...)
		}
		cur = next
	}
	return ranks
}

func inLoopBody(loop *ir.Loop, b *ir.Block) bool {
	if b == loop.Header {
		return true
	}
	for _, x := range loop.Body {
		if x == b {
			return true
		}
	}
	return false
}

func rotateLoop(fn *ir.Function, loop *ir.Loop) bool {
	h := loop.Header
	if loop.Irreducible || !loop.IsProperLoop() || loop.IsRotated() {
		return false
	}
	term := h.Terminator()
	if term == nil || term.Op != ir.OpBranch {
		return false
	}
	bt := term.Sym.(ir.BranchTargets)
	var e, s *ir.Block
	switch {
	case inLoopBody(loop, bt.Then) && !inLoopBody(loop, bt.Else):
		e, s = bt.Then, bt.Else
	case inLoopBody(loop, bt.Else) && !inLoopBody(loop, bt.Then):
		e, s = bt.Else, bt.Then
	default:
		return false
	}

	var loopPreds, outPreds []*ir.Block
	for _, p := range h.Preds {
		if inLoopBody(loop, p) {
			loopPreds = append(loopPreds, p)
		} else {
			outPreds = append(outPreds, p)
		}
	}
	if len(loopPreds) != 1 || len(outPreds) == 0 {
		return false
	}
	tail := loopPreds[0]

	// Step 1: merge multiple non-loop predecessors into one preheader.
	if len(outPreds) > 1 {
		pre := fn.NewBlock(fn.UniqueName(h.Name + ".preheader"))
		fn.InsertBlockAfter(outPreds[len(outPreds)-1], pre)

		phis := h.Phis()
		merged := make(map[*ir.Value][]*ir.Value, len(phis))
		for _, phi := range phis {
			vals := make([]*ir.Value, len(outPreds))
			for i, p := range outPreds {
				vals[i] = phi.Args[h.PredIndex(p)]
			}
			merged[phi] = vals
		}
		for _, p := range outPreds {
			ir.RetargetTerminator(p.Terminator(), h, pre)
			for i, succ := range p.Succs {
				if succ == h {
					p.Succs[i] = pre
				}
			}
		}
		for _, p := range outPreds {
			h.RemovePredecessor(p)
		}
		pre.WireTo(h)

		for _, phi := range phis {
			vals := merged[phi]
			same := true
			for _, v := range vals[1:] {
				if v != vals[0] {
					same = false
					break
				}
			}
			if same {
				phi.AddArg(vals[0])
				continue
			}
			pphi := pre.NewValue(ir.OpPhi, phi.Type)
			pphi.AddArg(vals...)
			phi.AddArg(pphi)
		}
		gotoV := pre.NewValue(ir.OpGoto, fn.Module.Context.VoidType())
		gotoV.Sym = h
		gotoV.AddUseBlock(pre)
	}

	// Step 2: split H->E and H->S if the target has other predecessors.
	if nb := ir.SplitCriticalEdge(fn, h, e); nb != nil {
		e = nb
	}
	if nb := ir.SplitCriticalEdge(fn, h, s); nb != nil {
		s = nb
	}

	// Step 3: mirror every header value that escapes H into single-arg
	// phis in E and S, redirecting dominated uses to them. Pre-existing
	// single-valued phis in E/S are folded away first so rotation never
	// has to reason about them.
	SimplifyPhi(fn)

	dt := ir.BuildDomTree(fn)
	phiEFor := make(map[*ir.Value]*ir.Value)
	phiSFor := make(map[*ir.Value]*ir.Value)
	for _, i := range append([]*ir.Value(nil), h.Values...) {
		if i.Op.IsTerminator() || len(i.Uses) == 0 {
			continue
		}
		phiE := e.NewValue(ir.OpPhi, i.Type)
		phiE.AddArg(i)
		phiEFor[i] = phiE
		phiS := s.NewValue(ir.OpPhi, i.Type)
		phiS.AddArg(i)
		phiSFor[i] = phiS

		for _, u := range append([]*ir.Value(nil), i.Uses...) {
			if u == phiE || u == phiS {
				continue
			}
			var target *ir.Value
			if dt.Dominates(e, u.Block) {
				target = phiE
			} else if dt.Dominates(s, u.Block) {
				target = phiS
			} else {
				continue
			}
			for idx, a := range u.Args {
				if a == i {
					u.SetArg(idx, target)
				}
			}
		}
	}

	// Step 4: clone H as the footer F; H itself becomes the guard G.
	valMap := make(map[*ir.Value]*ir.Value)
	f := fn.NewBlock(fn.UniqueName(h.Name + ".footer"))
	fn.InsertBlockAfter(h, f)
	tailIdx := h.PredIndex(tail)

	for _, v := range h.Values {
		if v.Op.IsTerminator() {
			continue
		}
		valMap[v] = f.NewValue(v.Op, v.Type)
	}
	for _, v := range h.Values {
		if v.Op.IsTerminator() {
			continue
		}
		nv := valMap[v]
		nv.Sym = v.Sym
		if v.Op == ir.OpPhi {
			src := v.Args[tailIdx]
			if m, ok := valMap[src]; ok {
				nv.AddArg(m)
			} else {
				nv.AddArg(src)
			}
			continue
		}
		for _, a := range v.Args {
			if m, ok := valMap[a]; ok {
				nv.AddArg(m)
			} else {
				nv.AddArg(a)
			}
		}
	}
	origBT := h.Terminator().Sym.(ir.BranchTargets)
	var fCond *ir.Value
	if m, ok := valMap[h.Terminator().Args[0]]; ok {
		fCond = m
	} else {
		fCond = h.Terminator().Args[0]
	}
	fTerm := f.NewValue(ir.OpBranch, fn.Module.Context.VoidType(), fCond)
	fTerm.Sym = origBT
	fTerm.AddUseBlock(f)
	f.WireTo(origBT.Then)
	f.WireTo(origBT.Else)

	for i, phiE := range phiEFor {
		clone := i
		if m, ok := valMap[i]; ok {
			clone = m
		}
		phiE.AddArg(clone)
	}
	for i, phiS := range phiSFor {
		clone := i
		if m, ok := valMap[i]; ok {
			clone = m
		}
		phiS.AddArg(clone)
	}

	// Step 5: the loop's back edge now targets F instead of G.
	ir.RetargetTerminator(tail.Terminator(), h, f)
	for i, succ := range tail.Succs {
		if succ == h {
			tail.Succs[i] = f
		}
	}
	h.RemovePredecessor(tail)
	f.Preds = append(f.Preds, tail)

	// Step 6 (operands in F referring back to F) does not arise here:
	// F's clone never shares identity with anything outside F except
	// through the phiE/phiS entries just added above.

	// Step 7: drop introduced phis nothing ended up using.
	for _, phi := range phiEFor {
		if len(phi.Uses) == 0 && len(phi.UseBlock) == 0 {
			phi.Block.RemoveValue(phi)
		}
	}
	for _, phi := range phiSFor {
		if len(phi.Uses) == 0 && len(phi.UseBlock) == 0 {
			phi.Block.RemoveValue(phi)
		}
	}

	return true
}
