package opt

import "github.com/chrysante/scatha-sub006/ir"

func init() {
	Register("dce", CategorySimplification, DCE)
}

func reachable(fn *ir.Function) map[*ir.Block]bool {
	seen := map[*ir.Block]bool{fn.Entry: true}
	stack := []*ir.Block{fn.Entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range b.Succs {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// DCE removes values with no uses and no side effects (§4.2: "side
// effects are: store, call to non-pure function, volatile operation,
// terminator"), then removes blocks unreachable from the entry,
// cleaning up phi operands in their successors as it goes. Ported from
// falcon's compile/ssa/optimize.go dce, generalized from falcon's
// fixed isPinned op list to ir.Value.HasSideEffects.
func DCE(fn *ir.Function) bool {
	changed := false
	reach := reachable(fn)

	for b := range reach {
		for i := len(b.Values) - 1; i >= 0; i-- {
			v := b.Values[i]
			if len(v.Uses) == 0 && len(v.UseBlock) == 0 && !v.HasSideEffects() {
				b.RemoveValue(v)
				changed = true
			}
		}
	}

	for i := len(fn.Blocks) - 1; i >= 0; i-- {
		b := fn.Blocks[i]
		if reach[b] {
			continue
		}
		for _, succ := range b.Succs {
			succ.RemovePredecessor(b)
		}
		fn.RemoveBlock(b)
		changed = true
	}
	return changed
}
