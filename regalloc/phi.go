package regalloc

import "github.com/chrysante/scatha-sub006/mir"

// eliminatePhis replaces every OpPhi with predecessor-block moves
// inserted immediately before each predecessor's terminator, per
// spec.md §4.4 ("Phi nodes are eliminated by inserting moves into
// predecessor blocks, placed immediately before the terminator").
// lower.go builds each mir.Block's Preds in lockstep with the source
// ir.Block's, so a phi's Args[i] already corresponds to Preds[i].
//
// Run before liveness/interval construction: once phis are gone, every
// register definition happens at an ordinary instruction position, and
// interval construction never needs special-case handling for values
// live only "at the edge" between two blocks.
func eliminatePhis(fn *mir.Function) {
	for _, b := range fn.Blocks {
		var phis []*mir.Instruction
		i := 0
		for i < len(b.Instructions) && b.Instructions[i].Op == mir.OpPhi {
			phis = append(phis, b.Instructions[i])
			i++
		}
		if len(phis) == 0 {
			continue
		}
		b.Instructions = b.Instructions[i:]
		for predIdx, pred := range b.Preds {
			moves := make([]*mir.Instruction, 0, len(phis))
			for _, phi := range phis {
				if predIdx >= len(phi.Args) {
					continue
				}
				src, ok := phi.Args[predIdx].(mir.Register)
				if !ok {
					continue
				}
				dst := *phi.Dst
				if src == dst {
					continue
				}
				moves = append(moves, &mir.Instruction{Op: mir.OpMovRR, Dst: &dst, Args: []mir.Operand{src}})
			}
			insertBeforeTerminator(pred, moves)
		}
	}
}

// insertBeforeTerminator splices moves into pred just before its
// terminator (OpJump/OpCondJump/OpReturn), or at the end if pred has
// no recognizable terminator yet.
func insertBeforeTerminator(pred *mir.Block, moves []*mir.Instruction) {
	if len(moves) == 0 {
		return
	}
	idx := len(pred.Instructions)
	if idx > 0 {
		switch pred.Instructions[idx-1].Op {
		case mir.OpJump, mir.OpCondJump, mir.OpReturn:
			idx--
		}
	}
	tail := append([]*mir.Instruction(nil), pred.Instructions[idx:]...)
	pred.Instructions = append(pred.Instructions[:idx], moves...)
	pred.Instructions = append(pred.Instructions, tail...)
}
