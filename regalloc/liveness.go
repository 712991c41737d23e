package regalloc

import (
	"github.com/chrysante/scatha-sub006/mir"
	"github.com/chrysante/scatha-sub006/utils"
)

// genKill holds one block's virtual-register gen/kill bitmaps, per
// falcon's lsra.go GenKill.
type genKill struct{ gen, kill *utils.BitMap }

// liveInOut holds one block's virtual-register live-in/live-out
// bitmaps, per falcon's lsra.go LiveInOut.
type liveInOut struct{ in, out *utils.BitMap }

// numberInstructions assigns each instruction a position unique within
// fn, increasing in block layout order. The allocator treats block
// layout order as an approximation of control-flow order, same as
// falcon's lsra.go (which numbers by map-iteration insertion rather
// than an explicit topological walk); SPEC_FULL.md's linearization step
// is exactly this numbering.
func numberInstructions(fn *mir.Function) map[*mir.Instruction]int {
	pos := make(map[*mir.Instruction]int)
	n := 0
	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			pos[in] = n
			n++
		}
	}
	return pos
}

// blockBounds reports each block's [first, last] instruction position.
func blockBounds(fn *mir.Function, pos map[*mir.Instruction]int) map[*mir.Block][2]int {
	bounds := make(map[*mir.Block][2]int)
	for _, b := range fn.Blocks {
		if len(b.Instructions) == 0 {
			continue
		}
		bounds[b] = [2]int{pos[b.Instructions[0]], pos[b.Instructions[len(b.Instructions)-1]]}
	}
	return bounds
}

// instrRegs reports the virtual registers an instruction reads and
// (if any) writes, looking through Addr operands for base/index
// registers used as reads.
func instrRegs(in *mir.Instruction) (reads []mir.Register, write *mir.Register) {
	if in.Dst != nil && in.Dst.Virtual {
		write = in.Dst
	}
	for _, a := range in.Args {
		switch o := a.(type) {
		case mir.Register:
			if o.Virtual {
				reads = append(reads, o)
			}
		case mir.Addr:
			if o.Base.Virtual {
				reads = append(reads, o.Base)
			}
			if o.HasOffsetReg && o.OffsetReg.Virtual {
				reads = append(reads, o.OffsetReg)
			}
		}
	}
	return reads, write
}

// computeGenKill is the per-block local liveness pass: a register is
// generated if read before any local kill, killed once written.
// Mirrors falcon's LSRA.computeGenKillMap.
func computeGenKill(fn *mir.Function) map[*mir.Block]*genKill {
	m := make(map[*mir.Block]*genKill)
	for _, b := range fn.Blocks {
		gk := &genKill{gen: utils.NewBitMap(fn.NumVRegs), kill: utils.NewBitMap(fn.NumVRegs)}
		m[b] = gk
		for _, in := range b.Instructions {
			reads, write := instrRegs(in)
			for _, r := range reads {
				if !gk.kill.IsSet(r.Index) {
					gk.gen.Set(r.Index)
				}
			}
			if write != nil {
				gk.kill.Set(write.Index)
			}
		}
	}
	return m
}

// computeLiveInOut is the global backward dataflow fixpoint:
// LiveIn(b) = Gen(b) U (LiveOut(b) - Kill(b)), LiveOut(b) = U LiveIn(succ).
// falcon's own computeLiveInOutMap resets its `changed` flag to false
// unconditionally at the end of every outer pass instead of at the
// start, so its "for changed" loop can only ever run the body once or
// twice regardless of how many bits actually moved; this version fixes
// that by tracking convergence per pass.
func computeLiveInOut(fn *mir.Function, gk map[*mir.Block]*genKill) map[*mir.Block]*liveInOut {
	m := make(map[*mir.Block]*liveInOut)
	for _, b := range fn.Blocks {
		m[b] = &liveInOut{in: utils.NewBitMap(fn.NumVRegs), out: utils.NewBitMap(fn.NumVRegs)}
	}
	for {
		changed := false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			lio := m[b]
			for _, s := range b.Succs {
				if lio.out.Unite(m[s].in) {
					changed = true
				}
			}
			in := lio.out.Copy()
			in.Remove(gk[b].kill)
			in.Unite(gk[b].gen)
			if lio.in.SetFrom(in) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return m
}

// buildIntervals walks the function backward once, closing a
// register's live range at each write (narrowing it to start there)
// and opening/extending one at each read, seeded by each block's
// live-out set. A register still open once the first block has been
// processed is a function parameter or otherwise defined outside any
// instruction stream; its range is extended back to the function's
// first position.
func buildIntervals(fn *mir.Function, pos map[*mir.Instruction]int, bounds map[*mir.Block][2]int, io map[*mir.Block]*liveInOut) map[int]*Interval {
	intervals := make(map[int]*Interval)
	get := func(idx int, reg mir.Register) *Interval {
		iv, ok := intervals[idx]
		if !ok {
			iv = newInterval(reg)
			intervals[idx] = iv
		}
		return iv
	}
	open := make(map[int]int) // vreg index -> end position of the range currently being extended backward

	for i := len(fn.Blocks) - 1; i >= 0; i-- {
		b := fn.Blocks[i]
		if len(b.Instructions) == 0 {
			continue
		}
		bnd := bounds[b]
		out := io[b].out
		for vi := 0; vi < out.Size(); vi++ {
			if out.IsSet(vi) {
				if _, ok := open[vi]; !ok {
					open[vi] = bnd[1]
				}
			}
		}
		for ii := len(b.Instructions) - 1; ii >= 0; ii-- {
			in := b.Instructions[ii]
			p := pos[in]
			reads, write := instrRegs(in)
			if write != nil {
				end, ok := open[write.Index]
				if !ok {
					end = p
				}
				iv := get(write.Index, *write)
				iv.Ranges = append(iv.Ranges, Range{From: p, To: end})
				iv.addUsePoint(p, UseWrite)
				delete(open, write.Index)
			}
			for _, r := range reads {
				if _, ok := open[r.Index]; !ok {
					open[r.Index] = p
				}
				get(r.Index, r).addUsePoint(p, UseRead)
			}
		}
	}
	if len(fn.Blocks) > 0 && len(fn.Blocks[0].Instructions) > 0 {
		entryFirst := bounds[fn.Blocks[0]][0]
		for vi, end := range open {
			iv := get(vi, mir.Register{Index: vi, Virtual: true})
			iv.Ranges = append(iv.Ranges, Range{From: entryFirst, To: end})
		}
	}
	for _, iv := range intervals {
		sortRanges(iv)
		mergeRanges(iv)
	}
	return intervals
}
