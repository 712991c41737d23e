package regalloc

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/chrysante/scatha-sub006/mir"
)

var log = logrus.WithField("stage", "regalloc")

// DefaultHardwareRegisters is the width of the register file regalloc
// allocates into absent an explicit target width; two of these are
// reserved as spill scratch registers (see rewrite), so the
// effectively allocatable set is DefaultHardwareRegisters-2.
const DefaultHardwareRegisters = 16

// FrameRegisterIndex is the reserved, non-virtual register index
// regalloc addresses spill slots relative to. It does not name a real
// hardware register; asm/vm recognize it as "the current call frame's
// base" the same way they recognize any other fixed frame-relative
// addressing mode.
const FrameRegisterIndex = -1

// allocator holds the Wimmer-style active/inactive/handled interval
// sets during one function's allocation, per falcon's LSRA struct.
type allocator struct {
	numPhys       int // allocatable hardware registers, scratch regs excluded
	active        []*Interval
	inactive      []*Interval
	handled       []*Interval
	nextSpillSlot int
}

// Allocate replaces every virtual register in fn with a hardware
// register index in [0, numPhys), spilling to dedicated frame slots
// under register pressure, eliminating phis into predecessor moves
// first, and coalescing non-interfering move-related registers.
// fn.NumHWRegs is set on return; spilled values live in frame slots
// addressed relative to FrameRegisterIndex.
func Allocate(fn *mir.Function, numPhys int) {
	eliminatePhis(fn)

	pos := numberInstructions(fn)
	bounds := blockBounds(fn, pos)
	gk := computeGenKill(fn)
	io := computeLiveInOut(fn, gk)
	ivByIndex := buildIntervals(fn, pos, bounds, io)

	coalesce(fn, ivByIndex)

	scratch := 2
	if numPhys > scratch {
		numPhys -= scratch
	} else {
		numPhys = 1
	}

	a := &allocator{numPhys: numPhys, nextSpillSlot: 0}
	var worklist []*Interval
	seen := make(map[*Interval]bool)
	for _, iv := range ivByIndex {
		if len(iv.Ranges) == 0 || seen[iv] {
			continue
		}
		seen[iv] = true
		worklist = append(worklist, iv)
	}
	sort.Slice(worklist, func(i, j int) bool {
		return worklist[i].firstRange().From < worklist[j].firstRange().From
	})

	for len(worklist) > 0 {
		cur := worklist[0]
		worklist = worklist[1:]
		a.expireAt(cur.firstRange().From)
		a.tryAllocate(cur)
	}
	a.handled = append(a.handled, a.active...)
	a.handled = append(a.handled, a.inactive...)

	rewrite(fn, ivByIndex, a.handled, numPhys+scratch)
	fn.NumHWRegs = numPhys + scratch

	entry := log.WithField("func", fn.Name)
	if a.nextSpillSlot > 0 {
		entry.WithField("spillSlots", a.nextSpillSlot).Debug("allocation required spilling")
	} else {
		entry.Debug("allocation completed without spilling")
	}
}

// expireAt moves active intervals that have ended into handled or
// inactive, and reactivates any inactive interval that now covers pos,
// per falcon's LSRA.allocateRegisters main-loop bookkeeping.
func (a *allocator) expireAt(pos int) {
	var stillActive []*Interval
	for _, iv := range a.active {
		switch {
		case iv.lastRange().To < pos:
			a.handled = append(a.handled, iv)
		case !iv.cover(pos):
			a.inactive = append(a.inactive, iv)
		default:
			stillActive = append(stillActive, iv)
		}
	}
	a.active = stillActive

	var stillInactive []*Interval
	for _, iv := range a.inactive {
		switch {
		case iv.lastRange().To < pos:
			a.handled = append(a.handled, iv)
		case iv.cover(pos):
			a.active = append(a.active, iv)
		default:
			stillInactive = append(stillInactive, iv)
		}
	}
	a.inactive = stillInactive
}

// tryAllocate assigns cur the hardware register free for the longest
// stretch, per falcon's tryAllocatePhyReg free-until-position scan. If
// no register is free for cur's entire range, cur is spilled outright
// — without range splitting there is no way to hand the tail of an
// interval a different register once the conflict passes, so a partial
// fit is treated the same as no fit.
func (a *allocator) tryAllocate(cur *Interval) {
	free := make([]int, a.numPhys)
	for i := range free {
		free[i] = math.MaxInt
	}
	for _, iv := range a.active {
		if iv.PhysIndex >= 0 {
			free[iv.PhysIndex] = 0
		}
	}
	for _, iv := range a.inactive {
		if iv.PhysIndex < 0 {
			continue
		}
		if k, ok := cur.intersect(iv); ok && k < free[iv.PhysIndex] {
			free[iv.PhysIndex] = k
		}
	}
	best, bestPos := 0, free[0]
	for i := 1; i < a.numPhys; i++ {
		if free[i] > bestPos {
			best, bestPos = i, free[i]
		}
	}
	if bestPos == 0 || bestPos < cur.lastRange().To {
		a.spill(cur)
		return
	}
	cur.PhysIndex = best
	a.active = append(a.active, cur)
}

func (a *allocator) spill(iv *Interval) {
	iv.Spilled = true
	iv.PhysIndex = -1
	iv.SpillSlot = a.nextSpillSlot
	a.nextSpillSlot++
	a.handled = append(a.handled, iv)
}

// coalesce merges the source and destination intervals of a
// register-to-register move whenever they do not interfere, so the
// allocator assigns them the same hardware register and rewrite can
// later drop the now-redundant move. Per spec.md §4.4 "Coalescing is
// performed greedily for move-related virtual registers when
// interference is absent"; grounded on the shape of falcon's
// MoveResolver (pairing intervals across a control-flow edge), applied
// here to intra-block OpMovRR pairs instead since falcon's resolver was
// never finished enough to adapt directly (see lsra_moveResolver.go).
func coalesce(fn *mir.Function, ivByIndex map[int]*Interval) {
	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			if in.Op != mir.OpMovRR || in.Dst == nil || !in.Dst.Virtual {
				continue
			}
			src, ok := in.Args[0].(mir.Register)
			if !ok || !src.Virtual {
				continue
			}
			a, d := ivByIndex[src.Index], ivByIndex[in.Dst.Index]
			if a == nil || d == nil || a == d {
				continue
			}
			if _, interferes := a.intersect(d); interferes {
				continue
			}
			a.Ranges = append(a.Ranges, d.Ranges...)
			a.Uses = append(a.Uses, d.Uses...)
			sortRanges(a)
			mergeRanges(a)
			for k, v := range ivByIndex {
				if v == d {
					ivByIndex[k] = a
				}
			}
		}
	}
}

// rewrite replaces every virtual Register operand with its allocated
// hardware register, or, for spilled intervals, with a scratch
// register preceded/followed by a Load/Store against the interval's
// spill slot (addressed relative to FrameRegisterIndex). Movs whose
// source and destination end up identical — including moves coalesce
// left behind and phi-elimination moves that turned out unnecessary —
// are dropped.
func rewrite(fn *mir.Function, ivByIndex map[int]*Interval, handled []*Interval, numPhysTotal int) {
	scratchA := mir.Register{Index: numPhysTotal - 2, Virtual: false}
	scratchB := mir.Register{Index: numPhysTotal - 1, Virtual: false}

	for _, b := range fn.Blocks {
		var out []*mir.Instruction
		for _, in := range b.Instructions {
			var pre, post []*mir.Instruction
			used := 0
			remap := func(r mir.Register, write bool) mir.Register {
				iv, ok := ivByIndex[r.Index]
				if !ok {
					return r
				}
				if !iv.Spilled {
					return mir.Register{Width: r.Width, Index: iv.PhysIndex, Virtual: false, Float: r.Float}
				}
				scratch := scratchA
				if used > 0 {
					scratch = scratchB
				}
				used++
				scratch.Width, scratch.Float = r.Width, r.Float
				// OffsetTerm is a byte, so this addressing scheme tops
				// out at 32 live spill slots per function; asm's frame
				// layout pass is expected to flag functions that spill
				// more than that rather than silently wrap.
				slot := mir.Addr{Base: mir.Register{Index: FrameRegisterIndex}, OffsetTerm: uint8(iv.SpillSlot * 8)}
				if write {
					post = append(post, &mir.Instruction{Op: mir.OpMovMR, Args: []mir.Operand{slot, scratch}})
				} else {
					d := scratch
					pre = append(pre, &mir.Instruction{Op: mir.OpMovRM, Dst: &d, Args: []mir.Operand{slot}})
				}
				return scratch
			}

			if in.Dst != nil && in.Dst.Virtual {
				nr := remap(*in.Dst, true)
				in.Dst = &nr
			}
			for i, arg := range in.Args {
				switch o := arg.(type) {
				case mir.Register:
					if o.Virtual {
						in.Args[i] = remap(o, false)
					}
				case mir.Addr:
					if o.Base.Virtual {
						o.Base = remap(o.Base, false)
					}
					if o.HasOffsetReg && o.OffsetReg.Virtual {
						o.OffsetReg = remap(o.OffsetReg, false)
					}
					in.Args[i] = o
				}
			}

			out = append(out, pre...)
			if !isRedundantMove(in) {
				out = append(out, in)
			}
			out = append(out, post...)
		}
		b.Instructions = out
	}
}

func isRedundantMove(in *mir.Instruction) bool {
	if in.Op != mir.OpMovRR || in.Dst == nil {
		return false
	}
	src, ok := in.Args[0].(mir.Register)
	return ok && src == *in.Dst
}
