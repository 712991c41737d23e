// Package regalloc implements linear-scan register allocation over
// mir.Function: live-interval construction from a block-order
// linearization, Wimmer-style active/inactive/handled set maintenance,
// spill materialization as Store/Load pairs against a dedicated
// spill-slot frame, phi elimination via predecessor-block moves, and
// greedy move coalescing.
//
// Grounded on falcon's compile/codegen/lsra.go + lsra_interval.go +
// lsra_moveResolver.go (Interval/Range/UsePoint, GenKill/LiveInOut
// bitmaps via utils.BitMap, active/inactive/handled terminology,
// tryAllocatePhyReg's free-until-position scan). The teacher's own
// lsra.go stops short of finishing allocation (os.Exit(1) before
// spill/split logic runs, and codegen.CodeGen never calls lsra() in
// the first place — every vreg there is instead pinned to a stack
// slot). This package completes the algorithm those files sketch:
// real free-register selection, spilling, and predecessor-move phi
// elimination, since spec.md §4.4 requires actual register allocation
// rather than an all-stack fallback.
package regalloc

import (
	"math"

	"github.com/chrysante/scatha-sub006/mir"
)

// UseKind distinguishes a read from a write use point within an
// Interval, mirroring falcon's UKRead/UKWrite.
type UseKind int

const (
	UseRead UseKind = iota
	UseWrite
)

// UsePoint records one program position at which an interval's
// register is read or written.
type UsePoint struct {
	Pos  int
	Kind UseKind
}

// Range is a closed position interval [From, To] during which a
// register is live.
type Range struct {
	From, To int
}

// Interval is one virtual register's set of live ranges and use
// points across the linearized function, plus the allocation result:
// either a hardware register index or a spill slot.
type Interval struct {
	Reg       mir.Register
	Ranges    []Range
	Uses      []UsePoint
	PhysIndex int // -1 until assigned a hardware register
	Spilled   bool
	SpillSlot int // -1 until assigned a spill slot
}

func newInterval(reg mir.Register) *Interval {
	return &Interval{Reg: reg, PhysIndex: -1, SpillSlot: -1}
}

func (iv *Interval) firstRange() Range { return iv.Ranges[0] }
func (iv *Interval) lastRange() Range  { return iv.Ranges[len(iv.Ranges)-1] }

func (iv *Interval) cover(pos int) bool {
	for _, r := range iv.Ranges {
		if r.From <= pos && pos <= r.To {
			return true
		}
	}
	return false
}

// nextUseAtOrAfter returns the position of the earliest use point at
// or after pos, or math.MaxInt if none exists.
func (iv *Interval) nextUseAtOrAfter(pos int) int {
	best := math.MaxInt
	for _, u := range iv.Uses {
		if u.Pos >= pos && u.Pos < best {
			best = u.Pos
		}
	}
	return best
}

// intersect returns the earliest position at which iv and o are both
// live, and whether one exists at all. Mirrors falcon's
// Interval.intersect/intersectionPositionWith, generalized from the
// linked-range-list walk to a slice scan since splitting (the reason
// the teacher kept ranges as a mutable list) isn't implemented here.
func (iv *Interval) intersect(o *Interval) (int, bool) {
	best := -1
	for _, r1 := range iv.Ranges {
		for _, r2 := range o.Ranges {
			if r1.From <= r2.To && r2.From <= r1.To {
				k := max(r1.From, r2.From)
				if best == -1 || k < best {
					best = k
				}
			}
		}
	}
	return best, best != -1
}

func (iv *Interval) addUsePoint(pos int, kind UseKind) {
	iv.Uses = append(iv.Uses, UsePoint{Pos: pos, Kind: kind})
}

func sortRanges(iv *Interval) {
	for i := 1; i < len(iv.Ranges); i++ {
		for j := i; j > 0 && iv.Ranges[j-1].From > iv.Ranges[j].From; j-- {
			iv.Ranges[j-1], iv.Ranges[j] = iv.Ranges[j], iv.Ranges[j-1]
		}
	}
}

// mergeRanges coalesces overlapping or touching ranges after sorting.
func mergeRanges(iv *Interval) {
	if len(iv.Ranges) < 2 {
		return
	}
	out := iv.Ranges[:1]
	for _, r := range iv.Ranges[1:] {
		last := &out[len(out)-1]
		if r.From <= last.To+1 {
			if r.To > last.To {
				last.To = r.To
			}
			continue
		}
		out = append(out, r)
	}
	iv.Ranges = out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
