package ir

import "fmt"

// DomTree is the dominator relation of a function, computed by
// standard iterative dataflow over reverse postorder (O(n^2)). This is
// falcon's compile/ssa/domtree.go algorithm verbatim
// (intersect/union over per-block dominator sets), generalized from
// falcon's fn.Entry/fn.Blocks to this package's Function/Block types.
type DomTree struct {
	Func *Function
	dom  map[*Block][]*Block
}

type domTreeNode struct {
	idom *Block
}

// Dominates reports whether a dominates b: every path from the entry
// to b passes through a.
func (dt *DomTree) Dominates(a, b *Block) bool {
	for _, d := range dt.dom[b] {
		if d == a {
			return true
		}
	}
	return false
}

// StrictlyDominates reports whether a dominates b and a != b.
func (dt *DomTree) StrictlyDominates(a, b *Block) bool {
	return dt.Dominates(a, b) && a != b
}

// ImmediatelyDominates reports whether a is b's immediate dominator.
func (dt *DomTree) ImmediatelyDominates(a, b *Block) bool {
	if !dt.StrictlyDominates(a, b) {
		return false
	}
	for _, c := range dt.dom[b] {
		if c != a && c != b && dt.StrictlyDominates(a, c) && dt.StrictlyDominates(c, b) {
			return false
		}
	}
	return true
}

// IDom returns b's immediate dominator, or nil for the entry block.
func (dt *DomTree) IDom(b *Block) *Block {
	if b.domCache != nil {
		return b.domCache.idom
	}
	for _, c := range dt.dom[b] {
		if dt.ImmediatelyDominates(c, b) {
			b.domCache = &domTreeNode{idom: c}
			return c
		}
	}
	b.domCache = &domTreeNode{}
	return nil
}

// DomSet returns every block that dominates b, including b itself.
func (dt *DomTree) DomSet(b *Block) []*Block { return dt.dom[b] }

func intersectBlocks(a, b []*Block) []*Block {
	if len(a) > len(b) {
		a, b = b, a
	}
	set := make(map[*Block]bool, len(b))
	for _, x := range b {
		set[x] = true
	}
	res := make([]*Block, 0, len(a))
	for _, x := range a {
		if set[x] {
			res = append(res, x)
		}
	}
	return res
}

func unionBlocks(a, b []*Block) []*Block {
	set := make(map[*Block]bool, len(a)+len(b))
	for _, x := range a {
		set[x] = true
	}
	for _, x := range b {
		set[x] = true
	}
	res := make([]*Block, 0, len(set))
	for x := range set {
		res = append(res, x)
	}
	return res
}

func (dt *DomTree) String() string {
	s := "dom tree:\n"
	for b, doms := range dt.dom {
		s += fmt.Sprintf("  %s:", b.displayName())
		for _, d := range doms {
			s += " " + d.displayName()
		}
		s += "\n"
	}
	return s
}

// BuildDomTree computes the dominator tree of fn, or returns fn's
// cached copy if no CFG edit has invalidated it since.
func BuildDomTree(fn *Function) *DomTree {
	if fn.domTree != nil {
		return fn.domTree
	}
	dom := make(map[*Block][]*Block, len(fn.Blocks))
	dom[fn.Entry] = []*Block{fn.Entry}
	for _, b := range fn.Blocks {
		if b != fn.Entry {
			dom[b] = fn.Blocks
		}
	}
	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			if b == fn.Entry {
				continue
			}
			var nd []*Block
			if len(b.Preds) > 0 {
				nd = dom[b.Preds[0]]
				for _, p := range b.Preds[1:] {
					nd = intersectBlocks(nd, dom[p])
				}
			}
			nd = unionBlocks(nd, []*Block{b})
			if len(nd) != len(dom[b]) {
				changed = true
				dom[b] = nd
			}
		}
	}
	dt := &DomTree{Func: fn, dom: dom}
	fn.domTree = dt
	return dt
}

// DominanceFrontier returns, for each block, the set of blocks at
// which its dominance stops: blocks b such that some predecessor of b
// is dominated by the block but b itself is not strictly dominated by
// it. Standard Cytron et al. construction, new relative to falcon
// (falcon has no DF/PRE/mem2reg passes to need it).
func DominanceFrontier(fn *Function) map[*Block][]*Block {
	dt := BuildDomTree(fn)
	df := make(map[*Block][]*Block)
	for _, b := range fn.Blocks {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			runner := p
			for runner != nil && runner != dt.IDom(b) {
				df[runner] = appendUnique(df[runner], b)
				runner = dt.IDom(runner)
			}
		}
	}
	return df
}

func appendUnique(s []*Block, b *Block) []*Block {
	for _, x := range s {
		if x == b {
			return s
		}
	}
	return append(s, b)
}

// IteratedDominanceFrontier returns the closure of DominanceFrontier
// over the given seed block set, the placement set for phi insertion
// in Mem2Reg.
func IteratedDominanceFrontier(fn *Function, seeds []*Block) []*Block {
	df := DominanceFrontier(fn)
	inResult := make(map[*Block]bool)
	var result []*Block
	worklist := append([]*Block(nil), seeds...)
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, f := range df[b] {
			if !inResult[f] {
				inResult[f] = true
				result = append(result, f)
				worklist = append(worklist, f)
			}
		}
	}
	return result
}
