package ir

import "fmt"

// Loop is one node of a function's loop-nesting forest: a header, the
// loop's latch (tail) if found, its body blocks, and its place in the
// nesting hierarchy. Mirrors falcon's compile/ssa.Loop (Header/Tail/
// Body/Parent/Childrens/Irreducible) field for field.
type Loop struct {
	Header      *Block
	Tail        *Block
	Body        []*Block
	Parent      *Loop
	Children    []*Loop
	Irreducible bool
}

func (l *Loop) String() string { return fmt.Sprintf("loop(%s)", l.Header.displayName()) }

// IsRotated reports whether the loop's latch, not its header, decides
// whether to continue iterating (i.e. the latch has more than one
// successor). Ported from falcon's Loop.IsRotated.
func (l *Loop) IsRotated() bool {
	return l.Tail != nil && len(l.Tail.Succs) > 1
}

// IsProperLoop reports whether this node denotes an actual loop
// (header reachable from within its own body) per §4.1's
// isProperLoop() contract.
func (l *Loop) IsProperLoop() bool { return l.Tail != nil }

// IsLoopNodeOf reports whether l is the loop node headed by header,
// i.e. whether l.Header is header, per §4.1's isLoopNodeOf(header)
// contract. It does not test body membership or enclosing loops.
func (l *Loop) IsLoopNodeOf(header *Block) bool {
	return l.Header == header
}

// LoopTree is a function's full loop-nesting forest.
type LoopTree struct {
	Func  *Function
	Loops []*Loop
}

// ByHeader returns the loop headed by b, or nil.
func (lt *LoopTree) ByHeader(b *Block) *Loop {
	for _, l := range lt.Loops {
		if l.Header == b {
			return l
		}
	}
	return nil
}

// RootLoops returns the top-level (non-nested) loops, in the order
// they were discovered by the DFS below — this is also rank order,
// the traversal order loop rotation (opt package) replays as "BFS rank
// order of the LNF" per spec.md §4.2.
func (lt *LoopTree) RootLoops() []*Loop {
	var roots []*Loop
	for _, l := range lt.Loops {
		if l.Parent == nil {
			roots = append(roots, l)
		}
	}
	return roots
}

// loopBuilder implements "A New Algorithm for Identifying Loops in
// Decompilation" (Wei et al.): single DFS pass, O(V+E), detects
// irreducible loops. Ported verbatim from falcon's compile/ssa/loop.go
// LoopBuilder (visited/dfsp/iheader/headers/irreducible + taggingHeader
// + traverse), retyped onto this package's Block.
type loopBuilder struct {
	visited     map[*Block]bool
	dfsp        map[*Block]int
	iheader     map[*Block]*Block
	headers     []*Block
	irreducible map[*Block]bool
}

func (lb *loopBuilder) taggingHeader(b, h *Block) {
	if b == h || h == nil {
		return
	}
	cur1, cur2 := b, h
	for lb.iheader[cur1] != nil {
		ih := lb.iheader[cur1]
		if ih == cur2 {
			return
		}
		if lb.dfsp[ih] < lb.dfsp[cur2] {
			lb.iheader[cur1] = cur2
			cur1 = cur2
			cur2 = ih
		} else {
			cur1 = ih
		}
	}
	lb.iheader[cur1] = cur2
}

func (lb *loopBuilder) traverse(b0 *Block, pos int) *Block {
	lb.visited[b0] = true
	lb.dfsp[b0] = pos
	for _, b := range b0.Succs {
		if !lb.visited[b] {
			nh := lb.traverse(b, pos+1)
			lb.taggingHeader(b0, nh)
			continue
		}
		if lb.dfsp[b] > 0 {
			lb.headers = append(lb.headers, b)
			lb.taggingHeader(b0, b)
		} else if lb.iheader[b] == nil {
			// not in the current path and not in any loop body: nothing to do
		} else {
			h := lb.iheader[b]
			if lb.dfsp[h] > 0 {
				lb.taggingHeader(b0, h)
			} else {
				lb.irreducible[h] = true
				for lb.iheader[h] != nil {
					h = lb.iheader[h]
					if lb.dfsp[h] > 0 {
						lb.taggingHeader(b0, h)
						break
					}
					lb.irreducible[h] = true
				}
			}
		}
	}
	lb.dfsp[b0] = 0
	return lb.iheader[b0]
}

// BuildLoopTree computes fn's loop-nesting forest, or returns fn's
// cached copy.
func BuildLoopTree(fn *Function) *LoopTree {
	if fn.lnf != nil {
		return fn.lnf
	}
	lb := &loopBuilder{
		visited:     make(map[*Block]bool),
		dfsp:        make(map[*Block]int),
		iheader:     make(map[*Block]*Block),
		irreducible: make(map[*Block]bool),
	}
	lb.traverse(fn.Entry, 0)

	dt := BuildDomTree(fn)
	lt := &LoopTree{Func: fn}
	for _, h := range lb.headers {
		if lt.ByHeader(h) != nil {
			continue
		}
		loop := &Loop{Header: h, Irreducible: lb.irreducible[h]}
		for _, p := range h.Preds {
			if dt.Dominates(h, p) {
				loop.Tail = p
				break
			}
		}
		lt.Loops = append(lt.Loops, loop)
	}
	for _, b := range fn.Blocks {
		h := lb.iheader[b]
		if h == nil {
			continue
		}
		loop := lt.ByHeader(h)
		loop.Body = append(loop.Body, b)
		if inner := lt.ByHeader(b); inner != nil {
			inner.Parent = loop
			loop.Children = append(loop.Children, inner)
		}
	}
	fn.lnf = lt
	return lt
}
