package ir

import "fmt"

// Block is an ordered sequence of Values (the last must be a
// terminator), a predecessor list, and a parent Function pointer.
// Mirrors falcon's compile/ssa.Block (WireTo/RemoveSucc/RemovePred
// kept verbatim), generalized from falcon's Kind-only dispatch to
// carry the terminator as a first-class trailing Value.
type Block struct {
	Func   *Function
	ID     int
	Name   string
	Values []*Value
	Succs  []*Block
	Preds  []*Block
	Ctrl   *Value // the terminator value, also the last element of Values

	domCache *domTreeNode // invalidated on any CFG edit; see domtree.go
}

func (b *Block) displayName() string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("bb%d", b.ID)
}

func (b *Block) String() string {
	s := fmt.Sprintf("%s:", b.displayName())
	if len(b.Preds) > 0 {
		s += " ; preds ="
		for _, p := range b.Preds {
			s += " " + p.displayName()
		}
	}
	s += "\n"
	for _, v := range b.Values {
		s += "  " + v.String() + "\n"
	}
	return s
}

// Terminator returns the block's terminating value, or nil if the
// block is still under construction.
func (b *Block) Terminator() *Value {
	if len(b.Values) == 0 {
		return nil
	}
	last := b.Values[len(b.Values)-1]
	if last.Op.IsTerminator() {
		return last
	}
	return nil
}

// WireTo adds an edge from b to to.
func (b *Block) WireTo(to *Block) {
	b.Succs = append(b.Succs, to)
	to.Preds = append(to.Preds, b)
}

// RemoveSucc removes the edge from b to succ.
func (b *Block) RemoveSucc(succ *Block) bool {
	for i, s := range b.Succs {
		if s == succ {
			b.Succs = append(b.Succs[:i], b.Succs[i+1:]...)
			return true
		}
	}
	return false
}

// RemovePred removes pred from b's predecessor list.
func (b *Block) RemovePred(pred *Block) bool {
	for i, p := range b.Preds {
		if p == pred {
			b.Preds = append(b.Preds[:i], b.Preds[i+1:]...)
			return true
		}
	}
	return false
}

// PredIndex returns the index of pred in b's predecessor list, or -1.
func (b *Block) PredIndex(pred *Block) int { return b.predIndex(pred) }

// predIndex returns the index of pred in b's predecessor list, or -1.
func (b *Block) predIndex(pred *Block) int {
	for i, p := range b.Preds {
		if p == pred {
			return i
		}
	}
	return -1
}

// UpdatePredecessor rewrites every reference to old as a predecessor of
// b into new: the predecessor-list entry itself and the corresponding
// phi operand in every phi of b. Per §4.1's updatePredecessor contract.
func (b *Block) UpdatePredecessor(old, new *Block) {
	i := b.predIndex(old)
	if i < 0 {
		return
	}
	b.Preds[i] = new
	for _, v := range b.Values {
		if v.Op != OpPhi {
			continue
		}
		// phi operands are kept parallel to Preds; no rewrite of the
		// value itself is needed, only the predecessor identity above.
		_ = v
	}
}

// RemovePredecessor removes p from b's predecessor list and shrinks
// every phi's argument list in lockstep, per §4.1.
func (b *Block) RemovePredecessor(p *Block) {
	i := b.predIndex(p)
	if i < 0 {
		return
	}
	b.Preds = append(b.Preds[:i], b.Preds[i+1:]...)
	for _, v := range b.Values {
		if v.Op != OpPhi {
			continue
		}
		def := v.Args[i]
		def.RemoveUse(v)
		v.Args = append(v.Args[:i], v.Args[i+1:]...)
	}
}

// NewValue allocates a fresh Value owned by b, appending it to the
// block's instruction list (phis are inserted at the front, matching
// falcon's convention that phis always lead a block).
func (b *Block) NewValue(op Op, t *Type, args ...*Value) *Value {
	v := &Value{ID: b.Func.nextValueID(), Op: op, Type: t, Block: b}
	v.AddArg(args...)
	if op == OpPhi {
		b.Values = append([]*Value{v}, b.Values...)
	} else {
		b.Values = append(b.Values, v)
	}
	if op.IsTerminator() {
		b.Ctrl = v
	}
	return v
}

// RemoveValue detaches val from b: clears its operands (updating
// def-use on each) and removes it from the block's instruction list.
// Per §4.1's "Instruction erasure".
func (b *Block) RemoveValue(val *Value) {
	for i, v := range b.Values {
		if v != val {
			continue
		}
		for _, arg := range val.Args {
			arg.RemoveUse(val)
		}
		b.Values = append(b.Values[:i], b.Values[i+1:]...)
		if b.Ctrl == val {
			b.Ctrl = nil
		}
		return
	}
}

// InsertBefore inserts val immediately before mark in b's instruction
// list (mark must already be in b).
func (b *Block) InsertBefore(mark, val *Value) {
	for i, v := range b.Values {
		if v == mark {
			b.Values = append(b.Values[:i], append([]*Value{val}, b.Values[i:]...)...)
			val.Block = b
			return
		}
	}
}

// Phis returns the leading run of phi values in b.
func (b *Block) Phis() []*Value {
	var out []*Value
	for _, v := range b.Values {
		if v.Op != OpPhi {
			break
		}
		out = append(out, v)
	}
	return out
}
