package ir

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("stage", "ir")

// VerifyError describes one violated invariant found by Verify.
type VerifyError struct {
	Func    *Function
	Message string
}

func (e *VerifyError) Error() string {
	fname := "<nil>"
	if e.Func != nil {
		fname = e.Func.Name
	}
	return fmt.Sprintf("ir: function %s: %s", fname, e.Message)
}

// reachableBlocks returns every block reachable from fn's entry.
func reachableBlocks(fn *Function) map[*Block]bool {
	seen := map[*Block]bool{fn.Entry: true}
	stack := []*Block{fn.Entry}
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

// Verify checks every invariant listed in §4.1 and §8's "Universal
// invariants": SSA use-dominance (including the phi predecessor rule),
// exactly-one-terminator-per-block, predecessor/phi-arity agreement,
// and basic type correctness. It returns the first violation found, or
// nil if fn is well-formed. Mirrors falcon's hir.go VerifyHIR/VerifyDom
// in spirit (panic-on-violation debug check) but returns an error
// instead of calling utils.Fatal, since this validator is meant to run
// routinely after any transformation (§7: "tools should run the
// validator after any experimental transformation"), not only in a
// hard-coded debug build.
// Verify checks fn's invariants and logs a warning naming the
// violation before returning it, so a verification failure anywhere in
// a pipeline run leaves a trace even when the caller only propagates
// the error.
func Verify(fn *Function) error {
	err := verify(fn)
	if err != nil {
		log.WithField("func", fn.Name).Warn(err)
	}
	return err
}

func verify(fn *Function) error {
	if fn.Entry == nil {
		return &VerifyError{fn, "function has no entry block"}
	}
	if len(fn.Entry.Preds) != 0 {
		return &VerifyError{fn, "entry block has predecessors"}
	}
	reach := reachableBlocks(fn)
	for _, b := range fn.Blocks {
		if !reach[b] {
			return &VerifyError{fn, fmt.Sprintf("block %s is unreachable", b.displayName())}
		}
		if b.Terminator() == nil {
			return &VerifyError{fn, fmt.Sprintf("block %s has no terminator", b.displayName())}
		}
		for _, v := range b.Values {
			if v.Op.IsTerminator() && v != b.Values[len(b.Values)-1] {
				return &VerifyError{fn, fmt.Sprintf("block %s has a terminator before its end", b.displayName())}
			}
		}
		switch len(b.Succs) {
		case 0:
			if b.Terminator().Op != OpReturn {
				return &VerifyError{fn, fmt.Sprintf("block %s has no successors but is not a return", b.displayName())}
			}
		case 1:
			if b.Terminator().Op != OpGoto {
				return &VerifyError{fn, fmt.Sprintf("block %s has one successor but is not a goto", b.displayName())}
			}
		case 2:
			if b.Terminator().Op != OpBranch {
				return &VerifyError{fn, fmt.Sprintf("block %s has two successors but is not a branch", b.displayName())}
			}
		default:
			return &VerifyError{fn, fmt.Sprintf("block %s has %d successors", b.displayName(), len(b.Succs))}
		}
		for _, v := range b.Values {
			if v.Op == OpPhi && len(v.Args) != len(b.Preds) {
				return &VerifyError{fn, fmt.Sprintf("phi %%%s has %d args but block has %d preds", v.displayName(), len(v.Args), len(b.Preds))}
			}
			if v.Type == nil && v.Op != OpGoto && v.Op != OpBranch {
				return &VerifyError{fn, fmt.Sprintf("value %%%s is untyped", v.displayName())}
			}
			if v.Op == OpBranch {
				if cond := v.Args[0]; cond.Type != nil && !cond.Type.IsBool() {
					return &VerifyError{fn, fmt.Sprintf("branch condition %%%s is not i1", cond.displayName())}
				}
			}
		}
	}

	dt := BuildDomTree(fn)
	for _, b := range fn.Blocks {
		for _, v := range b.Values {
			for _, use := range v.Uses {
				if use.Op == OpPhi {
					idx := use.Block.predIndex(v.Block)
					// v may be used by the phi multiple times across preds;
					// check every slot where v is actually the phi operand.
					for i, a := range use.Args {
						if a != v {
							continue
						}
						pred := use.Block.Preds[i]
						if !dt.Dominates(v.Block, pred) {
							return &VerifyError{fn, fmt.Sprintf("phi operand %%%s(%s) does not dominate predecessor %s", v.displayName(), v.Block.displayName(), pred.displayName())}
						}
					}
					_ = idx
					continue
				}
				if !dt.Dominates(v.Block, use.Block) {
					return &VerifyError{fn, fmt.Sprintf("def %%%s(%s) does not dominate use %%%s(%s)", v.displayName(), v.Block.displayName(), use.displayName(), use.Block.displayName())}
				}
			}
		}
	}
	return nil
}
