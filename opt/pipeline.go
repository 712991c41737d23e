// Package opt implements the IR optimization passes of spec.md §4.2: a
// registered-pass pipeline running Mem2Reg, dead code elimination,
// constant folding/propagation, CSE/PRE, loop rotation, inlining,
// instruction combining, and CFG simplification to a fixed point.
//
// The pipeline driver generalizes falcon's compile/ssa/optimize.go
// Optimizer.Ideal() (a hardcoded simplifyPhi/simplifyCFG/dce loop run
// to a fixed point) into the registered-pass-with-category contract
// §4.2 requires.
package opt

import (
	"github.com/sirupsen/logrus"

	"github.com/chrysante/scatha-sub006/ir"
)

// Category classifies a Pass for the registry and for pipeline-spec
// parsing (cmd/scatha's `inspect --pipeline <spec>`).
type Category int

const (
	CategoryCanonicalization Category = iota
	CategorySimplification
	CategoryAnalysis
	CategoryOther
)

func (c Category) String() string {
	switch c {
	case CategoryCanonicalization:
		return "canonicalization"
	case CategorySimplification:
		return "simplification"
	case CategoryAnalysis:
		return "analysis"
	default:
		return "other"
	}
}

// Pass is a single optimization: it reports whether it changed fn.
type Pass func(fn *ir.Function) bool

// PassInfo is one entry in the global pass registry.
type PassInfo struct {
	Name     string
	Category Category
	Run      Pass
}

var registry = map[string]*PassInfo{}

// Register adds a pass to the global registry under name. Passes
// self-register from init() in their own file, per §4.2.
func Register(name string, cat Category, run Pass) {
	registry[name] = &PassInfo{Name: name, Category: cat, Run: run}
}

// Lookup returns the registered pass named name, or nil.
func Lookup(name string) *PassInfo { return registry[name] }

// Names returns every registered pass name, for `inspect --pipeline`
// help text.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

// Pipeline is a parsed sequence of pass invocations applied in order.
type Pipeline struct {
	Passes []string
	Budget int // max total rounds before giving up; 0 = unbounded
	Debug  bool
	log    *logrus.Entry
}

// DefaultPipeline is the `-O` optimization pipeline: canonicalize,
// simplify to a fixed point, then the heavier transforms once per
// round, repeating until nothing changes or the budget is exhausted.
func DefaultPipeline() *Pipeline {
	return &Pipeline{
		Passes: []string{
			"mem2reg", "simplifycfg", "simplifyphi", "dce",
			"constfold", "cse", "instcombine", "inline",
			"looprotate", "simplifycfg", "dce",
		},
		Budget: 32,
		log:    logrus.WithField("stage", "opt"),
	}
}

// Run applies the pipeline's passes to fn repeatedly until a fixed
// point is reached within the configured budget. Each pass invalidates
// fn's cached analyses via the ir package whenever it mutates the CFG,
// so the pipeline never has to reason about staleness itself.
func (p *Pipeline) Run(fn *ir.Function) {
	if p.log == nil {
		p.log = logrus.WithField("stage", "opt")
	}
	round := 0
	for {
		changed := false
		for _, name := range p.Passes {
			info := Lookup(name)
			if info == nil {
				continue
			}
			if info.Run(fn) {
				changed = true
				if p.Debug {
					p.log.WithFields(logrus.Fields{"pass": name, "func": fn.Name, "round": round}).Debug("pass changed function")
				}
			}
		}
		round++
		if !changed {
			break
		}
		if p.Budget > 0 && round >= p.Budget {
			p.log.WithField("func", fn.Name).Warn("optimizer pass budget exhausted before fixed point")
			break
		}
	}
	if p.Debug {
		p.log.WithFields(logrus.Fields{"func": fn.Name, "rounds": round}).Debug("optimization complete")
	}
}
