package ir

import (
	"github.com/dominikbraun/graph"
)

// CFG returns fn's control-flow graph as a dominikbraun/graph directed
// graph keyed by block ID. Neither asm nor the `graph` CLI subcommand
// uses it; the subcommand builds its graphs from disassembled code.
func CFG(fn *Function) graph.Graph[int, *Block] {
	g := graph.New(func(b *Block) int { return b.ID }, graph.Directed())
	for _, b := range fn.Blocks {
		_ = g.AddVertex(b)
	}
	for _, b := range fn.Blocks {
		for _, s := range b.Succs {
			_ = g.AddEdge(b.ID, s.ID)
		}
	}
	return g
}

// CallGraph returns the module's call graph: an edge m->n exists if m
// contains a Call/ForeignCall whose callee is (or resolves to) n.
// Direct calls only (the callee is an OpFunctionRef arg); indirect
// calls through a register/memory operand (MIR-level) are outside this
// IR-level view.
func CallGraph(m *Module) graph.Graph[string, *Function] {
	g := graph.New(func(f *Function) string { return f.Name }, graph.Directed())
	for _, fn := range m.Functions {
		_ = g.AddVertex(fn)
	}
	for _, fn := range m.Functions {
		for _, b := range fn.Blocks {
			for _, v := range b.Values {
				if v.Op != OpCall {
					continue
				}
				if len(v.Args) == 0 {
					continue
				}
				callee, ok := v.Args[0].Sym.(*Function)
				if !ok {
					continue
				}
				_ = g.AddEdge(fn.Name, callee.Name)
			}
		}
	}
	return g
}
