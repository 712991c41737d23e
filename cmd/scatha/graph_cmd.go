package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/emicklei/dot"
	"github.com/spf13/cobra"

	"github.com/chrysante/scatha-sub006/asm"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <program.sprog>",
		Short: "Render a program's control-flow or call graph as Graphviz dot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := cmd.Flags().GetBool("cfg")
			calls, _ := cmd.Flags().GetBool("calls")
			interference, _ := cmd.Flags().GetBool("interference")
			selDag, _ := cmd.Flags().GetBool("selection-dag")
			dest, _ := cmd.Flags().GetString("dest")
			svg, _ := cmd.Flags().GetBool("svg")

			if interference || selDag {
				return invocationErrorf("graph --interference/--selection-dag require an in-progress regalloc/mir pipeline run, not a linked artifact; use the Go API (regalloc.Allocate, mir.Lower) directly for these views")
			}
			if !cfg && !calls {
				return invocationErrorf("graph: specify --cfg or --calls")
			}

			prog, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			lines, err := disassemble(prog.Code)
			if err != nil {
				return invocationErrorf("disassembling %s: %w", args[0], err)
			}

			var g *dot.Graph
			var name string
			if cfg {
				g, err = renderCFG(lines)
				name = "cfg"
			} else {
				g, err = renderCallGraph(prog, lines)
				name = "calls"
			}
			if err != nil {
				return err
			}

			if err := os.MkdirAll(dest, 0o755); err != nil {
				return invocationErrorf("creating %s: %w", dest, err)
			}
			dotPath := filepath.Join(dest, name+".dot")
			if err := os.WriteFile(dotPath, []byte(g.String()), 0o644); err != nil {
				return invocationErrorf("writing %s: %w", dotPath, err)
			}
			cmd.Printf("wrote %s\n", dotPath)

			if svg {
				svgPath := filepath.Join(dest, name+".svg")
				if err := renderSVG(dotPath, svgPath); err != nil {
					log.WithError(err).Warn("rendering svg failed; is graphviz's `dot` installed?")
					return err
				}
				cmd.Printf("wrote %s\n", svgPath)
			}
			return nil
		},
	}
	cmd.Flags().Bool("cfg", false, "render the control-flow graph reconstructed from the binary")
	cmd.Flags().Bool("calls", false, "render the call graph")
	cmd.Flags().Bool("interference", false, "render the register-allocator interference graph (Go API only)")
	cmd.Flags().Bool("selection-dag", false, "render the instruction-selection DAG (Go API only)")
	cmd.Flags().String("dest", ".", "output directory")
	cmd.Flags().Bool("svg", false, "also render to SVG via the graphviz `dot` binary")
	cmd.Flags().Bool("open", false, "open the rendered SVG (requires --svg; not implemented headlessly)")
	return cmd
}

// renderCFG builds one dominikbraun/graph vertex per instruction
// offset that begins a basic block (the entry instruction, every
// branch target, and every instruction right after a branch) and an
// edge per fallthrough/branch successor, mirroring the block-boundary
// rule ir.CFG applies to an in-memory ir.Function.
func renderCFG(lines []disasmLine) (*dot.Graph, error) {
	if len(lines) == 0 {
		return nil, invocationErrorf("graph --cfg: empty code section")
	}
	leaders := map[int]bool{lines[0].offset: true}
	for i, l := range lines {
		if l.isBranch {
			leaders[l.target] = true
			if i+1 < len(lines) {
				leaders[lines[i+1].offset] = true
			}
		}
	}
	leaderList := make([]int, 0, len(leaders))
	for off := range leaders {
		leaderList = append(leaderList, off)
	}
	sort.Ints(leaderList)

	g := graph.New(graph.IntHash, graph.Directed())
	for _, off := range leaderList {
		_ = g.AddVertex(off)
	}
	blockOf := func(off int) int {
		// largest leader <= off
		idx := sort.SearchInts(leaderList, off+1) - 1
		if idx < 0 {
			idx = 0
		}
		return leaderList[idx]
	}
	for i, l := range lines {
		src := blockOf(l.offset)
		if l.isBranch {
			_ = g.AddEdge(src, blockOf(l.target))
			if !l.unconditional && i+1 < len(lines) {
				_ = g.AddEdge(src, blockOf(lines[i+1].offset))
			}
			continue
		}
		if l.isTerminator {
			continue
		}
		// fall through to the next block leader
		if i+1 < len(lines) && leaders[lines[i+1].offset] {
			_ = g.AddEdge(src, lines[i+1].offset)
		}
	}
	return toDot(g, "cfg")
}

// renderCallGraph builds an edge per Call instruction, labeling
// vertices with the enclosing symbol name when prog.Symbols places
// the call's target and source inside a known function.
func renderCallGraph(prog *asm.Program, lines []disasmLine) (*dot.Graph, error) {
	symbolAt := buildSymbolLookup(prog)

	g := graph.New(func(s string) string { return s }, graph.Directed())
	for name := range prog.Symbols {
		_ = g.AddVertex(name)
	}
	for _, l := range lines {
		if !l.isCall {
			continue
		}
		caller := symbolAt(l.offset)
		callee := symbolAt(l.call)
		if caller == "" || callee == "" {
			continue
		}
		_ = g.AddEdge(caller, callee)
	}
	return toDot(g, "calls")
}

func buildSymbolLookup(prog *asm.Program) func(offset int) string {
	offsets := make([]int, 0, len(prog.Symbols))
	nameByOffset := make(map[int]string, len(prog.Symbols))
	for name, off := range prog.Symbols {
		offsets = append(offsets, off)
		nameByOffset[off] = name
	}
	sort.Ints(offsets)
	return func(offset int) string {
		idx := sort.SearchInts(offsets, offset+1) - 1
		if idx < 0 {
			return ""
		}
		return nameByOffset[offsets[idx]]
	}
}

// toDot renders a dominikbraun/graph directed graph whose vertex
// value is the same as its hash (true for both renderCFG's int-keyed
// and renderCallGraph's string-keyed graphs) into an emicklei/dot
// graph, relying on dot.Graph.Node's own memoize-by-id behavior rather
// than tracking node identity ourselves.
func toDot[K comparable](g graph.Graph[K, K], name string) (*dot.Graph, error) {
	out := dot.NewGraph(dot.Directed)
	out.Attr("label", name)
	adjacency, err := g.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("graph: reading adjacency map: %w", err)
	}
	nodeID := func(k K) string { return fmt.Sprintf("%v", k) }
	for src, edges := range adjacency {
		srcNode := out.Node(nodeID(src))
		for dst := range edges {
			out.Edge(srcNode, out.Node(nodeID(dst)))
		}
	}
	return out, nil
}

func renderSVG(dotPath, svgPath string) error {
	cmd := exec.Command("dot", "-Tsvg", dotPath, "-o", svgPath)
	return cmd.Run()
}
