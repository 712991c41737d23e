package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/asm"
	"github.com/chrysante/scatha-sub006/bignum"
	"github.com/chrysante/scatha-sub006/ir"
	"github.com/chrysante/scatha-sub006/mir"
	"github.com/chrysante/scatha-sub006/regalloc"
)

// buildAddProgram assembles a tiny "add" function, the same shape
// asm's own tests build, so the CLI's link/run/inspect/graph
// subcommands have a real .sprog to exercise without needing a
// frontend.
func buildAddProgram(t *testing.T) *asm.Program {
	t.Helper()
	m := ir.NewModule("t")
	bd := ir.NewBuilder(m)
	fn := m.NewFunction("add", m.Context.IntType(64), ir.VisibilityExternal)
	b := fn.NewBlock("entry")
	a := bd.ConstInt(b, 64, bignum.FromInt64(3))
	c := bd.ConstInt(b, 64, bignum.FromInt64(4))
	sum := bd.Arithmetic(b, ir.OpAdd, a, c)
	bd.Return(b, sum)

	mfn := mir.Lower(fn)
	regalloc.Allocate(mfn, regalloc.DefaultHardwareRegisters)
	mod := &mir.Module{Functions: []*mir.Function{mfn}}

	prog, err := asm.Assemble(mod, "add")
	require.NoError(t, err)
	return prog
}

func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLinkThenRun(t *testing.T) {
	dir := t.TempDir()
	sprog := filepath.Join(dir, "add.sprog")
	sbin := filepath.Join(dir, "add.sbin")

	require.NoError(t, saveProgram(sprog, buildAddProgram(t)))

	_, err := execCmd(t, "link", sprog, "--output", sbin, "-b")
	require.NoError(t, err)

	out, err := execCmd(t, "run", sbin)
	require.NoError(t, err)
	assert.Contains(t, out, "exit code:")
}

func TestInspectAsm(t *testing.T) {
	dir := t.TempDir()
	sprog := filepath.Join(dir, "add.sprog")
	require.NoError(t, saveProgram(sprog, buildAddProgram(t)))

	out, err := execCmd(t, "inspect", "--asm", sprog)
	require.NoError(t, err)
	assert.Contains(t, out, "add:")
}

func TestInspectPipelineSpec(t *testing.T) {
	out, err := execCmd(t, "inspect", "--pipeline", "dce,mem2reg")
	require.NoError(t, err)
	assert.Contains(t, out, "dce")
	assert.Contains(t, out, "mem2reg")
}

func TestInspectPipelineUnknownPass(t *testing.T) {
	_, err := execCmd(t, "inspect", "--pipeline", "not-a-real-pass")
	assert.Error(t, err)
	assert.True(t, isInvocationError(err))
}

func TestInspectFrontendFlagsRejected(t *testing.T) {
	_, err := execCmd(t, "inspect", "--ast")
	assert.Error(t, err)
	assert.True(t, isInvocationError(err))
}

func TestGraphCFG(t *testing.T) {
	dir := t.TempDir()
	sprog := filepath.Join(dir, "add.sprog")
	require.NoError(t, saveProgram(sprog, buildAddProgram(t)))

	_, err := execCmd(t, "graph", sprog, "--cfg", "--dest", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "cfg.dot"))
}

func TestGraphCalls(t *testing.T) {
	dir := t.TempDir()
	sprog := filepath.Join(dir, "add.sprog")
	require.NoError(t, saveProgram(sprog, buildAddProgram(t)))

	_, err := execCmd(t, "graph", sprog, "--calls", "--dest", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "calls.dot"))
}

func TestRunExitCode(t *testing.T) {
	assert.Equal(t, -1, run([]string{"link", "/nonexistent/path.sprog"}))
}
