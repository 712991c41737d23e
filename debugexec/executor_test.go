package debugexec_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/debugexec"
	"github.com/chrysante/scatha-sub006/isa"
)

// program is a tiny hand-assembled byte-buffer builder, the same
// shape as vm's own test helper, kept local since it is unexported
// there.
type program struct {
	buf bytes.Buffer
}

func (p *program) op(op isa.Opcode) { p.buf.WriteByte(byte(op)) }
func (p *program) u8(b byte)        { p.buf.WriteByte(b) }
func (p *program) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	p.buf.Write(b[:])
}

func (p *program) build() []byte {
	code := p.buf.Bytes()
	header := isa.NewProgramHeader(uint64(isa.HeaderSize), uint64(len(code)))
	return append(header.Encode(), code...)
}

func threeInstructionProgram() []byte {
	var p program
	p.op(isa.OpMov64RV)
	p.u8(0)
	p.u64(5)
	p.op(isa.OpMov64RV)
	p.u8(1)
	p.u64(7)
	p.op(isa.OpTerminate)
	return p.build()
}

// collector gathers every event a Messenger delivers, for assertions
// against the sequence an Executor run is expected to produce.
type collector struct {
	mu     sync.Mutex
	events []any
}

func (c *collector) listen(event any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *collector) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.events...)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestExecutorRunsToCompletion(t *testing.T) {
	msgr := debugexec.NewMessenger(func(task func()) { task() })
	col := &collector{}
	msgr.Listen(col.listen)

	exec := debugexec.NewExecutor(msgr)
	exec.SetBinary(threeInstructionProgram())
	exec.Start(context.Background())
	defer exec.Shutdown()

	exec.StartExecution()
	waitUntil(t, func() bool {
		for _, e := range col.snapshot() {
			if _, ok := e.(debugexec.ProcessTerminated); ok {
				return true
			}
		}
		return false
	})

	var terminated []debugexec.ProcessTerminated
	for _, e := range col.snapshot() {
		if term, ok := e.(debugexec.ProcessTerminated); ok {
			terminated = append(terminated, term)
		}
	}
	require.Len(t, terminated, 1)
	assert.Equal(t, int64(0), terminated[0].ExitCode)
}

func TestExecutorStepInstructionFromIdleStaysIdle(t *testing.T) {
	msgr := debugexec.NewMessenger(func(task func()) { task() })
	exec := debugexec.NewExecutor(msgr)
	exec.SetBinary(threeInstructionProgram())
	exec.Start(context.Background())
	defer exec.Shutdown()

	exec.StartExecution()
	waitUntil(t, func() bool { return exec.IsRunning() || exec.IsPaused() || exec.IsIdle() })
	exec.StopExecution()
	waitUntil(t, exec.IsIdle)

	exec.StepInstruction()
	// StepInstruction from Idle is a no-op per the state table; the
	// Executor stays Idle until a StartExecution loads a program.
	waitUntil(t, exec.IsIdle)
}

func TestExecutorShutdownIsIdempotent(t *testing.T) {
	exec := debugexec.NewExecutor(nil)
	exec.SetBinary(threeInstructionProgram())
	exec.Start(context.Background())
	require.NoError(t, exec.Shutdown())
	assert.NoError(t, exec.Shutdown())
}

func TestBreakEventDiff(t *testing.T) {
	a := debugexec.BreakEvent{IPtr: 4, State: debugexec.BreakStep}
	b := debugexec.BreakEvent{IPtr: 4, State: debugexec.BreakStep}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("identical break events should diff empty, got:\n%s", diff)
	}
	c := debugexec.BreakEvent{IPtr: 8, State: debugexec.BreakPaused}
	if diff := cmp.Diff(a, c); diff == "" {
		t.Errorf("expected a diff between distinct break events, got none")
	}
}
