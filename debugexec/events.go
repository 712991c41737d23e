// Package debugexec implements the debugger collaborator of spec.md
// §4.8: an Executor that runs a linked program on a dedicated
// goroutine behind a command queue and an explicit state machine, and
// a Messenger that buffers and delivers the events a UI (out of scope
// here, per spec.md §1) would subscribe to.
//
// Grounded on original_source/src/scathadb/Model/Executor.cc (the
// Impl state machine, command queue, and per-state transition
// functions) and original_source/include/scathadb/Util/Messenger.h
// (the buffered publish/subscribe shape); the original's
// std::thread/condition_variable pairing is carried over nearly
// verbatim (a mutex+condition-variable command queue feeding a single
// goroutine's state-machine loop), with golang.org/x/sync/errgroup
// added around goroutine startup and Shutdown to give the loop's
// lifecycle an explicit error-propagating join instead of a bare
// thread.join().
package debugexec

import "github.com/chrysante/scatha-sub006/vm"

// BreakState classifies why a BreakEvent fired.
type BreakState int

const (
	BreakPaused BreakState = iota
	BreakStep
	BreakError
)

// BreakEvent is sent (buffered) whenever the Executor transitions into
// Paused: a breakpoint or step completed, or a RuntimeException was
// raised and the instruction pointer rewound to the faulting
// instruction.
type BreakEvent struct {
	IPtr  int
	State BreakState
	Err   error
}

// WillStepInstruction/DidStepInstruction bracket one Executor.Step
// call; a debugger UI uses the pair to re-render register/memory
// state only once per instruction rather than on every VM-internal
// mutation.
type WillStepInstruction struct{ IPtr int }
type DidStepInstruction struct{ IPtr int }

// WillStepSourceLine/DidStepSourceLine bracket a StepSourceLine
// command. DidStepSourceLine carries IsReturn so the Executor knows
// whether the line boundary was reached by stepping out of the
// current function, in which case it resumes with one more
// instruction step rather than pausing immediately.
type WillStepSourceLine struct{ IPtr int }
type DidStepSourceLine struct {
	IPtr     int
	IsReturn bool
}

// WillStepOut/DidStepOut bracket a StepOut command. WillStepOut
// carries Possible so a caller whose line-resolution layer can detect
// "already in the root function" can refuse the step; DidStepOut
// carries Done so the Executor knows whether the target frame was
// reached yet (it resumes RunningIndef until it is).
type WillStepOut struct {
	IPtr     int
	Possible *bool
}
type DidStepOut struct {
	IPtr int
	Done bool
}

// WillBeginExecution fires once, synchronously, right before the VM's
// first instruction executes.
type WillBeginExecution struct{ VM *vm.VM }

// ProcessTerminated fires when the program runs off its root frame's
// ret or calls the exit builtin. ProcessKilled fires when the host
// stops a RunningIndef program via StopExecution or Shutdown instead.
type ProcessTerminated struct{ ExitCode int64 }
type ProcessKilled struct{}

// PatientStartFailureEvent fires (buffered) when loading or starting
// the binary itself raises a RuntimeException before a single
// instruction has executed, e.g. a malformed program header.
type PatientStartFailureEvent struct{ Err error }
