package debugexec

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/chrysante/scatha-sub006/vm"
)

// atomicState is State read/written across goroutines: the host
// queries IsRunning/IsIdle/IsPaused from any goroutine while the
// Executor's own goroutine is the sole writer.
type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) Load() State    { return State(a.v.Load()) }
func (a *atomicState) Store(s State) { a.v.Store(int32(s)) }

// State is one of the Executor's four explicit states, per spec.md
// §4.8: "The Executor maintains an explicit state machine {Idle,
// RunningIndef, Paused, Stopped}; transitions are triggered by command
// consumption or by runtime exceptions."
type State int32

const (
	StateIdle State = iota
	StateRunningIndef
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunningIndef:
		return "RunningIndef"
	case StatePaused:
		return "Paused"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

type stepMode int

const (
	stepNone stepMode = iota
	stepLine
	stepOut
)

// Executor wraps a vm.VM in a dedicated goroutine with a command
// queue, grounded on original_source/src/scathadb/Model/Executor.cc's
// Impl. SetBinary, SetArguments, AddBreakpoint and RemoveBreakpoint
// write their state without a lock; every other exported method,
// WithVM included, is safe to call from any goroutine. The state
// machine itself runs on the single goroutine Start spawns.
type Executor struct {
	messenger *Messenger

	group   *errgroup.Group
	started bool

	queue *commandQueue
	state atomicState

	vmMu sync.Mutex
	vm   *vm.VM

	binary    []byte
	runArgs   []string
	breakpts  *breakpointSet
	stepState stepMode
	isContinue bool

	interruptCB   func(*vm.VM)
	interruptCBMu sync.Mutex
}

// NewExecutor builds an Executor in state Idle, not yet started.
// messenger receives every event the state machine raises; a nil
// messenger is replaced with one whose submit runs tasks inline,
// suitable for tests that don't need a real main-thread hop.
func NewExecutor(messenger *Messenger) *Executor {
	if messenger == nil {
		messenger = NewMessenger(func(task func()) { task() })
	}
	return &Executor{
		messenger: messenger,
		queue:     newCommandQueue(),
		breakpts:  newBreakpointSet(),
	}
}

// SetBinary installs the linked program bytes the next
// StartExecution call loads. Must be called before Start, or while
// Idle.
func (e *Executor) SetBinary(binary []byte) { e.binary = binary }

// SetArguments installs the program's run arguments for the next
// StartExecution call.
func (e *Executor) SetArguments(args []string) { e.runArgs = args }

// AddBreakpoint installs an instruction breakpoint at addr.
func (e *Executor) AddBreakpoint(addr int) { e.breakpts.Add(addr) }

// RemoveBreakpoint removes any breakpoint at addr.
func (e *Executor) RemoveBreakpoint(addr int) { e.breakpts.Remove(addr) }

// Start spawns the Executor's state-machine goroutine. Calling Start
// twice on the same Executor is a programmer error.
func (e *Executor) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	e.group = g
	e.started = true
	g.Go(func() error {
		e.threadMain(ctx)
		return nil
	})
}

// Shutdown requests the state machine stop and blocks until its
// goroutine has returned. Safe to call even if Start was never
// called. Mirrors Executor::shutdown's pushCommand+thread.join, with
// errgroup.Wait standing in for join.
func (e *Executor) Shutdown() error {
	if !e.started {
		return nil
	}
	e.pushCommand(CommandShutdown)
	err := e.group.Wait()
	e.started = false
	return err
}

func (e *Executor) pushCommand(c Command) {
	e.queue.push(c)
	e.vmMu.Lock()
	running := e.vm
	e.vmMu.Unlock()
	if running != nil {
		running.InterruptExecution()
	}
}

// StartExecution requests a transition from Idle into RunningIndef.
func (e *Executor) StartExecution() { e.pushCommand(CommandStartExecution) }

// StopExecution requests execution stop and the Executor return to
// Idle, discarding any remaining progress in the current run.
func (e *Executor) StopExecution() { e.pushCommand(CommandStopExecution) }

// ToggleExecution pauses a running program or resumes a paused one.
func (e *Executor) ToggleExecution() {
	if e.IsRunning() {
		e.vmMu.Lock()
		v := e.vm
		e.vmMu.Unlock()
		if v != nil {
			v.InterruptExecution()
		}
		return
	}
	e.pushCommand(CommandToggleExecution)
}

// StepInstruction single-steps exactly one instruction.
func (e *Executor) StepInstruction() { e.pushCommand(CommandStepInst) }

// StepSourceLine runs until a DidStepSourceLine listener reports the
// source line boundary has been reached.
func (e *Executor) StepSourceLine() { e.pushCommand(CommandStepSourceLine) }

// StepOut runs until the current call frame returns.
func (e *Executor) StepOut() { e.pushCommand(CommandStepOut) }

// IsRunning, IsIdle, IsPaused report the Executor's current state.
func (e *Executor) IsRunning() bool { return e.state.Load() == StateRunningIndef }
func (e *Executor) IsIdle() bool    { return e.state.Load() == StateIdle }
func (e *Executor) IsPaused() bool  { return e.state.Load() == StatePaused }

// WithVM runs fn with exclusive access to the Executor's VM. fn sees
// nil if no run has ever started. Safe to call from any goroutine,
// including while RunningIndef, in which case fn observes whatever
// state the VM happens to be in when the lock is acquired (original
// source's Locked<VirtualMachine&> offers the same guarantee, no
// more).
func (e *Executor) WithVM(fn func(*vm.VM)) {
	e.vmMu.Lock()
	defer e.vmMu.Unlock()
	fn(e.vm)
}

// SetInterruptCallback installs a callback the Executor runs with
// exclusive VM access the next time execution is idle or next
// interrupts, matching Executor.cc's DoInterruptedOnVM event.
func (e *Executor) SetInterruptCallback(cb func(*vm.VM)) {
	e.interruptCBMu.Lock()
	e.interruptCB = cb
	e.interruptCBMu.Unlock()
	e.vmMu.Lock()
	v := e.vm
	e.vmMu.Unlock()
	if e.IsRunning() && v != nil {
		v.InterruptExecution()
	} else if v != nil {
		e.runInterruptCallback(v)
	}
}

func (e *Executor) runInterruptCallback(v *vm.VM) bool {
	e.interruptCBMu.Lock()
	cb := e.interruptCB
	e.interruptCB = nil
	e.interruptCBMu.Unlock()
	if cb == nil {
		return false
	}
	e.vmMu.Lock()
	defer e.vmMu.Unlock()
	cb(v)
	return true
}

func (e *Executor) threadMain(ctx context.Context) {
	for {
		switch e.state.Load() {
		case StateStopped:
			return
		case StateIdle:
			e.state.Store(e.doIdle())
		case StateRunningIndef:
			e.state.Store(e.doRunningIndef())
		case StatePaused:
			e.state.Store(e.doPaused())
		}
	}
}

func (e *Executor) doIdle() State {
	switch e.queue.wait() {
	case CommandStartExecution:
		e.stepState = stepNone
		v, err := vm.New(e.binary)
		if err != nil {
			e.messenger.SendBuffered(PatientStartFailureEvent{Err: err})
			return StateIdle
		}
		e.vmMu.Lock()
		e.vm = v
		e.vmMu.Unlock()
		e.messenger.SendNow(WillBeginExecution{VM: v})
		return StateRunningIndef

	case CommandStopExecution, CommandToggleExecution:
		return StateIdle

	case CommandShutdown:
		return StateStopped

	case CommandStepInst, CommandStepSourceLine, CommandStepOut:
		return StateIdle

	default:
		return StateIdle
	}
}

func (e *Executor) killExecution() {
	e.messenger.SendNow(ProcessKilled{})
}

func (e *Executor) endExecution(v *vm.VM) {
	e.messenger.SendNow(ProcessTerminated{ExitCode: v.ExitCode})
}

func (e *Executor) doRunningIndef() State {
	command, ok := e.queue.tryPop()
	v := e.vm
	if !ok {
		if e.isContinue {
			e.isContinue = false
			if st, handled := e.stepInstruction(v, false); handled {
				return st
			}
		}
		if v.Exited {
			e.endExecution(v)
			return StateIdle
		}
		err := v.RunInterruptible()
		if err != nil {
			return e.handleRuntimeException(v, err)
		}
		e.endExecution(v)
		return StateIdle
	}

	switch command {
	case CommandStartExecution:
		return StateRunningIndef

	case CommandStopExecution:
		e.killExecution()
		return StateIdle

	case CommandToggleExecution:
		e.messenger.SendBuffered(BreakEvent{IPtr: v.IPtr, State: BreakPaused})
		return StatePaused

	case CommandShutdown:
		e.killExecution()
		return StateStopped

	case CommandStepInst, CommandStepSourceLine, CommandStepOut:
		return StateRunningIndef

	default:
		return StateRunningIndef
	}
}

// handleRuntimeException mirrors Impl::handleRuntimeException: a
// genuine fault pauses with a BreakEvent carrying the error; an
// interrupt either resumes an installed interrupt callback, exits if
// the VM already finished, completes whatever step was in flight, or
// falls through to a plain Paused break.
func (e *Executor) handleRuntimeException(v *vm.VM, err error) State {
	exc, _ := err.(*vm.RuntimeException)
	ipt := v.IPtr
	if exc != nil {
		ipt = exc.IPtr
	}
	if exc == nil || exc.Wrapped != vm.ErrInterrupted {
		e.messenger.SendBuffered(BreakEvent{IPtr: ipt, State: BreakError, Err: err})
		return StatePaused
	}
	if e.runInterruptCallback(v) {
		return StateRunningIndef
	}
	if v.Exited {
		return StateIdle
	}
	switch e.stepState {
	case stepLine:
		e.stepState = stepNone
		isReturn := false
		e.messenger.SendNow(DidStepSourceLine{IPtr: v.IPtr, IsReturn: isReturn})
		if isReturn {
			return e.stepInstructionState(v)
		}
	case stepOut:
		done := e.breakpts.Hit(v.IPtr)
		e.messenger.SendNow(DidStepOut{IPtr: v.IPtr, Done: done})
		if !done {
			e.stepState = stepOut
			return StateRunningIndef
		}
		if v.Exited {
			e.endExecution(v)
			return StateIdle
		}
	case stepNone:
	}
	e.messenger.SendBuffered(BreakEvent{IPtr: v.IPtr, State: BreakPaused})
	return StatePaused
}

// stepInstruction runs one instruction and reports whether the result
// (a State to transition to) was determined, for doRunningIndef's
// "finish the in-flight continue step before resuming the blocking
// run loop" case.
func (e *Executor) stepInstruction(v *vm.VM, sendUIEncounter bool) (State, bool) {
	st := e.doStepInstruction(v, sendUIEncounter)
	return st, st != StateRunningIndef
}

func (e *Executor) stepInstructionState(v *vm.VM) State {
	return e.doStepInstruction(v, true)
}

func (e *Executor) doStepInstruction(v *vm.VM, sendUIEncounter bool) State {
	ipt := v.IPtr
	e.messenger.SendNow(WillStepInstruction{IPtr: ipt})
	err := v.Step()
	if err != nil {
		exc, _ := err.(*vm.RuntimeException)
		at := ipt
		if exc != nil {
			at = exc.IPtr
		}
		e.messenger.SendBuffered(BreakEvent{IPtr: at, State: BreakError, Err: err})
		e.messenger.SendNow(DidStepInstruction{IPtr: at})
		return StatePaused
	}
	e.messenger.SendNow(DidStepInstruction{IPtr: v.IPtr})
	if !v.Exited {
		if sendUIEncounter {
			e.messenger.SendBuffered(BreakEvent{IPtr: v.IPtr, State: BreakStep})
		}
		return StatePaused
	}
	e.endExecution(v)
	return StateIdle
}

func (e *Executor) doStepSourceLine(v *vm.VM) State {
	e.messenger.SendNow(WillStepSourceLine{IPtr: v.IPtr})
	e.stepState = stepLine
	e.isContinue = true
	return StateRunningIndef
}

func (e *Executor) doStepOut(v *vm.VM) State {
	possible := true
	e.messenger.SendNow(WillStepOut{IPtr: v.IPtr, Possible: &possible})
	if possible {
		e.stepState = stepOut
	} else {
		e.stepState = stepNone
	}
	e.isContinue = true
	return StateRunningIndef
}

func (e *Executor) doPaused() State {
	v := e.vm
	switch e.queue.wait() {
	case CommandStartExecution:
		return StatePaused

	case CommandStopExecution:
		e.killExecution()
		return StateIdle

	case CommandToggleExecution:
		e.isContinue = true
		return StateRunningIndef

	case CommandStepInst:
		return e.doStepInstruction(v, true)

	case CommandStepSourceLine:
		return e.doStepSourceLine(v)

	case CommandStepOut:
		return e.doStepOut(v)

	case CommandShutdown:
		return StateStopped

	default:
		return StatePaused
	}
}
