package main

import "fmt"

// invocationError marks a failure in how the command was invoked
// (missing file, malformed artifact) rather than a failure of the
// pipeline stage itself (link/runtime error), so run can tell them
// apart for spec.md §6's exit-code contract.
type invocationError struct{ err error }

func (e *invocationError) Error() string { return e.err.Error() }
func (e *invocationError) Unwrap() error { return e.err }

func invocationErrorf(format string, args ...any) error {
	return &invocationError{err: fmt.Errorf(format, args...)}
}

func isInvocationError(err error) bool {
	_, ok := err.(*invocationError)
	return ok
}
