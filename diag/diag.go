// Package diag models the diagnostic shape shared across the pipeline's
// external-collaborator boundary: the frontend (lexer/parser/semantic
// analyzer) is out of scope, but the linker and VM need to surface
// issues in the same vocabulary it would use.
//
// This resolves the dual-lexer/issue-handler question in favor of the
// newer parse::lex / parse::IssueHandler pair: one IssueHandler type,
// one Severity enum, no legacy duplicate.
package diag

import "fmt"

// Severity classifies an Issue.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// SourceRange is a half-open byte range in a named source file. Column
// and line are 1-based; a frontend would populate these, but the VM and
// linker leave them zero and rely on Context instead.
type SourceRange struct {
	File        string
	Line, Column int
	Begin, End  int
}

func (r SourceRange) String() string {
	if r.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", r.File, r.Line, r.Column)
}

// Issue is a single diagnostic: a severity, an optional source range,
// and a formatted message plus free-form context (e.g. the offending
// opcode or symbol name).
type Issue struct {
	Severity Severity
	Range    SourceRange
	Message  string
	Context  map[string]any
}

func (i Issue) String() string {
	if r := i.Range.String(); r != "" {
		return fmt.Sprintf("%s: %s: %s", r, i.Severity, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Severity, i.Message)
}

// IssueHandler accumulates issues for one compilation stage and answers
// whether compilation may proceed to the next stage. Per spec.md §7,
// "compilation aborts after the first stage whose issue handler
// contains an error."
type IssueHandler struct {
	issues []Issue
}

// NewIssueHandler returns an empty handler.
func NewIssueHandler() *IssueHandler { return &IssueHandler{} }

// Push records an issue.
func (h *IssueHandler) Push(sev Severity, rng SourceRange, format string, args ...any) {
	h.issues = append(h.issues, Issue{Severity: sev, Range: rng, Message: fmt.Sprintf(format, args...)})
}

// Error is shorthand for Push(SeverityError, ...).
func (h *IssueHandler) Error(rng SourceRange, format string, args ...any) {
	h.Push(SeverityError, rng, format, args...)
}

// Warn is shorthand for Push(SeverityWarning, ...).
func (h *IssueHandler) Warn(rng SourceRange, format string, args ...any) {
	h.Push(SeverityWarning, rng, format, args...)
}

// Issues returns all recorded issues in insertion order.
func (h *IssueHandler) Issues() []Issue { return h.issues }

// HasErrors reports whether any recorded issue is an error; the
// pipeline driver consults this between stages.
func (h *IssueHandler) HasErrors() bool {
	for _, i := range h.issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
