package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which engine operation the error occurred in
type Phase string

const (
	PhaseFreeze   Phase = "freeze"   // freezing stack frames into a chunk
	PhaseThaw     Phase = "thaw"     // thawing chunk frames onto a stack
	PhaseAllocate Phase = "allocate" // chunk allocation
	PhasePin      Phase = "pin"      // pin traversal
	PhaseWalk     Phase = "walk"     // stack or chunk frame walk
	PhaseVerify   Phase = "verify"   // invariant verification
)

// Kind categorizes the error
type Kind string

const (
	KindStackOverflow Kind = "stack_overflow"
	KindAllocation    Kind = "allocation"
	KindCodeMissing   Kind = "code_missing"
	KindLayout        Kind = "layout"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindBadFrame      Kind = "bad_frame"
	KindDeopt         Kind = "deopt"
)

// Error is the structured error type used throughout the engine
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Frame  string
	Detail string
	PC     uint64
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Frame != "" {
		b.WriteString(" in ")
		b.WriteString(e.Frame)
		b.WriteString(" frame")
	}

	if e.PC != 0 {
		fmt.Fprintf(&b, " at pc 0x%x", e.PC)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Frame sets the frame kind name the error occurred in
func (b *Builder) Frame(kind string) *Builder {
	b.err.Frame = kind
	return b
}

// PC sets the code location
func (b *Builder) PC(pc uint64) *Builder {
	b.err.PC = pc
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// StackOverflow creates a stack-overflow error. It covers both walk
// exhaustion during freeze and missing headroom during thaw.
func StackOverflow(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStackOverflow,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(words int, cause error) *Error {
	return &Error{
		Phase:  PhaseAllocate,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate chunk of %d words", words),
		Cause:  cause,
	}
}

// CodeMissing creates an error for a pc with no code metadata
func CodeMissing(phase Phase, pc uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCodeMissing,
		PC:     pc,
		Detail: "no code metadata for pc",
	}
}

// Layout creates a layout-invariant violation error. Layout violations are
// programming defects; the engines panic with them rather than return them.
func Layout(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLayout,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
	}
}

// BadFrame creates an error for a frame that cannot be relocated
func BadFrame(phase Phase, kind string, pc uint64, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBadFrame,
		Frame:  kind,
		PC:     pc,
		Detail: detail,
	}
}
