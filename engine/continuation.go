package engine

import (
	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/chunk"
	"github.com/wippyai/continuation/errors"
	"github.com/wippyai/continuation/frame"
	"github.com/wippyai/continuation/stack"
)

// Continuation is the per-scope suspend/resume state. Frames between
// the carrier's stack pointer and EntrySP belong to this continuation;
// EntrySP is the top of the entry trampoline frame that mounted it.
type Continuation struct {
	// EntrySP is the stack index of the entry frame's top.
	EntrySP int

	// EntryFP is the entry frame's frame pointer.
	EntryFP int

	// EntryPC is the return address into the entry trampoline: where
	// the bottom-most continuation frame resumes when the continuation
	// completes.
	EntryPC continuation.Address

	// ArgSize is the stack-passed argument overlap between the
	// bottom-most continuation frame and the entry frame. Thaw updates
	// it as the frame at the bottom of the physical segment changes.
	ArgSize int

	// Parent is the enclosing continuation for nested scopes, nil for
	// the outermost.
	Parent *Continuation

	// CriticalSection counts active pin regions. Nonzero refuses freeze.
	CriticalSection int

	tail *chunk.Chunk
}

// Tail returns the most recently frozen chunk, or nil.
func (c *Continuation) Tail() *chunk.Chunk { return c.tail }

// SetTail attaches a chunk as the newest frozen segment.
func (c *Continuation) SetTail(t *chunk.Chunk) { c.tail = t }

// IsEmpty reports whether no frozen frames remain in any chunk.
func (c *Continuation) IsEmpty() bool {
	for t := c.tail; t != nil; t = t.Parent() {
		if !t.IsEmpty() {
			return false
		}
	}
	return true
}

// Pin enters a critical section, refusing freezes until Unpin.
func (c *Continuation) Pin() { c.CriticalSection++ }

// Unpin leaves a critical section.
func (c *Continuation) Unpin() {
	if c.CriticalSection == 0 {
		panic(errors.Layout(errors.PhasePin, "unpin without a matching pin"))
	}
	c.CriticalSection--
}

// Carrier is the worker-thread view the engines operate on: the
// physical stack, the innermost mounted continuation, and the
// thread-level execution-mode flags that gate the fast paths. The
// caller guarantees a carrier is used by one goroutine at a time.
type Carrier struct {
	// Stack is the physical stack buffer.
	Stack *stack.Stack

	// SP is the current top-of-stack index.
	SP int

	// Entry is the innermost mounted continuation.
	Entry *Continuation

	// Registers is the live register snapshot at the suspend point.
	// Stub-topped stacks require a full snapshot.
	Registers *frame.RegisterSnapshot

	// FastPathAllowed is the precomputed thread-level claim that the
	// current segment is compiled-only with no held monitors. The slow
	// path never trusts it; the fast path requires it.
	FastPathAllowed bool

	// HeldMonitors counts monitors the thread knows it holds.
	HeldMonitors int

	// InterpOnly is set when the thread runs in per-instruction
	// interpretation mode; it disqualifies fast thaw.
	InterpOnly bool

	// PreserveFP forces frame-pointer preservation, disqualifying fast
	// thaw.
	PreserveFP bool

	// Preempted marks a forced suspension with a stub frame on top.
	Preempted bool

	// Guard overrides the stack's own headroom check when set.
	Guard continuation.Guard

	// PendingError is an error already pending in the calling context.
	// It takes precedence over freeze and thaw outcomes.
	PendingError error
}

func (car *Carrier) guard() continuation.Guard {
	if car.Guard != nil {
		return car.Guard
	}
	return car.Stack
}

func (car *Carrier) registers() *frame.RegisterSnapshot {
	if car.Registers != nil {
		return car.Registers
	}
	return frame.SmallSnapshot
}
