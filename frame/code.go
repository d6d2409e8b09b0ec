package frame

import (
	continuation "github.com/wippyai/continuation"
)

// CodeInfo is the metadata the code-location provider knows about the
// code containing a pc.
type CodeInfo struct {
	// Name is a diagnostic label for the method or stub.
	Name string

	Kind Kind

	// FrameSize is the frame body size in words for compiled and stub
	// code, including the two caller-link boundary words. Interpreted
	// frame sizes are derived from fp and Locals instead.
	FrameSize int

	// ArgSize is the stack-passed argument word count.
	ArgSize int

	// Locals is the interpreted local-slot count.
	Locals int

	// Native marks a native method entry (interpreted kind) or an opaque
	// native frame. Native frames pin the stack.
	Native bool

	// HasRefMap is false for compiled code with no managed-reference map;
	// the collector skips such frames when marking chunk references.
	HasRefMap bool

	// RefOffsets lists the top-relative word offsets of live
	// managed-reference slots in a compiled or stub frame.
	RefOffsets []int

	// MarkedForDeopt indicates the compiled code has been invalidated
	// since this pc was recorded; a thawed frame must resume at
	// DeoptEntry instead of pc.
	MarkedForDeopt bool
	DeoptEntry     continuation.Address
}

// CodeTable maps code locations to frame metadata. Implementations are
// supplied by the runtime's code cache; the engines only require lookup.
type CodeTable interface {
	Lookup(pc continuation.Address) (CodeInfo, bool)
}
