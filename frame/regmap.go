package frame

import (
	continuation "github.com/wippyai/continuation"
)

// RegisterSnapshot is the register view passed to lock-ownership queries
// and used when freezing a stub frame. The small snapshot carries no
// register values and suffices for ordinary compiled frames; stub frames
// save callee registers, so their callers must be examined with a full
// snapshot.
type RegisterSnapshot struct {
	// Regs holds the live register file, indexed by register number.
	Regs []continuation.Word

	// RefMask marks which registers hold managed references.
	RefMask uint64

	// Full distinguishes a full snapshot from the small placeholder.
	Full bool
}

// SmallSnapshot is the shared no-register snapshot used on ordinary
// frames. It is immutable.
var SmallSnapshot = &RegisterSnapshot{}

// NewFullSnapshot copies the given register file into a full snapshot.
func NewFullSnapshot(regs []continuation.Word, refMask uint64) *RegisterSnapshot {
	cp := make([]continuation.Word, len(regs))
	copy(cp, regs)
	return &RegisterSnapshot{Regs: cp, RefMask: refMask, Full: true}
}
