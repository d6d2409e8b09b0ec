package engine

import (
	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/frame"
)

// PCLockOracle is a lock-ownership table keyed by code address: a frame
// owns a monitor when its pc is marked. Interpreted frames do not
// consult the oracle; their monitor count lives in the frame itself.
type PCLockOracle map[continuation.Address]bool

func (o PCLockOracle) OwnsMonitor(f *frame.Frame, _ *frame.RegisterSnapshot) bool {
	return o[f.PC]
}

// NoLocks is the oracle for runtimes where compiled frames never hold
// monitors across a suspend point.
type NoLocks struct{}

func (NoLocks) OwnsMonitor(_ *frame.Frame, _ *frame.RegisterSnapshot) bool { return false }
