package engine

import (
	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/errors"
	"github.com/wippyai/continuation/frame"
)

// IsPinned reports whether the carrier's current stack can not legally
// be frozen up to scope (nil means the outermost continuation). It is
// read-only and stable across calls with no intervening state change.
func (e *Engine) IsPinned(car *Carrier, scope *Continuation) (bool, error) {
	cause, err := e.pinCause(car, car.SP, scope)
	if err != nil {
		return false, err
	}
	return cause != FreezeOK, nil
}

// pinCause walks frames top-down across nested continuation boundaries
// and returns the first pin found, or FreezeOK when the stack is
// freezable. The walk mutates nothing.
func (e *Engine) pinCause(car *Carrier, sp int, scope *Continuation) (FreezeResult, error) {
	cont := car.Entry
	if cont == nil {
		return FreezeOK, errors.Layout(errors.PhasePin, "carrier has no mounted continuation")
	}
	buf := car.Stack
	regs := car.registers()

	top := sp + frame.MetadataWords
	pc := buf.Word(sp + frame.ReturnPCOffset)
	fp := int(buf.Word(sp))
	walked := 0

	for cont != nil {
		if cont.CriticalSection > 0 {
			return FreezePinnedCS, nil
		}
		for top < cont.EntrySP {
			if walked++; walked > e.maxWalkFrames {
				return FreezeException, errors.StackOverflow(errors.PhasePin,
					"frame chain exceeds %d frames", e.maxWalkFrames)
			}
			info, ok := e.code.Lookup(pc)
			if !ok {
				// opaque code: treat as a native frame
				return FreezePinnedNative, nil
			}
			if info.Native {
				return FreezePinnedNative, nil
			}
			f := frame.Build(buf, top, pc, fp, info)
			if frame.OpsFor(f.Kind).OwnsLock(buf, &f, regs, e.locks) {
				return FreezePinnedMonitor, nil
			}
			top, pc, fp = frame.SenderLink(buf, &f)
		}
		if cont == scope || cont.Parent == nil {
			return FreezeOK, nil
		}
		// cross the entry frame into the parent continuation's segment
		top, pc, fp = crossEntry(buf, cont)
		cont = cont.Parent
	}
	return FreezeOK, nil
}

// crossEntry steps the walk over a continuation's entry trampoline
// frame. The entry frame's body is its argument area followed by the
// caller link pair, so the parent segment begins just past them.
func crossEntry(buf frame.Buffer, cont *Continuation) (top int, pc continuation.Address, fp int) {
	top = cont.EntrySP + cont.ArgSize + frame.MetadataWords
	fp = int(buf.Word(top - frame.SavedFPOffset))
	pc = buf.Word(top - frame.ReturnPCOffset)
	return top, pc, fp
}
