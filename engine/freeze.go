package engine

import (
	"go.uber.org/zap"

	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/chunk"
	"github.com/wippyai/continuation/errors"
	"github.com/wippyai/continuation/frame"
)

// Freeze relocates the live segment between sp and the innermost
// continuation's entry frame into the continuation's tail chunk,
// allocating or extending the chunk as needed. On success the carrier's
// stack pointer is advanced to the entry frame and the frozen frames
// are no longer live on the physical stack.
//
// Pinned results refuse the freeze with no chunk mutation. A pending
// error on the carrier takes precedence over the freeze outcome.
func (e *Engine) Freeze(car *Carrier, sp int) (FreezeResult, error) {
	if car.PendingError != nil {
		return FreezeException, car.PendingError
	}
	cont := car.Entry
	if cont == nil {
		return FreezeException, errors.Layout(errors.PhaseFreeze, "carrier has no mounted continuation")
	}
	if cont.CriticalSection > 0 {
		return FreezePinnedCS, nil
	}
	if sp < 0 || sp+frame.MetadataWords >= cont.EntrySP {
		return FreezeException, errors.Layout(errors.PhaseFreeze,
			"suspend point %d outside segment ending at %d", sp, cont.EntrySP)
	}

	if e.canFastFreeze(car) {
		if res, ok := e.freezeFast(car, sp); ok {
			return res, nil
		}
		// fast attempt left no observable side effect; fall through
	}
	return e.freezeSlow(car, sp)
}

// canFastFreeze gates the bulk-copy path on the thread-level claim that
// the segment is compiled-only and monitor-free. The slow path never
// trusts the claim and re-verifies per frame.
func (e *Engine) canFastFreeze(car *Carrier) bool {
	return !e.disableFast && car.FastPathAllowed &&
		!car.Preempted && !car.InterpOnly && car.HeldMonitors == 0
}

// freezeFast bulk-copies the whole segment into the tail chunk in one
// block. Returns ok=false when the chunk cannot take the block without
// barriers or a fresh barrier-requiring allocation; the caller then
// takes the slow path, and no mutation from the attempt is visible.
func (e *Engine) freezeFast(car *Carrier, sp int) (FreezeResult, bool) {
	cont := car.Entry
	buf := car.Stack
	argsize := cont.ArgSize
	size := cont.EntrySP + argsize - sp

	c := cont.Tail()
	if c != nil && (c.RequiresBarriers() || c.IsGCMode() || c.HasMixedFrames()) {
		return 0, false
	}
	attached := false
	if c == nil || !fastRoom(c, sp, cont.EntrySP, size) {
		fresh, err := e.allocateChunk(size)
		if err != nil || fresh.RequiresBarriers() {
			// allocation trouble and barrier processing both belong to
			// the slow path
			return 0, false
		}
		fresh.SetParent(cont.Tail())
		c = fresh
		attached = true
	}

	var delta int
	wasEmpty := c.IsEmpty()
	if wasEmpty {
		delta = c.Size() - (cont.EntrySP + argsize)
		c.CopyFrom(sp+delta, buf, sp, cont.EntrySP+argsize)
		c.SetArgSize(argsize)
		c.AddMaxSize(size)
	} else {
		delta = c.SP() - cont.EntrySP
		c.CopyFrom(sp+delta, buf, sp, cont.EntrySP)
		// the stack held the return barrier where the old top frame's
		// real resume pc belongs
		c.SetWord(c.SP()-frame.ReturnPCOffset, c.PC())
		c.AddMaxSize(size - argsize - frame.MetadataWords)
	}

	wasBottom := wasEmpty && allParentsEmpty(c)
	c.SetPC(buf.Word(sp + frame.ReturnPCOffset))
	c.SetFP(int(buf.Word(sp)) + delta)
	c.SetSP(sp + frame.MetadataWords + delta)
	if attached {
		cont.SetTail(c)
	}
	car.SP = cont.EntrySP

	debugf("fast freeze: %d words at chunk sp %d", size, c.SP())
	if wasBottom {
		return FreezeOKBottom, true
	}
	return FreezeOK, true
}

// fastRoom reports whether the tail chunk can take a bulk copy of the
// segment without moving its existing frames.
func fastRoom(c *chunk.Chunk, sp, entrySP, size int) bool {
	if c.IsEmpty() {
		return c.Size() >= size
	}
	return c.SP() >= entrySP-sp
}

func allParentsEmpty(c *chunk.Chunk) bool {
	for t := c.Parent(); t != nil; t = t.Parent() {
		if !t.IsEmpty() {
			return false
		}
	}
	return true
}

// frozenFrame pairs a walked frame with its code metadata for the
// relocation pass.
type frozenFrame struct {
	f    frame.Frame
	info frame.CodeInfo
}

// freezeSlow walks the segment frame by frame, re-verifying pins, then
// relocates every frame into a chunk with relativized internal pointers
// and a populated reference bitmap. Nothing is mutated until the walk
// has fully succeeded; the chunk's sp and pc are published last.
func (e *Engine) freezeSlow(car *Carrier, sp int) (FreezeResult, error) {
	cont := car.Entry
	buf := car.Stack
	regs := car.registers()

	top := sp + frame.MetadataWords
	pc := buf.Word(sp + frame.ReturnPCOffset)
	fp := int(buf.Word(sp))

	var frames []frozenFrame
	mixed := false

	for top < cont.EntrySP {
		if len(frames) >= e.maxWalkFrames {
			return FreezeException, errors.StackOverflow(errors.PhaseFreeze,
				"frame chain exceeds %d frames", e.maxWalkFrames)
		}
		info, ok := e.code.Lookup(pc)
		if !ok {
			return FreezePinnedNative, nil
		}
		if info.Native {
			return FreezePinnedNative, nil
		}
		f := frame.Build(buf, top, pc, fp, info)
		switch f.Kind {
		case frame.Stub:
			if len(frames) != 0 {
				return FreezeException, errors.BadFrame(errors.PhaseFreeze, "stub", pc,
					"stub frame below the suspend point")
			}
			if !regs.Full {
				return FreezeException, errors.BadFrame(errors.PhaseFreeze, "stub", pc,
					"preempted stub frame without a full register snapshot")
			}
			mixed = true
		case frame.Interpreted:
			mixed = true
		}
		if frame.OpsFor(f.Kind).OwnsLock(buf, &f, regs, e.locks) {
			return FreezePinnedMonitor, nil
		}
		frames = append(frames, frozenFrame{f: f, info: info})
		top, pc, fp = frame.SenderLink(buf, &f)
	}
	if len(frames) == 0 {
		return FreezeException, errors.Layout(errors.PhaseFreeze, "segment holds no frames")
	}

	bottom := &frames[len(frames)-1].f
	copyEnd := frame.OpsFor(bottom.Kind).CopyBottom(bottom)
	argsize := copyEnd - cont.EntrySP
	if argsize < 0 {
		return FreezeException, errors.Layout(errors.PhaseFreeze,
			"bottom frame ends at %d, short of entry %d", copyEnd, cont.EntrySP)
	}

	c, delta, wasEmpty, attached, err := e.chunkFor(cont, sp, copyEnd, argsize)
	if err != nil {
		return FreezeException, err
	}

	// relocate frame bodies callee to caller
	for i := range frames {
		f := &frames[i].f
		calleeArgs, calleeKind := 0, frame.KindNone
		if i > 0 {
			calleeArgs, calleeKind = frames[i-1].f.ArgSize, frames[i-1].f.Kind
		}
		lo, hi := f.CopyRange(calleeArgs, calleeKind)
		if !wasEmpty && hi > cont.EntrySP {
			hi = cont.EntrySP // overlap args already live in the chunk
		}
		c.CopyFrom(lo+delta, buf, lo, hi)
	}

	// fixups: relativize interpreter slots and fp links, mark references
	for i := range frames {
		f := &frames[i].f
		if f.Kind == frame.Interpreted {
			frame.RelativizeInto(buf, c, f.FP, f.FP+delta)
		}
		if i > 0 {
			fpSlot, _ := frames[i-1].f.CallerLinkSlots()
			c.SetWord(fpSlot+delta, continuation.Word(int64(f.FP-fpSlot)))
		}
		e.markRefs(c, &frames[i], delta)
	}

	// synthetic metadata below the new top frame; the authoritative
	// copies live in the chunk's sp/fp/pc fields
	topBase := frames[0].f.UnextendedTop + delta
	c.SetWord(topBase-frame.SavedFPOffset, continuation.Word(int64(frames[0].f.FP-frames[0].f.UnextendedTop+frame.SavedFPOffset)))
	c.SetWord(topBase-frame.ReturnPCOffset, frames[0].f.PC)

	// the bottom frame's caller links: a non-empty chunk's copy carried
	// the return barrier and entry fp from the stack where the chunk's
	// old top frame's resume pc and fp link belong
	if !wasEmpty {
		fpSlot, pcSlot := bottom.CallerLinkSlots()
		c.SetWord(fpSlot+delta, continuation.Word(int64(c.FP()-(fpSlot+delta))))
		c.SetWord(pcSlot+delta, c.PC())
	}

	if mixed || car.Preempted {
		c.SetHasMixedFrames()
	}
	if wasEmpty {
		c.SetArgSize(argsize)
	}
	wasBottom := wasEmpty && allParentsEmpty(c)
	newTop := frames[0].f.UnextendedTop + delta
	if wasEmpty {
		c.AddMaxSize(c.Size() - newTop + frame.MetadataWords)
	} else {
		c.AddMaxSize(c.SP() - newTop)
	}
	if c.RequiresBarriers() {
		e.barriers.StoreRange(c, sp+delta, copyEnd+delta)
	}
	c.SetPC(frames[0].f.PC)
	c.SetFP(frames[0].f.FP + delta)
	c.SetSP(frames[0].f.UnextendedTop + delta)
	if attached {
		cont.SetTail(c)
	}
	car.SP = cont.EntrySP

	e.log.Debug("slow freeze",
		zap.Int("frames", len(frames)),
		zap.Int("words", copyEnd-sp),
		zap.Bool("mixed", mixed),
		zap.Bool("bottom", wasBottom))
	if wasBottom {
		return FreezeOKBottom, nil
	}
	return FreezeOK, nil
}

// chunkFor picks the chunk a slow freeze lands in: the tail when it can
// take the segment in place, otherwise a fresh exact-fit allocation
// linked above the tail. Returns the index delta from stack to chunk.
func (e *Engine) chunkFor(cont *Continuation, sp, copyEnd, argsize int) (c *chunk.Chunk, delta int, wasEmpty, attached bool, err error) {
	c = cont.Tail()
	if c != nil && !c.RequiresBarriers() && !c.IsGCMode() {
		if c.IsEmpty() {
			if delta = c.Size() - copyEnd; sp+delta >= 0 {
				return c, delta, true, false, nil
			}
		} else {
			if delta = c.SP() - (copyEnd - argsize); sp+delta >= 0 {
				return c, delta, false, false, nil
			}
		}
	}
	fresh, err := e.allocateChunk(copyEnd - sp)
	if err != nil {
		return nil, 0, false, false, err
	}
	fresh.SetParent(cont.Tail())
	return fresh, fresh.Size() - copyEnd, true, true, nil
}

// markRefs records a compiled frame's live reference slots in the chunk
// bitmap. Wide references use word offsets from the frame's unextended
// top; narrow references pack two per word and use half-word offsets,
// so two slots can mark the same word. Marking is idempotent.
func (e *Engine) markRefs(c *chunk.Chunk, fr *frozenFrame, delta int) {
	if !fr.info.HasRefMap || len(fr.info.RefOffsets) == 0 {
		return
	}
	bm := c.Bitmap()
	for _, off := range fr.info.RefOffsets {
		if e.oops == OopNarrow {
			off /= 2
		}
		bm.Set(fr.f.UnextendedTop + delta + off)
	}
}
