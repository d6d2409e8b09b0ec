package engine

import (
	"go.uber.org/zap"

	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/chunk"
	"github.com/wippyai/continuation/errors"
	"github.com/wippyai/continuation/frame"
)

// thawOverheadWords is the fixed headroom PrepareThaw reserves beyond a
// chunk's recorded thaw size: the rebuilt entry linkage plus slack for
// the thaw machinery's own frame.
const thawOverheadWords = 32

// PrepareThaw inspects the continuation's tail chunk, discarding empty
// chunks already subsumed by their parents, and checks the carrier's
// stack headroom for the chunk's maximum recorded size plus overhead.
// It returns the bytes that will be needed, or 0 when there is nothing
// to thaw or the headroom is insufficient (a stack-overflow condition
// the caller surfaces).
func (e *Engine) PrepareThaw(car *Carrier, returnBarrier bool) (int, error) {
	cont := car.Entry
	if cont == nil {
		return 0, errors.Layout(errors.PhaseThaw, "carrier has no mounted continuation")
	}
	c := popEmptyTails(cont)
	if c == nil {
		return 0, nil
	}
	need := c.MaxSize() + frame.MetadataWords + 2*frame.AlignWiggle + thawOverheadWords
	if !car.guard().HasHeadroom(car.SP, need) {
		debugf("prepare thaw: %d words exceed stack headroom", need)
		return 0, nil
	}
	return need * continuation.WordBytes, nil
}

// popEmptyTails drops exhausted chunks from the front of the tail
// chain and returns the first one still holding frames, or nil.
func popEmptyTails(cont *Continuation) *chunk.Chunk {
	c := cont.Tail()
	for c != nil && c.IsEmpty() {
		c = c.Parent()
		cont.SetTail(c)
	}
	return c
}

// Thaw copies frames from the tail chunk back onto the carrier's stack
// and returns the new stack pointer, positioned on the restored frame's
// metadata so an ordinary return resumes execution. ThawReturnBarrier
// and ThawException thaw a single caller frame; ThawTop thaws at least
// two frames when the chunk has them.
//
// A pending error on the carrier is not consumed here: ThawException
// rebuilds the frame the error will be delivered into, and the caller
// rethrows after the stack is ready.
func (e *Engine) Thaw(car *Carrier, kind ThawKind) (int, error) {
	cont := car.Entry
	if cont == nil {
		return 0, errors.Layout(errors.PhaseThaw, "carrier has no mounted continuation")
	}
	c := popEmptyTails(cont)
	if c == nil {
		return 0, errors.Layout(errors.PhaseThaw, "thaw with no frozen frames")
	}

	if e.canFastThaw(car, c) {
		if c.MaxSize() <= e.thawThreshold {
			return e.thawFastWhole(car, cont, c)
		}
		return e.thawFastOne(car, cont, c)
	}
	return e.thawSlow(car, cont, c, kind != ThawTop)
}

// canFastThaw gates the bulk path: barrier-requiring, collector-owned
// and mixed chunks walk frame by frame, as do carriers in interpretive
// or frame-pointer-preserving modes. Ineligibility is not an error.
func (e *Engine) canFastThaw(car *Carrier, c *chunk.Chunk) bool {
	return !e.disableFast && !c.RequiresBarriers() && !c.HasMixedFrames() &&
		!c.IsGCMode() && !car.InterpOnly && !car.PreserveFP
}

// thawFastWhole bulk-copies the entire chunk onto the stack and empties
// the chunk.
func (e *Engine) thawFastWhole(car *Carrier, cont *Continuation, c *chunk.Chunk) (int, error) {
	buf := car.Stack
	argsize := c.ArgSize()
	srcLo := c.SP() - frame.MetadataWords
	srcHi := c.Size()
	delta := cont.EntrySP + argsize - srcHi
	newSP := srcLo + delta

	c.CopyTo(buf, newSP, srcLo, srcHi)
	buf.SetWord(newSP, continuation.Word(c.FP()+delta))
	buf.SetWord(newSP+frame.ReturnPCOffset, c.PC())

	c.SetSP(c.Size())
	c.AddMaxSize(-c.MaxSize())
	if c.HasBitmap() {
		c.Bitmap().Reset()
	}

	e.patchEntryReturn(car, cont, cont.EntrySP-frame.MetadataWords, allParentsEmpty(c))
	cont.ArgSize = argsize
	car.SP = newSP
	debugf("fast thaw: whole chunk, %d words to sp %d", srcHi-srcLo, newSP)
	return newSP, nil
}

// thawFastOne copies only the topmost frame, leaving the rest frozen
// for a later return-barrier thaw.
func (e *Engine) thawFastOne(car *Carrier, cont *Continuation, c *chunk.Chunk) (int, error) {
	buf := car.Stack
	st := chunk.NewStream(c, e.code)
	f, _, err := st.Next()
	if err != nil {
		return 0, err
	}
	last := !st.More()

	// fp link words in a bulk-copied chunk are dead for compiled code,
	// so the caller's view comes from the stream, not the stored link
	var caller frame.Frame
	if !last {
		if caller, _, err = st.Next(); err != nil {
			return 0, err
		}
	}

	argsize := f.ArgSize
	srcLo := f.Top - frame.MetadataWords
	srcHi := frame.OpsFor(f.Kind).CopyBottom(&f)
	delta := cont.EntrySP + argsize - srcHi
	newSP := srcLo + delta

	c.CopyTo(buf, newSP, srcLo, srcHi)
	buf.SetWord(newSP, continuation.Word(f.FP+delta))
	buf.SetWord(newSP+frame.ReturnPCOffset, f.PC)

	if c.HasBitmap() {
		c.Bitmap().ClearRange(srcLo, f.Bottom())
	}
	if last {
		c.SetSP(c.Size())
		c.AddMaxSize(-c.MaxSize())
	} else {
		c.SetFP(caller.FP)
		c.SetPC(caller.PC)
		c.SetSP(caller.Top)
		c.AddMaxSize(-(caller.Top - f.Top))
	}

	isLast := last && allParentsEmpty(c)
	e.patchEntryReturn(car, cont, f.Bottom()+delta-frame.MetadataWords, isLast)
	cont.ArgSize = argsize
	car.SP = newSP
	debugf("fast thaw: one frame, %d words to sp %d", srcHi-srcLo, newSP)
	return newSP, nil
}

// thawSlow rebuilds frames one at a time: collector barriers on the
// chunk side, then copy, de-relativization, absolute fp re-linking and
// deoptimization checks on the stack side. A return-barrier entry thaws
// one frame, a top entry two; when the batch would end on an interpreted
// frame whose caller is compiled, the compiled caller comes along too.
func (e *Engine) thawSlow(car *Carrier, cont *Continuation, c *chunk.Chunk, returnBarrier bool) (int, error) {
	buf := car.Stack
	want := 2
	if returnBarrier {
		want = 1
	}

	st := chunk.NewStream(c, e.code)
	var batch []frozenFrame
	for st.More() && len(batch) < want {
		f, info, err := st.Next()
		if err != nil {
			return 0, err
		}
		batch = append(batch, frozenFrame{f: f, info: info})
	}
	// never leave a compiled caller of an interpreted frame as the
	// chunk's top frame; detecting that later and adjusting the
	// unextended top gets tricky
	if st.More() && batch[len(batch)-1].f.Kind == frame.Interpreted {
		peek := *st
		g, info, err := peek.Next()
		if err != nil {
			return 0, err
		}
		if g.Kind == frame.Compiled {
			*st = peek
			batch = append(batch, frozenFrame{f: g, info: info})
		}
	}
	emptied := !st.More()

	top := &batch[0].f
	bottom := &batch[len(batch)-1].f

	// the next frozen frame becomes the chunk's recorded top; its view
	// comes from the stream, which knows a compiled fp is synthetic and
	// an interpreted caller's top sits behind the sender-sp overlap
	var nextFP, nextTop int
	var nextPC continuation.Address
	if !emptied {
		peek := *st
		g, _, err := peek.Next()
		if err != nil {
			return 0, err
		}
		nextFP, nextPC, nextTop = g.FP, g.PC, g.Top
	}

	srcLo := top.Top - frame.MetadataWords
	srcHi := frame.OpsFor(bottom.Kind).CopyBottom(bottom)
	argsize := bottom.ArgSize
	if emptied {
		srcHi = c.Size()
		argsize = c.ArgSize()
	}
	delta := cont.EntrySP + argsize - srcHi

	if c.RequiresBarriers() {
		for i := range batch {
			f := &batch[i].f
			e.barriers.StoreRange(c, f.Top-frame.MetadataWords, frame.OpsFor(f.Kind).CopyBottom(f))
		}
	}

	c.CopyTo(buf, srcLo+delta, srcLo, srcHi)

	// explicit return push for the restored top frame; the fixup loop
	// below may redirect the pushed pc into a deopt handler
	newSP := top.Top + delta - frame.MetadataWords
	buf.SetWord(newSP, continuation.Word(top.FP+delta))
	buf.SetWord(newSP+frame.ReturnPCOffset, top.PC)

	for i := range batch {
		f := &batch[i].f
		g := f.Shift(delta)
		if f.Kind == frame.Interpreted {
			frame.DerelativizeInto(c, buf, f.FP, g.FP)
		}
		fpSlot, pcSlot := g.FPLinkSlot(), g.ResumePCSlot()
		if i > 0 {
			callee := batch[i-1].f.Shift(delta)
			fpSlot, pcSlot = callee.CallerLinkSlots()
		}
		buf.SetWord(fpSlot, continuation.Word(g.FP))
		if err := e.deoptIfMarked(buf, &batch[i], pcSlot); err != nil {
			return 0, err
		}
	}

	if c.HasBitmap() {
		if emptied {
			c.Bitmap().Reset()
		} else {
			c.Bitmap().ClearRange(srcLo, nextTop)
		}
	}
	if emptied {
		c.SetSP(c.Size())
		c.AddMaxSize(-c.MaxSize())
	} else {
		c.SetFP(nextFP)
		c.SetPC(nextPC)
		c.SetSP(nextTop)
		c.AddMaxSize(-(nextTop - top.Top))
	}

	isLast := emptied && allParentsEmpty(c)
	bg := bottom.Shift(delta)
	fpSlot, pcSlot := bg.CallerLinkSlots()
	buf.SetWord(fpSlot, continuation.Word(cont.EntryFP))
	if isLast {
		buf.SetWord(pcSlot, cont.EntryPC)
	} else {
		buf.SetWord(pcSlot, e.barrierPC)
	}

	cont.ArgSize = argsize
	car.SP = newSP
	e.log.Debug("slow thaw",
		zap.Int("frames", len(batch)),
		zap.Int("words", srcHi-srcLo),
		zap.Bool("emptied", emptied),
		zap.Bool("last", isLast))
	return newSP, nil
}

// patchEntryReturn rewrites the restored bottom frame's caller linkage:
// the entry trampoline's pc when the continuation is fully thawed, the
// return barrier sentinel while frames remain frozen below.
func (e *Engine) patchEntryReturn(car *Carrier, cont *Continuation, linkBase int, isLast bool) {
	car.Stack.SetWord(linkBase, continuation.Word(cont.EntryFP))
	if isLast {
		car.Stack.SetWord(linkBase+frame.ReturnPCOffset, cont.EntryPC)
	} else {
		car.Stack.SetWord(linkBase+frame.ReturnPCOffset, e.barrierPC)
	}
}

// deoptIfMarked redirects a thawed compiled frame into its
// deoptimization entry when its code was invalidated while frozen.
// Mirrors the runtime's assumption that a deoptimized thaw holds no
// monitors; biased locks are not revoked here, a known limitation.
func (e *Engine) deoptIfMarked(buf frame.Buffer, fr *frozenFrame, pcSlot int) error {
	if fr.f.Kind != frame.Compiled || !fr.info.MarkedForDeopt {
		return nil
	}
	if fr.info.DeoptEntry == continuation.NoAddress {
		return errors.New(errors.PhaseThaw, errors.KindDeopt).
			PC(fr.f.PC).
			Frame("compiled").
			Detail("code %s marked for deoptimization without an entry", fr.info.Name).
			Build()
	}
	// the frame resumes at the deopt handler instead of its real pc
	buf.SetWord(pcSlot, fr.info.DeoptEntry)
	debugf("deopt on thaw: %s at pc %#x", fr.info.Name, fr.f.PC)
	return nil
}
