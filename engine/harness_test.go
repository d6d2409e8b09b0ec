package engine

import (
	"testing"

	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/frame"
	"github.com/wippyai/continuation/stack"
)

type testCode map[continuation.Address]frame.CodeInfo

func (t testCode) Lookup(pc continuation.Address) (frame.CodeInfo, bool) {
	info, ok := t[pc]
	return info, ok
}

const (
	testStackWords = 256
	testEntrySP    = 200
	testEntryFP    = 210
	testEntryPC    = continuation.Address(0xE000)
	testBarrierPC  = continuation.Address(0xBA00)
)

// stackBuilder lays frames onto a stack the way a running thread would
// have left them: entry trampoline deepest, then caller to callee
// upward, finishing with the suspend-point metadata below the top
// frame. Each push registers the frame's code metadata.
type stackBuilder struct {
	t     *testing.T
	buf   *stack.Stack
	code  testCode
	entry *Continuation

	top   int
	topFP int
	topPC continuation.Address
	next  continuation.Address
	first bool
}

func newStackBuilder(t *testing.T) *stackBuilder {
	t.Helper()
	b := &stackBuilder{
		t:    t,
		buf:  stack.New(testStackWords, 0),
		code: testCode{},
		entry: &Continuation{
			EntrySP: testEntrySP,
			EntryFP: testEntryFP,
			EntryPC: testEntryPC,
		},
		top:   testEntrySP,
		topFP: testEntryFP,
		topPC: testEntryPC,
		next:  0x1000,
		first: true,
	}
	// entry trampoline body pattern
	for i := testEntrySP; i < testStackWords; i++ {
		b.buf.SetWord(i, 0xEEEE0000+continuation.Word(i))
	}
	return b
}

func (b *stackBuilder) pc() continuation.Address {
	p := b.next
	b.next += 0x10
	return p
}

// pushCompiled lays a compiled frame on top of the current stack. Its
// stack-passed args overwrite the first args words of the frame below.
func (b *stackBuilder) pushCompiled(size, args int) continuation.Address {
	b.t.Helper()
	if size < frame.MetadataWords {
		b.t.Fatalf("compiled frame size %d too small", size)
	}
	pc := b.pc()
	bodyTop := b.top - size
	for i := bodyTop; i < b.top; i++ {
		b.buf.SetWord(i, continuation.Word(pc)<<16|continuation.Word(i))
	}
	for i := 0; i < args; i++ {
		b.buf.SetWord(b.top+i, 0xA1A10000|continuation.Word(pc)+continuation.Word(i))
	}
	b.buf.SetWord(b.top-frame.SavedFPOffset, continuation.Word(b.topFP))
	b.buf.SetWord(b.top-frame.ReturnPCOffset, b.topPC)
	b.code[pc] = frame.CodeInfo{
		Name:      "compiled",
		Kind:      frame.Compiled,
		FrameSize: size,
		ArgSize:   args,
	}
	if b.first {
		b.entry.ArgSize = args
		b.first = false
	}
	b.topFP = bodyTop + size - frame.SavedFPOffset
	b.topPC = pc
	b.top = bodyTop
	return pc
}

// pushInterpreted lays an interpreted frame. locals includes the args
// words, which extend into the frame below; monitors sets the held
// monitor count slot.
func (b *stackBuilder) pushInterpreted(locals, args, exprWords, monitors int) continuation.Address {
	b.t.Helper()
	if locals < args {
		b.t.Fatalf("locals %d smaller than args %d", locals, args)
	}
	pc := b.pc()
	fp := b.top + args - locals - frame.MetadataWords
	top := fp - frame.SlotWords - exprWords

	for i := top; i < b.top+args; i++ {
		b.buf.SetWord(i, continuation.Word(pc)<<16|continuation.Word(i))
	}
	b.buf.SetWord(fp, continuation.Word(b.topFP))
	b.buf.SetWord(fp+1, b.topPC)
	frame.WriteSlot(b.buf, fp, frame.SlotSenderSP, int64(b.top))
	frame.WriteSlot(b.buf, fp, frame.SlotLastSP, int64(top))
	frame.WriteSlot(b.buf, fp, frame.SlotLocals, int64(fp+frame.MetadataWords))
	frame.WriteSlot(b.buf, fp, frame.SlotInitialSP, int64(fp-frame.SlotWords))
	frame.WriteSlot(b.buf, fp, frame.SlotMonitors, int64(monitors))
	b.code[pc] = frame.CodeInfo{
		Name:    "interpreted",
		Kind:    frame.Interpreted,
		Locals:  locals,
		ArgSize: args,
	}
	if b.first {
		b.entry.ArgSize = args
		b.first = false
	}
	b.topFP = fp
	b.topPC = pc
	b.top = top
	return pc
}

// pushStub lays a safepoint stub frame; only valid as the final push
// before finishing a preempted carrier.
func (b *stackBuilder) pushStub(size int) continuation.Address {
	b.t.Helper()
	pc := b.pc()
	bodyTop := b.top - size
	for i := bodyTop; i < b.top; i++ {
		b.buf.SetWord(i, continuation.Word(pc)<<16|continuation.Word(i))
	}
	b.buf.SetWord(b.top-frame.SavedFPOffset, continuation.Word(b.topFP))
	b.buf.SetWord(b.top-frame.ReturnPCOffset, b.topPC)
	b.code[pc] = frame.CodeInfo{
		Name:      "stub",
		Kind:      frame.Stub,
		FrameSize: size,
	}
	b.topFP = bodyTop + size - frame.SavedFPOffset
	b.topPC = pc
	b.top = bodyTop
	return pc
}

// finish writes the suspend-point metadata and returns the carrier.
func (b *stackBuilder) finish() *Carrier {
	b.t.Helper()
	sp := b.top - frame.MetadataWords
	b.buf.SetWord(sp, continuation.Word(b.topFP))
	b.buf.SetWord(sp+frame.ReturnPCOffset, b.topPC)
	return &Carrier{
		Stack: b.buf,
		SP:    sp,
		Entry: b.entry,
	}
}

// snapshot copies the live segment plus entry argument overlap.
func (b *stackBuilder) snapshot(car *Carrier) []continuation.Word {
	lo := car.SP
	hi := testEntrySP + b.entry.ArgSize
	out := make([]continuation.Word, hi-lo)
	copy(out, b.buf.Slice(lo, hi))
	return out
}

// wipe clears the segment below the entry frame so a later comparison
// proves thawed content came from the chunk.
func (b *stackBuilder) wipe() {
	for i := 0; i < testEntrySP; i++ {
		b.buf.SetWord(i, 0)
	}
}

func (b *stackBuilder) compare(t *testing.T, car *Carrier, want []continuation.Word, lo int) {
	t.Helper()
	hi := testEntrySP + b.entry.ArgSize
	for i := lo; i < hi; i++ {
		if got := b.buf.Word(i); got != want[i-lo] {
			t.Errorf("stack[%d] = %#x, want %#x", i, got, want[i-lo])
		}
	}
}

// newTestEngine resolves an engine over the builder's code table.
func newTestEngine(t *testing.T, b *stackBuilder, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := Config{
		Code:            b.code,
		Allocator:       NewTLABAllocator(1 << 12),
		ReturnBarrierPC: testBarrierPC,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// thawAll drains every frozen frame back onto the stack.
func thawAll(t *testing.T, e *Engine, car *Carrier) {
	t.Helper()
	kind := ThawTop
	for i := 0; ; i++ {
		if i > 64 {
			t.Fatal("thaw loop did not terminate")
		}
		need, err := e.PrepareThaw(car, kind != ThawTop)
		if err != nil {
			t.Fatalf("PrepareThaw: %v", err)
		}
		if need == 0 {
			return
		}
		if _, err := e.Thaw(car, kind); err != nil {
			t.Fatalf("Thaw: %v", err)
		}
		kind = ThawReturnBarrier
	}
}
