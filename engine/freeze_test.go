package engine

import (
	stderrors "errors"
	"testing"

	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/chunk"
	"github.com/wippyai/continuation/errors"
	"github.com/wippyai/continuation/frame"
)

func TestFastFreezeCompiledSegment(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 2)
	b.pushCompiled(6, 1)
	car := b.finish()
	car.FastPathAllowed = true
	e := newTestEngine(t, b, nil)

	res, err := e.Freeze(car, car.SP)
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if res != FreezeOKBottom {
		t.Fatalf("result = %v, want ok_bottom", res)
	}
	if car.SP != testEntrySP {
		t.Errorf("carrier sp = %d, want entry %d", car.SP, testEntrySP)
	}

	c := car.Entry.Tail()
	if c == nil || c.IsEmpty() {
		t.Fatal("no frozen chunk")
	}
	if c.ArgSize() != 2 {
		t.Errorf("chunk argsize = %d, want 2", c.ArgSize())
	}
	if err := c.Verify(b.code); err != nil {
		t.Errorf("Verify: %v", err)
	}
	if want := c.Size() - c.SP() + frame.MetadataWords; c.MaxSize() != want {
		t.Errorf("max size = %d, want occupancy %d", c.MaxSize(), want)
	}
	n, err := c.NumFrames(b.code)
	if err != nil || n != 2 {
		t.Errorf("NumFrames = %d (%v), want 2", n, err)
	}
}

func TestSlowFreezeMatchesFastInvariants(t *testing.T) {
	build := func() (*stackBuilder, *Carrier) {
		b := newStackBuilder(t)
		b.pushCompiled(8, 2)
		b.pushCompiled(6, 1)
		b.pushCompiled(5, 0)
		return b, b.finish()
	}

	bFast, carFast := build()
	carFast.FastPathAllowed = true
	eFast := newTestEngine(t, bFast, nil)
	if res, err := eFast.Freeze(carFast, carFast.SP); err != nil || !res.OK() {
		t.Fatalf("fast freeze: %v %v", res, err)
	}

	bSlow, carSlow := build()
	eSlow := newTestEngine(t, bSlow, func(cfg *Config) { cfg.DisableFastPath = true })
	if res, err := eSlow.Freeze(carSlow, carSlow.SP); err != nil || !res.OK() {
		t.Fatalf("slow freeze: %v %v", res, err)
	}

	cf, cs := carFast.Entry.Tail(), carSlow.Entry.Tail()
	if cf.SP() != cs.SP() {
		t.Errorf("sp: fast %d, slow %d", cf.SP(), cs.SP())
	}
	if cf.ArgSize() != cs.ArgSize() {
		t.Errorf("argsize: fast %d, slow %d", cf.ArgSize(), cs.ArgSize())
	}
	if cf.PC() != cs.PC() {
		t.Errorf("pc: fast %#x, slow %#x", cf.PC(), cs.PC())
	}
	if cf.MaxSize() != cs.MaxSize() {
		t.Errorf("max size: fast %d, slow %d", cf.MaxSize(), cs.MaxSize())
	}
	if err := cf.Verify(bFast.code); err != nil {
		t.Errorf("fast Verify: %v", err)
	}
	if err := cs.Verify(bSlow.code); err != nil {
		t.Errorf("slow Verify: %v", err)
	}

	// both chunks must restore an identical live segment
	thawAll(t, eFast, carFast)
	thawAll(t, eSlow, carSlow)
	if carFast.SP != carSlow.SP {
		t.Fatalf("thawed sp: fast %d, slow %d", carFast.SP, carSlow.SP)
	}
	hi := testEntrySP + bFast.entry.ArgSize
	for i := carFast.SP; i < hi; i++ {
		if a, b := bFast.buf.Word(i), bSlow.buf.Word(i); a != b {
			t.Errorf("stack[%d]: fast %#x, slow %#x", i, a, b)
		}
	}
}

func TestSingleCompiledFrameExactFit(t *testing.T) {
	b := newStackBuilder(t)
	pc := b.pushCompiled(7, 0)
	car := b.finish()
	e := newTestEngine(t, b, func(cfg *Config) { cfg.DisableFastPath = true })

	res, err := e.Freeze(car, car.SP)
	if err != nil || res != FreezeOKBottom {
		t.Fatalf("freeze = %v, %v", res, err)
	}
	c := car.Entry.Tail()
	if want := 7 + frame.MetadataWords; c.Size() != want {
		t.Errorf("chunk capacity = %d, want exactly %d", c.Size(), want)
	}
	if c.SP() != frame.MetadataWords {
		t.Errorf("chunk sp = %d, want %d", c.SP(), frame.MetadataWords)
	}
	if c.PC() != pc {
		t.Errorf("chunk pc = %#x, want %#x", c.PC(), pc)
	}
}

func TestFreezeOrderingCalleeToCaller(t *testing.T) {
	b := newStackBuilder(t)
	bottom := b.pushCompiled(8, 0)
	mid := b.pushCompiled(6, 2)
	top := b.pushCompiled(5, 1)
	car := b.finish()
	e := newTestEngine(t, b, func(cfg *Config) { cfg.DisableFastPath = true })

	if res, err := e.Freeze(car, car.SP); err != nil || !res.OK() {
		t.Fatalf("freeze = %v, %v", res, err)
	}
	c := car.Entry.Tail()
	var pcs []continuation.Address
	st := chunk.NewStream(c, b.code)
	for st.More() {
		f, _, err := st.Next()
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		pcs = append(pcs, f.PC)
	}
	want := []continuation.Address{top, mid, bottom}
	if len(pcs) != 3 || pcs[0] != want[0] || pcs[1] != want[1] || pcs[2] != want[2] {
		t.Fatalf("frozen order %#x, want %#x", pcs, want)
	}
}

func TestFreezePinnedInterpretedMonitor(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 0)
	b.pushInterpreted(3, 1, 0, 1) // holds one monitor
	b.pushCompiled(5, 1)
	car := b.finish()
	e := newTestEngine(t, b, nil)

	res, err := e.Freeze(car, car.SP)
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if res != FreezePinnedMonitor {
		t.Fatalf("result = %v, want pinned_monitor", res)
	}
	if car.Entry.Tail() != nil {
		t.Error("pinned freeze mutated the chunk list")
	}
	if car.SP == testEntrySP {
		t.Error("pinned freeze advanced the carrier sp")
	}
}

func TestFreezePinnedCompiledMonitor(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 0)
	locked := b.pushCompiled(6, 1)
	car := b.finish()
	e := newTestEngine(t, b, func(cfg *Config) {
		cfg.Locks = PCLockOracle{locked: true}
	})

	res, err := e.Freeze(car, car.SP)
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if res != FreezePinnedMonitor {
		t.Fatalf("result = %v, want pinned_monitor", res)
	}
}

func TestFreezePinnedNative(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 0)
	native := b.pushCompiled(6, 1)
	info := b.code[native]
	info.Native = true
	b.code[native] = info
	car := b.finish()
	e := newTestEngine(t, b, nil)

	res, err := e.Freeze(car, car.SP)
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if res != FreezePinnedNative {
		t.Fatalf("result = %v, want pinned_native", res)
	}

	// a pc with no metadata at all is equally opaque
	delete(b.code, native)
	res, err = e.Freeze(car, car.SP)
	if err != nil || res != FreezePinnedNative {
		t.Fatalf("unknown pc result = %v, %v, want pinned_native", res, err)
	}
}

func TestFreezePinnedCriticalSection(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 0)
	car := b.finish()
	car.Entry.Pin()
	e := newTestEngine(t, b, nil)

	res, err := e.Freeze(car, car.SP)
	if err != nil || res != FreezePinnedCS {
		t.Fatalf("result = %v, %v, want pinned_cs", res, err)
	}
	car.Entry.Unpin()
	res, err = e.Freeze(car, car.SP)
	if err != nil || !res.OK() {
		t.Fatalf("after unpin: %v, %v", res, err)
	}
}

func TestFreezeExceptionPassthrough(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 0)
	car := b.finish()
	pending := errors.Layout(errors.PhaseFreeze, "boom")
	car.PendingError = pending
	e := newTestEngine(t, b, nil)

	res, err := e.Freeze(car, car.SP)
	if res != FreezeException {
		t.Fatalf("result = %v, want exception", res)
	}
	if err != pending {
		t.Fatalf("err = %v, want the pending error unchanged", err)
	}
	if car.Entry.Tail() != nil {
		t.Error("exception passthrough mutated the chunk list")
	}
}

func TestFreezeAllocationFailure(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 0)
	car := b.finish()
	e := newTestEngine(t, b, func(cfg *Config) {
		cfg.Allocator = &FixedAllocator{LimitWords: 4}
		cfg.DisableFastPath = true
	})

	res, err := e.Freeze(car, car.SP)
	if res != FreezeException {
		t.Fatalf("result = %v, want exception", res)
	}
	if !stderrors.Is(err, errors.AllocationFailed(0, nil)) {
		t.Fatalf("err = %v, want allocation failure", err)
	}
}

func TestFreezeHumongousIsStackOverflow(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 0)
	car := b.finish()
	e := newTestEngine(t, b, func(cfg *Config) {
		cfg.MaxChunkWords = 4
		cfg.DisableFastPath = true
	})

	res, err := e.Freeze(car, car.SP)
	if res != FreezeException {
		t.Fatalf("result = %v, want exception", res)
	}
	if !stderrors.Is(err, errors.StackOverflow(errors.PhaseAllocate, "")) {
		t.Fatalf("err = %v, want stack overflow", err)
	}
}

func TestFreezePreemptedStub(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 0)
	b.pushStub(4)
	car := b.finish()
	car.Preempted = true
	e := newTestEngine(t, b, nil)

	// a preempted capture without a full register snapshot is a defect
	res, err := e.Freeze(car, car.SP)
	if res != FreezeException || err == nil {
		t.Fatalf("result = %v, %v, want exception", res, err)
	}

	car.Registers = frame.NewFullSnapshot([]uint64{1, 2, 3}, 0b100)
	res, err = e.Freeze(car, car.SP)
	if err != nil || res != FreezeOKBottom {
		t.Fatalf("result = %v, %v, want ok_bottom", res, err)
	}
	c := car.Entry.Tail()
	if !c.HasMixedFrames() {
		t.Error("stub capture should mark the chunk mixed")
	}
	if err := c.Verify(b.code); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestRefBitmapPopulated(t *testing.T) {
	b := newStackBuilder(t)
	pc := b.pushCompiled(8, 0)
	info := b.code[pc]
	info.HasRefMap = true
	info.RefOffsets = []int{1, 3}
	b.code[pc] = info
	car := b.finish()
	e := newTestEngine(t, b, func(cfg *Config) { cfg.DisableFastPath = true })

	if res, err := e.Freeze(car, car.SP); err != nil || !res.OK() {
		t.Fatalf("freeze = %v, %v", res, err)
	}
	c := car.Entry.Tail()
	if !c.HasBitmap() {
		t.Fatal("no reference bitmap")
	}
	// frame top lands at the metadata boundary, offsets follow it
	base := c.SP()
	if !c.Bitmap().Has(base+1) || !c.Bitmap().Has(base+3) {
		t.Error("reference slots not marked")
	}
	if c.Bitmap().Count() != 2 {
		t.Errorf("bitmap count = %d, want 2", c.Bitmap().Count())
	}
}

func TestRefreezeReusesTailChunk(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 2)
	b.pushCompiled(6, 1)
	b.pushCompiled(6, 1)
	car := b.finish()
	car.FastPathAllowed = true
	e := newTestEngine(t, b, func(cfg *Config) { cfg.ThawThresholdWords = 1 })

	origSP := car.SP
	want := b.snapshot(car)

	if res, err := e.Freeze(car, car.SP); err != nil || res != FreezeOKBottom {
		t.Fatalf("freeze = %v, %v", res, err)
	}
	first := car.Entry.Tail()
	b.wipe()

	if _, err := e.Thaw(car, ThawTop); err != nil {
		t.Fatalf("partial thaw: %v", err)
	}
	if n, err := first.NumFrames(b.code); err != nil || n != 2 {
		t.Fatalf("frames left = %d, %v, want 2", n, err)
	}

	// the suspended frame goes back into the same chunk, on top of the
	// two frames that never left
	res, err := e.Freeze(car, car.SP)
	if err != nil || res != FreezeOK {
		t.Fatalf("refreeze = %v, %v", res, err)
	}
	if car.Entry.Tail() != first {
		t.Fatal("refreeze allocated a new chunk instead of extending the tail")
	}
	if car.SP != testEntrySP {
		t.Errorf("sp = %d, want entry %d", car.SP, testEntrySP)
	}
	if err := first.Verify(b.code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if n, err := first.NumFrames(b.code); err != nil || n != 3 {
		t.Fatalf("frames after refreeze = %d, %v, want 3", n, err)
	}

	// frames land against the entry, shallower than where they started
	b.wipe()
	thawAll(t, e, car)
	b.compare(t, car, want[car.SP-origSP:], car.SP)
}

func TestRefreezeSlowMixedSeam(t *testing.T) {
	b := newStackBuilder(t)
	b.pushCompiled(8, 2)
	midPC := b.pushInterpreted(4, 1, 2, 0)
	b.pushInterpreted(3, 1, 1, 0)
	b.pushCompiled(6, 1)
	car := b.finish()
	e := newTestEngine(t, b, func(cfg *Config) { cfg.DisableFastPath = true })

	origSP := car.SP
	want := b.snapshot(car)

	if res, err := e.Freeze(car, car.SP); err != nil || res != FreezeOKBottom {
		t.Fatalf("freeze = %v, %v", res, err)
	}
	first := car.Entry.Tail()
	if !first.HasMixedFrames() {
		t.Fatal("expected a mixed chunk")
	}
	b.wipe()

	// a top thaw rebuilds the compiled frame and its interpreted caller,
	// leaving an interpreted frame as the chunk top
	if _, err := e.Thaw(car, ThawTop); err != nil {
		t.Fatalf("partial thaw: %v", err)
	}
	if n, err := first.NumFrames(b.code); err != nil || n != 2 {
		t.Fatalf("frames left = %d, %v, want 2", n, err)
	}

	res, err := e.Freeze(car, car.SP)
	if err != nil || res != FreezeOK {
		t.Fatalf("refreeze = %v, %v", res, err)
	}
	if car.Entry.Tail() != first {
		t.Fatal("refreeze allocated a new chunk instead of extending the tail")
	}
	if err := first.Verify(b.code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if n, err := first.NumFrames(b.code); err != nil || n != 4 {
		t.Fatalf("frames after refreeze = %d, %v, want 4", n, err)
	}

	b.wipe()
	thawAll(t, e, car)
	// the deepest interpreted frame resumes against the entry; its
	// suspend metadata overwrites words its callee's locals once held
	if got := b.buf.Word(car.SP + frame.ReturnPCOffset); got != midPC {
		t.Errorf("resume pc = %#x, want %#x", got, midPC)
	}
	lo := car.SP + frame.MetadataWords
	b.compare(t, car, want[lo-origSP:], lo)
}
