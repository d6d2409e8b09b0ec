package frame

import (
	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/errors"
)

// Kind discriminates the three frame variants.
type Kind uint8

const (
	// Interpreted frames belong to bytecode executed by the interpreter.
	// Their size depends on the method's local-variable count and they
	// carry internal pointers that must be relativized when frozen.
	Interpreted Kind = iota

	// Compiled frames belong to just-in-time-compiled code. They are
	// opaque blocks of a size fixed by code metadata, plus a table of
	// live managed-reference locations.
	Compiled

	// Stub frames are runtime stubs; the only stub the engines relocate
	// is the safepoint stub left by a forced preemption. Stubs save
	// callee registers, so freezing one requires a full register
	// snapshot before its caller can be examined.
	Stub
)

// KindNone marks "no callee" when computing the top frame's copy range.
const KindNone Kind = 0xff

func (k Kind) String() string {
	switch k {
	case Interpreted:
		return "interpreted"
	case Compiled:
		return "compiled"
	case Stub:
		return "stub"
	case KindNone:
		return "none"
	}
	return "unknown"
}

// Layout constants of the durable stack/chunk word contract.
const (
	// MetadataWords is the number of boundary words below each frame top:
	// the saved frame-pointer link and the resume pc.
	MetadataWords = 2

	// ReturnPCOffset locates a frame's resume pc relative to its top.
	ReturnPCOffset = 1

	// SavedFPOffset locates a frame's fp link relative to its top.
	SavedFPOffset = 2

	// AlignWiggle is the alignment slack reserved when sizing thaw
	// headroom, for platforms that pad between locals and frame body.
	// The word layout itself is unpadded.
	AlignWiggle = 1
)

// Buffer is the minimal word storage a frame is parsed from. Both the
// physical stack and a chunk satisfy it.
type Buffer interface {
	Word(i int) continuation.Word
	SetWord(i int, v continuation.Word)
	Size() int
}

// Frame describes one activation. It is a transient view: frames are
// re-derived from buffer contents on every walk and never persisted.
type Frame struct {
	Kind Kind
	PC   continuation.Address

	// Top is the frame's raw stack pointer (lowest body index).
	Top int

	// UnextendedTop is the logical top. Interpreted frames may have a
	// deeper logical top than their raw pointer; for other kinds the two
	// are equal.
	UnextendedTop int

	// FP is the frame pointer. Interpreted frames use it to locate their
	// internal slots and locals; compiled and stub frames point it at
	// their own fp-link boundary word.
	FP int

	// Size is the body size in words, measured from UnextendedTop.
	Size int

	// ArgSize is the number of stack-passed argument words the frame
	// shares with its caller.
	ArgSize int

	// Locals is the interpreted local-slot count; zero for other kinds.
	Locals int
}

// Bottom returns the first index past the frame body. Stack-passed
// arguments of compiled frames live at [Bottom, Bottom+ArgSize) inside
// the caller's region.
func (f *Frame) Bottom() int {
	return f.UnextendedTop + f.Size
}

// ResumePCSlot returns the index of the frame's resume-pc metadata word.
func (f *Frame) ResumePCSlot() int { return f.Top - ReturnPCOffset }

// FPLinkSlot returns the index of the frame's fp-link metadata word.
func (f *Frame) FPLinkSlot() int { return f.Top - SavedFPOffset }

// CallerLinkSlots returns the indices of the slots holding the caller's
// fp link and resume pc, per the frame's kind: the top two body words for
// compiled and stub frames, [fp] and [fp+1] for interpreted frames.
func (f *Frame) CallerLinkSlots() (fpSlot, pcSlot int) {
	if f.Kind == Interpreted {
		return f.FP, f.FP + 1
	}
	return f.Bottom() - SavedFPOffset, f.Bottom() - ReturnPCOffset
}

// Ops bundles the per-kind operations the engines dispatch on.
type Ops struct {
	Name string

	// CopyTop returns the lowest index the frame contributes to a
	// relocation, given the callee's argument size and kind. Shared
	// argument words already accounted to a same-kind callee are skipped.
	CopyTop func(f *Frame, calleeArgs int, calleeKind Kind) int

	// CopyBottom returns the first index past the frame's contribution,
	// including its own stack-passed arguments where those overlap the
	// caller.
	CopyBottom func(f *Frame) int

	// OwnsLock reports whether the frame holds a monitor.
	OwnsLock func(buf Buffer, f *Frame, regs *RegisterSnapshot, oracle LockOracle) bool
}

// LockOracle answers monitor-ownership queries for compiled and stub
// frames, which require a live-register view the engine cannot derive
// from the frame body alone.
type LockOracle interface {
	OwnsMonitor(f *Frame, regs *RegisterSnapshot) bool
}

var opsTable = [3]Ops{
	Interpreted: {
		Name: "interpreted",
		CopyTop: func(f *Frame, calleeArgs int, calleeKind Kind) int {
			if calleeKind == Interpreted {
				// callee locals overlap this frame's expression stack
				return f.UnextendedTop + calleeArgs
			}
			return f.UnextendedTop
		},
		CopyBottom: func(f *Frame) int {
			return f.Bottom()
		},
		OwnsLock: func(buf Buffer, f *Frame, _ *RegisterSnapshot, _ LockOracle) bool {
			return MonitorCount(buf, f.FP) > 0
		},
	},
	Compiled: {
		Name: "compiled",
		CopyTop: func(f *Frame, calleeArgs int, calleeKind Kind) int {
			if calleeKind == Compiled {
				// callee stack args sit at this frame's top and were
				// already copied as part of the callee
				return f.UnextendedTop + calleeArgs
			}
			return f.UnextendedTop
		},
		CopyBottom: func(f *Frame) int {
			return f.Bottom() + f.ArgSize
		},
		OwnsLock: func(_ Buffer, f *Frame, regs *RegisterSnapshot, oracle LockOracle) bool {
			return oracle != nil && oracle.OwnsMonitor(f, regs)
		},
	},
	Stub: {
		Name: "stub",
		CopyTop: func(f *Frame, _ int, _ Kind) int {
			return f.UnextendedTop
		},
		CopyBottom: func(f *Frame) int {
			return f.Bottom()
		},
		OwnsLock: func(_ Buffer, _ *Frame, _ *RegisterSnapshot, _ LockOracle) bool {
			return false
		},
	},
}

// OpsFor returns the operations table entry for kind k.
func OpsFor(k Kind) *Ops {
	if int(k) >= len(opsTable) {
		panic(errors.Layout(errors.PhaseWalk, "no ops for frame kind %d", k))
	}
	return &opsTable[k]
}

// CopyRange returns the [lo, hi) word range the frame contributes to a
// relocation given its callee's argument size and kind.
func (f *Frame) CopyRange(calleeArgs int, calleeKind Kind) (lo, hi int) {
	ops := OpsFor(f.Kind)
	return ops.CopyTop(f, calleeArgs, calleeKind), ops.CopyBottom(f)
}

// CopySize returns the number of words the frame contributes to a
// relocation.
func (f *Frame) CopySize(calleeArgs int, calleeKind Kind) int {
	lo, hi := f.CopyRange(calleeArgs, calleeKind)
	return hi - lo
}

// Shift rebases all of the frame's indices by delta words. Used to map a
// stack-resident frame to its chunk position and back.
func (f *Frame) Shift(delta int) Frame {
	g := *f
	g.Top += delta
	g.UnextendedTop += delta
	g.FP += delta
	return g
}
