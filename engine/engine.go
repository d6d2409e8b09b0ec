package engine

import (
	"go.uber.org/zap"

	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/errors"
	"github.com/wippyai/continuation/frame"
)

// FreezeResult is the outcome of a freeze attempt. The pinned results
// are normal negative outcomes, not errors: the caller may retry on the
// carrier or keep executing.
type FreezeResult int

const (
	// FreezeOK froze the segment; older frames remain frozen below it.
	FreezeOK FreezeResult = iota
	// FreezeOKBottom froze the segment and it is the bottom-most one.
	FreezeOKBottom
	// FreezePinnedCS refused: the continuation is in a critical section.
	FreezePinnedCS
	// FreezePinnedNative refused: a native or unwalkable frame is on the stack.
	FreezePinnedNative
	// FreezePinnedMonitor refused: a frame holds a monitor.
	FreezePinnedMonitor
	// FreezeException aborted: a pending or fresh error takes precedence.
	FreezeException
)

func (r FreezeResult) String() string {
	switch r {
	case FreezeOK:
		return "ok"
	case FreezeOKBottom:
		return "ok_bottom"
	case FreezePinnedCS:
		return "pinned_cs"
	case FreezePinnedNative:
		return "pinned_native"
	case FreezePinnedMonitor:
		return "pinned_monitor"
	case FreezeException:
		return "exception"
	}
	return "unknown"
}

// OK reports whether the freeze completed.
func (r FreezeResult) OK() bool { return r == FreezeOK || r == FreezeOKBottom }

// Pinned reports whether the freeze was refused because of a pin.
func (r FreezeResult) Pinned() bool {
	return r == FreezePinnedCS || r == FreezePinnedNative || r == FreezePinnedMonitor
}

// ThawKind selects how a thaw was entered.
type ThawKind int

const (
	// ThawTop resumes a continuation at its topmost frame.
	ThawTop ThawKind = iota
	// ThawReturnBarrier re-enters through the return barrier sentinel.
	ThawReturnBarrier
	// ThawException re-enters through the return barrier with a pending
	// error to deliver into the thawed frame.
	ThawException
)

func (k ThawKind) String() string {
	switch k {
	case ThawTop:
		return "top"
	case ThawReturnBarrier:
		return "return_barrier"
	case ThawException:
		return "exception"
	}
	return "unknown"
}

// defaults applied by New.
const (
	DefaultThawThreshold = 500
	DefaultMaxChunkWords = 1 << 16
	DefaultMaxWalkFrames = 1 << 20
)

// Config carries the collaborators and tuning knobs an engine is
// resolved against. Code and Allocator are required.
type Config struct {
	// Code resolves program counters to frame metadata.
	Code frame.CodeTable

	// Allocator obtains chunks from the managed heap.
	Allocator ChunkAllocator

	// Locks answers monitor-ownership queries for compiled frames.
	// When nil, compiled frames are assumed to hold no monitors.
	Locks frame.LockOracle

	// Barriers is the collector store-barrier hook applied to chunks
	// that require it. Defaults to NoBarriers.
	Barriers BarrierSet

	// OopWidth selects the reference encoding the bitmap describes.
	OopWidth OopWidth

	// ReturnBarrierPC is the sentinel return address installed so a
	// return into a frozen segment re-enters the thaw machinery.
	// Required; must not collide with any real code address.
	ReturnBarrierPC continuation.Address

	// ThawThresholdWords bounds a whole-chunk fast thaw; larger chunks
	// thaw one frame at a time. Defaults to DefaultThawThreshold.
	ThawThresholdWords int

	// MaxChunkWords caps a single chunk allocation; larger requests are
	// a stack-overflow condition. Defaults to DefaultMaxChunkWords.
	MaxChunkWords int

	// MaxWalkFrames bounds a freeze walk as a defense against corrupted
	// frame chains. Defaults to DefaultMaxWalkFrames.
	MaxWalkFrames int

	// DisableFastPath forces every operation through the slow path.
	DisableFastPath bool

	// Logger overrides the package logger for this engine.
	Logger *zap.Logger
}

// Engine is the freeze/thaw machinery with its strategy resolved once:
// barrier set, reference width and sentinel addresses are fixed at
// construction so both engines dispatch without re-deciding.
type Engine struct {
	code      frame.CodeTable
	alloc     ChunkAllocator
	locks     frame.LockOracle
	barriers  BarrierSet
	oops      OopWidth
	barrierPC continuation.Address

	thawThreshold int
	maxChunkWords int
	maxWalkFrames int
	disableFast   bool

	log *zap.Logger
}

// New resolves a configuration into an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Code == nil {
		return nil, errors.Layout(errors.PhaseVerify, "engine config without a code table")
	}
	if cfg.Allocator == nil {
		return nil, errors.Layout(errors.PhaseVerify, "engine config without an allocator")
	}
	if cfg.ReturnBarrierPC == continuation.NoAddress {
		return nil, errors.Layout(errors.PhaseVerify, "engine config without a return barrier address")
	}
	if _, ok := cfg.Code.Lookup(cfg.ReturnBarrierPC); ok {
		return nil, errors.Layout(errors.PhaseVerify, "return barrier address collides with real code")
	}

	e := &Engine{
		code:          cfg.Code,
		alloc:         cfg.Allocator,
		locks:         cfg.Locks,
		barriers:      cfg.Barriers,
		oops:          cfg.OopWidth,
		barrierPC:     cfg.ReturnBarrierPC,
		thawThreshold: cfg.ThawThresholdWords,
		maxChunkWords: cfg.MaxChunkWords,
		maxWalkFrames: cfg.MaxWalkFrames,
		disableFast:   cfg.DisableFastPath,
		log:           cfg.Logger,
	}
	if e.barriers == nil {
		e.barriers = NoBarriers{}
	}
	if e.thawThreshold <= 0 {
		e.thawThreshold = DefaultThawThreshold
	}
	if e.maxChunkWords <= 0 {
		e.maxChunkWords = DefaultMaxChunkWords
	}
	if e.maxWalkFrames <= 0 {
		e.maxWalkFrames = DefaultMaxWalkFrames
	}
	if e.log == nil {
		e.log = Logger()
	}
	e.log.Debug("engine resolved",
		zap.String("barriers", e.barriers.Name()),
		zap.String("oops", e.oops.String()),
		zap.Int("thaw_threshold", e.thawThreshold))
	return e, nil
}

// ReturnBarrierPC returns the sentinel return address the engine
// installs below partially thawed segments.
func (e *Engine) ReturnBarrierPC() continuation.Address { return e.barrierPC }
