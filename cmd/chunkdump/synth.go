package main

import (
	"fmt"
	"strconv"
	"strings"

	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/engine"
	"github.com/wippyai/continuation/frame"
	"github.com/wippyai/continuation/stack"
)

const (
	synthStackWords = 512
	synthEntrySP    = 400
	synthEntryFP    = 420
	synthEntryPC    = continuation.Address(0xE000)
	synthBarrierPC  = continuation.Address(0xBA00)
)

// frameSpec is one frame parsed from the -frames flag.
type frameSpec struct {
	kind    frame.Kind
	size    int // frame words for compiled, locals for interpreted
	args    int
	monitor bool
}

// parseFrames parses a comma-separated frame list, bottom first.
// Compiled frames are "c<size>:<args>", interpreted "i<locals>:<args>";
// an "m" suffix marks the frame as holding a monitor.
func parseFrames(s string) ([]frameSpec, error) {
	var specs []frameSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		spec := frameSpec{}
		switch part[0] {
		case 'c':
			spec.kind = frame.Compiled
		case 'i':
			spec.kind = frame.Interpreted
		default:
			return nil, fmt.Errorf("frame %q: kind must be c or i", part)
		}
		body := part[1:]
		if strings.HasSuffix(body, "m") {
			spec.monitor = true
			body = body[:len(body)-1]
		}
		sizeStr, argStr, ok := strings.Cut(body, ":")
		if !ok {
			return nil, fmt.Errorf("frame %q: want <size>:<args>", part)
		}
		var err error
		if spec.size, err = strconv.Atoi(sizeStr); err != nil {
			return nil, fmt.Errorf("frame %q: %w", part, err)
		}
		if spec.args, err = strconv.Atoi(argStr); err != nil {
			return nil, fmt.Errorf("frame %q: %w", part, err)
		}
		if spec.kind == frame.Compiled && spec.size < frame.MetadataWords {
			return nil, fmt.Errorf("frame %q: compiled size below %d", part, frame.MetadataWords)
		}
		if spec.kind == frame.Interpreted && spec.size < spec.args {
			return nil, fmt.Errorf("frame %q: locals below args", part)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no frames")
	}
	return specs, nil
}

// scenario is a synthetic suspended carrier built from a frame list.
type scenario struct {
	buf   *stack.Stack
	code  map[continuation.Address]frame.CodeInfo
	car   *engine.Carrier
	names map[continuation.Address]string
	locks engine.PCLockOracle
}

func (s *scenario) Lookup(pc continuation.Address) (frame.CodeInfo, bool) {
	info, ok := s.code[pc]
	return info, ok
}

// buildScenario lays the frames onto a fresh stack the way a suspended
// thread would have left them, callers below callees.
func buildScenario(specs []frameSpec) *scenario {
	s := &scenario{
		buf:   stack.New(synthStackWords, 0),
		code:  make(map[continuation.Address]frame.CodeInfo),
		names: make(map[continuation.Address]string),
		locks: engine.PCLockOracle{},
	}
	for i := synthEntrySP; i < synthStackWords; i++ {
		s.buf.SetWord(i, 0xEEEE0000+continuation.Word(i))
	}
	cont := &engine.Continuation{
		EntrySP: synthEntrySP,
		EntryFP: synthEntryFP,
		EntryPC: synthEntryPC,
	}

	top := synthEntrySP
	topFP := synthEntryFP
	topPC := synthEntryPC
	nextPC := continuation.Address(0x1000)

	for n, spec := range specs {
		pc := nextPC
		nextPC += 0x10
		name := fmt.Sprintf("frame%d", n)

		switch spec.kind {
		case frame.Compiled:
			bodyTop := top - spec.size
			for i := bodyTop; i < top; i++ {
				s.buf.SetWord(i, continuation.Word(pc)<<16|continuation.Word(i))
			}
			for i := 0; i < spec.args; i++ {
				s.buf.SetWord(top+i, 0xA1A10000|continuation.Word(pc)+continuation.Word(i))
			}
			s.buf.SetWord(top-frame.SavedFPOffset, continuation.Word(topFP))
			s.buf.SetWord(top-frame.ReturnPCOffset, topPC)
			s.code[pc] = frame.CodeInfo{
				Name:      name,
				Kind:      frame.Compiled,
				FrameSize: spec.size,
				ArgSize:   spec.args,
			}
			topFP = bodyTop + spec.size - frame.SavedFPOffset
			top = bodyTop

		case frame.Interpreted:
			fp := top + spec.args - spec.size - frame.MetadataWords
			newTop := fp - frame.SlotWords
			for i := newTop; i < top+spec.args; i++ {
				s.buf.SetWord(i, continuation.Word(pc)<<16|continuation.Word(i))
			}
			s.buf.SetWord(fp, continuation.Word(topFP))
			s.buf.SetWord(fp+1, topPC)
			frame.WriteSlot(s.buf, fp, frame.SlotSenderSP, int64(top))
			frame.WriteSlot(s.buf, fp, frame.SlotLastSP, int64(newTop))
			frame.WriteSlot(s.buf, fp, frame.SlotLocals, int64(fp+frame.MetadataWords))
			frame.WriteSlot(s.buf, fp, frame.SlotInitialSP, int64(fp-frame.SlotWords))
			monitors := int64(0)
			if spec.monitor {
				monitors = 1
			}
			frame.WriteSlot(s.buf, fp, frame.SlotMonitors, monitors)
			s.code[pc] = frame.CodeInfo{
				Name:    name,
				Kind:    frame.Interpreted,
				Locals:  spec.size,
				ArgSize: spec.args,
			}
			topFP = fp
			top = newTop
		}
		if spec.kind == frame.Compiled && spec.monitor {
			s.locks[pc] = true
		}
		s.names[pc] = name
		if n == 0 {
			cont.ArgSize = spec.args
		}
		topPC = pc
	}

	sp := top - frame.MetadataWords
	s.buf.SetWord(sp, continuation.Word(topFP))
	s.buf.SetWord(sp+frame.ReturnPCOffset, topPC)
	s.car = &engine.Carrier{Stack: s.buf, SP: sp, Entry: cont}
	return s
}

// newEngine resolves an engine over the scenario's code table.
func (s *scenario) newEngine(slow bool, tlabWords, thresholdWords int) (*engine.Engine, error) {
	return engine.New(engine.Config{
		Code:               s,
		Allocator:          engine.NewTLABAllocator(tlabWords),
		Locks:              s.locks,
		Barriers:           &engine.CardTable{},
		ReturnBarrierPC:    synthBarrierPC,
		ThawThresholdWords: thresholdWords,
		DisableFastPath:    slow,
	})
}
