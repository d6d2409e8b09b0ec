package chunk

import (
	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/errors"
	"github.com/wippyai/continuation/frame"
)

// Stream walks a chunk's frames from the topmost down to the bottom
// frame. Frame pointer links inside a chunk are position independent
// (stored relative to their own slot), so the stream resolves each one
// before handing out an absolute frame view.
type Stream struct {
	c    *Chunk
	code frame.CodeTable

	top  int
	pc   continuation.Address
	fp   int
	more bool
}

// NewStream positions a stream at the chunk's topmost frame.
func NewStream(c *Chunk, code frame.CodeTable) *Stream {
	return &Stream{
		c:    c,
		code: code,
		top:  c.SP(),
		pc:   c.PC(),
		fp:   c.FP(),
		more: !c.IsEmpty(),
	}
}

// More reports whether another frame remains.
func (s *Stream) More() bool { return s.more }

// Next returns the current frame and its code info, then advances to
// its caller. Frames stored in a chunk are compact: each frame's top
// coincides with its unextended top.
func (s *Stream) Next() (frame.Frame, frame.CodeInfo, error) {
	info, ok := s.code.Lookup(s.pc)
	if !ok {
		return frame.Frame{}, frame.CodeInfo{}, errors.CodeMissing(errors.PhaseWalk, s.pc)
	}

	var f frame.Frame
	switch info.Kind {
	case frame.Interpreted:
		f = frame.Frame{
			Kind:          frame.Interpreted,
			PC:            s.pc,
			Top:           s.top,
			UnextendedTop: s.top,
			FP:            s.fp,
			Size:          s.fp + frame.MetadataWords + info.Locals - s.top,
			ArgSize:       info.ArgSize,
			Locals:        info.Locals,
		}
	case frame.Compiled, frame.Stub:
		f = frame.Frame{
			Kind:          info.Kind,
			PC:            s.pc,
			Top:           s.top,
			UnextendedTop: s.top,
			FP:            s.top + info.FrameSize - frame.SavedFPOffset,
			Size:          info.FrameSize,
			ArgSize:       info.ArgSize,
		}
		if info.Kind == frame.Stub {
			f.ArgSize = 0
		}
	default:
		return frame.Frame{}, frame.CodeInfo{}, errors.BadFrame(errors.PhaseWalk, info.Kind.String(), s.pc,
			"code "+info.Name+" has an unwalkable kind")
	}

	if f.Size <= 0 || f.Bottom() > s.c.Size() {
		return frame.Frame{}, frame.CodeInfo{}, errors.Layout(errors.PhaseWalk,
			"frame %q spans [%d, %d) outside chunk of %d words", info.Name, f.Top, f.Bottom(), s.c.Size())
	}

	// the bottom frame's body plus its stack args end at capacity
	if f.Bottom() >= s.c.Size()-s.c.ArgSize() {
		s.more = false
		return f, info, nil
	}

	fpSlot, pcSlot := f.CallerLinkSlots()
	s.fp = frame.ResolveLink(s.c, fpSlot)
	s.pc = s.c.Word(pcSlot)
	s.top = callerTop(s.c, &f)
	return f, info, nil
}

// callerTop returns the caller's raw top below f. An interpreted
// frame's locals overlap its caller, so its recorded sender sp is
// authoritative; a compiled or stub frame's caller starts at its
// bottom.
func callerTop(c *Chunk, f *frame.Frame) int {
	if f.Kind == frame.Interpreted {
		return f.FP + int(frame.ReadSlot(c, f.FP, frame.SlotSenderSP))
	}
	return f.Bottom()
}
