package frame

import (
	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/errors"
)

// Build constructs the frame view for code described by info, whose top
// is at index top of an absolute-indexed buffer (a physical stack).
func Build(buf Buffer, top int, pc continuation.Address, fp int, info CodeInfo) Frame {
	switch info.Kind {
	case Interpreted:
		unextended := top
		if last := int(ReadSlot(buf, fp, SlotLastSP)); last != 0 && last < top {
			// the expression stack extends below the raw stack pointer
			unextended = last
		}
		return Frame{
			Kind:          Interpreted,
			PC:            pc,
			Top:           top,
			UnextendedTop: unextended,
			FP:            fp,
			Size:          fp + MetadataWords + info.Locals - unextended,
			ArgSize:       info.ArgSize,
			Locals:        info.Locals,
		}
	case Compiled:
		return Frame{
			Kind:          Compiled,
			PC:            pc,
			Top:           top,
			UnextendedTop: top,
			FP:            top + info.FrameSize - SavedFPOffset,
			Size:          info.FrameSize,
			ArgSize:       info.ArgSize,
		}
	case Stub:
		return Frame{
			Kind:          Stub,
			PC:            pc,
			Top:           top,
			UnextendedTop: top,
			FP:            top + info.FrameSize - SavedFPOffset,
			Size:          info.FrameSize,
		}
	}
	panic(errors.Layout(errors.PhaseWalk, "code info with unknown kind %d", info.Kind))
}

// SenderLink locates the caller of f on an absolute-indexed buffer,
// returning the caller's raw top, resume pc and frame pointer. The caller
// is not classified; the walker looks its pc up and calls Build.
func SenderLink(buf Buffer, f *Frame) (top int, pc continuation.Address, fp int) {
	if f.Kind == Interpreted {
		top = int(ReadSlot(buf, f.FP, SlotSenderSP))
		fp = int(buf.Word(f.FP))
		pc = buf.Word(f.FP + 1)
		return top, pc, fp
	}
	top = f.Bottom()
	fp = int(buf.Word(top - SavedFPOffset))
	pc = buf.Word(top - ReturnPCOffset)
	return top, pc, fp
}
