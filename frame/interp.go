package frame

import (
	continuation "github.com/wippyai/continuation"
)

// Interpreted frames keep bookkeeping slots below fp. The pointer slots
// (sender sp, last sp, locals base, initial sp) hold absolute buffer
// indices on a stack and fp-relative offsets inside a chunk.
const (
	SlotSenderSP  = 1 // fp-1: caller's raw stack pointer
	SlotLastSP    = 2 // fp-2: logical expression-stack top (unextended sp)
	SlotLocals    = 3 // fp-3: index of local slot zero
	SlotInitialSP = 4 // fp-4: expression-stack bottom
	SlotMonitors  = 5 // fp-5: held monitor count (not a pointer)

	// SlotWords is the number of interpreter slots below fp.
	SlotWords = 5
)

// pointerSlots are the slots subject to relativization.
var pointerSlots = [...]int{SlotSenderSP, SlotLastSP, SlotLocals, SlotInitialSP}

// SlotIndex returns the buffer index of an interpreter slot.
func SlotIndex(fp, slot int) int { return fp - slot }

// ReadSlot returns the raw slot value as a signed integer.
func ReadSlot(buf Buffer, fp, slot int) int64 {
	return int64(buf.Word(SlotIndex(fp, slot)))
}

// WriteSlot stores a raw slot value.
func WriteSlot(buf Buffer, fp, slot int, v int64) {
	buf.SetWord(SlotIndex(fp, slot), continuation.Word(v))
}

// MonitorCount returns the frame's held-monitor count.
func MonitorCount(buf Buffer, fp int) int {
	return int(ReadSlot(buf, fp, SlotMonitors))
}

// Relativize converts the frame's pointer slots from absolute indices to
// fp-relative offsets. Called by the freeze engine after the frame body
// has been copied into a chunk; fp is the frame's chunk-resident frame
// pointer.
func Relativize(buf Buffer, fp int) {
	for _, slot := range pointerSlots {
		abs := ReadSlot(buf, fp, slot)
		WriteSlot(buf, fp, slot, abs-int64(fp))
	}
}

// Derelativize converts the frame's pointer slots from fp-relative
// offsets back to absolute indices, after the frame body has been copied
// onto a stack at its new position.
func Derelativize(buf Buffer, fp int) {
	for _, slot := range pointerSlots {
		rel := ReadSlot(buf, fp, slot)
		WriteSlot(buf, fp, slot, rel+int64(fp))
	}
}

// RelativizeInto writes fp-relative encodings of a frame's pointer
// slots into dst, for a frame sitting at srcFP in src and dstFP in dst.
// Used when copying an interpreted frame from a stack into a chunk.
func RelativizeInto(src, dst Buffer, srcFP, dstFP int) {
	for _, slot := range pointerSlots {
		abs := ReadSlot(src, srcFP, slot)
		WriteSlot(dst, dstFP, slot, abs-int64(srcFP))
	}
}

// DerelativizeInto writes absolute encodings of a frame's pointer slots
// into dst, for a frame sitting at srcFP in src (relative encoding) and
// dstFP in dst. Used when copying an interpreted frame from a chunk
// back onto a stack.
func DerelativizeInto(src, dst Buffer, srcFP, dstFP int) {
	for _, slot := range pointerSlots {
		rel := ReadSlot(src, srcFP, slot)
		WriteSlot(dst, dstFP, slot, rel+int64(dstFP))
	}
}

// RelativizeLink converts the fp-link word at slotIdx from an absolute
// frame-pointer index to an offset from the slot itself, making the link
// valid at any chunk position.
func RelativizeLink(buf Buffer, slotIdx int) {
	abs := int64(buf.Word(slotIdx))
	buf.SetWord(slotIdx, continuation.Word(abs-int64(slotIdx)))
}

// ResolveLink reads an fp-link word written by RelativizeLink and returns
// the absolute index it designates.
func ResolveLink(buf Buffer, slotIdx int) int {
	rel := int64(buf.Word(slotIdx))
	return slotIdx + int(rel)
}
