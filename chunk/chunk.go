package chunk

import (
	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/errors"
	"github.com/wippyai/continuation/frame"
)

// Flags describe the state of a chunk's frozen contents.
type Flags uint8

const (
	// FlagMixedFrames is set when the chunk holds interpreted or stub
	// frames, or a preempted capture. Mixed chunks always thaw slowly.
	FlagMixedFrames Flags = 1 << iota
	// FlagGCMode marks chunks whose fp links and interpreter slots were
	// relativized by a collector pass rather than the freeze engine.
	FlagGCMode
	// FlagHasBitmap is set once the reference bitmap has been populated.
	FlagHasBitmap
)

// Chunk is a heap-allocated capture of a run of stack frames. Frames are
// stored exactly as they would appear on a stack, growing toward index 0,
// with the topmost frame starting at sp. An empty chunk has sp equal to
// its capacity and a zero maxSize.
type Chunk struct {
	words   []continuation.Word
	sp      int
	fp      int
	pc      continuation.Address
	argsize int
	maxSize int
	flags   Flags

	requiresBarriers bool
	parent           *Chunk
	bitmap           *BitSet
}

// New creates an empty chunk with the given word capacity. Chunks whose
// backing memory is visible to a concurrent collector are created with
// requiresBarriers set; stores into them must go through the barrier set.
func New(capacity int, requiresBarriers bool) *Chunk {
	if capacity < frame.MetadataWords {
		panic(errors.Layout(errors.PhaseAllocate, "chunk capacity %d below metadata minimum", capacity))
	}
	return &Chunk{
		words:            make([]continuation.Word, capacity),
		sp:               capacity,
		requiresBarriers: requiresBarriers,
	}
}

// Word returns the word at index i.
func (c *Chunk) Word(i int) continuation.Word { return c.words[i] }

// SetWord stores v at index i.
func (c *Chunk) SetWord(i int, v continuation.Word) { c.words[i] = v }

// Size returns the chunk capacity in words.
func (c *Chunk) Size() int { return len(c.words) }

// SP returns the index of the topmost frame's first word.
func (c *Chunk) SP() int { return c.sp }

// SetSP publishes a new topmost frame position. In a freeze this is the
// last mutation: once sp moves, the frames above it are live.
func (c *Chunk) SetSP(sp int) { c.sp = sp }

// FP returns the topmost frame's frame pointer as a chunk index. Inner
// frames' fp links live in their callee's body; the top frame has no
// callee, so the chunk records its fp directly.
func (c *Chunk) FP() int { return c.fp }

// SetFP records the topmost frame's frame pointer.
func (c *Chunk) SetFP(fp int) { c.fp = fp }

// PC returns the topmost frame's resume pc.
func (c *Chunk) PC() continuation.Address { return c.pc }

// SetPC records the topmost frame's resume pc.
func (c *Chunk) SetPC(pc continuation.Address) { c.pc = pc }

// ArgSize returns the bottom frame's stack argument count. The bottom
// frame's body plus these args end exactly at the chunk capacity.
func (c *Chunk) ArgSize() int { return c.argsize }

// SetArgSize records the bottom frame's stack argument count.
func (c *Chunk) SetArgSize(n int) { c.argsize = n }

// MaxSize returns the stack words a full thaw of the chunk writes: its
// occupied words plus the restored top frame's metadata push. Both
// freeze engines maintain the same quantity.
func (c *Chunk) MaxSize() int { return c.maxSize }

// AddMaxSize adjusts the thaw size by delta words. Freeze passes the
// occupancy it added, thaw a negative delta as frames leave the chunk;
// the recorded size is an upper bound and never goes below zero.
func (c *Chunk) AddMaxSize(delta int) {
	c.maxSize += delta
	if c.maxSize < 0 {
		c.maxSize = 0
	}
}

// IsEmpty reports whether the chunk holds no frames.
func (c *Chunk) IsEmpty() bool { return c.sp == len(c.words) }

// Free returns the words available above the current frames, excluding
// the metadata slots a new top frame would need.
func (c *Chunk) Free() int {
	n := c.sp - frame.MetadataWords
	if n < 0 {
		return 0
	}
	return n
}

// HasMixedFrames reports whether the chunk holds non-compiled frames.
func (c *Chunk) HasMixedFrames() bool { return c.flags&FlagMixedFrames != 0 }

// SetHasMixedFrames marks the chunk as holding non-compiled frames.
func (c *Chunk) SetHasMixedFrames() { c.flags |= FlagMixedFrames }

// IsGCMode reports whether a collector pass owns the chunk's pointer
// encoding.
func (c *Chunk) IsGCMode() bool { return c.flags&FlagGCMode != 0 }

// SetGCMode sets or clears collector ownership of the pointer encoding.
func (c *Chunk) SetGCMode(on bool) {
	if on {
		c.flags |= FlagGCMode
	} else {
		c.flags &^= FlagGCMode
	}
}

// HasBitmap reports whether the reference bitmap is populated.
func (c *Chunk) HasBitmap() bool { return c.flags&FlagHasBitmap != 0 }

// Bitmap returns the reference bitmap, allocating it on first use.
func (c *Chunk) Bitmap() *BitSet {
	if c.bitmap == nil {
		c.bitmap = NewBitSet(len(c.words))
		c.flags |= FlagHasBitmap
	}
	return c.bitmap
}

// RequiresBarriers reports whether stores into this chunk must go
// through the barrier set.
func (c *Chunk) RequiresBarriers() bool { return c.requiresBarriers }

// Parent returns the next chunk in the continuation's tail, or nil.
func (c *Chunk) Parent() *Chunk { return c.parent }

// SetParent links the chunk into a continuation's tail.
func (c *Chunk) SetParent(p *Chunk) { c.parent = p }

// CopyIn copies src into the chunk starting at index dst.
func (c *Chunk) CopyIn(dst int, src []continuation.Word) {
	copy(c.words[dst:dst+len(src)], src)
}

// CopyFrom copies words [from, to) of src into the chunk at dst.
func (c *Chunk) CopyFrom(dst int, src frame.Buffer, from, to int) {
	for i := from; i < to; i++ {
		c.words[dst+i-from] = src.Word(i)
	}
}

// CopyTo copies chunk words [from, to) into dst at index dstFrom.
func (c *Chunk) CopyTo(dst frame.Buffer, dstFrom, from, to int) {
	for i := from; i < to; i++ {
		dst.SetWord(dstFrom+i-from, c.words[i])
	}
}

// Slice returns the chunk words [from, to). The slice aliases the
// chunk's backing array.
func (c *Chunk) Slice(from, to int) []continuation.Word {
	return c.words[from:to]
}

// Verify walks the chunk's frames and checks its structural invariants.
// The code table resolves each frame's pc.
func (c *Chunk) Verify(code frame.CodeTable) error {
	if c.sp < 0 || c.sp > len(c.words) {
		return errors.Layout(errors.PhaseVerify, "chunk sp %d outside [0, %d]", c.sp, len(c.words))
	}
	if c.IsEmpty() {
		if c.maxSize != 0 {
			return errors.Layout(errors.PhaseVerify, "empty chunk with max size %d", c.maxSize)
		}
		return nil
	}
	if c.sp < frame.MetadataWords {
		return errors.Layout(errors.PhaseVerify, "chunk sp %d leaves no metadata room", c.sp)
	}
	frames := 0
	st := NewStream(c, code)
	for st.More() {
		f, info, err := st.Next()
		if err != nil {
			return err
		}
		if f.Kind != frame.Compiled && !c.HasMixedFrames() {
			return errors.Layout(errors.PhaseVerify, "%s frame %q in a compiled-only chunk", f.Kind, info.Name)
		}
		frames++
	}
	if need := len(c.words) - c.sp + frame.MetadataWords; need > c.maxSize {
		return errors.Layout(errors.PhaseVerify, "thaw writes %d words, chunk records %d", need, c.maxSize)
	}
	if frames == 0 {
		return errors.Layout(errors.PhaseVerify, "non-empty chunk walked zero frames")
	}
	return nil
}

// NumFrames walks the chunk and returns its frame count.
func (c *Chunk) NumFrames(code frame.CodeTable) (int, error) {
	n := 0
	st := NewStream(c, code)
	for st.More() {
		if _, _, err := st.Next(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
