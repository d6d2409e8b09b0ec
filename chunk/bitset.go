package chunk

import "math/bits"

// BitSet marks which words of a chunk hold references, one bit per word.
// Fixed size; index 0 corresponds to chunk word 0.
type BitSet struct {
	bits []uint64
}

// NewBitSet creates a BitSet covering n words, all clear.
func NewBitSet(n int) *BitSet {
	return &BitSet{bits: make([]uint64, (n+63)/64)}
}

// Set marks word i as a reference.
func (b *BitSet) Set(i int) {
	b.bits[i/64] |= 1 << (i % 64)
}

// Clear unmarks word i.
func (b *BitSet) Clear(i int) {
	b.bits[i/64] &^= 1 << (i % 64)
}

// Has reports whether word i is marked.
func (b *BitSet) Has(i int) bool {
	word := i / 64
	if word >= len(b.bits) {
		return false
	}
	return b.bits[word]&(1<<(i%64)) != 0
}

// ClearRange unmarks words [from, to).
func (b *BitSet) ClearRange(from, to int) {
	for i := from; i < to; i++ {
		b.Clear(i)
	}
}

// Reset clears all marks.
func (b *BitSet) Reset() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}

// Count returns the number of marked words.
func (b *BitSet) Count() int {
	count := 0
	for _, word := range b.bits {
		count += bits.OnesCount64(word)
	}
	return count
}
