package engine

import (
	"sync"

	"github.com/wippyai/continuation/chunk"
)

// OopWidth selects the managed-reference encoding a chunk bitmap
// describes. Narrow references pack two per word; wide references fill
// a word. The width is resolved once at engine construction.
type OopWidth uint8

const (
	OopWide OopWidth = iota
	OopNarrow
)

func (w OopWidth) String() string {
	if w == OopNarrow {
		return "narrow"
	}
	return "wide"
}

// BarrierSet is the collector store-barrier hook. Stores into a chunk
// that may already be visible to a concurrent trace go through it.
type BarrierSet interface {
	Name() string

	// StoreRange records that chunk words [lo, hi) were written.
	StoreRange(c *chunk.Chunk, lo, hi int)
}

// NoBarriers is the barrier set for collectors that never trace a chunk
// concurrently with the engines.
type NoBarriers struct{}

func (NoBarriers) Name() string { return "none" }

func (NoBarriers) StoreRange(_ *chunk.Chunk, _, _ int) {}

// CardTable is a card-marking barrier set: writes dirty fixed-size card
// spans per chunk, for a collector that rescans dirty cards.
type CardTable struct {
	// Shift is the log2 card size in words. Zero means 9 (512 words).
	Shift uint

	mu    sync.Mutex
	cards map[*chunk.Chunk]*chunk.BitSet
}

func (t *CardTable) Name() string { return "card_table" }

func (t *CardTable) shift() uint {
	if t.Shift == 0 {
		return 9
	}
	return t.Shift
}

func (t *CardTable) StoreRange(c *chunk.Chunk, lo, hi int) {
	if lo >= hi {
		return
	}
	shift := t.shift()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cards == nil {
		t.cards = make(map[*chunk.Chunk]*chunk.BitSet)
	}
	marks := t.cards[c]
	if marks == nil {
		marks = chunk.NewBitSet((c.Size() >> shift) + 1)
		t.cards[c] = marks
	}
	for card := lo >> shift; card <= (hi-1)>>shift; card++ {
		marks.Set(card)
	}
}

// DirtyCards returns how many cards are marked for a chunk.
func (t *CardTable) DirtyCards(c *chunk.Chunk) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if marks := t.cards[c]; marks != nil {
		return marks.Count()
	}
	return 0
}

// Release drops a chunk's card marks once the collector has processed
// them.
func (t *CardTable) Release(c *chunk.Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cards, c)
}
