package engine

import (
	"github.com/wippyai/continuation/chunk"
	"github.com/wippyai/continuation/errors"
)

// ChunkAllocator obtains chunk objects from the managed heap. An
// allocator decides whether the returned chunk requires store barriers:
// chunks whose memory may be visible to a concurrent trace before they
// are populated must be flagged.
type ChunkAllocator interface {
	AllocateChunk(words int) (*chunk.Chunk, error)
}

// TLABAllocator models thread-local allocation with a shared-heap
// fallback. Allocations that fit the remaining local budget are
// barrier-free; once the budget is exhausted the allocator refills it,
// which stands in for a collection pause, and the returned chunk is
// flagged as requiring barriers.
type TLABAllocator struct {
	budget    int
	remaining int

	fastCount int
	slowCount int
}

// NewTLABAllocator creates an allocator with the given local budget in
// words.
func NewTLABAllocator(budgetWords int) *TLABAllocator {
	if budgetWords <= 0 {
		panic(errors.Layout(errors.PhaseAllocate, "tlab budget %d must be positive", budgetWords))
	}
	return &TLABAllocator{budget: budgetWords, remaining: budgetWords}
}

func (a *TLABAllocator) AllocateChunk(words int) (*chunk.Chunk, error) {
	if words <= a.remaining {
		a.remaining -= words
		a.fastCount++
		return chunk.New(words, false), nil
	}
	if words > a.budget {
		// never fits the local path; comes straight from the shared heap
		a.slowCount++
		return chunk.New(words, true), nil
	}
	a.remaining = a.budget - words
	a.slowCount++
	return chunk.New(words, true), nil
}

// Counts returns how many allocations took the local and shared paths.
func (a *TLABAllocator) Counts() (fast, slow int) {
	return a.fastCount, a.slowCount
}

// FixedAllocator fails every allocation past a total word limit. Used
// to exercise allocation-failure handling.
type FixedAllocator struct {
	// LimitWords is the total allocation budget.
	LimitWords int

	used int
}

func (a *FixedAllocator) AllocateChunk(words int) (*chunk.Chunk, error) {
	if a.used+words > a.LimitWords {
		return nil, errors.AllocationFailed(words, nil)
	}
	a.used += words
	return chunk.New(words, false), nil
}

// allocateChunk applies the engine's size cap before consulting the
// allocator. Oversized requests are a stack-overflow condition, not an
// allocation failure.
func (e *Engine) allocateChunk(words int) (*chunk.Chunk, error) {
	if words > e.maxChunkWords {
		return nil, errors.StackOverflow(errors.PhaseAllocate,
			"chunk of %d words exceeds the %d word cap", words, e.maxChunkWords)
	}
	c, err := e.alloc.AllocateChunk(words)
	if err != nil {
		return nil, err
	}
	if c == nil || c.Size() < words {
		return nil, errors.AllocationFailed(words, nil)
	}
	return c, nil
}
