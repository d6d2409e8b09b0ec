package stack

import (
	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/errors"
)

// Stack is an owned word buffer standing in for a thread's physical stack.
// The usable region is [limit, len); sp values below limit violate the
// overflow guard.
type Stack struct {
	words []continuation.Word
	limit int
}

// New creates a stack of the given capacity in words with the given
// overflow limit. The stack starts logically empty: callers establish
// frames by writing words and tracking their own sp.
func New(capacity, limit int) *Stack {
	if capacity <= 0 || limit < 0 || limit > capacity {
		panic(errors.Layout(errors.PhaseVerify, "stack capacity %d limit %d", capacity, limit))
	}
	return &Stack{
		words: make([]continuation.Word, capacity),
		limit: limit,
	}
}

// Size returns the stack capacity in words.
func (s *Stack) Size() int { return len(s.words) }

// Limit returns the overflow limit index.
func (s *Stack) Limit() int { return s.limit }

// Word returns the word at index i.
func (s *Stack) Word(i int) continuation.Word {
	s.check(i, 1)
	return s.words[i]
}

// SetWord stores v at index i.
func (s *Stack) SetWord(i int, v continuation.Word) {
	s.check(i, 1)
	s.words[i] = v
}

// Slice returns the words in [lo, hi). The returned slice aliases the
// stack's storage.
func (s *Stack) Slice(lo, hi int) []continuation.Word {
	s.check(lo, hi-lo)
	return s.words[lo:hi]
}

// CopyIn copies src into the stack starting at index lo.
func (s *Stack) CopyIn(lo int, src []continuation.Word) {
	s.check(lo, len(src))
	copy(s.words[lo:], src)
}

// CopyOut copies the words in [lo, lo+len(dst)) into dst.
func (s *Stack) CopyOut(lo int, dst []continuation.Word) {
	s.check(lo, len(dst))
	copy(dst, s.words[lo:])
}

func (s *Stack) check(lo, n int) {
	if n < 0 || lo < 0 || lo+n > len(s.words) {
		panic(errors.OutOfBounds(errors.PhaseWalk, lo, len(s.words)))
	}
}

// HasHeadroom implements the overflow guard over the stack's own limit:
// there is room for n words below sp if sp-n does not cross the limit.
func (s *Stack) HasHeadroom(sp, n int) bool {
	return sp-n >= s.limit
}

// LimitGuard is a standalone overflow guard with a fixed limit, for
// carriers whose guard state lives outside the stack buffer.
type LimitGuard struct {
	Limit int
}

// HasHeadroom reports whether sp-n stays above the limit.
func (g LimitGuard) HasHeadroom(sp, n int) bool {
	return sp-n >= g.Limit
}

var _ continuation.Guard = (*Stack)(nil)
var _ continuation.Guard = LimitGuard{}
