package stack

import (
	stderrors "errors"
	"testing"

	continuation "github.com/wippyai/continuation"
	"github.com/wippyai/continuation/errors"
)

func TestNewValidation(t *testing.T) {
	for _, tc := range []struct {
		name            string
		capacity, limit int
	}{
		{"zero capacity", 0, 0},
		{"negative limit", 16, -1},
		{"limit past capacity", 16, 17},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("New accepted an invalid shape")
				}
			}()
			New(tc.capacity, tc.limit)
		})
	}
}

func TestWordAccess(t *testing.T) {
	s := New(32, 0)
	if s.Size() != 32 {
		t.Fatalf("Size = %d", s.Size())
	}
	s.SetWord(5, 0xAB)
	if got := s.Word(5); got != 0xAB {
		t.Errorf("Word(5) = %#x", got)
	}

	sl := s.Slice(4, 8)
	if len(sl) != 4 || sl[1] != 0xAB {
		t.Errorf("Slice = %v", sl)
	}
	sl[0] = 0xCD // aliases storage
	if s.Word(4) != 0xCD {
		t.Error("Slice does not alias the stack")
	}
}

func TestCopyInOut(t *testing.T) {
	s := New(16, 0)
	src := []continuation.Word{1, 2, 3}
	s.CopyIn(10, src)

	dst := make([]continuation.Word, 3)
	s.CopyOut(10, dst)
	for i, v := range src {
		if dst[i] != v {
			t.Errorf("dst[%d] = %d, want %d", i, dst[i], v)
		}
	}
}

func TestBoundsPanic(t *testing.T) {
	s := New(8, 0)
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("out-of-bounds access did not panic")
		}
		err, ok := r.(error)
		if !ok || !stderrors.Is(err, errors.OutOfBounds(errors.PhaseWalk, 0, 0)) {
			t.Fatalf("panic value = %v", r)
		}
	}()
	s.Word(8)
}

func TestHasHeadroom(t *testing.T) {
	s := New(64, 8)
	if !s.HasHeadroom(20, 12) {
		t.Error("sp 20 minus 12 lands on the limit, want headroom")
	}
	if s.HasHeadroom(20, 13) {
		t.Error("sp 20 minus 13 crosses the limit")
	}

	g := LimitGuard{Limit: 4}
	if !g.HasHeadroom(10, 6) || g.HasHeadroom(10, 7) {
		t.Error("LimitGuard limit not honored")
	}
}
