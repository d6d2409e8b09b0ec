package engine

import (
	"fmt"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/wippyai/continuation/chunk"
)

// lockedAllocator serializes a TLAB allocator shared across carriers.
type lockedAllocator struct {
	mu sync.Mutex
	a  *TLABAllocator
}

func (l *lockedAllocator) AllocateChunk(words int) (*chunk.Chunk, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.AllocateChunk(words)
}

// Many carriers freezing and thawing through one engine must not
// interfere: chunks are private to their continuation, the allocator
// and the barrier set are the only shared state.
func TestConcurrentFreezeThaw(t *testing.T) {
	const carriers = 8
	const rounds = 40

	// identical push sequences produce identical code tables, so the
	// merged table is consistent across carriers
	shared := testCode{}
	builders := make([]*stackBuilder, carriers)
	for i := range builders {
		b := newStackBuilder(t)
		b.pushCompiled(8, 2)
		b.pushInterpreted(3, 1, 1, 0)
		b.pushCompiled(6, 1)
		builders[i] = b
		for pc, info := range b.code {
			shared[pc] = info
		}
	}

	alloc := &lockedAllocator{a: NewTLABAllocator(1 << 8)}
	e, err := New(Config{
		Code:            shared,
		Allocator:       alloc,
		Barriers:        &CardTable{},
		ReturnBarrierPC: testBarrierPC,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var g errgroup.Group
	for i := 0; i < carriers; i++ {
		b := builders[i]
		g.Go(func() error {
			car := b.finish()
			origSP := car.SP
			want := b.snapshot(car)

			for r := 0; r < rounds; r++ {
				res, err := e.Freeze(car, car.SP)
				if err != nil {
					return fmt.Errorf("round %d freeze: %w", r, err)
				}
				if res != FreezeOKBottom {
					return fmt.Errorf("round %d freeze = %v", r, res)
				}
				b.wipe()

				kind := ThawTop
				for {
					need, err := e.PrepareThaw(car, kind != ThawTop)
					if err != nil {
						return fmt.Errorf("round %d prepare: %w", r, err)
					}
					if need == 0 {
						break
					}
					if _, err := e.Thaw(car, kind); err != nil {
						return fmt.Errorf("round %d thaw: %w", r, err)
					}
					kind = ThawReturnBarrier
				}

				if car.SP != origSP {
					return fmt.Errorf("round %d sp = %d, want %d", r, car.SP, origSP)
				}
				for j := range want {
					if got := b.buf.Word(origSP + j); got != want[j] {
						return fmt.Errorf("round %d stack[%d] = %#x, want %#x",
							r, origSP+j, got, want[j])
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
