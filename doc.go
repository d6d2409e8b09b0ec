// Package continuation implements the freeze/thaw engine of a
// lightweight-thread facility: suspending an in-progress call stack into a
// heap-resident, relocatable chunk and later resuming it, possibly on a
// different carrier thread.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	continuation/        Root package with the word model and cross-cutting interfaces
//	├── stack/           Owned, bounds-checked word buffer modeling a carrier's physical stack
//	├── frame/           Frame abstraction: interpreted, compiled and stub activations
//	├── chunk/           Heap-resident stack chunks holding frozen frame segments
//	├── engine/          The freeze and thaw engines, pinning checks, GC coordination
//	├── errors/          Structured error types for debugging
//	└── cmd/chunkdump/   CLI for inspecting chunk layouts
//
// # Quick Start
//
// Resolve an engine once at startup and drive it from the scheduler:
//
//	eng, err := engine.New(engine.Config{
//	    Code:            codeTable,
//	    Allocator:       alloc,
//	    ReturnBarrierPC: barrierPC,
//	})
//
//	res, err := eng.Freeze(carrier, sp)
//	if res.OK() {
//	    // ... later, possibly on another carrier:
//	    if bytes, err := eng.PrepareThaw(carrier, false); bytes > 0 {
//	        sp, err := eng.Thaw(carrier, engine.ThawTop)
//	        ...
//	    }
//	}
//
// # Memory Model
//
// All stack and chunk memory is modeled as owned buffers of 64-bit words
// addressed by integer indices; index 0 is the lowest address and stacks
// grow downward, toward index 0. There is no raw pointer arithmetic:
// relativization stores validated offsets instead of addresses, so a frozen
// frame is valid regardless of where it is later thawed.
//
// # Concurrency
//
// Exactly one worker executes freeze or thaw for a given continuation at a
// time; the caller guarantees mutual exclusion. Chunks attached to a
// continuation may be observed concurrently by a collector trace, so the
// engines never leave a chunk in a partially-mutated observable state.
package continuation
