// Package engine implements the freeze and thaw machinery: relocating a
// live run of call frames from a carrier's stack into a heap chunk and
// rebuilding executable frames from a chunk back onto a stack.
//
// An Engine is resolved once from a Config (code table, allocator,
// barrier set, reference width, sentinel addresses) and then dispatches
// without re-deciding. Freeze and thaw each have a bulk fast path and a
// frame-by-frame slow path; fast-path ineligibility silently falls back.
// The caller guarantees one goroutine operates on a given carrier and
// continuation at a time; the engine takes no locks over them.
package engine
