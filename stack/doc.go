// Package stack models a carrier thread's physical stack as an owned,
// bounds-checked buffer of 64-bit words.
//
// Index 0 is the lowest address and the stack grows downward, toward
// index 0; pushing decrements the stack pointer. All frame addresses are
// indices into the buffer, so the same frame contents are valid at any
// position once internal references have been relativized.
//
// Out-of-range accesses are layout defects, not recoverable conditions:
// accessors panic rather than return errors. Headroom for new frames is
// checked separately through the overflow guard.
package stack
