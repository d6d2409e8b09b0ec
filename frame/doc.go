// Package frame provides the polymorphic view over a single call-stack
// activation used by the freeze and thaw engines.
//
// A frame is one of three kinds: Interpreted, Compiled or Stub. The kinds
// form a closed set; per-kind behavior (copy ranges, bottom computation,
// sender links, lock queries) is dispatched through a fixed operations
// table rather than open-ended interfaces, so the engines pay one indexed
// load per dispatch.
//
// # Layout contract
//
// Stacks grow downward. A frame whose top is index t occupies [t, t+size).
// The two words below a frame's top, [t-2] and [t-1], hold the frame's
// saved frame-pointer link and its resume pc; they are pushed by the
// frame's callee and are copied together with the frame ("metadata words").
// For compiled and stub frames the highest two words of the body are the
// caller's link and resume pc. Interpreted frames keep the caller linkage
// at [fp] and [fp+1] instead, with the frame's local slots directly above
// at [fp+2, fp+2+locals).
//
// Interpreted frames carry internal pointer slots below fp (sender sp,
// last sp, locals base, initial sp) plus a monitor counter. The pointer
// slots hold absolute buffer indices while the frame is live on a stack
// and fp-relative offsets while it is frozen in a chunk; Relativize and
// Derelativize convert between the two.
package frame
