// Package chunk implements heap-resident stack chunks: captured runs of
// frames stored in freeze order, walkable without the thread that froze
// them. A chunk records the topmost frame position (sp), its resume pc,
// the bottom frame's argument overlap, and the words needed to thaw the
// whole chunk back onto a stack. Chunks link into a parent chain that
// together forms a continuation's frozen tail.
package chunk
