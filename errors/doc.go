// Package errors provides structured error types for the freeze/thaw
// engine.
//
// Errors carry a Phase (which engine operation was running) and a Kind
// (what went wrong), so callers can match on the condition without parsing
// messages. Normal negative outcomes of a freeze attempt, such as a pinned
// stack, are reported as result codes by the engine package and are not
// errors; this package covers the genuinely failed operations: stack
// overflow, allocation failure and internal layout defects.
package errors
