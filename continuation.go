package continuation

// Word is the unit of stack and chunk storage. Stack slots, spilled
// registers and managed references all occupy whole words.
type Word = uint64

// Address identifies a code location. Addresses are opaque to this library;
// the code-metadata collaborator maps them to frame descriptions.
type Address = uint64

// NoAddress is the zero Address. An empty chunk has NoAddress as its
// resume pc.
const NoAddress Address = 0

// WordBytes is the size of a Word in bytes.
const WordBytes = 8

// Guard reports whether a carrier's physical stack has headroom for a
// requested number of words below the given stack pointer index.
//
// Implementations are supplied by the thread runtime; the engines consult
// the guard before thawing and treat refusal as a stack-overflow condition.
type Guard interface {
	HasHeadroom(sp int, words int) bool
}
