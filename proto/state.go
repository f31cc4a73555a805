// Package proto implements the byte-level REPL protocol engine: the
// receive buffer, the mode state machine's control bytes and landmark
// framing, and the pending-request data structures the Script Runner
// advances. It holds no goroutines and no transport references — it is
// driven entirely by the device package's single owning loop.
package proto

// ConnectionState is the device's interaction mode, per spec.md §4.3.
// Transitions form a DAG rooted at Closed; nothing skips a state.
type ConnectionState int

const (
	Closed ConnectionState = iota
	Opening
	WebReplUnauthenticated
	FriendlyRepl
	RawRepl
	RawPasteRepl
	TerminalMode
	Closing
)

func (s ConnectionState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case WebReplUnauthenticated:
		return "webrepl-unauthenticated"
	case FriendlyRepl:
		return "friendly-repl"
	case RawRepl:
		return "raw-repl"
	case RawPasteRepl:
		return "raw-paste-repl"
	case TerminalMode:
		return "terminal-mode"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}
