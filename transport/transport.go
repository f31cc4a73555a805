// Package transport abstracts the two byte streams a device can be
// reached over: a local USB serial link and a remote WebREPL WebSocket.
package transport

import "context"

// Transport is a bidirectional byte stream. Implementations must deliver
// inbound chunks to the callback registered via OnReceive, in arrival
// order, from a single goroutine dedicated to reading. Close is
// idempotent and triggers the OnClose callback exactly once.
type Transport interface {
	// Open establishes the link. Blocks until the underlying connection
	// is usable (port opened, WebSocket upgrade complete); it does not
	// wait for any device-side handshake banner.
	Open(ctx context.Context) error

	// Send writes bytes opaquely. May block briefly. Must not reorder
	// writes relative to each other.
	Send(data []byte) error

	// Close releases the underlying resource. Safe to call more than
	// once; only the first call has effect.
	Close() error

	// OnReceive registers the callback invoked with each inbound chunk.
	// Must be called before Open.
	OnReceive(fn func(chunk []byte))

	// OnClose registers the callback invoked exactly once when the
	// transport is closed, whether by Close() or by a peer/error.
	OnClose(fn func(err error))
}

// Kind distinguishes how a Device was told to connect, for logging and
// for choosing handshake behavior.
type Kind int

const (
	KindSerial Kind = iota
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}
