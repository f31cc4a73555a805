package device

import (
	"mpyrepl/proto"
	"mpyrepl/transport"
)

type cmdConnectSerial struct {
	path string
	baud int
	resp chan error
}

type cmdConnectNetwork struct {
	host     string
	password string
	resp     chan error
}

// cmdConnectTransport lets this package's tests drive the same
// handshake/state machine against a transport.Transport they
// constructed themselves.
type cmdConnectTransport struct {
	tr       transport.Transport
	kind     transport.Kind
	password string
	resp     chan error
}

type cmdDisconnect struct {
	resp chan error
}

type cmdReset struct {
	hard bool
	resp chan error
}

type cmdRunScript struct {
	req *proto.PendingRequest
}

type cmdCancel struct {
	id   string
	resp chan error
}

type cmdEnterTerminal struct {
	resp chan error
}

type cmdExitTerminal struct {
	resp chan error
}

type cmdSendData struct {
	data []byte
	resp chan error
}

type cmdSnapshot struct {
	resp chan snapshot
}

// snapshot is a point-in-time read of engine state for IsConnected /
// IsTerminalMode, round-tripped through the loop so callers never read
// Device fields outside the owning goroutine.
type snapshot struct {
	state       proto.ConnectionState
	queueLength int
}
