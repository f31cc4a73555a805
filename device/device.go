// Package device is the host-side client for a single MicroPython board:
// connection lifecycle, raw-REPL script execution, terminal pass-through
// and the filesystem operations built on top of them.
//
// A Device owns one goroutine (loop) that holds all of its mutable state.
// Every public method sends a command over a channel and waits for the
// loop to answer; nothing outside loop ever touches the connection state,
// the receive buffer or the request queue directly. This replaces the
// single-threaded, promise-chained engine the protocol was first
// prototyped against with an explicit state machine plus a small
// wait-for-bytes primitive — the shape Go's goroutines and channels
// are built for.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mpyrepl/errs"
	"mpyrepl/proto"
	"mpyrepl/transport"
)

// ScriptResponse is the decoded result of a RunScript call.
type ScriptResponse struct {
	Stdout    string
	Stderr    string
	Exception string
}

// Device is a client for one MicroPython board, reachable over either a
// serial port or a WebREPL WebSocket. The zero value is not usable; build
// one with New.
type Device struct {
	log *slog.Logger

	cmdCh   chan any
	chunkCh chan []byte
	closeCh chan error
	stopCh  chan struct{}

	// OnTerminalData is invoked with raw bytes from the device while in
	// TerminalMode. OnClose is invoked once the connection ends for any
	// reason. Set these before calling EnterTerminal / Connect*.
	OnTerminalData func([]byte)
	OnClose        func(error)

	// Engine state. Touched only inside loop().
	tr    transport.Transport
	kind  transport.Kind
	state proto.ConnectionState
	buf   *proto.Buffer

	active *proto.PendingRequest
	queue  *proto.RequestQueue

	pasteWindowInit int
	pasteIncrement  int
	priorRawState   proto.ConnectionState

	activeDeadline <-chan time.Time
}

// New constructs a Device and starts its owning goroutine. logger may be
// nil, in which case slog.Default() is used.
func New(logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Device{
		log:     logger,
		cmdCh:   make(chan any, 64),
		chunkCh: make(chan []byte, 256),
		closeCh: make(chan error, 1),
		stopCh:  make(chan struct{}),
		state:   proto.Closed,
		buf:     proto.NewBuffer(),
		queue:   proto.NewRequestQueue(),
	}
	go d.loop()
	return d
}

// ConnectSerial opens a local USB serial port and runs the REPL state
// machine up through RawRepl (or RawPasteRepl, if the board supports it).
// baud of 0 uses transport.DefaultBaud.
func (d *Device) ConnectSerial(ctx context.Context, path string, baud int) error {
	resp := make(chan error, 1)
	d.cmdCh <- cmdConnectSerial{path: path, baud: baud, resp: resp}
	return d.wait(ctx, resp)
}

// ConnectNetwork dials a WebREPL WebSocket, completes the password
// handshake, and runs the state machine up through RawRepl (or
// RawPasteRepl).
func (d *Device) ConnectNetwork(ctx context.Context, host, password string) error {
	resp := make(chan error, 1)
	d.cmdCh <- cmdConnectNetwork{host: host, password: password, resp: resp}
	return d.wait(ctx, resp)
}

// Disconnect returns the device to its friendly REPL (best effort) and
// closes the transport. Any pending or queued RunScript calls fail with
// errs.ErrConnectionLost.
func (d *Device) Disconnect(ctx context.Context) error {
	resp := make(chan error, 1)
	d.cmdCh <- cmdDisconnect{resp: resp}
	return d.wait(ctx, resp)
}

// Reset reboots the board. A soft reset sends CtrlD from the friendly
// REPL; a hard reset closes the serial port, which drops its DTR line
// (DTR is not re-asserted and RTS is not driven; WebREPL connections
// cannot hard-reset and return an error). Either way the
// connection transitions to Closed without waiting for the device to
// come back — callers reconnect with a fresh Device.
func (d *Device) Reset(ctx context.Context, hard bool) error {
	resp := make(chan error, 1)
	d.cmdCh <- cmdReset{hard: hard, resp: resp}
	return d.wait(ctx, resp)
}

// connectTransport drives the handshake against a caller-supplied
// transport, bypassing ConnectSerial/ConnectNetwork's own construction.
// Unexported: used by this package's tests; code outside package device
// cannot call it.
func (d *Device) connectTransport(ctx context.Context, tr transport.Transport, kind transport.Kind, password string) error {
	resp := make(chan error, 1)
	d.cmdCh <- cmdConnectTransport{tr: tr, kind: kind, password: password, resp: resp}
	return d.wait(ctx, resp)
}

// IsConnected reports whether the device is past the handshake and in
// RawRepl, RawPasteRepl or TerminalMode.
func (d *Device) IsConnected() bool {
	s := d.snapshot()
	switch s.state {
	case proto.RawRepl, proto.RawPasteRepl, proto.TerminalMode:
		return true
	default:
		return false
	}
}

// IsTerminalMode reports whether the device is currently passing bytes
// through to OnTerminalData rather than running scripts.
func (d *Device) IsTerminalMode() bool {
	return d.snapshot().state == proto.TerminalMode
}

// PendingCount reports the number of RunScript calls queued behind the
// one currently executing.
func (d *Device) PendingCount() int {
	return d.snapshot().queueLength
}

func (d *Device) snapshot() snapshot {
	resp := make(chan snapshot, 1)
	select {
	case d.cmdCh <- cmdSnapshot{resp: resp}:
	case <-d.stopCh:
		return snapshot{state: proto.Closed}
	}
	select {
	case s := <-resp:
		return s
	case <-d.stopCh:
		return snapshot{state: proto.Closed}
	}
}

// RunScript submits source for execution in the board's raw REPL. Calls
// are serialized in FIFO order behind any already in flight or queued.
//
// The returned error is non-nil both for transport-level failures
// (context canceled, timeout, disconnect) and for *errs.ScriptExecutionError
// when the script itself raised — in the latter case resp is still fully
// populated, so callers that only care about stdout can ignore err.
func (d *Device) RunScript(ctx context.Context, source string, opts proto.RunOptions) (*ScriptResponse, error) {
	req := proto.NewPendingRequest(uuid.NewString(), source, opts)
	d.cmdCh <- cmdRunScript{req: req}

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		t := time.NewTimer(opts.Timeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case outcome := <-req.Done:
		return toResponse(outcome)
	case <-ctx.Done():
		d.Cancel(req.ID)
		outcome := <-req.Done
		if outcome.Err == nil {
			outcome.Err = ctx.Err()
		}
		return toResponse(outcome)
	case <-deadline:
		d.Cancel(req.ID)
		outcome := <-req.Done
		outcome.Err = errs.ErrTimeout
		return toResponse(outcome)
	}
}

func toResponse(o proto.Outcome) (*ScriptResponse, error) {
	if o.Result == nil {
		return nil, o.Err
	}
	return &ScriptResponse{
		Stdout:    sanitizeUTF8(o.Result.Stdout),
		Stderr:    sanitizeUTF8(o.Result.Stderr),
		Exception: o.Result.Exception,
	}, o.Err
}

// Cancel interrupts the RunScript call with the given request id, if it
// is still active or queued. A canceled active request keeps draining
// bytes internally until the device's trailing prompt is consumed, per
// the raw-REPL framing invariant, but the caller is unblocked immediately.
func (d *Device) Cancel(id string) error {
	resp := make(chan error, 1)
	d.cmdCh <- cmdCancel{id: id, resp: resp}
	return d.wait(context.Background(), resp)
}

// EnterTerminal switches the connection to raw byte pass-through: inbound
// device bytes go to OnTerminalData and SendData writes go straight to
// the transport. Any active RunScript is failed with errs.ErrConnectionLost.
func (d *Device) EnterTerminal(ctx context.Context) error {
	resp := make(chan error, 1)
	d.cmdCh <- cmdEnterTerminal{resp: resp}
	return d.wait(ctx, resp)
}

// ExitTerminal returns from TerminalMode to RawRepl/RawPasteRepl, ready
// for RunScript again.
func (d *Device) ExitTerminal(ctx context.Context) error {
	resp := make(chan error, 1)
	d.cmdCh <- cmdExitTerminal{resp: resp}
	return d.wait(ctx, resp)
}

// SendData writes raw bytes to the device. Valid only in TerminalMode.
func (d *Device) SendData(data []byte) error {
	resp := make(chan error, 1)
	d.cmdCh <- cmdSendData{data: data, resp: resp}
	return d.wait(context.Background(), resp)
}

func (d *Device) wait(ctx context.Context, resp chan error) error {
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopCh:
		return fmt.Errorf("device: closed")
	}
}

// Close stops the owning goroutine without attempting any device-side
// handshake. Intended for process shutdown; prefer Disconnect otherwise.
func (d *Device) Close() {
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
}
