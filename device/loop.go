package device

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"mpyrepl/errs"
	"mpyrepl/proto"
	"mpyrepl/transport"
)

const handshakeTimeout = 10 * time.Second
const pasteProbeTimeout = 500 * time.Millisecond
const quiesceIdle = 300 * time.Millisecond

// loop is the single goroutine that owns every mutable field on Device.
// All command and chunk handling happens here; nothing else ever reads
// or writes d.state, d.buf, d.active or d.queue.
func (d *Device) loop() {
	for {
		var deadline <-chan time.Time
		if d.activeDeadline != nil {
			deadline = d.activeDeadline
		}
		select {
		case cmd := <-d.cmdCh:
			d.handle(cmd)
		case chunk := <-d.chunkCh:
			d.onChunk(chunk)
		case err := <-d.closeCh:
			d.onTransportClosed(err)
			return
		case <-deadline:
			d.onActiveDeadline()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Device) handle(cmd any) {
	switch c := cmd.(type) {
	case cmdConnectSerial:
		c.resp <- d.doConnectSerial(c.path, c.baud)
	case cmdConnectNetwork:
		c.resp <- d.doConnectNetwork(c.host, c.password)
	case cmdConnectTransport:
		d.kind = c.kind
		c.resp <- d.bringUp(c.tr, c.password)
	case cmdDisconnect:
		c.resp <- d.doDisconnect()
	case cmdReset:
		c.resp <- d.doReset(c.hard)
	case cmdRunScript:
		d.doRunScript(c.req)
	case cmdCancel:
		c.resp <- d.doCancel(c.id)
	case cmdEnterTerminal:
		c.resp <- d.doEnterTerminal()
	case cmdExitTerminal:
		c.resp <- d.doExitTerminal()
	case cmdSendData:
		c.resp <- d.doSendData(c.data)
	case cmdSnapshot:
		c.resp <- snapshot{state: d.state, queueLength: d.queue.Len()}
	}
}

// ---- connection lifecycle ----

func (d *Device) doConnectSerial(path string, baud int) error {
	if d.state != proto.Closed {
		return errs.ErrAlreadyConnected
	}
	tr := transport.NewSerial(path, baud)
	d.kind = transport.KindSerial
	return d.bringUp(tr, "")
}

func (d *Device) doConnectNetwork(host, password string) error {
	if d.state != proto.Closed {
		return errs.ErrAlreadyConnected
	}
	tr := transport.NewWebSocket(host)
	d.kind = transport.KindNetwork
	return d.bringUp(tr, password)
}

// bringUp wires the transport's callbacks to the loop's channels, opens
// it, and runs the handshake up through RawRepl/RawPasteRepl. This whole
// sequence blocks the loop goroutine, which is safe: nothing else can be
// meaningfully in flight on a connection that isn't open yet, and other
// callers' commands simply queue on cmdCh until it returns.
func (d *Device) bringUp(tr transport.Transport, password string) error {
	d.state = proto.Opening
	d.buf = proto.NewBuffer()

	tr.OnReceive(func(chunk []byte) {
		select {
		case d.chunkCh <- chunk:
		case <-d.stopCh:
		}
	})
	tr.OnClose(func(err error) {
		select {
		case d.closeCh <- err:
		case <-d.stopCh:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	if err := tr.Open(ctx); err != nil {
		d.state = proto.Closed
		return err
	}
	d.tr = tr

	if d.kind == transport.KindNetwork {
		d.state = proto.WebReplUnauthenticated
		if err := d.webreplLogin(password); err != nil {
			d.tr.Close()
			d.tr = nil
			d.state = proto.Closed
			return err
		}
	}
	d.state = proto.FriendlyRepl

	if err := d.enterRawRepl(); err != nil {
		d.tr.Close()
		d.tr = nil
		d.state = proto.Closed
		return err
	}
	d.probeRawPaste()
	return nil
}

// waitForSubstring blocks the loop on chunkCh (and nothing else) until
// the unconsumed buffer contains sub, consuming through it. This is the
// "small wait-for-bytes primitive" the connection handshake is built on.
func (d *Device) waitForSubstring(sub []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.After(timeout)
	for {
		if idx := d.buf.Index(sub); idx != -1 {
			matched := append([]byte(nil), d.buf.Unconsumed()[:idx+len(sub)]...)
			d.buf.Consume(idx + len(sub))
			return matched, nil
		}
		select {
		case chunk := <-d.chunkCh:
			d.buf.Write(chunk)
		case err := <-d.closeCh:
			if err == nil {
				err = errs.ErrConnectionLost
			}
			return nil, err
		case <-deadline:
			return nil, errs.ErrHandshakeFailed
		}
	}
}

// waitIdle blocks until no new bytes have arrived for idle, or until
// overall times out. Used to let the device's response to a Ctrl-C
// interrupt settle before sending the next byte.
func (d *Device) waitIdle(idle, overall time.Duration) {
	overallDeadline := time.After(overall)
	for {
		idleTimer := time.After(idle)
		select {
		case chunk := <-d.chunkCh:
			d.buf.Write(chunk)
		case <-idleTimer:
			return
		case <-overallDeadline:
			return
		case <-d.closeCh:
			return
		}
	}
}

func (d *Device) webreplLogin(password string) error {
	if _, err := d.waitForSubstring([]byte("Password:"), handshakeTimeout); err != nil {
		return err
	}
	if err := d.tr.Send([]byte(password + "\r")); err != nil {
		return err
	}

	splitter := &proto.LineSplitter{}
	deadline := time.After(handshakeTimeout)
	for {
		select {
		case chunk := <-d.chunkCh:
			for _, line := range splitter.Feed(chunk) {
				switch {
				case bytes.Contains([]byte(line), []byte("WebREPL connected")):
					return nil
				case bytes.Contains([]byte(line), []byte("Access denied")):
					return errs.ErrAuthFailed
				}
			}
		case err := <-d.closeCh:
			if err == nil {
				err = errs.ErrConnectionLost
			}
			return err
		case <-deadline:
			return errs.ErrHandshakeFailed
		}
	}
}

// enterRawRepl runs spec.md §4.3's FriendlyRepl -> RawRepl transition:
// interrupt twice, let the prompt settle, then send CtrlA and wait for
// the raw REPL banner.
func (d *Device) enterRawRepl() error {
	if err := d.tr.Send([]byte{proto.CtrlC}); err != nil {
		return err
	}
	if err := d.tr.Send([]byte{proto.CtrlC}); err != nil {
		return err
	}
	d.waitIdle(quiesceIdle, handshakeTimeout)
	d.buf = proto.NewBuffer()

	if err := d.tr.Send([]byte{proto.CtrlA}); err != nil {
		return err
	}
	if _, err := d.waitForSubstring(proto.RawReplBanner, handshakeTimeout); err != nil {
		return err
	}
	d.state = proto.RawRepl
	return nil
}

// probeRawPaste attempts the RawRepl -> RawPasteRepl fast path. Failure
// to negotiate it is not an error — the connection just stays in plain
// RawRepl and every RunScript uses the non-flow-controlled fallback.
func (d *Device) probeRawPaste() {
	if err := d.tr.Send(proto.RawPasteProbe); err != nil {
		return
	}
	deadline := time.After(pasteProbeTimeout)
	for {
		if d.buf.Len() >= 2 {
			u := d.buf.Unconsumed()
			if bytes.Equal(u[:2], proto.PasteNak) {
				d.buf.Consume(2)
				return
			}
			if bytes.Equal(u[:2], proto.PasteAck) {
				d.buf.Consume(2)
				break
			}
			return // unrecognized response; stay in RawRepl
		}
		select {
		case chunk := <-d.chunkCh:
			d.buf.Write(chunk)
		case <-d.closeCh:
			return
		case <-deadline:
			return
		}
	}

	// 2-byte little-endian window size, then a 1-byte increment unit.
	for d.buf.Len() < 3 {
		select {
		case chunk := <-d.chunkCh:
			d.buf.Write(chunk)
		case <-d.closeCh:
			return
		case <-time.After(pasteProbeTimeout):
			return
		}
	}
	u := d.buf.Unconsumed()
	window := int(u[0]) | int(u[1])<<8
	increment := int(u[2])
	d.buf.Consume(3)
	if window <= 0 {
		return
	}
	if increment <= 0 {
		increment = 1
	}
	d.pasteWindowInit = window
	d.pasteIncrement = increment
	d.state = proto.RawPasteRepl
}

func (d *Device) doDisconnect() error {
	if d.state == proto.Closed {
		return nil
	}
	if d.tr != nil {
		d.tr.Send([]byte{proto.CtrlB})
		d.tr.Close()
	}
	d.teardown(errs.ErrConnectionLost)
	return nil
}

func (d *Device) doReset(hard bool) error {
	if d.state == proto.Closed {
		return errs.ErrNotConnected
	}
	if hard {
		s, ok := d.tr.(*transport.Serial)
		if !ok {
			return fmt.Errorf("device: hard reset requires a serial connection")
		}
		// tarm/serial exposes no DTR/RTS toggle; closing the port drops
		// DTR on most USB-serial adapters, which is enough to reset boards
		// wired with auto-reset circuitry (esp8266/esp32 dev boards,
		// Pyboard). The port is not reopened and RTS is not driven.
		s.Close()
	} else if d.tr != nil {
		if d.state == proto.FriendlyRepl || d.state == proto.TerminalMode {
			d.tr.Send([]byte{proto.CtrlD})
		} else {
			d.tr.Send([]byte{proto.CtrlB, proto.CtrlD})
		}
		d.tr.Close()
	}
	d.teardown(errs.ErrConnectionLost)
	return nil
}

func (d *Device) teardown(failReason error) {
	d.failActive(failReason)
	for {
		req := d.queue.Pop()
		if req == nil {
			break
		}
		deliver(req, proto.Outcome{Err: failReason})
	}
	d.state = proto.Closed
	d.tr = nil
	d.activeDeadline = nil
}

func (d *Device) onTransportClosed(err error) {
	if err == nil {
		err = errs.ErrConnectionLost
	} else {
		err = fmt.Errorf("%w: %v", errs.ErrConnectionLost, err)
	}
	d.teardown(err)
	if d.OnClose != nil {
		d.OnClose(err)
	}
}

// ---- terminal mode ----

func (d *Device) doEnterTerminal() error {
	if d.state == proto.Closed {
		return errs.ErrNotConnected
	}
	if d.state == proto.TerminalMode {
		return nil
	}
	if d.active != nil {
		d.failActive(errs.ErrConnectionLost)
	}
	for {
		req := d.queue.Pop()
		if req == nil {
			break
		}
		deliver(req, proto.Outcome{Err: errs.ErrConnectionLost})
	}
	d.priorRawState = d.state
	if err := d.tr.Send([]byte{proto.CtrlA}); err != nil {
		// already effectively in a raw variant; terminal just observes
		// whatever the device sends next.
	}
	d.state = proto.TerminalMode
	return nil
}

func (d *Device) doExitTerminal() error {
	if d.state != proto.TerminalMode {
		return nil
	}
	d.tr.Send([]byte{proto.CtrlB})
	d.state = proto.FriendlyRepl
	if err := d.enterRawRepl(); err != nil {
		return err
	}
	d.probeRawPaste()
	return nil
}

func (d *Device) doSendData(data []byte) error {
	if d.state != proto.TerminalMode {
		return fmt.Errorf("device: SendData requires terminal mode")
	}
	return d.tr.Send(data)
}

// ---- inbound byte routing ----

func (d *Device) onChunk(chunk []byte) {
	if d.state == proto.TerminalMode {
		if d.OnTerminalData != nil {
			d.OnTerminalData(chunk)
		}
		return
	}
	d.buf.Write(chunk)
	d.pump()
}

func (d *Device) onActiveDeadline() {
	if d.active == nil {
		d.activeDeadline = nil
		return
	}
	d.interruptActive(errs.ErrTimeout)
	d.activeDeadline = nil
}
