package device

import (
	"time"

	"mpyrepl/errs"
	"mpyrepl/proto"
)

// deliver sends outcome to req.Done exactly once.
func deliver(req *proto.PendingRequest, outcome proto.Outcome) {
	if req.Resolved() {
		return
	}
	req.MarkResolved()
	req.Done <- outcome
}

func (d *Device) doRunScript(req *proto.PendingRequest) {
	switch d.state {
	case proto.Closed, proto.Opening, proto.WebReplUnauthenticated, proto.Closing:
		deliver(req, proto.Outcome{Err: errs.ErrNotConnected})
		return
	case proto.TerminalMode:
		if err := d.doExitTerminal(); err != nil {
			deliver(req, proto.Outcome{Err: err})
			return
		}
	}

	if d.active != nil {
		d.queue.Push(req)
		return
	}
	d.active = req
	d.armDeadline(req)
	d.beginExecute(req)
	d.pump()
}

func (d *Device) armDeadline(req *proto.PendingRequest) {
	if req.Opts.Timeout <= 0 {
		d.activeDeadline = nil
		return
	}
	d.activeDeadline = time.After(req.Opts.Timeout)
}

// beginExecute sends as much of the request's source as the current mode
// allows without waiting for any device bytes.
func (d *Device) beginExecute(req *proto.PendingRequest) {
	if d.state == proto.RawPasteRepl {
		req.Phase = proto.PhaseSendPaste
		d.sendPasteChunk(req, d.pasteWindowInit)
		return
	}

	req.Phase = proto.PhaseSendRaw
	if err := d.tr.Send(req.Source); err != nil {
		d.failActive(err)
		return
	}
	if err := d.tr.Send([]byte{proto.CtrlD}); err != nil {
		d.failActive(err)
		return
	}
	req.Phase = proto.PhaseAwaitOK
}

// sendPasteChunk writes up to window bytes of the request's remaining
// source, respecting raw-paste flow control, and advances req's phase
// when the whole source has been handed off.
func (d *Device) sendPasteChunk(req *proto.PendingRequest, window int) {
	remaining := req.Remaining()
	n := window
	if n > len(remaining) {
		n = len(remaining)
	}
	if n > 0 {
		if err := d.tr.Send(remaining[:n]); err != nil {
			d.failActive(err)
			return
		}
		req.Advance(n)
	}
	if req.FullySent() {
		if err := d.tr.Send([]byte{proto.CtrlD}); err != nil {
			d.failActive(err)
			return
		}
		req.Phase = proto.PhaseAwaitOK
	}
}

// pump advances d.active (and any requests that become active after it
// finishes) as far as the currently buffered bytes allow, returning once
// it needs more bytes from the transport.
func (d *Device) pump() {
	for d.active != nil {
		req := d.active
		switch req.Phase {
		case proto.PhaseSendPaste:
			if !d.pumpPasteFlowControl(req) {
				return
			}
		case proto.PhaseAwaitOK:
			if d.state == proto.RawPasteRepl {
				// a flow-control ack for the last chunk can still arrive
				// after the whole submission has been sent
				for d.buf.Len() > 0 && d.buf.Unconsumed()[0] == proto.CtrlA {
					d.buf.Consume(1)
				}
			}
			ok, needMore := proto.TryConsumeOK(d.buf)
			if needMore {
				return
			}
			if !ok {
				d.failActive(errs.ErrInvalidResponse)
				return
			}
			req.Phase = proto.PhaseStdout
			if req.Opts.Resolve == proto.ResolveFirstPrompt && !req.EarlySent() {
				req.MarkEarlySent()
				if !req.Resolved() {
					req.MarkResolved()
					req.Done <- proto.Outcome{Result: &proto.Result{}}
				}
			}
		case proto.PhaseStdout:
			chunk, final := proto.TryConsumeUntilCtrlD(d.buf)
			if len(chunk) > 0 {
				req.Stdout.Write(chunk)
				if req.Opts.StreamingCallback != nil {
					req.Opts.StreamingCallback(chunk)
				}
			}
			if !final {
				return
			}
			req.Phase = proto.PhaseStderr
		case proto.PhaseStderr:
			chunk, final := proto.TryConsumeUntilCtrlD(d.buf)
			if len(chunk) > 0 {
				req.Stderr.Write(chunk)
				if req.Opts.StreamingCallback != nil {
					req.Opts.StreamingCallback(chunk)
				}
			}
			if !final {
				return
			}
			req.Phase = proto.PhaseAwaitPrompt
		case proto.PhaseAwaitPrompt:
			ok, needMore := proto.TryConsumePrompt(d.buf)
			if needMore {
				return
			}
			if !ok {
				d.failActive(errs.ErrInvalidResponse)
				return
			}
			d.finishActive(req)
		default:
			return
		}
	}
}

// pumpPasteFlowControl consumes flow-control bytes (increments and the
// end-of-submission CtrlD) for a request currently sending in raw-paste
// mode. Returns false when it needs more bytes to make progress.
func (d *Device) pumpPasteFlowControl(req *proto.PendingRequest) bool {
	advanced := false
	for d.buf.Len() > 0 {
		b := d.buf.Unconsumed()[0]
		switch b {
		case proto.CtrlA:
			d.buf.Consume(1)
			d.sendPasteChunk(req, d.pasteIncrement)
			advanced = true
			if req.Phase != proto.PhaseSendPaste {
				return true
			}
		case proto.CtrlD:
			d.buf.Consume(1)
			req.Phase = proto.PhaseAwaitOK
			return true
		default:
			d.failActive(errs.ErrInvalidResponse)
			return true
		}
	}
	return advanced
}

func (d *Device) finishActive(req *proto.PendingRequest) {
	req.Phase = proto.PhaseDone
	result := &proto.Result{
		Stdout: req.Stdout.Bytes(),
		Stderr: req.Stderr.Bytes(),
	}
	var outErr error
	if req.Stderr.Len() > 0 {
		serr := &errs.ScriptExecutionError{
			Traceback: sanitizeUTF8(result.Stderr),
			Exception: lastNonEmptyLine(sanitizeUTF8(result.Stderr)),
		}
		result.Exception = serr.Exception
		outErr = serr
	}
	deliver(req, proto.Outcome{Result: result, Err: outErr})

	d.activeDeadline = nil
	d.active = nil
	if next := d.queue.Pop(); next != nil {
		d.active = next
		d.armDeadline(next)
		d.beginExecute(next)
	}
}

// failActive aborts the active request with err, without waiting for any
// further device bytes — used for transport failures and framing
// violations, where the connection itself is no longer trustworthy.
func (d *Device) failActive(err error) {
	if d.active == nil {
		return
	}
	req := d.active
	d.active = nil
	d.activeDeadline = nil
	deliver(req, proto.Outcome{Err: err})
}

// interruptActive implements the Ctrl-C discipline shared by Cancel and
// timeout: the caller is unblocked right away, but the engine keeps
// draining the device's response until the trailing prompt byte, since
// that's the only way to know the next queued request can start.
func (d *Device) interruptActive(err error) {
	if d.active == nil {
		return
	}
	req := d.active
	req.Canceled = true
	if d.tr != nil {
		d.tr.Send([]byte{proto.CtrlC})
	}
	if !req.Resolved() {
		req.MarkResolved()
		req.Done <- proto.Outcome{Err: err}
	}
}

func (d *Device) doCancel(id string) error {
	if d.active != nil && d.active.ID == id {
		d.interruptActive(errs.ErrCanceled)
		return nil
	}
	if req := d.queue.Remove(id); req != nil {
		deliver(req, proto.Outcome{Err: errs.ErrCanceled})
	}
	return nil
}
