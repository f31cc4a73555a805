package proto

import "bytes"

// ExecOK is the landmark the device prints immediately after it accepts
// a raw-REPL submission and begins executing it.
var ExecOK = []byte("OK")

// TryConsumeOK checks whether the unconsumed buffer begins with "OK". If
// the bytes present so far already contradict it, ok and needMore are
// both false — the caller should treat this as a framing violation.
func TryConsumeOK(buf *Buffer) (ok, needMore bool) {
	u := buf.Unconsumed()
	switch {
	case len(u) >= 2:
		if bytes.Equal(u[:2], ExecOK) {
			buf.Consume(2)
			return true, false
		}
		return false, false
	case len(u) == 1:
		if u[0] != 'O' {
			return false, false
		}
		return false, true
	default:
		return false, true
	}
}

// TryConsumeUntilCtrlD scans for a 0x04 byte. If found, it consumes the
// bytes up to and including it and returns the bytes before it with
// final=true. Otherwise it consumes and returns everything currently
// buffered as a non-final chunk, so stdout/stderr can stream
// incrementally as they arrive.
func TryConsumeUntilCtrlD(buf *Buffer) (chunk []byte, final bool) {
	u := buf.Unconsumed()
	idx := bytes.IndexByte(u, CtrlD)
	if idx == -1 {
		if len(u) == 0 {
			return nil, false
		}
		chunk = append([]byte(nil), u...)
		buf.Consume(len(u))
		return chunk, false
	}
	chunk = append([]byte(nil), u[:idx]...)
	buf.Consume(idx + 1)
	return chunk, true
}

// TryConsumePrompt checks for the trailing '>' prompt byte that closes a
// raw-REPL response.
func TryConsumePrompt(buf *Buffer) (ok, needMore bool) {
	u := buf.Unconsumed()
	if len(u) == 0 {
		return false, true
	}
	if u[0] == '>' {
		buf.Consume(1)
		return true, false
	}
	return false, false
}
