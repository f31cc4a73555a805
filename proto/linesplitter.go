package proto

import "bytes"

// LineSplitter incrementally splits inbound bytes into newline-terminated
// lines. It is used only for the WebREPL login banner, the one place
// spec.md's component design asks for line events rather than raw bytes
// or landmark framing.
type LineSplitter struct {
	partial []byte
}

// Feed appends chunk and returns any newly completed lines, with a
// trailing \r (if present) stripped.
func (l *LineSplitter) Feed(chunk []byte) []string {
	l.partial = append(l.partial, chunk...)
	var lines []string
	for {
		idx := bytes.IndexByte(l.partial, '\n')
		if idx == -1 {
			break
		}
		line := bytes.TrimRight(l.partial[:idx], "\r")
		lines = append(lines, string(line))
		l.partial = l.partial[idx+1:]
	}
	return lines
}
