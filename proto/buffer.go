package proto

import "bytes"

// Buffer is an append-only inbound byte accumulator with a consumed
// watermark (spec.md §4.2). It is not safe for concurrent use — the
// device package's single owning goroutine is the only caller.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Write appends chunk to the buffer.
func (b *Buffer) Write(chunk []byte) {
	b.data = append(b.data, chunk...)
	b.compact()
}

// compact drops already-consumed bytes once they dominate the backing
// array, so a long-lived connection doesn't retain its whole transcript.
func (b *Buffer) compact() {
	if b.pos > 4096 && b.pos*2 > len(b.data) {
		rest := append([]byte(nil), b.data[b.pos:]...)
		b.data = rest
		b.pos = 0
	}
}

// Unconsumed returns the bytes not yet consumed. The slice is only valid
// until the next Write or Consume call.
func (b *Buffer) Unconsumed() []byte {
	return b.data[b.pos:]
}

// Len reports the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.pos
}

// Consume advances the watermark by n bytes, clamped to what's available.
func (b *Buffer) Consume(n int) {
	b.pos += n
	if b.pos > len(b.data) {
		b.pos = len(b.data)
	}
}

// IndexByte returns the index, relative to Unconsumed, of the first
// occurrence of c, or -1.
func (b *Buffer) IndexByte(c byte) int {
	return bytes.IndexByte(b.Unconsumed(), c)
}

// Index returns the index, relative to Unconsumed, of the first
// occurrence of sub, or -1.
func (b *Buffer) Index(sub []byte) int {
	return bytes.Index(b.Unconsumed(), sub)
}

// HasPrefix reports whether the unconsumed bytes begin with prefix.
func (b *Buffer) HasPrefix(prefix []byte) bool {
	return bytes.HasPrefix(b.Unconsumed(), prefix)
}
