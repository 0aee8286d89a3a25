// Package bufpool provides pooled, growable byte buffers for assembling
// section payloads during save, avoiding one allocation per section.
package bufpool

import "sync"

const (
	defaultSize  = 4 * 1024   // most sections are a few hundred bytes to a few KB
	maxThreshold = 256 * 1024 // discard outsized buffers instead of pooling them
)

// Buffer is a reusable, growable byte slice.
type Buffer struct {
	B []byte
}

func newBuffer() *Buffer {
	return &Buffer{B: make([]byte, 0, defaultSize)}
}

// Reset empties the buffer while retaining its capacity.
func (b *Buffer) Reset() { b.B = b.B[:0] }

// Grow ensures the buffer can append n more bytes without reallocating.
func (b *Buffer) Grow(n int) {
	if cap(b.B)-len(b.B) >= n {
		return
	}

	grown := make([]byte, len(b.B), len(b.B)+n+defaultSize)
	copy(grown, b.B)
	b.B = grown
}

// Write appends data to the buffer, growing it as needed.
func (b *Buffer) Write(data []byte) {
	b.Grow(len(data))
	b.B = append(b.B, data...)
}

// Pad appends n fill bytes to the buffer.
func (b *Buffer) Pad(n int, fill byte) {
	b.Grow(n)
	for range n {
		b.B = append(b.B, fill)
	}
}

var pool = sync.Pool{
	New: func() any { return newBuffer() },
}

// Get retrieves a Buffer from the pool.
func Get() *Buffer {
	buf, _ := pool.Get().(*Buffer)
	return buf
}

// Put returns a Buffer to the pool for reuse.
func Put(b *Buffer) {
	if b == nil {
		return
	}

	if cap(b.B) > maxThreshold {
		return
	}

	b.Reset()
	pool.Put(b)
}
