// Package ring provides a lock-free single-producer/single-consumer float
// ring buffer used to hand PCM samples from the capture callback to the
// analysis thread without ever blocking the callback.
package ring

import "sync/atomic"

// Buffer is a fixed-capacity SPSC ring of float32 samples. One goroutine may
// call Write, and a different goroutine may call Read; no other combination
// is safe. Capacity is rounded up to the next power of two so index wrapping
// is a mask instead of a modulo.
type Buffer struct {
	data []float32
	mask uint64

	// writeIdx is only ever written by the producer and read by the
	// consumer; readIdx is the reverse. Padding keeps the two counters on
	// separate cache lines so producer and consumer never false-share.
	writeIdx uint64
	_        [7]uint64
	readIdx  uint64
	_        [7]uint64
}

// New returns a Buffer able to hold at least capacity samples.
func New(capacity int) *Buffer {
	size := nextPow2(capacity)
	return &Buffer{
		data: make([]float32, size),
		mask: uint64(size - 1),
	}
}

func nextPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the buffer's capacity in samples.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the number of samples currently buffered, safe to call from
// either side.
func (b *Buffer) Len() int {
	w := atomic.LoadUint64(&b.writeIdx)
	r := atomic.LoadUint64(&b.readIdx)
	return int(w - r)
}

// Free returns the number of samples that can still be written before the
// buffer is full.
func (b *Buffer) Free() int {
	return len(b.data) - b.Len()
}

// Write copies as many samples from src as fit, dropping the remainder if
// the buffer is full. It returns the number of samples actually written.
// Called only from the audio capture callback; never allocates, never
// blocks.
func (b *Buffer) Write(src []float32) int {
	free := b.Free()
	n := len(src)
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	w := atomic.LoadUint64(&b.writeIdx)
	for i := 0; i < n; i++ {
		b.data[(w+uint64(i))&b.mask] = src[i]
	}
	atomic.StoreUint64(&b.writeIdx, w+uint64(n))
	return n
}

// Read copies as many buffered samples into dst as are available, returning
// the number read. Called only from the analysis thread.
func (b *Buffer) Read(dst []float32) int {
	avail := b.Len()
	n := len(dst)
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	r := atomic.LoadUint64(&b.readIdx)
	for i := 0; i < n; i++ {
		dst[i] = b.data[(r+uint64(i))&b.mask]
	}
	atomic.StoreUint64(&b.readIdx, r+uint64(n))
	return n
}

// Peek copies up to len(dst) of the most recently written samples into dst
// without consuming them, for callers (e.g. a sliding FFT window) that need
// overlapping views of the stream rather than a strict consume-once queue.
// Returns the number of samples copied, oldest first.
func (b *Buffer) Peek(dst []float32) int {
	avail := b.Len()
	n := len(dst)
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	w := atomic.LoadUint64(&b.writeIdx)
	start := w - uint64(n)
	for i := 0; i < n; i++ {
		dst[i] = b.data[(start+uint64(i))&b.mask]
	}
	return n
}

// Advance discards n samples from the read side without copying them, used
// after a Peek to keep the consume cursor in step with a sliding window's
// hop size.
func (b *Buffer) Advance(n int) {
	avail := b.Len()
	if n > avail {
		n = avail
	}
	r := atomic.LoadUint64(&b.readIdx)
	atomic.StoreUint64(&b.readIdx, r+uint64(n))
}
