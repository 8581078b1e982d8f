// SPDX-License-Identifier: MIT
// Package audio owns everything between the sound card and the analyzer:
// PortAudio lifecycle, device lookup, the capture stream, the ring buffer the
// callback writes into, the fixed-window ingest the render loop pulls from,
// and optional WAV recording of the mono stream.
package audio

import (
	"fmt"
	"sync"
)

// Ring is a bounded sample buffer between the hardware callback (producer)
// and the render loop (consumer). Writes overwrite the oldest samples, so the
// producer never blocks waiting for the consumer; the only contention is the
// mutex held for the duration of a bulk copy.
type Ring struct {
	mu      sync.Mutex
	buf     []float32
	head    int    // Next write position.
	filled  int    // Valid samples, up to len(buf).
	written uint64 // Total samples ever written; doubles as a freshness counter.
}

// NewRing returns a ring holding capacity samples.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring capacity must be positive, got %d", capacity)
	}
	return &Ring{buf: make([]float32, capacity)}, nil
}

// Write appends samples, overwriting the oldest when full. Never allocates.
// When the input is larger than the ring only the newest samples survive,
// which is the behavior the consumer wants anyway.
func (r *Ring) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	r.mu.Lock()
	if len(samples) >= len(r.buf) {
		copy(r.buf, samples[len(samples)-len(r.buf):])
		r.head = 0
		r.filled = len(r.buf)
	} else {
		n := copy(r.buf[r.head:], samples)
		if n < len(samples) {
			copy(r.buf, samples[n:])
		}
		r.head = (r.head + len(samples)) % len(r.buf)
		r.filled += len(samples)
		if r.filled > len(r.buf) {
			r.filled = len(r.buf)
		}
	}
	r.written += uint64(len(samples))
	r.mu.Unlock()
}

// Snapshot copies the newest samples into dst in chronological order, newest
// sample last. When fewer samples are available than len(dst) the copy is
// right-aligned and the prefix is left untouched. Returns the number copied.
func (r *Ring) Snapshot(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(dst)
	if n > r.filled {
		n = r.filled
	}
	if n == 0 {
		return 0
	}

	// Oldest of the n requested samples sits n positions behind head.
	start := r.head - n
	if start < 0 {
		start += len(r.buf)
	}
	out := dst[len(dst)-n:]
	m := copy(out, r.buf[start:])
	if m < n {
		copy(out[m:], r.buf[:n-m])
	}
	return n
}

// Written returns the total number of samples ever written. Consumers compare
// successive values to tell fresh data from a stalled stream.
func (r *Ring) Written() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Clear drops all buffered samples. Used on stream discontinuities so stale
// audio is not analyzed as if it just arrived.
func (r *Ring) Clear() {
	r.mu.Lock()
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.head = 0
	r.filled = 0
	r.mu.Unlock()
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int {
	return len(r.buf)
}
