// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrDeviceLost reports that the capture stream stopped delivering samples.
// The window returned alongside it is still valid (stale or silent), so the
// caller can keep rendering while it decides how to recover.
var ErrDeviceLost = errors.New("audio: capture device lost")

// Liveness is the part of Capture the ingest needs to tell a quiet stream
// from a dead one.
type Liveness interface {
	LastCallback() time.Time
}

// Ingest adapts the ring buffer's irregular fill pattern to the render
// loop's fixed cadence: every PullWindow returns exactly one window of
// samples no matter what the hardware delivered since the last tick.
type Ingest struct {
	ring         *Ring
	live         Liveness
	window       []float32 // Last delivered window, reused when nothing new arrived.
	lastWritten  uint64
	stallTimeout time.Duration
	lastFresh    time.Time
	now          func() time.Time // Clock, swappable in tests.
}

// NewIngest builds an ingest pulling windowSize-sample windows from ring.
// live may be nil when there is no hardware stream (tests, file input); the
// stall timeout then never fires.
func NewIngest(ring *Ring, live Liveness, windowSize int, stallTimeout time.Duration) (*Ingest, error) {
	if ring == nil {
		return nil, fmt.Errorf("ingest requires a ring buffer")
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if stallTimeout <= 0 {
		return nil, fmt.Errorf("stall timeout must be positive, got %s", stallTimeout)
	}
	return &Ingest{
		ring:         ring,
		live:         live,
		window:       make([]float32, windowSize),
		stallTimeout: stallTimeout,
		now:          time.Now,
	}, nil
}

// WindowSize returns the number of samples delivered per pull.
func (in *Ingest) WindowSize() int {
	return len(in.window)
}

// PullWindow fills dst with exactly one window of samples, newest last,
// clamped to [-1, 1]. fresh reports whether new samples arrived since the
// previous pull; when false the previous window is redelivered so the
// consumer always has something coherent to analyze. Once the stream has
// produced nothing past the stall timeout, PullWindow keeps filling dst
// (stale data) and returns ErrDeviceLost.
func (in *Ingest) PullWindow(dst []float32) (bool, error) {
	if len(dst) != len(in.window) {
		return false, fmt.Errorf("destination length %d does not match window size %d", len(dst), len(in.window))
	}

	now := in.now()
	if in.lastFresh.IsZero() {
		in.lastFresh = now
	}

	written := in.ring.Written()
	fresh := written != in.lastWritten
	if fresh {
		in.lastWritten = written
		in.lastFresh = now
		// Right-aligned snapshot: during startup the prefix keeps the zeros
		// the window was initialized with.
		in.ring.Snapshot(in.window)
		for i, s := range in.window {
			if s > 1 {
				in.window[i] = 1
			} else if s < -1 {
				in.window[i] = -1
			} else if s != s { // NaN from a misbehaving driver.
				in.window[i] = 0
			}
		}
	}
	copy(dst, in.window)

	if !fresh && in.stalled(now) {
		return false, ErrDeviceLost
	}
	return fresh, nil
}

// stalled reports whether the stream has been silent long enough to be
// considered dead. Both the ingest's own freshness clock and the capture
// callback clock must agree, so a consumer polling faster than the hardware
// block size does not false-positive.
func (in *Ingest) stalled(now time.Time) bool {
	if now.Sub(in.lastFresh) < in.stallTimeout {
		return false
	}
	if in.live == nil {
		return false
	}
	last := in.live.LastCallback()
	return last.IsZero() || now.Sub(last) >= in.stallTimeout
}

// Reset clears the delivered window and freshness tracking. Call after a
// device switch so the first windows of the new stream start from silence.
func (in *Ingest) Reset() {
	for i := range in.window {
		in.window[i] = 0
	}
	in.lastWritten = in.ring.Written()
	in.lastFresh = time.Time{}
}
