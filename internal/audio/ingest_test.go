// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"testing"
	"time"
)

// fakeClock drives the ingest's idea of time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeLiveness stands in for a capture stream.
type fakeLiveness struct {
	last time.Time
}

func (f *fakeLiveness) LastCallback() time.Time { return f.last }

func newTestIngest(t *testing.T, live Liveness) (*Ingest, *Ring, *fakeClock) {
	t.Helper()
	ring, err := NewRing(4096)
	if err != nil {
		t.Fatalf("failed to build ring: %v", err)
	}
	in, err := NewIngest(ring, live, 1024, 3*time.Second)
	if err != nil {
		t.Fatalf("failed to build ingest: %v", err)
	}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	in.now = clock.now
	return in, ring, clock
}

func TestNewIngest_Validation(t *testing.T) {
	ring, _ := NewRing(16)
	tests := []struct {
		desc       string
		ring       *Ring
		windowSize int
		timeout    time.Duration
		wantErr    bool
	}{
		{"valid", ring, 1024, time.Second, false},
		{"nil ring", nil, 1024, time.Second, true},
		{"zero window", ring, 0, time.Second, true},
		{"zero timeout", ring, 1024, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := NewIngest(tt.ring, nil, tt.windowSize, tt.timeout)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewIngest error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPullWindow_ExactSizeRequired(t *testing.T) {
	in, _, _ := newTestIngest(t, nil)
	if _, err := in.PullWindow(make([]float32, 512)); err == nil {
		t.Error("expected error for mismatched destination size")
	}
}

func TestPullWindow_FreshThenStale(t *testing.T) {
	live := &fakeLiveness{}
	in, ring, clock := newTestIngest(t, live)
	dst := make([]float32, 1024)

	// Nothing written yet: not fresh, all zeros, no error.
	fresh, err := in.PullWindow(dst)
	if err != nil || fresh {
		t.Fatalf("empty pull: fresh=%v err=%v, want false/nil", fresh, err)
	}
	for i, s := range dst {
		if s != 0 {
			t.Fatalf("dst[%d] = %v before any data, want 0", i, s)
		}
	}

	// New samples arrive: fresh, newest sample last.
	ring.Write(seq(0, 1024))
	live.last = clock.now()
	fresh, err = in.PullWindow(dst)
	if err != nil || !fresh {
		t.Fatalf("pull after write: fresh=%v err=%v, want true/nil", fresh, err)
	}
	if dst[1023] != 1023 || dst[0] != 0 {
		t.Errorf("window not chronological: first=%v last=%v", dst[0], dst[1023])
	}

	// No new samples: stale redelivery of the identical window.
	clock.advance(16 * time.Millisecond)
	fresh, err = in.PullWindow(dst)
	if err != nil || fresh {
		t.Fatalf("stale pull: fresh=%v err=%v, want false/nil", fresh, err)
	}
	if dst[1023] != 1023 {
		t.Errorf("stale pull changed the window: last=%v", dst[1023])
	}
}

func TestPullWindow_ClampsSamples(t *testing.T) {
	in, ring, _ := newTestIngest(t, nil)
	samples := make([]float32, 1024)
	for i := range samples {
		samples[i] = 3.5
		if i%2 == 1 {
			samples[i] = -2.0
		}
	}
	ring.Write(samples)

	dst := make([]float32, 1024)
	if _, err := in.PullWindow(dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range dst {
		if s < -1 || s > 1 {
			t.Fatalf("dst[%d] = %v out of [-1,1]", i, s)
		}
	}
}

func TestPullWindow_DeviceLost(t *testing.T) {
	live := &fakeLiveness{}
	in, ring, clock := newTestIngest(t, live)
	dst := make([]float32, 1024)

	ring.Write(seq(0, 1024))
	live.last = clock.now()
	if _, err := in.PullWindow(dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Quiet for less than the timeout: stale but not lost.
	clock.advance(2 * time.Second)
	fresh, err := in.PullWindow(dst)
	if err != nil || fresh {
		t.Fatalf("pre-timeout pull: fresh=%v err=%v, want false/nil", fresh, err)
	}

	// Past the timeout with no callbacks: device lost, window still served.
	clock.advance(2 * time.Second)
	_, err = in.PullWindow(dst)
	if !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("expected ErrDeviceLost, got %v", err)
	}
	if dst[1023] != 1023 {
		t.Error("lost-device pull did not serve the stale window")
	}

	// A late callback revives the stream.
	ring.Write(seq(0, 64))
	live.last = clock.now()
	fresh, err = in.PullWindow(dst)
	if err != nil || !fresh {
		t.Errorf("revived pull: fresh=%v err=%v, want true/nil", fresh, err)
	}
}

func TestPullWindow_CallbackClockBlocksFalsePositive(t *testing.T) {
	live := &fakeLiveness{}
	in, ring, clock := newTestIngest(t, live)
	dst := make([]float32, 1024)

	ring.Write(seq(0, 1024))
	if _, err := in.PullWindow(dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The ingest saw nothing new for a long time, but the hardware callback
	// is still alive (e.g. consumer wedged, not the device). Not a loss.
	clock.advance(5 * time.Second)
	live.last = clock.now()
	if _, err := in.PullWindow(dst); err != nil {
		t.Errorf("expected nil error while callbacks are alive, got %v", err)
	}
}

func TestIngest_Reset(t *testing.T) {
	in, ring, _ := newTestIngest(t, nil)
	dst := make([]float32, 1024)

	ring.Write(seq(0, 1024))
	if _, err := in.PullWindow(dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in.Reset()
	fresh, err := in.PullWindow(dst)
	if err != nil || fresh {
		t.Fatalf("post-reset pull: fresh=%v err=%v, want false/nil", fresh, err)
	}
	for i, s := range dst {
		if s != 0 {
			t.Fatalf("dst[%d] = %v after Reset, want 0", i, s)
		}
	}
}

func BenchmarkPullWindow(b *testing.B) {
	ring, _ := NewRing(4096)
	in, err := NewIngest(ring, nil, 1024, 3*time.Second)
	if err != nil {
		b.Fatalf("failed to build ingest: %v", err)
	}
	dst := make([]float32, 1024)
	chunk := seq(0, 1024)

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		ring.Write(chunk)
		_, _ = in.PullWindow(dst)
	}
}
