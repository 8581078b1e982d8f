// SPDX-License-Identifier: MIT
package audio

import (
	"sync"
	"testing"
)

func seq(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func TestNewRing_Validation(t *testing.T) {
	if _, err := NewRing(0); err == nil {
		t.Error("expected error for zero capacity")
	}
	if _, err := NewRing(-1); err == nil {
		t.Error("expected error for negative capacity")
	}
	r, err := NewRing(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Cap() != 8 {
		t.Errorf("Cap() = %d, want 8", r.Cap())
	}
}

func TestRing_SnapshotOrder(t *testing.T) {
	tests := []struct {
		desc     string
		capacity int
		writes   [][]float32
		want     []float32 // Expected snapshot, newest last.
	}{
		{"single write", 8, [][]float32{seq(0, 4)}, []float32{0, 1, 2, 3}},
		{"two writes", 8, [][]float32{seq(0, 3), seq(3, 3)}, []float32{0, 1, 2, 3, 4, 5}},
		{"wraparound keeps newest", 4, [][]float32{seq(0, 3), seq(3, 3)}, []float32{2, 3, 4, 5}},
		{"oversized write keeps tail", 4, [][]float32{seq(0, 10)}, []float32{6, 7, 8, 9}},
		{"many small writes", 4, [][]float32{seq(0, 1), seq(1, 1), seq(2, 1), seq(3, 1), seq(4, 1)}, []float32{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			r, err := NewRing(tt.capacity)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, w := range tt.writes {
				r.Write(w)
			}

			dst := make([]float32, len(tt.want))
			n := r.Snapshot(dst)
			if n != len(tt.want) {
				t.Fatalf("Snapshot copied %d samples, want %d", n, len(tt.want))
			}
			for i := range tt.want {
				if dst[i] != tt.want[i] {
					t.Errorf("dst[%d] = %v, want %v (full: %v)", i, dst[i], tt.want[i], dst)
					break
				}
			}
		})
	}
}

func TestRing_SnapshotPartialFillIsRightAligned(t *testing.T) {
	r, _ := NewRing(8)
	r.Write(seq(0, 3))

	dst := []float32{-9, -9, -9, -9, -9, -9}
	n := r.Snapshot(dst)
	if n != 3 {
		t.Fatalf("Snapshot copied %d samples, want 3", n)
	}
	// Prefix untouched, newest sample last.
	want := []float32{-9, -9, -9, 0, 1, 2}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst = %v, want %v", dst, want)
		}
	}
}

func TestRing_WrittenCounts(t *testing.T) {
	r, _ := NewRing(4)
	if r.Written() != 0 {
		t.Errorf("fresh ring Written() = %d, want 0", r.Written())
	}
	r.Write(seq(0, 3))
	r.Write(seq(3, 6)) // Larger than capacity; still counts all samples.
	if r.Written() != 9 {
		t.Errorf("Written() = %d, want 9", r.Written())
	}
}

func TestRing_Clear(t *testing.T) {
	r, _ := NewRing(4)
	r.Write(seq(1, 4))
	r.Clear()

	dst := make([]float32, 4)
	if n := r.Snapshot(dst); n != 0 {
		t.Errorf("Snapshot after Clear copied %d samples, want 0", n)
	}
}

func TestRing_ConcurrentProducerConsumer(t *testing.T) {
	r, _ := NewRing(1024)
	done := make(chan struct{})
	var wg sync.WaitGroup

	// Producer hammers writes; consumer snapshots concurrently. The race
	// detector verifies there are no torn reads.
	wg.Add(2)
	go func() {
		defer wg.Done()
		chunk := seq(0, 64)
		for {
			select {
			case <-done:
				return
			default:
				r.Write(chunk)
			}
		}
	}()
	go func() {
		defer wg.Done()
		dst := make([]float32, 512)
		for iter := 0; iter < 1000; iter++ {
			r.Snapshot(dst)
		}
		close(done)
	}()
	wg.Wait()
}

func BenchmarkRingWrite(b *testing.B) {
	r, _ := NewRing(22050)
	chunk := seq(0, 1024)

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		r.Write(chunk)
	}
}

func BenchmarkRingSnapshot(b *testing.B) {
	r, _ := NewRing(22050)
	r.Write(seq(0, 22050))
	dst := make([]float32, 1024)

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		r.Snapshot(dst)
	}
}
