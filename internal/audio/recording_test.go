// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"
)

func TestNewRecorder_Validation(t *testing.T) {
	tests := []struct {
		desc       string
		sampleRate float64
		bitDepth   int
		wantErr    bool
	}{
		{"16 bit", 44100, 16, false},
		{"24 bit", 48000, 24, false},
		{"32 bit", 44100, 32, false},
		{"odd bit depth", 44100, 12, true},
		{"zero sample rate", 0, 16, true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := NewRecorder(tt.sampleRate, tt.bitDepth)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRecorder(%.0f, %d) error = %v, wantErr %v",
					tt.sampleRate, tt.bitDepth, err, tt.wantErr)
			}
		})
	}
}

func TestRecorder_StartWriteStop(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "capture.wav")
	r, err := NewRecorder(44100, 16)
	if err != nil {
		t.Fatalf("failed to build recorder: %v", err)
	}

	if err := r.Start(filename); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}
	if !r.Active() {
		t.Error("recorder should be active after Start")
	}
	if err := r.Start(filename); err == nil || !strings.Contains(err.Error(), "already recording") {
		t.Errorf("second Start error = %v, want 'already recording'", err)
	}

	// One window of a 440 Hz tone.
	samples := make([]float32, 1024)
	for i := range samples {
		samples[i] = float32(math.Sin(2*math.Pi*440*float64(i)/44100) * 0.5)
	}
	if err := r.Write(samples); err != nil {
		t.Fatalf("failed to write samples: %v", err)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("failed to stop recording: %v", err)
	}
	if r.Active() {
		t.Error("recorder should be inactive after Stop")
	}

	// The result must be a valid mono WAV containing our samples.
	file, err := os.Open(filename)
	if err != nil {
		t.Fatalf("failed to open recording: %v", err)
	}
	defer file.Close()
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		t.Fatal("recording is not a valid WAV file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		t.Fatalf("failed to decode recording: %v", err)
	}
	if buf.Format.NumChannels != 1 {
		t.Errorf("channels = %d, want 1", buf.Format.NumChannels)
	}
	if buf.Format.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", buf.Format.SampleRate)
	}
	if len(buf.Data) != len(samples) {
		t.Errorf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
}

func TestRecorder_WriteWhileInactiveIsNoop(t *testing.T) {
	r, err := NewRecorder(44100, 16)
	if err != nil {
		t.Fatalf("failed to build recorder: %v", err)
	}
	if err := r.Write(make([]float32, 256)); err != nil {
		t.Errorf("inactive Write error = %v, want nil", err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("Stop while inactive error = %v, want nil", err)
	}
}

func TestRecorder_ClampsSamples(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "clip.wav")
	r, err := NewRecorder(44100, 16)
	if err != nil {
		t.Fatalf("failed to build recorder: %v", err)
	}
	if err := r.Start(filename); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}

	hot := []float32{2.0, -3.0, 0.5}
	if err := r.Write(hot); err != nil {
		t.Fatalf("failed to write samples: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("failed to stop recording: %v", err)
	}

	file, err := os.Open(filename)
	if err != nil {
		t.Fatalf("failed to open recording: %v", err)
	}
	defer file.Close()
	buf, err := wav.NewDecoder(file).FullPCMBuffer()
	if err != nil {
		t.Fatalf("failed to decode recording: %v", err)
	}
	limit := 1 << 15
	for i, v := range buf.Data {
		if v >= limit || v < -limit {
			t.Errorf("sample %d = %d exceeds 16-bit range", i, v)
		}
	}
}

func TestRecorder_InvalidPath(t *testing.T) {
	r, err := NewRecorder(44100, 16)
	if err != nil {
		t.Fatalf("failed to build recorder: %v", err)
	}
	if err := r.Start("/nonexistent/dir/out.wav"); err == nil {
		t.Error("expected error for unwritable path")
	}
	if r.Active() {
		t.Error("recorder should not be active after failed Start")
	}
}
