// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"djviz/internal/log"
)

// Recorder writes the analyzed mono stream to a WAV file. The active flag is
// atomic so the render loop can check it without locking; the encoder itself
// is guarded by a mutex since Start/Stop run on a different goroutine than
// Write.
type Recorder struct {
	isRecording atomic.Int32

	mu         sync.Mutex
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer

	sampleRate int
	bitDepth   int
	scale      float64
}

// NewRecorder builds an inactive recorder for a mono stream.
func NewRecorder(sampleRate float64, bitDepth int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d, want 16, 24 or 32", bitDepth)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	return &Recorder{
		sampleRate: int(sampleRate),
		bitDepth:   bitDepth,
		scale:      float64(int64(1)<<(bitDepth-1)) - 1,
	}, nil
}

// Start opens filename and begins accepting samples.
func (r *Recorder) Start(filename string) error {
	if r.isRecording.Load() == 1 {
		return fmt.Errorf("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create recording file: %w", err)
	}

	r.mu.Lock()
	r.outputFile = file
	r.wavEncoder = wav.NewEncoder(file, r.sampleRate, r.bitDepth, 1, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  r.sampleRate,
		},
		SourceBitDepth: r.bitDepth,
	}
	r.mu.Unlock()

	r.isRecording.Store(1)
	log.Infof("audio: recording to %s (%d Hz, %d bit)", filename, r.sampleRate, r.bitDepth)
	return nil
}

// Write appends one window of mono samples. A no-op while not recording, so
// the render loop can call it unconditionally.
func (r *Recorder) Write(samples []float32) error {
	if r.isRecording.Load() == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return nil
	}

	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		r.sampleBuf.Data[i] = int(float64(s) * r.scale)
	}

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("failed to write recording frame: %w", err)
	}
	return nil
}

// Stop finalizes the WAV file. Safe to call when not recording.
func (r *Recorder) Stop() error {
	if r.isRecording.Load() == 0 {
		return nil
	}
	r.isRecording.Store(0)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			return fmt.Errorf("failed to finalize recording: %w", err)
		}
		r.wavEncoder = nil
	}
	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			return fmt.Errorf("failed to close recording file: %w", err)
		}
		r.outputFile = nil
	}
	return nil
}

// Active reports whether samples are currently being written.
func (r *Recorder) Active() bool {
	return r.isRecording.Load() == 1
}
