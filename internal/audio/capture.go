// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"djviz/internal/config"
	"djviz/internal/log"
)

// Capture owns a PortAudio input stream and feeds the ring buffer. The
// callback runs on the audio thread: it downmixes to mono into a
// pre-allocated scratch buffer and does one ring write, nothing else. All
// other methods run on the caller's goroutine.
type Capture struct {
	stream   *portaudio.Stream
	ring     *Ring
	device   *portaudio.DeviceInfo
	channels int
	mono     []float32

	lastCallback atomic.Int64 // Unix nanos of the most recent callback.
	started      bool
}

// NewCapture opens (but does not start) an input stream on the given device.
func NewCapture(device *portaudio.DeviceInfo, cfg config.AudioConfig, ring *Ring) (*Capture, error) {
	if device == nil {
		return nil, fmt.Errorf("capture requires a device")
	}
	if ring == nil {
		return nil, fmt.Errorf("capture requires a ring buffer")
	}

	channels := cfg.Channels
	if channels > device.MaxInputChannels {
		channels = device.MaxInputChannels
	}
	if channels < 1 {
		return nil, fmt.Errorf("device %q has no input channels", device.Name)
	}

	c := &Capture{
		ring:     ring,
		device:   device,
		channels: channels,
		mono:     make([]float32, cfg.WindowSize),
	}

	var params portaudio.StreamParameters
	if cfg.LowLatency {
		params = portaudio.LowLatencyParameters(device, nil)
	} else {
		params = portaudio.HighLatencyParameters(device, nil)
	}
	params.Input.Channels = channels
	params.SampleRate = cfg.SampleRate
	params.FramesPerBuffer = cfg.WindowSize

	stream, err := portaudio.OpenStream(params, c.callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", device.Name, err)
	}
	c.stream = stream

	log.Infof("audio: opened %q (%d ch, %.0f Hz, %d frames/buffer)",
		device.Name, channels, cfg.SampleRate, cfg.WindowSize)
	return c, nil
}

// callback runs on the PortAudio thread. It must never block on anything but
// the ring's copy mutex and must never allocate.
func (c *Capture) callback(in []float32) {
	frames := len(in) / c.channels
	if frames > len(c.mono) {
		frames = len(c.mono)
	}
	if c.channels == 1 {
		copy(c.mono[:frames], in[:frames])
	} else {
		scale := 1.0 / float32(c.channels)
		for f := 0; f < frames; f++ {
			sum := float32(0)
			base := f * c.channels
			for ch := 0; ch < c.channels; ch++ {
				sum += in[base+ch]
			}
			c.mono[f] = sum * scale
		}
	}
	c.ring.Write(c.mono[:frames])
	c.lastCallback.Store(time.Now().UnixNano())
}

// Start begins the capture stream.
func (c *Capture) Start() error {
	if c.started {
		return nil
	}
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	c.started = true
	c.lastCallback.Store(time.Now().UnixNano())
	return nil
}

// Stop halts the capture stream. Idempotent.
func (c *Capture) Stop() error {
	if !c.started {
		return nil
	}
	c.started = false
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	return nil
}

// Close stops and releases the stream.
func (c *Capture) Close() error {
	if err := c.Stop(); err != nil {
		log.Warnf("audio: stop on close: %v", err)
	}
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			return fmt.Errorf("failed to close input stream: %w", err)
		}
		c.stream = nil
	}
	return nil
}

// LastCallback returns the wall-clock time of the most recent audio callback.
// Zero time means no callback has fired yet.
func (c *Capture) LastCallback() time.Time {
	ns := c.lastCallback.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// DeviceName returns the name of the opened device.
func (c *Capture) DeviceName() string {
	return c.device.Name
}
