// SPDX-License-Identifier: MIT
// Package config holds all runtime configuration for the analysis engine.
// Configuration is assembled from built-in defaults, an optional YAML file,
// environment overrides and command line flags, then validated once at
// startup. Nothing in the per-tick path consults configuration dynamically.
package config

import (
	"fmt"
	"time"

	"djviz/pkg/bitint"
)

// Default values for the engine configuration.
const (
	DefaultDeviceID    = MinDeviceID // System default input device.
	DefaultChannels    = 2
	DefaultSampleRate  = 44100
	DefaultWindowSize  = 1024 // Samples pulled per tick.
	DefaultFFTSize     = 2048 // Zero-padded FFT length.
	DefaultTargetFPS   = 60
	DefaultFFTWindow   = "Hann"
	DefaultLowLatency  = false
	DefaultLogLevel    = "info"
	DefaultRecordPath  = ""
	DefaultNumBands    = 8
	DefaultRingSeconds = 0.5 // Ring buffer capacity relative to sample rate.

	// Hardware limits.
	MinDeviceID   = -1
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxWindowSize = 8192
)

// Detection defaults. These are tunable thresholds, not invariants; every
// value can be overridden from the config file.
const (
	DefaultBandAttack   = 0.7
	DefaultBandDecay    = 0.15
	DefaultKickAttack   = 0.8
	DefaultKickRelease  = 0.15
	DefaultKickSpacing  = 120 * time.Millisecond
	DefaultKickBands    = 2 // Coincident onset bands required (of 3).
	DefaultKickFluxMult = 1.4

	DefaultTransitionDelta      = 0.15
	DefaultTransitionRearm      = 0.5 // Fraction of delta to re-arm below.
	DefaultSchedulerDwell       = 750 * time.Millisecond
	DefaultSchedulerTreble      = 0.75
	DefaultDeviceStallTimeout   = 3 * time.Second
	DefaultTransportUDPInterval = 16 * time.Millisecond
)

// Config is the root configuration for the engine.
type Config struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`
	Command  string `yaml:"-"` // One-off command ("list"), CLI only.

	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Kick      KickConfig      `yaml:"kick"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds capture and windowing settings.
type AudioConfig struct {
	InputDevice  int           `yaml:"input_device"` // PortAudio index, -1 for default.
	DeviceName   string        `yaml:"device_name"`  // Substring match, overrides index when set.
	SampleRate   float64       `yaml:"sample_rate"`
	Channels     int           `yaml:"channels"`
	WindowSize   int           `yaml:"window_size"` // Samples per analysis window.
	LowLatency   bool          `yaml:"low_latency"`
	StallTimeout time.Duration `yaml:"stall_timeout"` // No-callback interval treated as device loss.
}

// AnalysisConfig holds spectral analyzer settings.
type AnalysisConfig struct {
	FFTSize         int     `yaml:"fft_size"`
	FFTWindow       string  `yaml:"fft_window"`
	TargetFPS       float64 `yaml:"target_fps"`
	BandAttack      float64 `yaml:"band_attack"`
	BandDecay       float64 `yaml:"band_decay"`
	TransitionDelta float64 `yaml:"transition_delta"`
	TransitionRearm float64 `yaml:"transition_rearm"`
}

// KickConfig holds kick detector settings.
type KickConfig struct {
	MinInterval        time.Duration `yaml:"min_interval"`
	FluxMultiplier     float64       `yaml:"flux_multiplier"`
	MinCoincidentBands int           `yaml:"min_coincident_bands"`
	EnvelopeAttack     float64       `yaml:"envelope_attack"`
	EnvelopeRelease    float64       `yaml:"envelope_release"`
}

// SchedulerConfig holds visualization cycling settings.
type SchedulerConfig struct {
	Dwell           time.Duration `yaml:"dwell"`
	TrebleThreshold float64       `yaml:"treble_threshold"`
	CycleOnTreble   bool          `yaml:"cycle_on_treble"`
	OverlayEnabled  bool          `yaml:"overlay_enabled"`
	StartLocked     bool          `yaml:"start_locked"`
	// EnergyRanges optionally restricts each registered visualization to an
	// [min,max] energy band; an empty list disables the filter.
	EnergyRanges [][2]float64 `yaml:"energy_ranges"`
}

// RecordingConfig holds WAV capture settings.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"`
	BitDepth   int    `yaml:"bit_depth"`
}

// TransportConfig holds analysis frame publishing settings.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddr    string        `yaml:"websocket_addr"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Debug:    false,
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:  DefaultDeviceID,
			SampleRate:   DefaultSampleRate,
			Channels:     DefaultChannels,
			WindowSize:   DefaultWindowSize,
			LowLatency:   DefaultLowLatency,
			StallTimeout: DefaultDeviceStallTimeout,
		},
		Analysis: AnalysisConfig{
			FFTSize:         DefaultFFTSize,
			FFTWindow:       DefaultFFTWindow,
			TargetFPS:       DefaultTargetFPS,
			BandAttack:      DefaultBandAttack,
			BandDecay:       DefaultBandDecay,
			TransitionDelta: DefaultTransitionDelta,
			TransitionRearm: DefaultTransitionRearm,
		},
		Kick: KickConfig{
			MinInterval:        DefaultKickSpacing,
			FluxMultiplier:     DefaultKickFluxMult,
			MinCoincidentBands: DefaultKickBands,
			EnvelopeAttack:     DefaultKickAttack,
			EnvelopeRelease:    DefaultKickRelease,
		},
		Scheduler: SchedulerConfig{
			Dwell:           DefaultSchedulerDwell,
			TrebleThreshold: DefaultSchedulerTreble,
			CycleOnTreble:   true,
			OverlayEnabled:  true,
			StartLocked:     false,
		},
		Recording: RecordingConfig{
			Enabled:    false,
			OutputFile: DefaultRecordPath,
			BitDepth:   16,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddr:    ":8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  DefaultTransportUDPInterval,
		},
	}
}

// Validate checks the configuration and fails fast on anything that would
// otherwise surface as a per-tick error.
func (c *Config) Validate() error {
	a := &c.Audio
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f out of range [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.Channels < 1 {
		return fmt.Errorf("audio.channels must be >= 1, got %d", a.Channels)
	}
	if a.WindowSize <= 0 || a.WindowSize > MaxWindowSize {
		return fmt.Errorf("audio.window_size %d out of range (0, %d]", a.WindowSize, MaxWindowSize)
	}
	if a.StallTimeout <= 0 {
		return fmt.Errorf("audio.stall_timeout must be positive, got %s", a.StallTimeout)
	}

	an := &c.Analysis
	if !bitint.IsPowerOfTwo(an.FFTSize) {
		return fmt.Errorf("analysis.fft_size must be a power of 2, got %d", an.FFTSize)
	}
	if an.FFTSize < a.WindowSize {
		return fmt.Errorf("analysis.fft_size %d smaller than window size %d", an.FFTSize, a.WindowSize)
	}
	if an.TargetFPS <= 0 {
		return fmt.Errorf("analysis.target_fps must be positive, got %.1f", an.TargetFPS)
	}
	if an.BandAttack <= 0 || an.BandAttack > 1 || an.BandDecay <= 0 || an.BandDecay > 1 {
		return fmt.Errorf("analysis band smoothing coefficients must be in (0, 1]")
	}
	if an.TransitionDelta <= 0 {
		return fmt.Errorf("analysis.transition_delta must be positive, got %.3f", an.TransitionDelta)
	}
	if an.TransitionRearm <= 0 || an.TransitionRearm >= 1 {
		return fmt.Errorf("analysis.transition_rearm must be in (0, 1), got %.3f", an.TransitionRearm)
	}

	k := &c.Kick
	if k.MinInterval <= 0 {
		return fmt.Errorf("kick.min_interval must be positive, got %s", k.MinInterval)
	}
	if k.FluxMultiplier <= 0 {
		return fmt.Errorf("kick.flux_multiplier must be positive, got %.2f", k.FluxMultiplier)
	}
	if k.MinCoincidentBands < 1 || k.MinCoincidentBands > 3 {
		return fmt.Errorf("kick.min_coincident_bands must be 1-3, got %d", k.MinCoincidentBands)
	}
	if k.EnvelopeAttack <= 0 || k.EnvelopeAttack > 1 || k.EnvelopeRelease <= 0 || k.EnvelopeRelease > 1 {
		return fmt.Errorf("kick envelope coefficients must be in (0, 1]")
	}

	s := &c.Scheduler
	if s.Dwell <= 0 {
		return fmt.Errorf("scheduler.dwell must be positive, got %s", s.Dwell)
	}
	if s.TrebleThreshold <= 0 || s.TrebleThreshold > 1 {
		return fmt.Errorf("scheduler.treble_threshold must be in (0, 1], got %.2f", s.TrebleThreshold)
	}
	for i, r := range s.EnergyRanges {
		if r[0] < 0 || r[1] > 1 || r[0] > r[1] {
			return fmt.Errorf("scheduler.energy_ranges[%d] = [%.2f, %.2f] invalid", i, r[0], r[1])
		}
	}

	r := &c.Recording
	if r.Enabled {
		if r.OutputFile == "" {
			return fmt.Errorf("recording.output_file must be set when recording is enabled")
		}
		if r.BitDepth != 16 && r.BitDepth != 24 && r.BitDepth != 32 {
			return fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", r.BitDepth)
		}
	}

	t := &c.Transport
	if t.UDPEnabled {
		if t.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if t.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive, got %s", t.UDPSendInterval)
		}
	}
	if t.WebSocketEnabled && t.WebSocketAddr == "" {
		return fmt.Errorf("transport.websocket_addr must be set when the WebSocket server is enabled")
	}

	return nil
}
