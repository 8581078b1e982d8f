// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"djviz/internal/log"
	"djviz/pkg/bitint"
)

const (
	// dB mapping for band levels: level = (10*log10(avg) + dbOffset) / dbRange,
	// clamped to [0,1]. Silence (avg ~ 1e-10) lands exactly on 0.
	dbEpsilon = 1e-10
	dbOffset  = 100.0
	dbRange   = 160.0

	// Running min/max tracker drift per frame. The window slowly contracts so
	// it adapts when the program material gets quieter.
	rangeDrift = 0.985

	// Energy smoothing. Attack is fast so drops hit immediately, release is
	// slow so visuals do not flicker.
	energyAttack = 0.7
	energyDecay  = 0.1
	energyLag    = 0.05 // Lagged copy coefficient; the gap drives RiseRate.
	riseScale    = 5.0  // Maps typical EnergyDiff excursions onto [0,1].

	// Transition history lengths in frames (at 60 fps: 0.5 s vs 3 s).
	recentHistory = 30
	longHistory   = 180

	// BPM estimation.
	minBeatInterval = 0.3 // Seconds; anything faster is a double-trigger.
	maxBeatInterval = 2.0 // Slower than 30 BPM resets the tracker.
	beatHistoryLen  = 8
	bpmSmoothing    = 0.15

	dominantInterval = 1.0 // Seconds between dominant band updates.
)

// Options configures a SpectralAnalyzer. Zero values fall back to the
// defaults used throughout the engine.
type Options struct {
	SampleRate float64
	WindowSize int // Samples consumed per Analyze call.
	FFTSize    int // Zero-padded transform length, power of 2, >= WindowSize.
	Window     WindowFunc

	BandAttack      float64 // Per-band smoothing when rising.
	BandDecay       float64 // Per-band smoothing when falling.
	TransitionDelta float64 // Recent-vs-long mean deviation that fires a transition.
	TransitionRearm float64 // Fraction of delta the deviation must fall under to re-arm.
}

// SpectralAnalyzer converts fixed-size sample windows into AudioAnalysis
// frames. It is single-consumer: Analyze must be called from one goroutine.
type SpectralAnalyzer struct {
	fft        *fourier.FFT
	sampleRate float64
	windowSize int
	fftSize    int
	opts       Options

	// Pre-allocated workspace, reused every tick.
	input     []float64
	fftOutput []complex128
	magnitude []float64
	coeffs    []float64
	binLow    [NumBands]int // Inclusive first bin per band.
	binHigh   [NumBands]int // Exclusive last bin per band.

	// Smoothing and tracking state.
	smoothed     [NumBands]float64
	trackMin     [NumBands]float64
	trackMax     [NumBands]float64
	energy       float64
	laggedEnergy float64

	// Transition detector.
	history []float64 // Sliding window, newest last, contiguous for stat.Mean.
	armed   bool

	// BPM tracker, fed by RegisterBeat.
	clock         float64 // Accumulated analysis time in seconds.
	lastBeatAt    float64
	beatIntervals []float64
	bpm           float64

	dominantBand  int
	dominantTimer float64
}

// NewSpectralAnalyzer validates opts and builds an analyzer with all buffers
// pre-allocated. Construction is the only place that can fail; Analyze never
// returns an error.
func NewSpectralAnalyzer(opts Options) (*SpectralAnalyzer, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", opts.SampleRate)
	}
	if opts.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", opts.WindowSize)
	}
	if !bitint.IsPowerOfTwo(opts.FFTSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", opts.FFTSize)
	}
	if opts.FFTSize < opts.WindowSize {
		return nil, fmt.Errorf("fft size %d smaller than window size %d", opts.FFTSize, opts.WindowSize)
	}
	if opts.BandAttack == 0 {
		opts.BandAttack = 0.7
	}
	if opts.BandDecay == 0 {
		opts.BandDecay = 0.15
	}
	if opts.TransitionDelta == 0 {
		opts.TransitionDelta = 0.15
	}
	if opts.TransitionRearm == 0 {
		opts.TransitionRearm = 0.5
	}

	// FFT output size for real input is N/2 + 1 complex values.
	magnitudeSize := opts.FFTSize/2 + 1

	a := &SpectralAnalyzer{
		fft:           fourier.NewFFT(opts.FFTSize),
		sampleRate:    opts.SampleRate,
		windowSize:    opts.WindowSize,
		fftSize:       opts.FFTSize,
		opts:          opts,
		input:         make([]float64, opts.FFTSize),
		fftOutput:     make([]complex128, magnitudeSize),
		magnitude:     make([]float64, magnitudeSize),
		coeffs:        windowCoefficients(opts.WindowSize, opts.Window),
		history:       make([]float64, 0, longHistory),
		beatIntervals: make([]float64, 0, beatHistoryLen),
		armed:         true,
	}

	// Map band edges onto FFT bins once. Each band covers at least one bin so
	// narrow low bands never average over nothing.
	binWidth := opts.SampleRate / float64(opts.FFTSize)
	for b := 0; b < NumBands; b++ {
		lo := int(bandEdges[b] / binWidth)
		hi := int(bandEdges[b+1] / binWidth)
		if hi > magnitudeSize {
			hi = magnitudeSize
		}
		if hi <= lo {
			hi = lo + 1
		}
		a.binLow[b] = lo
		a.binHigh[b] = hi
	}
	for b := 0; b < NumBands; b++ {
		a.trackMin[b] = 1.0
		a.trackMax[b] = 0.0
	}

	log.Debugf("analysis: spectral analyzer ready (window %d, fft %d, %.0f Hz, %s)",
		opts.WindowSize, opts.FFTSize, opts.SampleRate, opts.Window)
	return a, nil
}

// Analyze consumes exactly one window of samples and returns the next frame.
// dt is the elapsed analysis time in seconds since the previous call. Kick
// state is filled in by the caller; this frame leaves it zero.
func (a *SpectralAnalyzer) Analyze(samples []float32, dt float64) AudioAnalysis {
	a.clock += dt

	// 1. Clamp, window and zero-pad into the FFT input buffer.
	n := len(samples)
	if n > a.windowSize {
		n = a.windowSize
	}
	for i := 0; i < a.fftSize; i++ {
		if i < n {
			s := float64(samples[i])
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			a.input[i] = s * a.coeffs[i]
		} else {
			a.input[i] = 0
		}
	}

	// 2. Magnitude spectrum, normalized so a full-scale sine is near 1.
	a.fft.Coefficients(a.fftOutput, a.input)
	norm := 2.0 / float64(a.windowSize)
	for i, c := range a.fftOutput {
		a.magnitude[i] = cmplx.Abs(c) * norm
	}

	var out AudioAnalysis

	// 3. Aggregate bins into bands on the fixed dB scale, then smooth.
	var rawMax float64
	for b := 0; b < NumBands; b++ {
		sum := 0.0
		for i := a.binLow[b]; i < a.binHigh[b]; i++ {
			sum += a.magnitude[i]
		}
		avg := sum / float64(a.binHigh[b]-a.binLow[b])
		raw := clamp01((10*math.Log10(avg+dbEpsilon) + dbOffset) / dbRange)
		raw = sanitize(raw)
		if raw > rawMax {
			rawMax = raw
		}

		// Asymmetric attack/decay smoothing.
		coeff := a.opts.BandDecay
		if raw > a.smoothed[b] {
			coeff = a.opts.BandAttack
		}
		a.smoothed[b] += coeff * (raw - a.smoothed[b])
		a.smoothed[b] = sanitize(a.smoothed[b])
		out.Bands[b] = a.smoothed[b]

		// Range-adaptive copy against a drifting min/max tracker.
		if raw < a.trackMin[b] {
			a.trackMin[b] = raw
		} else {
			a.trackMin[b] = a.trackMin[b]*rangeDrift + raw*(1-rangeDrift)
		}
		if raw > a.trackMax[b] {
			a.trackMax[b] = raw
		} else {
			a.trackMax[b] = a.trackMax[b]*rangeDrift + raw*(1-rangeDrift)
		}
		if span := a.trackMax[b] - a.trackMin[b]; span > 1e-6 {
			out.BandsNormalized[b] = clamp01((raw - a.trackMin[b]) / span)
		}
	}

	// 4. Overall energy with its lagged shadow.
	coeff := energyDecay
	if rawMax > a.energy {
		coeff = energyAttack
	}
	a.energy = sanitize(a.energy + coeff*(rawMax-a.energy))
	a.laggedEnergy = sanitize(a.laggedEnergy + energyLag*(a.energy-a.laggedEnergy))
	out.Energy = a.energy
	out.EnergyDiff = a.energy - a.laggedEnergy
	if out.EnergyDiff > 0 {
		out.RiseRate = clamp01(out.EnergyDiff * riseScale)
	}

	// 5. Section averages over the smoothed bands.
	out.Bass = (a.smoothed[0] + a.smoothed[1]) / 2
	out.Mids = (a.smoothed[2] + a.smoothed[3] + a.smoothed[4]) / 3
	out.Treble = (a.smoothed[5] + a.smoothed[6] + a.smoothed[7]) / 3

	// 6. Transition detection with hysteresis.
	out.TransitionDetected = a.updateTransition()

	// 7. Slow features.
	out.BPM = a.bpm
	a.dominantTimer += dt
	if a.dominantTimer >= dominantInterval {
		a.dominantTimer = 0
		best := 0
		for b := 1; b < NumBands; b++ {
			if a.smoothed[b] > a.smoothed[best] {
				best = b
			}
		}
		a.dominantBand = best
	}
	out.DominantBand = a.dominantBand

	return out
}

// updateTransition pushes the current energy into the history window and
// reports an edge-triggered transition. The detector fires when the recent
// mean departs from the long-term mean by more than the configured delta and
// re-arms only once the deviation falls back under the hysteresis band, so a
// sustained shift produces exactly one event.
func (a *SpectralAnalyzer) updateTransition() bool {
	if len(a.history) < longHistory {
		a.history = append(a.history, a.energy)
	} else {
		copy(a.history, a.history[1:])
		a.history[longHistory-1] = a.energy
	}
	// Not enough context to compare against yet.
	if len(a.history) < 2*recentHistory {
		return false
	}

	recent := stat.Mean(a.history[len(a.history)-recentHistory:], nil)
	longTerm := stat.Mean(a.history, nil)
	dev := math.Abs(recent - longTerm)

	if a.armed && dev > a.opts.TransitionDelta {
		a.armed = false
		return true
	}
	if !a.armed && dev < a.opts.TransitionDelta*a.opts.TransitionRearm {
		a.armed = true
	}
	return false
}

// RegisterBeat feeds one detected beat (normally a kick) into the tempo
// tracker. Intervals shorter than minBeatInterval are double-triggers and
// ignored; longer than maxBeatInterval restarts the estimate.
func (a *SpectralAnalyzer) RegisterBeat() {
	interval := a.clock - a.lastBeatAt
	if interval < minBeatInterval {
		return
	}
	a.lastBeatAt = a.clock
	if interval > maxBeatInterval {
		a.beatIntervals = a.beatIntervals[:0]
		return
	}

	if len(a.beatIntervals) == beatHistoryLen {
		copy(a.beatIntervals, a.beatIntervals[1:])
		a.beatIntervals = a.beatIntervals[:beatHistoryLen-1]
	}
	a.beatIntervals = append(a.beatIntervals, interval)

	if len(a.beatIntervals) < 2 {
		return
	}
	instant := 60.0 / stat.Mean(a.beatIntervals, nil)
	if a.bpm == 0 {
		a.bpm = instant
	} else {
		a.bpm += bpmSmoothing * (instant - a.bpm)
	}
	a.bpm = sanitize(a.bpm)
}

// Magnitudes returns the normalized magnitude spectrum from the most recent
// Analyze call. The slice is the analyzer's internal buffer: read it on the
// consumer goroutine before the next Analyze, do not retain or modify it.
func (a *SpectralAnalyzer) Magnitudes() []float64 {
	return a.magnitude
}

// BinFrequency returns the center frequency in Hz for an FFT bin index, or 0
// when the index is out of range.
func (a *SpectralAnalyzer) BinFrequency(bin int) float64 {
	if bin < 0 || bin >= len(a.magnitude) {
		return 0
	}
	return float64(bin) * (a.sampleRate / float64(a.fftSize))
}

// Reset clears all accumulated state. Used after a device switch so stale
// history does not bleed into the new stream.
func (a *SpectralAnalyzer) Reset() {
	for b := 0; b < NumBands; b++ {
		a.smoothed[b] = 0
		a.trackMin[b] = 1.0
		a.trackMax[b] = 0.0
	}
	a.energy = 0
	a.laggedEnergy = 0
	a.history = a.history[:0]
	a.armed = true
	a.beatIntervals = a.beatIntervals[:0]
	a.bpm = 0
	a.lastBeatAt = a.clock
	a.dominantBand = 0
	a.dominantTimer = 0
}

// clamp01 clamps v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sanitize maps NaN and Inf to 0 so a degenerate frame can never poison the
// persistent smoothing state.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
