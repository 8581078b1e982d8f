// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"djviz/internal/log"
)

// A kick drum shows up in three places at once: the fundamental thump, the
// low-mid punch and the beater click. Requiring coincident onsets across
// these bands rejects basslines and hi-hats that light up only one of them.
var kickBands = [3]struct {
	name   string
	lowHz  float64
	highHz float64
	weight float64
}{
	{"thump", 20, 80, 1.0},
	{"punch", 80, 200, 0.8},
	{"click", 2000, 5000, 0.5},
}

// Trailing flux average decay per tick. Slow on purpose: the baseline should
// describe the last few seconds of material, not the current beat.
const kickFluxDecay = 0.995

// KickOptions configures a KickDetector. SampleRate and FFTSize are only
// needed when feeding the detector through ProcessSpectrum.
type KickOptions struct {
	SampleRate float64
	FFTSize    int

	MinInterval        float64 // Seconds between detections (cooldown).
	FluxMultiplier     float64 // Onset threshold as a multiple of the trailing flux average.
	FluxFloor          float64 // Lower bound on the threshold, keeps silence from hair-triggering.
	MinCoincidentBands int     // Bands that must fire together, 1-3.
	EnvelopeAttack     float64
	EnvelopeRelease    float64
}

// KickDetector finds kick drum onsets in the magnitude spectrum using
// per-band envelope followers, positive spectral flux and an adaptive
// threshold. Single-consumer, allocation-free per tick.
type KickDetector struct {
	opts KickOptions

	binLow  [3]int
	binHigh [3]int

	env       [3]float64
	prevEnv   [3]float64
	fluxAvg   [3]float64
	primed    bool
	sinceKick float64
	state     KickState
}

// NewKickDetector validates opts and returns a ready detector. Zero option
// fields take the tuned defaults.
func NewKickDetector(opts KickOptions) (*KickDetector, error) {
	if opts.MinInterval == 0 {
		opts.MinInterval = 0.12
	}
	if opts.FluxMultiplier == 0 {
		opts.FluxMultiplier = 1.4
	}
	if opts.FluxFloor == 0 {
		opts.FluxFloor = 0.05
	}
	if opts.MinCoincidentBands == 0 {
		opts.MinCoincidentBands = 2
	}
	if opts.EnvelopeAttack == 0 {
		opts.EnvelopeAttack = 0.8
	}
	if opts.EnvelopeRelease == 0 {
		opts.EnvelopeRelease = 0.15
	}
	if opts.MinInterval < 0 || opts.FluxMultiplier < 0 {
		return nil, fmt.Errorf("kick detector: cooldown and flux multiplier must be positive")
	}
	if opts.MinCoincidentBands < 1 || opts.MinCoincidentBands > len(kickBands) {
		return nil, fmt.Errorf("kick detector: min coincident bands must be 1-%d, got %d",
			len(kickBands), opts.MinCoincidentBands)
	}

	d := &KickDetector{
		opts: opts,
		// Start outside the cooldown so the first real kick is not swallowed.
		sinceKick: 1.0,
	}
	d.state.TimeSinceKick = d.sinceKick

	if opts.SampleRate > 0 && opts.FFTSize > 0 {
		binWidth := opts.SampleRate / float64(opts.FFTSize)
		bins := opts.FFTSize/2 + 1
		for b, band := range kickBands {
			lo := int(band.lowHz / binWidth)
			hi := int(band.highHz / binWidth)
			if hi > bins {
				hi = bins
			}
			if hi <= lo {
				hi = lo + 1
			}
			d.binLow[b] = lo
			d.binHigh[b] = hi
		}
	}

	log.Debugf("analysis: kick detector ready (cooldown %.0f ms, threshold x%.1f, %d/%d bands)",
		opts.MinInterval*1000, opts.FluxMultiplier, opts.MinCoincidentBands, len(kickBands))
	return d, nil
}

// ProcessSpectrum maps the magnitude spectrum onto the three kick bands and
// runs one detection step. The spectrum layout must match the SampleRate and
// FFTSize the detector was built with.
func (d *KickDetector) ProcessSpectrum(spectrum []float64, dt float64) KickState {
	var energies [3]float64
	for b := range kickBands {
		hi := d.binHigh[b]
		if hi > len(spectrum) {
			hi = len(spectrum)
		}
		lo := d.binLow[b]
		if lo >= hi {
			continue
		}
		sum := 0.0
		for i := lo; i < hi; i++ {
			sum += spectrum[i]
		}
		energies[b] = sum / float64(hi-lo)
	}
	return d.ProcessBands(energies, dt)
}

// ProcessBands runs one detection step on pre-computed band energies
// (thump, punch, click order). dt is the elapsed time in seconds since the
// previous call.
func (d *KickDetector) ProcessBands(energies [3]float64, dt float64) KickState {
	if dt < 0 {
		dt = 0
	}
	d.sinceKick += dt

	onsets := 0
	confidence := 0.0
	totalWeight := 0.0
	for _, band := range kickBands {
		totalWeight += band.weight
	}

	for b := range kickBands {
		e := sanitize(energies[b])

		// Envelope follower, fast up slow down.
		coeff := d.opts.EnvelopeRelease
		if e > d.env[b] {
			coeff = d.opts.EnvelopeAttack
		}
		d.env[b] += coeff * (e - d.env[b])
		d.env[b] = sanitize(d.env[b])

		// Positive-only flux. The first tick after construction or Reset has
		// no previous envelope, so it contributes zero instead of a spurious
		// full-scale onset.
		flux := 0.0
		if d.primed {
			flux = d.env[b] - d.prevEnv[b]
			if flux < 0 {
				flux = 0
			}
		}
		d.prevEnv[b] = d.env[b]
		d.state.Envelopes[b] = d.env[b]
		d.state.Flux[b] = flux

		threshold := d.fluxAvg[b] * d.opts.FluxMultiplier
		if threshold < d.opts.FluxFloor {
			threshold = d.opts.FluxFloor
		}
		if flux > threshold {
			onsets++
			confidence += kickBands[b].weight * clamp01((flux-threshold)/threshold)
		}

		// The trailing average updates after the comparison so the sample
		// under test cannot raise the bar against itself.
		d.fluxAvg[b] = sanitize(d.fluxAvg[b]*kickFluxDecay + flux*(1-kickFluxDecay))
	}
	d.primed = true

	d.state.Detected = false
	d.state.Confidence = 0
	if onsets >= d.opts.MinCoincidentBands && d.sinceKick >= d.opts.MinInterval {
		d.state.Detected = true
		d.state.Confidence = clamp01(confidence / totalWeight)
		d.sinceKick = 0
	}
	d.state.TimeSinceKick = d.sinceKick
	return d.state
}

// State returns the detector output from the most recent process call.
func (d *KickDetector) State() KickState {
	return d.state
}

// Reset clears all envelope, flux and cooldown state. Call after a device or
// stream switch so history from the old signal cannot fire a phantom kick.
func (d *KickDetector) Reset() {
	d.env = [3]float64{}
	d.prevEnv = [3]float64{}
	d.fluxAvg = [3]float64{}
	d.primed = false
	d.sinceKick = 1.0
	d.state = KickState{TimeSinceKick: d.sinceKick}
}
