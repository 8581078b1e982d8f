// SPDX-License-Identifier: MIT
// Package analysis turns raw sample windows into per-frame spectral features
// and onset signals. The SpectralAnalyzer produces an AudioAnalysis snapshot
// every tick; the KickDetector layers multi-band onset detection on top of the
// same magnitude spectrum. All per-tick paths are allocation-free.
package analysis

// NumBands is the number of aggregated frequency bands in every analysis frame.
const NumBands = 8

// bandEdges are the inclusive-exclusive Hz boundaries of the NumBands bands:
// sub-bass, bass, low-mid, mid, upper-mid, presence, brilliance-low,
// brilliance-high.
var bandEdges = [NumBands + 1]float64{20, 60, 250, 500, 2000, 4000, 6000, 12000, 20000}

// AudioAnalysis is a single frame of analysis output. Every scalar field is
// in [0, 1] except BPM and DominantBand. A value of the struct is plain data:
// it can be copied, serialized and handed to other goroutines freely.
type AudioAnalysis struct {
	// Bands holds smoothed per-band levels on a fixed dB reference scale, so
	// identical input always maps to identical output.
	Bands [NumBands]float64 `json:"bands"`
	// BandsNormalized holds the same bands rescaled against a slowly drifting
	// running min/max, useful for visuals that want full-range motion at any
	// playback volume. Thresholding should use Bands instead.
	BandsNormalized [NumBands]float64 `json:"bands_normalized"`

	Energy     float64 `json:"energy"`      // Smoothed overall level (max across raw bands).
	EnergyDiff float64 `json:"energy_diff"` // Energy minus its lagged copy; positive while rising.
	RiseRate   float64 `json:"rise_rate"`   // Positive part of EnergyDiff, rescaled to [0,1].

	Bass   float64 `json:"bass"`   // Average of bands 0-1.
	Mids   float64 `json:"mids"`   // Average of bands 2-4.
	Treble float64 `json:"treble"` // Average of bands 5-7.

	// TransitionDetected is an edge-triggered flag: true only on the first
	// frame a sustained energy shift is recognized, then false until the
	// detector re-arms.
	TransitionDetected bool `json:"transition_detected"`

	BPM          float64 `json:"bpm"`           // Tempo estimate, 0 until enough beats observed.
	DominantBand int     `json:"dominant_band"` // Index of the strongest band, updated at most 1/s.

	Kick KickState `json:"kick"` // Latest kick detector state.
}

// KickState is the query surface of the kick detector for one frame.
type KickState struct {
	Detected      bool       `json:"detected"`
	Confidence    float64    `json:"confidence"`      // [0,1], 0 when Detected is false.
	TimeSinceKick float64    `json:"time_since_kick"` // Seconds since the last detection.
	Envelopes     [3]float64 `json:"envelopes"`       // Per-band envelope followers (sub, low-mid, attack).
	Flux          [3]float64 `json:"flux"`            // Per-band positive spectral flux.
}
