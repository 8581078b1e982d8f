// SPDX-License-Identifier: MIT
package viz

import (
	"djviz/internal/analysis"
)

// SpectrumBars renders the eight normalized band levels as vertical bars.
// Column hue shifts from red (bass) to blue (treble); a detected kick
// brightens the whole frame for one tick.
type SpectrumBars struct {
	levels [analysis.NumBands]float64
	kick   bool
}

// NewSpectrumBars returns a spectrum bar visualization.
func NewSpectrumBars() *SpectrumBars {
	return &SpectrumBars{}
}

func (v *SpectrumBars) Name() string { return "spectrum-bars" }

func (v *SpectrumBars) Update(a *analysis.AudioAnalysis) {
	v.levels = a.BandsNormalized
	v.kick = a.Kick.Detected
}

func (v *SpectrumBars) Draw(s Surface, b Bounds) {
	s.Fill(b, Color{A: 255})

	barWidth := b.W / analysis.NumBands
	if barWidth < 1 {
		return
	}
	boost := uint8(0)
	if v.kick {
		boost = 60
	}
	for i, level := range v.levels {
		barHeight := int(level * float64(b.H))
		if barHeight == 0 {
			continue
		}
		hue := uint8(i * 255 / analysis.NumBands)
		s.Fill(Bounds{
			X: b.X + i*barWidth,
			Y: b.Y + b.H - barHeight,
			W: barWidth - 1,
			H: barHeight,
		}, Color{R: saturate(255-hue, boost), G: boost, B: saturate(hue, boost), A: 255})
	}
}

// EnergyPulse fills the frame with a single color whose brightness tracks
// overall energy and whose red component spikes with kick confidence. It is
// the low-energy fallback effect.
type EnergyPulse struct {
	energy float64
	kick   float64
}

// NewEnergyPulse returns an energy pulse visualization.
func NewEnergyPulse() *EnergyPulse {
	return &EnergyPulse{}
}

func (v *EnergyPulse) Name() string { return "energy-pulse" }

func (v *EnergyPulse) Update(a *analysis.AudioAnalysis) {
	v.energy = a.Energy
	// Confidence decays with time since the kick so the pulse fades rather
	// than cutting off.
	v.kick = a.Kick.Confidence * clampUnit(1-a.Kick.TimeSinceKick*4)
}

func (v *EnergyPulse) Draw(s Surface, b Bounds) {
	base := uint8(v.energy * 200)
	red := saturate(base, uint8(v.kick*55))
	s.Fill(b, Color{R: red, G: base / 2, B: base, A: 255})
}

func saturate(v, add uint8) uint8 {
	if int(v)+int(add) > 255 {
		return 255
	}
	return v + add
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
