// SPDX-License-Identifier: MIT
package viz

import (
	"fmt"
	"math/rand"
	"time"

	"djviz/internal/analysis"
	"djviz/internal/config"
	"djviz/internal/log"
)

// State describes whether the scheduler may switch on its own.
type State int

const (
	// AutoCycling lets musical events (transitions, treble spikes) switch
	// the primary visualization.
	AutoCycling State = iota
	// Locked pins the current primary until unlocked or cycled manually.
	Locked
)

// String returns the state name.
func (s State) String() string {
	if s == Locked {
		return "Locked"
	}
	return "AutoCycling"
}

// Scheduler owns the primary and overlay visualization slots and decides
// when to rotate the primary. Single-consumer: all methods are called from
// the render loop goroutine.
type Scheduler struct {
	registry *Registry
	cfg      config.SchedulerConfig

	state       State
	current     int
	overlay     int // Index of the secondary slot, -1 when empty.
	sinceSwitch time.Duration

	// intn is the random source for selection, swappable in tests.
	intn func(n int) int
}

// NewScheduler builds a scheduler over the registry. EnergyRanges, when
// configured, must be parallel to the registry.
func NewScheduler(registry *Registry, cfg config.SchedulerConfig) (*Scheduler, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, fmt.Errorf("scheduler requires at least one visualization")
	}
	if n := len(cfg.EnergyRanges); n != 0 && n != registry.Len() {
		return nil, fmt.Errorf("energy ranges (%d) do not match registered visualizations (%d)",
			n, registry.Len())
	}

	s := &Scheduler{
		registry: registry,
		cfg:      cfg,
		overlay:  -1,
		intn:     rand.Intn,
	}
	if cfg.StartLocked {
		s.state = Locked
	}
	return s, nil
}

// Update forwards the analysis frame to the active slots and, while
// AutoCycling, rotates the primary when the music asks for it. A switch
// needs both a signal (transition detected, or treble at or above the
// configured threshold) and the dwell time elapsed since the last switch, so
// busy music cannot strobe through the catalog.
func (s *Scheduler) Update(a *analysis.AudioAnalysis, dt time.Duration) {
	s.sinceSwitch += dt

	s.registry.At(s.current).Update(a)
	if s.overlay >= 0 {
		s.registry.At(s.overlay).Update(a)
	}

	if s.state == Locked {
		return
	}
	signal := a.TransitionDetected ||
		(s.cfg.CycleOnTreble && a.Treble >= s.cfg.TrebleThreshold)
	if !signal || s.sinceSwitch < s.cfg.Dwell {
		return
	}
	s.switchTo(s.pick(a.Energy))
}

// pick selects the next primary at random, never the current one. When
// energy ranges are configured, candidates outside the current energy are
// filtered out first; if that empties the pool the filter is dropped rather
// than leaving the scheduler stuck.
func (s *Scheduler) pick(energy float64) int {
	candidates := make([]int, 0, s.registry.Len())
	if len(s.cfg.EnergyRanges) == s.registry.Len() {
		for i, n := 0, s.registry.Len(); i < n; i++ {
			if i == s.current {
				continue
			}
			r := s.cfg.EnergyRanges[i]
			if energy >= r[0] && energy <= r[1] {
				candidates = append(candidates, i)
			}
		}
	}
	if len(candidates) == 0 {
		for i, n := 0, s.registry.Len(); i < n; i++ {
			if i != s.current {
				candidates = append(candidates, i)
			}
		}
	}
	if len(candidates) == 0 {
		return s.current // Single-entry registry.
	}
	return candidates[s.intn(len(candidates))]
}

func (s *Scheduler) switchTo(idx int) {
	if idx == s.current {
		return
	}
	log.Debugf("viz: switching %s -> %s",
		s.registry.At(s.current).Name(), s.registry.At(idx).Name())
	s.current = idx
	s.sinceSwitch = 0
	// The overlay must never duplicate the primary.
	if s.overlay == idx {
		s.overlay = -1
	}
}

// CycleNow switches to a random other visualization immediately and returns
// the scheduler to AutoCycling. This is the manual "next" action.
func (s *Scheduler) CycleNow(energy float64) {
	s.state = AutoCycling
	s.switchTo(s.pick(energy))
}

// Lock pins the given visualization as primary.
func (s *Scheduler) Lock(idx int) error {
	if idx < 0 || idx >= s.registry.Len() {
		return fmt.Errorf("visualization index %d out of range", idx)
	}
	s.switchTo(idx)
	s.state = Locked
	return nil
}

// ToggleLock flips between Locked and AutoCycling on the current primary.
func (s *Scheduler) ToggleLock() State {
	if s.state == Locked {
		s.state = AutoCycling
	} else {
		s.state = Locked
	}
	log.Infof("viz: scheduler %s on %s", s.state, s.registry.At(s.current).Name())
	return s.state
}

// SetOverlay places a secondary visualization. It cannot equal the primary.
func (s *Scheduler) SetOverlay(idx int) error {
	if !s.cfg.OverlayEnabled {
		return fmt.Errorf("overlay slot is disabled")
	}
	if idx < 0 || idx >= s.registry.Len() {
		return fmt.Errorf("visualization index %d out of range", idx)
	}
	if idx == s.current {
		return fmt.Errorf("overlay cannot duplicate the primary visualization")
	}
	s.overlay = idx
	return nil
}

// ClearOverlay empties the overlay slot.
func (s *Scheduler) ClearOverlay() {
	s.overlay = -1
}

// Current returns the primary visualization and its index.
func (s *Scheduler) Current() (Visualization, int) {
	return s.registry.At(s.current), s.current
}

// Overlay returns the secondary visualization, or nil when the slot is
// empty.
func (s *Scheduler) Overlay() Visualization {
	if s.overlay < 0 {
		return nil
	}
	return s.registry.At(s.overlay)
}

// State returns the current scheduling state.
func (s *Scheduler) State() State {
	return s.state
}

// Draw renders the primary and then the overlay into the surface. The host
// composites however it likes; this default just draws overlay-last.
func (s *Scheduler) Draw(surface Surface, b Bounds) {
	s.registry.At(s.current).Draw(surface, b)
	if s.overlay >= 0 {
		s.registry.At(s.overlay).Draw(surface, b)
	}
}
