// SPDX-License-Identifier: MIT
package viz

import (
	"testing"
	"time"

	"djviz/internal/analysis"
	"djviz/internal/config"
)

// stubViz records how often it was updated and drawn.
type stubViz struct {
	name    string
	updates int
	draws   int
}

func (v *stubViz) Name() string                     { return v.name }
func (v *stubViz) Update(a *analysis.AudioAnalysis) { v.updates++ }
func (v *stubViz) Draw(s Surface, b Bounds)         { v.draws++ }

func newTestScheduler(t *testing.T, cfg config.SchedulerConfig, names ...string) (*Scheduler, []*stubViz) {
	t.Helper()
	if cfg.Dwell == 0 {
		cfg.Dwell = 750 * time.Millisecond
	}
	if cfg.TrebleThreshold == 0 {
		cfg.TrebleThreshold = 0.75
	}
	stubs := make([]*stubViz, len(names))
	reg := NewRegistry()
	for i, n := range names {
		stubs[i] = &stubViz{name: n}
		if err := reg.Register(stubs[i]); err != nil {
			t.Fatalf("failed to register %q: %v", n, err)
		}
	}
	s, err := NewScheduler(reg, cfg)
	if err != nil {
		t.Fatalf("failed to build scheduler: %v", err)
	}
	return s, stubs
}

func transitionFrame() *analysis.AudioAnalysis {
	return &analysis.AudioAnalysis{TransitionDetected: true, Energy: 0.5}
}

func quietFrame() *analysis.AudioAnalysis {
	return &analysis.AudioAnalysis{Energy: 0.3}
}

const tick = time.Second / 60

func TestNewScheduler_Validation(t *testing.T) {
	if _, err := NewScheduler(NewRegistry(), config.SchedulerConfig{Dwell: time.Second}); err == nil {
		t.Error("expected error for empty registry")
	}

	reg := NewRegistry(&stubViz{name: "a"}, &stubViz{name: "b"})
	cfg := config.SchedulerConfig{Dwell: time.Second, EnergyRanges: [][2]float64{{0, 1}}}
	if _, err := NewScheduler(reg, cfg); err == nil {
		t.Error("expected error for mismatched energy ranges")
	}
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&stubViz{name: "bars"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register(&stubViz{name: "bars"}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestScheduler_LockedNeverSwitches(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{StartLocked: true}, "a", "b", "c")

	_, before := s.Current()
	// Hammer it with transitions far past the dwell.
	for iter := 0; iter < 600; iter++ {
		s.Update(transitionFrame(), tick)
	}
	if _, after := s.Current(); after != before {
		t.Errorf("locked scheduler switched from %d to %d", before, after)
	}
	if s.State() != Locked {
		t.Errorf("state = %v, want Locked", s.State())
	}
}

func TestScheduler_SwitchNeedsSignalAndDwell(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{CycleOnTreble: true}, "a", "b", "c")

	// Dwell elapsed but no signal: no switch.
	_, before := s.Current()
	for iter := 0; iter < 120; iter++ { // 2 s of quiet.
		s.Update(quietFrame(), tick)
	}
	if _, after := s.Current(); after != before {
		t.Fatal("scheduler switched without a signal")
	}

	// Signal but dwell not elapsed: the first transition right after a
	// switch must not cascade.
	s.Update(transitionFrame(), tick) // Switches (dwell long elapsed).
	_, first := s.Current()
	if first == before {
		t.Fatal("expected a switch on transition after dwell")
	}
	s.Update(transitionFrame(), tick)
	if _, second := s.Current(); second != first {
		t.Error("scheduler switched again inside the dwell window")
	}
}

func TestScheduler_DwellSeparation(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{}, "a", "b", "c")
	dwell := 750 * time.Millisecond

	// Constant transition pressure: switches must still be >= dwell apart.
	var elapsed, lastSwitch time.Duration
	_, prev := s.Current()
	switches := 0
	for iter := 0; iter < 600; iter++ {
		s.Update(transitionFrame(), tick)
		elapsed += tick
		if _, cur := s.Current(); cur != prev {
			if switches > 0 || lastSwitch != 0 {
				if gap := elapsed - lastSwitch; gap < dwell {
					t.Fatalf("switches %s apart, want >= %s", gap, dwell)
				}
			}
			lastSwitch = elapsed
			prev = cur
			switches++
		}
	}
	if switches == 0 {
		t.Error("expected at least one switch under constant transitions")
	}
}

func TestScheduler_NoImmediateRepeat(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{}, "a", "b")

	// With two entries the pick is deterministic: always the other one.
	_, prev := s.Current()
	for iter := 0; iter < 20; iter++ {
		s.CycleNow(0.5)
		_, cur := s.Current()
		if cur == prev {
			t.Fatal("scheduler re-selected the current visualization")
		}
		prev = cur
	}
}

func TestScheduler_TrebleGate(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{CycleOnTreble: true, TrebleThreshold: 0.75}, "a", "b", "c")

	hot := &analysis.AudioAnalysis{Treble: 0.8, Energy: 0.5}
	_, before := s.Current()
	for iter := 0; iter < 60; iter++ {
		s.Update(hot, tick)
	}
	if _, after := s.Current(); after == before {
		t.Error("treble above threshold did not trigger a switch")
	}

	// With the treble gate disabled the same frames do nothing.
	s2, _ := newTestScheduler(t, config.SchedulerConfig{CycleOnTreble: false}, "a", "b", "c")
	_, before = s2.Current()
	for iter := 0; iter < 120; iter++ {
		s2.Update(hot, tick)
	}
	if _, after := s2.Current(); after != before {
		t.Error("treble triggered a switch with CycleOnTreble disabled")
	}
}

func TestScheduler_CycleNowUnlocks(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{StartLocked: true}, "a", "b")

	_, before := s.Current()
	s.CycleNow(0.5)
	if _, after := s.Current(); after == before {
		t.Error("CycleNow did not switch")
	}
	if s.State() != AutoCycling {
		t.Errorf("state = %v after CycleNow, want AutoCycling", s.State())
	}
}

func TestScheduler_LockPinsTarget(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{}, "a", "b", "c")

	if err := s.Lock(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, cur := s.Current(); cur != 2 {
		t.Errorf("current = %d after Lock(2), want 2", cur)
	}
	if s.State() != Locked {
		t.Errorf("state = %v, want Locked", s.State())
	}
	if err := s.Lock(5); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestScheduler_EnergyRangesFilterSelection(t *testing.T) {
	cfg := config.SchedulerConfig{
		// Entry 0: calm only, entry 1: mid, entry 2: loud only.
		EnergyRanges: [][2]float64{{0, 0.3}, {0.2, 0.7}, {0.7, 1.0}},
	}
	s, _ := newTestScheduler(t, cfg, "calm", "mid", "loud")

	// At high energy only "loud" qualifies (current is "calm").
	s.CycleNow(0.9)
	if _, cur := s.Current(); cur != 2 {
		t.Errorf("high-energy pick = %d, want 2", cur)
	}

	// At an energy matching nothing, the filter is dropped and some other
	// visualization is still selected.
	s.intn = func(n int) int { return 0 }
	s.CycleNow(1.0) // Only "loud" matches but it is current; fallback pool.
	if _, cur := s.Current(); cur == 2 {
		t.Error("scheduler stuck on current when the energy filter emptied")
	}
}

func TestScheduler_OverlayRules(t *testing.T) {
	s, stubs := newTestScheduler(t, config.SchedulerConfig{OverlayEnabled: true}, "a", "b", "c")

	_, cur := s.Current()
	if err := s.SetOverlay(cur); err == nil {
		t.Error("overlay duplicating the primary was accepted")
	}
	if err := s.SetOverlay((cur + 1) % 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Overlay() == nil {
		t.Fatal("overlay slot empty after SetOverlay")
	}

	// Both slots receive every frame.
	s.Update(quietFrame(), tick)
	overlayIdx := (cur + 1) % 3
	if stubs[cur].updates == 0 || stubs[overlayIdx].updates == 0 {
		t.Error("Update did not reach both primary and overlay")
	}

	// Forcing the primary onto the overlay index clears the overlay.
	if err := s.Lock(overlayIdx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Overlay() != nil {
		t.Error("overlay still set after primary took its index")
	}

	// Disabled overlay rejects assignment.
	s2, _ := newTestScheduler(t, config.SchedulerConfig{OverlayEnabled: false}, "a", "b")
	if err := s2.SetOverlay(1); err == nil {
		t.Error("expected error with overlay disabled")
	}
}

func TestScheduler_UpdateReachesLockedPrimary(t *testing.T) {
	s, stubs := newTestScheduler(t, config.SchedulerConfig{StartLocked: true}, "a", "b")

	for iter := 0; iter < 10; iter++ {
		s.Update(quietFrame(), tick)
	}
	_, cur := s.Current()
	if stubs[cur].updates != 10 {
		t.Errorf("locked primary received %d updates, want 10", stubs[cur].updates)
	}
}

func TestScheduler_DrawOrder(t *testing.T) {
	s, stubs := newTestScheduler(t, config.SchedulerConfig{OverlayEnabled: true}, "a", "b")
	_, cur := s.Current()
	other := (cur + 1) % 2
	if err := s.SetOverlay(other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Draw(nil, Bounds{W: 100, H: 100})
	if stubs[cur].draws != 1 || stubs[other].draws != 1 {
		t.Errorf("draw counts: primary=%d overlay=%d, want 1/1", stubs[cur].draws, stubs[other].draws)
	}
}
