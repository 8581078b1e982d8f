// SPDX-License-Identifier: MIT
// Package engine runs the fixed-cadence analysis loop: pull one window from
// the ingest, analyze it, detect kicks, update the scheduler and publish the
// frame. The loop is single-goroutine; everything it touches per tick is
// allocation-free.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"djviz/internal/analysis"
	"djviz/internal/audio"
	"djviz/internal/config"
	"djviz/internal/log"
	"djviz/internal/transport"
	"djviz/internal/viz"
)

// Options wires the engine's collaborators. Ingest, Analyzer, Kick and
// Scheduler are required; Recorder and Transports are optional.
type Options struct {
	Config     *config.Config
	Ingest     *audio.Ingest
	Analyzer   *analysis.SpectralAnalyzer
	Kick       *analysis.KickDetector
	Scheduler  *viz.Scheduler
	Recorder   *audio.Recorder
	Transports []transport.Transport
}

// Engine drives the analysis pipeline at the configured frame rate.
type Engine struct {
	cfg        *config.Config
	ingest     *audio.Ingest
	analyzer   *analysis.SpectralAnalyzer
	kick       *analysis.KickDetector
	scheduler  *viz.Scheduler
	recorder   *audio.Recorder
	transports []transport.Transport

	window     []float32
	deviceLost bool

	frameMu sync.RWMutex
	frame   analysis.AudioAnalysis
}

// New validates the wiring and returns a ready engine.
func New(opts Options) (*Engine, error) {
	if opts.Ingest == nil {
		return nil, fmt.Errorf("engine requires an ingest")
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("engine requires an analyzer")
	}
	if opts.Kick == nil {
		return nil, fmt.Errorf("engine requires a kick detector")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("engine requires a scheduler")
	}
	return &Engine{
		cfg:        opts.Config,
		ingest:     opts.Ingest,
		analyzer:   opts.Analyzer,
		kick:       opts.Kick,
		scheduler:  opts.Scheduler,
		recorder:   opts.Recorder,
		transports: opts.Transports,
		window:     make([]float32, opts.Ingest.WindowSize()),
	}, nil
}

// Tick advances the pipeline by one frame. dt is the elapsed time in seconds
// since the previous tick. A lost capture device degrades the tick (stale or
// silent window, warning logged once) instead of failing it; the error is
// still returned so the caller can schedule recovery.
func (e *Engine) Tick(dt float64) error {
	fresh, err := e.ingest.PullWindow(e.window)
	if err != nil {
		if !e.deviceLost {
			e.deviceLost = true
			log.Warnf("engine: capture device lost, continuing on stale audio: %v", err)
		}
	} else if e.deviceLost && fresh {
		// The stream came back; old envelope and flux state belongs to the
		// dead stream.
		e.deviceLost = false
		e.analyzer.Reset()
		e.kick.Reset()
		log.Infof("engine: capture device recovered")
	}

	frame := e.analyzer.Analyze(e.window, dt)
	frame.Kick = e.kick.ProcessSpectrum(e.analyzer.Magnitudes(), dt)
	if frame.Kick.Detected {
		e.analyzer.RegisterBeat()
	}

	e.scheduler.Update(&frame, time.Duration(dt*float64(time.Second)))

	if e.recorder != nil && fresh {
		if werr := e.recorder.Write(e.window); werr != nil {
			log.Errorf("engine: recording write failed: %v", werr)
		}
	}

	e.frameMu.Lock()
	e.frame = frame
	e.frameMu.Unlock()

	for _, t := range e.transports {
		if serr := t.Send(&frame); serr != nil {
			log.Debugf("engine: transport send failed: %v", serr)
		}
	}

	return err
}

// Run executes the tick loop at the configured frame rate until ctx is
// canceled. Device loss is logged inside Tick and does not stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	fps := config.DefaultTargetFPS
	if e.cfg != nil && e.cfg.Analysis.TargetFPS > 0 {
		fps = e.cfg.Analysis.TargetFPS
	}
	interval := time.Duration(float64(time.Second) / fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("engine: run loop started (%.0f fps)", fps)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Infof("engine: run loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			_ = e.Tick(dt) // Degraded ticks keep the loop alive.
		}
	}
}

// LatestFrame returns a copy of the most recent analysis frame. Safe to call
// from any goroutine; implements transport.FrameSource.
func (e *Engine) LatestFrame() analysis.AudioAnalysis {
	e.frameMu.RLock()
	defer e.frameMu.RUnlock()
	return e.frame
}

// Scheduler exposes the visualization scheduler for runtime controls
// (manual cycling, lock toggling).
func (e *Engine) Scheduler() *viz.Scheduler {
	return e.scheduler
}

// DeviceLost reports whether the engine is currently running on stale audio.
func (e *Engine) DeviceLost() bool {
	return e.deviceLost
}

// Ensure Engine can feed frame publishers.
var _ transport.FrameSource = (*Engine)(nil)
