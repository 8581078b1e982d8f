// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/eiannone/keyboard"
	"github.com/gordonklaus/portaudio"

	"djviz/cmd"
	"djviz/internal/analysis"
	"djviz/internal/audio"
	"djviz/internal/config"
	"djviz/internal/engine"
	"djviz/internal/log"
	"djviz/internal/transport"
	"djviz/internal/transport/udp"
	"djviz/internal/viz"
)

func main() {
	// One core for the render loop, one for everything else (transports,
	// audio callback, OS signals).
	runtime.GOMAXPROCS(2)

	if err := run(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	// --- Cold phase: configuration and device setup. ---
	cfg, err := cmd.ParseArgs()
	if err != nil {
		return err
	}

	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	if cfg.Debug {
		level = log.LevelDebug
	}
	log.SetLevel(level)

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := audio.Terminate(); err != nil {
			log.Warnf("shutdown: %v", err)
		}
	}()

	if cfg.Command == "list" {
		return audio.ListDevices()
	}

	device, err := resolveDevice(cfg)
	if err != nil {
		return err
	}

	ring, err := audio.NewRing(int(cfg.Audio.SampleRate * config.DefaultRingSeconds))
	if err != nil {
		return err
	}
	capture, err := audio.NewCapture(device, cfg.Audio, ring)
	if err != nil {
		return err
	}
	defer capture.Close()

	ingest, err := audio.NewIngest(ring, capture, cfg.Audio.WindowSize, cfg.Audio.StallTimeout)
	if err != nil {
		return err
	}

	fftWindow, err := analysis.ParseWindowFunc(cfg.Analysis.FFTWindow)
	if err != nil {
		return err
	}
	analyzer, err := analysis.NewSpectralAnalyzer(analysis.Options{
		SampleRate:      cfg.Audio.SampleRate,
		WindowSize:      cfg.Audio.WindowSize,
		FFTSize:         cfg.Analysis.FFTSize,
		Window:          fftWindow,
		BandAttack:      cfg.Analysis.BandAttack,
		BandDecay:       cfg.Analysis.BandDecay,
		TransitionDelta: cfg.Analysis.TransitionDelta,
		TransitionRearm: cfg.Analysis.TransitionRearm,
	})
	if err != nil {
		return err
	}

	kick, err := analysis.NewKickDetector(analysis.KickOptions{
		SampleRate:         cfg.Audio.SampleRate,
		FFTSize:            cfg.Analysis.FFTSize,
		MinInterval:        cfg.Kick.MinInterval.Seconds(),
		FluxMultiplier:     cfg.Kick.FluxMultiplier,
		MinCoincidentBands: cfg.Kick.MinCoincidentBands,
		EnvelopeAttack:     cfg.Kick.EnvelopeAttack,
		EnvelopeRelease:    cfg.Kick.EnvelopeRelease,
	})
	if err != nil {
		return err
	}

	registry := viz.NewRegistry()
	for _, v := range []viz.Visualization{viz.NewSpectrumBars(), viz.NewEnergyPulse()} {
		if err := registry.Register(v); err != nil {
			return err
		}
	}
	scheduler, err := viz.NewScheduler(registry, cfg.Scheduler)
	if err != nil {
		return err
	}

	var recorder *audio.Recorder
	if cfg.Recording.Enabled {
		recorder, err = audio.NewRecorder(cfg.Audio.SampleRate, cfg.Recording.BitDepth)
		if err != nil {
			return err
		}
		if err := recorder.Start(cfg.Recording.OutputFile); err != nil {
			return err
		}
	}

	var transports []transport.Transport
	if cfg.Transport.WebSocketEnabled {
		transports = append(transports, transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr))
	}

	eng, err := engine.New(engine.Options{
		Config:     cfg,
		Ingest:     ingest,
		Analyzer:   analyzer,
		Kick:       kick,
		Scheduler:  scheduler,
		Recorder:   recorder,
		Transports: transports,
	})
	if err != nil {
		return err
	}

	var publisher *udp.Publisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		publisher, err = udp.NewPublisher(cfg.Transport.UDPSendInterval, sender, eng)
		if err != nil {
			sender.Close()
			return err
		}
	}

	// --- Hot phase: capture, publish and run the analysis loop. ---
	if err := capture.Start(); err != nil {
		return err
	}
	log.Infof("capturing from %q", capture.DeviceName())

	if publisher != nil {
		publisher.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Infof("received %s, shutting down", sig)
		cancel()
	}()

	go watchKeyboard(ctx, cancel, eng)

	err = eng.Run(ctx)
	if err == context.Canceled {
		err = nil
	}

	// --- Shutdown phase: drain and release in reverse order. ---
	if publisher != nil {
		if cerr := publisher.Close(); cerr != nil {
			log.Warnf("shutdown: %v", cerr)
		}
	}
	for _, t := range transports {
		if cerr := t.Close(); cerr != nil {
			log.Warnf("shutdown: %v", cerr)
		}
	}
	if recorder != nil {
		if cerr := recorder.Stop(); cerr != nil {
			log.Warnf("shutdown: %v", cerr)
		}
	}
	if cerr := capture.Stop(); cerr != nil {
		log.Warnf("shutdown: %v", cerr)
	}
	return err
}

// resolveDevice picks the capture device: by name substring when configured,
// by index otherwise.
func resolveDevice(cfg *config.Config) (*portaudio.DeviceInfo, error) {
	if cfg.Audio.DeviceName != "" {
		return audio.FindInputDevice(cfg.Audio.DeviceName)
	}
	return audio.InputDevice(cfg.Audio.InputDevice)
}

// watchKeyboard maps live key presses to scheduler controls:
//
//	space  cycle to a random visualization and resume auto-cycling
//	l      toggle the scheduler lock on the current visualization
//	1-9    lock a specific visualization by number
//	q/Esc  quit
//
// Keyboard capture is best effort; without a TTY the engine still runs and
// reacts to signals.
func watchKeyboard(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine) {
	if err := keyboard.Open(); err != nil {
		log.Debugf("keyboard unavailable: %v", err)
		return
	}
	defer keyboard.Close()

	for {
		char, key, err := keyboard.GetKey()
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch {
		case key == keyboard.KeyEsc || char == 'q':
			cancel()
			return
		case key == keyboard.KeySpace:
			eng.Scheduler().CycleNow(eng.LatestFrame().Energy)
			current, _ := eng.Scheduler().Current()
			log.Infof("cycled to %s", current.Name())
		case char == 'l':
			eng.Scheduler().ToggleLock()
		case char >= '1' && char <= '9':
			if err := eng.Scheduler().Lock(int(char - '1')); err != nil {
				log.Warnf("%v", err)
			}
		}
	}
}
