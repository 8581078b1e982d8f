// SPDX-License-Identifier: MIT
// Package cmd parses command line arguments into the engine configuration.
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"djviz/internal/config"
)

// ParseArgs builds the final configuration: built-in defaults, then the YAML
// config file (with environment overrides), then any flag explicitly set on
// the command line.
func ParseArgs() (*config.Config, error) {
	flagCfg := config.New()
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "djviz",
		Short:         "Real-time audio analysis and visualization scheduling engine",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			flagCfg.Command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML config file (default: config.yaml if present)")

	// Audio device configuration.
	rootCmd.PersistentFlags().IntVarP(&flagCfg.Audio.InputDevice, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use 'list' to see available devices.")
	rootCmd.PersistentFlags().StringVarP(&flagCfg.Audio.DeviceName, "device-name", "n", "",
		"Input device name substring (overrides --device)")
	rootCmd.PersistentFlags().IntVarP(&flagCfg.Audio.Channels, "channels", "c", config.DefaultChannels,
		"Number of channels to capture (1=mono, 2=stereo)")
	rootCmd.PersistentFlags().Float64VarP(&flagCfg.Audio.SampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&flagCfg.Audio.WindowSize, "window-size", "b", config.DefaultWindowSize,
		"Samples per analysis window (affects latency)")
	rootCmd.PersistentFlags().BoolVarP(&flagCfg.Audio.LowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Request low latency settings from the audio device")

	// Recording configuration.
	rootCmd.PersistentFlags().BoolVarP(&flagCfg.Recording.Enabled, "record", "r", false,
		"Record the captured mono stream to a WAV file")
	rootCmd.PersistentFlags().StringVarP(&flagCfg.Recording.OutputFile, "output", "o", "",
		"Recording output file name")

	// Scheduler configuration.
	rootCmd.PersistentFlags().BoolVar(&flagCfg.Scheduler.StartLocked, "locked", false,
		"Start with the visualization scheduler locked")

	// Diagnostics.
	rootCmd.PersistentFlags().StringVar(&flagCfg.LogLevel, "log-level", config.DefaultLogLevel,
		"Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagCfg.Debug, "debug", false,
		"Enable debug mode")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Command = flagCfg.Command

	// Explicit flags win over both file and environment.
	f := rootCmd.PersistentFlags()
	overrides := map[string]func(){
		"device":      func() { cfg.Audio.InputDevice = flagCfg.Audio.InputDevice },
		"device-name": func() { cfg.Audio.DeviceName = flagCfg.Audio.DeviceName },
		"channels":    func() { cfg.Audio.Channels = flagCfg.Audio.Channels },
		"sample-rate": func() { cfg.Audio.SampleRate = flagCfg.Audio.SampleRate },
		"window-size": func() { cfg.Audio.WindowSize = flagCfg.Audio.WindowSize },
		"low-latency": func() { cfg.Audio.LowLatency = flagCfg.Audio.LowLatency },
		"record":      func() { cfg.Recording.Enabled = flagCfg.Recording.Enabled },
		"output":      func() { cfg.Recording.OutputFile = flagCfg.Recording.OutputFile },
		"locked":      func() { cfg.Scheduler.StartLocked = flagCfg.Scheduler.StartLocked },
		"log-level":   func() { cfg.LogLevel = flagCfg.LogLevel },
		"debug":       func() { cfg.Debug = flagCfg.Debug },
	}
	for name, apply := range overrides {
		if f.Changed(name) {
			apply()
		}
	}

	if cfg.Recording.Enabled && cfg.Recording.OutputFile == "" {
		cfg.Recording.OutputFile = "recording-" +
			time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
