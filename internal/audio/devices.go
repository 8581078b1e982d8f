// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"

	"djviz/internal/config"
)

// Initialize sets up the PortAudio subsystem.
// Must be called before any audio operations and paired with Terminate().
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
// Should be deferred immediately after Initialize().
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// paDevicesFunc is swappable for tests.
var paDevicesFunc = portaudio.Devices

// InputDevice retrieves the audio input device for the given device ID.
// If deviceID is config.MinDeviceID (-1), returns the system default input
// device. Returns an error if the ID is out of range.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == config.MinDeviceID {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	return devices[deviceID], nil
}

// FindInputDevice looks up an input device by case-insensitive name
// substring. Among matches it prefers monitor/loopback style devices, which
// carry the system playback signal rather than a microphone.
func FindInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	needle := strings.ToLower(name)
	var best *portaudio.DeviceInfo
	bestScore := -1
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		if !strings.Contains(strings.ToLower(d.Name), needle) {
			continue
		}
		if score := scoreInputDevice(d.Name); score > bestScore {
			best = d
			bestScore = score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no input device matching %q", name)
	}
	return best, nil
}

// scoreInputDevice ranks capture devices: loopback-style sources beat plain
// microphones when several devices match the same name.
func scoreInputDevice(name string) int {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "monitor"):
		return 3
	case strings.Contains(lower, "loopback"):
		return 3
	case strings.Contains(lower, "stereo mix"):
		return 2
	case strings.Contains(lower, "virtual"):
		return 1
	default:
		return 0
	}
}

// ListDevices prints information about all available audio devices: ID,
// name, direction, channel counts, default sample rate and latency range.
func ListDevices() error {
	devices, err := paDevicesFunc()
	if err != nil {
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}

	fmt.Printf("\nAvailable Audio Devices\n\n")

	for i, device := range devices {
		inputChannels := device.MaxInputChannels
		outputChannels := device.MaxOutputChannels

		deviceType := ""
		if inputChannels > 0 && outputChannels > 0 {
			deviceType = "Input/Output"
		} else if inputChannels > 0 {
			deviceType = "Input"
		} else if outputChannels > 0 {
			deviceType = "Output"
		}

		fmt.Printf("[%d] %s (%s)\n", i, device.Name, deviceType)
		fmt.Printf("    Input channels: %d, Output channels: %d\n", inputChannels, outputChannels)
		fmt.Printf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Printf("    Latency: Low=%.2fms, High=%.2fms\n",
			device.DefaultLowInputLatency.Seconds()*1000,
			device.DefaultHighInputLatency.Seconds()*1000)
		fmt.Println()
	}

	return nil
}
