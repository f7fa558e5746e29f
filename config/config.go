// Package config resolves Phosphor's user configuration directory and
// the flat engine-startup settings struct (spec §6 "Persisted state"),
// in the same zero-config-then-sanitize style as the teacher's own
// config package.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// AppDirName is the subdirectory created under the OS user config
// directory (e.g. ~/.config/phosphor on Linux).
const AppDirName = "phosphor"

// Config is the flat set of engine-startup parameters, populated from
// defaults and then overridden by CLI flags (cmd/phosphor).
type Config struct {
	// Backend is the audio capture backend name from list-backends.
	Backend string
	// Device is the capture device name from list-devices.
	Device string
	// SampleRate is the rate at which audio samples are read.
	SampleRate float64
	// ChannelCount is the number of input channels captured (1 or 2).
	ChannelCount int
	// AnalysisHz is how many times per second the analysis thread runs.
	AnalysisHz int
	// RingSeconds sizes the capture ring buffer's backing store.
	RingSeconds float64

	// OSCReceivePort is the UDP port the OSC server listens on.
	OSCReceivePort int
	// OSCTransmitPort is the UDP port reserved for outbound OSC state.
	OSCTransmitPort int
	// WebPort is the TCP port the WebSocket control surface listens on.
	WebPort int

	// MIDIDevice is the MIDI input port name to auto-connect to, or
	// empty to use the first available port.
	MIDIDevice string

	// Width and Height are the render surface's pixel dimensions.
	Width  uint32
	Height uint32

	// AudioTest runs the audio pipeline only, with no GPU surface.
	AudioTest bool
	// AudioDebug enables per-read verbose audio logging (spec §6
	// PHOSPHOR_AUDIO_DEBUG=1).
	AudioDebug bool
}

// NewZeroConfig returns Phosphor's default configuration.
func NewZeroConfig() Config {
	return Config{
		SampleRate:      44100,
		ChannelCount:    2,
		AnalysisHz:      60,
		RingSeconds:     4,
		OSCReceivePort:  9000,
		OSCTransmitPort: 9001,
		WebPort:         9002,
		Width:           1920,
		Height:          1080,
	}
}

// Sanitize validates and clamps the configuration in place, the same
// pattern as the teacher's Config.Sanitize.
func (cfg *Config) Sanitize() error {
	switch {
	case cfg.ChannelCount > 2:
		return errors.New("too many channels (2 max)")
	case cfg.ChannelCount < 1:
		return errors.New("too few channels (1 min)")
	case cfg.SampleRate < 8000:
		return errors.New("sample rate too low (8000 min)")
	case cfg.AnalysisHz < 1:
		return errors.New("analysis rate too low (1 min)")
	case cfg.Width < 1 || cfg.Height < 1:
		return errors.New("render surface must be at least 1x1")
	}
	return nil
}

// Dir returns the Phosphor user config directory, creating it if it
// does not already exist.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve user config directory")
	}
	dir := filepath.Join(base, AppDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create config directory %q", dir)
	}
	return dir, nil
}

// PresetsDir returns (and creates) the presets subdirectory.
func PresetsDir() (string, error) {
	return subDir("presets")
}

// EffectsDir returns (and creates) the user effect-manifest/shader
// subdirectory.
func EffectsDir() (string, error) {
	return subDir("effects")
}

// BindingsPath returns the path to the MIDI/OSC binding table file.
func BindingsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bindings.json"), nil
}

func subDir(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %q", full)
	}
	return full, nil
}
