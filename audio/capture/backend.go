// Package capture owns the audio input device: enumerating backends,
// opening a session against one, and feeding captured PCM samples into a
// ring.Buffer for the analysis thread to consume. The backend registry
// mirrors the teacher's input package: each backend registers itself from
// an init() function, and main selects one by name at startup.
package capture

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// Device is one input device a Backend can open a Session against.
type Device interface {
	fmt.Stringer
}

// SessionConfig is the parameters a Session is opened with.
type SessionConfig struct {
	Device     Device
	SampleRate float64
	Channels   int
}

// Session is a started capture stream. Samples flow from Start's internal
// capture callback into dst for as long as the session runs; Stop tears it
// down. Implementations must never block the capture callback on dst being
// full: a full ring buffer drops samples rather than stalling the device.
type Session interface {
	// Start begins writing interleaved float32 samples into dst until the
	// session is stopped or the device errors out.
	Start(dst *SampleSink) error
	Stop() error
}

// Backend is one way of talking to the system's audio devices (PulseAudio,
// PortAudio, a raw exec-based capture tool, ...).
type Backend interface {
	// Init should do nothing if called more than once.
	Init() error
	Close() error

	Devices() ([]Device, error)
	DefaultDevice() (Device, error)
	Start(SessionConfig) (Session, error)
}

// NamedBackend pairs a Backend with the name it was registered under.
type NamedBackend struct {
	Name string
	Backend
}

// Backends holds every backend registered via RegisterBackend. Populated by
// the init() functions of imported backend packages; not thread-safe,
// mutate only at program startup.
var Backends []NamedBackend

// RegisterBackend registers a backend globally. Call from a package's
// init(), same as the teacher's input package.
func RegisterBackend(name string, b Backend) {
	Backends = append(Backends, NamedBackend{Name: name, Backend: b})
}

// Names returns every registered backend's name, for the list-backends
// subcommand.
func Names() []string {
	out := make([]string, len(Backends))
	for i, b := range Backends {
		out[i] = b.Name
	}
	return out
}

// Find returns the named backend, or nil if it isn't registered.
func Find(name string) Backend {
	for _, b := range Backends {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Has reports whether a backend with the given name is registered.
func Has(name string) bool {
	return Find(name) != nil
}

// Default picks a platform-appropriate backend name from the registered
// set, or "" if nothing suitable is available.
func Default() string {
	switch runtime.GOOS {
	case "linux":
		if Has("pulse") {
			return "pulse"
		}
	case "darwin", "windows":
		if Has("portaudio") {
			return "portaudio"
		}
	}
	if len(Backends) > 0 {
		return Backends[0].Name
	}
	return ""
}

// Init looks up and initializes the named backend.
func Init(name string) (Backend, error) {
	b := Find(name)
	if b == nil {
		return nil, fmt.Errorf("audio backend not found: %q; check the list-backends subcommand", name)
	}
	if err := b.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize audio backend")
	}
	return b, nil
}

// GetDevice resolves a device name against a backend, falling back to the
// backend's default device when name is empty.
func GetDevice(b Backend, name string) (Device, error) {
	if name == "" {
		d, err := b.DefaultDevice()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get default device")
		}
		return d, nil
	}

	devices, err := b.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}
	for _, d := range devices {
		if d.String() == name {
			return d, nil
		}
	}
	return nil, errors.Errorf("device %q not found; check the list-devices subcommand", name)
}
