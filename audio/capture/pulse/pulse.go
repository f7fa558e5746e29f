// Package pulse is a PulseAudio capture backend. Device enumeration talks
// to the PulseAudio control protocol directly via lawl/pulseaudio; actual
// sample capture shells out to parec, PulseAudio's own recording CLI,
// since the control-protocol client has no raw streaming API to draw on.
// This split mirrors the teacher's parec backend.
package pulse

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sync"

	"github.com/lawl/pulseaudio"
	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/audio/capture"
)

func init() {
	capture.RegisterBackend("pulse", &Backend{})
}

// Backend talks to PulseAudio. A zero-value Backend is valid.
type Backend struct{}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return nil }

func (b *Backend) Devices() ([]capture.Device, error) {
	c, err := pulseaudio.NewClient()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to pulseaudio")
	}
	defer c.Close()

	sources, err := c.Sources()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pulseaudio sources")
	}

	devices := make([]capture.Device, len(sources))
	for i, s := range sources {
		devices[i] = Device(s.Name)
	}
	return devices, nil
}

func (b *Backend) DefaultDevice() (capture.Device, error) {
	return Device("@DEFAULT_SOURCE@"), nil
}

func (b *Backend) Start(cfg capture.SessionConfig) (capture.Session, error) {
	dv, ok := cfg.Device.(Device)
	if !ok {
		return nil, fmt.Errorf("pulse backend: invalid device type %T", cfg.Device)
	}
	if cfg.Channels < 1 || cfg.Channels > 2 {
		return nil, errors.New("pulse backend: only mono or stereo capture is supported")
	}
	return &Session{device: dv, cfg: cfg}, nil
}

// Device is a PulseAudio source name.
type Device string

func (d Device) String() string { return string(d) }

// Session runs parec as a subprocess and streams its stdout into a
// capture.SampleSink until Stop is called.
type Session struct {
	device Device
	cfg    capture.SessionConfig

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// Start launches parec and reads little-endian float32 frames from its
// stdout into dst until the process exits or Stop is called.
func (s *Session) Start(dst *capture.SampleSink) error {
	cmd := exec.Command(
		"parec",
		"--format=float32le",
		fmt.Sprintf("--rate=%.0f", s.cfg.SampleRate),
		fmt.Sprintf("--channels=%d", s.cfg.Channels),
		"-d", string(s.device),
	)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open parec stdout")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start parec")
	}

	s.mu.Lock()
	s.cmd = cmd
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(stdout, dst)
	return nil
}

func (s *Session) readLoop(r io.Reader, dst *capture.SampleSink) {
	defer close(s.done)

	const framesPerRead = 256
	raw := make([]byte, framesPerRead*s.cfg.Channels*4)
	samples := make([]float32, framesPerRead*s.cfg.Channels)

	br := bufio.NewReaderSize(r, len(raw)*4)
	for {
		n, err := io.ReadFull(br, raw)
		if n > 0 {
			count := n / 4
			for i := 0; i < count; i++ {
				bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
				samples[i] = math.Float32frombits(bits)
			}
			dst.Write(samples[:count])
		}
		if err != nil {
			return
		}
	}
}

// Stop terminates the parec subprocess and waits for the read loop to
// drain.
func (s *Session) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	done := s.done
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		return errors.Wrap(err, "failed to kill parec")
	}
	if done != nil {
		<-done
	}
	return cmd.Wait()
}
