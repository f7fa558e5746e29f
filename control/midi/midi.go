// Package midi listens for Control Change messages on a MIDI input port
// and pushes them into the input router's MIDI queue (spec §4.8/§6).
package midi

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/control"
)

// Binding maps one (channel, controller) pair to a router target. Channel
// 0 means omni (spec §6: "Channel 0 means omni").
type Binding struct {
	Channel    uint8              `json:"channel"`
	Controller uint8              `json:"controller"`
	Target     control.TargetKind `json:"target"`
	Layer      int                `json:"layer"`
	Name       string             `json:"name"`
	IsTrigger  bool               `json:"is_trigger"`
}

// LoadBindings reads a binding table from path. A missing file is not an
// error: it returns an empty table, since a fresh config directory has no
// bindings file yet.
func LoadBindings(path string) ([]Binding, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read MIDI bindings file")
	}

	var bindings []Binding
	if err := json.Unmarshal(data, &bindings); err != nil {
		return nil, errors.Wrap(err, "failed to parse MIDI bindings file")
	}
	return bindings, nil
}

// SaveBindings writes the binding table to path so it survives restarts.
func SaveBindings(path string, bindings []Binding) error {
	data, err := json.MarshalIndent(bindings, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode MIDI bindings")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write MIDI bindings file")
	}
	return nil
}

// Listener owns an open MIDI input port and a binding table.
type Listener struct {
	drv    *rtmididrv.Driver
	port   drivers.In
	stop   func()
	log    *slog.Logger
	queue  *control.Queue

	// bindingsMu guards bindings against concurrent SetBindings calls from
	// a control surface while onMessage runs on the MIDI driver's own
	// callback goroutine.
	bindingsMu sync.RWMutex
	bindings   []Binding

	// lastValue tracks CC values per (channel,controller) to detect the
	// 64-crossing rising edge a CC-as-trigger binding fires on.
	lastValue map[[2]uint8]uint8
}

// Open connects to the named MIDI input port (or the first available
// port if name is empty) and begins listening.
func Open(log *slog.Logger, queue *control.Queue, bindings []Binding, name string) (*Listener, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open rtmidi driver")
	}

	ins, err := drv.Ins()
	if err != nil {
		drv.Close()
		return nil, errors.Wrap(err, "failed to list MIDI inputs")
	}
	if len(ins) == 0 {
		drv.Close()
		return nil, errors.New("no MIDI input ports available")
	}

	var port drivers.In
	if name == "" {
		port = ins[0]
	} else {
		for _, in := range ins {
			if in.String() == name {
				port = in
				break
			}
		}
	}
	if port == nil {
		drv.Close()
		return nil, errors.Errorf("MIDI input %q not found", name)
	}
	if err := port.Open(); err != nil {
		drv.Close()
		return nil, errors.Wrapf(err, "failed to open MIDI port %q", port.String())
	}

	l := &Listener{
		drv:       drv,
		port:      port,
		log:       log,
		queue:     queue,
		bindings:  bindings,
		lastValue: make(map[[2]uint8]uint8),
	}

	stop, err := midi.ListenTo(port, l.onMessage, midi.HandleError(func(err error) {
		log.Warn("midi listener error", "err", err)
	}))
	if err != nil {
		port.Close()
		drv.Close()
		return nil, errors.Wrap(err, "failed to start MIDI listener")
	}
	l.stop = stop

	return l, nil
}

func (l *Listener) onMessage(msg midi.Message, _ int32) {
	var ch, cc, val uint8
	if !msg.GetControlChange(&ch, &cc, &val) {
		return
	}

	l.bindingsMu.RLock()
	bindings := l.bindings
	l.bindingsMu.RUnlock()

	for _, b := range bindings {
		if b.Channel != 0 && b.Channel != ch+1 {
			continue
		}
		if b.Controller != cc {
			continue
		}

		if b.IsTrigger {
			key := [2]uint8{ch, cc}
			prev := l.lastValue[key]
			l.lastValue[key] = val
			crossed := prev < 64 && val >= 64
			level := 0.0
			if crossed {
				level = 1.0
			}
			l.queue.Push(control.Message{
				Source: control.SourceMIDI,
				Target: control.TargetTrigger,
				Name:   b.Name,
				Float:  [4]float64{level},
			})
			continue
		}

		l.queue.Push(control.Message{
			Source: control.SourceMIDI,
			Target: b.Target,
			Layer:  b.Layer,
			Name:   b.Name,
			Float:  [4]float64{float64(val) / 127.0},
		})
	}
}

// SetBindings replaces the binding table used by onMessage.
func (l *Listener) SetBindings(bindings []Binding) {
	l.bindingsMu.Lock()
	l.bindings = bindings
	l.bindingsMu.Unlock()
}

// Close stops the listener and releases the MIDI port and driver.
func (l *Listener) Close() error {
	if l.stop != nil {
		l.stop()
	}
	if l.port != nil {
		l.port.Close()
	}
	return l.drv.Close()
}
