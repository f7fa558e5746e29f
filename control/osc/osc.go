// Package osc implements the OSC control surface (spec §6): a UDP server
// listening for `/phosphor/...` addresses, translating them into Messages
// on the router's OSC queue.
package osc

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/control"
)

// DefaultReceivePort is the UDP port OSC listens on (spec §6).
const DefaultReceivePort = 9000

// DefaultTransmitPort is the UDP port OSC state broadcasts go out on
// (spec §6); reserved for a future outbound feedback channel.
const DefaultTransmitPort = 9001

// Server receives OSC packets and pushes Messages onto a queue.
type Server struct {
	server *osc.Server
	log    *slog.Logger
	queue  *control.Queue
}

// New builds a Server bound to addr (e.g. "0.0.0.0:8000") that dispatches
// every `/phosphor/...` address into queue.
func New(log *slog.Logger, queue *control.Queue, addr string) *Server {
	s := &Server{log: log, queue: queue}

	d := osc.NewStandardDispatcher()
	d.AddMsgHandler("*", s.handle)
	s.server = &osc.Server{Addr: addr, Dispatcher: d}
	return s
}

// ListenAndServe blocks, serving OSC packets until the listener errors or
// is closed. Run it in its own goroutine.
func (s *Server) ListenAndServe() error {
	if err := s.server.ListenAndServe(); err != nil {
		return errors.Wrap(err, "osc server stopped")
	}
	return nil
}

// handle routes one incoming OSC message by address. Recognized address
// forms (spec §6):
//
//	/phosphor/param/{name} f
//	/phosphor/layer/{n}/param/{name} f
//	/phosphor/layer/{n}/opacity f
//	/phosphor/layer/{n}/blend f
//	/phosphor/layer/{n}/enabled f
//	/phosphor/trigger/{action} f
func (s *Server) handle(msg *osc.Message) {
	parts := strings.Split(strings.TrimPrefix(msg.Address, "/"), "/")
	if len(parts) < 2 || parts[0] != "phosphor" {
		return
	}

	arg, ok := firstFloat(msg)
	if !ok {
		s.log.Warn("osc message missing numeric argument", "address", msg.Address)
		return
	}

	switch parts[1] {
	case "param":
		if len(parts) != 3 {
			return
		}
		s.queue.Push(control.Message{
			Source: control.SourceOSC,
			Target: control.TargetGlobalParam,
			Name:   parts[2],
			Float:  [4]float64{arg},
		})
	case "trigger":
		if len(parts) != 3 {
			return
		}
		s.queue.Push(control.Message{
			Source: control.SourceOSC,
			Target: control.TargetTrigger,
			Name:   parts[2],
			Float:  [4]float64{arg},
		})
	case "layer":
		s.handleLayer(parts, arg)
	}
}

func (s *Server) handleLayer(parts []string, arg float64) {
	if len(parts) < 4 {
		return
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		return
	}

	switch parts[3] {
	case "param":
		if len(parts) != 5 {
			return
		}
		s.queue.Push(control.Message{
			Source: control.SourceOSC,
			Target: control.TargetLayerParam,
			Layer:  idx,
			Name:   parts[4],
			Float:  [4]float64{arg},
		})
	case "opacity":
		s.queue.Push(control.Message{
			Source: control.SourceOSC,
			Target: control.TargetLayerOpacity,
			Layer:  idx,
			Float:  [4]float64{arg},
		})
	case "blend":
		s.queue.Push(control.Message{
			Source: control.SourceOSC,
			Target: control.TargetLayerBlend,
			Layer:  idx,
			Float:  [4]float64{arg},
		})
	case "enabled":
		s.queue.Push(control.Message{
			Source: control.SourceOSC,
			Target: control.TargetLayerEnabled,
			Layer:  idx,
			Bool:   arg > 0.5,
		})
	}
}

func firstFloat(msg *osc.Message) (float64, bool) {
	if len(msg.Arguments) == 0 {
		return 0, false
	}
	switch v := msg.Arguments[0].(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Close shuts the server's listener down.
func (s *Server) Close() error {
	return s.server.CloseConnection()
}
