// Package web implements the WebSocket control surface (spec §6): a TCP
// server (DefaultPort 9002) exchanging a JSON message protocol with any
// number of connected clients. Non-upgrade requests go to the static
// handler passed to New, or get a 404 when it is nil; the package
// bundles no control page of its own. Incoming
// messages are pushed onto the router's Web queue; outgoing state
// snapshots are broadcast to every connected client.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/control"
)

// DefaultPort is the TCP port the control panel listens on (spec §6).
const DefaultPort = 9002

// inMessage is the wire shape of a client-to-server control message.
type inMessage struct {
	Type  string  `json:"type"`
	Layer int     `json:"layer,omitempty"`
	Name  string  `json:"name,omitempty"`
	Value float64 `json:"value,omitempty"`
	Bool  bool    `json:"bool,omitempty"`
	Path  string  `json:"path,omitempty"` // effect manifest path for load_effect
}

// outMessage is the wire shape of a server-to-client state broadcast.
type outMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is a WebSocket control-panel endpoint. A mutex guards the client
// registry since connect/disconnect/broadcast all happen off the audio
// and render hot paths (spec §5 permits a mutex here).
type Server struct {
	log   *slog.Logger
	queue *control.Queue

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte

	static http.Handler
}

// New builds a Server that pushes incoming messages onto queue and, if
// static is non-nil, serves it for any non-upgrade request (the control
// panel's HTML/JS page).
func New(log *slog.Logger, queue *control.Queue, static http.Handler) *Server {
	return &Server{
		log:     log,
		queue:   queue,
		clients: make(map[*websocket.Conn]chan []byte),
		static:  static,
	}
}

// ServeHTTP upgrades WebSocket requests and otherwise falls through to
// the static control-panel page.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		if s.static != nil {
			s.static.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	s.serveClient(conn)
}

func (s *Server) serveClient(conn *websocket.Conn) {
	out := make(chan []byte, 32)

	s.mu.Lock()
	s.clients[conn] = out
	s.mu.Unlock()

	go s.writePump(conn, out)
	s.readPump(conn, out)
}

func (s *Server) readPump(conn *websocket.Conn, out chan []byte) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		close(out)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var m inMessage
		if err := json.Unmarshal(data, &m); err != nil {
			s.log.Warn("web client sent invalid json", "err", err)
			continue
		}
		s.translate(m)
	}
}

func (s *Server) writePump(conn *websocket.Conn, out chan []byte) {
	for data := range out {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (s *Server) translate(m inMessage) {
	switch m.Type {
	case "set_param":
		s.queue.Push(control.Message{
			Source: control.SourceWeb,
			Target: control.TargetGlobalParam,
			Name:   m.Name,
			Float:  [4]float64{m.Value},
		})
	case "set_layer_param":
		s.queue.Push(control.Message{
			Source: control.SourceWeb,
			Target: control.TargetLayerParam,
			Layer:  m.Layer,
			Name:   m.Name,
			Float:  [4]float64{m.Value},
		})
	case "set_layer_opacity":
		s.queue.Push(control.Message{
			Source: control.SourceWeb,
			Target: control.TargetLayerOpacity,
			Layer:  m.Layer,
			Float:  [4]float64{m.Value},
		})
	case "set_layer_blend":
		s.queue.Push(control.Message{
			Source: control.SourceWeb,
			Target: control.TargetLayerBlend,
			Layer:  m.Layer,
			Float:  [4]float64{m.Value},
		})
	case "set_layer_enabled":
		s.queue.Push(control.Message{
			Source: control.SourceWeb,
			Target: control.TargetLayerEnabled,
			Layer:  m.Layer,
			Bool:   m.Bool,
		})
	case "set_postprocess_enabled":
		s.queue.Push(control.Message{
			Source: control.SourceWeb,
			Target: control.TargetPostProcessEnabled,
			Bool:   m.Bool,
		})
	case "trigger":
		s.queue.Push(control.Message{
			Source: control.SourceWeb,
			Target: control.TargetTrigger,
			Name:   m.Name,
			Float:  [4]float64{1.0},
		})
	case "load_effect":
		s.queue.Push(control.Message{
			Source: control.SourceWeb,
			Target: control.TargetLoadEffect,
			Layer:  m.Layer,
			Name:   m.Path,
		})
	case "select_layer":
		s.queue.Push(control.Message{
			Source: control.SourceWeb,
			Target: control.TargetSelectLayer,
			Layer:  m.Layer,
		})
	case "load_preset":
		s.queue.Push(control.Message{
			Source: control.SourceWeb,
			Target: control.TargetLoadPreset,
			Name:   m.Name,
		})
	default:
		s.log.Warn("web client sent unknown message type", "type", m.Type)
	}
}

// Broadcast sends a state snapshot to every connected client, dropping
// the message for any client whose outgoing buffer is full rather than
// blocking the caller.
func (s *Server) Broadcast(kind string, data any) error {
	payload, err := json.Marshal(outMessage{Type: kind, Data: data})
	if err != nil {
		return errors.Wrap(err, "failed to marshal broadcast")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, out := range s.clients {
		select {
		case out <- payload:
		default:
			s.log.Warn("dropping broadcast to slow web client", "remote", conn.RemoteAddr())
		}
	}
	return nil
}

// ListenAndServe starts the HTTP server on addr (e.g. ":9002"), blocking
// until it errors or is shut down.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}
	if err := srv.ListenAndServe(); err != nil {
		return errors.Wrap(err, "web server stopped")
	}
	return nil
}
