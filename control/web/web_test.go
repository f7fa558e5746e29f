package web

import (
	"log/slog"
	"testing"

	"github.com/phosphorvj/phosphor/control"
)

func newTestServer() (*Server, *control.Queue) {
	q := control.NewQueue()
	return New(slog.Default(), q, nil), q
}

func TestTranslateParam(t *testing.T) {
	s, q := newTestServer()
	s.translate(inMessage{Type: "set_param", Name: "chroma", Value: 0.5})

	out := q.DrainInto(nil)
	if len(out) != 1 || out[0].Target != control.TargetGlobalParam || out[0].Name != "chroma" {
		t.Fatalf("unexpected drained messages: %+v", out)
	}
}

func TestTranslateLayerEnabled(t *testing.T) {
	s, q := newTestServer()
	s.translate(inMessage{Type: "set_layer_enabled", Layer: 3, Bool: false})

	out := q.DrainInto(nil)
	if len(out) != 1 || out[0].Target != control.TargetLayerEnabled || out[0].Layer != 3 || out[0].Bool != false {
		t.Fatalf("unexpected drained messages: %+v", out)
	}
}

func TestTranslateTrigger(t *testing.T) {
	s, q := newTestServer()
	s.translate(inMessage{Type: "trigger", Name: "next_effect"})

	out := q.DrainInto(nil)
	if len(out) != 1 || out[0].Target != control.TargetTrigger || out[0].Name != "next_effect" {
		t.Fatalf("unexpected drained messages: %+v", out)
	}
}

func TestTranslateUnknownTypeIsIgnored(t *testing.T) {
	s, q := newTestServer()
	s.translate(inMessage{Type: "bogus"})

	if out := q.DrainInto(nil); len(out) != 0 {
		t.Fatalf("expected no messages, got %+v", out)
	}
}

func TestBroadcastWithNoClientsIsNoOp(t *testing.T) {
	s, _ := newTestServer()
	// No connected clients: Broadcast should be a no-op, not an error.
	if err := s.Broadcast("state", map[string]int{"frame": 1}); err != nil {
		t.Fatalf("Broadcast with no clients: %v", err)
	}
}
