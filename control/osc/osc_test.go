package osc

import (
	"log/slog"
	"testing"

	gosc "github.com/hypebeast/go-osc/osc"

	"github.com/phosphorvj/phosphor/control"
)

func newTestServer() (*Server, *control.Queue) {
	q := control.NewQueue()
	return New(slog.Default(), q, "127.0.0.1:0"), q
}

func TestHandleGlobalParam(t *testing.T) {
	s, q := newTestServer()
	msg := gosc.NewMessage("/phosphor/param/chroma")
	msg.Append(float32(0.42))
	s.handle(msg)

	out := q.DrainInto(nil)
	if len(out) != 1 || out[0].Target != control.TargetGlobalParam || out[0].Name != "chroma" {
		t.Fatalf("unexpected drained messages: %+v", out)
	}
	if out[0].Float[0] != float64(float32(0.42)) {
		t.Fatalf("value = %v, want 0.42", out[0].Float[0])
	}
}

func TestHandleLayerOpacity(t *testing.T) {
	s, q := newTestServer()
	msg := gosc.NewMessage("/phosphor/layer/2/opacity")
	msg.Append(float32(0.6))
	s.handle(msg)

	out := q.DrainInto(nil)
	if len(out) != 1 || out[0].Target != control.TargetLayerOpacity || out[0].Layer != 2 {
		t.Fatalf("unexpected drained messages: %+v", out)
	}
}

func TestHandleTrigger(t *testing.T) {
	s, q := newTestServer()
	msg := gosc.NewMessage("/phosphor/trigger/next_layer")
	msg.Append(float32(1.0))
	s.handle(msg)

	out := q.DrainInto(nil)
	if len(out) != 1 || out[0].Target != control.TargetTrigger || out[0].Name != "next_layer" {
		t.Fatalf("unexpected drained messages: %+v", out)
	}
}

func TestHandleIgnoresUnrecognizedAddress(t *testing.T) {
	s, q := newTestServer()
	msg := gosc.NewMessage("/other/thing")
	msg.Append(float32(1.0))
	s.handle(msg)

	if out := q.DrainInto(nil); len(out) != 0 {
		t.Fatalf("expected no messages, got %+v", out)
	}
}
