package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phosphorvj/phosphor/layer"
	"github.com/phosphorvj/phosphor/param"
	"github.com/phosphorvj/phosphor/postprocess"
)

func newTestStack(t *testing.T) *layer.Stack {
	t.Helper()
	s := layer.NewStack()
	l := &layer.Layer{Name: "base", Enabled: true, Opacity: 0.8, Params: param.NewStore()}
	if err := l.Params.Define(param.FloatDef("hue", 0, 1, 0.2)); err != nil {
		t.Fatal(err)
	}
	if err := l.Params.SetFloat("hue", 0.55); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(l); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCaptureRoundTripsValues(t *testing.T) {
	stack := newTestStack(t)
	pp := postprocess.DefaultSettings()

	p := Capture("demo", stack, pp)
	if len(p.Layers) != 1 {
		t.Fatalf("expected 1 layer, got %d", len(p.Layers))
	}
	if p.Layers[0].Params[0].Vals[0] != 0.55 {
		t.Fatalf("hue = %v, want 0.55", p.Layers[0].Params[0].Vals[0])
	}
	if p.Layers[0].Opacity != 0.8 {
		t.Fatalf("opacity = %v, want 0.8", p.Layers[0].Opacity)
	}
}

// TestSaveLoadSaveIsByteIdentical validates spec §8's preset round-trip
// property: save -> load -> save produces byte-identical files.
func TestSaveLoadSaveIsByteIdentical(t *testing.T) {
	stack := newTestStack(t)
	pp := postprocess.DefaultSettings()
	p := Capture("demo", stack, pp)

	dir := t.TempDir()
	path := filepath.Join(dir, "demo.json")

	if err := Save(path, p); err != nil {
		t.Fatalf("first save: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := Save(path, loaded); err != nil {
		t.Fatalf("second save: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Fatalf("save->load->save mismatch:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}
