package midi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phosphorvj/phosphor/control"
)

func TestLoadBindingsMissingFileReturnsEmpty(t *testing.T) {
	bindings, err := LoadBindings(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bindings) != 0 {
		t.Fatalf("expected no bindings, got %d", len(bindings))
	}
}

func TestSaveLoadBindingsRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bindings.json")
	want := []Binding{
		{Channel: 1, Controller: 20, Target: control.TargetGlobalParam, Name: "hue"},
		{Channel: 0, Controller: 64, Target: control.TargetTrigger, Name: "next_layer", IsTrigger: true},
	}

	if err := SaveBindings(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("bindings file not written: %v", err)
	}

	got, err := LoadBindings(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d bindings, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("binding %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
