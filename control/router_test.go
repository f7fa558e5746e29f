package control

import (
	"testing"

	"github.com/phosphorvj/phosphor/layer"
	"github.com/phosphorvj/phosphor/param"
	"github.com/phosphorvj/phosphor/postprocess"
)

func newTestStack(t *testing.T) *layer.Stack {
	t.Helper()
	s := layer.NewStack()
	l := &layer.Layer{Name: "l0", Enabled: true, Params: param.NewStore()}
	if err := l.Params.Define(param.FloatDef("a", 0, 1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(l); err != nil {
		t.Fatal(err)
	}
	return s
}

// TestLastWriteWins exercises spec §8 property 10 / scenario S6: OSC then
// Web writes to the same parameter in one frame; Web's value wins.
func TestLastWriteWins(t *testing.T) {
	midi, osc, web := NewQueue(), NewQueue(), NewQueue()
	r := New(midi, osc, web)
	stack := newTestStack(t)

	osc.Push(Message{Source: SourceOSC, Target: TargetGlobalParam, Name: "a", Float: [4]float64{0.3}})
	web.Push(Message{Source: SourceWeb, Target: TargetGlobalParam, Name: "a", Float: [4]float64{0.7}})

	pp := postprocess.DefaultSettings()
	r.Drain(Target{Stack: stack, PostProcess: &pp})

	v, _ := stack.At(0).Params.Get("a")
	if v.Components()[0] != 0.7 {
		t.Fatalf("a = %v, want 0.7 (web wins)", v.Components()[0])
	}
}

func TestTriggerFiresOnceOnRisingEdge(t *testing.T) {
	midi, osc, web := NewQueue(), NewQueue(), NewQueue()
	r := New(midi, osc, web)
	stack := layer.NewStack()
	pp := postprocess.DefaultSettings()

	fires := 0
	target := Target{Stack: stack, PostProcess: &pp, OnTrigger: func(name string) { fires++ }}

	midi.Push(Message{Source: SourceMIDI, Target: TargetTrigger, Name: TriggerNextLayer, Float: [4]float64{1.0}})
	r.Drain(target)
	midi.Push(Message{Source: SourceMIDI, Target: TargetTrigger, Name: TriggerNextLayer, Float: [4]float64{1.0}})
	r.Drain(target)

	if fires != 1 {
		t.Fatalf("fires = %d, want 1 (held button fires once)", fires)
	}
}
