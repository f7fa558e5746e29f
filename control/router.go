package control

import (
	"github.com/phosphorvj/phosphor/layer"
	"github.com/phosphorvj/phosphor/param"
	"github.com/phosphorvj/phosphor/postprocess"
)

// Router drains the three input queues in MIDI -> OSC -> Web order every
// frame and applies their messages, giving later sources precedence on a
// shared target within the same frame (spec §4.8 last-write-wins).
type Router struct {
	midi *Queue
	osc  *Queue
	web  *Queue

	triggerHigh map[string]bool // rising-edge state per trigger name

	scratch []Message
}

// New builds a Router over the three given queues.
func New(midi, osc, web *Queue) *Router {
	return &Router{
		midi:        midi,
		osc:         osc,
		web:         web,
		triggerHigh: make(map[string]bool),
	}
}

// Target is the mutable engine state a Router applies messages to.
type Target struct {
	Stack       *layer.Stack
	PostProcess *postprocess.Settings
	OnTrigger   func(name string) // called once per rising edge

	OnLoadEffect  func(layer int, path string) // TargetLoadEffect: msg.Layer, msg.Name
	OnSelectLayer func(index int)   // TargetSelectLayer: msg.Layer is the new active index
	OnLoadPreset  func(name string) // TargetLoadPreset: msg.Name is the preset name
}

// Drain pulls every queued message, in fixed MIDI->OSC->Web order, and
// applies it to target. Each source's messages are applied in arrival
// order; because OSC is applied after MIDI and Web after OSC, a later
// source's write to the same parameter naturally wins.
func (r *Router) Drain(target Target) {
	r.scratch = r.scratch[:0]
	r.scratch = r.midi.DrainInto(r.scratch)
	r.scratch = r.osc.DrainInto(r.scratch)
	r.scratch = r.web.DrainInto(r.scratch)

	for _, msg := range r.scratch {
		r.apply(msg, target)
	}
}

func (r *Router) apply(msg Message, target Target) {
	switch msg.Target {
	case TargetTrigger:
		r.applyTrigger(msg, target)
		return
	case TargetLoadEffect:
		if target.OnLoadEffect != nil {
			target.OnLoadEffect(msg.Layer, msg.Name)
		}
		return
	case TargetSelectLayer:
		if target.OnSelectLayer != nil {
			target.OnSelectLayer(msg.Layer)
		}
		return
	case TargetLoadPreset:
		if target.OnLoadPreset != nil {
			target.OnLoadPreset(msg.Name)
		}
		return
	}

	var l *layer.Layer
	switch msg.Target {
	case TargetGlobalParam:
		if target.Stack.Len() == 0 {
			return
		}
		l = target.Stack.At(target.Stack.Active())
	case TargetLayerParam, TargetLayerOpacity, TargetLayerBlend, TargetLayerEnabled:
		if msg.Layer < 0 || msg.Layer >= target.Stack.Len() {
			return
		}
		l = target.Stack.At(msg.Layer)
	case TargetPostProcessEnabled:
		target.PostProcess.Enabled = msg.Bool
		return
	}

	if l == nil {
		return
	}

	// Locked layers silently absorb parameter/opacity/blend/enabled writes
	// but still accept triggers (handled above), per spec §4.8.
	if l.Locked {
		return
	}

	switch msg.Target {
	case TargetGlobalParam, TargetLayerParam:
		kind, ok := paramKindOf(l.Params, msg.Name)
		if !ok {
			return
		}
		_ = l.SetParam(msg.Name, kind, msg.Float[:])
	case TargetLayerOpacity:
		l.Opacity = clamp01(msg.Float[0])
	case TargetLayerBlend:
		l.Blend = layer.BlendMode(int(msg.Float[0]))
	case TargetLayerEnabled:
		l.Enabled = msg.Bool
	}
}

// applyTrigger fires target.OnTrigger once per rising edge: the first
// message in a frame (or run of frames) where the trigger's level crosses
// from low to high (spec §4.8 "rising-edge detection ... so a held
// button fires once").
func (r *Router) applyTrigger(msg Message, target Target) {
	high := msg.Float[0] > 0.5
	was := r.triggerHigh[msg.Name]
	r.triggerHigh[msg.Name] = high

	if high && !was && target.OnTrigger != nil {
		target.OnTrigger(msg.Name)
	}
}

func paramKindOf(store *param.Store, name string) (param.Kind, bool) {
	v, ok := store.Get(name)
	if !ok {
		return 0, false
	}
	return v.Kind(), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
