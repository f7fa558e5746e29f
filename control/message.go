// Package control is the input router (spec §4.8, M): three bounded
// SPSC queues (MIDI, OSC, Web) drained in that fixed order every frame,
// applying last-write-wins parameter updates and rising-edge trigger
// detection to the layer stack and post-process settings.
package control

// TargetKind discriminates what a Message addresses.
type TargetKind int

const (
	TargetGlobalParam    TargetKind = iota // active layer's named parameter
	TargetLayerParam                       // a specific layer's named parameter
	TargetLayerOpacity
	TargetLayerBlend
	TargetLayerEnabled
	TargetPostProcessEnabled
	TargetTrigger
	TargetLoadEffect  // Name = effect manifest path
	TargetSelectLayer // Layer = index to make active
	TargetLoadPreset  // Name = preset name
)

// Source identifies which producer a Message came from, used only for
// diagnostics; the drain order (not this field) determines last-write-wins
// precedence.
type Source int

const (
	SourceMIDI Source = iota
	SourceOSC
	SourceWeb
)

// Message is one control-surface event queued for the engine to apply.
type Message struct {
	Source Source
	Target TargetKind

	Layer int    // meaningful for TargetLayer*
	Name  string // parameter name, trigger name, effect manifest path, or preset name

	Float [4]float64 // scalar, point2d, or color payload
	Bool  bool
}

// TriggerName enumerates the named global actions of spec §6.
type TriggerName = string

const (
	TriggerNextEffect        TriggerName = "next_effect"
	TriggerPrevEffect        TriggerName = "prev_effect"
	TriggerNextPreset        TriggerName = "next_preset"
	TriggerPrevPreset        TriggerName = "prev_preset"
	TriggerNextLayer         TriggerName = "next_layer"
	TriggerPrevLayer         TriggerName = "prev_layer"
	TriggerTogglePostProcess TriggerName = "toggle_postprocess"
	TriggerToggleOverlay     TriggerName = "toggle_overlay"
)
