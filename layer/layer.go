// Package layer implements the layer stack (spec §3/§4.4): an ordered,
// fixed-capacity sequence of render units, each owning its parameter
// store, pass executor, and HDR ping-pong target, composited in draw
// order by the compositor.
package layer

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/phosphorvj/phosphor/gpu"
	"github.com/phosphorvj/phosphor/param"
)

// BlendMode is one of the ten per-channel HDR blend operations the
// compositor applies between a layer and the accumulator (spec §4.4).
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendAdd
	BlendScreen
	BlendColorDodge
	BlendMultiply
	BlendOverlay
	BlendHardLight
	BlendDifference
	BlendExclusion
	BlendSubtract
)

// Content is a layer's render source: an effect's pass executor, or a
// media/webcam source (out of scope per spec §1, referenced only by this
// interface).
type Content interface {
	// Render draws one frame's content into its own internally-owned
	// target(s). uniforms is the packed per-frame block (time, audio,
	// resolution, parameters) the content's shader pipeline binds.
	Render(encoder hal.CommandEncoder, uniforms []byte) error
	// Output is the target the compositor should read from after Render
	// (e.g. a multi-pass executor's terminal pass output).
	Output() *gpu.RenderTarget
}

// Layer is one mutable render unit in the stack (spec §3 Layer).
type Layer struct {
	Name string

	// EffectPath is the manifest path Content was built from, recorded
	// so a preset can recreate the layer's effect on load.
	EffectPath string

	Content Content
	Params  *param.Store

	Blend   BlendMode
	Opacity float64

	Enabled bool
	Locked  bool
	Pinned  bool

	target *gpu.PingPongTarget
}

// New constructs a Layer with its own HDR ping-pong target.
func New(device hal.Device, name string, width, height uint32) (*Layer, error) {
	target, err := gpu.NewPingPongTarget(device, width, height, "layer."+name)
	if err != nil {
		return nil, err
	}
	return &Layer{
		Name:    name,
		Params:  param.NewStore(),
		Blend:   BlendNormal,
		Opacity: 1.0,
		Enabled: true,
		target:  target,
	}, nil
}

// Target returns the layer's own ping-pong HDR target.
func (l *Layer) Target() *gpu.PingPongTarget { return l.target }

// SetParam writes a parameter, silently absorbing the write if the layer
// is locked (spec §3 "a locked layer rejects parameter writes from input
// routers").
func (l *Layer) SetParam(name string, kind param.Kind, components []float64) error {
	if l.Locked {
		return nil
	}
	return l.Params.Set(name, kind, components)
}

// Destroy releases the layer's GPU resources.
func (l *Layer) Destroy() {
	if l == nil {
		return
	}
	l.target.Destroy()
}
