// Package gpu holds the window-sized HDR render targets shared by the
// layer stack, compositor, and post-process chain: a half-float RGBA
// texture per target, and a ping-pong pair with an explicit read/write
// swap for feedback passes (spec §3, §4.4, §9).
package gpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"
)

// HDRFormat is the texture format every render target uses: half-float
// RGBA, able to represent values above 1.0 (spec §3 HDR target).
const HDRFormat = gputypes.TextureFormatRGBA16Float

// RenderTarget is one HDR off-screen texture sized to the window.
type RenderTarget struct {
	device hal.Device

	Width, Height uint32
	Texture       hal.Texture
	View          hal.TextureView
}

// NewRenderTarget allocates an HDR texture of the given size, usable as
// both a render attachment and a sampled texture (feedback reads).
func NewRenderTarget(device hal.Device, width, height uint32, label string) (*RenderTarget, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size:  gputypes.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		Format: HDRFormat,
		Usage: gputypes.TextureUsageRenderAttachment |
			gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create render target %q", label)
	}

	view, err := tex.CreateView(&hal.TextureViewDescriptor{Label: label + ".view"})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, errors.Wrapf(err, "failed to create view for render target %q", label)
	}

	return &RenderTarget{device: device, Width: width, Height: height, Texture: tex, View: view}, nil
}

// Destroy releases the target's GPU resources. Safe to call on a nil
// RenderTarget.
func (t *RenderTarget) Destroy() {
	if t == nil || t.Texture == nil {
		return
	}
	t.device.DestroyTextureView(t.View)
	t.device.DestroyTexture(t.Texture)
	t.Texture = nil
	t.View = nil
}

// PingPongTarget is two HDR targets with alternating read/write roles
// (spec §9 "cyclic graph of ping-pong feedback"): a feedback-reading pass
// samples Read() while writing into Write(); Swap flips the roles at the
// frame boundary. Both textures are owned by the PingPongTarget for its
// whole lifetime; only the index rotates.
type PingPongTarget struct {
	targets   [2]*RenderTarget
	readIndex int
}

// NewPingPongTarget allocates both textures of a ping-pong pair.
func NewPingPongTarget(device hal.Device, width, height uint32, label string) (*PingPongTarget, error) {
	a, err := NewRenderTarget(device, width, height, label+".0")
	if err != nil {
		return nil, err
	}
	b, err := NewRenderTarget(device, width, height, label+".1")
	if err != nil {
		a.Destroy()
		return nil, err
	}
	return &PingPongTarget{targets: [2]*RenderTarget{a, b}}, nil
}

// Read returns the target currently holding the previous frame's output.
func (p *PingPongTarget) Read() *RenderTarget { return p.targets[p.readIndex] }

// Write returns the target this frame should render into.
func (p *PingPongTarget) Write() *RenderTarget { return p.targets[1-p.readIndex] }

// Swap flips the read/write roles; call once the write target has been
// fully rendered for the frame.
func (p *PingPongTarget) Swap() { p.readIndex = 1 - p.readIndex }

// Destroy releases both underlying textures.
func (p *PingPongTarget) Destroy() {
	if p == nil {
		return
	}
	p.targets[0].Destroy()
	p.targets[1].Destroy()
}
