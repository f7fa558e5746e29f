package gpu

import (
	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"
)

// Placeholder is a 1x1 HDR texture bound wherever a pass's bind group
// layout requires a feedback texture but the pass does not declare
// feedback (spec §4.6): every effect shader shares the same three-binding
// contract, so non-feedback passes still need something to bind.
type Placeholder struct {
	target  *RenderTarget
	Sampler hal.Sampler
}

// NewPlaceholder allocates the 1x1 target and clears it to transparent
// black once, up front, so every pass that binds it reads a defined
// value.
func NewPlaceholder(device hal.Device, queue hal.Queue, label string) (*Placeholder, error) {
	target, err := NewRenderTarget(device, 1, 1, label)
	if err != nil {
		return nil, err
	}
	sampler, err := NewLinearSampler(device, label+".sampler")
	if err != nil {
		target.Destroy()
		return nil, errors.Wrap(err, "failed to create placeholder sampler")
	}
	p := &Placeholder{target: target, Sampler: sampler}
	if err := p.clear(device, queue); err != nil {
		p.Destroy(device)
		return nil, err
	}
	return p, nil
}

func (p *Placeholder) clear(device hal.Device, queue hal.Queue) error {
	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gpu.placeholder.clear"})
	if err != nil {
		return errors.Wrap(err, "failed to create placeholder clear encoder")
	}
	if err := encoder.BeginEncoding("gpu.placeholder.clear"); err != nil {
		return errors.Wrap(err, "failed to begin placeholder clear encoding")
	}

	pass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "gpu.placeholder.clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    p.target.View,
			LoadOp:  hal.LoadOpClear,
			StoreOp: hal.StoreOpStore,
		}},
	})
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return errors.Wrap(err, "failed to end placeholder clear encoding")
	}

	fence, err := device.CreateFence()
	if err != nil {
		return errors.Wrap(err, "failed to create placeholder fence")
	}
	return queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1)
}

// View returns the placeholder's texture view, for binding at a
// feedback-texture slot.
func (p *Placeholder) View() hal.TextureView { return p.target.View }

// Destroy releases the placeholder's GPU resources.
func (p *Placeholder) Destroy(device hal.Device) {
	if p == nil {
		return
	}
	p.target.Destroy()
	if p.Sampler != nil {
		device.DestroySampler(p.Sampler)
	}
}
