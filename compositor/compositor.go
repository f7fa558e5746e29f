package compositor

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/gpu"
	"github.com/phosphorvj/phosphor/layer"
)

// Compositor owns the ping-pong accumulator textures the engine blends
// enabled layers into, plus the blend-shader pipeline.
type Compositor struct {
	device hal.Device
	queue  hal.Queue

	accumulator *gpu.PingPongTarget

	bgLayout       hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	module         hal.ShaderModule
	pipeline       hal.RenderPipeline
	sampler        hal.Sampler
	uniformBuf     hal.Buffer
}

// New allocates the compositor's accumulator targets, sized to the
// window, and builds the blend pipeline.
func New(device hal.Device, queue hal.Queue, width, height uint32) (*Compositor, error) {
	accum, err := gpu.NewPingPongTarget(device, width, height, "compositor.accumulator")
	if err != nil {
		return nil, err
	}
	c := &Compositor{device: device, queue: queue, accumulator: accum}

	bgLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "compositor.bindGroupLayout",
		Entries: []gputypes.BindGroupLayoutEntry{
			gpu.UniformLayout(0, gputypes.ShaderStageFragment),
			gpu.TextureLayout(1, gputypes.ShaderStageFragment),
			gpu.TextureLayout(2, gputypes.ShaderStageFragment),
			gpu.SamplerLayout(3, gputypes.ShaderStageFragment),
		},
	})
	if err != nil {
		c.Destroy()
		return nil, errors.Wrap(err, "failed to create compositor bind group layout")
	}
	c.bgLayout = bgLayout

	pipelineLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "compositor.pipelineLayout",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		c.Destroy()
		return nil, errors.Wrap(err, "failed to create compositor pipeline layout")
	}
	c.pipelineLayout = pipelineLayout

	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "compositor.blend",
		Source: hal.ShaderSource{WGSL: gpu.FullscreenTriangleVS + blendShader},
	})
	if err != nil {
		c.Destroy()
		return nil, errors.Wrap(err, "compositor blend shader compile error")
	}
	c.module = module

	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "compositor.blend",
		Layout: pipelineLayout,
		Vertex: hal.VertexState{Module: module, EntryPoint: "vs_main"},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []hal.ColorTargetState{{
				Format:    gpu.HDRFormat,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive:   hal.PrimitiveState{},
		Multisample: hal.MultisampleState{SampleCount: 1},
	})
	if err != nil {
		c.Destroy()
		return nil, errors.Wrap(err, "failed to create compositor blend pipeline")
	}
	c.pipeline = pipeline

	sampler, err := gpu.NewLinearSampler(device, "compositor.sampler")
	if err != nil {
		c.Destroy()
		return nil, errors.Wrap(err, "failed to create compositor sampler")
	}
	c.sampler = sampler

	uniformBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "compositor.blendUniforms",
		Size:  16,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		c.Destroy()
		return nil, errors.Wrap(err, "failed to create compositor uniform buffer")
	}
	c.uniformBuf = uniformBuf

	return c, nil
}

// Output returns the target holding the composited result for this
// frame, resolving the single-layer fast path (spec §4.4): with exactly
// one enabled layer, its own output is returned directly and the
// accumulator is bypassed entirely (spec §8 property 7).
func (c *Compositor) Output(enabled []*layer.Layer) *gpu.RenderTarget {
	if len(enabled) == 1 {
		return enabled[0].Content.Output()
	}
	return c.accumulator.Read()
}

// Composite runs the ping-pong blend algorithm of spec §4.4 over the
// given enabled layers, in draw order: blit the first layer into the
// accumulator's write slot, then for each subsequent layer bind
// (accumulator.read, layer.output), run the blend shader into
// accumulator.write, and swap. Returns without doing GPU work when the
// fast path applies (len(enabled) <= 1).
func (c *Compositor) Composite(encoder hal.CommandEncoder, enabled []*layer.Layer) error {
	if len(enabled) <= 1 {
		return nil
	}

	if err := c.blit(encoder, enabled[0].Content.Output(), c.accumulator.Write()); err != nil {
		return err
	}
	c.accumulator.Swap()

	for _, l := range enabled[1:] {
		if err := c.blend(encoder, c.accumulator.Read(), l.Content.Output(), c.accumulator.Write(), l.Blend, l.Opacity); err != nil {
			return err
		}
		c.accumulator.Swap()
	}
	return nil
}

// blit copies src into dst unmodified, used for the accumulator's seed
// pass.
func (c *Compositor) blit(encoder hal.CommandEncoder, src, dst *gpu.RenderTarget) error {
	return encoder.CopyTextureToTexture(
		&hal.TexCopyLocation{Texture: src.Texture},
		&hal.TexCopyLocation{Texture: dst.Texture},
		dst.Width, dst.Height, 1,
	)
}

// blend runs one pass of the blend-mode fragment shader, compositing fg
// over bg into dst at the given layer opacity (spec §4.4 formula: out =
// mix(bg, blended, opacity*fg.a), out.a = max(bg.a, fg.a*opacity)). The
// per-pixel math lives in the shared fragment shader in shader.go;
// BlendRGBA in blend.go is the CPU reference used by tests to validate
// it without a live device.
func (c *Compositor) blend(encoder hal.CommandEncoder, bg, fg, dst *gpu.RenderTarget, mode layer.BlendMode, opacity float64) error {
	c.queue.WriteBuffer(c.uniformBuf, 0, packBlendUniforms(mode, opacity))

	bindGroup, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "compositor.blend.bindGroup",
		Layout: c.bgLayout,
		Entries: []gputypes.BindGroupEntry{
			gpu.BufferEntry(0, c.uniformBuf),
			gpu.TextureViewEntry(1, bg.View),
			gpu.TextureViewEntry(2, fg.View),
			gpu.SamplerEntry(3, c.sampler),
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create compositor bind group")
	}
	defer c.device.DestroyBindGroup(bindGroup)

	pass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "compositor.blend",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    dst.View,
			LoadOp:  hal.LoadOpClear,
			StoreOp: hal.StoreOpStore,
		}},
	})
	pass.SetPipeline(c.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	return nil
}

func packBlendUniforms(mode layer.BlendMode, opacity float64) []byte {
	out := make([]byte, 16)
	le := binary.LittleEndian
	le.PutUint32(out[0:4], math.Float32bits(float32(mode)))
	le.PutUint32(out[4:8], math.Float32bits(float32(opacity)))
	return out
}

// Destroy releases the compositor's GPU resources.
func (c *Compositor) Destroy() {
	if c == nil {
		return
	}
	c.accumulator.Destroy()
	if c.uniformBuf != nil {
		c.device.DestroyBuffer(c.uniformBuf)
	}
	if c.sampler != nil {
		c.device.DestroySampler(c.sampler)
	}
	if c.pipeline != nil {
		c.device.DestroyRenderPipeline(c.pipeline)
	}
	if c.module != nil {
		c.device.DestroyShaderModule(c.module)
	}
	if c.pipelineLayout != nil {
		c.device.DestroyPipelineLayout(c.pipelineLayout)
	}
	if c.bgLayout != nil {
		c.device.DestroyBindGroupLayout(c.bgLayout)
	}
}

// CompositeCPU composites a stack of solid RGBA colors the way the GPU
// blend shader would, used to validate the ordering invariant of spec §8
// property 5 without a live device: `blend(blend(L0, L1), L2)`.
func CompositeCPU(layers []struct {
	Color   [4]float64
	Mode    layer.BlendMode
	Opacity float64
}) [4]float64 {
	if len(layers) == 0 {
		return [4]float64{}
	}
	acc := layers[0].Color
	for _, l := range layers[1:] {
		acc = BlendRGBA(l.Mode, acc, l.Color, l.Opacity)
	}
	return acc
}
