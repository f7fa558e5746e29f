// Package postprocess implements the four-stage HDR post-process chain
// (spec §4.7): bloom extract, separable blur, and a composite pass
// applying chromatic aberration, tonemapping, vignette, and film grain.
package postprocess

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/gpu"
)

// postUniformsSize is the byte size of the shared PostUniforms WGSL
// struct, padded to a 16-byte multiple.
const postUniformsSize = 64

// Settings are the global post-process parameters. An effect manifest's
// "postprocess" block (effect.PostProcessOverride) is parsed but not
// applied to them.
type Settings struct {
	Enabled        bool
	BloomThreshold float64
	BloomIntensity float64
	Vignette       float64
}

// DefaultSettings returns the engine's default post-process configuration.
func DefaultSettings() Settings {
	return Settings{Enabled: true, BloomThreshold: 1.0, BloomIntensity: 0.6, Vignette: 0.3}
}

// stage is one compiled single-input render pipeline (extract or blur:
// both read one texture and a uniform buffer).
type stage struct {
	module   hal.ShaderModule
	pipeline hal.RenderPipeline
}

// Chain owns the post-process chain's intermediate HDR targets: a
// quarter-resolution bloom extract target and a quarter-resolution blur
// ping-pong pair. The composite stage reads the scene directly; it does
// not need its own target since it writes straight to the swap-chain
// surface.
type Chain struct {
	device hal.Device
	queue  hal.Queue

	bloomExtract *gpu.RenderTarget
	blur         *gpu.PingPongTarget
	qw, qh       uint32

	singleLayout hal.BindGroupLayout
	singleLinout hal.PipelineLayout
	extract      stage
	blurStage    stage

	compositeLayout hal.BindGroupLayout
	compositeLinout hal.PipelineLayout
	compositeStage  stage
	sampler         hal.Sampler
	uniformBuf      hal.Buffer
}

// New allocates the chain's intermediate targets at quarter resolution
// (spec §4.7: "Output at quarter resolution") and builds the extract,
// blur, and composite pipelines.
func New(device hal.Device, queue hal.Queue, width, height uint32) (*Chain, error) {
	qw, qh := width/4, height/4
	if qw == 0 {
		qw = 1
	}
	if qh == 0 {
		qh = 1
	}

	extract, err := gpu.NewRenderTarget(device, qw, qh, "postprocess.bloomExtract")
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate bloom extract target")
	}
	blur, err := gpu.NewPingPongTarget(device, qw, qh, "postprocess.blur")
	if err != nil {
		extract.Destroy()
		return nil, errors.Wrap(err, "failed to allocate blur targets")
	}

	c := &Chain{device: device, queue: queue, bloomExtract: extract, blur: blur, qw: qw, qh: qh}

	if err := c.buildPipelines(); err != nil {
		c.Destroy()
		return nil, err
	}
	return c, nil
}

func (c *Chain) buildPipelines() error {
	singleLayout, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "postprocess.single.bindGroupLayout",
		Entries: []gputypes.BindGroupLayoutEntry{
			gpu.UniformLayout(0, gputypes.ShaderStageFragment),
			gpu.TextureLayout(1, gputypes.ShaderStageFragment),
			gpu.SamplerLayout(2, gputypes.ShaderStageFragment),
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create postprocess single-input bind group layout")
	}
	c.singleLayout = singleLayout

	singleLinout, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "postprocess.single.pipelineLayout",
		BindGroupLayouts: []hal.BindGroupLayout{singleLayout},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create postprocess single-input pipeline layout")
	}
	c.singleLinout = singleLinout

	var err2 error
	c.extract, err2 = c.buildStage("postprocess.extract", extractShader, singleLinout)
	if err2 != nil {
		return err2
	}
	c.blurStage, err2 = c.buildStage("postprocess.blur", blurShader, singleLinout)
	if err2 != nil {
		return err2
	}

	compositeLayout, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "postprocess.composite.bindGroupLayout",
		Entries: []gputypes.BindGroupLayoutEntry{
			gpu.UniformLayout(0, gputypes.ShaderStageFragment),
			gpu.TextureLayout(1, gputypes.ShaderStageFragment),
			gpu.TextureLayout(2, gputypes.ShaderStageFragment),
			gpu.SamplerLayout(3, gputypes.ShaderStageFragment),
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create postprocess composite bind group layout")
	}
	c.compositeLayout = compositeLayout

	compositeLinout, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "postprocess.composite.pipelineLayout",
		BindGroupLayouts: []hal.BindGroupLayout{compositeLayout},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create postprocess composite pipeline layout")
	}
	c.compositeLinout = compositeLinout

	c.compositeStage, err2 = c.buildStage("postprocess.composite", compositeShader, compositeLinout)
	if err2 != nil {
		return err2
	}

	sampler, err := gpu.NewLinearSampler(c.device, "postprocess.sampler")
	if err != nil {
		return errors.Wrap(err, "failed to create postprocess sampler")
	}
	c.sampler = sampler

	uniformBuf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "postprocess.uniforms",
		Size:  postUniformsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create postprocess uniform buffer")
	}
	c.uniformBuf = uniformBuf

	return nil
}

func (c *Chain) buildStage(label, src string, layout hal.PipelineLayout) (stage, error) {
	module, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: gpu.FullscreenTriangleVS + src},
	})
	if err != nil {
		return stage{}, errors.Wrapf(err, "%s shader compile error", label)
	}

	pipeline, err := c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: layout,
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
		c.device.DestroyShaderModule(module)
		return stage{}, errors.Wrapf(err, "failed to create %s pipeline", label)
	}

	return stage{module: module, pipeline: pipeline}, nil
}

// Run executes the chain over scene, writing the final composited image
// into surface. If settings.Enabled is false, a single blit substitutes
// for the whole chain (spec §4.7 "If disabled globally, a single blit is
// substituted").
func (c *Chain) Run(encoder hal.CommandEncoder, scene, surface *gpu.RenderTarget, settings Settings, rms, onset, flatness float64) error {
	if !settings.Enabled {
		return c.blit(encoder, scene, surface)
	}

	if err := c.extractBloom(encoder, scene, settings, rms); err != nil {
		return err
	}
	if err := c.blurHorizontal(encoder); err != nil {
		return err
	}
	if err := c.blurVertical(encoder); err != nil {
		return err
	}
	return c.composite(encoder, scene, surface, settings, rms, onset, flatness)
}

// extractBloom thresholds scene with a soft knee, modulated by rms, into
// the quarter-res bloomExtract target.
func (c *Chain) extractBloom(encoder hal.CommandEncoder, scene *gpu.RenderTarget, settings Settings, rms float64) error {
	c.writeUniforms(func(u []byte) {
		putF32(u, 0, float32(settings.BloomThreshold))
		putF32(u, 4, float32(rms))
		putF32(u, 40, float32(c.qw))
		putF32(u, 44, float32(c.qh))
	})
	return c.singlePass(encoder, "postprocess.extract", c.extract, scene, c.bloomExtract)
}

// blurHorizontal runs the horizontal half of the nine-tap separable
// Gaussian blur, reading the bloom extract target.
func (c *Chain) blurHorizontal(encoder hal.CommandEncoder) error {
	c.writeUniforms(func(u []byte) {
		putF32(u, 8, 0) // direction = horizontal
		putF32(u, 16, 1.0/float32(c.qw))
		putF32(u, 20, 1.0/float32(c.qh))
		putF32(u, 40, float32(c.qw))
		putF32(u, 44, float32(c.qh))
	})
	if err := c.singlePass(encoder, "postprocess.blurH", c.blurStage, c.bloomExtract, c.blur.Write()); err != nil {
		return err
	}
	c.blur.Swap()
	return nil
}

// blurVertical runs the vertical half, reading the horizontal pass's
// output.
func (c *Chain) blurVertical(encoder hal.CommandEncoder) error {
	c.writeUniforms(func(u []byte) {
		putF32(u, 8, 1) // direction = vertical
		putF32(u, 16, 1.0/float32(c.qw))
		putF32(u, 20, 1.0/float32(c.qh))
		putF32(u, 40, float32(c.qw))
		putF32(u, 44, float32(c.qh))
	})
	if err := c.singlePass(encoder, "postprocess.blurV", c.blurStage, c.blur.Read(), c.blur.Write()); err != nil {
		return err
	}
	c.blur.Swap()
	return nil
}

// composite reads scene and the blurred bloom target, applies
// chromatic aberration (driven by onset), adds bloom scaled by
// settings.BloomIntensity, ACES tonemaps, vignettes, and adds grain
// (driven by flatness), writing into surface (spec §4.7 stage 3). rms
// does not enter this stage; it only lowers the extract threshold.
func (c *Chain) composite(encoder hal.CommandEncoder, scene, surface *gpu.RenderTarget, settings Settings, rms, onset, flatness float64) error {
	c.writeUniforms(func(u []byte) {
		putF32(u, 24, float32(settings.BloomIntensity))
		putF32(u, 28, float32(settings.Vignette))
		putF32(u, 32, float32(onset))
		putF32(u, 36, float32(flatness))
		putF32(u, 40, float32(surface.Width))
		putF32(u, 44, float32(surface.Height))
	})

	bindGroup, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "postprocess.composite.bindGroup",
		Layout: c.compositeLayout,
		Entries: []gputypes.BindGroupEntry{
			gpu.BufferEntry(0, c.uniformBuf),
			gpu.TextureViewEntry(1, scene.View),
			gpu.TextureViewEntry(2, c.blur.Read().View),
			gpu.SamplerEntry(3, c.sampler),
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create postprocess composite bind group")
	}
	defer c.device.DestroyBindGroup(bindGroup)

	pass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "postprocess.composite",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    surface.View,
			LoadOp:  hal.LoadOpClear,
			StoreOp: hal.StoreOpStore,
		}},
	})
	pass.SetPipeline(c.compositeStage.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	return nil
}

func (c *Chain) singlePass(encoder hal.CommandEncoder, label string, s stage, src, dst *gpu.RenderTarget) error {
	bindGroup, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  label + ".bindGroup",
		Layout: c.singleLayout,
		Entries: []gputypes.BindGroupEntry{
			gpu.BufferEntry(0, c.uniformBuf),
			gpu.TextureViewEntry(1, src.View),
			gpu.SamplerEntry(2, c.sampler),
		},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create %s bind group", label)
	}
	defer c.device.DestroyBindGroup(bindGroup)

	pass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    dst.View,
			LoadOp:  hal.LoadOpClear,
			StoreOp: hal.StoreOpStore,
		}},
	})
	pass.SetPipeline(s.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	return nil
}

func (c *Chain) blit(encoder hal.CommandEncoder, src, dst *gpu.RenderTarget) error {
	return encoder.CopyTextureToTexture(
		&hal.TexCopyLocation{Texture: src.Texture},
		&hal.TexCopyLocation{Texture: dst.Texture},
		dst.Width, dst.Height, 1,
	)
}

// writeUniforms zeroes a fresh postUniformsSize buffer, lets fill set
// the fields this pass needs, and uploads it.
func (c *Chain) writeUniforms(fill func(u []byte)) {
	u := make([]byte, postUniformsSize)
	fill(u)
	c.queue.WriteBuffer(c.uniformBuf, 0, u)
}

func putF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
}

// Destroy releases the chain's GPU resources.
func (c *Chain) Destroy() {
	if c == nil {
		return
	}
	c.bloomExtract.Destroy()
	c.blur.Destroy()

	destroyStage := func(s stage) {
		if s.pipeline != nil {
			c.device.DestroyRenderPipeline(s.pipeline)
		}
		if s.module != nil {
			c.device.DestroyShaderModule(s.module)
		}
	}
	destroyStage(c.extract)
	destroyStage(c.blurStage)
	destroyStage(c.compositeStage)

	if c.uniformBuf != nil {
		c.device.DestroyBuffer(c.uniformBuf)
	}
	if c.sampler != nil {
		c.device.DestroySampler(c.sampler)
	}
	if c.compositeLinout != nil {
		c.device.DestroyPipelineLayout(c.compositeLinout)
	}
	if c.compositeLayout != nil {
		c.device.DestroyBindGroupLayout(c.compositeLayout)
	}
	if c.singleLinout != nil {
		c.device.DestroyPipelineLayout(c.singleLinout)
	}
	if c.singleLayout != nil {
		c.device.DestroyBindGroupLayout(c.singleLayout)
	}
}
