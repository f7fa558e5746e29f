package effect

import (
	"crypto/sha256"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/gpu"
	"github.com/phosphorvj/phosphor/gpu/uniform"
)

// pass is one compiled stage of an executor. Every pass renders into its
// own ping-pong target regardless of Feedback: Feedback only decides
// what pass 0 samples at the feedback binding (its own previous frame,
// vs a placeholder); every later pass always samples the pass before it
// so a multi-pass chain actually pipes stage N's output into stage N+1
// (spec §4.6).
type pass struct {
	def      PassDef
	module   hal.ShaderModule
	pipeline hal.RenderPipeline
	hash     [32]byte

	target *gpu.PingPongTarget
}

// Executor compiles and runs a multi-pass effect (spec §4.6). Passes run
// in declared order; a pass with Feedback=true reads its own previous
// frame's output as the feedback texture. Terminal pass output is the
// layer's output texture.
type Executor struct {
	device hal.Device
	queue  hal.Queue
	log    *slog.Logger

	bgLayout       hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	uniformBuf     hal.Buffer
	sampler        hal.Sampler
	placeholder    *gpu.Placeholder

	passes []*pass

	lastError error
}

// New compiles every declared pass of def.
func New(device hal.Device, queue hal.Queue, log *slog.Logger, def *Def, width, height uint32) (*Executor, error) {
	e := &Executor{device: device, queue: queue, log: log}

	bgLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "effect.bindGroupLayout",
		Entries: []gputypes.BindGroupLayoutEntry{
			gpu.UniformLayout(0, gputypes.ShaderStageFragment),
			gpu.TextureLayout(1, gputypes.ShaderStageFragment),
			gpu.SamplerLayout(2, gputypes.ShaderStageFragment),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create effect bind group layout")
	}
	e.bgLayout = bgLayout

	pipelineLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "effect.pipelineLayout",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		e.Destroy()
		return nil, errors.Wrap(err, "failed to create effect pipeline layout")
	}
	e.pipelineLayout = pipelineLayout

	uniformBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "effect.uniforms",
		Size:  uint64(uniform.Size),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		e.Destroy()
		return nil, errors.Wrap(err, "failed to create effect uniform buffer")
	}
	e.uniformBuf = uniformBuf

	sampler, err := gpu.NewLinearSampler(device, "effect.sampler")
	if err != nil {
		e.Destroy()
		return nil, errors.Wrap(err, "failed to create effect sampler")
	}
	e.sampler = sampler

	placeholder, err := gpu.NewPlaceholder(device, queue, "effect.placeholder")
	if err != nil {
		e.Destroy()
		return nil, errors.Wrap(err, "failed to create effect placeholder")
	}
	e.placeholder = placeholder

	for _, pd := range def.NormalizedPasses() {
		p, err := e.compile(pd, width, height)
		if err != nil {
			e.Destroy()
			return nil, errors.Wrapf(err, "failed to compile pass %q", pd.Name)
		}
		e.passes = append(e.passes, p)
	}

	return e, nil
}

func (e *Executor) compile(def PassDef, width, height uint32) (*pass, error) {
	src, err := os.ReadFile(def.Shader)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read shader %q", def.Shader)
	}

	module, pipeline, err := e.buildPipeline(def, src)
	if err != nil {
		return nil, err
	}

	target, err := gpu.NewPingPongTarget(e.device, width, height, "pass."+def.Name)
	if err != nil {
		e.device.DestroyRenderPipeline(pipeline)
		e.device.DestroyShaderModule(module)
		return nil, err
	}

	return &pass{def: def, module: module, pipeline: pipeline, hash: sha256.Sum256(src), target: target}, nil
}

func (e *Executor) buildPipeline(def PassDef, src []byte) (hal.ShaderModule, hal.RenderPipeline, error) {
	module, err := e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  def.Shader,
		Source: hal.ShaderSource{WGSL: shaderLibrary + gpu.FullscreenTriangleVS + string(src)},
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "shader compile error in %q", def.Shader)
	}

	pipeline, err := e.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "effect." + def.Name,
		Layout: e.pipelineLayout,
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
		e.device.DestroyShaderModule(module)
		return nil, nil, errors.Wrapf(err, "pipeline build error in %q", def.Shader)
	}

	return module, pipeline, nil
}

// Output returns the terminal pass's render target (spec §4.6: "Terminal
// pass output is the layer's output texture").
func (e *Executor) Output() *gpu.RenderTarget {
	if len(e.passes) == 0 {
		return nil
	}
	return e.passes[len(e.passes)-1].target.Read()
}

// LastError returns the most recent compile error surfaced by Reload, or
// nil. The executor keeps running its last-working pipeline until a
// Reload succeeds.
func (e *Executor) LastError() error { return e.lastError }

// Reload recompiles every pass whose shader source file is in the
// changed set and whose content actually differs from what's currently
// compiled (spec §4.6 "content-change de-duplication (hash compare)").
// On a compile failure the previous pipeline is retained and the error
// recorded; on success the new module and pipeline swap in, keeping the
// shared bind group layout.
func (e *Executor) Reload(changed map[string]bool) {
	for i, p := range e.passes {
		if !changed[p.def.Shader] {
			continue
		}

		src, err := os.ReadFile(p.def.Shader)
		if err != nil {
			e.log.Warn("hot reload: failed to read shader", "path", p.def.Shader, "err", err)
			continue
		}
		newHash := sha256.Sum256(src)
		if newHash == p.hash {
			continue // editor autosave with no actual content change
		}

		module, pipeline, err := e.buildPipeline(p.def, src)
		if err != nil {
			e.lastError = err
			e.log.Warn("hot reload: keeping previous pipeline", "path", p.def.Shader, "err", err)
			continue
		}

		e.device.DestroyRenderPipeline(p.pipeline)
		e.device.DestroyShaderModule(p.module)
		e.passes[i].module = module
		e.passes[i].pipeline = pipeline
		e.passes[i].hash = newHash
		e.lastError = nil
	}
}

// Render uploads the frame's packed uniform block and runs every pass in
// order, each pass sampling the previous pass's freshly written output
// (or, for pass 0, its own previous frame when Feedback is set, else the
// shared placeholder) at the feedback binding (spec §4.6).
func (e *Executor) Render(encoder hal.CommandEncoder, uniforms []byte) error {
	e.queue.WriteBuffer(e.uniformBuf, 0, uniforms)

	for i, p := range e.passes {
		feedbackView := e.placeholder.View()
		feedbackSampler := e.placeholder.Sampler
		switch {
		case i > 0:
			feedbackView = e.passes[i-1].target.Read().View
			feedbackSampler = e.sampler
		case p.def.Feedback:
			feedbackView = p.target.Read().View
			feedbackSampler = e.sampler
		}

		bindGroup, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  "effect." + p.def.Name + ".bindGroup",
			Layout: e.bgLayout,
			Entries: []gputypes.BindGroupEntry{
				gpu.BufferEntry(0, e.uniformBuf),
				gpu.TextureViewEntry(1, feedbackView),
				gpu.SamplerEntry(2, feedbackSampler),
			},
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create bind group for pass %q", p.def.Name)
		}

		renderPass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "effect." + p.def.Name,
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:    p.target.Write().View,
				LoadOp:  hal.LoadOpClear,
				StoreOp: hal.StoreOpStore,
			}},
		})
		renderPass.SetPipeline(p.pipeline)
		renderPass.SetBindGroup(0, bindGroup, nil)
		renderPass.Draw(3, 1, 0, 0)
		renderPass.End()

		e.device.DestroyBindGroup(bindGroup)
		p.target.Swap()
	}
	return nil
}

// Destroy releases every pass's GPU resources plus the executor's shared
// layout, uniform buffer, sampler, and placeholder.
func (e *Executor) Destroy() {
	if e == nil {
		return
	}
	for _, p := range e.passes {
		if p.pipeline != nil {
			e.device.DestroyRenderPipeline(p.pipeline)
		}
		if p.module != nil {
			e.device.DestroyShaderModule(p.module)
		}
		p.target.Destroy()
	}
	e.placeholder.Destroy(e.device)
	if e.sampler != nil {
		e.device.DestroySampler(e.sampler)
	}
	if e.uniformBuf != nil {
		e.device.DestroyBuffer(e.uniformBuf)
	}
	if e.pipelineLayout != nil {
		e.device.DestroyPipelineLayout(e.pipelineLayout)
	}
	if e.bgLayout != nil {
		e.device.DestroyBindGroupLayout(e.bgLayout)
	}
}
