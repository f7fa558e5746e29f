// Package particle implements the GPU compute particle system (spec
// §4.5): two ping-pong storage buffers of particles, simulated by a
// compute shader with an atomic emission-claim counter, and rendered by
// a vertex-pulling instanced draw.
package particle

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/gpu"
)

// ParticleSize is the fixed byte size of one particle record: four vec4
// lanes (spec §3 Particle).
const ParticleSize = 64

// simParamsSize is the byte size of the static per-system simulation
// uniform (gravity, drag, turbulence, attraction, lifetime, init/end
// size, emitter geometry): padded to a 16-byte multiple as WebGPU
// uniform buffers require.
const simParamsSize = 64

// workgroupSize matches the WGSL @workgroup_size(256) declared in
// computeShader.
const workgroupSize = 256

// EmitterShape is the geometry new particles are seeded from.
type EmitterShape int

const (
	EmitterPoint EmitterShape = iota
	EmitterRing
	EmitterLine
	EmitterScreen
	EmitterImage
)

// Emitter describes where and how new particles spawn.
type Emitter struct {
	Shape    EmitterShape
	Origin   [2]float32
	Radius   float32
	EmitRate float32 // particles/second
	Burst    float32 // additional particles on a beat=1 frame
}

// Forces are the per-effect simulation parameters applied every
// integration step.
type Forces struct {
	Gravity    [2]float32
	Drag       float32
	Turbulence float32
	Attraction float32
}

// Config configures a System.
type Config struct {
	MaxCount  uint32
	Emitter   Emitter
	Forces    Forces
	Lifetime  float32
	InitSpeed float32
	InitSize  float32
	EndSize   float32
	Additive  bool // additive blend (SrcAlpha, One) vs alpha blend, spec §4.5
}

// System owns a particle simulation's ping-pong storage buffers,
// emission-claim counter, and the compute/render pipelines that operate
// on them.
type System struct {
	device hal.Device
	queue  hal.Queue
	cfg    Config

	buffers [2]hal.Buffer
	counter hal.Buffer
	readIdx int
	frame   uint32

	frameUniform hal.Buffer
	simParams    hal.Buffer

	computeBGLayout hal.BindGroupLayout
	computeLayout   hal.PipelineLayout
	computePipeline hal.ComputePipeline
	computeBG       [2]hal.BindGroup // [readIdx]: reads buffers[i], writes buffers[1-i]

	renderBGLayout hal.BindGroupLayout
	renderLayout   hal.PipelineLayout
	renderPipeline hal.RenderPipeline
}

// New allocates the two storage buffers (zero-initialized, so every
// particle starts with life=0), the emission counter, and builds the
// compute and render pipelines.
func New(device hal.Device, queue hal.Queue, cfg Config) (*System, error) {
	if cfg.MaxCount == 0 {
		return nil, errors.New("particle system: MaxCount must be > 0")
	}

	s := &System{device: device, queue: queue, cfg: cfg}

	size := uint64(cfg.MaxCount) * ParticleSize
	usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	for i := range s.buffers {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: "particle.buffer",
			Size:  size,
			Usage: usage,
		})
		if err != nil {
			s.Destroy()
			return nil, errors.Wrap(err, "failed to create particle storage buffer")
		}
		s.buffers[i] = buf
	}

	counter, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "particle.emitCounter",
		Size:  4,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		s.Destroy()
		return nil, errors.Wrap(err, "failed to create emission counter buffer")
	}
	s.counter = counter

	frameUniform, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "particle.frameUniform",
		Size:  128, // uniform.ParticleSize
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		s.Destroy()
		return nil, errors.Wrap(err, "failed to create particle frame uniform buffer")
	}
	s.frameUniform = frameUniform

	simParams, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "particle.simParams",
		Size:  simParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		s.Destroy()
		return nil, errors.Wrap(err, "failed to create particle sim params buffer")
	}
	s.simParams = simParams
	queue.WriteBuffer(s.simParams, 0, s.packSimParams())

	if err := s.buildComputePipeline(); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.buildRenderPipeline(); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.buildComputeBindGroups(); err != nil {
		s.Destroy()
		return nil, err
	}

	return s, nil
}

func (s *System) packSimParams() []byte {
	out := make([]byte, simParamsSize)
	le := binary.LittleEndian
	putF32 := func(off int, v float32) { le.PutUint32(out[off:off+4], math.Float32bits(v)) }

	putF32(0, s.cfg.Forces.Gravity[0])
	putF32(4, s.cfg.Forces.Gravity[1])
	putF32(8, s.cfg.Forces.Drag)
	putF32(12, s.cfg.Forces.Turbulence)
	putF32(16, s.cfg.Forces.Attraction)
	putF32(20, s.cfg.Lifetime)
	putF32(24, s.cfg.InitSpeed)
	putF32(28, s.cfg.InitSize)
	putF32(32, s.cfg.EndSize)
	le.PutUint32(out[36:40], s.cfg.MaxCount)
	le.PutUint32(out[40:44], uint32(s.cfg.Emitter.Shape))
	putF32(44, s.cfg.Emitter.Radius)
	return out
}

func (s *System) buildComputePipeline() error {
	layout, err := s.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "particle.compute.bindGroupLayout",
		Entries: []gputypes.BindGroupLayoutEntry{
			gpu.UniformLayout(0, gputypes.ShaderStageCompute),
			gpu.UniformLayout(1, gputypes.ShaderStageCompute),
			gpu.StorageLayout(2, gputypes.ShaderStageCompute, true),
			gpu.StorageLayout(3, gputypes.ShaderStageCompute, false),
			gpu.StorageLayout(4, gputypes.ShaderStageCompute, false),
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create particle compute bind group layout")
	}
	s.computeBGLayout = layout

	pipelineLayout, err := s.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "particle.compute.pipelineLayout",
		BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create particle compute pipeline layout")
	}
	s.computeLayout = pipelineLayout

	module, err := s.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "particle.compute",
		Source: hal.ShaderSource{WGSL: computeShader},
	})
	if err != nil {
		return errors.Wrap(err, "particle compute shader compile error")
	}
	defer s.device.DestroyShaderModule(module)

	pipeline, err := s.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "particle.compute",
		Layout: pipelineLayout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create particle compute pipeline")
	}
	s.computePipeline = pipeline
	return nil
}

func (s *System) buildRenderPipeline() error {
	layout, err := s.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "particle.render.bindGroupLayout",
		Entries: []gputypes.BindGroupLayoutEntry{
			gpu.StorageLayout(0, gputypes.ShaderStageVertex, true),
			gpu.UniformLayout(1, gputypes.ShaderStageVertex),
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create particle render bind group layout")
	}
	s.renderBGLayout = layout

	pipelineLayout, err := s.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "particle.render.pipelineLayout",
		BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create particle render pipeline layout")
	}
	s.renderLayout = pipelineLayout

	module, err := s.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "particle.render",
		Source: hal.ShaderSource{WGSL: renderShader},
	})
	if err != nil {
		return errors.Wrap(err, "particle render shader compile error")
	}
	defer s.device.DestroyShaderModule(module)

	blend := alphaBlend
	if s.cfg.Additive {
		blend = additiveBlend
	}

	pipeline, err := s.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "particle.render",
		Layout: pipelineLayout,
		Vertex: hal.VertexState{Module: module, EntryPoint: "vs_main"},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []hal.ColorTargetState{{
				Format:    gpu.HDRFormat,
				Blend:     &blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive:   hal.PrimitiveState{},
		Multisample: hal.MultisampleState{SampleCount: 1},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create particle render pipeline")
	}
	s.renderPipeline = pipeline
	return nil
}

var additiveBlend = gputypes.BlendState{
	Color: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorSrcAlpha, DstFactor: gputypes.BlendFactorOne, Operation: gputypes.BlendOperationAdd},
	Alpha: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorOne, Operation: gputypes.BlendOperationAdd},
}

var alphaBlend = gputypes.BlendState{
	Color: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorSrcAlpha, DstFactor: gputypes.BlendFactorOneMinusSrcAlpha, Operation: gputypes.BlendOperationAdd},
	Alpha: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorOneMinusSrcAlpha, Operation: gputypes.BlendOperationAdd},
}

func (s *System) buildComputeBindGroups() error {
	for i := range s.computeBG {
		in := s.buffers[i]
		out := s.buffers[1-i]
		bg, err := s.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  "particle.compute.bindGroup",
			Layout: s.computeBGLayout,
			Entries: []gputypes.BindGroupEntry{
				gpu.BufferEntry(0, s.frameUniform),
				gpu.BufferEntry(1, s.simParams),
				gpu.BufferEntry(2, in),
				gpu.BufferEntry(3, out),
				gpu.BufferEntry(4, s.counter),
			},
		})
		if err != nil {
			return errors.Wrap(err, "failed to create particle compute bind group")
		}
		s.computeBG[i] = bg
	}
	return nil
}

// EmitBudget computes this frame's emission budget: emit_rate*dt +
// beat_burst*beat (spec §4.5).
func (c Config) EmitBudget(dt float64, beat float64) uint32 {
	budget := float64(c.Emitter.EmitRate)*dt + float64(c.Emitter.Burst)*beat
	if budget < 0 {
		budget = 0
	}
	return uint32(budget)
}

// Config returns the system's simulation configuration.
func (s *System) Config() Config { return s.cfg }

// Read returns the buffer holding the previous frame's simulated state.
func (s *System) Read() hal.Buffer { return s.buffers[s.readIdx] }

// Write returns the buffer this frame's compute dispatch should write
// into.
func (s *System) Write() hal.Buffer { return s.buffers[1-s.readIdx] }

// Swap flips read/write roles after a dispatch completes.
func (s *System) Swap() { s.readIdx = 1 - s.readIdx; s.frame++ }

// ResetCounter zeroes the emission-claim counter; called once per frame
// before the compute dispatch (spec §4.5).
func (s *System) ResetCounter(queue hal.Queue) {
	queue.WriteBuffer(s.counter, 0, []byte{0, 0, 0, 0})
}

// Seed is the per-frame seed fed to the compute shader so newly-emitted
// particles are deterministically pseudo-random per (frame, index).
func (s *System) Seed() uint32 { return s.frame }

// Simulate uploads this frame's packed particle uniform block, resets
// the emission counter, and dispatches the compute shader over the
// current ping-pong buffer pair (spec §4.5). It swaps the read/write
// roles once the dispatch is encoded, so Render always reads the
// freshly written buffer.
func (s *System) Simulate(encoder hal.CommandEncoder, uniforms []byte) error {
	s.queue.WriteBuffer(s.frameUniform, 0, uniforms)
	s.ResetCounter(s.queue)

	workgroups := (s.cfg.MaxCount + workgroupSize - 1) / workgroupSize

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "particle.simulate"})
	pass.SetPipeline(s.computePipeline)
	pass.SetBindGroup(0, s.computeBG[s.readIdx], nil)
	pass.Dispatch(workgroups, 1, 1)
	pass.End()

	s.Swap()
	return nil
}

// Render draws every particle as a vertex-pulled billboard on top of
// target's current contents (spec §4.5 "vertex-pulling draw"): six
// vertices per instance, MaxCount instances, additive or alpha blended
// depending on Config.Additive.
func (s *System) Render(encoder hal.CommandEncoder, target *gpu.RenderTarget) error {
	bindGroup, err := s.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "particle.render.bindGroup",
		Layout: s.renderBGLayout,
		Entries: []gputypes.BindGroupEntry{
			gpu.BufferEntry(0, s.Read()),
			gpu.BufferEntry(1, s.frameUniform),
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create particle render bind group")
	}
	defer s.device.DestroyBindGroup(bindGroup)

	pass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "particle.render",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    target.View,
			LoadOp:  hal.LoadOpLoad,
			StoreOp: hal.StoreOpStore,
		}},
	})
	pass.SetPipeline(s.renderPipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(6, s.cfg.MaxCount, 0, 0)
	pass.End()

	return nil
}

// Destroy releases the system's GPU buffers and pipelines.
func (s *System) Destroy() {
	if s == nil {
		return
	}
	for _, bg := range s.computeBG {
		if bg != nil {
			s.device.DestroyBindGroup(bg)
		}
	}
	if s.computePipeline != nil {
		s.device.DestroyComputePipeline(s.computePipeline)
	}
	if s.computeLayout != nil {
		s.device.DestroyPipelineLayout(s.computeLayout)
	}
	if s.computeBGLayout != nil {
		s.device.DestroyBindGroupLayout(s.computeBGLayout)
	}
	if s.renderPipeline != nil {
		s.device.DestroyRenderPipeline(s.renderPipeline)
	}
	if s.renderLayout != nil {
		s.device.DestroyPipelineLayout(s.renderLayout)
	}
	if s.renderBGLayout != nil {
		s.device.DestroyBindGroupLayout(s.renderBGLayout)
	}
	if s.simParams != nil {
		s.device.DestroyBuffer(s.simParams)
	}
	if s.frameUniform != nil {
		s.device.DestroyBuffer(s.frameUniform)
	}
	for _, b := range s.buffers {
		if b != nil {
			s.device.DestroyBuffer(b)
		}
	}
	if s.counter != nil {
		s.device.DestroyBuffer(s.counter)
	}
}
