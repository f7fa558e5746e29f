package gpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// UniformLayout describes a uniform-buffer binding at the given slot,
// visible to the given shader stages.
func UniformLayout(binding uint32, vis gputypes.ShaderStage) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: vis,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

// StorageLayout describes a storage-buffer binding, read-only or
// read-write depending on readOnly.
func StorageLayout(binding uint32, vis gputypes.ShaderStage, readOnly bool) gputypes.BindGroupLayoutEntry {
	t := gputypes.BufferBindingTypeStorage
	if readOnly {
		t = gputypes.BufferBindingTypeReadOnlyStorage
	}
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: vis,
		Buffer:     &gputypes.BufferBindingLayout{Type: t},
	}
}

// TextureLayout describes a filterable, non-multisampled 2D texture
// binding, the shape every feedback/scene read in this codebase uses.
func TextureLayout(binding uint32, vis gputypes.ShaderStage) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: vis,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}

// SamplerLayout describes a filtering sampler binding.
func SamplerLayout(binding uint32, vis gputypes.ShaderStage) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: vis,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	}
}

// BufferEntry binds buf's entire contents at binding.
func BufferEntry(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.BufferBinding{
			Buffer: buf.NativeHandle(),
			Offset: 0,
			Size:   0, // 0 = entire buffer
		},
	}
}

// TextureViewEntry binds a texture view at binding.
func TextureViewEntry(binding uint32, view hal.TextureView) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.TextureViewBinding{View: view.NativeHandle()},
	}
}

// SamplerEntry binds a sampler at binding.
func SamplerEntry(binding uint32, samp hal.Sampler) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.SamplerBinding{Sampler: samp.NativeHandle()},
	}
}

// NewLinearSampler creates a clamp-to-edge, linearly-filtered sampler, the
// only sampling mode this codebase's feedback and scene reads need.
func NewLinearSampler(device hal.Device, label string) (hal.Sampler, error) {
	return device.CreateSampler(&hal.SamplerDescriptor{
		Label:         label,
		AddressModeU:  gputypes.AddressModeClampToEdge,
		AddressModeV:  gputypes.AddressModeClampToEdge,
		AddressModeW:  gputypes.AddressModeClampToEdge,
		MagFilter:     gputypes.FilterModeLinear,
		MinFilter:     gputypes.FilterModeLinear,
		MipmapFilter:  gputypes.FilterModeLinear,
	})
}

// FullscreenTriangleVS is the shared vertex stage every fullscreen HDR
// pass in this codebase uses: three vertices, no vertex buffer, covering
// the entire render target. Every render pipeline's shader module
// concatenates this with its own fragment source.
const FullscreenTriangleVS = `
@vertex
fn vs_main(@builtin(vertex_index) vertex_index: u32) -> @builtin(position) vec4f {
    let x = f32(i32(vertex_index & 1u) * 4) - 1.0;
    let y = f32(i32(vertex_index & 2u) * 2) - 1.0;
    return vec4f(x, y, 0.0, 1.0);
}
`
