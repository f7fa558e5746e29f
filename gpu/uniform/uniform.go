// Package uniform defines the per-layer GPU uniform block layout (spec
// §4.3): a fixed, bit-stable 256-byte struct interleaving frame timing,
// the twenty audio features, the parameter store's sixteen lanes, and
// feedback state, plus a 128-byte particle-compute subset. Both blocks
// are padded out to their full size with reserved, always-zero bytes:
// 256 and 128 are the minimum dynamic-uniform-buffer-offset alignment
// WebGPU implementations commonly require, so a layer's block is padded
// to that boundary rather than to its minimal field size. Layout must
// match the WGSL Uniforms struct every effect shader binds at group(0),
// binding(0).
package uniform

import (
	"encoding/binary"
	"math"

	"github.com/phosphorvj/phosphor/audio/feature"
)

// Size is the exact byte size of the packed Block, per spec §4.3.
const Size = 256

// ParticleSize is the exact byte size of the packed ParticleBlock.
const ParticleSize = 128

// Block is the per-layer uniform block. Field order is the wire order;
// see Pack for the exact byte layout. Reserved bytes after FrameIndex pad
// the struct out to Size.
type Block struct {
	Time       float32
	DeltaTime  float32
	Resolution [2]float32

	Audio [feature.Count]float32

	Params [16]float32

	FeedbackDecay float32
	FrameIndex    uint32
}

const blockHeaderBytes = 4 + 4 + 2*4 + feature.Count*4 + 16*4 + 4 + 4

// Pack serializes Block into the 256-byte wire layout: time, delta_time,
// resolution.xy, 20 audio features, 16 param lanes, feedback_decay,
// frame_index, then zeroed reserved padding out to Size. Deterministic
// and bit-stable for equal inputs (spec §8 property 3).
func (b *Block) Pack() [Size]byte {
	var out [Size]byte
	le := binary.LittleEndian

	putF32 := func(off int, v float32) {
		le.PutUint32(out[off:off+4], math.Float32bits(v))
	}

	putF32(0, b.Time)
	putF32(4, b.DeltaTime)
	putF32(8, b.Resolution[0])
	putF32(12, b.Resolution[1])

	off := 16
	for _, v := range b.Audio {
		putF32(off, v)
		off += 4
	}
	for _, v := range b.Params {
		putF32(off, v)
		off += 4
	}
	putF32(off, b.FeedbackDecay)
	off += 4
	putF32(off, float32(b.FrameIndex)) // WGSL declares frame_index as f32

	// Remaining bytes out to Size are reserved and stay zero.
	return out
}

// SetAudio copies a feature.Audio snapshot's twenty fields into Block.Audio
// in the §3 wire order.
func (b *Block) SetAudio(a *feature.Audio) {
	fields := a.Fields()
	for i, v := range fields {
		b.Audio[i] = float32(v)
	}
}

// ParticleBlock is the 128-byte uniform subset bound to particle compute
// passes: a ten-field audio subset plus emitter geometry (spec §4.3),
// padded out to ParticleSize.
type ParticleBlock struct {
	SubBass  float32
	Bass     float32
	Mid      float32
	RMS      float32
	Kick     float32
	Onset    float32
	Centroid float32
	Flux     float32
	Beat     float32
	Phase    float32

	EmitOrigin [2]float32
	EmitBudget float32
	Seed       uint32

	Resolution [2]float32
	DeltaTime  float32
}

// Pack serializes ParticleBlock into its 128-byte wire layout, with
// reserved trailing bytes left zero.
func (p *ParticleBlock) Pack() [ParticleSize]byte {
	var out [ParticleSize]byte
	le := binary.LittleEndian

	vals := []float32{
		p.SubBass, p.Bass, p.Mid, p.RMS, p.Kick,
		p.Onset, p.Centroid, p.Flux, p.Beat, p.Phase,
		p.EmitOrigin[0], p.EmitOrigin[1], p.EmitBudget,
	}
	off := 0
	for _, v := range vals {
		le.PutUint32(out[off:off+4], math.Float32bits(v))
		off += 4
	}
	le.PutUint32(out[off:off+4], math.Float32bits(float32(p.Seed))) // WGSL declares seed as f32
	off += 4
	le.PutUint32(out[off:off+4], math.Float32bits(p.Resolution[0]))
	off += 4
	le.PutUint32(out[off:off+4], math.Float32bits(p.Resolution[1]))
	off += 4
	le.PutUint32(out[off:off+4], math.Float32bits(p.DeltaTime))

	return out
}

// SetAudio copies the ten particle-relevant fields from a full AudioFeatures
// snapshot.
func (p *ParticleBlock) SetAudio(a *feature.Audio) {
	p.SubBass = float32(a.SubBass)
	p.Bass = float32(a.Bass)
	p.Mid = float32(a.Mid)
	p.RMS = float32(a.RMS)
	p.Kick = float32(a.Kick)
	p.Onset = float32(a.Onset)
	p.Centroid = float32(a.Centroid)
	p.Flux = float32(a.Flux)
	p.Beat = float32(a.Beat)
	p.Phase = float32(a.BeatPhase)
}
