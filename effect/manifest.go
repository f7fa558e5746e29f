// Package effect loads effect manifests (spec §6 "Effect description
// file") and runs their shader passes through a hot-reloading executor
// (spec §4.6).
package effect

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/param"
	"github.com/phosphorvj/phosphor/particle"
)

// PassDef is one entry in a multi-pass effect's declared pass list.
type PassDef struct {
	Name     string `json:"name"`
	Shader   string `json:"shader"`
	Feedback bool   `json:"feedback,omitempty"`
}

// ParamDef mirrors param.Def's JSON shape, one entry of an EffectDef's
// up-to-16 declared parameters.
type ParamDef struct {
	Name    string     `json:"name"`
	Kind    string     `json:"kind"` // "float" | "bool" | "color" | "point2d"
	Min     float64    `json:"min,omitempty"`
	Max     float64    `json:"max,omitempty"`
	Default [4]float64 `json:"default,omitempty"`
}

// ParticleManifest mirrors spec §6's "particles" block.
type ParticleManifest struct {
	MaxCount         uint32  `json:"max_count"`
	EmitterShape     string  `json:"emitter_shape"`
	EmitterRadius    float32 `json:"emitter_radius"`
	EmitterPositionX float32 `json:"emitter_x"`
	EmitterPositionY float32 `json:"emitter_y"`
	Lifetime         float32 `json:"lifetime"`
	InitialSpeed     float32 `json:"initial_speed"`
	InitialSize      float32 `json:"initial_size"`
	SizeEnd          float32 `json:"size_end"`
	Gravity          [2]float32 `json:"gravity"`
	Drag             float32 `json:"drag"`
	Turbulence       float32 `json:"turbulence"`
	Attraction       float32 `json:"attraction_strength"`
	EmitRate         float32 `json:"emit_rate"`
	BurstOnBeat      float32 `json:"burst_on_beat"`
	ComputeShader    string  `json:"compute_shader,omitempty"`
	Sprite           string  `json:"sprite,omitempty"`
	ImageSample      string  `json:"image_sample,omitempty"`
	Blend            string  `json:"blend"` // "additive" | "alpha"
}

// PostProcessOverride mirrors spec §6's "postprocess" block; a nil field
// means "inherit the global default". The block is parsed into
// Def.PostProcess only: neither the engine nor the postprocess package
// applies it.
type PostProcessOverride struct {
	Enabled        *bool    `json:"enabled,omitempty"`
	BloomThreshold *float64 `json:"bloom_threshold,omitempty"`
	BloomIntensity *float64 `json:"bloom_intensity,omitempty"`
	Vignette       *float64 `json:"vignette,omitempty"`
}

// Def is an effect manifest, loaded from an effect description file
// (spec §6). Either Shader is non-empty or Passes has at least one entry.
type Def struct {
	Name        string               `json:"name"`
	Author      string               `json:"author,omitempty"`
	Description string               `json:"description,omitempty"`
	Shader      string               `json:"shader,omitempty"`
	Passes      []PassDef            `json:"passes,omitempty"`
	Inputs      []ParamDef           `json:"inputs,omitempty"`
	Particles   *ParticleManifest    `json:"particles,omitempty"`
	PostProcess *PostProcessOverride `json:"postprocess,omitempty"`
}

// maxParamDefs is the spec §3/§6 cap of 16 declared parameters per
// effect.
const maxParamDefs = 16

// Load reads and validates an effect manifest from path.
func Load(path string) (*Def, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read effect manifest %q", path)
	}

	var def Def
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrapf(err, "failed to parse effect manifest %q", path)
	}

	if err := def.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid effect manifest %q", path)
	}

	return &def, nil
}

// Validate checks the structural invariants of spec §3's EffectDef: a
// single shader or a non-empty pass list, and at most 16 parameter
// definitions.
func (d *Def) Validate() error {
	if d.Shader == "" && len(d.Passes) == 0 {
		return errors.New("effect must declare either a single shader or a non-empty passes list")
	}
	if d.Shader != "" && len(d.Passes) > 0 {
		return errors.New("effect must not declare both shader and passes")
	}
	if len(d.Inputs) > maxParamDefs {
		return errors.Errorf("effect declares %d parameters, max is %d", len(d.Inputs), maxParamDefs)
	}
	return nil
}

// NormalizedPasses normalizes a single-shader effect into the one-pass form so
// callers always iterate a pass list.
func (d *Def) NormalizedPasses() []PassDef {
	if len(d.Passes) > 0 {
		return d.Passes
	}
	return []PassDef{{Name: "main", Shader: d.Shader, Feedback: false}}
}

// BuildParamStore constructs a param.Store from the manifest's declared
// inputs.
func (d *Def) BuildParamStore() (*param.Store, error) {
	store := param.NewStore()
	for _, in := range d.Inputs {
		def, err := in.toParamDef()
		if err != nil {
			return nil, err
		}
		if err := store.Define(def); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (p ParamDef) toParamDef() (param.Def, error) {
	switch p.Kind {
	case "float":
		return param.FloatDef(p.Name, p.Min, p.Max, p.Default[0]), nil
	case "bool":
		return param.BoolDef(p.Name, p.Default[0] != 0), nil
	case "color":
		return param.ColorDef(p.Name, p.Default), nil
	case "point2d":
		return param.Point2DDef(p.Name, p.Min, p.Max, [2]float64{p.Default[0], p.Default[1]}), nil
	default:
		return param.Def{}, errors.Errorf("parameter %q: unknown kind %q", p.Name, p.Kind)
	}
}

// BuildParticleConfig translates the manifest's particle block into a
// particle.Config, if present.
func (d *Def) BuildParticleConfig() (*particle.Config, bool) {
	if d.Particles == nil {
		return nil, false
	}
	m := d.Particles

	cfg := particle.Config{
		MaxCount: m.MaxCount,
		Emitter: particle.Emitter{
			Shape:    parseEmitterShape(m.EmitterShape),
			Origin:   [2]float32{m.EmitterPositionX, m.EmitterPositionY},
			Radius:   m.EmitterRadius,
			EmitRate: m.EmitRate,
			Burst:    m.BurstOnBeat,
		},
		Forces: particle.Forces{
			Gravity:    m.Gravity,
			Drag:       m.Drag,
			Turbulence: m.Turbulence,
			Attraction: m.Attraction,
		},
		Lifetime:  m.Lifetime,
		InitSpeed: m.InitialSpeed,
		InitSize:  m.InitialSize,
		EndSize:   m.SizeEnd,
		Additive:  m.Blend != "alpha",
	}
	return &cfg, true
}

func parseEmitterShape(s string) particle.EmitterShape {
	switch s {
	case "ring":
		return particle.EmitterRing
	case "line":
		return particle.EmitterLine
	case "screen":
		return particle.EmitterScreen
	case "image":
		return particle.EmitterImage
	default:
		return particle.EmitterPoint
	}
}
