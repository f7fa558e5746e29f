// Package preset serializes and restores a full engine snapshot — the
// layer stack, each layer's effect and parameter values, and the
// post-process settings — to a single file per preset under the config
// directory (spec §6 "Persisted state", supplemented feature from
// `original_source/crates/phosphor-app/src/preset/`).
package preset

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"

	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/effect"
	"github.com/phosphorvj/phosphor/layer"
	"github.com/phosphorvj/phosphor/param"
	"github.com/phosphorvj/phosphor/postprocess"
)

// Version is the on-disk schema version, bumped when the file shape
// changes incompatibly.
const Version = 1

// ParamValue is one named parameter's persisted value.
type ParamValue struct {
	Name string     `json:"name"`
	Kind int        `json:"kind"`
	Vals []float64  `json:"vals"`
}

// LayerState captures everything spec §3's Layer holds that a preset
// must restore.
type LayerState struct {
	Name       string       `json:"name"`
	EffectPath string       `json:"effect_path"`
	Params     []ParamValue `json:"params"`
	Blend      int          `json:"blend"`
	Opacity    float64      `json:"opacity"`
	Enabled    bool         `json:"enabled"`
	Locked     bool         `json:"locked"`
	Pinned     bool         `json:"pinned"`
}

// Preset is a full LayerStack + post-process settings + active layer
// snapshot (spec §8 "Preset save -> load -> save produces byte-identical
// files").
type Preset struct {
	Version     int                  `json:"version"`
	Name        string               `json:"name"`
	ActiveLayer int                  `json:"active_layer"`
	Layers      []LayerState         `json:"layers"`
	PostProcess postprocess.Settings `json:"postprocess"`
}

// Capture builds a Preset from the live engine state. It does not touch
// GPU resources; only Params, Blend, Opacity, Enabled, Locked, Pinned
// and EffectPath are read from each layer.
func Capture(name string, stack *layer.Stack, pp postprocess.Settings) Preset {
	p := Preset{
		Version:     Version,
		Name:        name,
		ActiveLayer: stack.Active(),
		PostProcess: pp,
	}
	for i := 0; i < stack.Len(); i++ {
		l := stack.At(i)
		p.Layers = append(p.Layers, LayerState{
			Name:       l.Name,
			EffectPath: l.EffectPath,
			Params:     captureParams(l.Params),
			Blend:      int(l.Blend),
			Opacity:    l.Opacity,
			Enabled:    l.Enabled,
			Locked:     l.Locked,
			Pinned:     l.Pinned,
		})
	}
	return p
}

func captureParams(store *param.Store) []ParamValue {
	names := store.Names()
	out := make([]ParamValue, 0, len(names))
	for _, name := range names {
		v, ok := store.Get(name)
		if !ok {
			continue
		}
		out = append(out, ParamValue{
			Name: name,
			Kind: int(v.Kind()),
			Vals: append([]float64(nil), v.Components()...),
		})
	}
	return out
}

// Save writes p to path as canonical, key-sorted, indented JSON. Two
// captures of identical state produce byte-identical files, since
// LayerState.Params is a slice in Store.Names declaration order and
// marshalCanonical sorts every object's keys.
func Save(path string, p Preset) error {
	data, err := marshalCanonical(p)
	if err != nil {
		return errors.Wrap(err, "failed to encode preset")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write preset %q", path)
	}
	return nil
}

// marshalCanonical produces indented JSON with object keys in sorted
// order, so unordered map fields (none currently, but any added later)
// still round-trip byte-identically.
func marshalCanonical(p Preset) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	sorted, err := marshalSorted(generic)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, sorted, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func marshalSorted(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := marshalSorted(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := marshalSorted(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(t)
	}
}

// Load reads and parses a preset file.
func Load(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, errors.Wrapf(err, "failed to read preset %q", path)
	}
	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return Preset{}, errors.Wrapf(err, "failed to parse preset %q", path)
	}
	return p, nil
}

// BuildContent constructs a layer's renderable content (effect executor
// and, if the manifest declares one, its particle system) for a
// freshly-loaded effect definition. The engine supplies this since the
// concrete layer.Content it builds (pairing effect.Executor with
// particle.System) is an engine-level concern preset does not otherwise
// depend on.
type BuildContent func(def *effect.Def) (layer.Content, error)

// Apply rebuilds stack's layers from p, loading each layer's effect
// manifest fresh and rebuilding its GPU content via build (only
// parameter values, blend, opacity and flags are restored directly from
// the preset; the shader passes and particle system are recompiled from
// the manifest).
func Apply(p Preset, stack *layer.Stack, device hal.Device, width, height uint32, build BuildContent, log Logger) error {
	stack.Destroy()

	for _, ls := range p.Layers {
		l, err := layer.New(device, ls.Name, width, height)
		if err != nil {
			return errors.Wrapf(err, "failed to allocate layer %q", ls.Name)
		}
		l.EffectPath = ls.EffectPath
		l.Blend = layer.BlendMode(ls.Blend)
		l.Opacity = ls.Opacity
		l.Enabled = ls.Enabled
		l.Locked = ls.Locked
		l.Pinned = ls.Pinned

		if ls.EffectPath != "" {
			def, err := effect.Load(ls.EffectPath)
			if err != nil {
				log.Warn("preset: failed to load effect, layer left contentless", "layer", ls.Name, "path", ls.EffectPath, "err", err)
			} else {
				if store, err := def.BuildParamStore(); err == nil {
					l.Params = store
				}
				if content, err := build(def); err != nil {
					log.Warn("preset: failed to build layer content", "layer", ls.Name, "path", ls.EffectPath, "err", err)
				} else {
					l.Content = content
				}
			}
		}

		for _, pv := range ls.Params {
			if err := l.Params.Set(pv.Name, param.Kind(pv.Kind), pv.Vals); err != nil {
				log.Warn("preset: skipping incompatible parameter", "layer", ls.Name, "param", pv.Name, "err", err)
			}
		}

		if err := stack.Push(l); err != nil {
			return errors.Wrap(err, "failed to restore layer stack")
		}
	}

	if p.ActiveLayer >= 0 && p.ActiveLayer < stack.Len() {
		_ = stack.SetActive(p.ActiveLayer)
	}
	return nil
}

// Logger is the minimal structured-logging surface Apply needs, letting
// it accept *slog.Logger without importing log/slog directly.
type Logger interface {
	Warn(msg string, args ...any)
}
