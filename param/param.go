// Package param implements the typed parameter store (spec §3/§4.3): a
// per-effect, per-layer set of named values that pack deterministically
// into the GPU uniform block's 16-lane params array.
package param

import (
	"math"

	"github.com/pkg/errors"
)

// Kind tags a ParamDef/ParamValue's variant.
type Kind int

const (
	KindFloat Kind = iota
	KindBool
	KindColor
	KindPoint2D
)

// Lanes reports how many scalar lanes a value of this kind occupies.
func (k Kind) Lanes() int {
	switch k {
	case KindColor:
		return 4
	case KindPoint2D:
		return 2
	default:
		return 1
	}
}

// Def is a parameter's metadata: its kind, bounds, and default.
type Def struct {
	Name    string
	Kind    Kind
	Min     float64
	Max     float64
	Default [4]float64 // only the leading Kind.Lanes() components are meaningful
}

// FloatDef is a convenience constructor for a scalar parameter.
func FloatDef(name string, min, max, def float64) Def {
	return Def{Name: name, Kind: KindFloat, Min: min, Max: max, Default: [4]float64{def}}
}

// BoolDef is a convenience constructor for a boolean parameter, packed as
// 0.0/1.0 in its single lane.
func BoolDef(name string, def bool) Def {
	v := 0.0
	if def {
		v = 1.0
	}
	return Def{Name: name, Kind: KindBool, Min: 0, Max: 1, Default: [4]float64{v}}
}

// ColorDef is a convenience constructor for an RGBA color parameter.
func ColorDef(name string, rgba [4]float64) Def {
	return Def{Name: name, Kind: KindColor, Min: 0, Max: 1, Default: rgba}
}

// Point2DDef is a convenience constructor for a 2D point parameter.
func Point2DDef(name string, min, max float64, def [2]float64) Def {
	return Def{Name: name, Kind: KindPoint2D, Min: min, Max: max, Default: [4]float64{def[0], def[1]}}
}

// Value is a parameter's current value, laid out the same way as Def's
// Default.
type Value struct {
	def Def
	v   [4]float64
}

// Lanes is the number of vec4-width scalar lanes this value occupies in
// the packed uniform block.
func (v *Value) Lanes() int { return v.def.Kind.Lanes() }

// Kind returns the value's parameter kind.
func (v *Value) Kind() Kind { return v.def.Kind }

// Components returns the value's lane-ordered scalar components, as many
// as Lanes() returns.
func (v *Value) Components() []float64 {
	switch v.def.Kind {
	case KindColor:
		return v.v[:4]
	case KindPoint2D:
		return v.v[:2]
	default:
		return v.v[:1]
	}
}

func (v *Value) clamp() {
	switch v.def.Kind {
	case KindFloat, KindPoint2D:
		for i := range v.Components() {
			if v.v[i] < v.def.Min {
				v.v[i] = v.def.Min
			}
			if v.v[i] > v.def.Max {
				v.v[i] = v.def.Max
			}
		}
	case KindBool:
		if v.v[0] != 0 {
			v.v[0] = 1
		}
	case KindColor:
		for i := 0; i < 4; i++ {
			if v.v[i] < 0 {
				v.v[i] = 0
			}
			if v.v[i] > 1 {
				v.v[i] = 1
			}
		}
	}
}

// maxLanes is the 16-scalar-lane budget of spec §4.3's params block:
// four vec4s of four lanes each.
const maxLanes = 16

// Store is an ordered, name-keyed collection of parameter values, capped
// at maxLanes scalar lanes (spec §3 ParamStore invariant).
type Store struct {
	order []string
	byName map[string]*Value
	lanes  int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{byName: make(map[string]*Value)}
}

// Define adds a parameter, initialized to its default. Returns an error if
// adding it would exceed the 16-lane budget.
func (s *Store) Define(def Def) error {
	if _, exists := s.byName[def.Name]; exists {
		return errors.Errorf("parameter %q already defined", def.Name)
	}
	lanes := def.Kind.Lanes()
	if s.lanes+lanes > maxLanes {
		return errors.Errorf("parameter %q would exceed the %d-lane budget", def.Name, maxLanes)
	}

	val := &Value{def: def, v: def.Default}
	val.clamp()

	s.byName[def.Name] = val
	s.order = append(s.order, def.Name)
	s.lanes += lanes
	return nil
}

// Set validates and clamps v into the named parameter's declared range,
// rejecting a kind mismatch. Matches spec §4.3's set(name, value) contract.
func (s *Store) Set(name string, kind Kind, components []float64) error {
	val, ok := s.byName[name]
	if !ok {
		return errors.Errorf("parameter %q not found", name)
	}
	if val.def.Kind != kind {
		return errors.Errorf("parameter %q: type mismatch, have %v want %v", name, kind, val.def.Kind)
	}

	copy(val.v[:], components)
	val.clamp()
	return nil
}

// SetFloat is a convenience wrapper over Set for scalar/bool parameters.
func (s *Store) SetFloat(name string, f float64) error {
	val, ok := s.byName[name]
	if !ok {
		return errors.Errorf("parameter %q not found", name)
	}
	return s.Set(name, val.def.Kind, []float64{f})
}

// Get returns the named parameter's current value, or false if undefined.
func (s *Store) Get(name string) (Value, bool) {
	val, ok := s.byName[name]
	if !ok {
		return Value{}, false
	}
	return *val, true
}

// Names returns parameter names in declaration order, the order Pack
// writes lanes in.
func (s *Store) Names() []string { return s.order }

// Pack writes every parameter's components into the 16-lane `array<vec4f,
// 4>` buffer in declaration order, deterministically (spec §4.3
// invariant). Unused trailing lanes are zero.
func (s *Store) Pack(out *[maxLanes]float32) {
	*out = [maxLanes]float32{}
	lane := 0
	for _, name := range s.order {
		val := s.byName[name]
		for _, c := range val.Components() {
			if lane >= maxLanes {
				return
			}
			if math.IsNaN(c) {
				c = 0
			}
			out[lane] = float32(c)
			lane++
		}
	}
}
