package feature

import "math"

// DecayAlpha is the per-analysis-frame adaptive normalization decay, spec
// §4.1. It is a contract: implementations may expose it but the default
// must match. Too large causes flicker on dynamics changes; too small
// causes feature saturation (spec §9).
const DecayAlpha = 0.005

const epsilon = 1e-6

// featureRange is a running [min,max] envelope for one feature. Per spec
// §4.1 the envelope only ever widens on a normal frame: min is monotonically
// non-increasing, max monotonically non-decreasing. The envelope narrows
// again only through Normalizer.Relax. The audio front does not call
// Relax, so an envelope is not narrowed during sustained silence.
type featureRange struct {
	min, max float64
	seeded   bool
}

func (r *featureRange) update(current float64, alpha float64) {
	if !r.seeded {
		r.min = current
		r.max = current + epsilon
		r.seeded = true
		return
	}

	minCandidate := r.min*(1+alpha) - alpha*current
	if minCandidate > r.min {
		minCandidate = r.min
	}
	r.min = minCandidate

	maxCandidate := r.max*(1-alpha) + alpha*current
	if maxCandidate < r.max {
		maxCandidate = r.max
	}
	r.max = maxCandidate
}

func (r *featureRange) normalize(current float64) float64 {
	if !r.seeded {
		return 0
	}
	span := r.max - r.min
	if span < epsilon {
		span = epsilon
	}
	v := (current - r.min) / span
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// relax narrows the envelope back toward the current value at the given
// rate.
func (r *featureRange) relax(current, rate float64) {
	if !r.seeded {
		return
	}
	r.min = r.min + (current-r.min)*rate
	r.max = r.max + (current-r.max)*rate
	if r.max-r.min < epsilon {
		r.max = r.min + epsilon
	}
}

// normalizedFieldCount is the number of raw fields Normalizer tracks: the
// seven band energies, rms, kick, and the six spectral-shape descriptors.
// The five beat fields are normalized within audio/beat instead, since
// onset/bpm/beat_phase/beat_strength each have their own bespoke [0,1]
// derivation (spec §4.2) rather than a generic running envelope.
const normalizedFieldCount = 15

// Normalizer applies the per-feature adaptive min/max envelope of spec
// §4.1/§9 to the fifteen non-beat fields of a raw Audio snapshot.
type Normalizer struct {
	ranges [normalizedFieldCount]featureRange
	alpha  float64
}

// NewNormalizer returns a Normalizer using the spec-mandated decay.
func NewNormalizer() *Normalizer {
	return &Normalizer{alpha: DecayAlpha}
}

func rawFields(a *Audio) [normalizedFieldCount]float64 {
	return [normalizedFieldCount]float64{
		a.SubBass, a.Bass, a.LowMid, a.Mid, a.UpperMid, a.Presence, a.Brilliance,
		a.RMS, a.Kick,
		a.Centroid, a.Flux, a.Flatness, a.Rolloff, a.Bandwidth, a.ZCR,
	}
}

func setRawFields(a *Audio, v [normalizedFieldCount]float64) {
	a.SubBass, a.Bass, a.LowMid, a.Mid, a.UpperMid, a.Presence, a.Brilliance =
		v[0], v[1], v[2], v[3], v[4], v[5], v[6]
	a.RMS, a.Kick = v[7], v[8]
	a.Centroid, a.Flux, a.Flatness, a.Rolloff, a.Bandwidth, a.ZCR =
		v[9], v[10], v[11], v[12], v[13], v[14]
}

// Apply updates the running envelopes from the raw snapshot and rewrites its
// fields in place with their normalized [0,1] values.
func (n *Normalizer) Apply(a *Audio) {
	raw := rawFields(a)
	var out [normalizedFieldCount]float64
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		n.ranges[i].update(v, n.alpha)
		out[i] = n.ranges[i].normalize(v)
	}
	setRawFields(a, out)
}

// Relax narrows every envelope toward the given raw snapshot at the given
// rate. The audio front does not call it: sustained silence suppresses
// beat emission in audio/beat but leaves the envelopes as they are.
func (n *Normalizer) Relax(a *Audio, rate float64) {
	raw := rawFields(a)
	for i, v := range raw {
		n.ranges[i].relax(v, rate)
	}
}
