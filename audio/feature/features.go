// Package feature turns raw PCM into the twenty-field AudioFeatures snapshot
// consumed by the render thread: multi-resolution FFT band energies and
// spectral-shape descriptors (Extractor), then adaptive [0,1] normalization
// (Normalizer).
package feature

import "math"

// Count is the number of scalar fields in an AudioFeatures snapshot.
const Count = 20

// Audio is one immutable analysis-frame snapshot. Every field is clamped to
// [0,1] before publication (spec §3 invariant). Beat fields are populated by
// the audio/beat package; feature.Extractor only fills the spectral fields
// and zeroes the rest.
type Audio struct {
	// Band energies.
	SubBass    float64
	Bass       float64
	LowMid     float64
	Mid        float64
	UpperMid   float64
	Presence   float64
	Brilliance float64

	// Aggregates.
	RMS  float64
	Kick float64

	// Spectral shape.
	Centroid  float64
	Flux      float64
	Flatness  float64
	Rolloff   float64
	Bandwidth float64
	ZCR       float64

	// Beat fields, filled by audio/beat.
	Onset        float64
	Beat         float64
	BeatPhase    float64
	BPM          float64
	BeatStrength float64
}

// Clamp forces every field into [0,1], as required before publication.
func (a *Audio) Clamp() {
	a.SubBass = clamp01(a.SubBass)
	a.Bass = clamp01(a.Bass)
	a.LowMid = clamp01(a.LowMid)
	a.Mid = clamp01(a.Mid)
	a.UpperMid = clamp01(a.UpperMid)
	a.Presence = clamp01(a.Presence)
	a.Brilliance = clamp01(a.Brilliance)
	a.RMS = clamp01(a.RMS)
	a.Kick = clamp01(a.Kick)
	a.Centroid = clamp01(a.Centroid)
	a.Flux = clamp01(a.Flux)
	a.Flatness = clamp01(a.Flatness)
	a.Rolloff = clamp01(a.Rolloff)
	a.Bandwidth = clamp01(a.Bandwidth)
	a.ZCR = clamp01(a.ZCR)
	a.Onset = clamp01(a.Onset)
	a.Beat = clamp01(a.Beat)
	a.BeatPhase = wrap01(a.BeatPhase)
	a.BPM = clamp01(a.BPM)
	a.BeatStrength = clamp01(a.BeatStrength)
}

// Fields returns the twenty scalars in the §3/§4.3 wire order, the same
// order uniform.Block.SetAudio packs them in.
func (a *Audio) Fields() [Count]float64 {
	return [Count]float64{
		a.SubBass, a.Bass, a.LowMid, a.Mid, a.UpperMid, a.Presence, a.Brilliance,
		a.RMS, a.Kick,
		a.Centroid, a.Flux, a.Flatness, a.Rolloff, a.Bandwidth, a.ZCR,
		a.Onset, a.Beat, a.BeatPhase, a.BPM, a.BeatStrength,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func wrap01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Mod(v, 1.0)
	if v < 0 {
		v += 1.0
	}
	return v
}
