package feature

import "testing"

func TestNormalizerKeepsFieldsInUnitRange(t *testing.T) {
	n := NewNormalizer()

	inputs := []Audio{
		{SubBass: 0.9, Bass: 0.1, RMS: 0.5, Kick: 0.0, Centroid: 4000, Flux: 12, Flatness: 0.2, Rolloff: 8000, Bandwidth: 900, ZCR: 0.1},
		{SubBass: 0.1, Bass: 0.9, RMS: 0.9, Kick: 5.0, Centroid: 100, Flux: 0, Flatness: 0.9, Rolloff: 100, Bandwidth: 50, ZCR: 0.9},
		{SubBass: 0.0, Bass: 0.0, RMS: 0.0, Kick: 0.0, Centroid: 0, Flux: 0, Flatness: 0, Rolloff: 0, Bandwidth: 0, ZCR: 0},
	}

	for frame, in := range inputs {
		a := in
		n.Apply(&a)
		for _, v := range rawFields(&a) {
			if v < 0 || v > 1 {
				t.Fatalf("frame %d: normalized value %v out of [0,1]", frame, v)
			}
		}
	}
}

func TestFeatureRangeWidensMonotonically(t *testing.T) {
	var r featureRange
	r.update(0.5, DecayAlpha)
	min0, max0 := r.min, r.max

	r.update(0.9, DecayAlpha)
	if r.max < max0 {
		t.Fatalf("max shrank: %v -> %v", max0, r.max)
	}

	r.update(0.1, DecayAlpha)
	if r.min > min0 {
		t.Fatalf("min grew: %v -> %v", min0, r.min)
	}
}

func TestFeatureRangeRelaxNarrows(t *testing.T) {
	var r featureRange
	r.update(0.5, DecayAlpha)
	for i := 0; i < 50; i++ {
		r.update(1.0, DecayAlpha)
	}
	wideSpan := r.max - r.min

	for i := 0; i < 50; i++ {
		r.relax(0.5, 0.1)
	}
	narrowSpan := r.max - r.min

	if narrowSpan >= wideSpan {
		t.Fatalf("relax did not narrow span: %v -> %v", wideSpan, narrowSpan)
	}
}
