package feature

import (
	"math"
	"testing"
)

func sineWave(freq, sampleRate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}
	return out
}

func whiteNoise(n int, seed uint64) []float64 {
	out := make([]float64, n)
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float64(int64(seed>>11))/float64(1<<52) - 1
	}
	return out
}

// TestPureToneHasNoNaNsAndLowFlatness exercises the spirit of spec §8
// scenario S1: a steady 440 Hz tone should produce finite features with
// spectral energy concentrated in a single bin, and RMS should track the
// tone's known amplitude.
func TestPureToneHasNoNaNsAndLowFlatness(t *testing.T) {
	const sampleRate = 44100.0
	e := NewExtractor(sampleRate)

	var last Audio
	tone := sineWave(440, sampleRate, 4096*6)
	chunk := 512
	for i := 0; i+chunk <= len(tone); i += chunk {
		last = e.Analyze(tone[i : i+chunk])
	}

	for _, v := range rawFields(&last) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("pure tone produced non-finite feature: %v", last)
		}
	}
	if last.RMS < 0.5 || last.RMS > 0.8 {
		t.Fatalf("RMS = %v, want close to a sine wave's ~0.707 RMS", last.RMS)
	}
	if last.Flatness > 0.3 {
		t.Fatalf("flatness = %v, want a pure tone to be far from white-noise-flat", last.Flatness)
	}
}

// TestWhiteNoiseIsFlatterThanTone compares a pure tone against white noise:
// noise's spectrum is close to uniform, so its flatness measure must exceed
// the tone's.
func TestWhiteNoiseIsFlatterThanTone(t *testing.T) {
	const sampleRate = 44100.0

	toneExt := NewExtractor(sampleRate)
	tone := sineWave(440, sampleRate, 4096*6)
	var toneLast Audio
	for i := 0; i+512 <= len(tone); i += 512 {
		toneLast = toneExt.Analyze(tone[i : i+512])
	}

	noiseExt := NewExtractor(sampleRate)
	noise := whiteNoise(4096*6, 12345)
	var noiseLast Audio
	for i := 0; i+512 <= len(noise); i += 512 {
		noiseLast = noiseExt.Analyze(noise[i : i+512])
	}

	if noiseLast.Flatness <= toneLast.Flatness {
		t.Fatalf("noise flatness %v should exceed tone flatness %v", noiseLast.Flatness, toneLast.Flatness)
	}
}

// TestSilentInputProducesNoNaNs exercises spec §8's silent-input boundary
// behavior: feeding zero samples must never produce NaNs even though every
// band energy and the flatness ratio divide by near-zero denominators.
func TestSilentInputProducesNoNaNs(t *testing.T) {
	e := NewExtractor(44100)
	silence := make([]float64, 4096*10)

	var last Audio
	for i := 0; i+512 <= len(silence); i += 512 {
		last = e.Analyze(silence[i : i+512])
	}

	for _, v := range rawFields(&last) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("silent input produced non-finite feature: %v", last)
		}
	}
	if last.RMS != 0 {
		t.Fatalf("RMS on silence = %v, want 0", last.RMS)
	}
}

// TestResetClearsWindowState exercises spec §8's sample-rate-switch boundary
// behavior: Reset must leave the extractor in a state that produces finite
// output immediately, and a quiet chunk's linear-scale band energy must stay
// far below a loud tone's, showing the old window contents were discarded
// rather than blended into the new ones.
func TestResetClearsWindowState(t *testing.T) {
	e := NewExtractor(44100)
	loud := sineWave(100, 44100, 4096) // inside the bass band, spec §4.1
	loudSnapshot := e.Analyze(loud)

	e.Reset(48000)

	quiet := make([]float64, 512)
	for i := range quiet {
		quiet[i] = 0.01
	}
	got := e.Analyze(quiet)

	for _, v := range rawFields(&got) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("reset then quiet input produced non-finite feature: %v", got)
		}
	}
	if got.Bass >= loudSnapshot.Bass {
		t.Fatalf("bass energy after reset (%v) should be far below the pre-reset loud tone's (%v)", got.Bass, loudSnapshot.Bass)
	}
}
