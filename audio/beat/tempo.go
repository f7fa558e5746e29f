package beat

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	historySeconds  = 8.0
	updateInterval  = 0.25 // seconds, spec §4.2 "every N frames (~every 0.25s)"
	minBPM          = 60.0
	maxBPM          = 220.0
	priorCenterBPM  = 150.0
	priorSigmaOctv  = 1.5
)

// octaveRatios are the candidate ratios of the raw autocorrelation peak
// scored under the prior before the tempo locks, spec §4.2.
var octaveRatios = []float64{0.25, 1.0 / 3, 0.5, 2.0 / 3, 1.0, 1.5, 2.0, 3.0, 4.0}

// Estimate is one tempo estimator output.
type Estimate struct {
	BPM        float64
	Confidence float64 // in [0,1]: autocorrelation at the chosen lag over the zero-lag value, without prior weighting
}

// TempoEstimator runs the autocorrelation (Wiener-Khinchin) tempo estimate
// of spec §4.2 over an 8s circular buffer of onset strengths.
type TempoEstimator struct {
	frameRate float64

	buf    []float64
	pos    int
	filled bool

	framesPerUpdate int
	sinceUpdate     int

	fft *fourier.FFT

	last Estimate
}

// NewTempoEstimator builds an estimator for onset strengths arriving at
// frameRate frames/second.
func NewTempoEstimator(frameRate float64) *TempoEstimator {
	n := nextPow2(int(frameRate * historySeconds))
	return &TempoEstimator{
		frameRate:       frameRate,
		buf:             make([]float64, n),
		framesPerUpdate: maxInt(1, int(frameRate*updateInterval)),
		fft:             fourier.NewFFT(n),
		last:            Estimate{BPM: priorCenterBPM},
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Push appends the current frame's onset strength into the circular
// history buffer, and every framesPerUpdate frames recomputes the tempo
// estimate.
func (t *TempoEstimator) Push(onset float64) Estimate {
	t.buf[t.pos] = onset
	t.pos++
	if t.pos >= len(t.buf) {
		t.pos = 0
		t.filled = true
	}

	t.sinceUpdate++
	if t.sinceUpdate < t.framesPerUpdate {
		return t.last
	}
	t.sinceUpdate = 0

	t.last = t.recompute()
	return t.last
}

func (t *TempoEstimator) chronological() []float64 {
	out := make([]float64, len(t.buf))
	if t.filled {
		n := copy(out, t.buf[t.pos:])
		copy(out[n:], t.buf[:t.pos])
	} else {
		copy(out, t.buf[:t.pos])
	}
	return out
}

func (t *TempoEstimator) recompute() Estimate {
	seq := t.chronological()

	mean := 0.0
	for _, v := range seq {
		mean += v
	}
	mean /= float64(len(seq))
	for i := range seq {
		seq[i] -= mean
	}

	spectrum := make([]complex128, len(seq)/2+1)
	t.fft.Coefficients(spectrum, seq)

	power := make([]complex128, len(spectrum))
	for i, c := range spectrum {
		mag := math.Hypot(real(c), imag(c))
		power[i] = complex(mag*mag, 0)
	}

	autocorr := make([]float64, len(seq))
	t.fft.Sequence(autocorr, power)

	lagLo := t.bpmToLag(maxBPM)
	lagHi := t.bpmToLag(minBPM)
	if lagLo < 1 {
		lagLo = 1
	}
	if lagHi >= len(autocorr) {
		lagHi = len(autocorr) - 1
	}
	if lagHi <= lagLo {
		return t.last
	}

	bestLag, bestScore := t.peakLagInRange(autocorr, lagLo, lagHi)
	if bestLag == 0 {
		return t.last
	}
	rawBPM := t.lagToBPM(bestLag)

	// Score octave ratios of the raw peak under the log-Gaussian prior.
	bestBPM := rawBPM
	bestWeighted := -math.MaxFloat64
	for _, ratio := range octaveRatios {
		candidateBPM := rawBPM * ratio
		if candidateBPM < minBPM || candidateBPM > maxBPM {
			continue
		}
		lag := t.bpmToLag(candidateBPM)
		if lag < 0 || lag >= len(autocorr) {
			continue
		}
		score := autocorr[lag] * logGaussianPrior(candidateBPM)
		if score > bestWeighted {
			bestWeighted = score
			bestBPM = candidateBPM
		}
	}

	bestBPM = cascadeOctaveUp(autocorr, t, bestBPM)

	// Confidence from the normalized peak height at the chosen lag.
	chosenLag := t.bpmToLag(bestBPM)
	confidence := 0.0
	if chosenLag >= 0 && chosenLag < len(autocorr) && autocorr[0] > 1e-9 {
		confidence = autocorr[chosenLag] / autocorr[0]
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
	}
	_ = bestScore

	return Estimate{BPM: bestBPM, Confidence: confidence}
}

// cascadeOctaveUp detects when the true tempo is a harmonic of the chosen
// peak by checking for a strong local peak near half/a-third of its lag
// (spec §4.2 "cascading octave-up pass").
func cascadeOctaveUp(autocorr []float64, t *TempoEstimator, bpm float64) float64 {
	lag := t.bpmToLag(bpm)
	if lag <= 0 {
		return bpm
	}

	base := localPeakValue(autocorr, lag)
	for _, mul := range []float64{2, 3} {
		upLag := int(float64(lag) / mul)
		upBPM := bpm * mul
		if upLag < 1 || upLag >= len(autocorr) || upBPM > maxBPM {
			continue
		}
		up := localPeakValue(autocorr, upLag)
		if up > base*1.05 {
			bpm = upBPM
			base = up
			lag = upLag
		}
	}
	return bpm
}

func localPeakValue(autocorr []float64, lag int) float64 {
	lo, hi := lag-1, lag+1
	best := autocorr[lag]
	if lo >= 0 && autocorr[lo] > best {
		best = autocorr[lo]
	}
	if hi < len(autocorr) && autocorr[hi] > best {
		best = autocorr[hi]
	}
	return best
}

func (t *TempoEstimator) peakLagInRange(autocorr []float64, lo, hi int) (int, float64) {
	bestLag := 0
	bestVal := -math.MaxFloat64
	for lag := lo; lag <= hi; lag++ {
		v := autocorr[lag] * logGaussianPrior(t.lagToBPM(lag))
		if v > bestVal {
			bestVal = v
			bestLag = lag
		}
	}
	return bestLag, bestVal
}

func (t *TempoEstimator) lagToBPM(lag int) float64 {
	if lag <= 0 {
		return maxBPM
	}
	periodSeconds := float64(lag) / t.frameRate
	return 60.0 / periodSeconds
}

func (t *TempoEstimator) bpmToLag(bpm float64) int {
	if bpm <= 0 {
		return 0
	}
	periodSeconds := 60.0 / bpm
	return int(math.Round(periodSeconds * t.frameRate))
}

// logGaussianPrior is the genre-agnostic prior of spec §4.2: a Gaussian in
// log2(bpm) space centered at 150 BPM with sigma=1.5 octaves.
func logGaussianPrior(bpm float64) float64 {
	if bpm <= 0 {
		return 0
	}
	x := math.Log2(bpm) - math.Log2(priorCenterBPM)
	return math.Exp(-0.5 * (x / priorSigmaOctv) * (x / priorSigmaOctv))
}
