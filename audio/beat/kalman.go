package beat

import "math"

const (
	minConfidence       = 0.15
	divergenceLimit     = 15
	octaveSnapTolerance = 0.05
	octaveEscapeFrames  = 50
)

// KalmanTempo tracks log2(BPM) through a scalar Kalman filter, with adaptive
// process/measurement noise and an octave-snap rule, spec §4.2.
type KalmanTempo struct {
	mean     float64 // log2(bpm)
	variance float64

	q, r float64

	divergentStreak int
	lastConfident   float64 // log2(bpm) of the last confident measurement

	escapeCounter int

	recentResiduals []float64

	locked bool
}

// NewKalmanTempo returns a filter initialized at the prior center BPM.
func NewKalmanTempo() *KalmanTempo {
	return &KalmanTempo{
		mean:          math.Log2(priorCenterBPM),
		variance:      1.0,
		q:             0.001,
		r:             0.05,
		lastConfident: math.Log2(priorCenterBPM),
	}
}

// BPM returns the filter's current estimate clamped to [60,220] per spec
// §3's TempoState invariant.
func (k *KalmanTempo) BPM() float64 {
	bpm := math.Exp2(k.mean)
	if bpm < minBPM {
		bpm = minBPM
	}
	if bpm > maxBPM {
		bpm = maxBPM
	}
	return bpm
}

// Confidence reports the filter's current certainty in [0,1], derived from
// its variance.
func (k *KalmanTempo) Confidence() float64 {
	c := 1.0 / (1.0 + k.variance)
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

// Locked reports whether the filter has ever received a confident
// measurement.
func (k *KalmanTempo) Locked() bool { return k.locked }

// Update feeds one tempo-estimator measurement through the filter.
// Measurements below minConfidence are skipped entirely (spec §4.2).
func (k *KalmanTempo) Update(est Estimate) {
	if est.Confidence < minConfidence || est.BPM <= 0 {
		return
	}

	measurement := math.Log2(est.BPM)

	k.adaptNoise(measurement)

	// Predict (identity dynamics — tempo drifts, it does not integrate).
	predictedVariance := k.variance + k.q

	// Residual / innovation.
	residual := measurement - k.mean
	k.trackResidual(residual)

	innovationVariance := predictedVariance + k.r
	gain := predictedVariance / innovationVariance

	k.mean += gain * residual
	k.variance = (1 - gain) * predictedVariance

	k.locked = true
	k.lastConfident = measurement

	k.applyOctaveSnap()
}

// adaptNoise grows Q when recent measurements have been stable (so the
// filter can track a genuine tempo change faster) and grows R with the
// dispersion of recent estimates (so a noisy run of measurements is
// trusted less), spec §4.2.
func (k *KalmanTempo) adaptNoise(measurement float64) {
	if len(k.recentResiduals) < 2 {
		return
	}

	var mean float64
	for _, r := range k.recentResiduals {
		mean += r
	}
	mean /= float64(len(k.recentResiduals))

	var variance float64
	for _, r := range k.recentResiduals {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(k.recentResiduals))

	const baseQ, baseR = 0.0005, 0.02
	stability := 1.0 / (1.0 + variance*50)
	k.q = baseQ + 0.01*stability
	k.r = baseR + 0.5*variance
}

func (k *KalmanTempo) trackResidual(residual float64) {
	k.recentResiduals = append(k.recentResiduals, residual)
	if len(k.recentResiduals) > 30 {
		k.recentResiduals = k.recentResiduals[1:]
	}

	if math.Abs(residual) > 3*math.Sqrt(k.variance+k.r) {
		k.divergentStreak++
	} else {
		k.divergentStreak = 0
	}

	if k.divergentStreak > divergenceLimit {
		// Re-initialize from the last confident measurement (spec §4.2).
		k.mean = k.lastConfident
		k.variance = 1.0
		k.divergentStreak = 0
		k.recentResiduals = k.recentResiduals[:0]
	}
}

// applyOctaveSnap pulls the filter to a 2:1 or 1:2 multiple of its current
// value when it drifts within octaveSnapTolerance of one, with an escape
// counter preventing oscillation (spec §4.2, §9 Open Questions).
func (k *KalmanTempo) applyOctaveSnap() {
	if k.escapeCounter > 0 {
		k.escapeCounter--
		return
	}

	bpm := math.Exp2(k.mean)
	for _, mul := range []float64{2.0, 0.5} {
		target := bpm * mul
		if target < minBPM || target > maxBPM {
			continue
		}
		if math.Abs(target-bpm)/bpm <= octaveSnapTolerance {
			continue // already coherent, no snap needed
		}
		logTarget := math.Log2(target)
		if math.Abs(logTarget-k.mean) <= octaveSnapTolerance {
			k.mean = logTarget
			k.escapeCounter = octaveEscapeFrames
			return
		}
	}
}
