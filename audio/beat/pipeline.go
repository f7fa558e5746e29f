package beat

const (
	silenceRMSThreshold = 0.02
	silenceHoldSeconds  = 2.0
	bpmNormalizer       = 300.0 // spec §3: bpm field is bpm_hz/300
)

// Result is the set of beat-related fields a Pipeline contributes to an
// AudioFeatures snapshot each analysis frame.
type Result struct {
	Onset        float64
	Beat         float64
	BeatPhase    float64
	BPM          float64 // normalized bpm/300, spec §3
	BeatStrength float64
}

// Pipeline runs the onset detector, tempo estimator, Kalman filter, and beat
// scheduler in sequence each analysis frame, applying the silence failure
// semantics of spec §4.2.
type Pipeline struct {
	onset     *OnsetDetector
	tempo     *TempoEstimator
	kalman    *KalmanTempo
	scheduler *Scheduler

	silenceSeconds float64
}

// NewPipeline builds a beat Pipeline for the given analysis frame rate.
func NewPipeline(frameRate float64) *Pipeline {
	return &Pipeline{
		onset:     NewOnsetDetector(),
		tempo:     NewTempoEstimator(frameRate),
		kalman:    NewKalmanTempo(),
		scheduler: NewScheduler(),
	}
}

// Process runs one analysis frame through the pipeline. novelty is the raw
// spectral-flux-based onset input (feature.Extractor.OnsetNovelty); dt is
// the frame's wall-clock duration in seconds; rms is the frame's (already
// raw, pre-normalization) RMS level, used for the silence failure
// semantics.
func (p *Pipeline) Process(dt, novelty, rms float64) Result {
	onsetStrength, detected := p.onset.Process(novelty)

	if rms < silenceRMSThreshold {
		p.silenceSeconds += dt
	} else {
		p.silenceSeconds = 0
	}
	silent := p.silenceSeconds >= silenceHoldSeconds

	est := p.tempo.Push(onsetStrength)
	p.kalman.Update(est)

	beat, phase := p.scheduler.Process(dt, detected, p.kalman.BPM(), p.kalman.Locked())
	if silent {
		beat = 0
	}

	return Result{
		Onset:        onsetStrength,
		Beat:         beat,
		BeatPhase:    phase,
		BPM:          p.kalman.BPM() / bpmNormalizer,
		BeatStrength: p.kalman.Confidence(),
	}
}
