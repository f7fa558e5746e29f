package beat

import "math"

// SchedulerState is one of the three predictive beat-scheduler states of
// spec §4.2.
type SchedulerState int

const (
	StateUnlocked SchedulerState = iota
	StateLocked
	StateCorrected
)

func (s SchedulerState) String() string {
	switch s {
	case StateUnlocked:
		return "unlocked"
	case StateLocked:
		return "locked"
	case StateCorrected:
		return "corrected"
	default:
		return "unknown"
	}
}

// Scheduler predicts beat times from a locked tempo and emits a level
// `beat=1` on the analysis frame closest to each predicted beat, applying
// bounded phase correction when an onset lands near but not on the
// prediction (spec §4.2).
type Scheduler struct {
	state    SchedulerState
	now      float64 // seconds, accumulated from per-frame dt
	lastBeat float64
}

// NewScheduler returns a Scheduler starting Unlocked.
func NewScheduler() *Scheduler {
	return &Scheduler{state: StateUnlocked}
}

// State returns the scheduler's current state, for diagnostics.
func (s *Scheduler) State() SchedulerState { return s.state }

// Process advances the scheduler by dt seconds and returns this frame's
// beat level and phase. kalmanLocked is true once the Kalman filter has
// produced its first confident estimate (spec §4.2: "On first confident
// Kalman estimate, transitions to Locked").
func (s *Scheduler) Process(dt float64, onsetDetected bool, bpm float64, kalmanLocked bool) (beat, beatPhase float64) {
	s.now += dt

	if s.state == StateUnlocked {
		if onsetDetected {
			beat = 1
			s.lastBeat = s.now
		}
		if kalmanLocked {
			s.state = StateLocked
			s.lastBeat = s.now
		}
		return beat, 0
	}

	period := 60.0 / math.Max(bpm, 1e-6)
	predicted := s.lastBeat + period
	tolerance := dt / 2

	switch {
	case math.Abs(s.now-predicted) <= tolerance:
		beat = 1
		s.lastBeat = predicted
		if s.state == StateCorrected {
			s.state = StateLocked
		}
		// The phase wraps to exactly 0 on the frame that emits the beat.
		return beat, 0

	case onsetDetected:
		delta := s.now - predicted
		maxCorrection := 0.2 * period
		if delta > maxCorrection {
			delta = maxCorrection
		} else if delta < -maxCorrection {
			delta = -maxCorrection
		}
		s.lastBeat += delta
		s.state = StateCorrected
	}

	beatPhase = wrapPhase((s.now - s.lastBeat) / period)
	return beat, beatPhase
}

func wrapPhase(v float64) float64 {
	v = math.Mod(v, 1.0)
	if v < 0 {
		v += 1.0
	}
	return v
}
