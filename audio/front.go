// Package audio is the audio front: it owns the capture device, runs the
// analysis thread (ring buffer drain -> feature extraction -> adaptive
// normalization -> beat pipeline), and publishes one AudioFeatures
// snapshot per analysis frame into a latest-wins slot for the render
// thread to read.
package audio

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/audio/beat"
	"github.com/phosphorvj/phosphor/audio/capture"
	"github.com/phosphorvj/phosphor/audio/feature"
	"github.com/phosphorvj/phosphor/audio/ring"
)

// Config configures a Front.
type Config struct {
	Backend     capture.Backend
	Device      capture.Device
	SampleRate  float64
	Channels    int
	AnalysisHz  int // analysis-frame rate, spec §4.1 "~60-120Hz"
	RingSeconds float64
}

// Front owns one capture Session and runs the A-D analysis pipeline over
// it, publishing Audio snapshots for the engine to pick up each render
// frame.
type Front struct {
	cfg Config

	ring    *ring.Buffer
	sink    *capture.SampleSink
	session capture.Session

	extractor  *feature.Extractor
	normalizer *feature.Normalizer
	beat       *beat.Pipeline

	hopSize int
	mono    []float64

	latest atomic.Pointer[feature.Audio]
}

// New builds a Front. It does not start capture; call Start.
func New(cfg Config) *Front {
	if cfg.AnalysisHz <= 0 {
		cfg.AnalysisHz = 60
	}
	if cfg.RingSeconds <= 0 {
		cfg.RingSeconds = 2.0
	}

	hop := int(cfg.SampleRate / float64(cfg.AnalysisHz))
	if hop < 1 {
		hop = 1
	}

	buf := ring.New(int(cfg.SampleRate * cfg.RingSeconds))

	f := &Front{
		cfg:        cfg,
		ring:       buf,
		sink:       capture.NewSampleSink(buf, cfg.Channels),
		extractor:  feature.NewExtractor(cfg.SampleRate),
		normalizer: feature.NewNormalizer(),
		beat:       beat.NewPipeline(float64(cfg.AnalysisHz)),
		hopSize:    hop,
		mono:       make([]float64, hop),
	}
	f.latest.Store(&feature.Audio{})
	return f
}

// Start opens the capture session and starts the analysis goroutine, which
// runs until ctx is cancelled. Stop ends only the capture session.
func (f *Front) Start(ctx context.Context) error {
	session, err := f.cfg.Backend.Start(capture.SessionConfig{
		Device:     f.cfg.Device,
		SampleRate: f.cfg.SampleRate,
		Channels:   f.cfg.Channels,
	})
	if err != nil {
		return errors.Wrap(err, "failed to start capture session")
	}
	if err := session.Start(f.sink); err != nil {
		return errors.Wrap(err, "failed to start capture stream")
	}
	f.session = session

	go f.run(ctx)
	return nil
}

// Stop tears down the capture session.
func (f *Front) Stop() error {
	if f.session == nil {
		return nil
	}
	return f.session.Stop()
}

// Latest returns the most recently published Audio snapshot. Safe to call
// concurrently with the analysis thread; never blocks.
func (f *Front) Latest() feature.Audio {
	return *f.latest.Load()
}

// run drains the ring buffer at the analysis frame rate, one hop of
// samples per frame, and publishes a fresh Audio snapshot after each.
func (f *Front) run(ctx context.Context) {
	dur := time.Second / time.Duration(f.cfg.AnalysisHz)
	ticker := time.NewTicker(dur)
	defer ticker.Stop()

	raw := make([]float32, f.hopSize)
	lastTick := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			f.tick(dt, raw)
		}
	}
}

func (f *Front) tick(dt float64, raw []float32) {
	n := f.ring.Read(raw)
	if n == 0 {
		return
	}

	// The SampleSink has already downmixed to mono before the ring.
	mono := mixToMono(raw[:n], 1, f.mono[:0])
	f.mono = mono

	snapshot := f.extractor.Analyze(mono)
	novelty := f.extractor.OnsetNovelty()
	rawRMS := snapshot.RMS

	result := f.beat.Process(dt, novelty, rawRMS)
	snapshot.Onset = result.Onset
	snapshot.Beat = result.Beat
	snapshot.BeatPhase = result.BeatPhase
	snapshot.BPM = result.BPM
	snapshot.BeatStrength = result.BeatStrength

	// Apply only rewrites the 15 spectral/RMS fields in place; the beat
	// fields set above already have their own [0,1] derivation.
	f.normalizer.Apply(&snapshot)

	snapshot.Clamp()

	f.latest.Store(&snapshot)
}

// mixToMono averages interleaved channels down to mono float64 samples for
// the analysis pipeline, reusing out's backing array when possible.
func mixToMono(interleaved []float32, channels int, out []float64) []float64 {
	if channels < 1 {
		channels = 1
	}
	if channels == 1 {
		for _, s := range interleaved {
			out = append(out, float64(s))
		}
		return out
	}
	frames := len(interleaved) / channels
	for i := 0; i < frames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(interleaved[base+c])
		}
		out = append(out, sum/float64(channels))
	}
	return out
}
