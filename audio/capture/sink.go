package capture

import "github.com/phosphorvj/phosphor/audio/ring"

// SampleSink is where a Session writes captured PCM. It downmixes
// interleaved multi-channel frames to mono before pushing them into the
// ring buffer the analysis thread reads from; the mixdown happens here,
// on the capture callback's goroutine, so the analysis side only ever
// deals in a single channel of samples.
type SampleSink struct {
	buf      *ring.Buffer
	channels int
	scratch  []float32
}

// NewSampleSink wraps a ring.Buffer for a session with the given channel
// count.
func NewSampleSink(buf *ring.Buffer, channels int) *SampleSink {
	if channels < 1 {
		channels = 1
	}
	return &SampleSink{buf: buf, channels: channels}
}

// Write accepts an interleaved block of samples (len(frame) must be a
// multiple of the sink's channel count) and pushes the mono downmix into
// the ring buffer. Never blocks; excess is dropped by the ring buffer's
// own overflow behavior.
func (s *SampleSink) Write(frame []float32) {
	if s.channels == 1 {
		s.buf.Write(frame)
		return
	}

	n := len(frame) / s.channels
	if cap(s.scratch) < n {
		s.scratch = make([]float32, n)
	}
	mono := s.scratch[:n]

	inv := 1.0 / float32(s.channels)
	for i := 0; i < n; i++ {
		var sum float32
		base := i * s.channels
		for c := 0; c < s.channels; c++ {
			sum += frame[base+c]
		}
		mono[i] = sum * inv
	}

	s.buf.Write(mono)
}
