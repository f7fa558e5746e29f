package capture

import (
	"testing"

	"github.com/phosphorvj/phosphor/audio/ring"
)

func TestSampleSinkMonoPassthrough(t *testing.T) {
	buf := ring.New(16)
	sink := NewSampleSink(buf, 1)

	sink.Write([]float32{1, 2, 3})

	out := make([]float32, 3)
	if n := buf.Read(out); n != 3 {
		t.Fatalf("Read = %d, want 3", n)
	}
	if out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Fatalf("unexpected samples: %v", out)
	}
}

func TestSampleSinkStereoDownmix(t *testing.T) {
	buf := ring.New(16)
	sink := NewSampleSink(buf, 2)

	// Two frames: (1, 3) and (2, -2) -> mono (2, 0).
	sink.Write([]float32{1, 3, 2, -2})

	out := make([]float32, 2)
	if n := buf.Read(out); n != 2 {
		t.Fatalf("Read = %d, want 2", n)
	}
	if out[0] != 2 || out[1] != 0 {
		t.Fatalf("unexpected downmix: %v", out)
	}
}
