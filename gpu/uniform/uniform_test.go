package uniform

import "testing"

func TestPackIsDeterministic(t *testing.T) {
	b := &Block{Time: 1.0, DeltaTime: 0.016, Resolution: [2]float32{1920, 1080}}
	for i := range b.Audio {
		b.Audio[i] = 0.5
	}
	a1 := b.Pack()
	a2 := b.Pack()
	if a1 != a2 {
		t.Fatal("Pack is not deterministic for equal inputs")
	}
	if len(a1) != Size {
		t.Fatalf("Pack length = %d, want %d", len(a1), Size)
	}
}

func TestParticleBlockSize(t *testing.T) {
	p := &ParticleBlock{}
	out := p.Pack()
	if len(out) != ParticleSize {
		t.Fatalf("ParticleBlock.Pack length = %d, want %d", len(out), ParticleSize)
	}
}
