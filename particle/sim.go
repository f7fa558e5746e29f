package particle

// CPUParticle mirrors the GPU-resident particle record for testing the
// simulation rules on the CPU without a live device (spec §4.5).
type CPUParticle struct {
	Life     float32
	Age      float32
	Lifetime float32
}

// CPUSim is a reference implementation of one compute-dispatch step,
// used by tests to validate the emission-budget and lifecycle invariants
// of spec §8 properties 9 and scenario S5.
type CPUSim struct {
	particles []CPUParticle
}

// NewCPUSim allocates a dead (life=0) particle pool of the given size.
func NewCPUSim(count int) *CPUSim {
	return &CPUSim{particles: make([]CPUParticle, count)}
}

// Step advances every particle by dt, spending at most emitBudget
// emissions on dead slots in index order (mirroring the atomic
// fetch_add claim counter's effect: claims below budget succeed, at or
// above it the slot stays dead). Returns how many particles were newly
// emitted this step.
func (s *CPUSim) Step(dt float64, lifetime float32, emitBudget uint32) int {
	var claimed uint32
	emitted := 0

	for i := range s.particles {
		p := &s.particles[i]
		if p.Life <= 0 {
			if claimed < emitBudget {
				claimed++
				p.Life = 1
				p.Age = 0
				p.Lifetime = lifetime
				emitted++
			}
			continue
		}

		p.Age += float32(dt)
		if p.Age >= p.Lifetime {
			p.Life = 0
		}
	}

	return emitted
}

// LiveCount returns how many particles currently have life > 0.
func (s *CPUSim) LiveCount() int {
	n := 0
	for _, p := range s.particles {
		if p.Life > 0 {
			n++
		}
	}
	return n
}

// Invariant reports whether every live particle satisfies age <=
// lifetime (spec §8 "no particle has life>0 with age>lifetime").
func (s *CPUSim) Invariant() bool {
	for _, p := range s.particles {
		if p.Life > 0 && p.Age > p.Lifetime {
			return false
		}
	}
	return true
}
