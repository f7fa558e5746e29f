package feature

import "math"

// windowFunc applies an in-place window to a real sample buffer before FFT.
// Adapted from the teacher's dsp/window package.
type windowFunc func(buf []float64)

func cosSumWindow(buf []float64, a0 float64) {
	size := len(buf)
	a1 := 1.0 - a0
	coef := 2.0 * math.Pi / float64(size-1)
	for n := 0; n < size; n++ {
		buf[n] *= a0 - a1*math.Cos(coef*float64(n))
	}
}

// hannWindow is the only window spec §4.1 calls for; all three
// multi-resolution FFT windows are Hann-windowed.
func hannWindow(buf []float64) {
	cosSumWindow(buf, 0.5)
}
