package feature

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Band frequency edges, Hz. See spec §4.1.
const (
	subBassLo, subBassHi = 20.0, 60.0
	bassLo, bassHi       = 60.0, 250.0
	kickLo, kickHi       = 30.0, 120.0

	lowMidLo, lowMidHi   = 250.0, 500.0
	midLo, midHi         = 500.0, 2000.0
	upperMidLo, upperMid = 2000.0, 4000.0

	presenceLo, presenceHi     = 4000.0, 6000.0
	brillianceLo, brillianceHi = 6000.0, 20000.0

	dynamicRangeDB = 80.0
)

// slidingWindow keeps the most recent `size` mono samples, oldest first,
// windowed and FFT'd on demand. It is not safe for concurrent use; the
// Extractor that owns it is only ever driven from the analysis thread.
type slidingWindow struct {
	size    int
	buf     []float64 // circular
	pos     int
	filled  bool
	fft     *fourier.FFT
	scratch []float64    // windowed copy fed to the FFT
	spec    []complex128 // fft output, size/2+1
	mag     []float64    // magnitude spectrum, size/2+1
	prevMag []float64    // previous frame's magnitude, for flux
}

func newSlidingWindow(size int) *slidingWindow {
	return &slidingWindow{
		size:    size,
		buf:     make([]float64, size),
		fft:     fourier.NewFFT(size),
		scratch: make([]float64, size),
		spec:    make([]complex128, size/2+1),
		mag:     make([]float64, size/2+1),
		prevMag: make([]float64, size/2+1),
	}
}

// push appends samples into the circular buffer, wrapping around.
func (w *slidingWindow) push(samples []float64) {
	for _, s := range samples {
		w.buf[w.pos] = s
		w.pos++
		if w.pos >= w.size {
			w.pos = 0
			w.filled = true
		}
	}
}

// analyze re-windows the current buffer contents in chronological order and
// runs the FFT, keeping the previous frame's magnitude for flux.
func (w *slidingWindow) analyze() {
	// chronological copy starting at pos (oldest) if filled, else from 0
	if w.filled {
		n := copy(w.scratch, w.buf[w.pos:])
		copy(w.scratch[n:], w.buf[:w.pos])
	} else {
		copy(w.scratch, w.buf)
	}

	hannWindow(w.scratch)
	w.fft.Coefficients(w.spec, w.scratch)

	copy(w.prevMag, w.mag)
	for i, c := range w.spec {
		w.mag[i] = math.Hypot(real(c), imag(c))
	}
}

func (w *slidingWindow) freqToBin(freq, sampleRate float64) int {
	b := int(freq / (sampleRate / float64(w.size)))
	if b < 0 {
		b = 0
	}
	if b >= len(w.mag) {
		b = len(w.mag) - 1
	}
	return b
}

// bandRMS returns the linear RMS magnitude across [lo,hi) Hz.
func (w *slidingWindow) bandRMS(lo, hi, sampleRate float64) float64 {
	b0 := w.freqToBin(lo, sampleRate)
	b1 := w.freqToBin(hi, sampleRate)
	if b1 <= b0 {
		b1 = b0 + 1
	}
	if b1 > len(w.mag) {
		b1 = len(w.mag)
	}
	sum := 0.0
	n := 0
	for _, m := range w.mag[b0:b1] {
		sum += m * m
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// bandDB returns a band's RMS magnitude in dB, mapped linearly so that
// [-80 dB, 0 dB] becomes [0,1] (spec §4.1). The result is not clamped:
// levels outside that range map outside [0,1].
func (w *slidingWindow) bandDB(lo, hi, sampleRate float64) float64 {
	rms := w.bandRMS(lo, hi, sampleRate)
	db := 20 * math.Log10(rms+1e-12)
	// map [-dynamicRangeDB, 0] -> [0, 1]
	v := (db + dynamicRangeDB) / dynamicRangeDB
	return v
}

// halfWaveFlux sums the half-wave-rectified per-bin magnitude increase across
// [lo,hi) Hz relative to the previous frame.
func (w *slidingWindow) halfWaveFlux(lo, hi, sampleRate float64) float64 {
	b0 := w.freqToBin(lo, sampleRate)
	b1 := w.freqToBin(hi, sampleRate)
	if b1 <= b0 {
		b1 = b0 + 1
	}
	if b1 > len(w.mag) {
		b1 = len(w.mag)
	}
	sum := 0.0
	for i := b0; i < b1; i++ {
		d := w.mag[i] - w.prevMag[i]
		if d > 0 {
			sum += d
		}
	}
	return sum
}

// l1Flux is the total L1 difference between the current and previous
// magnitude spectra, spec §4.1's `flux`.
func (w *slidingWindow) l1Flux() float64 {
	sum := 0.0
	for i := range w.mag {
		sum += math.Abs(w.mag[i] - w.prevMag[i])
	}
	return sum
}

func (w *slidingWindow) centroid(sampleRate float64) float64 {
	num, den := 0.0, 0.0
	binHz := sampleRate / float64(w.size)
	for i, m := range w.mag {
		f := float64(i) * binHz
		num += f * m
		den += m
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func (w *slidingWindow) flatness() float64 {
	// geometric mean / arithmetic mean of the magnitude spectrum.
	const eps = 1e-12
	logSum := 0.0
	arithSum := 0.0
	n := 0
	for _, m := range w.mag {
		mv := m + eps
		logSum += math.Log(mv)
		arithSum += mv
		n++
	}
	if n == 0 || arithSum == 0 {
		return 0
	}
	geoMean := math.Exp(logSum / float64(n))
	arithMean := arithSum / float64(n)
	return geoMean / arithMean
}

func (w *slidingWindow) rolloff(sampleRate float64, fraction float64) float64 {
	total := 0.0
	for _, m := range w.mag {
		total += m
	}
	if total == 0 {
		return 0
	}
	threshold := total * fraction
	acc := 0.0
	binHz := sampleRate / float64(w.size)
	for i, m := range w.mag {
		acc += m
		if acc >= threshold {
			return float64(i) * binHz
		}
	}
	return sampleRate / 2
}

func (w *slidingWindow) bandwidth(sampleRate, centroid float64) float64 {
	num, den := 0.0, 0.0
	binHz := sampleRate / float64(w.size)
	for i, m := range w.mag {
		f := float64(i) * binHz
		d := f - centroid
		num += d * d * m
		den += m
	}
	if den == 0 {
		return 0
	}
	return math.Sqrt(num / den)
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// Extractor runs the three-window multi-resolution FFT of spec §4.1 over an
// incoming mono stream and produces one raw (pre-normalization) Audio
// snapshot per call to Analyze.
type Extractor struct {
	sampleRate float64
	low, mid, high *slidingWindow
}

// NewExtractor builds an Extractor for the given sample rate. Window sizes
// are fixed by spec §4.1 (4096/1024/512) regardless of sample rate.
func NewExtractor(sampleRate float64) *Extractor {
	return &Extractor{
		sampleRate: sampleRate,
		low:        newSlidingWindow(4096),
		mid:        newSlidingWindow(1024),
		high:       newSlidingWindow(512),
	}
}

// Reset clears all sliding-window state, used on a sample-rate switch (spec
// §8 boundary behavior: "all three FFT windows reset").
func (e *Extractor) Reset(sampleRate float64) {
	e.sampleRate = sampleRate
	e.low = newSlidingWindow(4096)
	e.mid = newSlidingWindow(1024)
	e.high = newSlidingWindow(512)
}

// mixToMono averages interleaved multi-channel samples down to mono. A
// channelCount of 1 is a no-op copy.
func mixToMono(interleaved []float32, channelCount int, out []float64) []float64 {
	if channelCount <= 1 {
		out = out[:0]
		for _, s := range interleaved {
			out = append(out, float64(s))
		}
		return out
	}
	frames := len(interleaved) / channelCount
	out = out[:0]
	for f := 0; f < frames; f++ {
		sum := 0.0
		base := f * channelCount
		for c := 0; c < channelCount; c++ {
			sum += float64(interleaved[base+c])
		}
		out = append(out, sum/float64(channelCount))
	}
	return out
}

// OnsetNovelty returns the sum of per-band half-wave-rectified spectral flux
// across all three windows (spec §4.2 onset detector input), meant to be
// called immediately after Analyze on the same frame.
func (e *Extractor) OnsetNovelty() float64 {
	full := func(w *slidingWindow) float64 {
		sum := 0.0
		for i := range w.mag {
			d := w.mag[i] - w.prevMag[i]
			if d > 0 {
				sum += d
			}
		}
		return sum
	}
	return full(e.low) + full(e.mid) + full(e.high)
}

// Analyze pushes newly-captured mono samples into the three sliding windows,
// re-runs each window's FFT, and returns one raw Audio snapshot. Values are
// not yet normalized; the caller runs them through Normalizer.
func (e *Extractor) Analyze(mono []float64) Audio {
	e.low.push(mono)
	e.mid.push(mono)
	e.high.push(mono)

	e.low.analyze()
	e.mid.analyze()
	e.high.analyze()

	var a Audio

	a.SubBass = e.low.bandRMS(subBassLo, subBassHi, e.sampleRate)
	a.Bass = e.low.bandRMS(bassLo, bassHi, e.sampleRate)
	a.Kick = e.low.halfWaveFlux(kickLo, kickHi, e.sampleRate)

	a.LowMid = e.mid.bandDB(lowMidLo, lowMidHi, e.sampleRate)
	a.Mid = e.mid.bandDB(midLo, midHi, e.sampleRate)
	a.UpperMid = e.mid.bandDB(upperMidLo, upperMid, e.sampleRate)

	a.Presence = e.high.bandDB(presenceLo, presenceHi, e.sampleRate)
	a.Brilliance = e.high.bandDB(brillianceLo, brillianceHi, e.sampleRate)

	centroid := e.low.centroid(e.sampleRate)
	a.Centroid = centroid
	a.Flux = e.low.l1Flux()
	a.Flatness = e.low.flatness()
	a.Rolloff = e.low.rolloff(e.sampleRate, 0.85)
	a.Bandwidth = e.low.bandwidth(e.sampleRate, centroid)
	a.ZCR = zeroCrossingRate(mono)

	sumSq := 0.0
	for _, s := range mono {
		sumSq += s * s
	}
	if len(mono) > 0 {
		a.RMS = math.Sqrt(sumSq / float64(len(mono)))
	}

	return a
}
