// Package compositor implements the GPU blend of layer outputs (spec
// §4.4): a ping-pong accumulator applying one of ten blend modes per
// enabled layer, with a single-layer fast path that bypasses blending
// entirely.
package compositor

import "github.com/phosphorvj/phosphor/layer"

// HDRMax is the clamp ceiling for blend modes that would otherwise diverge
// in HDR space (spec §4.4 ColorDodge).
const HDRMax = 4.0

// BlendRGBA is a CPU-side reference implementation of one blend mode over
// a single RGBA HDR sample, used by tests (spec §8 property 5) to check
// the GPU blend shader's output without needing a live device. The GPU
// path runs the same formulas per-pixel in the compositor's fragment
// shader.
func BlendRGBA(mode layer.BlendMode, bg, fg [4]float64, opacity float64) [4]float64 {
	var blended [3]float64
	for c := 0; c < 3; c++ {
		blended[c] = blendChannel(mode, bg[c], fg[c])
	}

	mixAmt := opacity * fg[3]
	out := [4]float64{
		mix(bg[0], blended[0], mixAmt),
		mix(bg[1], blended[1], mixAmt),
		mix(bg[2], blended[2], mixAmt),
		max64(bg[3], fg[3]*opacity),
	}
	return out
}

func blendChannel(mode layer.BlendMode, bg, fg float64) float64 {
	switch mode {
	case layer.BlendNormal:
		return fg
	case layer.BlendAdd:
		return bg + fg
	case layer.BlendScreen:
		return bg + fg - bg*fg
	case layer.BlendColorDodge:
		d := 1 - fg
		if d < 1e-4 {
			d = 1e-4
		}
		v := bg / d
		if v < 0 {
			return 0
		}
		if v > HDRMax {
			return HDRMax
		}
		return v
	case layer.BlendMultiply:
		return bg * fg
	case layer.BlendOverlay:
		if bg <= 0.5 {
			return 2 * bg * fg
		}
		return 1 - 2*(1-bg)*(1-fg)
	case layer.BlendHardLight:
		if fg <= 0.5 {
			return 2 * bg * fg
		}
		return 1 - 2*(1-bg)*(1-fg)
	case layer.BlendDifference:
		return abs64(bg - fg)
	case layer.BlendExclusion:
		return bg + fg - 2*bg*fg
	case layer.BlendSubtract:
		v := bg - fg
		if v < 0 {
			return 0
		}
		return v
	default:
		return fg
	}
}

func mix(a, b, t float64) float64 { return a + (b-a)*t }

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
