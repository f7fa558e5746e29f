package compositor

import (
	"math"
	"testing"

	"github.com/phosphorvj/phosphor/layer"
)

// TestCompositeOrderingScenario exercises spec §8 scenario S4: three
// layers with blend modes [Normal, Add, Multiply] and opacities
// [1.0, 0.5, 1.0] over solid colors should composite to a known result.
func TestCompositeOrderingScenario(t *testing.T) {
	layers := []struct {
		Color   [4]float64
		Mode    layer.BlendMode
		Opacity float64
	}{
		{Color: [4]float64{0.2, 0, 0, 1}, Mode: layer.BlendNormal, Opacity: 1.0},
		{Color: [4]float64{0, 0.5, 0, 1}, Mode: layer.BlendAdd, Opacity: 0.5},
		{Color: [4]float64{1, 1, 0, 1}, Mode: layer.BlendMultiply, Opacity: 1.0},
	}

	got := CompositeCPU(layers)
	want := [3]float64{0.2, 0.25, 0}

	const eps = 1e-5
	for i := 0; i < 3; i++ {
		if math.Abs(got[i]-want[i]) > eps {
			t.Fatalf("channel %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBlendNormalReplaces(t *testing.T) {
	bg := [4]float64{0.1, 0.1, 0.1, 1}
	fg := [4]float64{0.9, 0.9, 0.9, 1}
	got := BlendRGBA(layer.BlendNormal, bg, fg, 1.0)
	for i := 0; i < 3; i++ {
		if got[i] != fg[i] {
			t.Fatalf("channel %d = %v, want %v", i, got[i], fg[i])
		}
	}
}
