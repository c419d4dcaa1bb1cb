package denoise

import (
	"math"
	"testing"

	"github.com/voxtrace/voxtrace/rt/core"
	"github.com/voxtrace/voxtrace/rt/gpu"
)

func TestHistoryAlphaFreshSample(t *testing.T) {
	s := core.DefaultDenoiserSettings()
	if a := HistoryAlpha(s, 0, false); a != 1 {
		t.Errorf("rejected history: alpha = %v, want 1", a)
	}
	if a := HistoryAlpha(s, 100, false); a != 1 {
		t.Errorf("rejected history ignores length: alpha = %v, want 1", a)
	}
}

func TestHistoryAlphaDecay(t *testing.T) {
	s := core.DefaultDenoiserSettings()

	// First valid frame: history length 0 so alpha is a full 1/(0+1).
	if a := HistoryAlpha(s, 0, true); a != 1 {
		t.Errorf("first frame: alpha = %v, want 1", a)
	}
	if a := HistoryAlpha(s, 1, true); a != 0.5 {
		t.Errorf("second frame: alpha = %v, want 0.5", a)
	}
	// Long histories floor at TemporalAlpha; with MinHistoryLength 0.25 the
	// cap 1/0.25 = 4 would give 0.25, still above the 0.1 floor.
	if a := HistoryAlpha(s, 1000, true); a != 0.25 {
		t.Errorf("long history: alpha = %v, want 0.25", a)
	}

	s.MinHistoryLength = 0.01
	if a := HistoryAlpha(s, 1000, true); a != s.TemporalAlpha {
		t.Errorf("floored: alpha = %v, want %v", a, s.TemporalAlpha)
	}
}

func TestHistoryAlphaOneDisablesBlending(t *testing.T) {
	s := core.DefaultDenoiserSettings()
	s.TemporalAlpha = 1
	for _, n := range []float32{0, 1, 10, 64} {
		if a := HistoryAlpha(s, n, true); a != 1 {
			t.Errorf("length %v: alpha = %v, want 1", n, a)
		}
	}
}

func TestEdgeWeight(t *testing.T) {
	s := core.DefaultDenoiserSettings()

	// Identical neighbor: weight 1.
	if w := EdgeWeight(s, 0, 0, 1, 1, 1); math.Abs(float64(w)-1) > 1e-6 {
		t.Errorf("flat neighbor: w = %v, want 1", w)
	}

	flat := EdgeWeight(s, 0, 0, 1, 1, 1)
	luma := EdgeWeight(s, 5, 0, 1, 1, 1)
	depth := EdgeWeight(s, 0, 1, 1, 1, 1)
	normal := EdgeWeight(s, 0, 0, 1, 0, 1)
	for name, w := range map[string]float32{"luma": luma, "depth": depth, "normal": normal} {
		if w >= flat {
			t.Errorf("%s difference did not reduce weight: %v >= %v", name, w, flat)
		}
		if w < 0 || w > 1 {
			t.Errorf("%s weight out of range: %v", name, w)
		}
	}

	// A steeper local gradient makes the same depth delta more acceptable.
	steep := EdgeWeight(s, 0, 1, 10, 1, 1)
	if steep <= depth {
		t.Errorf("gradient scaling: %v <= %v", steep, depth)
	}
}

func TestEdgeWeightVarianceWidensLumaTolerance(t *testing.T) {
	s := core.DefaultDenoiserSettings()

	// The luma threshold scales with sqrt(variance): the same luminance
	// delta is more acceptable where the signal is noisier.
	noisy := EdgeWeight(s, 5, 0, 1, 1, 4)
	clean := EdgeWeight(s, 5, 0, 1, 1, 0.25)
	if noisy <= clean {
		t.Errorf("variance scaling: %v <= %v", noisy, clean)
	}

	// Zero variance stays finite instead of dividing by zero.
	if w := EdgeWeight(s, 5, 0, 1, 1, 0); w < 0 || w > 1 || math.IsNaN(float64(w)) {
		t.Errorf("zero variance: w = %v", w)
	}
}

func TestDisabledDenoiserPassesTraceThrough(t *testing.T) {
	s := core.DefaultDenoiserSettings()
	s.Enabled = false

	var d Denoiser
	gb := &gpu.GBuffer{}
	if out := d.Output(gb, s); out != &gb.Color {
		t.Fatalf("disabled output = %p, want raw trace %p", out, &gb.Color)
	}

	// Record must not touch the command list at all; a nil list would panic
	// on the first dispatch.
	d.Record(nil, 0, gb, nil, s, nil, 0, 0)
}

func TestAtrousOutputIndex(t *testing.T) {
	cases := []struct {
		iterations int
		want       int
	}{
		{0, 0}, {1, 1}, {2, 0}, {3, 1}, {4, 0}, {8, 0},
	}
	for _, c := range cases {
		if got := AtrousOutputIndex(c.iterations); got != c.want {
			t.Errorf("AtrousOutputIndex(%d) = %d, want %d", c.iterations, got, c.want)
		}
	}
}

func TestAtrousStepSize(t *testing.T) {
	for i := 0; i < MaxAtrousIterations; i++ {
		if got := AtrousStepSize(i); got != uint32(1)<<i {
			t.Errorf("step %d = %d, want %d", i, got, 1<<i)
		}
	}
}
