package core

import (
	"math"
	"testing"
)

func TestHaltonJitterRange(t *testing.T) {
	seen := make(map[[2]float32]bool)
	for i := 0; i < JitterSequenceLength; i++ {
		j := HaltonJitter(i)
		if j.X() < -0.5 || j.X() > 0.5 || j.Y() < -0.5 || j.Y() > 0.5 {
			t.Fatalf("jitter %d = %v out of [-0.5, 0.5]", i, j)
		}
		seen[[2]float32{j.X(), j.Y()}] = true
	}
	if len(seen) != JitterSequenceLength {
		t.Errorf("expected %d distinct jitter points, got %d", JitterSequenceLength, len(seen))
	}
}

func TestHaltonJitterKnownValues(t *testing.T) {
	// halton(1, 2) = 1/2, halton(1, 3) = 1/3
	j := HaltonJitter(0)
	if math.Abs(float64(j.X())-0.0) > 1e-6 {
		t.Errorf("jitter[0].x = %f, want 0", j.X())
	}
	if math.Abs(float64(j.Y())-(1.0/3.0-0.5)) > 1e-6 {
		t.Errorf("jitter[0].y = %f, want %f", j.Y(), 1.0/3.0-0.5)
	}
	// halton(2, 2) = 1/4
	j = HaltonJitter(1)
	if math.Abs(float64(j.X())-(0.25-0.5)) > 1e-6 {
		t.Errorf("jitter[1].x = %f, want -0.25", j.X())
	}
}

func TestHaltonJitterMeanNearZero(t *testing.T) {
	var sx, sy float64
	for i := 0; i < JitterSequenceLength; i++ {
		j := HaltonJitter(i)
		sx += float64(j.X())
		sy += float64(j.Y())
	}
	mx := sx / JitterSequenceLength
	my := sy / JitterSequenceLength
	// A 16-point radical inverse carries a small inherent bias (~1/32 for
	// base 2); the mean must stay within that envelope of the origin.
	if math.Abs(mx) > 0.04 || math.Abs(my) > 0.04 {
		t.Errorf("jitter mean (%f, %f) too far from origin", mx, my)
	}
}

func TestHaltonJitterPeriodic(t *testing.T) {
	a := HaltonJitter(3)
	b := HaltonJitter(3 + JitterSequenceLength)
	if a != b {
		t.Errorf("sequence should repeat with period %d", JitterSequenceLength)
	}
}
