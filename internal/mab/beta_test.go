package mab

import (
	"math"
	"math/rand"
	"testing"
)

func TestSampleBetaInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		x := sampleBeta(rng, 1, 1)
		if x < 0 || x > 1 {
			t.Fatalf("sampleBeta(1,1) = %v outside [0,1]", x)
		}
	}
}

func TestSampleBetaMeanTracksParameters(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	tests := []struct {
		alpha, beta float64
	}{
		{1, 1},
		{8, 2},
		{2, 8},
		{30, 5},
	}
	for _, tt := range tests {
		sum := 0.0
		const n = 20000
		for i := 0; i < n; i++ {
			sum += sampleBeta(rng, tt.alpha, tt.beta)
		}
		mean := sum / n
		want := tt.alpha / (tt.alpha + tt.beta)
		if math.Abs(mean-want) > 0.02 {
			t.Errorf("Beta(%v,%v) sample mean = %.4f, want ~%.4f", tt.alpha, tt.beta, mean, want)
		}
	}
}

func TestSampleGammaPositive(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, shape := range []float64{0.5, 1, 2.5, 10} {
		for i := 0; i < 200; i++ {
			if g := sampleGamma(rng, shape); g < 0 {
				t.Fatalf("sampleGamma(%v) = %v, want >= 0", shape, g)
			}
		}
	}
}
