package stats

import "testing"

func approxEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestMean(t *testing.T) {
	got := Mean([]float64{1, 2, 3, 4})
	if !approxEqual(got, 2.5, 1e-9) {
		t.Fatalf("Mean = %v, want 2.5", got)
	}
}

func TestEpsilonBandIsPercentOfSum(t *testing.T) {
	values := []float64{1.00, 1.01, 0.99, 1.00, 1.00, 1.01}
	got := EpsilonBand(values, 5.0)

	var sum float64
	for _, v := range values {
		sum += v
	}
	want := (sum / 100.0) * 5.0

	if !approxEqual(got, want, 1e-12) {
		t.Fatalf("EpsilonBand = %v, want %v", got, want)
	}

	// Explicitly confirm this is NOT percent-of-mean, which would give a
	// materially different number for a window this size.
	mean := Mean(values)
	percentOfMean := mean * 0.05
	if approxEqual(got, percentOfMean, 1e-9) {
		t.Fatal("EpsilonBand must be percent of sum, not percent of mean")
	}
}

func TestBenchmarkScenarioEarlyStop(t *testing.T) {
	samples := []float64{1.00, 1.01, 0.99, 1.00, 1.00, 1.01}
	sd := StdDev(samples)
	band := EpsilonBand(samples, 5.0)
	if sd > band {
		t.Fatalf("stdev %v exceeds band %v; scenario expects it within band after 6 samples", sd, band)
	}
	mean := Mean(samples)
	if !approxEqual(mean, 1.0016666666666667, 1e-9) {
		t.Fatalf("mean = %v, want ~1.0016666...", mean)
	}
}
