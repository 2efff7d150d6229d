// Package stats provides the small set of descriptive statistics the
// benchmark repetition loop and the SPSO convergence test need: sample
// mean, sample standard deviation, and the epsilon-tolerance helper used to
// decide when enough benchmark repetitions have been taken.
package stats

import "gonum.org/v1/gonum/stat"

// Mean returns the arithmetic mean of values. Calling it with an empty
// slice returns NaN, matching gonum's own convention.
func Mean(values []float64) float64 {
	return stat.Mean(values, nil)
}

// StdDev returns the sample standard deviation of values.
func StdDev(values []float64) float64 {
	return stat.StdDev(values, nil)
}

// EpsilonBand returns the absolute tolerance corresponding to epsilonPct
// expressed as a percentage of the *sum* of values, not the mean. This
// mirrors percent_of_values in the source implementation exactly: the
// convergence and benchmark-repetition checks both compare a standard
// deviation against this band, not against a percentage of the mean.
func EpsilonBand(values []float64, epsilonPct float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return (sum / 100.0) * epsilonPct
}
