package bench

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var ErrNoSamples = errors.New("no samples")

// Summary holds aggregate latency statistics in seconds. Variance and
// standard deviation are population statistics.
type Summary struct {
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"stddev"`
	Variance float64 `json:"variance"`
}

// Summarize computes statistics over samples. It does not modify samples.
func Summarize(samples []time.Duration) (Summary, error) {
	n := len(samples)
	if n == 0 {
		return Summary{}, ErrNoSamples
	}

	secs := make([]float64, n)
	var sum float64
	for i, d := range samples {
		secs[i] = d.Seconds()
		sum += secs[i]
	}
	mean := sum / float64(n)

	var variance float64
	for _, s := range secs {
		diff := s - mean
		variance += diff * diff
	}
	variance /= float64(n)

	sort.Float64s(secs)

	return Summary{
		Count:    n,
		Min:      secs[0],
		Max:      secs[n-1],
		Mean:     mean,
		Median:   median(secs),
		StdDev:   math.Sqrt(variance),
		Variance: variance,
	}, nil
}

// median of a sorted slice; even counts average the two middle values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Line renders the summary in the report line format.
func (s Summary) Line(stage Stage) string {
	return fmt.Sprintf("%s: min %.6fs, max %.6fs, mean %.6fs, median %.6fs, standard deviation %.6f, variance %.6f",
		stage, s.Min, s.Max, s.Mean, s.Median, s.StdDev, s.Variance)
}
