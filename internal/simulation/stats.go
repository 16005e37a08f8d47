package simulation

import (
	"math"
	"sort"
)

// Percentiles are completion-time cut points in hours.
type Percentiles struct {
	P50 float64 `json:"50"`
	P80 float64 `json:"80"`
	P90 float64 `json:"90"`
	P95 float64 `json:"95"`
}

// Statistics summarize the sampled completion-time distribution.
type Statistics struct {
	Mean            float64     `json:"mean"`
	Median          float64     `json:"median"`
	Percentiles     Percentiles `json:"percentiles"`
	Min             float64     `json:"min"`
	Max             float64     `json:"max"`
	StdDev          float64     `json:"stdDev"`
	ConfidenceLevel float64     `json:"confidenceLevel"`
	ConfidenceValue float64     `json:"confidenceValue"`
	Iterations      int         `json:"iterations"`
}

// percentile reads the p-quantile from sorted samples by index floor(n*p).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(float64(n) * p))
	if idx > n-1 {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// Summarize sorts samples in place and computes the statistics.
func Summarize(samples []float64, confidenceLevel float64) Statistics {
	st := Statistics{ConfidenceLevel: confidenceLevel, Iterations: len(samples)}
	n := len(samples)
	if n == 0 {
		return st
	}
	sort.Float64s(samples)

	var sum float64
	for _, v := range samples {
		sum += v
	}
	st.Mean = sum / float64(n)
	st.Median = samples[n/2]
	st.Min = samples[0]
	st.Max = samples[n-1]
	st.Percentiles = Percentiles{
		P50: percentile(samples, 0.50),
		P80: percentile(samples, 0.80),
		P90: percentile(samples, 0.90),
		P95: percentile(samples, 0.95),
	}
	st.ConfidenceValue = percentile(samples, confidenceLevel)

	if n > 1 {
		var sq float64
		for _, v := range samples {
			d := v - st.Mean
			sq += d * d
		}
		st.StdDev = math.Sqrt(sq / float64(n))
	}
	return st
}
