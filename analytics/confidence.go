package analytics

import "math"

// FullConfidenceSamples is the series length at which confidence saturates
const FullConfidenceSamples = 30.0

// volumeConfidence scores a result by sample size alone, capped at 1.0
func volumeConfidence(n int) float64 {
	return math.Min(1.0, float64(n)/FullConfidenceSamples)
}
