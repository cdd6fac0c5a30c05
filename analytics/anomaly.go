package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"climate-trends-service/models"
)

const DefaultDeviationThreshold = 2.0

// AnomalyDetector flags observations more than threshold population
// standard deviations away from the series mean
type AnomalyDetector struct {
	threshold float64
}

// NewAnomalyDetector creates a detector; a non-positive threshold uses the default
func NewAnomalyDetector(threshold float64) *AnomalyDetector {
	if threshold <= 0 {
		threshold = DefaultDeviationThreshold
	}
	return &AnomalyDetector{threshold: threshold}
}

// Detect returns anomalies in input order. A constant series has none.
func (ad *AnomalyDetector) Detect(series models.MetricSeries) []models.Anomaly {
	anomalies := []models.Anomaly{}
	if series.Len() == 0 {
		return anomalies
	}

	mean, stddev := populationStats(series.Values())
	if stddev == 0 {
		return anomalies
	}

	limit := ad.threshold * stddev
	for _, o := range series.Observations {
		deviation := math.Abs(o.Value - mean)
		if deviation > limit {
			anomalies = append(anomalies, models.Anomaly{
				Date:      o.Date.Format(models.DateLayout),
				Value:     o.Value,
				Deviation: deviation,
				Quality:   o.Quality,
			})
		}
	}
	return anomalies
}

// Threshold returns the configured threshold
func (ad *AnomalyDetector) Threshold() float64 {
	return ad.threshold
}

// populationStats uses N, not N-1, as the variance denominator
func populationStats(values []float64) (mean, stddev float64) {
	mean, variance := stat.PopMeanVariance(values, nil)
	return mean, math.Sqrt(variance)
}
