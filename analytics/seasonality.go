package analytics

import (
	"gonum.org/v1/gonum/stat"

	"climate-trends-service/models"
)

const periodYearly = "yearly"

// SeasonalityAnalyzer buckets a series into meteorological seasons
// regardless of year
type SeasonalityAnalyzer struct{}

// NewSeasonalityAnalyzer creates a new SeasonalityAnalyzer
func NewSeasonalityAnalyzer() *SeasonalityAnalyzer {
	return &SeasonalityAnalyzer{}
}

// Analyze computes per-season averages and a first-vs-last trend per bucket
func (sa *SeasonalityAnalyzer) Analyze(series models.MetricSeries) models.SeasonalityResult {
	buckets := make(map[models.Season][]float64, len(models.Seasons))
	total := 0
	for _, o := range series.Observations {
		season := models.SeasonForMonth(o.Date.Month())
		buckets[season] = append(buckets[season], o.Value)
		total++
	}

	pattern := models.SeasonalPattern{}
	for _, season := range models.Seasons {
		values := buckets[season]
		if len(values) == 0 {
			continue
		}
		pattern[season] = models.SeasonStats{
			Avg:   stat.Mean(values, nil),
			Trend: bucketTrend(values),
		}
	}

	result := models.SeasonalityResult{
		Detected:   len(pattern) > 0,
		Confidence: volumeConfidence(total),
		Pattern:    pattern,
	}
	if result.Detected {
		period := periodYearly
		result.Period = &period
	}
	return result
}

func bucketTrend(values []float64) models.Direction {
	if len(values) < 2 {
		return models.DirectionStable
	}
	first, last := values[0], values[len(values)-1]
	switch {
	case last > first:
		return models.DirectionIncreasing
	case last < first:
		return models.DirectionDecreasing
	default:
		return models.DirectionStable
	}
}
