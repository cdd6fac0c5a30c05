package analytics

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"climate-trends-service/models"
)

// TrendAnalyzer fits an ordinary least squares line through a series
type TrendAnalyzer struct{}

// NewTrendAnalyzer creates a new TrendAnalyzer
func NewTrendAnalyzer() *TrendAnalyzer {
	return &TrendAnalyzer{}
}

// Analyze returns the direction and slope (value per day) of the series.
// Confidence reflects sample size, not goodness of fit.
func (ta *TrendAnalyzer) Analyze(series models.MetricSeries) models.TrendResult {
	if series.Len() < 2 {
		return models.TrendResult{
			Direction:  models.DirectionNone,
			Unit:       series.UnitPtr(),
			Confidence: 0.0,
		}
	}

	days := make([]float64, series.Len())
	for i, o := range series.Observations {
		days[i] = dayOrdinal(o.Date)
	}
	slope := olsSlope(days, series.Values())

	return models.TrendResult{
		Direction:  directionOf(slope),
		Rate:       &slope,
		Unit:       series.UnitPtr(),
		Confidence: volumeConfidence(series.Len()),
	}
}

// olsSlope is zero when every x is identical
func olsSlope(x, y []float64) float64 {
	if stat.Variance(x, nil) == 0 {
		return 0
	}
	_, beta := stat.LinearRegression(x, y, nil, false)
	return beta
}

// dayOrdinal counts whole days since the Unix epoch
func dayOrdinal(t time.Time) float64 {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return float64(d.Unix() / 86400)
}

func directionOf(slope float64) models.Direction {
	switch {
	case slope > 0:
		return models.DirectionIncreasing
	case slope < 0:
		return models.DirectionDecreasing
	default:
		return models.DirectionStable
	}
}
