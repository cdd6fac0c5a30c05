package analytics

import (
	"math"

	"climate-trends-service/models"
)

type summaryAccumulator struct {
	unit      *string
	count     int
	sum       float64
	min       float64
	max       float64
	weighted  float64
	weight    float64
	qualities map[string]int
}

func (a *summaryAccumulator) add(row models.SummaryRow) {
	if a.count == 0 {
		a.min, a.max = row.Value, row.Value
	}
	a.count++
	a.sum += row.Value
	a.min = math.Min(a.min, row.Value)
	a.max = math.Max(a.max, row.Value)

	w := models.Weight(row.Quality)
	a.weighted += row.Value * w
	a.weight += w
	a.qualities[row.Quality]++
}

// Summarize aggregates rows per metric: min, max, mean, quality-weighted
// mean and the share of rows per quality label
func Summarize(rows []models.SummaryRow) models.SummaryResponse {
	acc := make(map[string]*summaryAccumulator)
	for _, row := range rows {
		a, ok := acc[row.Metric]
		if !ok {
			a = &summaryAccumulator{unit: row.Unit, qualities: make(map[string]int)}
			acc[row.Metric] = a
		}
		a.add(row)
	}

	out := make(models.SummaryResponse, len(acc))
	for name, a := range acc {
		s := models.MetricSummary{
			Min:  a.min,
			Max:  a.max,
			Avg:  a.sum / float64(a.count),
			Unit: a.unit,
		}
		if a.weight > 0 {
			wavg := a.weighted / a.weight
			s.WeightedAvg = &wavg
		}
		if len(a.qualities) > 0 {
			s.QualityDistribution = make(map[string]float64, len(a.qualities))
			for q, n := range a.qualities {
				s.QualityDistribution[q] = float64(n) / float64(a.count)
			}
		}
		out[name] = s
	}
	return out
}
