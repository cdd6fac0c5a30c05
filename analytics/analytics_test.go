package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climate-trends-service/models"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func series(unit string, points ...interface{}) models.MetricSeries {
	s := models.MetricSeries{Name: "temperature", Unit: unit}
	for i := 0; i < len(points); i += 2 {
		s.Observations = append(s.Observations, models.Observation{
			Date:    day(points[i].(string)),
			Value:   points[i+1].(float64),
			Quality: "good",
		})
	}
	return s
}

func TestTrendAnalyzer_Increasing(t *testing.T) {
	ta := NewTrendAnalyzer()
	res := ta.Analyze(series("celsius", "2024-01-01", 10.0, "2024-02-01", 20.0, "2024-03-01", 30.0))

	assert.Equal(t, models.DirectionIncreasing, res.Direction)
	require.NotNil(t, res.Rate)
	assert.Greater(t, *res.Rate, 0.0)
	require.NotNil(t, res.Unit)
	assert.Equal(t, "celsius", *res.Unit)
	assert.InDelta(t, 0.1, res.Confidence, 1e-9)
}

func TestTrendAnalyzer_SlopePerDay(t *testing.T) {
	ta := NewTrendAnalyzer()
	res := ta.Analyze(series("", "2024-01-01", 0.0, "2024-01-11", 5.0, "2024-01-21", 10.0))

	require.NotNil(t, res.Rate)
	assert.InDelta(t, 0.5, *res.Rate, 1e-9)
	assert.Nil(t, res.Unit)
}

func TestTrendAnalyzer_Decreasing(t *testing.T) {
	ta := NewTrendAnalyzer()
	res := ta.Analyze(series("mm", "2024-01-01", 30.0, "2024-01-02", 20.0))
	assert.Equal(t, models.DirectionDecreasing, res.Direction)
}

func TestTrendAnalyzer_Stable(t *testing.T) {
	ta := NewTrendAnalyzer()
	res := ta.Analyze(series("mm", "2024-01-01", 5.0, "2024-01-02", 5.0, "2024-01-03", 5.0))
	assert.Equal(t, models.DirectionStable, res.Direction)
	require.NotNil(t, res.Rate)
	assert.Equal(t, 0.0, *res.Rate)
}

func TestTrendAnalyzer_SameDay(t *testing.T) {
	ta := NewTrendAnalyzer()
	res := ta.Analyze(series("mm", "2024-01-01", 1.0, "2024-01-01", 9.0))
	assert.Equal(t, models.DirectionStable, res.Direction)
}

func TestTrendAnalyzer_ShortSeries(t *testing.T) {
	ta := NewTrendAnalyzer()
	for _, s := range []models.MetricSeries{series("celsius"), series("celsius", "2024-01-01", 1.0)} {
		res := ta.Analyze(s)
		assert.Equal(t, models.DirectionNone, res.Direction)
		assert.Nil(t, res.Rate)
		assert.Equal(t, 0.0, res.Confidence)
		require.NotNil(t, res.Unit)
	}
}

func TestTrendAnalyzer_ConfidenceCapped(t *testing.T) {
	s := models.MetricSeries{}
	start := day("2024-01-01")
	for i := 0; i < 45; i++ {
		s.Observations = append(s.Observations, models.Observation{Date: start.AddDate(0, 0, i), Value: float64(i)})
	}
	assert.Equal(t, 1.0, NewTrendAnalyzer().Analyze(s).Confidence)
}

func TestAnomalyDetector_ConstantSeries(t *testing.T) {
	ad := NewAnomalyDetector(0)
	assert.Equal(t, DefaultDeviationThreshold, ad.Threshold())

	got := ad.Detect(series("", "2024-01-01", 7.0, "2024-01-02", 7.0, "2024-01-03", 7.0))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAnomalyDetector_FlagsOutliersInOrder(t *testing.T) {
	s := models.MetricSeries{}
	start := day("2024-01-01")
	values := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, -40, 10, 10, 10, 10, 10, 10, 10, 10, 70}
	for i, v := range values {
		s.Observations = append(s.Observations, models.Observation{Date: start.AddDate(0, 0, i), Value: v, Quality: "poor"})
	}

	got := NewAnomalyDetector(2.0).Detect(s)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-11", got[0].Date)
	assert.Equal(t, -40.0, got[0].Value)
	assert.Equal(t, "2024-01-20", got[1].Date)
	assert.Equal(t, "poor", got[1].Quality)
	assert.Greater(t, got[1].Deviation, got[0].Deviation)
	for _, a := range got {
		assert.GreaterOrEqual(t, a.Deviation, 0.0)
	}
}

func TestPopulationStats(t *testing.T) {
	mean, std := populationStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-12)
	assert.InDelta(t, 2.0, std, 1e-12)
}

func TestSeasonalityAnalyzer_WinterAcrossYears(t *testing.T) {
	res := NewSeasonalityAnalyzer().Analyze(series("",
		"2022-12-15", 1.0,
		"2023-01-15", 2.0,
		"2024-02-15", 3.0,
	))

	assert.True(t, res.Detected)
	require.NotNil(t, res.Period)
	assert.Equal(t, "yearly", *res.Period)
	require.Len(t, res.Pattern, 1)
	winter := res.Pattern[models.SeasonWinter]
	assert.InDelta(t, 2.0, winter.Avg, 1e-12)
	assert.Equal(t, models.DirectionIncreasing, winter.Trend)
	assert.InDelta(t, 0.1, res.Confidence, 1e-12)
}

func TestSeasonalityAnalyzer_BucketTrends(t *testing.T) {
	res := NewSeasonalityAnalyzer().Analyze(series("",
		"2024-03-01", 20.0,
		"2024-04-01", 15.0,
		"2024-07-01", 30.0,
		"2024-09-01", 12.0,
		"2024-10-01", 18.0,
		"2024-11-01", 12.0,
	))

	require.Len(t, res.Pattern, 3)
	assert.Equal(t, models.DirectionDecreasing, res.Pattern[models.SeasonSpring].Trend)
	assert.Equal(t, models.DirectionStable, res.Pattern[models.SeasonSummer].Trend)
	assert.Equal(t, models.DirectionStable, res.Pattern[models.SeasonFall].Trend)
	assert.InDelta(t, 14.0, res.Pattern[models.SeasonFall].Avg, 1e-12)
	_, hasWinter := res.Pattern[models.SeasonWinter]
	assert.False(t, hasWinter)
}

func TestSeasonalityAnalyzer_Empty(t *testing.T) {
	res := NewSeasonalityAnalyzer().Analyze(models.MetricSeries{})
	assert.False(t, res.Detected)
	assert.Nil(t, res.Period)
	assert.NotNil(t, res.Pattern)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestSummarize(t *testing.T) {
	celsius := "celsius"
	rows := []models.SummaryRow{
		{Metric: "temperature", Unit: &celsius, Value: 10, Quality: "excellent"},
		{Metric: "temperature", Unit: &celsius, Value: 20, Quality: "poor"},
		{Metric: "temperature", Unit: &celsius, Value: 30, Quality: "Good"},
		{Metric: "humidity", Value: 50, Quality: "unknown"},
	}

	got := Summarize(rows)
	require.Len(t, got, 2)

	temp := got["temperature"]
	assert.Equal(t, 10.0, temp.Min)
	assert.Equal(t, 30.0, temp.Max)
	assert.InDelta(t, 20.0, temp.Avg, 1e-12)
	require.NotNil(t, temp.WeightedAvg)
	assert.InDelta(t, (10*1.0+20*0.3+30*0.8)/(1.0+0.3+0.8), *temp.WeightedAvg, 1e-12)
	assert.InDelta(t, 1.0/3.0, temp.QualityDistribution["Good"], 1e-12)
	assert.Equal(t, "celsius", *temp.Unit)

	hum := got["humidity"]
	assert.Nil(t, hum.WeightedAvg)
	assert.Nil(t, hum.Unit)
	assert.Equal(t, 1.0, hum.QualityDistribution["unknown"])
}
