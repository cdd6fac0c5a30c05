package models

import (
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for observation dates
const DateLayout = "2006-01-02"

// Quality is the trust tier attached to every observation
type Quality string

const (
	QualityExcellent    Quality = "excellent"
	QualityGood         Quality = "good"
	QualityQuestionable Quality = "questionable"
	QualityPoor         Quality = "poor"
)

// QualityTiers lists tiers from most to least trustworthy
var QualityTiers = []Quality{QualityExcellent, QualityGood, QualityQuestionable, QualityPoor}

// QualityWeights are the multipliers used by the weighted summary average
var QualityWeights = map[Quality]float64{
	QualityExcellent:    1.0,
	QualityGood:         0.8,
	QualityQuestionable: 0.5,
	QualityPoor:         0.3,
}

// ParseQuality matches a tier name case-insensitively
func ParseQuality(s string) (Quality, bool) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	for _, tier := range QualityTiers {
		if q == tier {
			return tier, true
		}
	}
	return "", false
}

// AtOrAbove returns the tier itself and every higher tier
func (q Quality) AtOrAbove() []Quality {
	for i, tier := range QualityTiers {
		if tier == q {
			out := make([]Quality, i+1)
			copy(out, QualityTiers[:i+1])
			return out
		}
	}
	return nil
}

// Weight returns the summary weight for a raw quality string (0 if unknown)
func Weight(raw string) float64 {
	return QualityWeights[Quality(strings.ToLower(raw))]
}

// Observation is a single measurement of one metric at one location
type Observation struct {
	Date    time.Time
	Value   float64
	Quality string
}

// MetricSeries is the date-ascending series of one metric
type MetricSeries struct {
	Name         string
	Unit         string
	Observations []Observation
}

// Len returns the number of observations
func (s MetricSeries) Len() int {
	return len(s.Observations)
}

// Values returns the observation values in series order
func (s MetricSeries) Values() []float64 {
	values := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		values[i] = o.Value
	}
	return values
}

// UnitPtr returns the unit, or nil when the metric has none
func (s MetricSeries) UnitPtr() *string {
	if s.Unit == "" {
		return nil
	}
	unit := s.Unit
	return &unit
}

// Direction is the sign of a fitted or bucketed trend.
// DirectionNone encodes as JSON null.
type Direction string

const (
	DirectionNone       Direction = ""
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
	DirectionStable     Direction = "stable"
)

// MarshalJSON implements json.Marshaler
func (d Direction) MarshalJSON() ([]byte, error) {
	if d == DirectionNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Direction) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = DirectionNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = Direction(s)
	return nil
}

// TrendResult is the linear trend of a metric series
type TrendResult struct {
	Direction  Direction `json:"direction"`
	Rate       *float64  `json:"rate"`
	Unit       *string   `json:"unit"`
	Confidence float64   `json:"confidence"`
}

// Anomaly is an observation far from the series mean
type Anomaly struct {
	Date      string  `json:"date"`
	Value     float64 `json:"value"`
	Deviation float64 `json:"deviation"`
	Quality   string  `json:"quality"`
}

// Season is a meteorological season name
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
)

// Seasons lists the seasons in calendar order starting with winter
var Seasons = []Season{SeasonWinter, SeasonSpring, SeasonSummer, SeasonFall}

// SeasonForMonth maps a calendar month to its season
func SeasonForMonth(m time.Month) Season {
	switch m {
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	default:
		return SeasonFall
	}
}

// SeasonStats is the average and first-vs-last trend of one season bucket
type SeasonStats struct {
	Avg   float64   `json:"avg"`
	Trend Direction `json:"trend"`
}

// SeasonalPattern holds only the seasons that received observations
type SeasonalPattern map[Season]SeasonStats

// SeasonalityResult is the outcome of the seasonal grouping
type SeasonalityResult struct {
	Detected   bool            `json:"detected"`
	Period     *string         `json:"period"`
	Confidence float64         `json:"confidence"`
	Pattern    SeasonalPattern `json:"pattern"`
}

// MetricTrendsEntry is the trends payload for a single metric
type MetricTrendsEntry struct {
	Trend       TrendResult       `json:"trend"`
	Anomalies   []Anomaly         `json:"anomalies"`
	Seasonality SeasonalityResult `json:"seasonality"`
}

// NoSignalEntry is emitted for series too short to analyze
func NoSignalEntry(unit *string) MetricTrendsEntry {
	return MetricTrendsEntry{
		Trend: TrendResult{
			Direction:  DirectionNone,
			Unit:       unit,
			Confidence: 0.0,
		},
		Anomalies: []Anomaly{},
		Seasonality: SeasonalityResult{
			Detected: false,
			Pattern:  SeasonalPattern{},
		},
	}
}

// TrendsResponse maps metric name to its trends entry
type TrendsResponse map[string]MetricTrendsEntry

// SummaryRow is one observation as read by the summary query
type SummaryRow struct {
	Metric  string  `db:"metric"`
	Unit    *string `db:"unit"`
	Value   float64 `db:"value"`
	Quality string  `db:"quality"`
}

// MetricSummary holds aggregate statistics for one metric
type MetricSummary struct {
	Min                 float64            `json:"min"`
	Max                 float64            `json:"max"`
	Avg                 float64            `json:"avg"`
	WeightedAvg         *float64           `json:"weighted_avg,omitempty"`
	Unit                *string            `json:"unit"`
	QualityDistribution map[string]float64 `json:"quality_distribution,omitempty"`
}

// SummaryResponse maps metric name to its summary
type SummaryResponse map[string]MetricSummary

// Location is a site where observations are recorded
type Location struct {
	ID        int64    `db:"id" json:"id"`
	Name      *string  `db:"name" json:"name"`
	Country   *string  `db:"country" json:"country"`
	Latitude  *float64 `db:"latitude" json:"latitude"`
	Longitude *float64 `db:"longitude" json:"longitude"`
}

// Metric describes a measured quantity
type Metric struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	DisplayName *string `db:"display_name" json:"display_name"`
	Unit        *string `db:"unit" json:"unit"`
	Description *string `db:"description" json:"description"`
}

// ClimateRecord is a denormalized observation row
type ClimateRecord struct {
	ID           int64    `db:"id" json:"id"`
	LocationID   int64    `db:"location_id" json:"location_id"`
	LocationName *string  `db:"location_name" json:"location_name"`
	Latitude     *float64 `db:"latitude" json:"latitude"`
	Longitude    *float64 `db:"longitude" json:"longitude"`
	Date         string   `db:"date" json:"date"`
	Metric       string   `db:"metric" json:"metric"`
	Value        float64  `db:"value" json:"value"`
	Unit         *string  `db:"unit" json:"unit"`
	Quality      string   `db:"quality" json:"quality"`
}

// PageMeta describes a page of records
type PageMeta struct {
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
}

// RecordPage is a paginated set of climate records
type RecordPage struct {
	Data []ClimateRecord `json:"data"`
	Meta PageMeta        `json:"meta"`
}
