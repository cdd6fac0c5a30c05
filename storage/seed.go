package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"climate-trends-service/models"
)

// SeedData is the layout of the seed file
type SeedData struct {
	Locations   []map[string]interface{} `json:"locations"`
	Metrics     []map[string]interface{} `json:"metrics"`
	ClimateData []map[string]interface{} `json:"climate_data"`
}

// SeedStats counts rows per table by outcome
type SeedStats struct {
	Inserted map[string]int
	Skipped  map[string]int
	Failed   map[string]int
}

func newSeedStats() SeedStats {
	return SeedStats{
		Inserted: map[string]int{},
		Skipped:  map[string]int{},
		Failed:   map[string]int{},
	}
}

// LoadSeedFile reads and decodes a seed file
func LoadSeedFile(path string) (*SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var data SeedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}
	return &data, nil
}

// Seed inserts seed rows, skipping invalid rows and ids already present.
// A row the database rejects is logged and does not stop the seed.
func (r *SQLRepository) Seed(ctx context.Context, data *SeedData, logger *zap.Logger) (SeedStats, error) {
	stats := newSeedStats()

	insert := func(table, query string, args ...interface{}) error {
		res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stats.Failed[table]++
			logger.Error("Failed to insert seed row", zap.String("table", table), zap.Error(err))
			return nil
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			stats.Inserted[table]++
		}
		return nil
	}
	skip := func(table, reason string, row map[string]interface{}) {
		stats.Skipped[table]++
		logger.Warn("Skipping seed row", zap.String("table", table), zap.String("reason", reason), zap.Any("row", row))
	}

	for _, loc := range data.Locations {
		id, ok := validID(loc["id"])
		if !ok {
			skip("locations", "invalid id", loc)
			continue
		}
		region, _ := loc["region"].(string)
		if region == "" {
			skip("locations", "missing region", loc)
			continue
		}
		err := insert("locations",
			`INSERT INTO locations (id, name, country, latitude, longitude, region)
			VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
			id, loc["name"], loc["country"], loc["latitude"], loc["longitude"], region)
		if err != nil {
			return stats, err
		}
	}

	for _, met := range data.Metrics {
		id, ok := validID(met["id"])
		if !ok {
			skip("metrics", "invalid id", met)
			continue
		}
		err := insert("metrics",
			`INSERT INTO metrics (id, name, display_name, unit, description)
			VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
			id, met["name"], met["display_name"], met["unit"], met["description"])
		if err != nil {
			return stats, err
		}
	}

	for _, row := range data.ClimateData {
		id, ok := validID(row["id"])
		if !ok {
			skip("climate_data", "invalid id", row)
			continue
		}
		locationID, ok := validID(row["location_id"])
		if !ok {
			skip("climate_data", "invalid location_id", row)
			continue
		}
		metricID, ok := validID(row["metric_id"])
		if !ok {
			skip("climate_data", "invalid metric_id", row)
			continue
		}
		date, _ := row["date"].(string)
		if date == "" {
			skip("climate_data", "missing date", row)
			continue
		}
		value, ok := row["value"].(float64)
		if !ok {
			skip("climate_data", "missing value", row)
			continue
		}
		quality, _ := row["quality"].(string)
		if q, known := models.ParseQuality(quality); !known || string(q) != quality {
			skip("climate_data", "invalid quality", row)
			continue
		}
		err := insert("climate_data",
			`INSERT INTO climate_data (id, location_id, metric_id, date, value, quality)
			VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
			id, locationID, metricID, date, value, quality)
		if err != nil {
			return stats, err
		}
	}

	logger.Info("Database seeded",
		zap.Any("inserted", stats.Inserted),
		zap.Any("skipped", stats.Skipped),
		zap.Any("failed", stats.Failed))
	return stats, nil
}

// validID accepts positive integers given as JSON numbers or strings
func validID(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case float64:
		if id <= 0 || id != math.Trunc(id) {
			return 0, false
		}
		return int64(id), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
