package storage

import (
	"context"
	"fmt"
)

// column types that differ between dialects
type dialect struct {
	date  string
	float string
}

var dialects = map[string]dialect{
	DriverPostgres: {date: "DATE", float: "DOUBLE PRECISION"},
	DriverSQLite:   {date: "TEXT", float: "REAL"},
}

func schemaStatements(d dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS locations (
			id INTEGER PRIMARY KEY,
			name VARCHAR(255),
			country VARCHAR(255),
			latitude ` + d.float + `,
			longitude ` + d.float + `,
			region VARCHAR(255) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_region ON locations (region)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY,
			name VARCHAR(255),
			display_name VARCHAR(255),
			unit VARCHAR(50),
			description TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_name ON metrics (name)`,
		`CREATE TABLE IF NOT EXISTS climate_data (
			id INTEGER PRIMARY KEY,
			location_id INTEGER NOT NULL REFERENCES locations (id),
			metric_id INTEGER NOT NULL REFERENCES metrics (id),
			date ` + d.date + ` NOT NULL,
			value ` + d.float + ` NOT NULL,
			quality VARCHAR(20) NOT NULL CHECK (quality IN ('excellent', 'good', 'questionable', 'poor'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_climate_data_location_id ON climate_data (location_id)`,
		`CREATE INDEX IF NOT EXISTS idx_climate_data_metric_id ON climate_data (metric_id)`,
		`CREATE INDEX IF NOT EXISTS idx_climate_data_date ON climate_data (date)`,
		`CREATE INDEX IF NOT EXISTS idx_climate_data_quality ON climate_data (quality)`,
	}
}

// Migrate creates the tables and indexes if they do not exist
func (r *SQLRepository) Migrate(ctx context.Context) error {
	d, ok := dialects[r.driver]
	if !ok {
		return fmt.Errorf("no schema for driver %q", r.driver)
	}
	for _, stmt := range schemaStatements(d) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
