package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"climate-trends-service/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLRepository reads climate observations through sqlx
type SQLRepository struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the database for the given driver and DSN
func Open(driver, dsn string) (*SQLRepository, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// a single connection serializes writers on the file
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &SQLRepository{db: db, driver: driver}, nil
}

// Close closes the database connection
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// Ping checks database connectivity
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// MetricExists reports whether a metric with this name (any case) exists
func (r *SQLRepository) MetricExists(ctx context.Context, name string) (bool, error) {
	var count int
	query := r.db.Rebind("SELECT COUNT(*) FROM metrics WHERE LOWER(name) = ?")
	if err := r.db.GetContext(ctx, &count, query, strings.ToLower(name)); err != nil {
		return false, fmt.Errorf("failed to look up metric: %w", err)
	}
	return count > 0, nil
}

type seriesRow struct {
	Metric  string  `db:"metric"`
	Unit    *string `db:"unit"`
	Date    string  `db:"date"`
	Value   float64 `db:"value"`
	Quality string  `db:"quality"`
}

// FetchSeries returns one date-ascending series per metric with matching rows
func (r *SQLRepository) FetchSeries(ctx context.Context, f models.Filters) (map[string]models.MetricSeries, error) {
	where, args := whereClause(f)
	query, args, err := r.expand(`
		SELECT m.name AS metric, m.unit AS unit, CAST(c.date AS TEXT) AS date, c.value, c.quality
		FROM climate_data c
		JOIN metrics m ON c.metric_id = m.id
		`+where+`
		ORDER BY c.date ASC, c.id ASC`, args)
	if err != nil {
		return nil, err
	}

	var rows []seriesRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch series: %w", err)
	}

	series := make(map[string]models.MetricSeries)
	for _, row := range rows {
		date, err := parseDate(row.Date)
		if err != nil {
			return nil, err
		}
		s, ok := series[row.Metric]
		if !ok {
			s = models.MetricSeries{Name: row.Metric}
			if row.Unit != nil {
				s.Unit = *row.Unit
			}
		}
		s.Observations = append(s.Observations, models.Observation{
			Date:    date,
			Value:   row.Value,
			Quality: row.Quality,
		})
		series[row.Metric] = s
	}
	return series, nil
}

// FetchSummaryRows returns the raw rows aggregated by the summary endpoint
func (r *SQLRepository) FetchSummaryRows(ctx context.Context, f models.Filters) ([]models.SummaryRow, error) {
	where, args := whereClause(f)
	query, args, err := r.expand(`
		SELECT m.name AS metric, m.unit AS unit, c.value, c.quality
		FROM climate_data c
		JOIN metrics m ON c.metric_id = m.id
		`+where+`
		ORDER BY c.id ASC`, args)
	if err != nil {
		return nil, err
	}

	var rows []models.SummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch summary rows: %w", err)
	}
	return rows, nil
}

// FetchRecords returns one page of records and the total matching count
func (r *SQLRepository) FetchRecords(ctx context.Context, f models.Filters) ([]models.ClimateRecord, int64, error) {
	where, args := whereClause(f)
	from := `
		FROM climate_data c
		JOIN locations l ON c.location_id = l.id
		JOIN metrics m ON c.metric_id = m.id
		` + where

	query, pageArgs, err := r.expand(`
		SELECT c.id, c.location_id, l.name AS location_name, l.latitude, l.longitude,
			CAST(c.date AS TEXT) AS date, m.name AS metric, c.value, m.unit AS unit, c.quality
		`+from+`
		ORDER BY c.date ASC, c.id ASC
		LIMIT ? OFFSET ?`, append(args, f.PerPage, f.Offset()))
	if err != nil {
		return nil, 0, err
	}

	records := []models.ClimateRecord{}
	if err := r.db.SelectContext(ctx, &records, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch climate records: %w", err)
	}
	for i := range records {
		records[i].Date = trimDate(records[i].Date)
	}

	countQuery, countArgs, err := r.expand("SELECT COUNT(*) "+from, args)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to count climate records: %w", err)
	}
	return records, total, nil
}

// ListLocations returns all locations ordered by id
func (r *SQLRepository) ListLocations(ctx context.Context) ([]models.Location, error) {
	locations := []models.Location{}
	err := r.db.SelectContext(ctx, &locations,
		"SELECT id, name, country, latitude, longitude FROM locations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}

// ListMetrics returns all metrics ordered by id
func (r *SQLRepository) ListMetrics(ctx context.Context) ([]models.Metric, error) {
	metrics := []models.Metric{}
	err := r.db.SelectContext(ctx, &metrics,
		"SELECT id, name, display_name, unit, description FROM metrics ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	return metrics, nil
}

// whereClause builds the shared filter predicate with ? placeholders
func whereClause(f models.Filters) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if f.LocationID > 0 {
		clauses = append(clauses, "c.location_id = ?")
		args = append(args, f.LocationID)
	}
	if f.StartDate != "" {
		clauses = append(clauses, "c.date >= ?")
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		clauses = append(clauses, "c.date <= ?")
		args = append(args, f.EndDate)
	}
	if f.Metric != "" {
		clauses = append(clauses, "LOWER(m.name) = ?")
		args = append(args, strings.ToLower(f.Metric))
	}
	if allowed := f.AllowedQualities(); len(allowed) > 0 {
		clauses = append(clauses, "LOWER(c.quality) IN (?)")
		args = append(args, allowed)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// expand flattens slice arguments and rebinds placeholders for the driver
func (r *SQLRepository) expand(query string, args []interface{}) (string, []interface{}, error) {
	if len(args) > 0 {
		var err error
		query, args, err = sqlx.In(query, args...)
		if err != nil {
			return "", nil, fmt.Errorf("failed to build query: %w", err)
		}
	}
	return r.db.Rebind(query), args, nil
}

// trimDate drops any time component a driver may render
func trimDate(s string) string {
	if len(s) > len(models.DateLayout) {
		return s[:len(models.DateLayout)]
	}
	return s
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, trimDate(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}
