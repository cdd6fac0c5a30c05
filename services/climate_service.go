package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"climate-trends-service/analytics"
	"climate-trends-service/cache"
	"climate-trends-service/models"
)

const (
	DefaultResultTTL = 600 * time.Second

	EndpointTrends    = "trends"
	EndpointSummary   = "summary"
	LocationsCacheKey = "locations"
	MetricsCacheKey   = "metrics"
)

// Repository is the read side of climate storage
type Repository interface {
	MetricExists(ctx context.Context, name string) (bool, error)
	FetchSeries(ctx context.Context, f models.Filters) (map[string]models.MetricSeries, error)
	FetchSummaryRows(ctx context.Context, f models.Filters) ([]models.SummaryRow, error)
	FetchRecords(ctx context.Context, f models.Filters) ([]models.ClimateRecord, int64, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	ListMetrics(ctx context.Context) ([]models.Metric, error)
	Ping(ctx context.Context) error
}

// Options tunes a ClimateService
type Options struct {
	Versions cache.Versions
	// ResultTTL applies to trends and summary entries
	ResultTTL time.Duration

	// OnAnomaly is called once per anomaly found while computing trends
	OnAnomaly func(metric string)
	// OnCacheLookup is called after every cache read
	OnCacheLookup func(endpoint string, hit bool)
}

// ClimateService answers climate queries, caching derived results
type ClimateService struct {
	repo   Repository
	cache  cache.Store
	opts   Options
	logger *zap.Logger

	trend       *analytics.TrendAnalyzer
	anomalies   *analytics.AnomalyDetector
	seasonality *analytics.SeasonalityAnalyzer
}

// NewClimateService creates a new climate service
func NewClimateService(repo Repository, store cache.Store, opts Options, logger *zap.Logger) *ClimateService {
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = DefaultResultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClimateService{
		repo:        repo,
		cache:       store,
		opts:        opts,
		logger:      logger,
		trend:       analytics.NewTrendAnalyzer(),
		anomalies:   analytics.NewAnomalyDetector(analytics.DefaultDeviationThreshold),
		seasonality: analytics.NewSeasonalityAnalyzer(),
	}
}

// Versions returns the generation counters embedded in derived keys
func (s *ClimateService) Versions() cache.Versions {
	return s.opts.Versions
}

// GetTrends returns per-metric trend, anomaly and seasonality analysis
func (s *ClimateService) GetTrends(ctx context.Context, params map[string]string) (models.TrendsResponse, error) {
	key := cache.Derive(EndpointTrends, params, s.opts.Versions)

	var cached models.TrendsResponse
	if s.lookup(ctx, EndpointTrends, key, &cached) {
		return cached, nil
	}

	f, err := s.parseFilters(ctx, params, false)
	if err != nil {
		return nil, err
	}

	series, err := s.repo.FetchSeries(ctx, f)
	if err != nil {
		s.logger.Error("Error fetching trends", zap.Any("filters", f), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch trends: %w", err)
	}

	result := make(models.TrendsResponse, len(series))
	for name, ms := range series {
		result[name] = s.analyze(ms)
	}

	s.store(ctx, key, result, s.opts.ResultTTL)
	return result, nil
}

func (s *ClimateService) analyze(ms models.MetricSeries) models.MetricTrendsEntry {
	if ms.Len() < 2 {
		return models.NoSignalEntry(ms.UnitPtr())
	}

	anomalies := s.anomalies.Detect(ms)
	for _, a := range anomalies {
		s.logger.Debug("Anomaly detected",
			zap.String("metric", ms.Name),
			zap.String("date", a.Date),
			zap.Float64("value", a.Value),
			zap.Float64("deviation", a.Deviation))
		if s.opts.OnAnomaly != nil {
			s.opts.OnAnomaly(ms.Name)
		}
	}

	return models.MetricTrendsEntry{
		Trend:       s.trend.Analyze(ms),
		Anomalies:   anomalies,
		Seasonality: s.seasonality.Analyze(ms),
	}
}

// GetSummary returns per-metric aggregate statistics
func (s *ClimateService) GetSummary(ctx context.Context, params map[string]string) (models.SummaryResponse, error) {
	key := cache.Derive(EndpointSummary, params, s.opts.Versions)

	var cached models.SummaryResponse
	if s.lookup(ctx, EndpointSummary, key, &cached) {
		return cached, nil
	}

	f, err := s.parseFilters(ctx, params, false)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.FetchSummaryRows(ctx, f)
	if err != nil {
		s.logger.Error("Error fetching summary", zap.Any("filters", f), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch summary: %w", err)
	}

	result := analytics.Summarize(rows)
	s.store(ctx, key, result, s.opts.ResultTTL)
	return result, nil
}

// GetClimateData returns one page of raw records. Pages are not cached.
func (s *ClimateService) GetClimateData(ctx context.Context, params map[string]string) (models.RecordPage, error) {
	f, err := s.parseFilters(ctx, params, true)
	if err != nil {
		return models.RecordPage{}, err
	}

	records, total, err := s.repo.FetchRecords(ctx, f)
	if err != nil {
		s.logger.Error("Error fetching climate data", zap.Any("filters", f), zap.Error(err))
		return models.RecordPage{}, fmt.Errorf("failed to fetch climate data: %w", err)
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	s.logger.Info("Fetched climate data",
		zap.Int64("location_id", f.LocationID),
		zap.String("metric", f.Metric),
		zap.Int("page", f.Page),
		zap.Int("per_page", f.PerPage),
		zap.Int64s("returned_ids", ids))

	return models.RecordPage{
		Data: records,
		Meta: models.PageMeta{TotalCount: total, Page: f.Page, PerPage: f.PerPage},
	}, nil
}

// GetLocations returns all locations, cached until invalidated
func (s *ClimateService) GetLocations(ctx context.Context) ([]models.Location, error) {
	var cached []models.Location
	if s.lookup(ctx, LocationsCacheKey, LocationsCacheKey, &cached) {
		return cached, nil
	}

	locations, err := s.repo.ListLocations(ctx)
	if err != nil {
		s.logger.Error("Error fetching locations", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch locations: %w", err)
	}

	s.store(ctx, LocationsCacheKey, locations, cache.NoExpiry)
	return locations, nil
}

// GetMetrics returns all metrics, cached until invalidated
func (s *ClimateService) GetMetrics(ctx context.Context) ([]models.Metric, error) {
	var cached []models.Metric
	if s.lookup(ctx, MetricsCacheKey, MetricsCacheKey, &cached) {
		return cached, nil
	}

	metrics, err := s.repo.ListMetrics(ctx)
	if err != nil {
		s.logger.Error("Error fetching metrics", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch metrics: %w", err)
	}

	s.store(ctx, MetricsCacheKey, metrics, cache.NoExpiry)
	return metrics, nil
}

// InvalidateReferenceLists drops the forever-cached location and metric lists
func (s *ClimateService) InvalidateReferenceLists(ctx context.Context) error {
	return InvalidateReferenceLists(ctx, s.cache)
}

// InvalidateReferenceLists drops the forever-cached lists from store
func InvalidateReferenceLists(ctx context.Context, store cache.Store) error {
	if err := store.Delete(ctx, LocationsCacheKey, MetricsCacheKey); err != nil {
		return fmt.Errorf("failed to invalidate reference lists: %w", err)
	}
	return nil
}

// HealthStatus reports dependency health
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// Health pings storage and cache
func (s *ClimateService) Health(ctx context.Context) HealthStatus {
	h := HealthStatus{Status: "ok", Database: "healthy", Cache: "healthy"}
	if err := s.repo.Ping(ctx); err != nil {
		h.Database = "unhealthy"
		h.Status = "degraded"
	}
	if err := s.cache.Ping(ctx); err != nil {
		h.Cache = "unhealthy"
		h.Status = "degraded"
	}
	return h
}

func (s *ClimateService) parseFilters(ctx context.Context, params map[string]string, paginated bool) (models.Filters, error) {
	f, err := models.ParseFilters(params, paginated)
	if err != nil {
		return models.Filters{}, err
	}
	if f.Metric != "" {
		ok, err := s.repo.MetricExists(ctx, f.Metric)
		if err != nil {
			s.logger.Error("Error validating metric", zap.String("metric", f.Metric), zap.Error(err))
			return models.Filters{}, fmt.Errorf("failed to validate metric: %w", err)
		}
		if !ok {
			return models.Filters{}, models.NewValidationError(models.MsgInvalidMetric)
		}
	}
	return f, nil
}

// lookup reads key into dest. Cache failures count as misses.
func (s *ClimateService) lookup(ctx context.Context, endpoint, key string, dest interface{}) bool {
	hit, err := cache.GetJSON(ctx, s.cache, key, dest)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		hit = false
	}
	if s.opts.OnCacheLookup != nil {
		s.opts.OnCacheLookup(endpoint, hit)
	}
	if hit {
		s.logger.Info("Cache hit", zap.String("endpoint", endpoint), zap.String("key", key))
	}
	return hit
}

func (s *ClimateService) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := cache.SetJSON(ctx, s.cache, key, value, ttl); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.logger.Info("Cache set", zap.String("key", key), zap.Duration("ttl", ttl))
}
