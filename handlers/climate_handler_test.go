package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"climate-trends-service/cache"
	"climate-trends-service/models"
	"climate-trends-service/services"
	"climate-trends-service/storage"
)

type stubService struct {
	params map[string]string
	err    error
	trends models.TrendsResponse
}

func (s *stubService) GetClimateData(_ context.Context, p map[string]string) (models.RecordPage, error) {
	s.params = p
	return models.RecordPage{Data: []models.ClimateRecord{}, Meta: models.PageMeta{Page: 1, PerPage: 50}}, s.err
}

func (s *stubService) GetLocations(context.Context) ([]models.Location, error) {
	return []models.Location{{ID: 1}}, s.err
}

func (s *stubService) GetMetrics(context.Context) ([]models.Metric, error) {
	return []models.Metric{{ID: 1, Name: "temperature"}}, s.err
}

func (s *stubService) GetSummary(_ context.Context, p map[string]string) (models.SummaryResponse, error) {
	s.params = p
	return models.SummaryResponse{}, s.err
}

func (s *stubService) GetTrends(_ context.Context, p map[string]string) (models.TrendsResponse, error) {
	s.params = p
	return s.trends, s.err
}

func (s *stubService) Health(context.Context) services.HealthStatus {
	return services.HealthStatus{Status: "ok", Database: "healthy", Cache: "healthy"}
}

func (s *stubService) Versions() cache.Versions {
	return cache.Versions{Data: 3, Algo: 2}
}

func newTestRouter(svc ClimateService, perMinute int) *mux.Router {
	r := mux.NewRouter()
	NewClimateHandler(svc, zap.NewNop()).Register(r, perMinute, false)
	return r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestQueryParamsKeepsFirstValue(t *testing.T) {
	svc := &stubService{}
	rec := get(t, newTestRouter(svc, 100), "/api/v1/trends?metric=temperature&metric=precipitation&location_id=1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"metric": "temperature", "location_id": "1"}, svc.params)
}

func TestValidationErrorIs400(t *testing.T) {
	svc := &stubService{err: models.NewValidationError("Invalid quality_threshold value.")}
	rec := get(t, newTestRouter(svc, 100), "/api/v1/summary?quality_threshold=meh")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Invalid quality_threshold value."}`, rec.Body.String())
}

func TestUnexpectedErrorIsGeneric500(t *testing.T) {
	svc := &stubService{err: fmt.Errorf("failed to fetch trends: %w", errors.New("pq: password authentication failed"))}
	r := newTestRouter(svc, 100)

	tests := map[string]string{
		"/api/v1/trends":    "Failed to fetch trends.",
		"/api/v1/summary":   "Failed to fetch summary.",
		"/api/v1/climate":   "Failed to fetch climate data.",
		"/api/v1/locations": "Failed to fetch locations.",
		"/api/v1/metrics":   "Failed to fetch metrics.",
	}
	for path, msg := range tests {
		t.Run(path, func(t *testing.T) {
			rec := get(t, r, path)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, msg), rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "password")
		})
	}
}

func TestDataEnvelopes(t *testing.T) {
	r := newTestRouter(&stubService{trends: models.TrendsResponse{}}, 100)

	assert.JSONEq(t, `{"data":{}}`, get(t, r, "/api/v1/trends").Body.String())
	assert.JSONEq(t, `{"data":[{"id":1,"name":null,"country":null,"latitude":null,"longitude":null}]}`,
		get(t, r, "/api/v1/locations").Body.String())
	assert.JSONEq(t, `{"data":[],"meta":{"total_count":0,"page":1,"per_page":50}}`,
		get(t, r, "/api/v1/climate").Body.String())
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestRouter(&stubService{}, 100), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"service": "climate-trends-service",
		"status": "ok",
		"database": "healthy",
		"cache": "healthy",
		"data_version": 3,
		"algo_version": 2
	}`, rec.Body.String())
}

func TestAnalysisEndpointsAreRateLimited(t *testing.T) {
	r := newTestRouter(&stubService{}, 2)

	assert.Equal(t, http.StatusOK, get(t, r, "/api/v1/trends").Code)
	assert.Equal(t, http.StatusOK, get(t, r, "/api/v1/trends").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, r, "/api/v1/trends").Code)

	assert.Equal(t, http.StatusOK, get(t, r, "/api/v1/summary").Code)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(t, r, "/api/v1/locations").Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubService{}, 100).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/trends", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// seedSeries writes one temperature observation every ten days from 2024-01-01
func seedSeries(values []float64) *storage.SeedData {
	data := &storage.SeedData{
		Locations: []map[string]interface{}{
			{"id": 1.0, "name": "Irvine", "country": "USA", "latitude": 33.68, "longitude": -117.82, "region": "California"},
		},
		Metrics: []map[string]interface{}{
			{"id": 1.0, "name": "temperature", "display_name": "Temperature", "unit": "celsius", "description": "Air temperature"},
		},
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		data.ClimateData = append(data.ClimateData, map[string]interface{}{
			"id":          float64(i + 1),
			"location_id": 1.0,
			"metric_id":   1.0,
			"date":        start.AddDate(0, 0, 10*i).Format(models.DateLayout),
			"value":       v,
			"quality":     "good",
		})
	}
	return data
}

func TestTrendsEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "climate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate(ctx))

	values := make([]float64, 35)
	for i := range values {
		values[i] = 10
		if i%2 == 1 {
			values[i] = 12
		}
	}
	values[34] = 30
	_, err = repo.Seed(ctx, seedSeries(values), zap.NewNop())
	require.NoError(t, err)

	store := cache.NewMemoryStore()
	svc := services.NewClimateService(repo, store, services.Options{Versions: cache.Versions{Data: 1, Algo: 1}}, zap.NewNop())
	r := newTestRouter(svc, 100)

	first := get(t, r, "/api/v1/trends?location_id=1&metric=temperature")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	var body struct {
		Data models.TrendsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &body))
	entry := body.Data["temperature"]
	require.Len(t, entry.Anomalies, 1)
	assert.Equal(t, 30.0, entry.Anomalies[0].Value)
	assert.Equal(t, 1.0, entry.Trend.Confidence)
	assert.Equal(t, 1.0, entry.Seasonality.Confidence)

	second := get(t, r, "/api/v1/trends?metric=temperature&location_id=1")
	assert.Equal(t, first.Body.String(), second.Body.String())

	_, ok, err := store.Get(ctx, "trends:location_id=1&metric=temperature:data_ver=1:algo_ver=1")
	require.NoError(t, err)
	assert.True(t, ok)

	bad := get(t, r, "/api/v1/trends?metric=humidity")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.JSONEq(t, `{"error":"Invalid metric name."}`, bad.Body.String())

	inverted := get(t, r, "/api/v1/trends?start_date=2024-05-01&end_date=2024-04-01")
	assert.Equal(t, http.StatusBadRequest, inverted.Code)
	assert.JSONEq(t, `{"error":"end_date must be greater than or equal to start_date."}`, inverted.Body.String())
}
