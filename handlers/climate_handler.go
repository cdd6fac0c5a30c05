package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"climate-trends-service/cache"
	"climate-trends-service/models"
	"climate-trends-service/services"
	"climate-trends-service/utils"
)

// ClimateService is the query surface the handlers depend on
type ClimateService interface {
	GetClimateData(ctx context.Context, params map[string]string) (models.RecordPage, error)
	GetLocations(ctx context.Context) ([]models.Location, error)
	GetMetrics(ctx context.Context) ([]models.Metric, error)
	GetSummary(ctx context.Context, params map[string]string) (models.SummaryResponse, error)
	GetTrends(ctx context.Context, params map[string]string) (models.TrendsResponse, error)
	Health(ctx context.Context) services.HealthStatus
	Versions() cache.Versions
}

// ClimateHandler handles HTTP requests for climate queries
type ClimateHandler struct {
	service ClimateService
	logger  *zap.Logger
}

// NewClimateHandler creates a new ClimateHandler
func NewClimateHandler(service ClimateService, logger *zap.Logger) *ClimateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClimateHandler{service: service, logger: logger}
}

// Register mounts the API routes. The analysis endpoints each get their
// own per-client limit of perMinute requests; trustProxy selects whether
// clients are identified by forwarding headers.
func (h *ClimateHandler) Register(r *mux.Router, perMinute int, trustProxy bool) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/climate", h.GetClimateData).Methods(http.MethodGet)
	api.HandleFunc("/locations", h.GetLocations).Methods(http.MethodGet)
	api.HandleFunc("/metrics", h.GetMetrics).Methods(http.MethodGet)
	api.HandleFunc("/summary", utils.NewIPRateLimiter(perMinute, trustProxy).Limit(h.GetSummary)).Methods(http.MethodGet)
	api.HandleFunc("/trends", utils.NewIPRateLimiter(perMinute, trustProxy).Limit(h.GetTrends)).Methods(http.MethodGet)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

// GetClimateData handles GET /api/v1/climate - paginated raw records
func (h *ClimateHandler) GetClimateData(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.GetClimateData(r.Context(), queryParams(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to fetch climate data.")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetLocations handles GET /api/v1/locations
func (h *ClimateHandler) GetLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.service.GetLocations(r.Context())
	if err != nil {
		h.writeError(w, r, err, "Failed to fetch locations.")
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: locations})
}

// GetMetrics handles GET /api/v1/metrics
func (h *ClimateHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.GetMetrics(r.Context())
	if err != nil {
		h.writeError(w, r, err, "Failed to fetch metrics.")
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: metrics})
}

// GetSummary handles GET /api/v1/summary - quality-weighted aggregates
func (h *ClimateHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSummary(r.Context(), queryParams(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to fetch summary.")
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: summary})
}

// GetTrends handles GET /api/v1/trends - trend, anomaly and seasonality analysis
func (h *ClimateHandler) GetTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.service.GetTrends(r.Context(), queryParams(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to fetch trends.")
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: trends})
}

// Health handles GET /health
func (h *ClimateHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.service.Health(r.Context())
	v := h.service.Versions()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":      "climate-trends-service",
		"status":       status.Status,
		"database":     status.Database,
		"cache":        status.Cache,
		"data_version": v.Data,
		"algo_version": v.Algo,
	})
}

type dataEnvelope struct {
	Data interface{} `json:"data"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// queryParams keeps the first value of each query parameter
func queryParams(r *http.Request) map[string]string {
	values := r.URL.Query()
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

// writeError maps validation failures to 400 and everything else to a
// generic 500
func (h *ClimateHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if ve, ok := models.IsValidationError(err); ok {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: ve.Message})
		return
	}
	h.logger.Error("Request failed",
		zap.String("request_id", utils.RequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("query", r.URL.RawQuery),
		zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: fallback})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
