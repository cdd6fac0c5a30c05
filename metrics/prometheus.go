package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TotalRequests counts total HTTP requests
	TotalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures request latency
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// ActiveRequests tracks number of active HTTP requests
	ActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Number of active HTTP requests",
		},
	)

	// ErrorsTotal counts responses with status >= 400
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP errors",
		},
		[]string{"method", "endpoint", "error_type"},
	)

	// CacheLookupsTotal counts derived-result cache reads by outcome
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climate_cache_lookups_total",
			Help: "Cache lookups by endpoint and result (hit or miss)",
		},
		[]string{"endpoint", "result"},
	)

	// CacheSweepDeletedTotal counts entries removed by the stale-version sweep
	CacheSweepDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "climate_cache_sweep_deleted_total",
			Help: "Cache entries deleted because their version tags were stale",
		},
	)

	// AnomalyDetectedTotal counts anomalies found while computing trends
	AnomalyDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climate_anomalies_detected_total",
			Help: "Total number of detected anomalies per metric",
		},
		[]string{"metric"},
	)

	// CacheVersion exposes the active generation counters
	CacheVersion = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "climate_cache_version",
			Help: "Active cache generation counter per axis",
		},
		[]string{"axis"},
	)
)

func init() {
	// HTTP metrics
	prometheus.MustRegister(TotalRequests)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ActiveRequests)
	prometheus.MustRegister(ErrorsTotal)

	// Cache and analysis metrics
	prometheus.MustRegister(CacheLookupsTotal)
	prometheus.MustRegister(CacheSweepDeletedTotal)
	prometheus.MustRegister(AnomalyDetectedTotal)
	prometheus.MustRegister(CacheVersion)
}

// RecordAnomaly increments the anomaly counter for a metric
func RecordAnomaly(metric string) {
	AnomalyDetectedTotal.WithLabelValues(metric).Inc()
}

// RecordCacheLookup counts a cache hit or miss for an endpoint
func RecordCacheLookup(endpoint string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(endpoint, result).Inc()
}

// RecordSweep adds the number of entries a sweep removed
func RecordSweep(deleted int) {
	CacheSweepDeletedTotal.Add(float64(deleted))
}

// SetVersions publishes the active data and algorithm versions
func SetVersions(data, algo int) {
	CacheVersion.WithLabelValues("data").Set(float64(data))
	CacheVersion.WithLabelValues("algo").Set(float64(algo))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records metrics for each request
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics endpoint itself
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ActiveRequests.Inc()
		defer ActiveRequests.Dec()

		wrapped := newResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(wrapped.statusCode)

		// Normalize endpoint for metrics (avoid high cardinality)
		endpoint := normalizeEndpoint(r.URL.Path)

		TotalRequests.WithLabelValues(r.Method, endpoint, statusCode).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(duration)

		if wrapped.statusCode >= 400 {
			ErrorsTotal.WithLabelValues(r.Method, endpoint, statusCode).Inc()
		}
	})
}

var knownEndpoints = map[string]bool{
	"/health":           true,
	"/api/v1/climate":   true,
	"/api/v1/locations": true,
	"/api/v1/metrics":   true,
	"/api/v1/summary":   true,
	"/api/v1/trends":    true,
}

// normalizeEndpoint maps unknown paths to a single label
func normalizeEndpoint(path string) string {
	path = strings.TrimSuffix(path, "/")
	if knownEndpoints[path] {
		return path
	}
	return "other"
}

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
