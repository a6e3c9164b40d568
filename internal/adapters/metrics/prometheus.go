// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	queryCounter        *prometheus.CounterVec
	queryDuration       *prometheus.HistogramVec
	normalizeCache      *prometheus.CounterVec
	validationFailures  *prometheus.CounterVec
	filterRewrites      *prometheus.CounterVec
	servicesRegistered  prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector registered with
// the default registry.
func NewCollector(namespace string) *Collector {
	return NewCollectorWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegisterer creates a collector registered with reg.
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "geofields"
	}
	factory := promauto.With(reg)

	return &Collector{
		queryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of spatial queries",
			},
			[]string{"service", "operation", "status"},
		),

		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Query duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		normalizeCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "normalize_cache_total",
				Help:      "Geometry normalization cache lookups",
			},
			[]string{"result"},
		),

		validationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of rejected geometry values",
			},
			[]string{"service", "field"},
		),

		filterRewrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "filter_rewrites_total",
				Help:      "Total number of geometry filter rewrites",
			},
			[]string{"service", "field", "result"},
		),

		servicesRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "services_registered",
				Help:      "Number of registered services",
			},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// IncQueryCount increments the query counter.
func (c *Collector) IncQueryCount(service, operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.queryCounter.WithLabelValues(service, operation, status).Inc()
}

// ObserveQueryDuration records query duration.
func (c *Collector) ObserveQueryDuration(service, operation string, duration time.Duration) {
	c.queryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// IncNormalizeCache counts a normalization cache hit or miss.
func (c *Collector) IncNormalizeCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.normalizeCache.WithLabelValues(result).Inc()
}

// IncValidationFailures increments the validation failure counter.
func (c *Collector) IncValidationFailures(service, field string) {
	c.validationFailures.WithLabelValues(service, field).Inc()
}

// IncFilterRewrites counts filter rewrites. applied is false when the value
// carried no geometry and the filter was dropped.
func (c *Collector) IncFilterRewrites(service, field string, applied bool) {
	result := "applied"
	if !applied {
		result = "skipped"
	}
	c.filterRewrites.WithLabelValues(service, field, result).Inc()
}

// SetServicesRegistered sets the number of registered services.
func (c *Collector) SetServicesRegistered(count int) {
	c.servicesRegistered.Set(float64(count))
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := normalizePath(r.URL.Path)
		status := statusToString(wrapped.statusCode)

		c.IncHTTPRequests(r.Method, path, status)
		c.ObserveHTTPDuration(r.Method, path, duration)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath replaces the service and action segments of API paths
// with placeholders to keep label cardinality bounded.
func normalizePath(path string) string {
	const prefix = "/api/v1/services/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}

	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if parts[0] != "" {
		parts[0] = "{service}"
	}
	if len(parts) >= 3 && parts[1] == "actions" {
		parts[2] = "{action}"
	}
	return prefix + strings.Join(parts, "/")
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
