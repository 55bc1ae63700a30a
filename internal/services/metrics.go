package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	modelBuilds        *prometheus.CounterVec
	modelBuildDuration prometheus.Histogram
	modelVersion       prometheus.Gauge

	recommendationRequests *prometheus.CounterVec
	recommendationLatency  *prometheus.HistogramVec
	cacheLookups           *prometheus.CounterVec

	searchRequests *prometheus.CounterVec
	searchLatency  *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		modelBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketrec_model_builds_total",
			Help: "Recommendation model builds by outcome",
		}, []string{"status"}),

		modelBuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketrec_model_build_duration_seconds",
			Help:    "Time spent building the recommendation model",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),

		modelVersion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "marketrec_model_version",
			Help: "Version of the recommendation model currently serving",
		}),

		recommendationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketrec_recommendation_requests_total",
			Help: "Recommendation requests by kind and outcome",
		}, []string{"kind", "status"}),

		recommendationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketrec_recommendation_latency_seconds",
			Help:    "Recommendation request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketrec_recommendation_cache_lookups_total",
			Help: "Recommendation cache lookups by result",
		}, []string{"result"}),

		searchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketrec_search_requests_total",
			Help: "Product searches by strategy",
		}, []string{"strategy"}),

		searchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketrec_search_latency_seconds",
			Help:    "Product search latency by strategy",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// ObserveBuild records one model build attempt. It matches the
// HybridRecommender.OnBuild hook.
func (m *Metrics) ObserveBuild(duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.modelBuilds.WithLabelValues(status).Inc()
	m.modelBuildDuration.Observe(duration.Seconds())
}

// SetModelVersion publishes the serving model version.
func (m *Metrics) SetModelVersion(version uint64) {
	if m == nil {
		return
	}
	m.modelVersion.Set(float64(version))
}

// ObserveRecommendation records one recommendation request of the given kind.
func (m *Metrics) ObserveRecommendation(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.recommendationRequests.WithLabelValues(kind, status).Inc()
	m.recommendationLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveCache records a cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveSearch records one product search.
func (m *Metrics) ObserveSearch(strategy string, start time.Time) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(strategy).Inc()
	m.searchLatency.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
