// Package metrics defines the Prometheus metric collectors used across the
// storefront services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	CatalogQueriesTotal   *prometheus.CounterVec
	CatalogQueryLatency   *prometheus.HistogramVec
	CatalogResultsCount   prometheus.Histogram
	CorpusScanDuration    *prometheus.HistogramVec
	CorpusSkippedTotal    *prometheus.CounterVec
	RecommendationsTotal  *prometheus.CounterVec
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	EventsPublishedTotal  *prometheus.CounterVec
	HistoryUpdatesTotal   *prometheus.CounterVec
	OrdersPlacedTotal     prometheus.Counter
	ProductsUploadedTotal prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
	StoreRetriesTotal     *prometheus.CounterVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() so repeated construction does not
// collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		CatalogQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_queries_total",
				Help: "Catalog browse/search queries by kind (browse, search) and result type (hit, zero_result, not_found, error).",
			},
			[]string{"kind", "result_type"},
		),
		CatalogQueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_query_latency_seconds",
				Help:    "Catalog query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		CatalogResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_results_count",
				Help:    "Total matching products per catalog query.",
				Buckets: []float64{0, 1, 4, 8, 25, 50, 100, 500},
			},
		),
		CorpusScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpus_scan_duration_seconds",
				Help:    "Duration of full-corpus fuzzy scoring passes.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"kind"},
		),
		CorpusSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_skipped_documents_total",
				Help: "Products skipped during a scoring pass because their document could not be read.",
			},
			[]string{"kind"},
		),
		RecommendationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommendations_total",
				Help: "Tag recommendation requests by outcome (success, insufficient, error).",
			},
			[]string{"outcome"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_published_total",
				Help: "Events published to Kafka by topic and status.",
			},
			[]string{"topic", "status"},
		),
		HistoryUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "history_updates_total",
				Help: "User history weight updates by kind (search, browse).",
			},
			[]string{"kind"},
		),
		OrdersPlacedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_placed_total",
				Help: "Total orders placed.",
			},
		),
		ProductsUploadedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "products_uploaded_total",
				Help: "Total products uploaded by sellers.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		StoreRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_retries_total",
				Help: "Catalog store calls repeated after a transient failure, by operation.",
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CatalogQueriesTotal,
		m.CatalogQueryLatency,
		m.CatalogResultsCount,
		m.CorpusScanDuration,
		m.CorpusSkippedTotal,
		m.RecommendationsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsPublishedTotal,
		m.HistoryUpdatesTotal,
		m.OrdersPlacedTotal,
		m.ProductsUploadedTotal,
		m.CircuitBreakerState,
		m.StoreRetriesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
