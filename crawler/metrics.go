package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RowsWritten     prometheus.Counter
	ProductsTotal   prometheus.Counter
	WindowsTotal    prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "naramarket_api_requests_total",
			Help: "Total government API requests issued, by endpoint.",
		},
		[]string{"endpoint"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "naramarket_api_request_duration_seconds",
			Help:    "Government API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	rowsWritten := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "naramarket_rows_written_total",
			Help: "Total rows written to sinks.",
		},
	)
	productsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "naramarket_products_total",
			Help: "Total list API items processed.",
		},
	)
	windowsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "naramarket_windows_processed_total",
			Help: "Total date windows completed.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "naramarket_retries_total",
			Help: "Total retry attempts performed by the pagination engine.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "naramarket_errors_total",
			Help: "Total classified API errors, by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, rowsWritten, productsTotal, windowsTotal, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RowsWritten:     rowsWritten,
		ProductsTotal:   productsTotal,
		WindowsTotal:    windowsTotal,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the request counter for an endpoint.
func (m *Metrics) IncRequest(endpoint string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint).Inc()
}

// ObserveDuration records one API request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddRows adds to the rows written counter.
func (m *Metrics) AddRows(n int) {
	if m == nil {
		return
	}
	m.RowsWritten.Add(float64(n))
}

// AddProducts adds to the products counter.
func (m *Metrics) AddProducts(n int) {
	if m == nil {
		return
	}
	m.ProductsTotal.Add(float64(n))
}

// IncWindows increments the completed windows counter.
func (m *Metrics) IncWindows() {
	if m == nil {
		return
	}
	m.WindowsTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a classification label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
